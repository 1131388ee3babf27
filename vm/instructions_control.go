package vm

// Branches, subroutines, switches and returns. Branch offsets are relative
// to the branching opcode.

func branch(cond func(f *JavaFrame) bool) instruction {
	return func(t *Thread, f *JavaFrame) {
		if cond(f) {
			f.PC += int(f.i16(1))
			return
		}
		f.PC += 3
	}
}

func ifZero(test func(v int32) bool) instruction {
	return branch(func(f *JavaFrame) bool { return test(f.Pop().Int()) })
}

func ifCompare(test func(a, b int32) bool) instruction {
	return branch(func(f *JavaFrame) bool {
		b := f.Pop().Int()
		a := f.Pop().Int()
		return test(a, b)
	})
}

func registerControl() {
	instructions[OpIfeq] = ifZero(func(v int32) bool { return v == 0 })
	instructions[OpIfne] = ifZero(func(v int32) bool { return v != 0 })
	instructions[OpIflt] = ifZero(func(v int32) bool { return v < 0 })
	instructions[OpIfge] = ifZero(func(v int32) bool { return v >= 0 })
	instructions[OpIfgt] = ifZero(func(v int32) bool { return v > 0 })
	instructions[OpIfle] = ifZero(func(v int32) bool { return v <= 0 })
	instructions[OpIfIcmpeq] = ifCompare(func(a, b int32) bool { return a == b })
	instructions[OpIfIcmpne] = ifCompare(func(a, b int32) bool { return a != b })
	instructions[OpIfIcmplt] = ifCompare(func(a, b int32) bool { return a < b })
	instructions[OpIfIcmpge] = ifCompare(func(a, b int32) bool { return a >= b })
	instructions[OpIfIcmpgt] = ifCompare(func(a, b int32) bool { return a > b })
	instructions[OpIfIcmple] = ifCompare(func(a, b int32) bool { return a <= b })
	instructions[OpIfAcmpeq] = branch(func(f *JavaFrame) bool { return f.Pop().Ref() == f.Pop().Ref() })
	instructions[OpIfAcmpne] = branch(func(f *JavaFrame) bool { return f.Pop().Ref() != f.Pop().Ref() })
	instructions[OpIfnull] = branch(func(f *JavaFrame) bool { return f.Pop().IsNull() })
	instructions[OpIfnonnull] = branch(func(f *JavaFrame) bool { return !f.Pop().IsNull() })

	instructions[OpGoto] = func(t *Thread, f *JavaFrame) { f.PC += int(f.i16(1)) }
	instructions[OpGotoW] = func(t *Thread, f *JavaFrame) { f.PC += int(f.i32At(f.PC + 1)) }
	instructions[OpJsr] = func(t *Thread, f *JavaFrame) {
		f.Push(FromReturnAddress(f.PC + 3))
		f.PC += int(f.i16(1))
	}
	instructions[OpJsrW] = func(t *Thread, f *JavaFrame) {
		f.Push(FromReturnAddress(f.PC + 5))
		f.PC += int(f.i32At(f.PC + 1))
	}
	instructions[OpRet] = func(t *Thread, f *JavaFrame) {
		v := f.Local(int(f.u8(1)))
		if v.Kind() != KindReturnAddress {
			panic(fault("ret through a %s local", v.Kind()))
		}
		f.PC = v.ReturnAddress()
	}
	instructions[OpTableswitch] = opTableswitch
	instructions[OpLookupswitch] = opLookupswitch

	for _, op := range []Opcode{OpIreturn, OpFreturn, OpAreturn} {
		instructions[op] = func(t *Thread, f *JavaFrame) { t.ReturnFrame(f.Pop()) }
	}
	for _, op := range []Opcode{OpLreturn, OpDreturn} {
		instructions[op] = func(t *Thread, f *JavaFrame) { t.ReturnFrame(f.Pop64()) }
	}
	instructions[OpReturn] = func(t *Thread, f *JavaFrame) { t.ReturnFrame(Void) }
}

func opTableswitch(t *Thread, f *JavaFrame) {
	base := f.PC + 1 + switchPadding(f.PC)
	index := f.Pop().Int()
	lo := f.i32At(base + 4)
	hi := f.i32At(base + 8)
	if index < lo || index > hi {
		f.PC += int(f.i32At(base))
		return
	}
	f.PC += int(f.i32At(base + 12 + 4*(int(index)-int(lo))))
}

func opLookupswitch(t *Thread, f *JavaFrame) {
	base := f.PC + 1 + switchPadding(f.PC)
	key := f.Pop().Int()
	n := int(f.i32At(base + 4))
	// Pairs are sorted by match value.
	lo, hi := 0, n-1
	for lo <= hi {
		mid := (lo + hi) / 2
		pos := base + 8 + 8*mid
		match := f.i32At(pos)
		switch {
		case key == match:
			f.PC += int(f.i32At(pos + 4))
			return
		case key < match:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	f.PC += int(f.i32At(base))
}
