package vm

// Arithmetic, bitwise, shift, conversion and comparison opcodes.

func intOp(fn func(a, b int32) int32) instruction {
	return func(t *Thread, f *JavaFrame) {
		b := f.Pop().Int()
		a := f.Pop().Int()
		f.Push(FromInt(fn(a, b)))
		f.PC++
	}
}

func longOp(fn func(a, b int64) int64) instruction {
	return func(t *Thread, f *JavaFrame) {
		b := f.Pop64().Long()
		a := f.Pop64().Long()
		f.Push64(FromLong(fn(a, b)))
		f.PC++
	}
}

// longShift takes an int shift count over a long operand.
func longShift(fn func(a int64, n int32) int64) instruction {
	return func(t *Thread, f *JavaFrame) {
		n := f.Pop().Int()
		a := f.Pop64().Long()
		f.Push64(FromLong(fn(a, n)))
		f.PC++
	}
}

func floatOp(fn func(a, b float32) float32) instruction {
	return func(t *Thread, f *JavaFrame) {
		b := f.Pop().Float()
		a := f.Pop().Float()
		f.Push(FromFloat(fn(a, b)))
		f.PC++
	}
}

func doubleOp(fn func(a, b float64) float64) instruction {
	return func(t *Thread, f *JavaFrame) {
		b := f.Pop64().Double()
		a := f.Pop64().Double()
		f.Push64(FromDouble(fn(a, b)))
		f.PC++
	}
}

// convert pops a value of width from and pushes fn's result.
func convert(fromWide bool, fn func(Value) Value) instruction {
	return func(t *Thread, f *JavaFrame) {
		var v Value
		if fromWide {
			v = f.Pop64()
		} else {
			v = f.Pop()
		}
		f.PushValue(fn(v))
		f.PC++
	}
}

func registerMath() {
	instructions[OpIadd] = intOp(func(a, b int32) int32 { return a + b })
	instructions[OpIsub] = intOp(func(a, b int32) int32 { return a - b })
	instructions[OpImul] = intOp(func(a, b int32) int32 { return a * b })
	instructions[OpIand] = intOp(func(a, b int32) int32 { return a & b })
	instructions[OpIor] = intOp(func(a, b int32) int32 { return a | b })
	instructions[OpIxor] = intOp(func(a, b int32) int32 { return a ^ b })
	instructions[OpIshl] = intOp(ishl)
	instructions[OpIshr] = intOp(ishr)
	instructions[OpIushr] = intOp(iushr)
	instructions[OpIdiv] = func(t *Thread, f *JavaFrame) { intDivide(t, f, idiv) }
	instructions[OpIrem] = func(t *Thread, f *JavaFrame) { intDivide(t, f, irem) }
	instructions[OpIneg] = func(t *Thread, f *JavaFrame) {
		f.Push(FromInt(-f.Pop().Int()))
		f.PC++
	}

	instructions[OpLadd] = longOp(func(a, b int64) int64 { return a + b })
	instructions[OpLsub] = longOp(func(a, b int64) int64 { return a - b })
	instructions[OpLmul] = longOp(func(a, b int64) int64 { return a * b })
	instructions[OpLand] = longOp(func(a, b int64) int64 { return a & b })
	instructions[OpLor] = longOp(func(a, b int64) int64 { return a | b })
	instructions[OpLxor] = longOp(func(a, b int64) int64 { return a ^ b })
	instructions[OpLshl] = longShift(lshl)
	instructions[OpLshr] = longShift(lshr)
	instructions[OpLushr] = longShift(lushr)
	instructions[OpLdiv] = func(t *Thread, f *JavaFrame) { longDivide(t, f, ldiv) }
	instructions[OpLrem] = func(t *Thread, f *JavaFrame) { longDivide(t, f, lrem) }
	instructions[OpLneg] = func(t *Thread, f *JavaFrame) {
		f.Push64(FromLong(-f.Pop64().Long()))
		f.PC++
	}

	instructions[OpFadd] = floatOp(fadd)
	instructions[OpFsub] = floatOp(fsub)
	instructions[OpFmul] = floatOp(fmul)
	instructions[OpFdiv] = floatOp(fdiv)
	instructions[OpFrem] = floatOp(frem)
	instructions[OpFneg] = func(t *Thread, f *JavaFrame) {
		f.Push(FromFloat(fneg(f.Pop().Float())))
		f.PC++
	}

	instructions[OpDadd] = doubleOp(dadd)
	instructions[OpDsub] = doubleOp(dsub)
	instructions[OpDmul] = doubleOp(dmul)
	instructions[OpDdiv] = doubleOp(ddiv)
	instructions[OpDrem] = doubleOp(drem)
	instructions[OpDneg] = func(t *Thread, f *JavaFrame) {
		f.Push64(FromDouble(dneg(f.Pop64().Double())))
		f.PC++
	}

	instructions[OpI2l] = convert(false, func(v Value) Value { return FromLong(int64(v.Int())) })
	instructions[OpI2f] = convert(false, func(v Value) Value { return FromFloat(float32(v.Int())) })
	instructions[OpI2d] = convert(false, func(v Value) Value { return FromDouble(float64(v.Int())) })
	instructions[OpL2i] = convert(true, func(v Value) Value { return FromInt(int32(v.Long())) })
	instructions[OpL2f] = convert(true, func(v Value) Value { return FromFloat(float32(v.Long())) })
	instructions[OpL2d] = convert(true, func(v Value) Value { return FromDouble(float64(v.Long())) })
	instructions[OpF2i] = convert(false, func(v Value) Value { return FromInt(f2i(v.Float())) })
	instructions[OpF2l] = convert(false, func(v Value) Value { return FromLong(f2l(v.Float())) })
	instructions[OpF2d] = convert(false, func(v Value) Value { return FromDouble(float64(v.Float())) })
	instructions[OpD2i] = convert(true, func(v Value) Value { return FromInt(d2i(v.Double())) })
	instructions[OpD2l] = convert(true, func(v Value) Value { return FromLong(d2l(v.Double())) })
	instructions[OpD2f] = convert(true, func(v Value) Value { return FromFloat(float32(v.Double())) })
	instructions[OpI2b] = convert(false, func(v Value) Value { return FromInt(i2b(v.Int())) })
	instructions[OpI2c] = convert(false, func(v Value) Value { return FromInt(i2c(v.Int())) })
	instructions[OpI2s] = convert(false, func(v Value) Value { return FromInt(i2s(v.Int())) })

	instructions[OpLcmp] = func(t *Thread, f *JavaFrame) {
		b := f.Pop64().Long()
		a := f.Pop64().Long()
		f.Push(FromInt(lcmp(a, b)))
		f.PC++
	}
	for op, nan := range map[Opcode]int32{OpFcmpl: -1, OpFcmpg: 1} {
		instructions[op] = func(t *Thread, f *JavaFrame) {
			b := f.Pop().Float()
			a := f.Pop().Float()
			f.Push(FromInt(fcmp(float64(a), float64(b), nan)))
			f.PC++
		}
	}
	for op, nan := range map[Opcode]int32{OpDcmpl: -1, OpDcmpg: 1} {
		instructions[op] = func(t *Thread, f *JavaFrame) {
			b := f.Pop64().Double()
			a := f.Pop64().Double()
			f.Push(FromInt(fcmp(a, b, nan)))
			f.PC++
		}
	}
}

// intDivide raises ArithmeticException for a zero divisor; floating
// division never traps.
func intDivide(t *Thread, f *JavaFrame, fn func(a, b int32) int32) {
	b := f.Pop().Int()
	a := f.Pop().Int()
	if b == 0 {
		t.Raise(ArithmeticException, "/ by zero")
		return
	}
	f.Push(FromInt(fn(a, b)))
	f.PC++
}

func longDivide(t *Thread, f *JavaFrame, fn func(a, b int64) int64) {
	b := f.Pop64().Long()
	a := f.Pop64().Long()
	if b == 0 {
		t.Raise(ArithmeticException, "/ by zero")
		return
	}
	f.Push64(FromLong(fn(a, b)))
	f.PC++
}
