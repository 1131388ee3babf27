package vm

// Local variable loads and stores, iinc and the wide prefix.

func registerLocals() {
	type access struct {
		load, store   Opcode // indexed forms
		load0, store0 Opcode // _0.._3 forms
		wide          bool
	}
	for _, a := range []access{
		{OpIload, OpIstore, OpIload0, OpIstore0, false},
		{OpLload, OpLstore, OpLload0, OpLstore0, true},
		{OpFload, OpFstore, OpFload0, OpFstore0, false},
		{OpDload, OpDstore, OpDload0, OpDstore0, true},
		{OpAload, OpAstore, OpAload0, OpAstore0, false},
	} {
		wide := a.wide
		instructions[a.load] = func(t *Thread, f *JavaFrame) {
			load(f, int(f.u8(1)), wide)
			f.PC += 2
		}
		instructions[a.store] = func(t *Thread, f *JavaFrame) {
			store(f, int(f.u8(1)), wide)
			f.PC += 2
		}
		for n := 0; n < 4; n++ {
			index := n
			instructions[int(a.load0)+n] = func(t *Thread, f *JavaFrame) {
				load(f, index, wide)
				f.PC++
			}
			instructions[int(a.store0)+n] = func(t *Thread, f *JavaFrame) {
				store(f, index, wide)
				f.PC++
			}
		}
	}
	instructions[OpIinc] = func(t *Thread, f *JavaFrame) {
		index := int(f.u8(1))
		f.SetLocal(index, FromInt(f.Local(index).Int()+int32(f.i8(2))))
		f.PC += 3
	}
	instructions[OpWide] = opWide
}

func load(f *JavaFrame, index int, wide bool) {
	if wide {
		f.Push64(f.Local(index))
		return
	}
	f.Push(f.Local(index))
}

func store(f *JavaFrame, index int, wide bool) {
	if wide {
		f.SetLocal64(index, f.Pop64())
		return
	}
	f.SetLocal(index, f.Pop())
}

// opWide executes the wide form of a load, store, ret or iinc: the local
// index is 16 bits, as is the iinc constant.
func opWide(t *Thread, f *JavaFrame) {
	op := Opcode(f.u8(1))
	index := int(f.u16(2))
	switch op {
	case OpIload, OpFload, OpAload:
		load(f, index, false)
	case OpLload, OpDload:
		load(f, index, true)
	case OpIstore, OpFstore, OpAstore:
		store(f, index, false)
	case OpLstore, OpDstore:
		store(f, index, true)
	case OpRet:
		f.PC = f.Local(index).ReturnAddress()
		return
	case OpIinc:
		f.SetLocal(index, FromInt(f.Local(index).Int()+int32(f.i16(4))))
		f.PC += 6
		return
	default:
		panic(fault("wide applied to %s", op))
	}
	f.PC += 4
}
