package vm

// Constants: nop, aconst_null, xconst_n, bipush, sipush, ldc family.

func registerConstants() {
	instructions[OpNop] = func(t *Thread, f *JavaFrame) { f.PC++ }
	instructions[OpAconstNull] = func(t *Thread, f *JavaFrame) {
		f.Push(Null)
		f.PC++
	}
	for i := int32(-1); i <= 5; i++ {
		v := FromInt(i)
		instructions[int(OpIconst0)+int(i)] = func(t *Thread, f *JavaFrame) {
			f.Push(v)
			f.PC++
		}
	}
	for i := 0; i <= 1; i++ {
		v := FromLong(int64(i))
		instructions[int(OpLconst0)+i] = func(t *Thread, f *JavaFrame) {
			f.Push64(v)
			f.PC++
		}
	}
	for i := 0; i <= 2; i++ {
		v := FromFloat(float32(i))
		instructions[int(OpFconst0)+i] = func(t *Thread, f *JavaFrame) {
			f.Push(v)
			f.PC++
		}
	}
	for i := 0; i <= 1; i++ {
		v := FromDouble(float64(i))
		instructions[int(OpDconst0)+i] = func(t *Thread, f *JavaFrame) {
			f.Push64(v)
			f.PC++
		}
	}
	instructions[OpBipush] = func(t *Thread, f *JavaFrame) {
		f.Push(FromInt(int32(f.i8(1))))
		f.PC += 2
	}
	instructions[OpSipush] = func(t *Thread, f *JavaFrame) {
		f.Push(FromInt(int32(f.i16(1))))
		f.PC += 3
	}
	instructions[OpLdc] = func(t *Thread, f *JavaFrame) { t.ldc(f, uint16(f.u8(1)), 2) }
	instructions[OpLdcW] = func(t *Thread, f *JavaFrame) { t.ldc(f, f.u16(1), 3) }
	instructions[OpLdc2W] = func(t *Thread, f *JavaFrame) { t.ldc(f, f.u16(1), 3) }
}

// ldc pushes a loadable constant. Symbolic constants may defer while a
// method type, method handle or class mirror is linked.
func (t *Thread) ldc(f *JavaFrame, index uint16, length int) {
	v, ok := settled(t, t.resolveLoadable(f.Class.Pool, index, f.Class))
	if !ok {
		return
	}
	f.PushValue(v)
	f.PC += length
}
