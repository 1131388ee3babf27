package vm

// Operand stack manipulation. These work on raw slots; a long or double
// occupies two.

func registerStack() {
	instructions[OpPop] = func(t *Thread, f *JavaFrame) {
		f.Pop()
		f.PC++
	}
	instructions[OpPop2] = func(t *Thread, f *JavaFrame) {
		f.popSlots(2)
		f.PC++
	}
	instructions[OpDup] = func(t *Thread, f *JavaFrame) {
		f.Push(f.Peek(0))
		f.PC++
	}
	instructions[OpDupX1] = func(t *Thread, f *JavaFrame) {
		s := f.popSlots(2)
		pushSlots(f, s[1], s[0], s[1])
	}
	instructions[OpDupX2] = func(t *Thread, f *JavaFrame) {
		s := f.popSlots(3)
		pushSlots(f, s[2], s[0], s[1], s[2])
	}
	instructions[OpDup2] = func(t *Thread, f *JavaFrame) {
		s := f.popSlots(2)
		pushSlots(f, s[0], s[1], s[0], s[1])
	}
	instructions[OpDup2X1] = func(t *Thread, f *JavaFrame) {
		s := f.popSlots(3)
		pushSlots(f, s[1], s[2], s[0], s[1], s[2])
	}
	instructions[OpDup2X2] = func(t *Thread, f *JavaFrame) {
		s := f.popSlots(4)
		pushSlots(f, s[2], s[3], s[0], s[1], s[2], s[3])
	}
	instructions[OpSwap] = func(t *Thread, f *JavaFrame) {
		s := f.popSlots(2)
		pushSlots(f, s[1], s[0])
	}
}

// pushSlots pushes raw slots bottom first and advances past the
// one-byte instruction.
func pushSlots(f *JavaFrame, slots ...Value) {
	for _, v := range slots {
		f.Push(v)
	}
	f.PC++
}
