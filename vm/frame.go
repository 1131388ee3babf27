package vm

import "encoding/binary"

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// Frame is one activation on a thread's stack: a *JavaFrame executing
// bytecode or an *InternalFrame holding a host continuation.
type Frame interface {
	frame()
}

// JavaFrame is the activation of a bytecode method.
type JavaFrame struct {
	Method *Method
	Class  *Class
	Locals []Value
	Stack  []Value // operand stack, bottom first
	PC     int

	maxStack       int
	returnPC       int     // pc to resume at when the pending invoke returns
	awaitingNative bool    // an async native call is outstanding
	locked         *Object // monitor held for a synchronized method
	pendingLock    *Object // monitor to acquire before the first instruction
}

func (*JavaFrame) frame() {}

// NewJavaFrame creates a frame for m with zeroed locals. There are always
// enough locals for the arguments.
func NewJavaFrame(m *Method) *JavaFrame {
	locals := m.MaxLocals
	if m.Sig != nil && m.ParamSlots() > locals {
		locals = m.ParamSlots()
	}
	return &JavaFrame{
		Method:   m,
		Class:    m.DeclaringClass(),
		Locals:   make([]Value, locals),
		Stack:    make([]Value, 0, m.MaxStack),
		maxStack: m.MaxStack,
		returnPC: -1,
	}
}

// Depth returns the number of occupied operand stack slots.
func (f *JavaFrame) Depth() int { return len(f.Stack) }

// MaxStack returns the operand stack budget.
func (f *JavaFrame) MaxStack() int { return f.maxStack }

// Push pushes a one-slot value.
func (f *JavaFrame) Push(v Value) {
	if len(f.Stack) >= f.maxStack {
		panic(operandOverflow{})
	}
	f.Stack = append(f.Stack, v)
}

// Push64 pushes a two-slot value; both slots hold v.
func (f *JavaFrame) Push64(v Value) {
	if len(f.Stack)+2 > f.maxStack {
		panic(operandOverflow{})
	}
	f.Stack = append(f.Stack, v, v)
}

// PushValue pushes v using one or two slots according to its kind.
func (f *JavaFrame) PushValue(v Value) {
	if v.IsWide() {
		f.Push64(v)
		return
	}
	f.Push(v)
}

// Pop removes a one-slot value.
func (f *JavaFrame) Pop() Value {
	n := len(f.Stack)
	if n == 0 {
		panic(fault("operand stack underflow"))
	}
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return v
}

// Pop64 removes a two-slot value.
func (f *JavaFrame) Pop64() Value {
	n := len(f.Stack)
	if n < 2 {
		panic(fault("operand stack underflow"))
	}
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-2]
	return v
}

// Peek returns the value depth slots below the top (0 is the top).
func (f *JavaFrame) Peek(depth int) Value {
	i := len(f.Stack) - 1 - depth
	if i < 0 {
		panic(fault("operand stack underflow"))
	}
	return f.Stack[i]
}

// popSlots removes and returns the top n slots, bottom first.
func (f *JavaFrame) popSlots(n int) []Value {
	if len(f.Stack) < n {
		panic(fault("operand stack underflow"))
	}
	out := make([]Value, n)
	copy(out, f.Stack[len(f.Stack)-n:])
	f.Stack = f.Stack[:len(f.Stack)-n]
	return out
}

// Local returns local slot i.
func (f *JavaFrame) Local(i int) Value {
	if i < 0 || i >= len(f.Locals) {
		panic(fault("local %d out of range (max %d)", i, len(f.Locals)))
	}
	return f.Locals[i]
}

// SetLocal stores a one-slot value.
func (f *JavaFrame) SetLocal(i int, v Value) {
	if i < 0 || i >= len(f.Locals) {
		panic(fault("local %d out of range (max %d)", i, len(f.Locals)))
	}
	f.Locals[i] = v
}

// SetLocal64 stores a two-slot value in slots i and i+1.
func (f *JavaFrame) SetLocal64(i int, v Value) {
	if i < 0 || i+1 >= len(f.Locals) {
		panic(fault("local %d out of range (max %d)", i, len(f.Locals)))
	}
	f.Locals[i] = v
	f.Locals[i+1] = v
}

// completeInvoke resumes f after the call it was waiting on returned v.
func (f *JavaFrame) completeInvoke(v Value) {
	if f.returnPC >= 0 {
		f.PC = f.returnPC
	}
	f.returnPC = -1
	f.awaitingNative = false
	if !v.IsVoid() {
		f.PushValue(v)
	}
}

// Bytecode operand readers, relative to the current pc.

func (f *JavaFrame) u8(off int) uint8 {
	return f.Method.Code[f.PC+off]
}

func (f *JavaFrame) i8(off int) int8 {
	return int8(f.Method.Code[f.PC+off])
}

func (f *JavaFrame) u16(off int) uint16 {
	return binary.BigEndian.Uint16(f.Method.Code[f.PC+off:])
}

func (f *JavaFrame) i16(off int) int16 {
	return int16(f.u16(off))
}

// i32At reads a big-endian int32 at an absolute code position.
func (f *JavaFrame) i32At(pos int) int32 {
	return int32(binary.BigEndian.Uint32(f.Method.Code[pos:]))
}

// InternalFrame is a host continuation on the thread stack. When the frame
// above it returns, OnReturn receives the value; when an exception unwinds
// through it, OnError receives the exception and reports whether it
// handled it (stopping the unwind).
type InternalFrame struct {
	Name     string
	Locals   []Value
	OnReturn func(t *Thread, v Value)
	OnError  func(t *Thread, exc *Object) bool
}

func (*InternalFrame) frame() {}
