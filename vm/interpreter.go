package vm

// ---------------------------------------------------------------------------
// Interpreter: instruction dispatch
// ---------------------------------------------------------------------------

// instruction executes the opcode at f.PC. It advances f.PC on completion;
// an instruction that leaves f.PC unchanged without throwing is re-executed
// the next time the thread runs (the Defer protocol).
type instruction func(t *Thread, f *JavaFrame)

// instructions is the dispatch table indexed by opcode. Every opcode in
// opcodeTable has an entry; the rest stay nil and fault.
var instructions [256]instruction

func init() {
	registerConstants()
	registerLocals()
	registerArrays()
	registerStack()
	registerMath()
	registerControl()
	registerObjects()
}

// step executes one instruction of the top frame.
func (t *Thread) step() {
	f := t.CurrentFrame()
	if f == nil {
		panic(fault("step with no Java frame on top"))
	}
	if f.pendingLock != nil {
		if !f.pendingLock.Monitor().Enter(t) {
			return
		}
		f.locked, f.pendingLock = f.pendingLock, nil
	}
	if f.awaitingNative {
		panic(fault("step while a native call is pending"))
	}
	if f.PC < 0 || f.PC >= len(f.Method.Code) {
		panic(fault("pc %d outside code of length %d", f.PC, len(f.Method.Code)))
	}
	op := f.Method.Code[f.PC]
	fn := instructions[op]
	if fn == nil {
		panic(fault("unknown opcode 0x%02x", op))
	}
	fn(t, f)
}

// Step executes one instruction on t outside the scheduler. It reports a
// Fault as an error; guest exceptions are thrown on t as usual.
func (t *Thread) Step() error {
	return t.protect(t.step)
}

// settled unwraps r for an instruction: a Failure is thrown on t, and both
// Failure and Defer report false so the instruction returns without
// advancing.
func settled[T any](t *Thread, r Result[T]) (T, bool) {
	switch r.Type() {
	case ResultFailure:
		t.ThrowError(r.Err())
		var zero T
		return zero, false
	case ResultDefer:
		var zero T
		return zero, false
	}
	return r.Value(), true
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// call transfers control from f to m with args already popped. The
// instruction that called has the given length; f resumes after it when
// m returns.
func (t *Thread) call(f *JavaFrame, m *Method, args []Value, length int) {
	if m.IsNative() {
		t.invokeNative(f, m, args, length)
		return
	}
	if m.IsAbstract() {
		t.Raise(AbstractMethodError, "%s", m)
		return
	}
	if len(t.frames) >= t.vm.maxFrameDepth {
		t.Raise(StackOverflowError, "")
		return
	}
	nf := NewJavaFrame(m)
	copy(nf.Locals, args)
	if m.Access.IsSynchronized() {
		nf.pendingLock = t.methodLock(m, args)
	}
	f.returnPC = f.PC + length
	t.frames = append(t.frames, nf)
}

// methodLock returns the monitor a synchronized method holds: the
// receiver's, or the class mirror's for static methods.
func (t *Thread) methodLock(m *Method, args []Value) *Object {
	if m.IsStatic() {
		return t.vm.Mirror(m.DeclaringClass())
	}
	if len(args) == 0 || args[0].IsNull() {
		panic(fault("synchronized %s called without a receiver", m))
	}
	return args[0].Ref()
}

// dispatch selects the implementation of resolved for receiver through the
// call-site cache at f.PC. A pc always names the same resolved method, so
// the cache is keyed by receiver class alone.
func (t *Thread) dispatch(f *JavaFrame, resolved *Method, receiver *Class) (*Method, bool) {
	ic := f.Method.InlineCaches().GetOrCreate(f.PC)
	if m := ic.Lookup(receiver); m != nil {
		return m, true
	}
	m, ok := settled(t, t.vm.selectVirtual(resolved, receiver))
	if ok {
		ic.Update(receiver, m)
	}
	return m, ok
}
