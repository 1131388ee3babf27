package vm

// ---------------------------------------------------------------------------
// Native bridge
// ---------------------------------------------------------------------------

// NativeFunc implements a native method. args holds the argument slots as
// they would be laid out in locals: the receiver first for instance
// methods, and two copies of each long or double.
type NativeFunc func(t *Thread, args []Value) NativeResult

type nativeOutcome uint8

const (
	nativeValue nativeOutcome = iota
	nativeThrow
	nativeRetry
	nativeAsync
)

// NativeResult is what a native call produced.
type NativeResult struct {
	outcome nativeOutcome
	value   Value
	err     *Throwable
}

// Value returns the value a completed native produced.
func (r NativeResult) Value() Value { return r.value }

// Err returns the exception a throwing native raised, or nil.
func (r NativeResult) Err() *Throwable { return r.err }

// NativeReturn returns v to the caller.
func NativeReturn(v Value) NativeResult { return NativeResult{value: v} }

// NativeVoid returns from a void native.
func NativeVoid() NativeResult { return NativeResult{value: Void} }

// NativeThrow throws an existing exception object.
func NativeThrow(exc *Object) NativeResult {
	return NativeResult{outcome: nativeThrow, err: ThrowableOf(exc)}
}

// NativeRaise throws a new exception of the named class.
func NativeRaise(class, format string, args ...any) NativeResult {
	return NativeResult{outcome: nativeThrow, err: NewThrowable(class, format, args...)}
}

// NativeError throws the exception e describes.
func NativeError(e *Throwable) NativeResult {
	return NativeResult{outcome: nativeThrow, err: e}
}

// NativeRetry re-executes the invoke instruction later. The native must
// have parked the thread (or pushed frames) before returning it.
func NativeRetry() NativeResult { return NativeResult{outcome: nativeRetry} }

// NativeAsync suspends the caller until Thread.CompleteNative or
// Thread.FailNative is called. A native that pushed frames of its own
// keeps the thread runnable so they execute first.
func NativeAsync() NativeResult { return NativeResult{outcome: nativeAsync} }

// NativeResolver binds native methods to implementations. A Failure
// result carries the error to raise (UnsatisfiedLinkError when the method
// is unknown); Defer retries the invoke once the thread runs again.
type NativeResolver interface {
	ResolveNative(className, nameAndDescriptor string) Result[NativeFunc]
}

// NativeMap is a fixed NativeResolver keyed by "class.name(desc)ret".
type NativeMap map[string]NativeFunc

// ResolveNative implements NativeResolver.
func (nm NativeMap) ResolveNative(className, nameAndDescriptor string) Result[NativeFunc] {
	if fn, ok := nm[className+"."+nameAndDescriptor]; ok {
		return Success(fn)
	}
	return Failure[NativeFunc](NewThrowable(UnsatisfiedLinkError, "%s.%s", JavaName(className), nameAndDescriptor))
}

// NativeChain consults each resolver in order, stopping at the first one
// that does not report UnsatisfiedLinkError.
type NativeChain []NativeResolver

// ResolveNative implements NativeResolver.
func (nc NativeChain) ResolveNative(className, nameAndDescriptor string) Result[NativeFunc] {
	for _, r := range nc {
		if r == nil {
			continue
		}
		res := r.ResolveNative(className, nameAndDescriptor)
		if res.IsFailure() && res.Err().ClassName() == UnsatisfiedLinkError {
			continue
		}
		return res
	}
	return Failure[NativeFunc](NewThrowable(UnsatisfiedLinkError, "%s.%s", JavaName(className), nameAndDescriptor))
}

// bindNative returns m's implementation, resolving and caching it on
// first use.
func (vm *VM) bindNative(m *Method) Result[NativeFunc] {
	if m.native != nil {
		return Success(m.native)
	}
	r := vm.natives.ResolveNative(m.DeclaringClass().Name, m.NameAndDescriptor())
	if r.IsSuccess() {
		if r.Value() == nil {
			return Failure[NativeFunc](NewThrowable(UnsatisfiedLinkError, "%s", m))
		}
		m.native = r.Value()
	} else if r.IsFailure() {
		vm.log.Warningf("unsatisfied native %s: %s", m, r.Err())
	}
	return r
}

// invokeNative runs native m called from frame f by an instruction of the
// given length. args have already been popped from f.
func (t *Thread) invokeNative(f *JavaFrame, m *Method, args []Value, length int) {
	bound := t.vm.bindNative(m)
	switch bound.Type() {
	case ResultFailure:
		t.ThrowError(bound.Err())
		return
	case ResultDefer:
		f.Stack = append(f.Stack, args...)
		return
	}
	depth := len(t.frames)
	res := bound.Value()(t, args)
	switch res.outcome {
	case nativeValue:
		f.returnPC = f.PC + length
		f.completeInvoke(res.value)
	case nativeThrow:
		t.ThrowError(res.err)
	case nativeRetry:
		f.Stack = append(f.Stack, args...)
	case nativeAsync:
		f.returnPC = f.PC + length
		f.awaitingNative = true
		if len(t.frames) == depth && t.status == ThreadRunnable {
			t.Block(ThreadWaiting, "native "+m.Name)
		}
	}
}

// callNative runs native m on behalf of the host, with no calling Java
// frame. Only immediate outcomes are supported.
func (t *Thread) callNative(m *Method, args []Value) bool {
	bound := t.vm.bindNative(m)
	if !bound.IsSuccess() {
		if bound.IsFailure() {
			t.ThrowError(bound.Err())
		}
		return false
	}
	res := bound.Value()(t, args)
	switch res.outcome {
	case nativeValue:
		t.deliver(res.value)
		return true
	case nativeThrow:
		t.ThrowError(res.err)
		return false
	}
	panic(fault("native %s cannot suspend when called from the host", m))
}

// Async runs work on a new goroutine and completes t's pending native
// call with its outcome on the scheduler goroutine. Natives return its
// result directly.
func (vm *VM) Async(t *Thread, work func() (Value, *Throwable)) NativeResult {
	vm.sched.pending.Add(1)
	go func() {
		v, err := work()
		vm.sched.posted <- func() {
			vm.sched.pending.Add(-1)
			if ferr := t.protect(func() {
				if err != nil {
					t.FailNative(t.materialize(err))
					return
				}
				t.CompleteNative(v)
			}); ferr != nil {
				vm.log.Errorf("async completion: %s", ferr)
			}
		}
	}()
	return NativeAsync()
}

// InvokeThen calls m from inside a native running on t. args hold one
// value per parameter, the receiver first for instance methods. When m
// returns, then's result finishes the native; an exception thrown by m
// propagates to the native's caller. Natives return InvokeThen's result
// directly.
func (t *Thread) InvokeThen(m *Method, args []Value, then func(t *Thread, v Value) NativeResult) NativeResult {
	if m.IsNative() {
		bound := t.vm.bindNative(m)
		switch bound.Type() {
		case ResultFailure:
			return NativeError(bound.Err())
		case ResultDefer:
			return NativeRetry()
		}
		res := bound.Value()(t, slotsOf(args))
		if res.outcome != nativeValue {
			return res
		}
		return then(t, res.value)
	}
	t.Upcall(m.Name, m, args, func(t *Thread, v Value) { t.finishNative(then(t, v)) }, nil)
	return NativeAsync()
}

// InvokeVirtual is InvokeThen for the implementation of name+descriptor
// selected by obj's class.
func (t *Thread) InvokeVirtual(obj *Object, name, descriptor string, args []Value, then func(t *Thread, v Value) NativeResult) NativeResult {
	m := obj.Class().FindMethod(name, descriptor)
	if m == nil || m.IsAbstract() {
		r := superinterfaceMethod(obj.Class(), name, descriptor)
		if !r.IsSuccess() {
			return NativeError(r.Err())
		}
		m = r.Value()
	}
	return t.InvokeThen(m, append([]Value{FromRef(obj)}, args...), then)
}

// finishNative completes the pending native call on t with r.
func (t *Thread) finishNative(r NativeResult) {
	switch r.outcome {
	case nativeValue:
		t.CompleteNative(r.value)
	case nativeThrow:
		t.FailNative(t.materialize(r.err))
	case nativeAsync:
		// another continuation is pending
	default:
		panic(fault("native continuation cannot retry"))
	}
}
