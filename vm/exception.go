package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Exception dispatch
// ---------------------------------------------------------------------------

// StackElement is one entry of a captured backtrace.
type StackElement struct {
	Class  string
	Method string
	Source string
	PC     int
}

func (e StackElement) String() string {
	src := e.Source
	if src == "" {
		src = "Unknown Source"
	}
	return fmt.Sprintf("%s.%s(%s, pc %d)", JavaName(e.Class), e.Method, src, e.PC)
}

// Raise throws a new exception of the named class on t.
func (t *Thread) Raise(class, format string, args ...any) {
	t.ThrowError(NewThrowable(class, format, args...))
}

// ThrowError throws the exception e describes on t.
func (t *Thread) ThrowError(e *Throwable) {
	t.Throw(t.materialize(e))
}

// materialize returns the exception object e stands for, allocating it if
// e only names a class.
func (t *Thread) materialize(e *Throwable) *Object {
	if e.Object != nil {
		return e.Object
	}
	return t.vm.newException(t, e.Class, e.Message)
}

// newException allocates an exception with its detail message and a
// backtrace of t. Constructors are not run.
func (vm *VM) newException(t *Thread, class, message string) *Object {
	r := vm.LoadClass(class)
	if !r.IsSuccess() || !r.Value().IsSubclassOf(vm.ThrowableClass) {
		vm.log.Warningf("cannot raise %s: %v", class, r.Err())
		message = JavaName(class) + ": " + message
		r = vm.LoadClass(InternalError)
		if !r.IsSuccess() {
			panic(fault("cannot raise %s: %s", class, message))
		}
	}
	exc := NewObject(r.Value())
	if message != "" {
		exc.SetNamed("detailMessage", FromRef(vm.Intern(message)))
	}
	if t != nil {
		exc.Payload = t.Backtrace()
	}
	return exc
}

// Backtrace captures the Java frames of t, innermost first.
func (t *Thread) Backtrace() []StackElement {
	out := make([]StackElement, 0, len(t.frames))
	for i := len(t.frames) - 1; i >= 0; i-- {
		if jf, ok := t.frames[i].(*JavaFrame); ok {
			out = append(out, StackElement{
				Class:  jf.Class.Name,
				Method: jf.Method.Name,
				Source: jf.Class.SourceFile,
				PC:     jf.PC,
			})
		}
	}
	return out
}

// Throw unwinds t's frames looking for a handler for exc. Internal frames
// are popped after their error callback runs, and may stop the unwind.
// A Java frame with a matching handler resumes at the handler with exc as
// its only operand. If nothing catches exc it goes to the thread's
// uncaught-exception dispatch.
func (t *Thread) Throw(exc *Object) {
	for len(t.frames) > 0 {
		top := t.frames[len(t.frames)-1]
		switch f := top.(type) {
		case *InternalFrame:
			t.frames = t.frames[:len(t.frames)-1]
			if f.OnError != nil && f.OnError(t, exc) {
				return
			}
		case *JavaFrame:
			if pc, ok := t.findHandler(f, exc); ok {
				f.Stack = append(f.Stack[:0], FromRef(exc))
				f.PC = pc
				f.returnPC = -1
				f.awaitingNative = false
				return
			}
			t.frames = t.frames[:len(t.frames)-1]
			if f.locked != nil {
				f.locked.Monitor().Exit(t)
			}
		}
	}
	t.uncaught(exc)
}

// findHandler scans f's exception table for the first entry covering the
// current pc whose catch type exc is assignable to.
func (t *Thread) findHandler(f *JavaFrame, exc *Object) (int, bool) {
	for _, h := range f.Method.Handlers {
		if f.PC < h.StartPC || f.PC >= h.EndPC {
			continue
		}
		if h.CatchType == 0 {
			return h.HandlerPC, true
		}
		r := t.vm.ResolveClass(f.Class.Pool, h.CatchType, f.Class)
		if !r.IsSuccess() {
			t.vm.log.Warningf("%s: skipping handler at %d: %s", f.Method, h.HandlerPC, r.Err())
			continue
		}
		if exc.Class().IsAssignableTo(r.Value()) {
			return h.HandlerPC, true
		}
	}
	return 0, false
}

// uncaught runs once the stack is empty. When the thread class defines
// dispatchUncaughtException it is run first; the host is told about the
// exception and the thread terminates.
func (t *Thread) uncaught(exc *Object) {
	if !t.dispatching && t.object != nil {
		if m := t.object.Class().FindMethod(uncaughtDispatchName, uncaughtDispatchDescriptor); m != nil && !m.IsStatic() {
			t.dispatching = true
			t.PushInternal(&InternalFrame{
				Name: "uncaught exception",
				OnReturn: func(t *Thread, _ Value) {
					t.vm.notifyUncaught(t, exc)
					t.terminate()
				},
				OnError: func(t *Thread, _ *Object) bool {
					t.vm.notifyUncaught(t, exc)
					t.terminate()
					return true
				},
			})
			t.PushFrame(m, []Value{FromRef(t.object), FromRef(exc)})
			return
		}
	}
	t.vm.notifyUncaught(t, exc)
	t.terminate()
}

func (vm *VM) notifyUncaught(t *Thread, exc *Object) {
	vm.log.Infof("uncaught %s in %s", exc.Class().Name, t.Name)
	vm.host.OnUncaught(t, exc)
}

// ExceptionMessage returns the detail message of an exception object.
func (vm *VM) ExceptionMessage(exc *Object) string {
	v := exc.GetNamed("detailMessage")
	if v.Kind() != KindRef || v.IsNull() {
		return ""
	}
	return vm.GoString(v.Ref())
}

// FormatException renders exc the way a Java stack trace starts:
// the class name, the message and one "at" line per captured frame.
func (vm *VM) FormatException(exc *Object) string {
	var b strings.Builder
	b.WriteString(JavaName(exc.Class().Name))
	if msg := vm.ExceptionMessage(exc); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if trace, ok := exc.Payload.([]StackElement); ok {
		for _, e := range trace {
			b.WriteString("\n\tat ")
			b.WriteString(e.String())
		}
	}
	return b.String()
}
