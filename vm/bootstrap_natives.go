package vm

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf16"
)

// builtinNatives implements the natives of the bootstrap classes that
// reach into runtime internals: identity, monitors, threads, mirrors,
// backtraces and string contents. Printing, System and the raw float bit
// conversions are left to a host library.
func (vm *VM) builtinNatives() NativeMap {
	return NativeMap{
		// Object
		"java/lang/Object.hashCode()I": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromInt(args[0].Ref().IdentityHash()))
		},
		"java/lang/Object.getClass()Ljava/lang/Class;": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromRef(vm.Mirror(args[0].Ref().Class())))
		},
		"java/lang/Object.clone()Ljava/lang/Object;": func(t *Thread, args []Value) NativeResult {
			o := args[0].Ref()
			if !o.IsArray() && !o.Class().Implements(vm.CloneableClass) {
				return NativeRaise(CloneNotSupportedException, "%s", JavaName(o.Class().Name))
			}
			return NativeReturn(FromRef(o.Clone()))
		},
		"java/lang/Object.toString()Ljava/lang/String;": func(t *Thread, args []Value) NativeResult {
			o := args[0].Ref()
			return NativeReturn(FromRef(vm.NewString(fmt.Sprintf("%s@%x", JavaName(o.Class().Name), uint32(o.IdentityHash())))))
		},
		"java/lang/Object.wait()V": func(t *Thread, args []Value) NativeResult {
			return objectWait(t, args[0].Ref(), 0)
		},
		"java/lang/Object.wait(J)V": func(t *Thread, args []Value) NativeResult {
			ms := args[1].Long()
			if ms < 0 {
				return NativeRaise(IllegalArgumentException, "timeout value is negative")
			}
			return objectWait(t, args[0].Ref(), time.Duration(ms)*time.Millisecond)
		},
		"java/lang/Object.notify()V": func(t *Thread, args []Value) NativeResult {
			if !args[0].Ref().Monitor().Notify(t) {
				return NativeRaise(IllegalMonitorStateException, "current thread is not owner")
			}
			return NativeVoid()
		},
		"java/lang/Object.notifyAll()V": func(t *Thread, args []Value) NativeResult {
			if !args[0].Ref().Monitor().NotifyAll(t) {
				return NativeRaise(IllegalMonitorStateException, "current thread is not owner")
			}
			return NativeVoid()
		},

		// Class
		"java/lang/Class.getName()Ljava/lang/String;": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromRef(vm.Intern(JavaName(mirrored(args).Name))))
		},
		"java/lang/Class.getSuperclass()Ljava/lang/Class;": func(t *Thread, args []Value) NativeResult {
			c := mirrored(args)
			if c.Super == nil || c.IsInterface() {
				return NativeReturn(Null)
			}
			return NativeReturn(FromRef(vm.Mirror(c.Super)))
		},
		"java/lang/Class.isArray()Z": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromBool(mirrored(args).IsArray()))
		},
		"java/lang/Class.isInterface()Z": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromBool(mirrored(args).IsInterface()))
		},
		"java/lang/Class.isPrimitive()Z": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromBool(mirrored(args).IsPrimitive()))
		},
		"java/lang/Class.isInstance(Ljava/lang/Object;)Z": func(t *Thread, args []Value) NativeResult {
			if args[1].IsNull() {
				return NativeReturn(FromInt(0))
			}
			return NativeReturn(FromBool(args[1].Ref().Class().IsAssignableTo(mirrored(args))))
		},

		// Throwable
		"java/lang/Throwable.fillInStackTrace()Ljava/lang/Throwable;": func(t *Thread, args []Value) NativeResult {
			exc := args[0].Ref()
			trace := t.Backtrace()
			for len(trace) > 0 && (trace[0].Method == "<init>" || trace[0].Method == "fillInStackTrace") {
				trace = trace[1:]
			}
			exc.Payload = trace
			return NativeReturn(args[0])
		},
		"java/lang/Throwable.toString()Ljava/lang/String;": func(t *Thread, args []Value) NativeResult {
			exc := args[0].Ref()
			s := JavaName(exc.Class().Name)
			if msg := vm.ExceptionMessage(exc); msg != "" {
				s += ": " + msg
			}
			return NativeReturn(FromRef(vm.NewString(s)))
		},
		"java/lang/Throwable.printStackTrace()V": func(t *Thread, args []Value) NativeResult {
			fmt.Fprintln(vm.stderr, vm.FormatException(args[0].Ref()))
			return NativeVoid()
		},

		// String
		"java/lang/String.length()I": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromInt(int32(len(vm.utf16Of(args[0].Ref())))))
		},
		"java/lang/String.charAt(I)C": func(t *Thread, args []Value) NativeResult {
			units := vm.utf16Of(args[0].Ref())
			i := args[1].Int()
			if i < 0 || int(i) >= len(units) {
				return NativeRaise(StringIndexOutOfBoundsException, "Index %d out of bounds for length %d", i, len(units))
			}
			return NativeReturn(FromInt(int32(units[i])))
		},
		"java/lang/String.equals(Ljava/lang/Object;)Z": func(t *Thread, args []Value) NativeResult {
			other := args[1].Ref()
			if other == nil || other.Class() != vm.StringClass {
				return NativeReturn(FromInt(0))
			}
			return NativeReturn(FromBool(vm.GoString(args[0].Ref()) == vm.GoString(other)))
		},
		"java/lang/String.hashCode()I": func(t *Thread, args []Value) NativeResult {
			var h int32
			for _, u := range vm.utf16Of(args[0].Ref()) {
				h = 31*h + int32(u)
			}
			return NativeReturn(FromInt(h))
		},
		"java/lang/String.concat(Ljava/lang/String;)Ljava/lang/String;": func(t *Thread, args []Value) NativeResult {
			if args[1].IsNull() {
				return NativeRaise(NullPointerException, "Cannot concatenate a null string")
			}
			return NativeReturn(FromRef(vm.NewString(vm.GoString(args[0].Ref()) + vm.GoString(args[1].Ref()))))
		},
		"java/lang/String.intern()Ljava/lang/String;": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromRef(vm.Intern(vm.GoString(args[0].Ref()))))
		},
		"java/lang/String.valueOf(I)Ljava/lang/String;": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromRef(vm.NewString(strconv.Itoa(int(args[0].Int())))))
		},
		"java/lang/String.valueOf(J)Ljava/lang/String;": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromRef(vm.NewString(strconv.FormatInt(args[0].Long(), 10))))
		},

		// Thread
		"java/lang/Thread.currentThread()Ljava/lang/Thread;": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromRef(t.object))
		},
		"java/lang/Thread.yield()V": func(t *Thread, args []Value) NativeResult {
			t.Yield()
			return NativeVoid()
		},
		"java/lang/Thread.sleep(J)V":     threadSleep,
		"java/lang/Thread.interrupted()Z": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromBool(t.takeInterrupt()))
		},
		"java/lang/Thread.start()V": func(t *Thread, args []Value) NativeResult {
			obj := args[0].Ref()
			nt := vm.threadOf(obj)
			if nt.status != ThreadNew {
				return NativeRaise(IllegalThreadStateException, "%s already started", nt.Name)
			}
			nt.Daemon = obj.GetNamed("daemon").Bool()
			run := obj.Class().FindMethod("run", "()V")
			if run == nil {
				return NativeRaise(AbstractMethodError, "%s.run()V", JavaName(obj.Class().Name))
			}
			if err := vm.Start(nt, run, FromRef(obj)); err != nil {
				return NativeRaise(IllegalThreadStateException, "%v", err)
			}
			return NativeVoid()
		},
		"java/lang/Thread.join()V": func(t *Thread, args []Value) NativeResult {
			return threadJoin(t, vm.threadOf(args[0].Ref()))
		},
		"java/lang/Thread.isAlive()Z": func(t *Thread, args []Value) NativeResult {
			s := vm.threadOf(args[0].Ref()).status
			return NativeReturn(FromBool(s != ThreadNew && s != ThreadTerminated))
		},
		"java/lang/Thread.interrupt()V": func(t *Thread, args []Value) NativeResult {
			vm.threadOf(args[0].Ref()).Interrupt()
			return NativeVoid()
		},
		"java/lang/Thread.isInterrupted()Z": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromBool(vm.threadOf(args[0].Ref()).interrupted))
		},
		"java/lang/Thread.setDaemon(Z)V": func(t *Thread, args []Value) NativeResult {
			nt := vm.threadOf(args[0].Ref())
			if nt.status != ThreadNew && nt.status != ThreadTerminated {
				return NativeRaise(IllegalThreadStateException, "%s is alive", nt.Name)
			}
			args[0].Ref().SetNamed("daemon", FromBool(args[1].Bool()))
			nt.Daemon = args[1].Bool()
			return NativeVoid()
		},
		"java/lang/Thread.isDaemon()Z": func(t *Thread, args []Value) NativeResult {
			return NativeReturn(FromBool(vm.threadOf(args[0].Ref()).Daemon))
		},
	}
}

func mirrored(args []Value) *Class {
	c := ClassOfMirror(args[0].Ref())
	if c == nil {
		panic(fault("Class native called on a non-mirror"))
	}
	return c
}

func (vm *VM) utf16Of(o *Object) []uint16 {
	return utf16.Encode([]rune(vm.GoString(o)))
}

// interruptedOr finishes a parked native: with InterruptedException when
// t was interrupted meanwhile, normally otherwise.
func interruptedOr(what string) func(t *Thread) {
	return func(t *Thread) {
		if t.takeInterrupt() {
			t.FailNative(t.materialize(NewThrowable(InterruptedException, "%s interrupted", what)))
			return
		}
		t.CompleteNative(Void)
	}
}

func objectWait(t *Thread, o *Object, timeout time.Duration) NativeResult {
	if t.takeInterrupt() {
		return NativeRaise(InterruptedException, "wait interrupted")
	}
	if !o.Monitor().Wait(t, timeout, interruptedOr("wait")) {
		return NativeRaise(IllegalMonitorStateException, "current thread is not owner")
	}
	return NativeAsync()
}

func threadSleep(t *Thread, args []Value) NativeResult {
	ms := args[0].Long()
	if ms < 0 {
		return NativeRaise(IllegalArgumentException, "timeout value is negative")
	}
	if t.takeInterrupt() {
		return NativeRaise(InterruptedException, "sleep interrupted")
	}
	t.Sleep(time.Duration(ms)*time.Millisecond, interruptedOr("sleep"))
	return NativeAsync()
}

// threadJoin parks t in the wait set of target's Thread object until
// target terminates, then retries the call.
func threadJoin(t *Thread, target *Thread) NativeResult {
	mon := target.object.Monitor()
	mon.removeWaiter(t)
	if t.takeInterrupt() {
		return NativeRaise(InterruptedException, "join interrupted")
	}
	if target.status == ThreadNew || target.status == ThreadTerminated || target == t {
		return NativeVoid()
	}
	mon.waiters = append(mon.waiters, t)
	t.Block(ThreadWaiting, "join")
	return NativeRetry()
}
