package native

import (
	"math"
	"time"

	"github.com/chazu/jolt/vm"
)

const (
	systemClass = "java/lang/System"
	printStream = "java/io/PrintStream"
)

var started = time.Now()

func (l *Library) registerSystem() {
	l.Register(systemClass, "initStreams()V", initStreams)
	l.Register(systemClass, "arraycopy(Ljava/lang/Object;ILjava/lang/Object;II)V", arraycopy)
	l.Register(systemClass, "identityHashCode(Ljava/lang/Object;)I", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		if args[0].IsNull() {
			return vm.NativeReturn(vm.FromInt(0))
		}
		return vm.NativeReturn(vm.FromInt(args[0].Ref().IdentityHash()))
	})
	l.Register(systemClass, "currentTimeMillis()J", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return vm.NativeReturn(vm.FromLong(time.Now().UnixMilli()))
	})
	l.Register(systemClass, "nanoTime()J", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return vm.NativeReturn(vm.FromLong(int64(time.Since(started))))
	})
}

// initStreams creates System.out and System.err over the runtime's
// output writers.
func initStreams(t *vm.Thread, args []vm.Value) vm.NativeResult {
	machine := t.VM()
	ps := machine.LoadClass(printStream)
	if !ps.IsSuccess() {
		if ps.IsDefer() {
			return vm.NativeRetry()
		}
		return vm.NativeError(ps.Err())
	}
	sys := machine.Classes.Lookup(systemClass)
	for name, w := range map[string]any{"out": machine.Stdout(), "err": machine.Stderr()} {
		stream := vm.NewObject(ps.Value())
		stream.Payload = w
		if f := sys.FieldByName(name); f != nil {
			sys.SetStaticValue(f, vm.FromRef(stream))
		}
	}
	return vm.NativeVoid()
}

// arraycopy copies between arrays with the JDK's checks. Overlapping
// ranges within one array copy as if through a temporary.
func arraycopy(t *vm.Thread, args []vm.Value) vm.NativeResult {
	if args[0].IsNull() || args[2].IsNull() {
		return vm.NativeRaise(vm.NullPointerException, "arraycopy: null array")
	}
	src, dst := args[0].Ref(), args[2].Ref()
	srcPos, dstPos, n := int(args[1].Int()), int(args[3].Int()), int(args[4].Int())
	if !src.IsArray() {
		return vm.NativeRaise(vm.ArrayStoreException, "arraycopy: source type %s is not an array", vm.JavaName(src.Class().Name))
	}
	if !dst.IsArray() {
		return vm.NativeRaise(vm.ArrayStoreException, "arraycopy: destination type %s is not an array", vm.JavaName(dst.Class().Name))
	}
	sc, dc := src.Class().Component, dst.Class().Component
	if (sc.IsPrimitive() || dc.IsPrimitive()) && sc != dc {
		return vm.NativeRaise(vm.ArrayStoreException, "arraycopy: type mismatch: can not copy %s[] into %s[]", vm.JavaName(sc.Name), vm.JavaName(dc.Name))
	}
	switch {
	case srcPos < 0:
		return vm.NativeRaise(vm.ArrayIndexOutOfBoundsException, "arraycopy: source index %d out of bounds for length %d", srcPos, src.Len())
	case dstPos < 0:
		return vm.NativeRaise(vm.ArrayIndexOutOfBoundsException, "arraycopy: destination index %d out of bounds for length %d", dstPos, dst.Len())
	case n < 0:
		return vm.NativeRaise(vm.ArrayIndexOutOfBoundsException, "arraycopy: length %d is negative", n)
	case srcPos+n > src.Len():
		return vm.NativeRaise(vm.ArrayIndexOutOfBoundsException, "arraycopy: last source index %d out of bounds for length %d", srcPos+n, src.Len())
	case dstPos+n > dst.Len():
		return vm.NativeRaise(vm.ArrayIndexOutOfBoundsException, "arraycopy: last destination index %d out of bounds for length %d", dstPos+n, dst.Len())
	}

	from := src.Elems()[srcPos : srcPos+n]
	to := dst.Elems()[dstPos : dstPos+n]
	if sc.IsPrimitive() || sc.IsAssignableTo(dc) {
		copy(to, from)
		return vm.NativeVoid()
	}
	// Element-wise store check; elements before a failing one are copied.
	for i, v := range from {
		if !v.IsNull() && !v.Ref().Class().IsAssignableTo(dc) {
			return vm.NativeRaise(vm.ArrayStoreException, "arraycopy: element type mismatch: can not cast one of the elements of %s to the type of the destination array, %s",
				vm.JavaName(src.Class().Name), vm.JavaName(dc.Name))
		}
		to[i] = v
	}
	return vm.NativeVoid()
}

func (l *Library) registerBits() {
	l.Register("java/lang/Float", "floatToRawIntBits(F)I", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return vm.NativeReturn(vm.FromInt(int32(math.Float32bits(args[0].Float()))))
	})
	l.Register("java/lang/Float", "intBitsToFloat(I)F", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return vm.NativeReturn(vm.FromFloat(math.Float32frombits(uint32(args[0].Int()))))
	})
	l.Register("java/lang/Double", "doubleToRawLongBits(D)J", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return vm.NativeReturn(vm.FromLong(int64(math.Float64bits(args[0].Double()))))
	})
	l.Register("java/lang/Double", "longBitsToDouble(J)D", func(t *vm.Thread, args []vm.Value) vm.NativeResult {
		return vm.NativeReturn(vm.FromDouble(math.Float64frombits(uint64(args[0].Long()))))
	})
}
