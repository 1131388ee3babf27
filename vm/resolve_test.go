package vm

import (
	"strings"
	"testing"
)

// referrer builds a class named name whose pool is filled by refs, and
// returns the linked class with the index refs reported.
func referrer(t *testing.T, name string, refs func(p *PoolBuilder) uint16, defs ...*ClassDef) (*VM, *MapSource, *Class, uint16) {
	t.Helper()
	cb := NewClassBuilder(name, "java/lang/Object")
	index := refs(cb.Pool())
	machine, src, _ := newTestVM(t, Options{}, append(defs, cb.Build())...)
	return machine, src, loadClass(t, machine, name), index
}

func TestResolveClassIsMemoized(t *testing.T) {
	helper := NewClassBuilder("demo/Helper", "java/lang/Object").Build()
	machine, src, from, index := referrer(t, "demo/Main", func(p *PoolBuilder) uint16 {
		return p.Class("demo/Helper")
	}, helper)

	before := src.Loads
	first := machine.ResolveClass(from.Pool, index, from)
	if !first.IsSuccess() {
		t.Fatalf("ResolveClass = %v", first.Err())
	}
	if src.Loads != before+1 {
		t.Errorf("loads = %d, want %d", src.Loads, before+1)
	}
	if !from.Pool.IsResolved(index) {
		t.Error("entry not marked resolved")
	}

	loads := src.Loads
	second := machine.ResolveClass(from.Pool, index, from)
	if second.Value() != first.Value() {
		t.Errorf("second resolve = %p, want %p", second.Value(), first.Value())
	}
	if src.Loads != loads {
		t.Errorf("second resolve consulted the loader: loads %d -> %d", loads, src.Loads)
	}
}

func TestResolveFailureIsMemoized(t *testing.T) {
	machine, src, from, index := referrer(t, "demo/Main", func(p *PoolBuilder) uint16 {
		return p.Class("demo/Missing")
	})

	first := machine.ResolveClass(from.Pool, index, from)
	if !first.IsFailure() || first.Err().ClassName() != ClassNotFoundException {
		t.Fatalf("ResolveClass = %v, want ClassNotFoundException", first.Err())
	}

	loads := src.Loads
	second := machine.ResolveClass(from.Pool, index, from)
	if second.Err() != first.Err() {
		t.Errorf("second error = %v, want the memoized %v", second.Err(), first.Err())
	}
	if src.Loads != loads {
		t.Error("a failed entry must not be retried")
	}
}

func TestResolveClassAccess(t *testing.T) {
	hidden := NewClassBuilder("other/Hidden", "java/lang/Object").Access(AccSuper).Build()
	peer := NewClassBuilder("demo/Peer", "java/lang/Object").Access(AccSuper).Build()

	cases := []struct {
		target string
		denied bool
	}{
		{"other/Hidden", true},
		{"demo/Peer", false},
		{"java/lang/String", false},
		{"[Lother/Hidden;", true},
		{"[I", false},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			machine, _, from, index := referrer(t, "demo/Main", func(p *PoolBuilder) uint16 {
				return p.Class(tc.target)
			}, hidden, peer)
			r := machine.ResolveClass(from.Pool, index, from)
			if tc.denied {
				if !r.IsFailure() || r.Err().ClassName() != IllegalAccessError {
					t.Errorf("ResolveClass(%s) = %v, want IllegalAccessError", tc.target, r.Err())
				}
				return
			}
			if !r.IsSuccess() {
				t.Errorf("ResolveClass(%s) = %v", tc.target, r.Err())
			}
		})
	}
}

func TestResolveFieldAccessDenied(t *testing.T) {
	secret := NewClassBuilder("demo/Vault", "java/lang/Object").
		Field("secret", "I", AccPrivate|AccStatic).
		Build()
	machine, _, from, index := referrer(t, "demo/Main", func(p *PoolBuilder) uint16 {
		return p.Fieldref("demo/Vault", "secret", "I")
	}, secret)

	r := machine.ResolveField(from.Pool, index, from)
	if !r.IsFailure() || r.Err().ClassName() != IllegalAccessError {
		t.Fatalf("ResolveField = %v, want IllegalAccessError", r.Err())
	}
	if !strings.Contains(r.Err().Message, "private field") {
		t.Errorf("message = %q, want it to name a private field", r.Err().Message)
	}
	if f, ok := from.Pool.cell(index).value.(*Field); !ok || f.Name != "secret" {
		t.Errorf("cell value = %v, want the denied field", from.Pool.cell(index).value)
	}
	again := machine.ResolveField(from.Pool, index, from)
	if again.Err() != r.Err() {
		t.Error("access failure not memoized")
	}
}

func TestMemberAccess(t *testing.T) {
	base := NewClassBuilder("a/Base", "java/lang/Object")
	base.Method("<init>", "()V", AccPublic).Code.Emit(OpReturn)
	base.Method("prot", "()V", AccProtected).Code.Emit(OpReturn)
	base.Method("sprot", "()V", AccProtected|AccStatic).Code.Emit(OpReturn)
	base.Method("pkg", "()V", 0).Code.Emit(OpReturn)
	base.Method("priv", "()V", AccPrivate).Code.Emit(OpReturn)
	baseDef := base.Build()

	outer := NewClassBuilder("a/Outer", "java/lang/Object")
	outer.Method("hidden", "()V", AccPrivate|AccStatic).Code.Emit(OpReturn)
	outerDef := outer.Build()

	cases := []struct {
		name    string
		from    string
		super   string
		nest    string
		class   string
		method  string
		allowed bool
	}{
		{"protected from subclass", "b/Sub", "a/Base", "", "a/Base", "prot", true},
		{"protected through subclass ref", "b/Sub", "a/Base", "", "b/Sub", "prot", true},
		{"protected from stranger", "b/Stranger", "java/lang/Object", "", "a/Base", "prot", false},
		{"protected from same package", "a/Peer", "java/lang/Object", "", "a/Base", "prot", true},
		{"protected static from subclass", "b/Sub", "a/Base", "", "a/Base", "sprot", true},
		{"package-private from same package", "a/Peer", "java/lang/Object", "", "a/Base", "pkg", true},
		{"package-private from subclass elsewhere", "b/Sub", "a/Base", "", "a/Base", "pkg", false},
		{"private from other class", "a/Peer", "java/lang/Object", "", "a/Base", "priv", false},
		{"private from nest member", "a/Outer$Inner", "java/lang/Object", "a/Outer", "a/Outer", "hidden", true},
		{"private from non-member", "a/Peer", "java/lang/Object", "", "a/Outer", "hidden", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cb := NewClassBuilder(tc.from, tc.super)
			if tc.nest != "" {
				cb.NestHost(tc.nest)
			}
			index := cb.Pool().Methodref(tc.class, tc.method, "()V")
			defs := []*ClassDef{baseDef, outerDef, cb.Build()}
			machine, _, _ := newTestVM(t, Options{}, defs...)
			from := loadClass(t, machine, tc.from)

			r := machine.ResolveMethod(from.Pool, index, from)
			if tc.allowed {
				if !r.IsSuccess() {
					t.Errorf("ResolveMethod = %v, want success", r.Err())
				}
				return
			}
			if !r.IsFailure() || r.Err().ClassName() != IllegalAccessError {
				t.Errorf("ResolveMethod = %v, want IllegalAccessError", r.Err())
			}
		})
	}
}

func TestResolveMethodKindMismatch(t *testing.T) {
	iface := NewClassBuilder("demo/Shape", "java/lang/Object").
		Access(AccPublic|AccInterface|AccAbstract).
		AbstractMethod("area", "()I", AccPublic).
		Build()
	cases := []struct {
		name string
		ref  func(p *PoolBuilder) uint16
		want string
	}{
		{"methodref to interface", func(p *PoolBuilder) uint16 {
			return p.Methodref("demo/Shape", "area", "()I")
		}, "Found interface demo.Shape, but class was expected"},
		{"interface methodref to class", func(p *PoolBuilder) uint16 {
			return p.InterfaceMethodref("java/lang/Object", "hashCode", "()I")
		}, "Found class java.lang.Object, but interface was expected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			machine, _, from, index := referrer(t, "demo/Main", tc.ref, iface)
			r := machine.ResolveMethod(from.Pool, index, from)
			if !r.IsFailure() || r.Err().ClassName() != IncompatibleClassChangeError {
				t.Fatalf("ResolveMethod = %v, want IncompatibleClassChangeError", r.Err())
			}
			if r.Err().Message != tc.want {
				t.Errorf("message = %q, want %q", r.Err().Message, tc.want)
			}
		})
	}
}

func TestInterfaceMethodrefFindsObjectMethods(t *testing.T) {
	iface := NewClassBuilder("demo/Shape", "java/lang/Object").
		Access(AccPublic | AccInterface | AccAbstract).
		Build()
	machine, _, from, index := referrer(t, "demo/Main", func(p *PoolBuilder) uint16 {
		return p.InterfaceMethodref("demo/Shape", "hashCode", "()I")
	}, iface)

	r := machine.ResolveMethod(from.Pool, index, from)
	if !r.IsSuccess() {
		t.Fatalf("ResolveMethod = %v", r.Err())
	}
	if r.Value().DeclaringClass() != machine.ObjectClass {
		t.Errorf("resolved %s, want Object.hashCode", r.Value())
	}
}

func TestResolveStringInterns(t *testing.T) {
	machine, _, from, index := referrer(t, "demo/Main", func(p *PoolBuilder) uint16 {
		return p.String("héllo")
	})

	r := machine.ResolveString(from.Pool, index)
	if !r.IsSuccess() {
		t.Fatalf("ResolveString = %v", r.Err())
	}
	if r.Value() != machine.Intern("héllo") {
		t.Error("string constant is not the interned instance")
	}
	if got := machine.GoString(r.Value()); got != "héllo" {
		t.Errorf("GoString = %q, want héllo", got)
	}
}

func TestResolveStringMalformedIsMemoized(t *testing.T) {
	// A String entry whose operand is an Integer, not a Utf8.
	machine, _, from, index := referrer(t, "demo/Main", func(p *PoolBuilder) uint16 {
		return p.add("Sbad", Constant{Tag: TagString, A: p.Int(7)})
	})

	first := machine.ResolveString(from.Pool, index)
	if !first.IsFailure() || first.Err().ClassName() != ClassFormatError {
		t.Fatalf("ResolveString = %v, want ClassFormatError", first.Err())
	}
	if !from.Pool.IsResolved(index) {
		t.Error("failed entry not marked resolved")
	}
	if second := machine.ResolveString(from.Pool, index); second.Err() != first.Err() {
		t.Errorf("second error = %v, want the memoized %v", second.Err(), first.Err())
	}
}

func TestLdcStringIdentity(t *testing.T) {
	// Two classes loading the same literal see the same object.
	a := staticMethod("s", "()Ljava/lang/Object;", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.EmitU8(OpLdc, uint8(p.String("shared"))).Emit(OpAreturn)
	})
	other := NewClassBuilder("demo/Other", "java/lang/Object")
	other.Method("s", "()Ljava/lang/Object;", AccPublic|AccStatic).Code.
		EmitU8(OpLdc, uint8(other.Pool().String("shared"))).Emit(OpAreturn)
	machine, _, _ := newTestVM(t, Options{}, a, other.Build())

	x, _ := invoke(t, machine, "demo/Main", "s", "()Ljava/lang/Object;")
	y, _ := invoke(t, machine, "demo/Other", "s", "()Ljava/lang/Object;")
	if x.Ref() == nil || x.Ref() != y.Ref() {
		t.Errorf("literals %v and %v are not the same object", x, y)
	}
}

func TestLdcClassMirror(t *testing.T) {
	def := staticMethod("c", "()Ljava/lang/Object;", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.EmitU8(OpLdc, uint8(p.Class("java/lang/String"))).Emit(OpAreturn)
	})
	machine, _, _ := newTestVM(t, Options{}, def)

	v, exc := invoke(t, machine, "demo/Main", "c", "()Ljava/lang/Object;")
	if exc != nil {
		t.Fatalf("unexpected %s", machine.FormatException(exc))
	}
	if v.Ref() != machine.Mirror(machine.StringClass) {
		t.Error("ldc of a class constant should push its mirror")
	}
	if ClassOfMirror(v.Ref()) != machine.StringClass {
		t.Errorf("ClassOfMirror = %v, want String", ClassOfMirror(v.Ref()))
	}
}

// ---------------------------------------------------------------------------
// Method types
// ---------------------------------------------------------------------------

// methodHandleNatives defines MethodHandleNatives.findMethodHandleType to
// return a fresh Object per call.
func methodHandleNatives() *ClassDef {
	cb := NewClassBuilder("java/lang/invoke/MethodHandleNatives", "java/lang/Object")
	p := cb.Pool()
	cb.Method("findMethodHandleType", "(Ljava/lang/Class;[Ljava/lang/Class;)Ljava/lang/Object;", AccStatic).Code.
		EmitU16(OpNew, p.Class("java/lang/Object")).
		Emit(OpDup).
		EmitU16(OpInvokespecial, p.Methodref("java/lang/Object", "<init>", "()V")).
		Emit(OpAreturn)
	return cb.Build()
}

func TestResolveMethodTypeDefersWhileInitializing(t *testing.T) {
	machine, _, from, index := referrer(t, "demo/Main", func(p *PoolBuilder) uint16 {
		return p.MethodType("(I)V")
	}, methodHandleNatives())

	mhn := loadClass(t, machine, "java/lang/invoke/MethodHandleNatives")
	initializer := machine.NewThread("initializer")
	mhn.status = StatusInitializing
	mhn.initThread = initializer

	th := machine.NewThread("resolver")
	machine.sched.add(th)
	r := th.ResolveMethodType(from.Pool, index, from)
	if !r.IsDefer() {
		t.Fatalf("ResolveMethodType = %s, want Defer", r.Type())
	}
	if from.Pool.IsResolved(index) {
		t.Error("a deferred entry must stay unresolved")
	}
	if th.Status() != ThreadBlocked {
		t.Errorf("status = %s, want BLOCKED", th.Status())
	}

	mhn.finishInit(StatusInitialized)
	if th.Status() != ThreadRunnable {
		t.Errorf("status after init = %s, want RUNNABLE", th.Status())
	}
}

func TestLdcMethodType(t *testing.T) {
	// Loading the same method type twice yields one object, made by a
	// single upcall.
	def := staticMethod("same", "()I", func(b *BytecodeBuilder, p *PoolBuilder) {
		differ := b.NewLabel()
		b.EmitU16(OpLdcW, p.MethodType("(I)V")).
			EmitU16(OpLdcW, p.MethodType("(I)V")).
			EmitJump(OpIfAcmpne, differ).
			Emit(OpIconst1, OpIreturn).
			Mark(differ).
			Emit(OpIconst0, OpIreturn)
	})
	other := NewClassBuilder("demo/Other", "java/lang/Object")
	other.Method("mt", "()Ljava/lang/Object;", AccPublic|AccStatic).Code.
		EmitU16(OpLdcW, other.Pool().MethodType("(I)V")).Emit(OpAreturn)
	machine, _, _ := newTestVM(t, Options{}, def, other.Build(), methodHandleNatives())

	v, exc := invoke(t, machine, "demo/Main", "same", "()I")
	if exc != nil {
		t.Fatalf("unexpected %s", machine.FormatException(exc))
	}
	if v.Int() != 1 {
		t.Error("ldc MethodType pushed different objects for one descriptor")
	}
	if n := len(machine.methodTypes); n != 1 {
		t.Errorf("method types = %d, want 1", n)
	}

	mt, _ := invoke(t, machine, "demo/Other", "mt", "()Ljava/lang/Object;")
	if mt.Ref() != machine.methodTypes["(I)V"] {
		t.Error("a second class did not share the method type")
	}
}

func TestMethodTypeWithoutNatives(t *testing.T) {
	def := staticMethod("mt", "()Ljava/lang/Object;", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.EmitU16(OpLdcW, p.MethodType("()V")).Emit(OpAreturn)
	})
	machine, _, _ := newTestVM(t, Options{}, def)

	_, exc := invoke(t, machine, "demo/Main", "mt", "()Ljava/lang/Object;")
	wantException(t, machine, exc, ClassNotFoundException, "java.lang.invoke.MethodHandleNatives")
}
