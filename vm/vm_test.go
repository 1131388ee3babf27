package vm

import (
	"context"
	"io"
	"strconv"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Test harness
// ---------------------------------------------------------------------------

// recordingHost collects what a VM reports to its host.
type recordingHost struct {
	uncaught []*Object
	threads  []string
	exits    int
}

func (h *recordingHost) OnUncaught(t *Thread, exc *Object) {
	h.uncaught = append(h.uncaught, exc)
	h.threads = append(h.threads, t.Name)
}

func (h *recordingHost) OnExit() { h.exits++ }

// newTestVM creates a VM serving defs from a MapSource. Unset options get
// a recording host and discarded output.
func newTestVM(t *testing.T, opts Options, defs ...*ClassDef) (*VM, *MapSource, *recordingHost) {
	t.Helper()
	src := NewMapSource(defs...)
	host := &recordingHost{}
	opts.Source = src
	if opts.Host == nil {
		opts.Host = host
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	machine, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return machine, src, host
}

func loadClass(t *testing.T, machine *VM, name string) *Class {
	t.Helper()
	r := machine.LoadClass(name)
	if !r.IsSuccess() {
		t.Fatalf("LoadClass(%s) = %v", name, r.Err())
	}
	return r.Value()
}

func method(t *testing.T, machine *VM, class, name, desc string) *Method {
	t.Helper()
	m := loadClass(t, machine, class).DeclaredMethod(name, desc)
	if m == nil {
		t.Fatalf("%s.%s%s not found", class, name, desc)
	}
	return m
}

// runVM runs the scheduler until every thread is done.
func runVM(t *testing.T, machine *VM) {
	t.Helper()
	if err := runWithTimeout(machine); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func runWithTimeout(machine *VM) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return machine.Run(ctx)
}

// invoke runs class.name(desc) with args on a fresh thread to completion.
// It returns the method's result, or the exception that escaped it.
func invoke(t *testing.T, machine *VM, class, name, desc string, args ...Value) (Value, *Object) {
	t.Helper()
	m := method(t, machine, class, name, desc)
	th := machine.NewThread("test")
	machine.sched.add(th)

	var result Value
	var thrown *Object
	th.Upcall("test", m, args,
		func(_ *Thread, v Value) { result = v },
		func(_ *Thread, exc *Object) { thrown = exc })
	th.initBeforeRun(m.DeclaringClass())
	runVM(t, machine)
	return result, thrown
}

// startThread starts class.name(desc) on a new named thread.
func startThread(t *testing.T, machine *VM, threadName, class, name, desc string, args ...Value) *Thread {
	t.Helper()
	th := machine.NewThread(threadName)
	if err := machine.Start(th, method(t, machine, class, name, desc), args...); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return th
}

// staticMethod builds demo/Main with a single static method.
func staticMethod(name, desc string, emit func(b *BytecodeBuilder, p *PoolBuilder)) *ClassDef {
	cb := NewClassBuilder("demo/Main", "java/lang/Object")
	emit(cb.Method(name, desc, AccPublic|AccStatic).Code, cb.Pool())
	return cb.Build()
}

func staticInt(t *testing.T, machine *VM, class, field string) int32 {
	t.Helper()
	c := loadClass(t, machine, class)
	f := c.FieldByName(field)
	if f == nil || !f.IsStatic() {
		t.Fatalf("%s has no static field %s", class, field)
	}
	return c.StaticValue(f).Int()
}

func wantException(t *testing.T, machine *VM, exc *Object, class, message string) {
	t.Helper()
	if exc == nil {
		t.Fatalf("no exception, want %s", class)
	}
	if exc.Class().Name != class {
		t.Fatalf("exception = %s, want %s", machine.FormatException(exc), class)
	}
	if message != "" && machine.ExceptionMessage(exc) != message {
		t.Errorf("message = %q, want %q", machine.ExceptionMessage(exc), message)
	}
}

// traceNatives records calls to the native demo/Trace.mark(I)V as
// "thread:id" strings.
func traceNatives(trace *[]string) NativeMap {
	return NativeMap{
		"demo/Trace.mark(I)V": func(t *Thread, args []Value) NativeResult {
			*trace = append(*trace, t.Name+":"+strconv.Itoa(int(args[0].Int())))
			return NativeVoid()
		},
	}
}

func traceClass() *ClassDef {
	return NewClassBuilder("demo/Trace", "java/lang/Object").
		NativeMethod("mark", "(I)V", AccPublic|AccStatic).
		Build()
}

// ---------------------------------------------------------------------------
// VM lifecycle
// ---------------------------------------------------------------------------

func TestNewBootstrapsCoreClasses(t *testing.T) {
	machine, _, _ := newTestVM(t, Options{})

	for _, c := range []*Class{machine.ObjectClass, machine.ClassClass, machine.StringClass,
		machine.ThrowableClass, machine.ThreadClass, machine.CloneableClass, machine.SerializableClass} {
		if c == nil {
			t.Fatal("core class not linked")
		}
		if machine.Classes.Get(c.ID) != c {
			t.Errorf("Classes.Get(%d) != %s", c.ID, c.Name)
		}
	}
	if machine.ObjectClass.Super != nil {
		t.Errorf("Object super = %v, want nil", machine.ObjectClass.Super)
	}
	if !machine.StringClass.IsSubclassOf(machine.ObjectClass) {
		t.Error("String should be a subclass of Object")
	}
	if machine.Scheduler().Quantum() != DefaultQuantum {
		t.Errorf("quantum = %d, want %d", machine.Scheduler().Quantum(), DefaultQuantum)
	}
}

func TestRunWithoutThreadsReturns(t *testing.T) {
	machine, _, host := newTestVM(t, Options{})
	runVM(t, machine)
	if host.exits != 1 {
		t.Errorf("OnExit called %d times, want 1", host.exits)
	}
}

func TestSeparateVMsShareNothing(t *testing.T) {
	def := staticMethod("id", "()I", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.Emit(OpIconst1, OpIreturn)
	})
	a, _, _ := newTestVM(t, Options{}, def)
	b, _, _ := newTestVM(t, Options{}, def)

	if a.Intern("x") == b.Intern("x") {
		t.Error("interned strings shared across VMs")
	}
	if loadClass(t, a, "demo/Main") == loadClass(t, b, "demo/Main") {
		t.Error("classes shared across VMs")
	}
}

func TestRunMain(t *testing.T) {
	var trace []string
	cb := NewClassBuilder("demo/Main", "java/lang/Object")
	p := cb.Pool()
	cb.Method("main", "([Ljava/lang/String;)V", AccPublic|AccStatic).Code.
		Emit(OpAload0, OpArraylength).
		EmitU16(OpInvokestatic, p.Methodref("demo/Trace", "mark", "(I)V")).
		Emit(OpReturn)

	machine, _, host := newTestVM(t, Options{Natives: traceNatives(&trace)}, cb.Build(), traceClass())
	if err := machine.RunMain(context.Background(), "demo.Main", []string{"a", "b"}); err != nil {
		t.Fatalf("RunMain failed: %v", err)
	}
	if len(trace) != 1 || trace[0] != "main:2" {
		t.Errorf("trace = %v, want [main:2]", trace)
	}
	if len(host.uncaught) != 0 {
		t.Errorf("uncaught = %v", host.uncaught)
	}
}

func TestRunMainMissingClass(t *testing.T) {
	machine, _, _ := newTestVM(t, Options{})
	if err := machine.RunMain(context.Background(), "demo.Nope", nil); err == nil {
		t.Error("RunMain of a missing class should fail")
	}
}
