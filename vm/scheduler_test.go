package vm

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

// markThrice builds demo/Main.work(I)V, which marks its argument three
// times with one native call per mark.
func markThrice() *ClassDef {
	return staticMethod("work", "(I)V", func(b *BytecodeBuilder, p *PoolBuilder) {
		mark := p.Methodref("demo/Trace", "mark", "(I)V")
		for i := 0; i < 3; i++ {
			b.Emit(OpIload0).EmitU16(OpInvokestatic, mark)
		}
		b.Emit(OpReturn)
	})
}

func TestRoundRobin(t *testing.T) {
	cases := []struct {
		quantum int
		want    []string
	}{
		{2, []string{"A:1", "B:2", "A:1", "B:2", "A:1", "B:2"}},
		{4, []string{"A:1", "A:1", "B:2", "B:2", "A:1", "B:2"}},
		{100, []string{"A:1", "A:1", "A:1", "B:2", "B:2", "B:2"}},
	}
	for _, tc := range cases {
		var trace []string
		machine, _, _ := newTestVM(t, Options{Quantum: tc.quantum, Natives: traceNatives(&trace)}, markThrice(), traceClass())
		startThread(t, machine, "A", "demo/Main", "work", "(I)V", FromInt(1))
		startThread(t, machine, "B", "demo/Main", "work", "(I)V", FromInt(2))
		runVM(t, machine)
		if !reflect.DeepEqual(trace, tc.want) {
			t.Errorf("quantum %d: trace = %v, want %v", tc.quantum, trace, tc.want)
		}
	}
}

func TestYieldEndsSlice(t *testing.T) {
	var trace []string
	def := staticMethod("work", "(I)V", func(b *BytecodeBuilder, p *PoolBuilder) {
		mark := p.Methodref("demo/Trace", "mark", "(I)V")
		yield := p.Methodref("java/lang/Thread", "yield", "()V")
		b.Emit(OpIload0).EmitU16(OpInvokestatic, mark).
			EmitU16(OpInvokestatic, yield).
			Emit(OpIload0).EmitU16(OpInvokestatic, mark).
			Emit(OpReturn)
	})
	machine, _, _ := newTestVM(t, Options{Natives: traceNatives(&trace)}, def, traceClass())
	startThread(t, machine, "A", "demo/Main", "work", "(I)V", FromInt(1))
	startThread(t, machine, "B", "demo/Main", "work", "(I)V", FromInt(2))
	runVM(t, machine)

	want := []string{"A:1", "B:2", "A:1", "B:2"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

// ---------------------------------------------------------------------------
// Class initialization
// ---------------------------------------------------------------------------

func TestClassInitRunsOnceAcrossThreads(t *testing.T) {
	counter := NewClassBuilder("demo/Counter", "java/lang/Object").
		Field("inits", "I", AccPublic|AccStatic).
		Field("a", "I", AccPublic|AccStatic).
		Field("b", "I", AccPublic|AccStatic)
	p := counter.Pool()
	inits := p.Fieldref("demo/Counter", "inits", "I")
	clinit := counter.Method("<clinit>", "()V", AccStatic).Limits(4, 1)
	spin := clinit.Code.NewLabel()
	clinit.Code.
		EmitU16(OpGetstatic, inits).Emit(OpIconst1, OpIadd).EmitU16(OpPutstatic, inits).
		Emit(OpIconst0, OpIstore0).
		Mark(spin).
		EmitIinc(0, 1).
		Emit(OpIload0).EmitI8(OpBipush, 50).EmitJump(OpIfIcmplt, spin).
		Emit(OpReturn)

	// Each thread bumps its own field, so preemption between the read and
	// the write cannot lose an update.
	main := NewClassBuilder("demo/Main", "java/lang/Object")
	mp := main.Pool()
	for _, name := range []string{"a", "b"} {
		field := mp.Fieldref("demo/Counter", name, "I")
		main.Method("touch"+name, "()V", AccPublic|AccStatic).Code.
			EmitU16(OpGetstatic, field).Emit(OpIconst1, OpIadd).EmitU16(OpPutstatic, field).
			Emit(OpReturn)
	}

	machine, _, _ := newTestVM(t, Options{Quantum: 3}, counter.Build(), main.Build())
	a := startThread(t, machine, "A", "demo/Main", "toucha", "()V")
	b := startThread(t, machine, "B", "demo/Main", "touchb", "()V")
	runVM(t, machine)

	if got := staticInt(t, machine, "demo/Counter", "inits"); got != 1 {
		t.Errorf("inits = %d, want 1", got)
	}
	for _, name := range []string{"a", "b"} {
		if got := staticInt(t, machine, "demo/Counter", name); got != 1 {
			t.Errorf("%s = %d, want 1", name, got)
		}
	}
	if a.Status() != ThreadTerminated || b.Status() != ThreadTerminated {
		t.Errorf("threads = %s, %s, want both terminated", a.Status(), b.Status())
	}
}

func TestClassInitSuperclassFirst(t *testing.T) {
	var trace []string
	clinitMarking := func(cb *ClassBuilder, id int8) {
		cb.Method("<clinit>", "()V", AccStatic).Code.
			EmitI8(OpBipush, id).
			EmitU16(OpInvokestatic, cb.Pool().Methodref("demo/Trace", "mark", "(I)V")).
			Emit(OpReturn)
	}
	parent := NewClassBuilder("demo/Parent", "java/lang/Object")
	clinitMarking(parent, 1)
	child := NewClassBuilder("demo/Child", "demo/Parent").Field("x", "I", AccPublic|AccStatic)
	clinitMarking(child, 2)
	touch := staticMethod("touch", "()I", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.EmitU16(OpGetstatic, p.Fieldref("demo/Child", "x", "I")).Emit(OpIreturn)
	})

	machine, _, _ := newTestVM(t, Options{Natives: traceNatives(&trace)}, parent.Build(), child.Build(), touch, traceClass())
	if _, exc := invoke(t, machine, "demo/Main", "touch", "()I"); exc != nil {
		t.Fatalf("unexpected %s", machine.FormatException(exc))
	}
	want := []string{"test:1", "test:2"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
	if st := loadClass(t, machine, "demo/Parent").status; st != StatusInitialized {
		t.Errorf("Parent status = %v, want initialized", st)
	}
}

func TestClassInitFailureIsPermanent(t *testing.T) {
	bad := NewClassBuilder("demo/Bad", "java/lang/Object").Field("x", "I", AccPublic|AccStatic)
	bad.Method("<clinit>", "()V", AccStatic).Code.
		Emit(OpIconst1, OpIconst0, OpIdiv, OpPop, OpReturn)
	touch := staticMethod("touch", "()I", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.EmitU16(OpGetstatic, p.Fieldref("demo/Bad", "x", "I")).Emit(OpIreturn)
	})
	machine, _, _ := newTestVM(t, Options{}, bad.Build(), touch)

	_, exc := invoke(t, machine, "demo/Main", "touch", "()I")
	wantException(t, machine, exc, ArithmeticException, "/ by zero")

	_, exc = invoke(t, machine, "demo/Main", "touch", "()I")
	wantException(t, machine, exc, NoClassDefFoundError, "Could not initialize class demo.Bad")
}

// ---------------------------------------------------------------------------
// Monitors
// ---------------------------------------------------------------------------

func runnableThreads(machine *VM, names ...string) []*Thread {
	var out []*Thread
	for _, n := range names {
		th := machine.NewThread(n)
		machine.sched.add(th)
		out = append(out, th)
	}
	return out
}

func TestMonitorEnterExit(t *testing.T) {
	machine, _, _ := newTestVM(t, Options{})
	ts := runnableThreads(machine, "A", "B")
	a, b := ts[0], ts[1]
	m := &Monitor{}

	if !m.Enter(a) || !m.Enter(a) {
		t.Fatal("owner should re-enter")
	}
	if m.Enter(b) {
		t.Fatal("B entered a monitor owned by A")
	}
	if b.Status() != ThreadBlocked {
		t.Errorf("B = %s, want BLOCKED", b.Status())
	}
	if m.Exit(b) {
		t.Error("Exit by a non-owner should fail")
	}

	m.Exit(a)
	if m.Owner() != a || b.Status() != ThreadBlocked {
		t.Error("one Exit of a twice-entered monitor released it")
	}
	m.Exit(a)
	if m.Owner() != nil || b.Status() != ThreadRunnable {
		t.Errorf("after release: owner %v, B %s", m.Owner(), b.Status())
	}
	if !m.Enter(b) || m.Owner() != b {
		t.Error("B could not enter the released monitor")
	}
}

func TestMonitorWaitNotify(t *testing.T) {
	machine, _, _ := newTestVM(t, Options{})
	ts := runnableThreads(machine, "A", "B")
	a, b := ts[0], ts[1]
	m := &Monitor{}

	m.Enter(a)
	m.Enter(a)
	resumed := false
	if !m.Wait(a, 0, func(*Thread) { resumed = true }) {
		t.Fatal("Wait by the owner failed")
	}
	if a.Status() != ThreadWaiting || m.Owner() != nil {
		t.Fatalf("A = %s, owner %v; want WAITING with the monitor free", a.Status(), m.Owner())
	}
	if m.Wait(b, 0, nil) {
		t.Error("Wait by a non-owner should fail")
	}

	m.Enter(b)
	m.Notify(b)
	if a.Status() != ThreadRunnable {
		t.Fatalf("notified A = %s, want RUNNABLE", a.Status())
	}

	// A runs while B still holds the monitor and parks on the entry list.
	fn := a.resume
	a.resume = nil
	fn(a)
	if resumed || a.Status() != ThreadBlocked {
		t.Fatalf("A reacquired a monitor owned by B")
	}

	m.Exit(b)
	fn = a.resume
	a.resume = nil
	fn(a)
	if !resumed || m.Owner() != a {
		t.Fatal("A did not reacquire after B exited")
	}
	if !m.Exit(a) || !m.Exit(a) || m.Owner() != nil {
		t.Error("wait did not restore the entry count")
	}
}

func TestSynchronizedBlockExcludes(t *testing.T) {
	// synchronized (Main.class) { if (inside) violations++; inside = 1;
	// for (i = 0; i < 20; i++) count++; inside = 0; }
	cb := NewClassBuilder("demo/Main", "java/lang/Object").
		Field("inside", "I", AccPublic|AccStatic).
		Field("violations", "I", AccPublic|AccStatic).
		Field("count", "I", AccPublic|AccStatic)
	p := cb.Pool()
	self := p.Class("demo/Main")
	inside := p.Fieldref("demo/Main", "inside", "I")
	violations := p.Fieldref("demo/Main", "violations", "I")
	count := p.Fieldref("demo/Main", "count", "I")

	mb := cb.Method("work", "()V", AccPublic|AccStatic).Limits(4, 1)
	code := mb.Code
	clean, loop := code.NewLabel(), code.NewLabel()
	code.EmitU8(OpLdc, uint8(self)).Emit(OpMonitorenter).
		EmitU16(OpGetstatic, inside).EmitJump(OpIfeq, clean).
		EmitU16(OpGetstatic, violations).Emit(OpIconst1, OpIadd).EmitU16(OpPutstatic, violations).
		Mark(clean).
		Emit(OpIconst1).EmitU16(OpPutstatic, inside).
		Emit(OpIconst0, OpIstore0).
		Mark(loop).
		EmitU16(OpGetstatic, count).Emit(OpIconst1, OpIadd).EmitU16(OpPutstatic, count).
		EmitIinc(0, 1).
		Emit(OpIload0).EmitI8(OpBipush, 20).EmitJump(OpIfIcmplt, loop).
		Emit(OpIconst0).EmitU16(OpPutstatic, inside).
		EmitU8(OpLdc, uint8(self)).Emit(OpMonitorexit).
		Emit(OpReturn)

	machine, _, _ := newTestVM(t, Options{Quantum: 3}, cb.Build())
	startThread(t, machine, "A", "demo/Main", "work", "()V")
	startThread(t, machine, "B", "demo/Main", "work", "()V")
	runVM(t, machine)

	if got := staticInt(t, machine, "demo/Main", "violations"); got != 0 {
		t.Errorf("violations = %d, want 0", got)
	}
	if got := staticInt(t, machine, "demo/Main", "count"); got != 40 {
		t.Errorf("count = %d, want 40", got)
	}
}

func TestMonitorExitByNonOwner(t *testing.T) {
	def := staticMethod("bad", "()V", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.EmitU8(OpLdc, uint8(p.Class("demo/Main"))).Emit(OpMonitorexit, OpReturn)
	})
	machine, _, _ := newTestVM(t, Options{}, def)
	_, exc := invoke(t, machine, "demo/Main", "bad", "()V")
	wantException(t, machine, exc, IllegalMonitorStateException, "")
}

func TestDeadlockIsReported(t *testing.T) {
	def := staticMethod("hang", "()V", func(b *BytecodeBuilder, p *PoolBuilder) {
		self := uint8(p.Class("demo/Main"))
		b.EmitU8(OpLdc, self).Emit(OpMonitorenter).
			EmitU8(OpLdc, self).
			EmitU16(OpInvokevirtual, p.Methodref("java/lang/Object", "wait", "()V")).
			Emit(OpReturn)
	})
	machine, _, _ := newTestVM(t, Options{}, def)
	startThread(t, machine, "main", "demo/Main", "hang", "()V")

	if err := runWithTimeout(machine); !errors.Is(err, ErrDeadlock) {
		t.Fatalf("Run = %v, want ErrDeadlock", err)
	}

	data, err := machine.DumpThreads()
	if err != nil {
		t.Fatalf("DumpThreads failed: %v", err)
	}
	dump, err := DecodeThreadDump(data)
	if err != nil {
		t.Fatalf("DecodeThreadDump failed: %v", err)
	}
	info := dump.Find("main")
	if info == nil {
		t.Fatalf("dump has no main thread: %+v", dump)
	}
	if info.Status != "WAITING" || info.WaitFor != "wait" {
		t.Errorf("status = %s (%s), want WAITING (wait)", info.Status, info.WaitFor)
	}
	if len(info.Frames) == 0 || info.Frames[0].Method != "hang()V" || info.Frames[0].Class != "demo.Main" {
		t.Errorf("frames = %+v, want demo.Main.hang()V on top", info.Frames)
	}
	if dump.Find("nobody") != nil {
		t.Error("Find returned a thread that does not exist")
	}
}

// ---------------------------------------------------------------------------
// java.lang.Thread
// ---------------------------------------------------------------------------

func TestThreadStartJoin(t *testing.T) {
	var trace []string
	worker := NewClassBuilder("demo/Worker", "java/lang/Object").Implements("java/lang/Runnable")
	wp := worker.Pool()
	worker.Method("<init>", "()V", AccPublic).Code.
		Emit(OpAload0).EmitU16(OpInvokespecial, wp.Methodref("java/lang/Object", "<init>", "()V")).
		Emit(OpReturn)
	worker.Method("run", "()V", AccPublic).Code.
		Emit(OpIconst1).EmitU16(OpInvokestatic, wp.Methodref("demo/Trace", "mark", "(I)V")).
		Emit(OpReturn)

	// Thread th = new Thread(new Worker(), "worker"); th.start(); th.join(); mark(2);
	cb := NewClassBuilder("demo/Main", "java/lang/Object")
	p := cb.Pool()
	cb.Method("go", "()V", AccPublic|AccStatic).Limits(8, 1).Code.
		EmitU16(OpNew, p.Class("java/lang/Thread")).Emit(OpDup).
		EmitU16(OpNew, p.Class("demo/Worker")).Emit(OpDup).
		EmitU16(OpInvokespecial, p.Methodref("demo/Worker", "<init>", "()V")).
		EmitU16(OpLdcW, p.String("worker")).
		EmitU16(OpInvokespecial, p.Methodref("java/lang/Thread", "<init>", "(Ljava/lang/Runnable;Ljava/lang/String;)V")).
		Emit(OpAstore0).
		Emit(OpAload0).EmitU16(OpInvokevirtual, p.Methodref("java/lang/Thread", "start", "()V")).
		Emit(OpAload0).EmitU16(OpInvokevirtual, p.Methodref("java/lang/Thread", "join", "()V")).
		Emit(OpIconst2).EmitU16(OpInvokestatic, p.Methodref("demo/Trace", "mark", "(I)V")).
		Emit(OpReturn)

	machine, _, host := newTestVM(t, Options{Natives: traceNatives(&trace)}, worker.Build(), cb.Build(), traceClass())
	startThread(t, machine, "main", "demo/Main", "go", "()V")
	runVM(t, machine)

	want := []string{"worker:1", "main:2"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
	if len(host.uncaught) != 0 {
		t.Errorf("uncaught = %v", host.uncaught)
	}
}

func TestThreadStartTwice(t *testing.T) {
	def := staticMethod("twice", "()V", func(b *BytecodeBuilder, p *PoolBuilder) {
		start := p.Methodref("java/lang/Thread", "start", "()V")
		b.EmitU16(OpNew, p.Class("java/lang/Thread")).Emit(OpDup).
			EmitU16(OpInvokespecial, p.Methodref("java/lang/Thread", "<init>", "()V")).
			Emit(OpDup).EmitU16(OpInvokevirtual, start).
			EmitU16(OpInvokevirtual, start).
			Emit(OpReturn)
	})
	machine, _, _ := newTestVM(t, Options{}, def)
	_, exc := invoke(t, machine, "demo/Main", "twice", "()V")
	wantException(t, machine, exc, IllegalThreadStateException, "")
}

func TestThreadSleep(t *testing.T) {
	def := staticMethod("nap", "()V", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.EmitU16(OpLdc2W, p.Long(30)).
			EmitU16(OpInvokestatic, p.Methodref("java/lang/Thread", "sleep", "(J)V")).
			Emit(OpReturn)
	})
	machine, _, _ := newTestVM(t, Options{}, def)
	start := time.Now()
	if _, exc := invoke(t, machine, "demo/Main", "nap", "()V"); exc != nil {
		t.Fatalf("unexpected %s", machine.FormatException(exc))
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("sleep(30) returned after %v", elapsed)
	}
}

func TestThreadInterruptFlag(t *testing.T) {
	// Thread.currentThread().interrupt(); return interrupted() << 1 | interrupted();
	def := staticMethod("flags", "()I", func(b *BytecodeBuilder, p *PoolBuilder) {
		interrupted := p.Methodref("java/lang/Thread", "interrupted", "()Z")
		b.EmitU16(OpInvokestatic, p.Methodref("java/lang/Thread", "currentThread", "()Ljava/lang/Thread;")).
			EmitU16(OpInvokevirtual, p.Methodref("java/lang/Thread", "interrupt", "()V")).
			EmitU16(OpInvokestatic, interrupted).Emit(OpIconst1, OpIshl).
			EmitU16(OpInvokestatic, interrupted).Emit(OpIor).
			Emit(OpIreturn)
	})
	machine, _, _ := newTestVM(t, Options{}, def)
	v, exc := invoke(t, machine, "demo/Main", "flags", "()I")
	if exc != nil {
		t.Fatalf("unexpected %s", machine.FormatException(exc))
	}
	if v.Int() != 2 {
		t.Errorf("flags = %b, want 10", v.Int())
	}
}

func TestSleepAfterInterruptThrows(t *testing.T) {
	def := staticMethod("nap", "()V", func(b *BytecodeBuilder, p *PoolBuilder) {
		b.EmitU16(OpInvokestatic, p.Methodref("java/lang/Thread", "currentThread", "()Ljava/lang/Thread;")).
			EmitU16(OpInvokevirtual, p.Methodref("java/lang/Thread", "interrupt", "()V")).
			EmitU16(OpLdc2W, p.Long(10_000)).
			EmitU16(OpInvokestatic, p.Methodref("java/lang/Thread", "sleep", "(J)V")).
			Emit(OpReturn)
	})
	machine, _, _ := newTestVM(t, Options{}, def)
	start := time.Now()
	_, exc := invoke(t, machine, "demo/Main", "nap", "()V")
	wantException(t, machine, exc, InterruptedException, "sleep interrupted")
	if time.Since(start) > time.Second {
		t.Error("interrupted sleep still waited")
	}
}

func TestRunCancelled(t *testing.T) {
	def := staticMethod("spin", "()V", func(b *BytecodeBuilder, p *PoolBuilder) {
		loop := b.NewLabel()
		b.Mark(loop).EmitJump(OpGoto, loop)
	})
	machine, _, _ := newTestVM(t, Options{}, def)
	startThread(t, machine, "main", "demo/Main", "spin", "()V")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := machine.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
}

func TestDaemonThreadsDoNotKeepVMAlive(t *testing.T) {
	var trace []string
	cb := NewClassBuilder("demo/Main", "java/lang/Object")
	p := cb.Pool()
	spin := cb.Method("spin", "()V", AccPublic|AccStatic).Code
	loop := spin.NewLabel()
	spin.Mark(loop).EmitJump(OpGoto, loop)
	cb.Method("once", "()V", AccPublic|AccStatic).Code.
		Emit(OpIconst1).EmitU16(OpInvokestatic, p.Methodref("demo/Trace", "mark", "(I)V")).
		Emit(OpReturn)
	machine, _, _ := newTestVM(t, Options{Quantum: 10, Natives: traceNatives(&trace)}, cb.Build(), traceClass())

	daemon := machine.NewThread("daemon")
	daemon.Daemon = true
	if err := machine.Start(daemon, method(t, machine, "demo/Main", "spin", "()V")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	startThread(t, machine, "main", "demo/Main", "once", "()V")
	runVM(t, machine)

	if len(trace) != 1 || trace[0] != "main:1" {
		t.Errorf("trace = %v, want [main:1]", trace)
	}
	if daemon.Status() != ThreadRunnable {
		t.Errorf("daemon = %s, want still RUNNABLE", daemon.Status())
	}
}
