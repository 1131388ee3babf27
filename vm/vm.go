package vm

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: one runtime instance
// ---------------------------------------------------------------------------

// DefaultMaxFrameDepth bounds the number of frames on one thread.
const DefaultMaxFrameDepth = 1024

// Host receives notifications the runtime cannot handle itself.
type Host interface {
	// OnUncaught is called with the full exception object when an
	// exception escapes a thread.
	OnUncaught(t *Thread, exc *Object)
	// OnExit is called once when Run returns.
	OnExit()
}

// Options configures a VM.
type Options struct {
	Source        ClassSource    // application classes; core classes are synthesized when missing
	Natives       NativeResolver // consulted before the built-in natives
	Host          Host
	Quantum       int
	MaxFrameDepth int
	Stdout        io.Writer
	Stderr        io.Writer
}

// VM is a runtime instance. Everything that would otherwise be
// process-wide (the class arena, interned strings, class mirrors, native
// bindings) hangs off it, so several VMs can coexist.
type VM struct {
	Classes *ClassTable

	// Well-known classes
	ObjectClass       *Class
	ClassClass        *Class
	StringClass       *Class
	ThrowableClass    *Class
	ThreadClass       *Class
	CloneableClass    *Class
	SerializableClass *Class

	source        ClassSource
	natives       NativeResolver
	host          Host
	sched         *Scheduler
	strings       *InternTable
	log           commonlog.Logger
	maxFrameDepth int
	stdout        io.Writer
	stderr        io.Writer

	loading     map[string]bool
	primitives  map[byte]*Class
	methodTypes map[string]*Object
}

// New creates a VM and links the core classes.
func New(opts Options) (*VM, error) {
	vm := &VM{
		Classes:       NewClassTable(),
		host:          opts.Host,
		strings:       NewInternTable(),
		log:           commonlog.GetLogger("jolt.vm"),
		maxFrameDepth: opts.MaxFrameDepth,
		stdout:        opts.Stdout,
		stderr:        opts.Stderr,
		loading:       make(map[string]bool),
		primitives:    make(map[byte]*Class),
		methodTypes:   make(map[string]*Object),
	}
	if vm.maxFrameDepth <= 0 {
		vm.maxFrameDepth = DefaultMaxFrameDepth
	}
	if vm.stdout == nil {
		vm.stdout = os.Stdout
	}
	if vm.stderr == nil {
		vm.stderr = os.Stderr
	}
	if vm.host == nil {
		vm.host = &printingHost{vm: vm}
	}
	vm.sched = newScheduler(vm, opts.Quantum)

	boot := bootstrapSource()
	if opts.Source != nil {
		vm.source = ChainSource{opts.Source, boot}
	} else {
		vm.source = boot
	}
	vm.natives = NativeChain{opts.Natives, vm.builtinNatives()}

	core := []struct {
		name string
		dst  **Class
	}{
		{"java/lang/Object", &vm.ObjectClass},
		{"java/lang/Class", &vm.ClassClass},
		{"java/lang/String", &vm.StringClass},
		{"java/lang/Throwable", &vm.ThrowableClass},
		{"java/lang/Thread", &vm.ThreadClass},
		{"java/lang/Cloneable", &vm.CloneableClass},
		{"java/io/Serializable", &vm.SerializableClass},
	}
	for _, c := range core {
		r := vm.LoadClass(c.name)
		if !r.IsSuccess() {
			return nil, fmt.Errorf("vm: bootstrap %s: %v", c.name, r.Err())
		}
		*c.dst = r.Value()
	}
	vm.log.Infof("bootstrapped %d classes", vm.Classes.Len())
	return vm, nil
}

// Scheduler returns the VM's scheduler.
func (vm *VM) Scheduler() *Scheduler { return vm.sched }

// Stdout returns the writer guest standard output goes to.
func (vm *VM) Stdout() io.Writer { return vm.stdout }

// Stderr returns the writer guest standard error goes to.
func (vm *VM) Stderr() io.Writer { return vm.stderr }

// ---------------------------------------------------------------------------
// Threads and entry points
// ---------------------------------------------------------------------------

// NewThread creates a thread in state New together with its guest
// java/lang/Thread object.
func (vm *VM) NewThread(name string) *Thread {
	t := &Thread{ID: uuid.New(), Name: name, vm: vm}
	obj := NewObject(vm.ThreadClass)
	obj.SetNamed("name", FromRef(vm.NewString(name)))
	obj.Payload = t
	t.object = obj
	return t
}

// threadOf returns the runtime thread behind a guest Thread object,
// creating one for objects that were never started.
func (vm *VM) threadOf(obj *Object) *Thread {
	if t, ok := obj.Payload.(*Thread); ok {
		return t
	}
	name := "Thread-" + uuid.NewString()[:8]
	if v := obj.GetNamed("name"); v.Kind() == KindRef && !v.IsNull() {
		name = vm.GoString(v.Ref())
	}
	t := &Thread{ID: uuid.New(), Name: name, vm: vm, object: obj}
	if v := obj.GetNamed("daemon"); v.Kind() == KindInt {
		t.Daemon = v.Bool()
	}
	obj.Payload = t
	return t
}

// Start makes t runnable with m as its bottom frame. m's class is
// initialized first.
func (vm *VM) Start(t *Thread, m *Method, args ...Value) error {
	if t.status != ThreadNew {
		return fmt.Errorf("vm: thread %s already started", t.Name)
	}
	vm.sched.add(t)
	if !t.PushFrame(m, args) {
		return nil
	}
	t.initBeforeRun(m.DeclaringClass())
	return nil
}

// initBeforeRun arranges for c to be initialized before t executes its
// top frame.
func (t *Thread) initBeforeRun(c *Class) {
	var initFirst func(t *Thread)
	initFirst = func(t *Thread) {
		r := t.ensureInitialized(c)
		switch {
		case r.IsFailure():
			t.ThrowError(r.Err())
		case r.IsDefer() && t.status != ThreadRunnable:
			t.resume = initFirst
		}
	}
	t.resume = initFirst
}

// RunMain runs className.main(String[]) on a new "main" thread until the
// program ends.
func (vm *VM) RunMain(ctx context.Context, className string, args []string) error {
	r := vm.LoadClass(InternalName(className))
	if !r.IsSuccess() {
		return fmt.Errorf("vm: %s", r.Err())
	}
	main := r.Value().DeclaredMethod("main", "([Ljava/lang/String;)V")
	if main == nil || !main.IsStatic() {
		return fmt.Errorf("vm: %s has no static main(String[])", className)
	}
	arr := vm.NewStringArray(args)
	if err := vm.Start(vm.NewThread("main"), main, FromRef(arr)); err != nil {
		return err
	}
	return vm.Run(ctx)
}

// Run schedules threads until every non-daemon thread has terminated.
// It returns a *Fault for host-level faults, ErrDeadlock when nothing can
// ever run again, or the context's error.
func (vm *VM) Run(ctx context.Context) error {
	err := vm.sched.run(ctx)
	vm.host.OnExit()
	return err
}

// Post runs fn on the scheduler goroutine. It is safe to call from any
// goroutine while Run is active.
func (vm *VM) Post(fn func()) {
	vm.sched.post(fn)
}

// Threads returns the live threads.
func (vm *VM) Threads() []*Thread { return vm.sched.Threads() }

// printingHost reports uncaught exceptions on stderr the way the JDK
// launcher does.
type printingHost struct {
	vm *VM
}

func (h *printingHost) OnUncaught(t *Thread, exc *Object) {
	fmt.Fprintf(h.vm.stderr, "Exception in thread %q %s\n", t.Name, h.vm.FormatException(exc))
}

func (h *printingHost) OnExit() {}
