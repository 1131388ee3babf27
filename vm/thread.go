package vm

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Thread: a guest thread and its frame stack
// ---------------------------------------------------------------------------

// ThreadStatus is the scheduling state of a thread.
type ThreadStatus uint8

const (
	ThreadNew ThreadStatus = iota
	ThreadRunnable
	ThreadBlocked      // waiting for a monitor or a class initialization
	ThreadWaiting      // Object.wait or an async native
	ThreadTimedWaiting // sleep or timed wait; woken at wakeAt
	ThreadTerminated
)

var threadStatusNames = [...]string{"NEW", "RUNNABLE", "BLOCKED", "WAITING", "TIMED_WAITING", "TERMINATED"}

func (s ThreadStatus) String() string {
	if int(s) < len(threadStatusNames) {
		return threadStatusNames[s]
	}
	return fmt.Sprintf("ThreadStatus(%d)", s)
}

// Thread is one guest thread. Only the scheduler goroutine touches it.
type Thread struct {
	ID     uuid.UUID
	Name   string
	Daemon bool

	vm      *VM
	frames  []Frame
	status  ThreadStatus
	object  *Object
	wakeAt  time.Time
	waitFor string // what a non-runnable thread is parked on, for dumps

	queued      bool
	yield       bool
	resume      func(t *Thread)
	dispatching bool // running dispatchUncaughtException
	interrupted bool
}

// VM returns the runtime the thread belongs to.
func (t *Thread) VM() *VM { return t.vm }

// Status returns the scheduling state.
func (t *Thread) Status() ThreadStatus { return t.status }

// Object returns the guest java/lang/Thread object, or nil.
func (t *Thread) Object() *Object { return t.object }

// Frames returns the frame stack, bottom first.
func (t *Thread) Frames() []Frame { return t.frames }

// Depth returns the number of frames.
func (t *Thread) Depth() int { return len(t.frames) }

// TopFrame returns the top frame, or nil.
func (t *Thread) TopFrame() Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// CurrentFrame returns the top frame if it is a Java frame.
func (t *Thread) CurrentFrame() *JavaFrame {
	f, _ := t.TopFrame().(*JavaFrame)
	return f
}

func (t *Thread) String() string {
	return fmt.Sprintf("Thread[%s,%s]", t.Name, t.status)
}

// ---------------------------------------------------------------------------
// Frame stack operations
// ---------------------------------------------------------------------------

// PushFrame starts m on t with the given arguments: the receiver first for
// instance methods, then one value per parameter. Wide arguments are laid
// out over two local slots. It returns false if an exception was raised
// instead.
func (t *Thread) PushFrame(m *Method, args []Value) bool {
	slots := slotsOf(args)
	if m.IsNative() {
		return t.callNative(m, slots)
	}
	if len(t.frames) >= t.vm.maxFrameDepth {
		t.Raise(StackOverflowError, "")
		return false
	}
	f := NewJavaFrame(m)
	copy(f.Locals, slots)
	if m.Access.IsSynchronized() {
		f.pendingLock = t.methodLock(m, slots)
	}
	t.frames = append(t.frames, f)
	return true
}

// slotsOf lays values out as local slots; wide values take two.
func slotsOf(args []Value) []Value {
	slots := make([]Value, 0, len(args)+2)
	for _, a := range args {
		slots = append(slots, a)
		if a.IsWide() {
			slots = append(slots, a)
		}
	}
	return slots
}

// PushInternal pushes a host continuation frame.
func (t *Thread) PushInternal(f *InternalFrame) {
	t.frames = append(t.frames, f)
}

// Upcall runs m above an internal frame whose callbacks receive its
// outcome. It is how the runtime calls guest code on its own behalf.
func (t *Thread) Upcall(name string, m *Method, args []Value, onReturn func(*Thread, Value), onError func(*Thread, *Object)) {
	t.PushInternal(&InternalFrame{
		Name:     name,
		OnReturn: onReturn,
		OnError: func(t *Thread, exc *Object) bool {
			if onError != nil {
				onError(t, exc)
			}
			return false
		},
	})
	t.PushFrame(m, args)
}

// ReturnFrame pops the top frame and delivers v (Void for void methods)
// to the frame below: pushed onto a Java frame's operand stack, or passed
// to an internal frame's continuation after popping it.
func (t *Thread) ReturnFrame(v Value) {
	if len(t.frames) == 0 {
		return
	}
	top := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	if jf, ok := top.(*JavaFrame); ok && jf.locked != nil {
		jf.locked.Monitor().Exit(t)
	}
	t.deliver(v)
}

// deliver hands a call result to whatever is now on top of the stack.
func (t *Thread) deliver(v Value) {
	if len(t.frames) == 0 {
		t.terminate()
		return
	}
	switch below := t.frames[len(t.frames)-1].(type) {
	case *JavaFrame:
		below.completeInvoke(v)
	case *InternalFrame:
		t.frames = t.frames[:len(t.frames)-1]
		if below.OnReturn != nil {
			below.OnReturn(t, v)
		}
		if len(t.frames) == 0 && t.status != ThreadTerminated {
			t.terminate()
		}
	}
}

// PushStack pushes onto the top Java frame, raising StackOverflowError
// instead when max stack is reached.
func (t *Thread) PushStack(v Value) bool {
	return t.pushChecked(v, false)
}

// PushStack64 pushes a two-slot value onto the top Java frame.
func (t *Thread) PushStack64(v Value) bool {
	return t.pushChecked(v, true)
}

func (t *Thread) pushChecked(v Value, wide bool) bool {
	f := t.CurrentFrame()
	if f == nil {
		panic(fault("push with no Java frame"))
	}
	need := 1
	if wide {
		need = 2
	}
	if len(f.Stack)+need > f.maxStack {
		t.Raise(StackOverflowError, "operand stack")
		return false
	}
	f.Stack = append(f.Stack, v)
	if wide {
		f.Stack = append(f.Stack, v)
	}
	return true
}

// PopStack pops one slot from the top Java frame.
func (t *Thread) PopStack() Value {
	f := t.CurrentFrame()
	if f == nil {
		panic(fault("pop with no Java frame"))
	}
	return f.Pop()
}

// PopStack64 pops a two-slot value from the top Java frame.
func (t *Thread) PopStack64() Value {
	f := t.CurrentFrame()
	if f == nil {
		panic(fault("pop with no Java frame"))
	}
	return f.Pop64()
}

// ---------------------------------------------------------------------------
// Status transitions
// ---------------------------------------------------------------------------

func (t *Thread) setStatus(s ThreadStatus) {
	if t.status == s {
		return
	}
	old := t.status
	t.status = s
	if s == ThreadRunnable {
		t.waitFor = ""
	}
	t.vm.sched.statusChanged(t, old, s)
}

// Block parks t in status s until Wake is called. reason is shown in dumps.
func (t *Thread) Block(s ThreadStatus, reason string) {
	t.waitFor = reason
	t.setStatus(s)
}

// Wake makes a parked thread runnable again.
func (t *Thread) Wake() {
	if t.status == ThreadTerminated || t.status == ThreadRunnable {
		return
	}
	t.setStatus(ThreadRunnable)
}

// Sleep parks t until d has elapsed, then runs then.
func (t *Thread) Sleep(d time.Duration, then func(t *Thread)) {
	t.wakeAt = time.Now().Add(d)
	t.resume = then
	t.Block(ThreadTimedWaiting, "sleep")
}

// Yield ends t's time slice after the current instruction.
func (t *Thread) Yield() { t.yield = true }

// Interrupt sets t's interrupt flag. A thread parked in sleep, wait or
// join is woken so it can observe the flag.
func (t *Thread) Interrupt() {
	t.interrupted = true
	switch t.waitFor {
	case "sleep", "wait", "join":
		t.Wake()
	}
}

// Interrupted reports the interrupt flag without clearing it.
func (t *Thread) Interrupted() bool { return t.interrupted }

// takeInterrupt clears the interrupt flag and returns its old value.
func (t *Thread) takeInterrupt() bool {
	was := t.interrupted
	t.interrupted = false
	return was
}

func (t *Thread) terminate() {
	if t.status == ThreadTerminated {
		return
	}
	t.frames = nil
	t.resume = nil
	t.setStatus(ThreadTerminated)
	if t.object != nil && t.object.monitor != nil {
		t.object.monitor.wakeAllWaiters()
	}
}

// ---------------------------------------------------------------------------
// Native completion
// ---------------------------------------------------------------------------

// CompleteNative finishes an async native call started on t with result v.
func (t *Thread) CompleteNative(v Value) {
	f := t.CurrentFrame()
	if f == nil || !f.awaitingNative {
		panic(fault("CompleteNative with no pending native call"))
	}
	f.completeInvoke(v)
	t.Wake()
}

// FailNative finishes an async native call by throwing exc.
func (t *Thread) FailNative(exc *Object) {
	f := t.CurrentFrame()
	if f == nil || !f.awaitingNative {
		panic(fault("FailNative with no pending native call"))
	}
	f.awaitingNative = false
	f.returnPC = -1
	t.Wake()
	t.Throw(exc)
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func (t *Thread) runnable() bool {
	return t.status == ThreadRunnable && len(t.frames) > 0 && !t.yield
}

// RunFor executes up to quantum instructions, stopping early when t
// leaves Runnable, yields or terminates. A non-nil error is a Fault.
func (t *Thread) RunFor(quantum int) (executed int, err error) {
	t.yield = false
	for executed < quantum && (t.runnable() || t.resume != nil && t.status == ThreadRunnable) {
		n, err := t.runBatch(quantum - executed)
		executed += n
		if err != nil {
			return executed, err
		}
	}
	if t.status == ThreadRunnable && len(t.frames) == 0 && t.resume == nil {
		t.terminate()
	}
	return executed, nil
}

// runBatch is the protected region of RunFor: operand overflow becomes a
// guest StackOverflowError and a Fault ends the batch with an error.
func (t *Thread) runBatch(budget int) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = t.recovered(r)
		}
	}()
	for n < budget && t.status == ThreadRunnable {
		if t.resume != nil {
			fn := t.resume
			t.resume = nil
			fn(t)
			continue
		}
		if len(t.frames) == 0 || t.yield {
			return n, nil
		}
		n++
		t.step()
	}
	return n, nil
}

// protect runs fn with the same recovery as the interpreter loop.
func (t *Thread) protect(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = t.recovered(r)
		}
	}()
	fn()
	return nil
}

func (t *Thread) recovered(r any) error {
	switch x := r.(type) {
	case operandOverflow:
		t.Raise(StackOverflowError, "operand stack")
		return nil
	case *Fault:
		t.annotate(x)
		return x
	case runtime.Error:
		f := fault("%v", x)
		t.annotate(f)
		return f
	}
	panic(r)
}

func (t *Thread) annotate(f *Fault) {
	if f.Thread == "" {
		f.Thread = t.Name
	}
	if jf := t.CurrentFrame(); jf != nil && f.Method == "" {
		f.Method = jf.Method.String()
		f.PC = jf.PC
	}
}
