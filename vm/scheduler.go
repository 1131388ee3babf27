package vm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Scheduler: round-robin, one guest thread at a time
// ---------------------------------------------------------------------------

// DefaultQuantum is the number of instructions a thread runs before the
// scheduler moves to the next runnable thread.
const DefaultQuantum = 1000

// Scheduler multiplexes guest threads onto the goroutine calling Run.
// Threads leave the run queue when they leave Runnable and rejoin at the
// tail when they become Runnable again.
type Scheduler struct {
	vm      *VM
	quantum int
	queue   []*Thread
	threads []*Thread
	current *Thread
	posted  chan func()
	pending atomic.Int32
	log     commonlog.Logger
}

func newScheduler(vm *VM, quantum int) *Scheduler {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	return &Scheduler{
		vm:      vm,
		quantum: quantum,
		posted:  make(chan func(), 64),
		log:     commonlog.GetLogger("jolt.sched"),
	}
}

// Quantum returns the configured time slice in instructions.
func (s *Scheduler) Quantum() int { return s.quantum }

// Current returns the thread executing right now, or nil between slices.
func (s *Scheduler) Current() *Thread { return s.current }

// Threads returns every live thread known to the scheduler.
func (s *Scheduler) Threads() []*Thread {
	out := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		if t.status != ThreadTerminated {
			out = append(out, t)
		}
	}
	return out
}

// add registers a new thread and makes it runnable.
func (s *Scheduler) add(t *Thread) {
	s.threads = append(s.threads, t)
	t.setStatus(ThreadRunnable)
}

// statusChanged is called by Thread.setStatus on every transition.
func (s *Scheduler) statusChanged(t *Thread, old, now ThreadStatus) {
	s.log.Debugf("%s: %s -> %s", t.Name, old, now)
	if now == ThreadRunnable && !t.queued && t != s.current {
		s.enqueue(t)
	}
}

func (s *Scheduler) enqueue(t *Thread) {
	t.queued = true
	s.queue = append(s.queue, t)
}

// next pops the first runnable thread, discarding threads that left
// Runnable while queued.
func (s *Scheduler) next() *Thread {
	for len(s.queue) > 0 {
		t := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		t.queued = false
		if t.status == ThreadRunnable {
			return t
		}
	}
	return nil
}

// post schedules fn to run on the scheduler goroutine. It may be called
// from any goroutine; Run keeps waiting while posts are outstanding.
func (s *Scheduler) post(fn func()) {
	s.pending.Add(1)
	s.posted <- func() {
		s.pending.Add(-1)
		fn()
	}
}

func (s *Scheduler) drainPosted() {
	for {
		select {
		case fn := <-s.posted:
			fn()
		default:
			return
		}
	}
}

// wakeTimed wakes timed waiters whose deadline has passed and returns the
// earliest remaining deadline.
func (s *Scheduler) wakeTimed(now time.Time) (earliest time.Time) {
	for _, t := range s.threads {
		if t.status != ThreadTimedWaiting {
			continue
		}
		if !t.wakeAt.After(now) {
			t.Wake()
			continue
		}
		if earliest.IsZero() || t.wakeAt.Before(earliest) {
			earliest = t.wakeAt
		}
	}
	return earliest
}

func (s *Scheduler) prune() (live, nonDaemon int) {
	kept := s.threads[:0]
	for _, t := range s.threads {
		if t.status == ThreadTerminated {
			continue
		}
		kept = append(kept, t)
		live++
		if !t.Daemon {
			nonDaemon++
		}
	}
	for i := len(kept); i < len(s.threads); i++ {
		s.threads[i] = nil
	}
	s.threads = kept
	return live, nonDaemon
}

// run drives threads until every non-daemon thread has terminated, ctx is
// cancelled, a fault occurs or the remaining threads can never run again.
func (s *Scheduler) run(ctx context.Context) error {
	if _, nonDaemon := s.prune(); nonDaemon == 0 {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.drainPosted()
		earliest := s.wakeTimed(time.Now())

		if t := s.next(); t != nil {
			s.current = t
			_, err := t.RunFor(s.quantum)
			s.current = nil
			if err != nil {
				s.log.Errorf("%s: %s", t.Name, err)
				return err
			}
			switch {
			case t.status == ThreadRunnable && !t.queued:
				s.enqueue(t)
			case t.status == ThreadTerminated && !t.Daemon:
				// Runnable daemons do not keep the VM alive.
				if _, nonDaemon := s.prune(); nonDaemon == 0 {
					return nil
				}
			}
			continue
		}

		live, nonDaemon := s.prune()
		if live == 0 || nonDaemon == 0 {
			return nil
		}
		if s.pending.Load() == 0 && earliest.IsZero() {
			s.log.Warningf("deadlock with %d live threads", live)
			return ErrDeadlock
		}
		if err := s.idle(ctx, earliest); err != nil {
			return err
		}
	}
}

// idle blocks until a post arrives, the earliest deadline passes or ctx
// is done.
func (s *Scheduler) idle(ctx context.Context, earliest time.Time) error {
	var timeout <-chan time.Time
	if !earliest.IsZero() {
		timer := time.NewTimer(time.Until(earliest))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case fn := <-s.posted:
		fn()
	case <-timeout:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
