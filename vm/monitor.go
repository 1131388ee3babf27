package vm

import "time"

// ---------------------------------------------------------------------------
// Monitor: per-object re-entrant lock with a wait set
// ---------------------------------------------------------------------------

// Monitor is the lock every object carries. Threads that fail to enter
// are parked Blocked on the entry list and retry when woken; threads in
// Object.wait sit in the wait set until notified or timed out.
type Monitor struct {
	owner    *Thread
	count    int
	entrants []*Thread
	waiters  []*Thread
}

// Owner returns the owning thread, or nil.
func (m *Monitor) Owner() *Thread { return m.owner }

// Enter acquires the monitor for t. When another thread owns it, t is
// parked Blocked and Enter returns false; the caller retries once t is
// scheduled again.
func (m *Monitor) Enter(t *Thread) bool {
	if m.owner == nil || m.owner == t {
		m.owner = t
		m.count++
		m.removeEntrant(t)
		return true
	}
	if !containsThread(m.entrants, t) {
		m.entrants = append(m.entrants, t)
	}
	t.Block(ThreadBlocked, "monitor")
	return false
}

// Exit releases one level of ownership. It reports false when t is not
// the owner.
func (m *Monitor) Exit(t *Thread) bool {
	if m.owner != t {
		return false
	}
	m.count--
	if m.count == 0 {
		m.owner = nil
		m.wakeEntrant()
	}
	return true
}

// Wait releases the monitor completely and parks t in the wait set until
// Notify, NotifyAll or the timeout (zero means none). After re-acquiring
// with the saved count it calls then. It reports false when t is not the
// owner.
func (m *Monitor) Wait(t *Thread, timeout time.Duration, then func(t *Thread)) bool {
	if m.owner != t {
		return false
	}
	saved := m.count
	m.owner, m.count = nil, 0
	m.waiters = append(m.waiters, t)
	m.wakeEntrant()

	var reacquire func(t *Thread)
	reacquire = func(t *Thread) {
		m.removeWaiter(t)
		if m.owner != nil && m.owner != t {
			if !containsThread(m.entrants, t) {
				m.entrants = append(m.entrants, t)
			}
			t.resume = reacquire
			t.Block(ThreadBlocked, "monitor")
			return
		}
		m.removeEntrant(t)
		m.owner, m.count = t, saved
		then(t)
	}
	t.resume = reacquire
	if timeout > 0 {
		t.wakeAt = time.Now().Add(timeout)
		t.Block(ThreadTimedWaiting, "wait")
	} else {
		t.Block(ThreadWaiting, "wait")
	}
	return true
}

// Notify wakes one thread of the wait set. It reports false when t is not
// the owner.
func (m *Monitor) Notify(t *Thread) bool {
	if m.owner != t {
		return false
	}
	if len(m.waiters) > 0 {
		w := m.waiters[0]
		m.waiters = m.waiters[1:]
		w.Wake()
	}
	return true
}

// NotifyAll wakes every thread of the wait set.
func (m *Monitor) NotifyAll(t *Thread) bool {
	if m.owner != t {
		return false
	}
	m.wakeAllWaiters()
	return true
}

// releaseAll drops every level t holds, as when a thread terminates.
func (m *Monitor) releaseAll(t *Thread) {
	if m.owner == t {
		m.owner, m.count = nil, 0
		m.wakeEntrant()
	}
}

func (m *Monitor) wakeEntrant() {
	if len(m.entrants) == 0 {
		return
	}
	e := m.entrants[0]
	m.entrants = m.entrants[1:]
	e.Wake()
}

func (m *Monitor) wakeAllWaiters() {
	ws := m.waiters
	m.waiters = nil
	for _, w := range ws {
		w.Wake()
	}
}

func (m *Monitor) removeEntrant(t *Thread) {
	m.entrants = removeThread(m.entrants, t)
}

func (m *Monitor) removeWaiter(t *Thread) {
	m.waiters = removeThread(m.waiters, t)
}

func containsThread(ts []*Thread, t *Thread) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

func removeThread(ts []*Thread, t *Thread) []*Thread {
	for i, x := range ts {
		if x == t {
			return append(ts[:i], ts[i+1:]...)
		}
	}
	return ts
}
