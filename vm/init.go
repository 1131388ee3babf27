package vm

// ---------------------------------------------------------------------------
// Class initialization
// ---------------------------------------------------------------------------

// ensureInitialized makes c usable by t. Classes without <clinit> are
// initialized on the spot, superclass first. Otherwise the <clinit> frame
// is pushed above an internal frame that records the outcome, and Defer
// is returned so the requesting instruction runs again afterwards. A
// class being initialized by another thread parks t until it finishes.
func (t *Thread) ensureInitialized(c *Class) Result[*Class] {
	switch c.status {
	case StatusInitialized:
		return Success(c)
	case StatusError:
		return Failure[*Class](NewThrowable(NoClassDefFoundError, "Could not initialize class %s", JavaName(c.Name)))
	case StatusInitializing:
		if c.initThread == t {
			return Success(c)
		}
		c.initWaiters = append(c.initWaiters, t)
		t.Block(ThreadBlocked, "initialization of "+c.Name)
		return Deferred[*Class]()
	}

	if c.Super != nil && c.Super.status != StatusInitialized {
		if r := t.ensureInitialized(c.Super); !r.IsSuccess() {
			return r
		}
	}

	clinit := c.DeclaredMethod("<clinit>", "()V")
	if clinit == nil {
		c.status = StatusInitialized
		return Success(c)
	}

	t.vm.log.Debugf("initializing %s on %s", c.Name, t.Name)
	c.status = StatusInitializing
	c.initThread = t
	t.PushInternal(&InternalFrame{
		Name: "<clinit> " + c.Name,
		OnReturn: func(t *Thread, _ Value) {
			c.finishInit(StatusInitialized)
		},
		OnError: func(t *Thread, exc *Object) bool {
			t.vm.log.Warningf("%s.<clinit> failed: %s", c.Name, exc.Class().Name)
			c.finishInit(StatusError)
			return false
		},
	})
	t.PushFrame(clinit, nil)
	return Deferred[*Class]()
}

// finishInit records the outcome of <clinit> and wakes parked threads.
func (c *Class) finishInit(s ClassStatus) {
	c.status = s
	c.initThread = nil
	waiters := c.initWaiters
	c.initWaiters = nil
	for _, w := range waiters {
		w.Wake()
	}
}

// Initialize runs c's initialization on t. It is the host entry point;
// the interpreter initializes classes lazily on first active use.
func (t *Thread) Initialize(c *Class) Result[*Class] {
	return t.ensureInitialized(c)
}
