package kernel

// Semaphore is a counting semaphore. A give with waiters present transfers
// the unit atomically to the highest-priority, earliest waiter; the count
// never moves while anyone is blocked taking.
type Semaphore struct {
	k       *Kernel
	count   uint32
	max     uint32
	waiters listHead
}

// NewCountingSemaphore creates a semaphore with the given maximum and
// initial count.
func (k *Kernel) NewCountingSemaphore(max, initial uint32) *Semaphore {
	return k.InitCountingSemaphore(&Semaphore{}, max, initial)
}

// NewBinarySemaphore creates a semaphore with maximum count 1, initially
// empty. The usual ISR-to-task signalling primitive.
func (k *Kernel) NewBinarySemaphore() *Semaphore {
	return k.InitCountingSemaphore(&Semaphore{}, 1, 0)
}

// InitCountingSemaphore initializes a caller-supplied zero-valued control
// block. Runtime semantics are identical to NewCountingSemaphore.
func (k *Kernel) InitCountingSemaphore(s *Semaphore, max, initial uint32) *Semaphore {
	if s.k != nil {
		k.fault("InitCountingSemaphore: control block already in use")
	}
	if max == 0 || initial > max {
		k.fault("semaphore max %d / initial %d invalid", max, initial)
	}
	s.k = k
	s.count = initial
	s.max = max
	s.waiters.init()
	return s
}

// Take obtains one unit, blocking up to timeout ticks.
func (s *Semaphore) Take(c *Context, timeout Ticks) error {
	c.enter()
	k, t := c.k, c.t
	if s.k != k {
		k.fault("semaphore used across kernel instances")
	}

	if s.count > 0 {
		s.count--
		c.exit()
		return nil
	}
	if timeout == NoWait {
		c.exit()
		return ErrWouldBlock
	}
	reason := k.blockLocked(t, &s.waiters, timeout)
	c.exit()
	if reason == wakeHandoff {
		return nil
	}
	return ErrTimedOut
}

// TakeISR obtains one unit from interrupt context, failing immediately if
// none is available.
func (s *Semaphore) TakeISR(i *ISR) error {
	i.check()
	if s.k != i.k {
		i.k.fault("semaphore used across kernel instances")
	}
	if s.count == 0 {
		return ErrWouldBlock
	}
	s.count--
	return nil
}

// Give releases one unit. Giving past the maximum count is rejected with
// ErrCapacityExceeded and changes nothing.
func (s *Semaphore) Give(c *Context) error {
	c.enter()
	err := s.giveLocked(c.k)
	c.exit()
	return err
}

// GiveISR releases one unit from interrupt context.
func (s *Semaphore) GiveISR(i *ISR) error {
	i.check()
	return s.giveLocked(i.k)
}

func (s *Semaphore) giveLocked(k *Kernel) error {
	if s.k != k {
		k.fault("semaphore used across kernel instances")
	}
	if w := k.arena.front(&s.waiters); w != nil {
		k.makeReadyLocked(w, wakeHandoff)
		return nil
	}
	if s.count == s.max {
		return ErrCapacityExceeded
	}
	s.count++
	return nil
}

// Count returns the currently available units.
func (s *Semaphore) Count() uint32 {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.count
}

// Max returns the maximum count.
func (s *Semaphore) Max() uint32 { return s.max }
