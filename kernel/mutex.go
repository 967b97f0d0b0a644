package kernel

// Mutex is an ownership-tracking lock with priority inheritance. The
// recursive variant may be taken repeatedly by its owner and needs an equal
// number of gives. Waiters are served highest effective priority first,
// FIFO within a priority.
type Mutex struct {
	k         *Kernel
	recursive bool

	owner   *Task
	depth   uint32
	waiters listHead
}

// NewMutex creates a plain (non-recursive) mutex.
func (k *Kernel) NewMutex() *Mutex {
	return k.InitMutex(&Mutex{})
}

// NewRecursiveMutex creates a recursive mutex.
func (k *Kernel) NewRecursiveMutex() *Mutex {
	m := k.InitMutex(&Mutex{})
	m.recursive = true
	return m
}

// InitMutex initializes a caller-supplied zero-valued control block.
// Runtime semantics are identical to NewMutex.
func (k *Kernel) InitMutex(m *Mutex) *Mutex {
	if m.k != nil {
		k.fault("InitMutex: control block already in use")
	}
	m.k = k
	m.waiters.init()
	return m
}

// InitRecursiveMutex initializes a caller-supplied zero-valued control
// block as a recursive mutex.
func (k *Kernel) InitRecursiveMutex(m *Mutex) *Mutex {
	k.InitMutex(m)
	m.recursive = true
	return m
}

// Take acquires the mutex, blocking up to timeout ticks. On a recursive
// mutex the owner may nest; only the first take affects ownership and
// inheritance. A timed-out take leaves the mutex untouched.
func (m *Mutex) Take(c *Context, timeout Ticks) error {
	c.enter()
	k, t := c.k, c.t
	if m.k != k {
		k.fault("mutex used across kernel instances")
	}

	if m.owner == nil {
		m.owner = t
		m.depth = 1
		t.holds = append(t.holds, m)
		c.exit()
		return nil
	}
	if m.owner == t {
		if m.recursive {
			m.depth++
			c.exit()
			return nil
		}
		if timeout == NoWait {
			c.exit()
			return ErrWouldBlock
		}
		// Ownership graphs stay acyclic: a task never waits on a mutex
		// it already holds.
		k.fault("task %q waiting on a mutex it holds", t.name)
	}
	if timeout == NoWait {
		c.exit()
		return ErrWouldBlock
	}

	k.inheritLocked(m, t)
	t.blockedOn = m
	reason := k.blockLocked(t, &m.waiters, timeout)
	t.blockedOn = nil
	if reason != wakeHandoff && m.owner != nil {
		// Our boost may no longer be justified.
		k.refreshPrioLocked(m.owner)
	}
	c.exit()
	if reason == wakeHandoff {
		return nil
	}
	return ErrTimedOut
}

// Give releases one level of ownership. The final give transfers the mutex
// atomically to the highest-priority waiter, if any, and returns the caller
// to its disinherited priority.
func (m *Mutex) Give(c *Context) error {
	c.enter()
	k, t := c.k, c.t
	if m.k != k {
		k.fault("mutex used across kernel instances")
	}

	if m.owner != t {
		c.exit()
		return ErrNotOwner
	}
	if m.recursive && m.depth > 1 {
		m.depth--
		c.exit()
		return nil
	}
	k.releaseMutexLocked(m, t)
	c.exit()
	return nil
}

// GiveISR releases a plain mutex from interrupt context on behalf of its
// owner. Generally inadvisable, but permitted by convention: it succeeds
// exactly once per held mutex and fails with ErrNotOwner when the mutex is
// free or recursive.
func (m *Mutex) GiveISR(i *ISR) error {
	i.check()
	k := i.k
	if m.k != k {
		k.fault("mutex used across kernel instances")
	}
	if m.recursive || m.owner == nil {
		return ErrNotOwner
	}
	k.releaseMutexLocked(m, m.owner)
	return nil
}

// Owner returns the task currently holding the mutex, or nil.
func (m *Mutex) Owner() *Task {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	return m.owner
}

// RecursionDepth returns the current nesting depth (0 when free).
func (m *Mutex) RecursionDepth() int {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	return int(m.depth)
}

// inheritLocked boosts the owner chain so no holder runs below the
// priority of the task about to wait. Transitive: if the owner is itself
// blocked on another mutex, that mutex's owner inherits too.
func (k *Kernel) inheritLocked(m *Mutex, t *Task) {
	cur := m
	for cur != nil && cur.owner != nil && cur.owner.effPrio < t.effPrio {
		owner := cur.owner
		k.applyEffPrioLocked(owner, t.effPrio)
		cur = owner.blockedOn
	}
}

// releaseMutexLocked performs the final release: drops the mutex from the
// holder's ownership set, disinherits, and hands ownership to the head
// waiter if one exists.
func (k *Kernel) releaseMutexLocked(m *Mutex, t *Task) {
	for i, held := range t.holds {
		if held == m {
			t.holds = append(t.holds[:i], t.holds[i+1:]...)
			break
		}
	}
	k.refreshPrioLocked(t)

	if w := k.arena.front(&m.waiters); w != nil {
		m.owner = w
		m.depth = 1
		w.holds = append(w.holds, m)
		k.makeReadyLocked(w, wakeHandoff)
		return
	}
	m.owner = nil
	m.depth = 0
}

// refreshPrioLocked recomputes a task's effective priority: the maximum of
// its base priority and the priorities of tasks still blocked on any mutex
// it owns.
func (k *Kernel) refreshPrioLocked(t *Task) {
	eff := t.basePrio
	if boost := k.maxWaiterPrioLocked(t); boost > eff {
		eff = boost
	}
	k.applyEffPrioLocked(t, eff)
}
