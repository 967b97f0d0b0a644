package kernel

// ISR is the interrupt-side call surface. It is obtained from EnterISR and
// exposes only operations that can never wait; anything that cannot
// complete immediately reports failure instead.
//
// While an ISR is open the kernel lock is held, so task-context kernel
// calls are masked until the outermost Exit. That Exit is also the
// scheduling epilogue: a task woken from interrupt context is elected
// there, without waiting for the next tick.
type ISR struct {
	k    *Kernel
	done bool
}

// EnterISR opens an interrupt context. Interrupt handlers nest via Nest,
// not by calling EnterISR again.
func (k *Kernel) EnterISR() *ISR {
	k.mu.Lock()
	if k.isrDepth >= k.cfg.MaxISRDepth {
		k.fault("interrupt nesting deeper than %d", k.cfg.MaxISRDepth)
	}
	k.isrDepth++
	return &ISR{k: k}
}

// Nest opens a nested interrupt context, preempting this one until the
// nested Exit.
func (i *ISR) Nest() *ISR {
	i.check()
	if i.k.isrDepth >= i.k.cfg.MaxISRDepth {
		i.k.fault("interrupt nesting deeper than %d", i.k.cfg.MaxISRDepth)
	}
	i.k.isrDepth++
	return &ISR{k: i.k}
}

// Exit closes the interrupt context. The outermost Exit runs the scheduler
// epilogue.
func (i *ISR) Exit() {
	i.check()
	i.done = true
	i.k.isrDepth--
	if i.k.isrDepth == 0 {
		i.k.electIfFreeLocked()
		i.k.mu.Unlock()
	}
}

func (i *ISR) check() {
	if i.done {
		i.k.fault("use of exited interrupt context")
	}
}

// Tick advances kernel time by one tick: timeouts expire, delays elapse
// and equal-priority ready tasks rotate if time slicing is enabled.
func (i *ISR) Tick() {
	i.check()
	i.k.tickLocked()
}

// Now returns the current tick count.
func (i *ISR) Now() uint64 {
	i.check()
	return i.k.ticks
}

// Resume makes a suspended task ready from interrupt context. Reports
// whether the task was suspended.
func (i *ISR) Resume(t *Task) bool {
	i.check()
	return i.k.resumeLocked(t)
}
