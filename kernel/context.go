package kernel

// Context is the task-side call surface, handed to every task body. All
// methods are scheduling points; the blocking ones suspend the calling
// goroutine until the task is elected again.
type Context struct {
	k *Kernel
	t *Task
}

// Task returns the calling task's handle.
func (c *Context) Task() *Task { return c.t }

// Kernel returns the owning kernel instance.
func (c *Context) Kernel() *Kernel { return c.k }

func (c *Context) enter() {
	c.k.mu.Lock()
	if c.k.current != c.t {
		c.k.fault("kernel call from task %q which is not running", c.t.name)
	}
}

func (c *Context) exit() {
	c.k.maybePreemptLocked(c.t)
	c.k.mu.Unlock()
}

// Now returns the current tick count.
func (c *Context) Now() uint64 {
	c.enter()
	now := c.k.ticks
	c.exit()
	return now
}

// Yield gives up the remainder of the time slice. A context switch occurs
// if an equal-or-higher-priority task is ready.
func (c *Context) Yield() {
	c.enter()
	c.k.yieldLocked(c.t)
	c.exit()
}

// Delay blocks the task for n ticks. Delay(0) yields.
func (c *Context) Delay(n Ticks) {
	c.enter()
	c.k.delayLocked(c.t, n)
	c.exit()
}

// DelayUntil blocks until *ref + period ticks, then stores the new wake
// time in *ref. Unlike Delay it is immune to drift from time spent running.
// Reports whether the task actually blocked.
func (c *Context) DelayUntil(ref *uint64, period Ticks) bool {
	c.enter()
	target := *ref + uint64(period)
	*ref = target
	blocked := false
	if target > c.k.ticks {
		c.k.blockLocked(c.t, nil, Ticks(target-c.k.ticks))
		blocked = true
	}
	c.exit()
	return blocked
}

// Suspend suspends a task (nil or the caller's own handle self-suspends;
// the call then returns after some other context resumes the task).
func (c *Context) Suspend(t *Task) {
	c.enter()
	if t == nil || t == c.t {
		c.k.suspendLocked(c.t, true)
		c.k.electIfFreeLocked()
		c.k.waitRunLocked(c.t)
	} else {
		c.k.suspendLocked(t, false)
	}
	c.exit()
}

// Resume makes a suspended task ready. Reports whether the task was
// suspended.
func (c *Context) Resume(t *Task) bool {
	c.enter()
	ok := c.k.resumeLocked(t)
	c.exit()
	return ok
}

// SetPriority changes a task's base priority. Lowering the running task
// below a ready task switches immediately.
func (c *Context) SetPriority(t *Task, prio Prio) {
	c.enter()
	c.k.setPriorityLocked(t, prio)
	c.exit()
}

// Priority returns a task's base and effective priorities.
func (c *Context) Priority(t *Task) (base, effective Prio) {
	c.enter()
	base, effective = t.basePrio, t.effPrio
	c.k.mu.Unlock()
	return base, effective
}

// State returns a task's scheduling state.
func (c *Context) State(t *Task) TaskState {
	c.enter()
	s := t.state
	c.k.mu.Unlock()
	return s
}

// SuspendScheduler stops task switching until the matching
// ResumeScheduler. Nests; the caller keeps running and must not block.
// Interrupts still fire, but their ticks and wakeups are pended.
func (c *Context) SuspendScheduler() {
	c.enter()
	c.k.suspendSchedulerLocked(c.t)
	c.k.mu.Unlock()
}

// ResumeScheduler undoes one SuspendScheduler. The outermost call applies
// pended ticks and wakeups and is a scheduling point.
func (c *Context) ResumeScheduler() {
	c.enter()
	c.k.resumeSchedulerLocked(c.t)
	c.exit()
}
