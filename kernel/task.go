package kernel

// Prio is a scheduling priority. Higher values run first.
type Prio uint8

// TaskID is a stable numeric task handle. IDs are never reused; 0 is invalid.
type TaskID uint16

// Ticks is a duration in scheduler ticks.
type Ticks uint32

const (
	// NoWait makes a blocking operation fail immediately instead of waiting.
	NoWait Ticks = 0
	// Forever blocks without a timeout.
	Forever Ticks = ^Ticks(0)
)

// TaskState is the scheduling state of a task.
type TaskState uint8

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskBlocked
	TaskSuspended
	TaskDeleted
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskBlocked:
		return "blocked"
	case TaskSuspended:
		return "suspended"
	case TaskDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

type wakeReason uint8

const (
	wakeNone wakeReason = iota
	// wakeHandoff: a give satisfied the wait; the slot or ownership was
	// already transferred by the waker.
	wakeHandoff
	// wakeTimeout: the timeout elapsed (or the wait was unwound by a
	// suspend) with no transfer.
	wakeTimeout
	// wakeResume: woken from a plain delay or suspension.
	wakeResume
)

// Task is a task control block. A task belongs to at most one scheduling
// list at a time; its effective priority is always >= its base priority.
type Task struct {
	id   TaskID
	slot uint16
	name string
	body func(*Context)

	state    TaskState
	basePrio Prio
	effPrio  Prio

	// permit gates execution: the goroutine runs only after the scheduler
	// elects the task and grants the permit.
	permit chan struct{}
	wake   wakeReason

	stateList *listHead // ready, delayed or suspended list membership
	eventList *listHead // wait-list membership while blocked on a primitive
	delayed   bool      // state node is in the delta (timeout) list

	// holds lists the mutexes currently owned, oldest first. Needed to
	// recompute the effective priority when one of them is released.
	holds []*Mutex
	// blockedOn is the mutex this task is waiting for, for transitive
	// inheritance along owner chains.
	blockedOn *Mutex

	// xfer carries a queue item or message during a direct handoff from
	// giver to the head waiter.
	xfer    []byte
	xferLen int

	sliceExpired bool
}

// ID returns the task's stable numeric handle.
func (t *Task) ID() TaskID { return t.id }

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

func (t *Task) stateNode() uint16 { return t.slot * 2 }
func (t *Task) eventNode() uint16 { return t.slot*2 + 1 }

func (t *Task) setXfer(b []byte) {
	if cap(t.xfer) < len(b) {
		t.xfer = make([]byte, len(b))
	}
	t.xfer = t.xfer[:cap(t.xfer)]
	copy(t.xfer, b)
	t.xferLen = len(b)
}

// NewTask registers a task with the given name, base priority and body and
// returns its handle. The body runs on its own goroutine once the scheduler
// elects the task; it must reach kernel calls to honor preemption. A body
// that returns deletes its task.
func (k *Kernel) NewTask(name string, prio Prio, body func(*Context)) *Task {
	return k.NewTaskStatic(&Task{}, name, prio, body)
}

// NewTaskStatic is NewTask with a caller-supplied control block. The block
// must be zero-valued; runtime semantics are identical to NewTask.
func (k *Kernel) NewTaskStatic(t *Task, name string, prio Prio, body func(*Context)) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()

	if t == nil || t.permit != nil {
		k.fault("NewTaskStatic: control block %q is nil or already in use", name)
	}
	if int(prio) >= len(k.ready) {
		k.fault("NewTask %q: priority %d out of range (%d levels)", name, prio, len(k.ready))
	}
	if len(k.tasks) >= k.cfg.MaxTasks {
		k.fault("NewTask %q: task limit %d reached", name, k.cfg.MaxTasks)
	}

	t.slot = uint16(len(k.tasks))
	t.id = TaskID(t.slot + 1)
	t.name = name
	t.body = body
	t.basePrio = prio
	t.effPrio = prio
	t.permit = make(chan struct{}, 1)
	k.tasks = append(k.tasks, t)
	k.arena.nodes[t.stateNode()].owner = t
	k.arena.nodes[t.eventNode()].owner = t

	k.makeReadyLocked(t, wakeNone)
	go k.run(t)

	if k.started {
		k.electIfFreeLocked()
	}
	return t
}

func (k *Kernel) run(t *Task) {
	<-t.permit
	ctx := &Context{k: k, t: t}
	t.body(ctx)

	k.mu.Lock()
	t.state = TaskDeleted
	if len(t.holds) > 0 {
		k.fault("task %q exited holding %d mutex(es)", t.name, len(t.holds))
	}
	k.current = nil
	k.electIfFreeLocked()
	k.mu.Unlock()
}

// State returns the task's current scheduling state.
func (k *Kernel) State(t *Task) TaskState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.state
}

// Priority returns the task's base and effective priorities.
func (k *Kernel) Priority(t *Task) (base, effective Prio) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.basePrio, t.effPrio
}

// Suspend removes a task from scheduling until Resume. Suspending a task
// that is blocked on a primitive unwinds the wait with no side effects, as
// a timeout would.
func (k *Kernel) Suspend(t *Task) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.suspendLocked(t, false)
	k.electIfFreeLocked()
}

// Resume makes a suspended task ready again. Resuming a task that is not
// suspended has no effect.
func (k *Kernel) Resume(t *Task) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.resumeLocked(t)
	k.electIfFreeLocked()
}

// SetPriority changes a task's base priority. Any inherited boost above the
// new base is preserved until disinheritance.
func (k *Kernel) SetPriority(t *Task, prio Prio) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.setPriorityLocked(t, prio)
	k.electIfFreeLocked()
}
