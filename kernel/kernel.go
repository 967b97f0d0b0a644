package kernel

import "sync"

// Config sizes a kernel instance. Zero values select the defaults.
type Config struct {
	// PriorityLevels is the number of distinct task priorities (default 8).
	// Valid priorities are 0 .. PriorityLevels-1; higher runs first.
	PriorityLevels int
	// MaxTasks bounds the number of tasks ever created (default 32).
	MaxTasks int
	// MaxISRDepth bounds interrupt nesting (default 8).
	MaxISRDepth int
	// DisableTimeSlicing turns off round-robin rotation among ready tasks
	// of equal priority on each tick.
	DisableTimeSlicing bool
	// TimerTaskPriority is the priority of the timer service task.
	// 0 selects the default (the highest priority level).
	TimerTaskPriority Prio
	// TimerQueueDepth is the capacity of the timer command queue
	// (default 16).
	TimerQueueDepth int
	// MaxTimers bounds the number of live timers (default 16).
	MaxTimers int
}

func (c *Config) applyDefaults() {
	if c.PriorityLevels <= 0 {
		c.PriorityLevels = 8
	}
	if c.PriorityLevels > 256 {
		c.PriorityLevels = 256
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = 32
	}
	if c.MaxISRDepth <= 0 {
		c.MaxISRDepth = 8
	}
	if c.TimerTaskPriority == 0 || int(c.TimerTaskPriority) >= c.PriorityLevels {
		c.TimerTaskPriority = Prio(c.PriorityLevels - 1)
	}
	if c.TimerQueueDepth <= 0 {
		c.TimerQueueDepth = 16
	}
	if c.MaxTimers <= 0 {
		c.MaxTimers = 16
	}
}

// Kernel is one scheduler instance: ready lists, tick counter, timer
// service and all tasks created against it. Instances are independent;
// tests run many side by side.
//
// The model is single-core: exactly one task goroutine holds the run
// permit at a time, and every kernel call is a scheduling point.
type Kernel struct {
	mu   sync.Mutex
	idle *sync.Cond

	cfg Config

	ticks       uint64
	pendedTicks uint32

	tasks []*Task
	arena *nodeArena

	ready     []listHead
	delayed   listHead // delta list of timeouts and delays
	suspended listHead
	pending   listHead // made ready while the scheduler was suspended

	current      *Task
	started      bool
	schedSuspend int
	isrDepth     int

	timers *timerService
}

// New creates a kernel instance. Tasks may be created immediately; nothing
// runs until Start.
func New(cfg Config) *Kernel {
	cfg.applyDefaults()

	k := &Kernel{
		cfg:   cfg,
		arena: newNodeArena(cfg.MaxTasks * 2),
		ready: make([]listHead, cfg.PriorityLevels),
	}
	k.idle = sync.NewCond(&k.mu)
	for i := range k.ready {
		k.ready[i].init()
	}
	k.delayed.init()
	k.suspended.init()
	k.pending.init()
	k.timers = newTimerService(k)
	return k
}

// Start launches the timer service task and begins scheduling.
func (k *Kernel) Start() {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		k.fault("Start called twice")
	}
	k.mu.Unlock()

	k.timers.startService()

	k.mu.Lock()
	k.started = true
	k.electIfFreeLocked()
	k.mu.Unlock()
}

// Now returns the current tick count.
func (k *Kernel) Now() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// Tick advances kernel time by one tick from a fresh interrupt context.
// Equivalent to EnterISR / ISR.Tick / ISR.Exit.
func (k *Kernel) Tick() {
	isr := k.EnterISR()
	isr.Tick()
	isr.Exit()
}

// WaitIdle blocks until no task is runnable: the running task (if any) has
// blocked, suspended or exited and the ready lists are empty. Tick drivers
// and tests use it to observe quiescent state between ticks.
func (k *Kernel) WaitIdle() {
	k.mu.Lock()
	for !k.idleLocked() {
		k.idle.Wait()
	}
	k.mu.Unlock()
}

func (k *Kernel) idleLocked() bool {
	if !k.started || k.current != nil || k.isrDepth > 0 {
		return false
	}
	return k.topReadyLocked() < 0
}

func (k *Kernel) checkIdleLocked() {
	if k.idleLocked() {
		k.idle.Broadcast()
	}
}

// TaskInfo is a point-in-time snapshot of one task.
type TaskInfo struct {
	ID           TaskID
	Name         string
	State        TaskState
	BasePriority Prio
	Priority     Prio // effective; >= BasePriority while boosted
}

// TaskInfos returns a snapshot of every task, in creation order.
func (k *Kernel) TaskInfos() []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]TaskInfo, 0, len(k.tasks))
	for _, t := range k.tasks {
		out = append(out, TaskInfo{
			ID:           t.id,
			Name:         t.name,
			State:        t.state,
			BasePriority: t.basePrio,
			Priority:     t.effPrio,
		})
	}
	return out
}

// TimerInfo is a point-in-time snapshot of one timer.
type TimerInfo struct {
	Name   string
	Period Ticks
	Active bool
	Expiry uint64 // absolute tick; meaningful only while active
}

// TimerInfos returns a snapshot of every live timer.
func (k *Kernel) TimerInfos() []TimerInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.timers.infosLocked()
}
