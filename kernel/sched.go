package kernel

// Election and blocking. All functions here require k.mu held unless noted.
//
// The running task is not kept in a ready list: it is popped on election and
// reinserted when preempted or when it yields. A blocked task sits in a
// primitive's wait list via its event node and, if the wait has a timeout,
// in the delta list via its state node.

// topReadyLocked returns the highest occupied ready priority, or -1.
func (k *Kernel) topReadyLocked() int {
	for p := len(k.ready) - 1; p >= 0; p-- {
		if !k.ready[p].empty() {
			return p
		}
	}
	return -1
}

// electIfFreeLocked grants the run permit to the highest-priority ready
// task, if scheduling is possible and no task currently holds the permit.
func (k *Kernel) electIfFreeLocked() {
	if !k.started || k.current != nil || k.isrDepth > 0 || k.schedSuspend > 0 {
		k.checkIdleLocked()
		return
	}
	for p := len(k.ready) - 1; p >= 0; p-- {
		if k.ready[p].empty() {
			continue
		}
		t := k.arena.popFront(&k.ready[p])
		t.stateList = nil
		t.state = TaskRunning
		k.current = t
		t.permit <- struct{}{}
		return
	}
	k.checkIdleLocked()
}

// waitRunLocked parks the calling task until it is elected again.
func (k *Kernel) waitRunLocked(t *Task) {
	k.mu.Unlock()
	<-t.permit
	k.mu.Lock()
}

// makeReadyLocked unlinks a task from whatever lists it is on and appends
// it to the ready list for its effective priority. While the scheduler is
// suspended the task is parked on the pending list instead (inner resumes
// must not re-enable scheduling).
func (k *Kernel) makeReadyLocked(t *Task, reason wakeReason) {
	if reason != wakeNone {
		t.wake = reason
	}
	if t.eventList != nil {
		k.arena.remove(t.eventList, t.eventNode())
		t.eventList = nil
	}
	if t.stateList != nil {
		if t.delayed {
			k.arena.removeDelta(&k.delayed, t.stateNode())
		} else {
			k.arena.remove(t.stateList, t.stateNode())
		}
		t.stateList = nil
		t.delayed = false
	}

	t.state = TaskReady
	if k.schedSuspend > 0 && t != k.current {
		k.arena.pushBack(&k.pending, t.stateNode())
		t.stateList = &k.pending
		return
	}
	k.arena.pushBack(&k.ready[t.effPrio], t.stateNode())
	t.stateList = &k.ready[t.effPrio]
}

// blockLocked moves the current task onto a wait list (nil for a plain
// delay) with an optional timeout, elects a successor and parks until
// woken. Returns why the task woke.
func (k *Kernel) blockLocked(t *Task, wl *listHead, timeout Ticks) wakeReason {
	if t != k.current {
		k.fault("block from task %q which is not running", t.name)
	}
	if k.schedSuspend > 0 {
		k.fault("task %q blocked while the scheduler is suspended", t.name)
	}

	t.state = TaskBlocked
	t.wake = wakeNone
	if wl != nil {
		k.arena.insertByKeyDesc(wl, t.eventNode(), int64(t.effPrio))
		t.eventList = wl
	}
	if timeout != Forever {
		k.arena.insertDelta(&k.delayed, t.stateNode(), int64(timeout))
		t.stateList = &k.delayed
		t.delayed = true
	}

	k.current = nil
	k.electIfFreeLocked()
	k.waitRunLocked(t)
	return t.wake
}

// maybePreemptLocked is the scheduling point at the end of every
// task-context kernel call: if a higher-priority task is ready, or an
// equal-priority task is ready and the running task's time slice expired,
// the running task is switched out.
func (k *Kernel) maybePreemptLocked(t *Task) {
	if k.schedSuspend > 0 || t != k.current {
		return
	}
	top := k.topReadyLocked()
	if top < 0 {
		return
	}
	higher := Prio(top) > t.effPrio
	rotate := t.sliceExpired && Prio(top) == t.effPrio
	if !higher && !rotate {
		return
	}

	t.sliceExpired = false
	t.state = TaskReady
	if higher {
		// Preempted, not out of budget: resume before equal-priority peers.
		k.arena.pushFront(&k.ready[t.effPrio], t.stateNode())
	} else {
		k.arena.pushBack(&k.ready[t.effPrio], t.stateNode())
	}
	t.stateList = &k.ready[t.effPrio]
	k.current = nil
	k.electIfFreeLocked()
	k.waitRunLocked(t)
}

func (k *Kernel) yieldLocked(t *Task) {
	if k.schedSuspend > 0 {
		return
	}
	if top := k.topReadyLocked(); top < 0 || Prio(top) < t.effPrio {
		return
	}
	t.sliceExpired = false
	t.state = TaskReady
	k.arena.pushBack(&k.ready[t.effPrio], t.stateNode())
	t.stateList = &k.ready[t.effPrio]
	k.current = nil
	k.electIfFreeLocked()
	k.waitRunLocked(t)
}

func (k *Kernel) delayLocked(t *Task, n Ticks) {
	if n == 0 {
		k.yieldLocked(t)
		return
	}
	k.blockLocked(t, nil, n)
}

// tickLocked advances time by one tick, or pends the tick while the
// scheduler is suspended.
func (k *Kernel) tickLocked() {
	if k.schedSuspend > 0 {
		k.pendedTicks++
		return
	}
	k.advanceTickLocked()
}

func (k *Kernel) advanceTickLocked() {
	k.ticks++

	// Timeout sweep. The delta list head carries ticks-to-go; everything
	// it shields with delta 0 expires in the same tick.
	if !k.delayed.empty() {
		k.arena.nodes[k.delayed.first].key--
		for k.delayed.first != nilNode && k.arena.nodes[k.delayed.first].key <= 0 {
			t := k.arena.nodes[k.delayed.first].owner
			reason := wakeResume
			if t.eventList != nil {
				// Timed out waiting on a primitive: unwind with no
				// transfer and no side effects.
				reason = wakeTimeout
			}
			k.makeReadyLocked(t, reason)
		}
	}

	if !k.cfg.DisableTimeSlicing && k.current != nil && !k.ready[k.current.effPrio].empty() {
		k.current.sliceExpired = true
	}
}

func (k *Kernel) suspendLocked(t *Task, self bool) {
	switch t.state {
	case TaskDeleted:
		k.fault("suspend of deleted task %q", t.name)
	case TaskSuspended:
		return
	case TaskRunning:
		if !self {
			k.fault("suspend of running task %q from outside its own context", t.name)
		}
	case TaskBlocked:
		// Unwind the wait as a timeout would: no transfer, no side effects.
		t.wake = wakeTimeout
		if t.eventList == nil {
			t.wake = wakeResume
		}
	}

	if t.eventList != nil {
		k.arena.remove(t.eventList, t.eventNode())
		t.eventList = nil
	}
	if t.stateList != nil {
		if t.delayed {
			k.arena.removeDelta(&k.delayed, t.stateNode())
		} else {
			k.arena.remove(t.stateList, t.stateNode())
		}
		t.stateList = nil
		t.delayed = false
	}

	t.state = TaskSuspended
	k.arena.pushBack(&k.suspended, t.stateNode())
	t.stateList = &k.suspended
	if t == k.current {
		k.current = nil
	}
}

func (k *Kernel) resumeLocked(t *Task) bool {
	if t.state != TaskSuspended {
		return false
	}
	k.makeReadyLocked(t, t.wake)
	return true
}

func (k *Kernel) setPriorityLocked(t *Task, prio Prio) {
	if t.state == TaskDeleted {
		k.fault("priority change on deleted task %q", t.name)
	}
	if int(prio) >= len(k.ready) {
		k.fault("priority %d out of range for task %q", prio, t.name)
	}

	t.basePrio = prio
	eff := prio
	if boost := k.maxWaiterPrioLocked(t); boost > eff {
		// An inherited boost outlives base priority changes.
		eff = boost
	}
	k.applyEffPrioLocked(t, eff)
}

// applyEffPrioLocked sets a task's effective priority and fixes its list
// position: ready tasks move lists, waiters reorder within their wait list.
func (k *Kernel) applyEffPrioLocked(t *Task, eff Prio) {
	if eff == t.effPrio {
		return
	}
	old := t.effPrio
	t.effPrio = eff
	switch {
	case t.stateList == &k.ready[old]:
		k.arena.remove(t.stateList, t.stateNode())
		k.arena.pushBack(&k.ready[eff], t.stateNode())
		t.stateList = &k.ready[eff]
	case t.eventList != nil:
		wl := t.eventList
		k.arena.remove(wl, t.eventNode())
		k.arena.insertByKeyDesc(wl, t.eventNode(), int64(eff))
	}
}

// maxWaiterPrioLocked returns the highest effective priority among tasks
// blocked on any mutex the task still owns, or 0.
func (k *Kernel) maxWaiterPrioLocked(t *Task) Prio {
	var max Prio
	for _, m := range t.holds {
		if w := k.arena.front(&m.waiters); w != nil && w.effPrio > max {
			max = w.effPrio
		}
	}
	return max
}

func (k *Kernel) suspendSchedulerLocked(t *Task) {
	if t != k.current {
		k.fault("scheduler suspend from task %q which is not running", t.name)
	}
	k.schedSuspend++
}

// resumeSchedulerLocked undoes one level of scheduler suspension. Only the
// outermost resume re-enables scheduling; it then applies ticks and wakeups
// that arrived during the suspension.
func (k *Kernel) resumeSchedulerLocked(t *Task) {
	if k.schedSuspend == 0 {
		k.fault("scheduler resume without matching suspend in task %q", t.name)
	}
	k.schedSuspend--
	if k.schedSuspend > 0 {
		return
	}

	for !k.pending.empty() {
		w := k.arena.popFront(&k.pending)
		w.stateList = nil
		k.arena.pushBack(&k.ready[w.effPrio], w.stateNode())
		w.stateList = &k.ready[w.effPrio]
	}
	for k.pendedTicks > 0 {
		k.pendedTicks--
		k.advanceTickLocked()
	}
}
