package kernel

import "encoding/binary"

// TimerFunc is a timer expiry callback. It runs in the timer service task's
// context and may issue further timer commands with a zero timeout.
type TimerFunc func(*Context, *Timer)

// Timer is a software timer driven by the timer service task. Commands
// (start, stop, reset, change-period, delete) are not applied by the
// caller: they carry the tick at which they were issued through the
// service's command queue, and take effect as of that tick even when the
// service has fallen behind.
type Timer struct {
	k    *Kernel
	name string
	fn   TimerFunc
	id   any

	period     Ticks
	autoReload bool

	idx     uint16
	active  bool
	deleted bool
	expiry  uint64
	next    *Timer
	prev    *Timer
}

// NewTimer creates an inactive timer. An auto-reload timer re-arms itself
// on expiry at old-expiry + period; a one-shot goes inactive.
func (k *Kernel) NewTimer(name string, period Ticks, autoReload bool, fn TimerFunc) *Timer {
	return k.InitTimer(&Timer{}, name, period, autoReload, fn)
}

// InitTimer initializes a caller-supplied zero-valued control block.
// Runtime semantics are identical to NewTimer.
func (k *Kernel) InitTimer(t *Timer, name string, period Ticks, autoReload bool, fn TimerFunc) *Timer {
	k.mu.Lock()
	defer k.mu.Unlock()

	if t.k != nil {
		k.fault("InitTimer: control block %q already in use", name)
	}
	if period == 0 || period == Forever {
		k.fault("timer %q period %d invalid", name, period)
	}
	t.k = k
	t.name = name
	t.period = period
	t.autoReload = autoReload
	t.fn = fn
	t.idx = k.timers.registerLocked(t)
	return t
}

// Start arms the timer to expire period ticks after the issue tick,
// blocking up to timeout ticks for command queue space.
func (t *Timer) Start(c *Context, timeout Ticks) error {
	return t.post(c, timerCmdStart, 0, timeout)
}

// Stop disarms the timer.
func (t *Timer) Stop(c *Context, timeout Ticks) error {
	return t.post(c, timerCmdStop, 0, timeout)
}

// Reset re-arms the timer to expire period ticks after the issue tick,
// starting it if it was inactive.
func (t *Timer) Reset(c *Context, timeout Ticks) error {
	return t.post(c, timerCmdReset, 0, timeout)
}

// ChangePeriod sets a new period and (re-)arms the timer from the issue
// tick.
func (t *Timer) ChangePeriod(c *Context, period Ticks, timeout Ticks) error {
	if period == 0 || period == Forever {
		t.k.fault("timer %q period %d invalid", t.name, period)
	}
	return t.post(c, timerCmdChangePeriod, uint32(period), timeout)
}

// Delete disarms the timer and releases its slot. The handle must not be
// used afterwards.
func (t *Timer) Delete(c *Context, timeout Ticks) error {
	return t.post(c, timerCmdDelete, 0, timeout)
}

// StartISR is Start from interrupt context: it fails with ErrWouldBlock
// when the command queue is full.
func (t *Timer) StartISR(i *ISR) error { return t.postISR(i, timerCmdStart, 0) }

// StopISR is Stop from interrupt context.
func (t *Timer) StopISR(i *ISR) error { return t.postISR(i, timerCmdStop, 0) }

// ResetISR is Reset from interrupt context.
func (t *Timer) ResetISR(i *ISR) error { return t.postISR(i, timerCmdReset, 0) }

// ChangePeriodISR is ChangePeriod from interrupt context.
func (t *Timer) ChangePeriodISR(i *ISR, period Ticks) error {
	if period == 0 || period == Forever {
		t.k.fault("timer %q period %d invalid", t.name, period)
	}
	return t.postISR(i, timerCmdChangePeriod, uint32(period))
}

// IsActive reports whether the timer is armed, as of the last command the
// service task has processed.
func (t *Timer) IsActive() bool {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.active
}

// Period returns the timer's current period.
func (t *Timer) Period() Ticks {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.period
}

// Name returns the timer's name.
func (t *Timer) Name() string { return t.name }

// ID returns the opaque user identifier.
func (t *Timer) ID() any {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.id
}

// SetID stores an opaque user identifier.
func (t *Timer) SetID(v any) {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	t.id = v
}

func (t *Timer) post(c *Context, op uint8, value uint32, timeout Ticks) error {
	c.enter()
	k := c.k
	if t.k != k {
		k.fault("timer used across kernel instances")
	}
	if t.deleted {
		k.fault("command for deleted timer %q", t.name)
	}
	// The issue tick is captured here; a backlogged service task applies
	// the command as of this tick, not the tick it gets around to it.
	cmd := encodeTimerCmd(op, t.idx, k.ticks, value)
	err := k.timers.q.sendLocked(c, cmd[:], timeout)
	c.exit()
	return err
}

func (t *Timer) postISR(i *ISR, op uint8, value uint32) error {
	i.check()
	k := i.k
	if t.k != k {
		k.fault("timer used across kernel instances")
	}
	if t.deleted {
		k.fault("command for deleted timer %q", t.name)
	}
	cmd := encodeTimerCmd(op, t.idx, k.ticks, value)
	return k.timers.q.trySendLocked(k, cmd[:])
}

const (
	timerCmdStart uint8 = iota + 1
	timerCmdStop
	timerCmdReset
	timerCmdChangePeriod
	timerCmdDelete
)

const timerCmdBytes = 15

type timerCmd struct {
	op    uint8
	idx   uint16
	issue uint64
	value uint32
}

func encodeTimerCmd(op uint8, idx uint16, issue uint64, value uint32) [timerCmdBytes]byte {
	var b [timerCmdBytes]byte
	b[0] = op
	binary.LittleEndian.PutUint16(b[1:3], idx)
	binary.LittleEndian.PutUint64(b[3:11], issue)
	binary.LittleEndian.PutUint32(b[11:15], value)
	return b
}

func decodeTimerCmd(b []byte) timerCmd {
	return timerCmd{
		op:    b[0],
		idx:   binary.LittleEndian.Uint16(b[1:3]),
		issue: binary.LittleEndian.Uint64(b[3:11]),
		value: binary.LittleEndian.Uint32(b[11:15]),
	}
}

// timerService owns the command queue, the handle table and the
// expiry-ordered active list, all drained by one dedicated task.
type timerService struct {
	k     *Kernel
	q     *Queue
	slots []*Timer
	free  []uint16
	head  *Timer // active timers, soonest expiry first
}

func newTimerService(k *Kernel) *timerService {
	s := &timerService{k: k}
	s.q = k.InitQueue(&Queue{},
		make([]byte, k.cfg.TimerQueueDepth*timerCmdBytes),
		k.cfg.TimerQueueDepth, timerCmdBytes)
	return s
}

func (s *timerService) startService() {
	s.k.NewTask("timer-svc", s.k.cfg.TimerTaskPriority, s.run)
}

func (s *timerService) registerLocked(t *Timer) uint16 {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[idx] = t
		return idx
	}
	if len(s.slots) >= s.k.cfg.MaxTimers {
		s.k.fault("timer limit %d reached", s.k.cfg.MaxTimers)
	}
	s.slots = append(s.slots, t)
	return uint16(len(s.slots) - 1)
}

func (s *timerService) insertLocked(t *Timer) {
	var prev *Timer
	at := s.head
	for at != nil && at.expiry <= t.expiry {
		prev = at
		at = at.next
	}
	t.prev = prev
	t.next = at
	if prev != nil {
		prev.next = t
	} else {
		s.head = t
	}
	if at != nil {
		at.prev = t
	}
}

func (s *timerService) detachLocked(t *Timer) {
	if t.prev == nil && t.next == nil && s.head != t {
		return // not linked
	}
	if t.prev != nil {
		t.prev.next = t.next
	} else if s.head == t {
		s.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	}
	t.prev = nil
	t.next = nil
}

// run is the timer service task: block for the next command or expiry,
// apply every queued command, then fire at most one expired timer so a
// stop issued by a callback lands before the next catch-up fire.
func (s *timerService) run(ctx *Context) {
	var buf [timerCmdBytes]byte
	for {
		timeout := s.nextTimeout(ctx)
		if s.q.Receive(ctx, buf[:], timeout) == nil {
			s.apply(ctx, decodeTimerCmd(buf[:]))
			for s.q.Receive(ctx, buf[:], NoWait) == nil {
				s.apply(ctx, decodeTimerCmd(buf[:]))
			}
		}
		s.fireOne(ctx)
	}
}

func (s *timerService) nextTimeout(c *Context) Ticks {
	c.enter()
	defer c.k.mu.Unlock()
	if s.head == nil {
		return Forever
	}
	if s.head.expiry <= c.k.ticks {
		return NoWait
	}
	d := s.head.expiry - c.k.ticks
	if d >= uint64(Forever) {
		d = uint64(Forever) - 1
	}
	return Ticks(d)
}

func (s *timerService) apply(c *Context, cmd timerCmd) {
	c.enter()
	defer c.k.mu.Unlock()

	if int(cmd.idx) >= len(s.slots) {
		return
	}
	t := s.slots[cmd.idx]
	if t == nil {
		return
	}
	switch cmd.op {
	case timerCmdStart, timerCmdReset:
		s.detachLocked(t)
		t.expiry = cmd.issue + uint64(t.period)
		t.active = true
		s.insertLocked(t)
	case timerCmdChangePeriod:
		s.detachLocked(t)
		t.period = Ticks(cmd.value)
		t.expiry = cmd.issue + uint64(t.period)
		t.active = true
		s.insertLocked(t)
	case timerCmdStop:
		s.detachLocked(t)
		t.active = false
	case timerCmdDelete:
		s.detachLocked(t)
		t.active = false
		t.deleted = true
		s.slots[cmd.idx] = nil
		s.free = append(s.free, cmd.idx)
	}
}

// fireOne pops the soonest expired timer, re-arms it if auto-reload (at
// old-expiry + period, so a backlogged timer fires once per elapsed
// period) and invokes the callback outside the kernel lock.
func (s *timerService) fireOne(c *Context) {
	c.enter()
	t := s.head
	if t == nil || t.expiry > c.k.ticks {
		c.k.mu.Unlock()
		return
	}
	s.detachLocked(t)
	if t.autoReload {
		t.expiry += uint64(t.period)
		s.insertLocked(t)
	} else {
		t.active = false
	}
	fn := t.fn
	c.k.mu.Unlock()
	if fn != nil {
		fn(c, t)
	}
}

func (s *timerService) infosLocked() []TimerInfo {
	out := make([]TimerInfo, 0, len(s.slots))
	for _, t := range s.slots {
		if t == nil {
			continue
		}
		out = append(out, TimerInfo{
			Name:   t.name,
			Period: t.period,
			Active: t.active,
			Expiry: t.expiry,
		})
	}
	return out
}
