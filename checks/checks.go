// Package checks assembles the regression suite: each subpackage spawns
// tasks that exercise one part of the kernel and reports health through a
// probe, and a supervisor task polls the probes and logs the verdicts.
package checks

import (
	"fmt"
	"sync/atomic"

	"ember/checks/blockq"
	"ember/checks/countsem"
	"ember/checks/dynamic"
	"ember/checks/intsem"
	"ember/checks/recmutex"
	"ember/checks/timers"
	"ember/hal"
	"ember/kernel"
)

// Probe is the health surface every check exposes.
type Probe interface {
	Name() string
	Healthy() bool
}

// PollPeriod is the supervisor's polling cadence in ticks, long enough for
// every check to complete at least one full cycle.
const PollPeriod = 50

// Suite owns all checks registered against one kernel instance.
type Suite struct {
	log    hal.Logger
	probes []Probe
	ticks  *intsem.Check

	polls    atomic.Uint32
	failures atomic.Uint32
}

// NewSuite registers every check's tasks against k and starts a supervisor
// task polling their probes.
func NewSuite(k *kernel.Kernel, log hal.Logger) *Suite {
	s := &Suite{log: log}
	s.ticks = intsem.New(k)
	s.probes = []Probe{
		blockq.New(k),
		countsem.New(k),
		recmutex.New(k),
		s.ticks,
		timers.New(k),
		dynamic.New(k),
	}
	k.NewTask("supervisor", 6, s.runSupervisor)
	return s
}

// OnTick forwards the tick interrupt to the checks that signal from
// interrupt context. Must be called with the ISR still open.
func (s *Suite) OnTick(i *kernel.ISR, now uint64) {
	s.ticks.OnTick(i, now)
}

// Polls returns how many supervisor rounds have completed.
func (s *Suite) Polls() uint32 { return s.polls.Load() }

// Failures returns the total number of failed probe polls.
func (s *Suite) Failures() uint32 { return s.failures.Load() }

// Healthy reports whether at least one round ran and none failed.
func (s *Suite) Healthy() bool {
	return s.polls.Load() > 0 && s.failures.Load() == 0
}

func (s *Suite) runSupervisor(ctx *kernel.Context) {
	ref := ctx.Now()
	for {
		ctx.DelayUntil(&ref, PollPeriod)
		for _, p := range s.probes {
			if p.Healthy() {
				continue
			}
			s.failures.Add(1)
			if s.log != nil {
				s.log.WriteLineString(fmt.Sprintf("check %s: FAIL (tick %d)", p.Name(), ctx.Now()))
			}
		}
		s.polls.Add(1)
		if s.log != nil {
			s.log.WriteLineString(fmt.Sprintf("checks: round %d done, %d failure(s) total", s.polls.Load(), s.failures.Load()))
		}
	}
}
