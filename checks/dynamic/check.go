// Package dynamic exercises task control at runtime: a controller suspends,
// resumes and re-prioritizes a free-running victim task and verifies each
// transition took effect.
package dynamic

import (
	"sync/atomic"

	"ember/kernel"
)

type Check struct {
	victim *kernel.Task

	beats  atomic.Uint32
	cycles atomic.Uint32
	broken atomic.Bool
}

func New(k *kernel.Kernel) *Check {
	c := &Check{}
	c.victim = k.NewTask("dynamic-victim", 1, c.runVictim)
	k.NewTask("dynamic-ctrl", 5, c.runController)
	return c
}

func (c *Check) Name() string { return "dynamic" }

func (c *Check) Healthy() bool {
	return c.cycles.Load() > 0 && !c.broken.Load()
}

func (c *Check) runVictim(ctx *kernel.Context) {
	for {
		c.beats.Add(1)
		ctx.Delay(1)
	}
}

func (c *Check) runController(ctx *kernel.Context) {
	fail := func() { c.broken.Store(true) }
	for {
		ctx.Delay(4)

		ctx.Suspend(c.victim)
		if ctx.State(c.victim) != kernel.TaskSuspended {
			fail()
		}
		before := c.beats.Load()
		ctx.Delay(3)
		if c.beats.Load() != before {
			fail() // a suspended task must not run
		}

		ctx.Resume(c.victim)
		ctx.Delay(2)
		if c.beats.Load() == before {
			fail() // a resumed task must run again
		}

		ctx.SetPriority(c.victim, 2)
		if base, _ := ctx.Priority(c.victim); base != 2 {
			fail()
		}
		ctx.SetPriority(c.victim, 1)

		c.cycles.Add(1)
	}
}
