// Package timers exercises the software timer service: a one-shot that must
// fire exactly once, an auto-reload counting periods, and a watchdog that a
// feeder task keeps resetting before its period can ever elapse.
package timers

import (
	"sync/atomic"

	"ember/kernel"
)

type Check struct {
	oneshot  *kernel.Timer
	reload   *kernel.Timer
	watchdog *kernel.Timer

	oneshotFires  atomic.Uint32
	reloadFires   atomic.Uint32
	watchdogFires atomic.Uint32
	lastReload    atomic.Uint32
	started       atomic.Bool
}

func New(k *kernel.Kernel) *Check {
	c := &Check{}
	c.oneshot = k.NewTimer("chk-oneshot", 6, false, func(*kernel.Context, *kernel.Timer) {
		c.oneshotFires.Add(1)
	})
	c.reload = k.NewTimer("chk-reload", 4, true, func(*kernel.Context, *kernel.Timer) {
		c.reloadFires.Add(1)
	})
	c.watchdog = k.NewTimer("chk-watchdog", 5, false, func(*kernel.Context, *kernel.Timer) {
		c.watchdogFires.Add(1)
	})
	k.NewTask("timers-feeder", 2, c.runFeeder)
	return c
}

func (c *Check) Name() string { return "timers" }

// Healthy after the first one-shot period: the one-shot fired once and went
// quiet, the auto-reload keeps firing, and the fed watchdog never fired.
func (c *Check) Healthy() bool {
	if !c.started.Load() {
		return false
	}
	reload := c.reloadFires.Load()
	ok := c.oneshotFires.Load() == 1 &&
		c.watchdogFires.Load() == 0 &&
		reload > c.lastReload.Load()
	c.lastReload.Store(reload)
	return ok
}

func (c *Check) runFeeder(ctx *kernel.Context) {
	c.oneshot.Start(ctx, kernel.Forever)
	c.reload.Start(ctx, kernel.Forever)
	c.watchdog.Start(ctx, kernel.Forever)
	c.started.Store(true)

	ref := ctx.Now()
	for {
		ctx.DelayUntil(&ref, 3)
		c.watchdog.Reset(ctx, kernel.Forever)
	}
}
