// Package intsem exercises interrupt-context signalling: the tick interrupt
// gives a binary semaphore every few ticks and a task consumes the signals.
// A give that finds the semaphore still full is counted, not treated as a
// failure; the task is allowed to lag.
package intsem

import (
	"sync/atomic"

	"ember/kernel"
)

const everyTicks = 4

type Check struct {
	sem *kernel.Semaphore

	given    atomic.Uint32
	overruns atomic.Uint32
	handled  atomic.Uint32
}

func New(k *kernel.Kernel) *Check {
	c := &Check{sem: k.NewBinarySemaphore()}
	k.NewTask("intsem-handler", 4, c.runHandler)
	return c
}

func (c *Check) Name() string { return "intsem" }

func (c *Check) Healthy() bool {
	handled := c.handled.Load()
	// At most one accepted give can be in flight towards the handler.
	return handled > 0 && c.given.Load()-handled <= 1
}

// OnTick runs in interrupt context, called by the tick source.
func (c *Check) OnTick(i *kernel.ISR, now uint64) {
	if now%everyTicks != 0 {
		return
	}
	switch err := c.sem.GiveISR(i); err {
	case nil:
		c.given.Add(1)
	case kernel.ErrCapacityExceeded:
		c.overruns.Add(1)
	}
}

func (c *Check) runHandler(ctx *kernel.Context) {
	for {
		if c.sem.Take(ctx, kernel.Forever) == nil {
			c.handled.Add(1)
		}
	}
}
