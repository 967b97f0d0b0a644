// Package countsem exercises counting semaphores: three workers share a
// three-unit semaphore and verify the unit accounting never oversubscribes,
// while a give past the maximum must be rejected without effect.
package countsem

import (
	"sync/atomic"

	"ember/kernel"
)

const units = 3

type Check struct {
	sem *kernel.Semaphore

	holders  atomic.Int32
	cycles   atomic.Uint32
	overMax  atomic.Bool
	rejected atomic.Bool
}

func New(k *kernel.Kernel) *Check {
	c := &Check{sem: k.NewCountingSemaphore(units, units)}
	full := k.NewCountingSemaphore(1, 1)
	k.NewTask("countsem-probe", 2, func(ctx *kernel.Context) {
		if full.Give(ctx) == kernel.ErrCapacityExceeded && full.Count() == 1 {
			c.rejected.Store(true)
		}
	})
	for i := 0; i < units; i++ {
		k.NewTask("countsem-worker", 2, c.runWorker)
	}
	return c
}

func (c *Check) Name() string { return "countsem" }

func (c *Check) Healthy() bool {
	return c.cycles.Load() > 0 && !c.overMax.Load() && c.rejected.Load()
}

func (c *Check) runWorker(ctx *kernel.Context) {
	for {
		c.sem.Take(ctx, kernel.Forever)
		if c.holders.Add(1) > units {
			c.overMax.Store(true)
		}
		ctx.Delay(2)
		c.holders.Add(-1)
		c.sem.Give(ctx)
		c.cycles.Add(1)
		ctx.Delay(1)
	}
}
