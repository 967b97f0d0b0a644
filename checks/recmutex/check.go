// Package recmutex exercises the recursive mutex: a low-priority task
// mutates shared state under nested takes, deliberately blocking inside the
// critical section, while a high-priority task checks the state is never
// seen torn. Priority inheritance is what keeps the high task's wait short.
package recmutex

import (
	"sync/atomic"

	"ember/kernel"
)

type Check struct {
	m *kernel.Mutex

	val    uint32 // guarded by m, updated non-atomically on purpose
	mirror uint32 // guarded by m, must always equal val

	torn   atomic.Bool
	checks atomic.Uint32
}

func New(k *kernel.Kernel) *Check {
	c := &Check{m: k.NewRecursiveMutex()}
	k.NewTask("recmutex-low", 1, c.runWriter)
	k.NewTask("recmutex-high", 3, c.runChecker)
	return c
}

func (c *Check) Name() string { return "recmutex" }

func (c *Check) Healthy() bool {
	return c.checks.Load() > 0 && !c.torn.Load()
}

func (c *Check) runWriter(ctx *kernel.Context) {
	for {
		c.m.Take(ctx, kernel.Forever)
		v := c.val
		c.step(ctx) // nests one level deeper
		c.val = v + 1
		c.m.Give(ctx)
		ctx.Delay(2)
	}
}

// step updates the mirror under a nested take, with a delay splitting the
// two writes across ticks.
func (c *Check) step(ctx *kernel.Context) {
	c.m.Take(ctx, kernel.Forever)
	ctx.Delay(1)
	c.mirror++
	c.m.Give(ctx)
}

func (c *Check) runChecker(ctx *kernel.Context) {
	for {
		ctx.Delay(3)
		c.m.Take(ctx, kernel.Forever)
		if c.val != c.mirror {
			c.torn.Store(true)
		}
		c.checks.Add(1)
		c.m.Give(ctx)
	}
}
