// Package blockq exercises the bounded queue: a producer sends sequence
// numbers slower than the consumer's receive timeout, so the consumer sees
// both successful receives and clean timeouts, and verifies ordering.
package blockq

import (
	"encoding/binary"
	"sync/atomic"

	"ember/kernel"
)

type Check struct {
	q *kernel.Queue

	received atomic.Uint32
	timeouts atomic.Uint32
	disorder atomic.Bool
}

func New(k *kernel.Kernel) *Check {
	c := &Check{q: k.NewQueue(4, 4)}
	k.NewTask("blockq-send", 2, c.runSender)
	k.NewTask("blockq-recv", 2, c.runReceiver)
	return c
}

func (c *Check) Name() string { return "blockq" }

// Healthy once traffic has flowed: everything arrived in order and the
// receive timeout has been seen to expire cleanly.
func (c *Check) Healthy() bool {
	return c.received.Load() > 0 && c.timeouts.Load() > 0 && !c.disorder.Load()
}

func (c *Check) runSender(ctx *kernel.Context) {
	var item [4]byte
	ref := ctx.Now()
	for seq := uint32(0); ; seq++ {
		ctx.DelayUntil(&ref, 3)
		binary.LittleEndian.PutUint32(item[:], seq)
		c.q.Send(ctx, item[:], kernel.Forever)
	}
}

func (c *Check) runReceiver(ctx *kernel.Context) {
	var item [4]byte
	var expect uint32
	for {
		switch err := c.q.Receive(ctx, item[:], 2); err {
		case nil:
			if binary.LittleEndian.Uint32(item[:]) != expect {
				c.disorder.Store(true)
			}
			expect++
			c.received.Add(1)
		case kernel.ErrTimedOut:
			c.timeouts.Add(1)
		}
	}
}
