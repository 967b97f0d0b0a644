package hal

import (
	"fmt"
	"os"
	"sync"
	"time"
)

type hostHAL struct {
	logger *hostLogger
	fb     *hostFramebuffer
	clock  *hostClock
}

// New returns a host HAL implementation with the given tick rate.
func New(hz int) HAL {
	if hz <= 0 {
		hz = 100
	}
	return &hostHAL{
		logger: &hostLogger{w: os.Stdout},
		fb:     newHostFramebuffer(320, 320),
		clock:  newHostClock(time.Second / time.Duration(hz)),
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Clock() Clock     { return h.clock }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

// hostClock accumulates wall time and pays it out in whole ticks, so an
// uneven frame rate still yields the configured tick rate on average.
type hostClock struct {
	tick time.Duration
	last time.Time
	acc  time.Duration
}

func newHostClock(tick time.Duration) *hostClock {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	return &hostClock{tick: tick}
}

func (c *hostClock) Advance() int {
	now := time.Now()
	if c.last.IsZero() {
		c.last = now
		return 1
	}
	c.acc += now.Sub(c.last)
	c.last = now

	n := int(c.acc / c.tick)
	c.acc -= time.Duration(n) * c.tick
	return n
}
