package kernel

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
)

func TestYieldRotatesEqualPriority(t *testing.T) {
	k := New(Config{})
	log := &tlog{}
	for _, name := range []string{"a", "b", "c"} {
		name := name
		k.NewTask(name, 1, func(ctx *Context) {
			for i := 0; i < 3; i++ {
				log.add(name)
				ctx.Yield()
			}
		})
	}
	k.Start()
	k.WaitIdle()

	want := "a,b,c,a,b,c,a,b,c"
	if got := log.String(); got != want {
		t.Fatalf("run order = %q, want %q", got, want)
	}
}

func TestDelayWakesExactlyOnDeadline(t *testing.T) {
	k := New(Config{})
	var wokeAt atomic.Uint64
	var done atomic.Bool
	worker := k.NewTask("sleeper", 1, func(ctx *Context) {
		ctx.Delay(3)
		wokeAt.Store(ctx.Now())
		done.Store(true)
	})
	k.Start()
	k.WaitIdle()

	tickIdle(k, 2)
	if done.Load() {
		t.Fatal("delay of 3 elapsed after 2 ticks")
	}
	if st := k.State(worker); st != TaskBlocked {
		t.Fatalf("sleeper state = %v after 2 ticks, want blocked", st)
	}

	tickIdle(k, 1)
	if !done.Load() {
		t.Fatal("delay of 3 did not elapse after 3 ticks")
	}
	if got := wokeAt.Load(); got != 3 {
		t.Fatalf("sleeper woke at tick %d, want 3", got)
	}
}

func TestDelayUntilHoldsPeriod(t *testing.T) {
	k := New(Config{})
	log := &tlog{}
	k.NewTask("periodic", 1, func(ctx *Context) {
		ref := ctx.Now()
		for i := 0; i < 3; i++ {
			ctx.DelayUntil(&ref, 2)
			log.add(fmt.Sprintf("%d", ctx.Now()))
		}
	})
	k.Start()
	k.WaitIdle()
	tickIdle(k, 6)

	if got, want := log.String(), "2,4,6"; got != want {
		t.Fatalf("wake ticks = %q, want %q", got, want)
	}
}

func TestLoweringOwnPrioritySwitchesImmediately(t *testing.T) {
	k := New(Config{})
	log := &tlog{}
	k.NewTask("worker", 1, func(ctx *Context) {
		log.add("w")
	})
	k.NewTask("ctrl", 2, func(ctx *Context) {
		log.add("ctrl-before")
		ctx.SetPriority(ctx.Task(), 0)
		log.add("ctrl-after")
	})
	k.Start()
	k.WaitIdle()

	if got, want := log.String(), "ctrl-before,w,ctrl-after"; got != want {
		t.Fatalf("run order = %q, want %q", got, want)
	}
}

func TestRaisingReadyTaskPreempts(t *testing.T) {
	k := New(Config{})
	log := &tlog{}
	worker := k.NewTask("worker", 0, func(ctx *Context) {
		log.add("w")
	})
	k.NewTask("ctrl", 1, func(ctx *Context) {
		log.add("ctrl-before")
		ctx.SetPriority(worker, 2)
		log.add("ctrl-after")
	})
	k.Start()
	k.WaitIdle()

	if got, want := log.String(), "ctrl-before,w,ctrl-after"; got != want {
		t.Fatalf("run order = %q, want %q", got, want)
	}
}

func TestSuspendResumeFromOutside(t *testing.T) {
	k := New(Config{})
	var n atomic.Uint32
	worker := k.NewTask("counter", 1, func(ctx *Context) {
		for {
			n.Add(1)
			ctx.Delay(2)
		}
	})
	k.Start()
	k.WaitIdle()
	if got := n.Load(); got != 1 {
		t.Fatalf("count = %d after start, want 1", got)
	}

	tickIdle(k, 2)
	if got := n.Load(); got != 2 {
		t.Fatalf("count = %d after 2 ticks, want 2", got)
	}

	k.Suspend(worker)
	if st := k.State(worker); st != TaskSuspended {
		t.Fatalf("state = %v after Suspend, want suspended", st)
	}
	tickIdle(k, 4)
	if got := n.Load(); got != 2 {
		t.Fatalf("count = %d while suspended, want 2", got)
	}

	k.Resume(worker)
	k.WaitIdle()
	if got := n.Load(); got != 3 {
		t.Fatalf("count = %d after Resume, want 3", got)
	}
	tickIdle(k, 2)
	if got := n.Load(); got != 4 {
		t.Fatalf("count = %d, want 4", got)
	}
}

func TestSelfSuspend(t *testing.T) {
	k := New(Config{})
	var n atomic.Uint32
	worker := k.NewTask("worker", 1, func(ctx *Context) {
		n.Add(1)
		ctx.Suspend(nil)
		n.Add(1)
	})
	k.Start()
	k.WaitIdle()

	if got := n.Load(); got != 1 {
		t.Fatalf("count = %d before resume, want 1", got)
	}
	if st := k.State(worker); st != TaskSuspended {
		t.Fatalf("state = %v, want suspended", st)
	}

	k.Resume(worker)
	k.WaitIdle()
	if got := n.Load(); got != 2 {
		t.Fatalf("count = %d after resume, want 2", got)
	}
	if st := k.State(worker); st != TaskDeleted {
		t.Fatalf("state = %v after body returned, want deleted", st)
	}
}

func TestEqualPriorityWakeDoesNotPreempt(t *testing.T) {
	k := New(Config{})
	log := &tlog{}
	sem := k.NewBinarySemaphore()
	gate := k.NewBinarySemaphore()
	k.NewTask("waiter", 1, func(ctx *Context) {
		sem.Take(ctx, Forever)
		log.add("waiter")
	})
	k.NewTask("giver", 1, func(ctx *Context) {
		gate.Take(ctx, Forever)
		sem.Give(ctx)
		log.add("giver-after")
	})
	k.Start()
	k.WaitIdle()
	isrGive(t, k, gate)

	if got, want := log.String(), "giver-after,waiter"; got != want {
		t.Fatalf("run order = %q, want %q", got, want)
	}
}

func TestSchedulerSuspendDefersWakeupUntilOutermostResume(t *testing.T) {
	k := New(Config{})
	log := &tlog{}
	hsem := k.NewBinarySemaphore()
	k.NewTask("high", 3, func(ctx *Context) {
		hsem.Take(ctx, Forever)
		log.add("high")
	})
	k.NewTask("low", 1, func(ctx *Context) {
		log.add("low-start")
		ctx.SuspendScheduler()
		ctx.SuspendScheduler()
		hsem.Give(ctx)
		log.add("gave")
		ctx.ResumeScheduler()
		log.add("inner")
		ctx.ResumeScheduler()
		log.add("outer")
	})
	k.Start()
	k.WaitIdle()

	want := "low-start,gave,inner,high,outer"
	if got := log.String(); got != want {
		t.Fatalf("run order = %q, want %q", got, want)
	}
}

func TestTicksPendedWhileSchedulerSuspended(t *testing.T) {
	k := New(Config{})
	log := &tlog{}
	var holding, release atomic.Bool
	k.NewTask("sleeper", 2, func(ctx *Context) {
		ctx.Delay(3)
		log.add("woke")
	})
	k.NewTask("low", 1, func(ctx *Context) {
		ctx.SuspendScheduler()
		holding.Store(true)
		for !release.Load() {
			runtime.Gosched()
		}
		ctx.ResumeScheduler()
		log.add("resumed")
	})
	k.Start()

	for !holding.Load() {
		runtime.Gosched()
	}
	for i := 0; i < 5; i++ {
		k.Tick()
	}
	if now := k.Now(); now != 0 {
		t.Fatalf("Now() = %d with scheduler suspended, want 0 (ticks pended)", now)
	}
	release.Store(true)
	k.WaitIdle()

	if now := k.Now(); now != 5 {
		t.Fatalf("Now() = %d after resume, want 5", now)
	}
	if got, want := log.String(), "woke,resumed"; got != want {
		t.Fatalf("run order = %q, want %q", got, want)
	}
}

func TestTimeSliceRotatesOnTick(t *testing.T) {
	k := New(Config{})
	log := &tlog{}
	var spinning, release atomic.Bool
	k.NewTask("a", 1, func(ctx *Context) {
		log.add("a1")
		spinning.Store(true)
		for !release.Load() {
			runtime.Gosched()
		}
		ctx.Now() // scheduling point; the expired slice rotates here
		log.add("a2")
	})
	k.NewTask("b", 1, func(ctx *Context) {
		log.add("b")
	})
	k.Start()

	for !spinning.Load() {
		runtime.Gosched()
	}
	k.Tick()
	release.Store(true)
	k.WaitIdle()

	if got, want := log.String(), "a1,b,a2"; got != want {
		t.Fatalf("run order = %q, want %q", got, want)
	}
}

func TestDisableTimeSlicingKeepsRunner(t *testing.T) {
	k := New(Config{DisableTimeSlicing: true})
	log := &tlog{}
	var spinning, release atomic.Bool
	k.NewTask("a", 1, func(ctx *Context) {
		log.add("a1")
		spinning.Store(true)
		for !release.Load() {
			runtime.Gosched()
		}
		ctx.Now()
		log.add("a2")
	})
	k.NewTask("b", 1, func(ctx *Context) {
		log.add("b")
	})
	k.Start()

	for !spinning.Load() {
		runtime.Gosched()
	}
	k.Tick()
	release.Store(true)
	k.WaitIdle()

	if got, want := log.String(), "a1,a2,b"; got != want {
		t.Fatalf("run order = %q, want %q", got, want)
	}
}

func TestSuspendUnwindsBlockedWaitWithoutTransfer(t *testing.T) {
	k := New(Config{})
	sem := k.NewCountingSemaphore(1, 0)
	var res atomic.Pointer[error]
	waiter := k.NewTask("waiter", 1, func(ctx *Context) {
		err := sem.Take(ctx, Forever)
		res.Store(&err)
	})
	k.Start()
	k.WaitIdle()

	k.Suspend(waiter)
	if st := k.State(waiter); st != TaskSuspended {
		t.Fatalf("state = %v, want suspended", st)
	}

	// The unit given while the waiter is off the wait list must not be
	// consumed on its behalf.
	isr := k.EnterISR()
	if err := sem.GiveISR(isr); err != nil {
		t.Fatalf("GiveISR() = %v, want nil", err)
	}
	isr.Exit()
	k.WaitIdle()
	if got := sem.Count(); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}

	k.Resume(waiter)
	k.WaitIdle()
	if p := res.Load(); p == nil || *p != ErrTimedOut {
		t.Fatalf("Take() after suspend unwind = %v, want ErrTimedOut", p)
	}
	if got := sem.Count(); got != 1 {
		t.Fatalf("count = %d after unwound waiter resumed, want 1", got)
	}
}
