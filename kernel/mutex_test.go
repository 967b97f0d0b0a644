package kernel

import (
	"fmt"
	"testing"
)

func TestMutexGiveByNonOwner(t *testing.T) {
	k := New(Config{})
	m := k.NewMutex()
	log := &tlog{}
	hold := k.NewBinarySemaphore()
	k.NewTask("owner", 2, func(ctx *Context) {
		m.Take(ctx, Forever)
		hold.Take(ctx, Forever)
		m.Give(ctx)
	})
	k.NewTask("other", 1, func(ctx *Context) {
		log.add(fmt.Sprintf("give=%v", m.Give(ctx)))
	})
	k.Start()
	k.WaitIdle()

	if got, want := log.String(), "give=not owner"; got != want {
		t.Fatalf("log = %q, want %q", got, want)
	}
	isrGive(t, k, hold)
	if owner := m.Owner(); owner != nil {
		t.Fatalf("owner = %v after release, want nil", owner.Name())
	}
}

func TestPriorityInheritanceRoundTrip(t *testing.T) {
	k := New(Config{})
	m := k.NewMutex()
	log := &tlog{}
	sigL := k.NewBinarySemaphore()
	sigH := k.NewBinarySemaphore()

	low := k.NewTask("low", 0, func(ctx *Context) {
		m.Take(ctx, Forever)
		sigL.Take(ctx, Forever)
		m.Give(ctx)
		_, eff := ctx.Priority(ctx.Task())
		log.add(fmt.Sprintf("low-eff=%d", eff))
	})
	k.NewTask("high", 2, func(ctx *Context) {
		sigH.Take(ctx, Forever)
		m.Take(ctx, Forever)
		log.add("high-locked")
		m.Give(ctx)
	})
	k.Start()
	k.WaitIdle()

	isrGive(t, k, sigH)
	if base, eff := k.Priority(low); base != 0 || eff != 2 {
		t.Fatalf("low priority = %d/%d with high blocked, want 0/2", base, eff)
	}
	if owner := m.Owner(); owner != low {
		t.Fatalf("owner = %v, want low", owner)
	}

	isrGive(t, k, sigL)
	// The final give hands the mutex to the waiter and drops the boost in
	// the same step, so the higher task runs before low's next statement.
	if got, want := log.String(), "high-locked,low-eff=0"; got != want {
		t.Fatalf("log = %q, want %q", got, want)
	}
	if base, eff := k.Priority(low); base != 0 || eff != 0 {
		t.Fatalf("low priority = %d/%d after release, want 0/0", base, eff)
	}
}

func TestDisinheritanceReleaseOrders(t *testing.T) {
	run := func(t *testing.T, giveAFirst bool, want string) {
		k := New(Config{})
		ma := k.NewMutex()
		mb := k.NewMutex()
		log := &tlog{}
		sigL := k.NewBinarySemaphore()
		sigA := k.NewBinarySemaphore()
		sigB := k.NewBinarySemaphore()

		low := k.NewTask("low", 0, func(ctx *Context) {
			ma.Take(ctx, Forever)
			mb.Take(ctx, Forever)
			sigL.Take(ctx, Forever)
			first, second := ma, mb
			if !giveAFirst {
				first, second = mb, ma
			}
			first.Give(ctx)
			_, eff := ctx.Priority(ctx.Task())
			log.add(fmt.Sprintf("eff=%d", eff))
			second.Give(ctx)
			_, eff = ctx.Priority(ctx.Task())
			log.add(fmt.Sprintf("eff=%d", eff))
		})
		k.NewTask("wantA", 2, func(ctx *Context) {
			sigA.Take(ctx, Forever)
			ma.Take(ctx, Forever)
			log.add("A")
			ma.Give(ctx)
		})
		k.NewTask("wantB", 3, func(ctx *Context) {
			sigB.Take(ctx, Forever)
			mb.Take(ctx, Forever)
			log.add("B")
			mb.Give(ctx)
		})
		k.Start()
		k.WaitIdle()

		isrGive(t, k, sigA)
		if _, eff := k.Priority(low); eff != 2 {
			t.Fatalf("low eff = %d with one waiter, want 2", eff)
		}
		isrGive(t, k, sigB)
		if _, eff := k.Priority(low); eff != 3 {
			t.Fatalf("low eff = %d with both waiters, want 3", eff)
		}

		isrGive(t, k, sigL)
		if got := log.String(); got != want {
			t.Fatalf("log = %q, want %q", got, want)
		}
		if base, eff := k.Priority(low); base != 0 || eff != 0 {
			t.Fatalf("low priority = %d/%d at end, want 0/0", base, eff)
		}
	}

	// Releasing the mutex with the lower-priority waiter first keeps the
	// higher boost; releasing the other first steps the boost down.
	t.Run("a-then-b", func(t *testing.T) { run(t, true, "eff=3,B,A,eff=0") })
	t.Run("b-then-a", func(t *testing.T) { run(t, false, "B,eff=2,A,eff=0") })
}

func TestTransitiveInheritance(t *testing.T) {
	k := New(Config{})
	ma := k.NewMutex()
	mb := k.NewMutex()
	sig1 := k.NewBinarySemaphore()
	sig2 := k.NewBinarySemaphore()
	sigH := k.NewBinarySemaphore()

	l1 := k.NewTask("l1", 0, func(ctx *Context) {
		ma.Take(ctx, Forever)
		sig1.Take(ctx, Forever)
		ma.Give(ctx)
	})
	l2 := k.NewTask("l2", 1, func(ctx *Context) {
		sig2.Take(ctx, Forever)
		mb.Take(ctx, Forever)
		ma.Take(ctx, Forever)
		ma.Give(ctx)
		mb.Give(ctx)
	})
	k.NewTask("high", 3, func(ctx *Context) {
		sigH.Take(ctx, Forever)
		mb.Take(ctx, Forever)
		mb.Give(ctx)
	})
	k.Start()
	k.WaitIdle()

	isrGive(t, k, sig2)
	if _, eff := k.Priority(l1); eff != 1 {
		t.Fatalf("l1 eff = %d with l2 blocked, want 1", eff)
	}

	isrGive(t, k, sigH)
	if _, eff := k.Priority(l2); eff != 3 {
		t.Fatalf("l2 eff = %d with high blocked, want 3", eff)
	}
	if _, eff := k.Priority(l1); eff != 3 {
		t.Fatalf("l1 eff = %d, want 3 (boost through l2)", eff)
	}

	isrGive(t, k, sig1)
	if base, eff := k.Priority(l1); base != 0 || eff != 0 {
		t.Fatalf("l1 priority = %d/%d at end, want 0/0", base, eff)
	}
	if base, eff := k.Priority(l2); base != 1 || eff != 1 {
		t.Fatalf("l2 priority = %d/%d at end, want 1/1", base, eff)
	}
}

func TestMutexTakeTimeoutRemovesBoost(t *testing.T) {
	k := New(Config{})
	m := k.NewMutex()
	log := &tlog{}
	park := k.NewBinarySemaphore()
	sigH := k.NewBinarySemaphore()

	low := k.NewTask("low", 0, func(ctx *Context) {
		m.Take(ctx, Forever)
		park.Take(ctx, Forever) // holds m for the whole test
	})
	k.NewTask("high", 2, func(ctx *Context) {
		sigH.Take(ctx, Forever)
		log.add(fmt.Sprintf("take=%v@%d", m.Take(ctx, 3), ctx.Now()))
	})
	k.Start()
	k.WaitIdle()

	isrGive(t, k, sigH)
	if _, eff := k.Priority(low); eff != 2 {
		t.Fatalf("low eff = %d with high blocked, want 2", eff)
	}

	tickIdle(k, 2)
	if log.len() != 0 {
		t.Fatalf("take with timeout 3 returned after 2 ticks: %q", log.String())
	}
	tickIdle(k, 1)

	if got, want := log.String(), "take=timed out@3"; got != want {
		t.Fatalf("log = %q, want %q", got, want)
	}
	if base, eff := k.Priority(low); base != 0 || eff != 0 {
		t.Fatalf("low priority = %d/%d after waiter timed out, want 0/0", base, eff)
	}
	if owner := m.Owner(); owner != low {
		t.Fatal("timed-out take must leave ownership untouched")
	}
}

func TestRecursiveMutexSymmetry(t *testing.T) {
	k := New(Config{})
	m := k.NewRecursiveMutex()
	log := &tlog{}
	step := k.NewBinarySemaphore()
	var waiter *Task

	owner := k.NewTask("owner", 1, func(ctx *Context) {
		for i := 0; i < 3; i++ {
			if err := m.Take(ctx, Forever); err != nil {
				log.add(fmt.Sprintf("take=%v", err))
			}
		}
		for i := 0; i < 3; i++ {
			step.Take(ctx, Forever)
			log.add(fmt.Sprintf("give=%v", m.Give(ctx)))
		}
		log.add(fmt.Sprintf("extra=%v", m.Give(ctx)))
	})
	waiter = k.NewTask("waiter", 2, func(ctx *Context) {
		step.Take(ctx, Forever) // released below, after the owner nests
		m.Take(ctx, Forever)
		log.add("waiter-got")
		m.Give(ctx)
	})
	k.Start()
	k.WaitIdle()

	if got := m.RecursionDepth(); got != 3 {
		t.Fatalf("depth = %d after 3 nested takes, want 3", got)
	}

	isrGive(t, k, step) // waiter proceeds and blocks on m
	if _, eff := k.Priority(owner); eff != 2 {
		t.Fatalf("owner eff = %d with waiter blocked, want 2", eff)
	}

	isrGive(t, k, step) // first give
	if got := m.RecursionDepth(); got != 2 {
		t.Fatalf("depth = %d after give 1, want 2", got)
	}
	if st := k.State(waiter); st != TaskBlocked {
		t.Fatalf("waiter state = %v after give 1, want blocked", st)
	}

	isrGive(t, k, step) // second give
	if st := k.State(waiter); st != TaskBlocked {
		t.Fatalf("waiter state = %v after give 2, want blocked", st)
	}

	isrGive(t, k, step) // final give transfers ownership
	want := "give=<nil>,give=<nil>,waiter-got,give=<nil>,extra=not owner"
	if got := log.String(); got != want {
		t.Fatalf("log = %q, want %q", got, want)
	}
}

func TestMutexGiveISRPermissiveOnce(t *testing.T) {
	k := New(Config{})
	m := k.NewMutex()
	park := k.NewBinarySemaphore()
	k.NewTask("owner", 1, func(ctx *Context) {
		m.Take(ctx, Forever)
		park.Take(ctx, Forever)
	})
	k.Start()
	k.WaitIdle()

	isr := k.EnterISR()
	if err := m.GiveISR(isr); err != nil {
		t.Fatalf("first GiveISR() = %v, want nil", err)
	}
	if err := m.GiveISR(isr); err != ErrNotOwner {
		t.Fatalf("second GiveISR() = %v, want ErrNotOwner", err)
	}
	isr.Exit()
	k.WaitIdle()

	if owner := m.Owner(); owner != nil {
		t.Fatalf("owner = %v after interrupt release, want nil", owner.Name())
	}
}

func TestRecursiveMutexGiveISRRejected(t *testing.T) {
	k := New(Config{})
	m := k.NewRecursiveMutex()
	park := k.NewBinarySemaphore()
	k.NewTask("owner", 1, func(ctx *Context) {
		m.Take(ctx, Forever)
		park.Take(ctx, Forever)
	})
	k.Start()
	k.WaitIdle()

	isr := k.EnterISR()
	if err := m.GiveISR(isr); err != ErrNotOwner {
		t.Fatalf("GiveISR() on recursive mutex = %v, want ErrNotOwner", err)
	}
	isr.Exit()
	k.WaitIdle()
	if got := m.RecursionDepth(); got != 1 {
		t.Fatalf("depth = %d, want 1 (untouched)", got)
	}
}
