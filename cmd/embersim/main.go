// Command embersim runs the kernel check suite on the host, either under a
// window showing the live status panel or headless with periodic log lines.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"ember/checks"
	"ember/hal"
	"ember/kernel"
	"ember/monitor"
)

func main() {
	var (
		headless = flag.Bool("headless", false, "Run without a window.")
		hz       = flag.Int("hz", 100, "Tick rate.")
		maxTicks = flag.Uint64("ticks", 0, "Stop after N ticks (0 = run forever).")
	)
	flag.Parse()

	h := hal.New(*hz)
	k := kernel.New(kernel.Config{})
	suite := checks.NewSuite(k, h.Logger())
	k.Start()

	advance := func() error {
		for n := h.Clock().Advance(); n > 0; n-- {
			isr := k.EnterISR()
			isr.Tick()
			suite.OnTick(isr, isr.Now())
			isr.Exit()
		}
		if *maxTicks > 0 && k.Now() >= *maxTicks {
			return hal.ErrStop
		}
		return nil
	}

	var err error
	if *headless {
		err = runHeadless(h, k, suite, advance)
	} else {
		mon := monitor.New(h.Display())
		err = hal.RunWindow(h, func() error {
			stepErr := advance()
			mon.Render(k, []string{statusLine(k, suite)})
			return stepErr
		})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if suite.Failures() > 0 {
		fmt.Fprintf(os.Stderr, "%d check failure(s)\n", suite.Failures())
		os.Exit(1)
	}
}

func runHeadless(h hal.HAL, k *kernel.Kernel, suite *checks.Suite, step func() error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return hal.RunHeadless(ctx, step)
	})
	g.Go(func() error {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				h.Logger().WriteLineString(statusLine(k, suite))
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func statusLine(k *kernel.Kernel, suite *checks.Suite) string {
	verdict := "ok"
	if !suite.Healthy() {
		verdict = "not ok"
	}
	if suite.Polls() == 0 {
		verdict = "warming up"
	}
	return fmt.Sprintf("tick %d  rounds %d  failures %d  [%s]", k.Now(), suite.Polls(), suite.Failures(), verdict)
}
