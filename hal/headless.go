package hal

import (
	"context"
	"errors"
	"time"
)

const headlessFrame = 5 * time.Millisecond

// RunHeadless calls step on a steady cadence without opening a window,
// until the context is cancelled or step fails or stops.
func RunHeadless(ctx context.Context, step func() error) error {
	t := time.NewTicker(headlessFrame)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := step(); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
	}
}
