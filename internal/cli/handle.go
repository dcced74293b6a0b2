package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type changer interface {
	Changed() <-chan struct{}
}

// waitFor polls cond each time the handle changes, until it holds.
func waitFor(ctx context.Context, h changer, cond func() (bool, error)) error {
	for {
		changed := h.Changed()
		ok, err := cond()
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM, or after timeout when
// it is positive.
func signalContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
