package contextutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var ErrShutdown = errors.New("fleet shutdown requested")

// SetupSignals returns a context that is cancelled on SIGINT or SIGTERM. The
// cancellation cause names the signal and wraps ErrShutdown.
func SetupSignals(ctx context.Context) context.Context {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	ctxCa, ca := context.WithCancelCause(ctx)
	go func() {
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			slog.With("signal", s.String()).Info("interrupt received")
			ca(fmt.Errorf("%s received: %w", s, ErrShutdown))
		case <-ctxCa.Done():
		}
	}()
	return ctxCa
}

func IsShutdown(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrShutdown)
}
