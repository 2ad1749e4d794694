package signals

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// SetupHandler cancels the application when an interrupt or termination
// signal arrives. Signal delivery stops once ctx is done.
func SetupHandler(ctx context.Context, cancel context.CancelFunc, shutdownOnce *sync.Once) {
	notify := make(chan os.Signal, 1)
	signal.Notify(notify, shutdownSignals...)

	go func() {
		defer signal.Stop(notify)
		awaitSignal(ctx, notify, func() { TriggerShutdown(shutdownOnce, cancel) })
	}()
}

func awaitSignal(ctx context.Context, notify <-chan os.Signal, shutdown func()) {
	select {
	case sig := <-notify:
		slog.Info("Shutdown signal received", "signal", sig.String())
		shutdown()
	case <-ctx.Done():
		slog.Debug("Context done, no longer waiting for signals")
	}
}

// TriggerShutdown calls cancel once per shutdownOnce.
func TriggerShutdown(shutdownOnce *sync.Once, cancel context.CancelFunc) {
	shutdownOnce.Do(func() {
		slog.Info("Shutting down")
		if cancel != nil {
			cancel()
		}
	})
}
