package pac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robertkrimen/otto"
)

// Script is a compiled PAC script. It is immutable once built; calls take
// turns because an otto VM must not be entered concurrently.
type Script struct {
	name    string
	turn    chan struct{} // holds one token while a call runs
	vm      *otto.Otto
	entry   otto.Value
	timeout time.Duration
}

// Name identifies the source the script was compiled from.
func (s *Script) Name() string { return s.name }

// FindProxyForURL calls the script's entry point. It fails with ErrRuntime if
// the script throws and with ErrTimeout if the execution budget (or ctx)
// expires first. Waiting for another call to finish counts against ctx only.
func (s *Script) FindProxyForURL(ctx context.Context, targetURL, host string) (string, error) {
	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w waiting for script: %w", s.name, ErrTimeout, ctx.Err())
	}
	defer func() { <-s.turn }()

	value, err := guardedRun(ctx, s.vm, s.timeout, func() (otto.Value, error) {
		return s.entry.Call(otto.NullValue(), targetURL, host)
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.name, err)
	}
	if value.IsUndefined() || value.IsNull() {
		slog.Debug("PAC entry point returned no value", "source", s.name, "host", host)
		return "", nil
	}

	result, err := value.ToString()
	if err != nil {
		return "", fmt.Errorf("%w: %s: result is not a string: %v", ErrRuntime, s.name, err)
	}
	return result, nil
}
