// Package retry provides fixed-interval bounded probing, used while waiting
// for the agent control channel to become reachable after spawn.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PermanentError wraps an error that should stop probing immediately.
// Return Permanent(err) from the fn callback to give up without further attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a PermanentError to stop probing.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Config configures the probe behavior. The interval is fixed: no jitter,
// no growth between attempts.
type Config struct {
	// Interval is the pause between attempts.
	Interval time.Duration
	// MaxAttempts limits total attempts. Must be at least 1.
	MaxAttempts int
}

// DefaultConfig returns defaults suitable for loopback readiness probing.
func DefaultConfig() Config {
	return Config{
		Interval:    500 * time.Millisecond,
		MaxAttempts: 40,
	}
}

// Do executes fn up to cfg.MaxAttempts times, pausing cfg.Interval between
// attempts. It stops early on success, on a PermanentError, or when ctx is
// cancelled. Returns the last error when all attempts are exhausted.
func Do(ctx context.Context, cfg Config, operationName string, fn func(ctx context.Context) error) error {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Debug("Probe succeeded after retry", "operation", operationName, "attempt", attempt)
			}
			return nil
		}

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			return permErr.Err
		}

		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: cancelled while probing: %w", operationName, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s: gave up after %d attempts: %w", operationName, cfg.MaxAttempts, lastErr)
}
