package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/workspace/agent-driver/internal/events"
)

// Reconnection policy for the event feed: fixed linear backoff, no jitter,
// bounded at three total attempts. This is the only operation retry in the
// driver.
const (
	reconnectMaxAttempts = 3
	reconnectDelay       = 1000 * time.Millisecond
)

// eventStream is one live attachment to the agent event feed.
type eventStream interface {
	Next(ctx context.Context) (events.Event, error)
	Close() error
}

// eventSource opens event streams. Satisfied by the control client via
// controlSource.
type eventSource interface {
	Subscribe(ctx context.Context) (eventStream, error)
}

// consumer owns the event subscription: it dispatches each event in arrival
// order and re-subscribes with bounded retries when the stream fails.
type consumer struct {
	source   eventSource
	registry *completions
	dispatch func(events.Event)
}

// run drives the subscription until ctx is cancelled or reconnection is
// exhausted. On exhaustion every pending completion is failed with
// ErrStreamDisconnected and the registry is left empty.
func (c *consumer) run(ctx context.Context) {
	attempt := 0
	for {
		stream, err := c.source.Subscribe(ctx)
		if err == nil {
			attempt = 0
			err = c.pump(ctx, stream)
			stream.Close()
		}

		if ctx.Err() != nil {
			return
		}

		slog.Warn("Driver: event stream failed", "attempt", attempt+1, "maxAttempts", reconnectMaxAttempts, "error", err)

		if attempt < reconnectMaxAttempts-1 {
			timer := time.NewTimer(reconnectDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			attempt++
			continue
		}

		slog.Error("Driver: event stream reconnection exhausted, failing pending sessions",
			"attempts", reconnectMaxAttempts, "pending", c.registry.size())
		c.registry.failAll(ErrStreamDisconnected)
		return
	}
}

// pump processes events from one stream until it fails or ctx is cancelled.
// Events are dispatched strictly in arrival order; there is no concurrent
// processing of two events.
func (c *consumer) pump(ctx context.Context, stream eventStream) error {
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.dispatch(ev)
	}
}
