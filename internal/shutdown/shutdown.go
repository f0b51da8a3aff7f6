// Package shutdown coordinates graceful termination: it propagates one
// cancellation signal into all in-flight work and enforces a hard ceiling
// on how long the work may take to settle after a signal.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Exit codes returned by Run.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitForced    = 124 // graceful-shutdown ceiling hit
	ExitCancelled = 130 // cancelled by signal, settled in time
)

// Coordinator runs one unit of work under signal-driven cancellation.
type Coordinator struct {
	// Grace is the hard ceiling from signal receipt to forced exit.
	Grace time.Duration

	// signals and exit are injectable for tests.
	signals []os.Signal
	exit    func(int)
	notify  func(chan<- os.Signal, ...os.Signal)
}

// New creates a Coordinator with the given grace ceiling.
func New(grace time.Duration) *Coordinator {
	return &Coordinator{
		Grace:   grace,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		exit:    os.Exit,
		notify:  signal.Notify,
	}
}

// Run executes fn with a context that is cancelled on SIGINT/SIGTERM and
// returns an exit code reflecting the outcome:
//
//   - fn returns nil: ExitOK
//   - fn returns an error: ExitFailure
//   - a signal arrived and fn settled with a cancellation error within the
//     grace ceiling: ExitCancelled
//   - fn did not settle within the ceiling: the process is force-exited
//     with ExitForced (a second signal force-exits immediately)
func (c *Coordinator) Run(fn func(ctx context.Context) error) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	c.notify(sigCh, c.signals...)

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	var signalled bool
	for {
		select {
		case sig := <-sigCh:
			if signalled {
				slog.Error("Shutdown: second signal, forcing exit", "signal", sig)
				c.exit(ExitForced)
				return ExitForced
			}
			signalled = true
			slog.Info("Shutdown: signal received, cancelling in-flight work",
				"signal", sig, "grace", c.Grace)
			cancel()

			// Arm the hard ceiling. It is disarmed below when fn settles
			// first.
			ceiling := time.AfterFunc(c.Grace, func() {
				slog.Error("Shutdown: grace ceiling hit, forcing exit", "grace", c.Grace)
				c.exit(ExitForced)
			})
			defer ceiling.Stop()

		case err := <-done:
			switch {
			case err == nil:
				return ExitOK
			case signalled && isCancellation(err):
				slog.Info("Shutdown: work cancelled cleanly")
				return ExitCancelled
			default:
				slog.Error("Run failed", "error", err)
				return ExitFailure
			}
		}
	}
}

// isCancellation reports whether err stems from the propagated cancel.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
