package driver

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned from session waits. Callers distinguish outcomes
// with errors.Is / errors.As.
var (
	// ErrDisposed is returned for any operation attempted after the
	// instance has been torn down. Never retried.
	ErrDisposed = errors.New("instance disposed")

	// ErrCancelled is returned when the caller's context fires before the
	// session reaches a terminal state. Distinct from timeout so callers
	// can report "cancelled" rather than "failed".
	ErrCancelled = errors.New("session wait cancelled")

	// ErrStreamDisconnected is returned to every pending wait when event
	// stream reconnection is exhausted. The only error that affects
	// multiple sessions at once.
	ErrStreamDisconnected = errors.New("event stream disconnected")

	// ErrWaitExists is returned when a second completion wait is
	// registered for a session that already has one pending.
	ErrWaitExists = errors.New("completion wait already registered for session")
)

// TimeoutError is returned when no terminal event arrives within the
// caller's budget. The session itself is left as-is.
type TimeoutError struct {
	SessionID string
	Budget    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("session %s: no completion within %v", e.SessionID, e.Budget)
}

// SessionError is returned when the agent reports an error or disconnected
// status for a session.
type SessionError struct {
	SessionID string
	Status    string
	Detail    string
}

func (e *SessionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("session %s: agent reported %s", e.SessionID, e.Status)
	}
	return fmt.Sprintf("session %s: agent reported %s: %s", e.SessionID, e.Status, e.Detail)
}
