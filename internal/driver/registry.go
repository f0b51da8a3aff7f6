package driver

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// pending is one registered completion wait. Exactly one of the four
// settlement paths (terminal event, timeout, cancellation, dispose) wins;
// whichever does removes the entry and renders the others inert.
type pending struct {
	ch      chan error
	timer   *time.Timer
	release func() bool
}

// completions is the table of pending completion waits, keyed by session
// identity. At most one entry exists per session at any instant.
type completions struct {
	mu      sync.Mutex
	entries map[string]*pending
	closed  bool
}

func newCompletions() *completions {
	return &completions{entries: make(map[string]*pending)}
}

// register installs a completion wait for sessionID and returns the channel
// it settles on. The wait settles with nil when the session goes idle, and
// with an error on session error, timeout, cancellation or disposal.
// Registering while a wait already exists fails with ErrWaitExists;
// registering after dispose fails with ErrDisposed.
func (c *completions) register(ctx context.Context, sessionID string, timeout time.Duration) (<-chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrDisposed
	}
	if _, ok := c.entries[sessionID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrWaitExists, sessionID)
	}

	p := &pending{ch: make(chan error, 1)}
	c.entries[sessionID] = p

	// Both hooks funnel into settle, which takes the lock, so arming them
	// here cannot race the registration.
	p.timer = time.AfterFunc(timeout, func() {
		c.settle(sessionID, &TimeoutError{SessionID: sessionID, Budget: timeout})
	})
	p.release = context.AfterFunc(ctx, func() {
		c.settle(sessionID, fmt.Errorf("%w: %s", ErrCancelled, sessionID))
	})

	return p.ch, nil
}

// settle resolves the wait for sessionID with the given outcome (nil for
// idle). It is a no-op when no entry exists, which covers terminal events
// arriving after a timeout or cancellation already removed the entry.
func (c *completions) settle(sessionID string, outcome error) {
	c.mu.Lock()
	p, ok := c.entries[sessionID]
	if ok {
		delete(c.entries, sessionID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	p.disarm()
	p.ch <- outcome
}

// failAll rejects every pending wait with err and clears the table.
func (c *completions) failAll(err error) {
	c.mu.Lock()
	all := c.entries
	c.entries = make(map[string]*pending)
	c.mu.Unlock()

	for _, p := range all {
		p.disarm()
		p.ch <- err
	}
}

// dispose rejects every pending wait with ErrDisposed and latches the table
// closed so later registrations fail immediately.
func (c *completions) dispose() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.failAll(ErrDisposed)
}

// size reports the number of pending waits.
func (c *completions) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// disarm stops the timeout timer and detaches the cancellation hook so a
// settled wait cannot fire again or leak listeners.
func (p *pending) disarm() {
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.release != nil {
		p.release()
	}
}
