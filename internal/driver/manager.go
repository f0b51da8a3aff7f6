package driver

import (
	"context"
	"sync"

	"github.com/workspace/agent-driver/internal/config"
)

// Manager owns the single long-lived Instance. There is no hidden global:
// callers hold a Manager by reference and tests construct isolated ones.
type Manager struct {
	cfg      *config.Config
	observer Observer

	mu       sync.Mutex
	instance *Instance

	// build constructs and initializes an instance. Overridable in tests.
	build func(ctx context.Context) (*Instance, error)
}

// NewManager creates a Manager. Acquire lazily builds the shared instance.
func NewManager(cfg *config.Config, observer Observer) *Manager {
	m := &Manager{cfg: cfg, observer: observer}
	m.build = func(ctx context.Context) (*Instance, error) {
		inst := newInstance(m.observer)
		if err := inst.initialize(ctx, m.cfg); err != nil {
			return nil, err
		}
		return inst, nil
	}
	return m
}

// Acquire returns the shared instance, creating and initializing it on
// first call. The lock is held across initialization so concurrent callers
// observe the same in-flight build rather than spawning duplicate agent
// processes. A failed build leaves nothing registered: the next Acquire
// retries cleanly.
func (m *Manager) Acquire(ctx context.Context) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance != nil && m.instance.State() != StateDisposed {
		return m.instance, nil
	}

	inst, err := m.build(ctx)
	if err != nil {
		return nil, err
	}
	m.instance = inst
	return inst, nil
}

// Has reports whether an instance currently exists, without forcing
// creation.
func (m *Manager) Has() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instance != nil && m.instance.State() != StateDisposed
}

// Reset disposes the current instance (if any) and clears the reference so
// the next Acquire builds a fresh one.
func (m *Manager) Reset() error {
	m.mu.Lock()
	inst := m.instance
	m.instance = nil
	m.mu.Unlock()

	if inst == nil {
		return nil
	}
	return inst.Dispose()
}
