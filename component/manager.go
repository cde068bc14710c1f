package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/scentstream/errors"
)

// Manager owns the lifecycle of a fixed set of components. Components are
// initialized and started in registration order and stopped in reverse order.
type Manager struct {
	mu      sync.Mutex
	entries []*managedComponent
	logger  *slog.Logger
	started bool
}

// NewManager creates a Manager. A nil logger falls back to slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Register adds a component to the managed set. Registration order determines
// start order. Register must not be called after Start.
func (m *Manager) Register(comp LifecycleComponent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.ErrAlreadyStarted
	}
	m.entries = append(m.entries, &managedComponent{
		component: comp,
		state:     StateCreated,
	})
	return nil
}

// Start initializes and starts all registered components in order. On the
// first failure it stops the components already started, in reverse order,
// and returns the failure.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.ErrAlreadyStarted
	}

	for i, entry := range m.entries {
		name := entry.component.Meta().Name

		if err := entry.component.Initialize(); err != nil {
			entry.state = StateFailed
			entry.lastError = err
			m.stopLocked(i, 5*time.Second)
			return errors.Wrap(err, "Manager", "Start", fmt.Sprintf("initialize %s", name))
		}
		entry.state = StateInitialized

		compCtx, cancel := context.WithCancel(ctx)
		entry.cancel = cancel
		if err := entry.component.Start(compCtx); err != nil {
			cancel()
			entry.state = StateFailed
			entry.lastError = err
			m.stopLocked(i, 5*time.Second)
			return errors.Wrap(err, "Manager", "Start", fmt.Sprintf("start %s", name))
		}
		entry.state = StateStarted
		m.logger.Info("component started", "component", name, "type", entry.component.Meta().Type)
	}

	m.started = true
	return nil
}

// Stop stops all started components in reverse start order. Each component
// gets the full timeout; stop errors are logged and the last one is returned.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return errors.ErrNotStarted
	}
	err := m.stopLocked(len(m.entries), timeout)
	m.started = false
	return err
}

// stopLocked stops entries[0:n] in reverse order. Caller holds mu.
func (m *Manager) stopLocked(n int, timeout time.Duration) error {
	var lastErr error
	for i := n - 1; i >= 0; i-- {
		entry := m.entries[i]
		if entry.state != StateStarted {
			continue
		}
		name := entry.component.Meta().Name
		if err := entry.component.Stop(timeout); err != nil {
			entry.state = StateFailed
			entry.lastError = err
			lastErr = err
			m.logger.Error("component stop failed", "component", name, "error", err)
		} else {
			entry.state = StateStopped
			m.logger.Info("component stopped", "component", name)
		}
		if entry.cancel != nil {
			entry.cancel()
		}
	}
	return lastErr
}

// Health reports the health of every managed component keyed by name.
func (m *Manager) Health() map[string]HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]HealthStatus, len(m.entries))
	for _, entry := range m.entries {
		out[entry.component.Meta().Name] = entry.component.Health()
	}
	return out
}

// States reports the lifecycle state of every managed component keyed by name.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]State, len(m.entries))
	for _, entry := range m.entries {
		out[entry.component.Meta().Name] = entry.state
	}
	return out
}
