package channels

import (
	"context"
	"log/slog"
	"sync"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/message"
)

// Manager owns the live set of channel adapters and their lifecycle. It
// does not make routing decisions — the daemon calls Get directly
// when it needs to send on a specific instance.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewManager creates an empty channel manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Register adds a channel instance to the manager, keyed by its name.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Unregister removes a channel instance.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

// StartAll starts every registered channel. A single adapter's start
// failure is logged and does not abort the others (AdapterStartFailure:
// the daemon continues, is_running stays false for that instance).
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			slog.Warn("channel failed to start", "channel", name, "error", err)
		}
	}
}

// StopAll stops every registered channel, logging individual failures.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			slog.Warn("channel failed to stop", "channel", name, "error", err)
		}
	}
}

// Get returns a channel instance by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// List returns a snapshot of all registered channels, in no defined order.
func (m *Manager) List() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	return out
}

// FirstOfType returns a registered channel of the given kind — used by
// the display router to locate the canvas adapter. When several channels
// of that kind are registered, which one is returned is not defined and
// may differ between calls.
func (m *Manager) FirstOfType(kind channeltype.Type) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.channels {
		if ch.Type() == kind {
			return ch, true
		}
	}
	return nil, false
}

// Send delivers an outbound message on a named channel instance.
func (m *Manager) Send(ctx context.Context, name string, msg message.Outbound) bool {
	ch, ok := m.Get(name)
	if !ok {
		slog.Warn("send to unknown channel", "channel", name)
		return false
	}
	return ch.Send(ctx, msg)
}

// Status is the admin-surface projection of a channel's live state.
type Status struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsRunning bool   `json:"is_running"`
}

// StatusAll projects every registered channel for the admin surface.
func (m *Manager) StatusAll() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, Status{Name: ch.Name(), Type: ch.Type().String(), IsRunning: ch.IsRunning()})
	}
	return out
}
