// Package channels defines the channel adapter contract shared by every
// wire-protocol plugin (Telegram, Discord, Slack, webhook, ...). Pairing,
// rate-limiting and routing decisions live in the daemon's inbound
// pipeline, not in the adapters themselves — an adapter's only job is
// transport lifecycle and wire translation.
package channels

import (
	"context"
	"strings"
	"sync"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/message"
)

// Handler is the single inbound callback an adapter delivers messages to.
// It returns the reply text the daemon wants sent back; the adapter is not
// obligated to send it itself (the daemon decides via the display router).
type Handler func(ctx context.Context, msg message.Inbound) (string, error)

// Channel is the capability set every adapter must satisfy: start, stop,
// send, set_on_message and an observable is_running flag.
type Channel interface {
	// Name is the configured instance name (e.g. "telegram-support").
	Name() string

	// Type is the adapter kind (e.g. channeltype.Telegram).
	Type() channeltype.Type

	// Start acquires transport resources and begins delivering inbound
	// messages to the registered handler. Idempotent; must not block.
	Start(ctx context.Context) error

	// Stop releases resources and cancels in-flight deliveries. Idempotent.
	Stop(ctx context.Context) error

	// Send attempts delivery once. Returns false on handled failure; it
	// never panics or returns an error — failures are logged internally.
	Send(ctx context.Context, msg message.Outbound) bool

	// SetOnMessage registers the single inbound handler, replacing any
	// previous registration.
	SetOnMessage(h Handler)

	// IsRunning reports the adapter's current lifecycle state.
	IsRunning() bool
}

// BaseChannel provides the shared bookkeeping every adapter embeds: the
// lifecycle flag, the registered handler and an optional sender allowlist
// used as a transport-level guard independent of the pairing store.
type BaseChannel struct {
	mu        sync.RWMutex
	name      string
	kind      channeltype.Type
	running   bool
	handler   Handler
	allowList []string
}

// NewBaseChannel creates a BaseChannel for the given instance name and kind.
func NewBaseChannel(name string, kind channeltype.Type, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, kind: kind, allowList: allowList}
}

// Name returns the channel instance name.
func (c *BaseChannel) Name() string { return c.name }

// Type returns the channel adapter kind.
func (c *BaseChannel) Type() channeltype.Type { return c.kind }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) {
	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
}

// SetOnMessage registers the inbound handler.
func (c *BaseChannel) SetOnMessage(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Deliver invokes the registered handler, if any. Adapters call this from
// their inbound loop once a wire update has been translated into an
// Inbound message.
func (c *BaseChannel) Deliver(ctx context.Context, msg message.Inbound) (string, error) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return "", nil
	}
	return h(ctx, msg)
}

// HasAllowList returns true if a transport-level allowlist is configured.
func (c *BaseChannel) HasAllowList() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.allowList) > 0
}

// IsAllowed checks if a sender is permitted by the transport-level
// allowlist. Supports compound sender IDs of the form "id|username".
// An empty allowlist allows everyone (the pairing store is the real gate).
func (c *BaseChannel) IsAllowed(senderID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.allowList) == 0 {
		return true
	}

	idPart, userPart := senderID, ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID, allowedUser := trimmed, ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}
		if senderID == allowed || idPart == allowed || senderID == trimmed ||
			idPart == trimmed || idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == allowed || userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}
	return false
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
