// Package router implements the per-sender session router: it forwards an
// inbound message to the backend while preserving conversational
// continuity keyed by route key, serializing calls per session.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/letsgo/gateway/internal/message"
)

// Backend is the external conversational agent collaborator. It is out
// of scope for this module and named only by this interface.
type Backend interface {
	Handle(ctx context.Context, msg message.Inbound) (string, error)
}

// SessionHandle is the router's record for one route key.
type SessionHandle struct {
	RouteKey     string
	SessionID    string
	CreatedAt    time.Time
	LastActive   time.Time
	MessageCount int

	callMu sync.Mutex // serializes backend calls for this session
}

// Snapshot is the read-only projection exposed to callers and the admin surface.
type Snapshot struct {
	RouteKey     string    `json:"route_key"`
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	MessageCount int       `json:"message_count"`
}

// Router owns the route-key → session handle map.
type Router struct {
	backend Backend
	mu      sync.Mutex
	byKey   map[string]*SessionHandle

	idleTimeout  time.Duration
	reapInterval time.Duration

	stop chan struct{}
	done chan struct{}
}

// Options configures idle reaping.
type Options struct {
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// New creates a Router bound to a backend collaborator.
func New(backend Backend, opts Options) *Router {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 5 * time.Minute
	}
	return &Router{
		backend:      backend,
		byKey:        make(map[string]*SessionHandle),
		idleTimeout:  opts.IdleTimeout,
		reapInterval: opts.ReapInterval,
	}
}

// getOrCreate returns the session handle for key, creating it
// at-most-once under the router's lock. The returned handle's own
// callMu then serializes concurrent routing for that one key without
// blocking other keys.
func (r *Router) getOrCreate(key string) *SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byKey[key]
	if ok {
		return h
	}
	now := time.Now()
	h = &SessionHandle{
		RouteKey:   key,
		SessionID:  uuid.NewString(),
		CreatedAt:  now,
		LastActive: now,
	}
	r.byKey[key] = h
	return h
}

// Route forwards msg to the backend for its route key, serializing calls
// per session. Backend failures bubble up; last_active is still updated,
// but message_count is not incremented on error.
func (r *Router) Route(ctx context.Context, key string, msg message.Inbound) (string, error) {
	h := r.getOrCreate(key)

	h.callMu.Lock()
	defer h.callMu.Unlock()

	reply, err := r.backend.Handle(ctx, msg)

	r.mu.Lock()
	h.LastActive = time.Now()
	if err == nil {
		h.MessageCount++
	}
	r.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("backend handle: %w", err)
	}
	return reply, nil
}

// ActiveSessions returns a snapshot projection of every live session.
func (r *Router) ActiveSessions() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Snapshot, len(r.byKey))
	for k, h := range r.byKey {
		out[k] = Snapshot{
			RouteKey:     h.RouteKey,
			SessionID:    h.SessionID,
			CreatedAt:    h.CreatedAt,
			LastActive:   h.LastActive,
			MessageCount: h.MessageCount,
		}
	}
	return out
}

// CloseSession destroys the handle for key, if present.
func (r *Router) CloseSession(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; !ok {
		return false
	}
	delete(r.byKey, key)
	return true
}

// StartReaping launches the idle-session sweep goroutine. Reaping never
// aborts an in-flight call: a session is removed from the map on its
// LastActive time alone, without checking callMu, but an in-flight Route
// call already holds its own handle reference and completes on it.
func (r *Router) StartReaping(ctx context.Context) {
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.reapLoop(ctx)
}

func (r *Router) reapLoop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.reapOnce()
		}
	}
}

func (r *Router) reapOnce() {
	cutoff := time.Now().Add(-r.idleTimeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, h := range r.byKey {
		if h.LastActive.Before(cutoff) {
			delete(r.byKey, k)
		}
	}
}

// StopReaping stops the idle sweep goroutine and waits for it to exit.
func (r *Router) StopReaping() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	<-r.done
}
