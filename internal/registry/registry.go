// Package registry implements the channel adapter plugin registry: it
// resolves a channel-type string to a factory. Go has no dlopen-style
// plugin loading suitable for a portable, statically-linked binary, so
// the "letsgo.channels" entry-point catalog described in the external
// interfaces is realized as a process-registered built-in table that
// plugins append to via Register at init() time, rather than a runtime
// discovery scan.
package registry

import (
	"fmt"
	"sync"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
)

// Factory constructs a channel adapter instance from its configured
// instance name and channel-specific configuration.
type Factory func(name string, cfg config.ChannelConfig) (channels.Channel, error)

// Registry resolves channel-type strings to factories. Plugin entries
// (registered later, e.g. from a build with extra adapters linked in)
// override built-ins of the same name — the last Register call for a
// given type wins.
type Registry struct {
	mu        sync.RWMutex
	factories map[channeltype.Type]Factory
}

var global = New()

// New creates an empty registry. Most callers use the package-level
// Register/Resolve against the global, process-wide registry populated
// by each adapter package's init().
func New() *Registry {
	return &Registry{factories: make(map[channeltype.Type]Factory)}
}

// Register adds or overrides the factory for a channel type.
func (r *Registry) Register(kind channeltype.Type, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// UnknownChannelType is returned by Resolve when no factory is registered
// for the requested type. Callers (daemon startup) log it and skip the
// offending channel instance rather than aborting startup.
type UnknownChannelType struct {
	Type channeltype.Type
}

func (e *UnknownChannelType) Error() string {
	return fmt.Sprintf("unknown channel type: %q", e.Type)
}

// Resolve returns the factory registered for kind.
func (r *Registry) Resolve(kind channeltype.Type) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	if !ok {
		return nil, &UnknownChannelType{Type: kind}
	}
	return f, nil
}

// Known lists every registered channel type.
func (r *Registry) Known() []channeltype.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]channeltype.Type, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	return out
}

// Register adds factory to the global registry. Adapter packages call
// this from their init() function, which is what makes them a "built-in"
// compile-time entry in the "letsgo.channels" catalog.
func Register(kind channeltype.Type, factory Factory) {
	global.Register(kind, factory)
}

// Resolve resolves kind against the global registry.
func Resolve(kind channeltype.Type) (Factory, error) {
	return global.Resolve(kind)
}

// Known lists every type registered in the global registry.
func Known() []channeltype.Type {
	return global.Known()
}
