package canvas

import (
	"fmt"
	"sync"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/display"
	"github.com/letsgo/gateway/internal/registry"
)

// sharedState is the canvas ring every canvas adapter instance renders
// from. The registry.Factory signature is shared across all channel
// types and carries no daemon-owned state, so the daemon injects its
// single display.State here once at startup via SetSharedState before
// starting the channel manager.
var (
	sharedMu    sync.RWMutex
	sharedState *display.State
)

// SetSharedState wires the daemon's display.State into the canvas
// adapter factory. Must be called before any canvas channel is created.
func SetSharedState(state *display.State) {
	sharedMu.Lock()
	sharedState = state
	sharedMu.Unlock()
}

func init() {
	registry.Register(channeltype.Canvas, func(name string, cfg config.ChannelConfig) (channels.Channel, error) {
		sharedMu.RLock()
		state := sharedState
		sharedMu.RUnlock()
		if state == nil {
			return nil, fmt.Errorf("canvas: display state not wired, call canvas.SetSharedState first")
		}
		return New(name, cfg, state)
	})
}
