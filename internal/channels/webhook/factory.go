package webhook

import (
	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/registry"
)

func init() {
	registry.Register(channeltype.Webhook, func(name string, cfg config.ChannelConfig) (channels.Channel, error) {
		return New(name, cfg)
	})
}
