package irc

import (
	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/registry"
)

func init() {
	registry.Register(channeltype.IRC, func(name string, cfg config.ChannelConfig) (channels.Channel, error) {
		return New(name, cfg)
	})
}
