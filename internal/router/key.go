package router

import (
	"fmt"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/message"
)

// BuildKey returns the sender-scoped route key "{channel}:{channel_name}:{sender_id}".
func BuildKey(channel channeltype.Type, channelName, senderID string) string {
	return fmt.Sprintf("%s:%s:%s", channel, channelName, senderID)
}

// BuildThreadKey returns a per-thread variant of the route key, used when
// a deployment configures thread-granular session scoping.
func BuildThreadKey(channel channeltype.Type, channelName, senderID, threadID string) string {
	if threadID == "" {
		return BuildKey(channel, channelName, senderID)
	}
	return fmt.Sprintf("%s:%s:%s:%s", channel, channelName, senderID, threadID)
}

// KeyForMessage derives the route key for an inbound message, honoring
// per-thread scoping when configured and the message carries a thread ID.
func KeyForMessage(msg message.Inbound, perThread bool) string {
	if perThread {
		return BuildThreadKey(msg.Channel, msg.ChannelName, msg.SenderID, msg.ThreadID)
	}
	return BuildKey(msg.Channel, msg.ChannelName, msg.SenderID)
}
