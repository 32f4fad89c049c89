package display

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/message"
)

// Router classifies an outbound reply and selects exactly zero or one
// destination adapter: a canvas-type adapter (chosen by
// Manager.FirstOfType) for structured content, or the originating chat
// adapter otherwise. The display router
// never invents a channel — both targets must already exist in the
// adapter set.
type Router struct {
	manager *channels.Manager
	State   *State
}

// New creates a Router bound to the daemon's channel manager.
func New(manager *channels.Manager) *Router {
	return &Router{manager: manager, State: NewState()}
}

// Route delivers text (plus optional metadata, e.g. {content_type, id})
// and any files accumulated by outbound transforms or long-response
// spillover. originatingInstance is the configured adapter instance name
// that produced the inbound message this reply answers (used to look up
// the adapter in the manager); destination is the wire-level chat/room/
// user id that adapter's Send needs to know where to deliver to. It
// returns whether a send was attempted and, if so, whether it succeeded.
func (r *Router) Route(ctx context.Context, text string, metadata map[string]string, originatingInstance, destination string, attachments []message.Attachment) bool {
	env, isEnvelope := ParseEnvelope(text)
	if !isEnvelope && metadata["content_type"] != "" {
		env = Envelope{
			ContentType: ContentType(metadata["content_type"]),
			Content:     text,
			ID:          metadata["id"],
		}
		isEnvelope = validContentTypes[env.ContentType]
	}

	if isEnvelope {
		if canvas, ok := r.manager.FirstOfType(channeltype.Canvas); ok {
			if env.ID != "" {
				r.State.Put(env.ID, env)
			}
			encoded, err := json.Marshal(env)
			if err != nil {
				slog.Error("display envelope re-encode failed", "error", err)
				return false
			}
			out := message.Outbound{
				Channel:     channeltype.Canvas,
				ChannelName: canvas.Name(),
				Text:        string(encoded),
			}
			return r.manager.Send(ctx, canvas.Name(), out)
		}
		slog.Debug("display envelope routed with no canvas adapter present, falling back to originating channel")
	}

	if originatingInstance == "" || destination == "" {
		slog.Warn("display routing has no originating channel and no canvas adapter")
		return false
	}
	out := message.Outbound{ChannelName: destination, Text: text, Attachments: attachments}
	return r.manager.Send(ctx, originatingInstance, out)
}
