package daemon

import (
	"context"

	"github.com/letsgo/gateway/internal/message"
)

// InboundTransform mutates an inbound message before it reaches the
// router — e.g. a voice-transcription middleware replacing audio
// attachments with their transcript text. Transforms never mutate msg in
// place; they return a (possibly identical) replacement.
type InboundTransform interface {
	ProcessInbound(ctx context.Context, msg message.Inbound) (message.Inbound, error)
}

// OutboundTransform mutates a reply after routing but before display
// delivery — e.g. a TTS middleware appending a synthesized audio file.
// filesDir is the daemon's files directory, in case the
// transform needs to write its own attachment to disk. It returns the
// (possibly rewritten) reply text plus any files it produced.
type OutboundTransform interface {
	ProcessOutbound(ctx context.Context, reply string, msg message.Inbound, filesDir string) (string, []message.Attachment, error)
}

// InboundTransformFunc adapts a plain function to InboundTransform.
type InboundTransformFunc func(ctx context.Context, msg message.Inbound) (message.Inbound, error)

func (f InboundTransformFunc) ProcessInbound(ctx context.Context, msg message.Inbound) (message.Inbound, error) {
	return f(ctx, msg)
}

// OutboundTransformFunc adapts a plain function to OutboundTransform.
type OutboundTransformFunc func(ctx context.Context, reply string, msg message.Inbound, filesDir string) (string, []message.Attachment, error)

func (f OutboundTransformFunc) ProcessOutbound(ctx context.Context, reply string, msg message.Inbound, filesDir string) (string, []message.Attachment, error) {
	return f(ctx, reply, msg, filesDir)
}
