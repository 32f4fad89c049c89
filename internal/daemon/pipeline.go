package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
	"github.com/letsgo/gateway/internal/pairing"
	"github.com/letsgo/gateway/internal/router"
)

// longReplyThreshold is the default spillover trigger for channels with
// no more specific wire limit below.
const longReplyThreshold = 4000

// maxReplyLength returns the channel-appropriate reply length above which
// OnMessage spills the overflow into a file attachment instead of
// sending one oversized message.
func maxReplyLength(kind channeltype.Type) int {
	switch kind {
	case channeltype.Discord:
		return 2000
	case channeltype.Telegram:
		return 4096
	case channeltype.IRC:
		return 400
	case channeltype.Signal, channeltype.WhatsApp, channeltype.Matrix:
		return 3000
	default:
		return longReplyThreshold
	}
}

// OnMessage is the daemon's inbound pipeline entry point, reproducing the
// eight-step sequence every inbound message (real or synthetic, e.g. a
// cron/heartbeat firing) goes through. instanceName identifies the
// adapter instance to deliver the eventual reply through; it is supplied
// by the caller (the adapter's own SetOnMessage closure, or a cron job's
// handler) rather than carried on the message itself.
func (d *Daemon) OnMessage(ctx context.Context, instanceName string, msg message.Inbound) (string, error) {
	chCfg := d.cfg.Channels[instanceName]

	if reply, proceed := d.authorize(instanceName, chCfg, msg); !proceed {
		if reply != "" {
			d.deliverReply(ctx, instanceName, msg, reply, nil)
		}
		return reply, nil
	}

	if !d.stores.Pairing.CheckRateLimit(msg.SenderID, msg.Channel) {
		const reply = "You're sending messages too quickly. Please slow down and try again shortly."
		d.deliverReply(ctx, instanceName, msg, reply, nil)
		return reply, nil
	}

	transformed := msg
	for _, t := range d.inboundTransforms {
		var err error
		transformed, err = t.ProcessInbound(ctx, transformed)
		if err != nil {
			slog.Error("inbound transform failed", "channel", instanceName, "error", err)
			return "", fmt.Errorf("inbound transform: %w", err)
		}
	}

	key := router.KeyForMessage(transformed, d.perThreadSessions)
	reply, err := d.sessions.Route(ctx, key, transformed)
	if err != nil {
		slog.Error("backend routing failed", "channel", instanceName, "sender", transformed.SenderID, "error", err)
		const failureReply = "Sorry, something went wrong handling your message."
		d.deliverReply(ctx, instanceName, transformed, failureReply, nil)
		return "", err
	}
	atomic.AddInt64(&d.messageCount, 1)

	var files []message.Attachment
	reply, spillFile := d.spillIfLong(transformed, reply)
	if spillFile != nil {
		files = append(files, *spillFile)
	}

	for _, t := range d.outboundTransforms {
		var produced []message.Attachment
		var err error
		reply, produced, err = t.ProcessOutbound(ctx, reply, transformed, d.filesDir)
		if err != nil {
			slog.Error("outbound transform failed", "channel", instanceName, "error", err)
			return "", fmt.Errorf("outbound transform: %w", err)
		}
		files = append(files, produced...)
	}

	d.deliverReply(ctx, instanceName, transformed, reply, files)
	return reply, nil
}

// authorize implements steps 1 and 2 of the pipeline: it checks the
// channel instance's configured policy, then — for the default "pairing"
// policy — the sender's block/approved/pending status, issuing or
// verifying a pairing code as needed. proceed is false whenever the
// message must not reach the router; reply (if non-empty) is what the
// sender should be told instead.
func (d *Daemon) authorize(instanceName string, chCfg config.ChannelConfig, msg message.Inbound) (reply string, proceed bool) {
	switch policyOf(chCfg) {
	case "disabled":
		return "", false
	case "open", "allowlist":
		return "", true
	}

	if rec, ok := d.stores.Pairing.Lookup(msg.SenderID, msg.Channel); ok && rec.Status == pairing.StatusBlocked {
		slog.Info("dropping message from blocked sender", "channel", instanceName, "sender", msg.SenderID)
		return "You are not permitted to message this channel.", false
	}

	if d.stores.Pairing.IsApproved(msg.SenderID, msg.Channel) {
		return "", true
	}

	if code, ok := d.stores.Pairing.PendingCode(msg.SenderID, msg.Channel); ok {
		if strings.TrimSpace(msg.Text) == code.Code {
			if verified, err := d.stores.Pairing.VerifyPairing(msg.SenderID, msg.Channel, code.Code); err == nil && verified {
				return "You're verified — send your message again to continue.", false
			}
		}
	}

	newCode, err := d.stores.Pairing.RequestPairing(msg.SenderID, msg.Channel, instanceName, msg.SenderLabel)
	if err != nil {
		slog.Error("pairing request failed", "channel", instanceName, "sender", msg.SenderID, "error", err)
		return "Pairing is temporarily unavailable, please try again shortly.", false
	}
	return fmt.Sprintf("This sender isn't paired yet. Reply with the code %s to continue.", newCode), false
}

// spillIfLong implements step 6: when reply exceeds the destination
// channel's appropriate length, the overflow is written to a file under
// the daemon's files directory and the returned text becomes a short
// preview plus a reference to that file.
func (d *Daemon) spillIfLong(msg message.Inbound, reply string) (string, *message.Attachment) {
	limit := maxReplyLength(msg.Channel)
	if len(reply) <= limit {
		return reply, nil
	}

	name, err := randomFilename(msg.Channel)
	if err != nil {
		slog.Error("spillover filename generation failed", "error", err)
		return channels.Truncate(reply, limit), nil
	}
	path := filepath.Join(d.filesDir, name)
	if err := os.MkdirAll(d.filesDir, 0o755); err != nil {
		slog.Error("spillover mkdir failed", "error", err)
		return channels.Truncate(reply, limit), nil
	}
	if err := os.WriteFile(path, []byte(reply), 0o644); err != nil {
		slog.Error("spillover write failed", "error", err)
		return channels.Truncate(reply, limit), nil
	}

	previewLen := limit / 2
	if previewLen > len(reply) {
		previewLen = len(reply)
	}
	preview := fmt.Sprintf("%s\n\n[reply truncated, full text attached: %s]", reply[:previewLen], name)
	return preview, &message.Attachment{Filename: name, MIMEType: "text/plain", URL: path}
}

// deliverReply performs step 8 (display routing) for any reply the
// pipeline produces, whether from a successful route or an early
// short-circuit (pairing prompt, block refusal, rate-limit notice).
func (d *Daemon) deliverReply(ctx context.Context, instanceName string, msg message.Inbound, reply string, files []message.Attachment) {
	d.display.Route(ctx, reply, nil, instanceName, msg.ChannelName, files)
}

// policyOf returns the channel instance's configured DM policy, defaulting
// to "pairing" when unset. GroupPolicy is carried in configuration for
// future DM/group distinction but InboundMessage currently has no
// group-vs-direct flag to key off, so both kinds of traffic share this
// one policy per instance (see the Open Question resolution in DESIGN.md).
func policyOf(chCfg config.ChannelConfig) string {
	if chCfg.DMPolicy == "" {
		return "pairing"
	}
	return chCfg.DMPolicy
}

func randomFilename(kind channeltype.Type) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%d.txt", kind, hex.EncodeToString(buf), time.Now().UnixNano()), nil
}
