// Package whatsapp implements the WhatsApp channel adapter over a
// WebSocket bridge (e.g. a whatsapp-web.js process) that speaks the
// actual WhatsApp protocol on our behalf.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

// Channel connects to a WhatsApp bridge via WebSocket. Pairing and policy
// decisions are made by the daemon's inbound pipeline; this adapter only
// translates bridge JSON frames to Inbound/Outbound messages.
type Channel struct {
	*channels.BaseChannel
	bridgeURL string
	mu        sync.Mutex
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new WhatsApp channel from config.
func New(name string, cfg config.ChannelConfig) (*Channel, error) {
	bridgeURL := cfg.Extra["bridge_url"]
	if bridgeURL == "" {
		return nil, fmt.Errorf("whatsapp: bridge_url is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel(name, channeltype.WhatsApp, cfg.AllowFrom),
		bridgeURL:   bridgeURL,
	}, nil
}

// Start connects to the WhatsApp bridge WebSocket and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		slog.Warn("initial whatsapp bridge connection failed, will retry", "channel", c.Name(), "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the WhatsApp channel.
func (c *Channel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message to the WhatsApp bridge.
func (c *Channel) Send(_ context.Context, msg message.Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		slog.Warn("whatsapp bridge not connected", "channel", c.Name())
		return false
	}

	payload, err := json.Marshal(map[string]any{
		"type":    "message",
		"to":      msg.ChannelName,
		"content": msg.Text,
	})
	if err != nil {
		slog.Error("whatsapp marshal message failed", "channel", c.Name(), "error", err)
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Error("whatsapp send failed", "channel", c.Name(), "error", err)
		return false
	}
	return true
}

func (c *Channel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.bridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.bridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "channel", c.Name(), "url", c.bridgeURL)
	return nil
}

func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "channel", c.Name(), "error", err)
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp read error, will reconnect", "channel", c.Name(), "error", err)
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			slog.Warn("invalid whatsapp bridge frame", "channel", c.Name(), "error", err)
			continue
		}
		if kind, _ := frame["type"].(string); kind == "message" {
			c.handleIncoming(frame)
		}
	}
}

// handleIncoming processes a message frame from the bridge. Expected shape:
// {"type":"message","from":"...","chat":"...","content":"...","from_name":"..."}
func (c *Channel) handleIncoming(frame map[string]any) {
	senderID, _ := frame["from"].(string)
	if senderID == "" {
		return
	}
	chatID, _ := frame["chat"].(string)
	if chatID == "" {
		chatID = senderID
	}

	if !c.IsAllowed(senderID) {
		slog.Debug("whatsapp message rejected by transport allowlist", "sender_id", senderID)
		return
	}

	content, _ := frame["content"].(string)
	if content == "" {
		content = "[empty message]"
	}
	senderLabel, _ := frame["from_name"].(string)

	inbound := message.Inbound{
		Channel:     channeltype.WhatsApp,
		ChannelName: chatID,
		SenderID:    senderID,
		SenderLabel: senderLabel,
		Text:        content,
		ThreadID:    chatID,
		Timestamp:   time.Now(),
		Raw:         frame,
	}

	go func() {
		if _, err := c.Deliver(c.ctx, inbound); err != nil {
			slog.Error("whatsapp deliver failed", "channel", c.Name(), "error", err)
		}
	}()
}
