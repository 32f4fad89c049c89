// Package webhook implements a generic inbound HTTP channel adapter: any
// external system can push messages into the gateway via a signed POST,
// and replies are delivered back to a callback URL supplied by the sender.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

const maxBodyBytes = 1 << 20 // 1MB

// inboundPayload is the JSON shape a webhook POST body must match.
type inboundPayload struct {
	SenderID    string `json:"sender_id"`
	SenderLabel string `json:"sender_label,omitempty"`
	Text        string `json:"text"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// Channel receives inbound messages over a signed HTTP POST endpoint and
// delivers replies to the per-request callback_url.
type Channel struct {
	*channels.BaseChannel
	cfg      config.ChannelConfig
	path     string
	server   *http.Server
	mu       sync.Mutex
	callback map[string]string // sender id -> last-seen callback URL
	limiter  *channels.WebhookRateLimiter
}

// New creates a webhook channel instance from its configuration.
func New(name string, cfg config.ChannelConfig) (*Channel, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("webhook: listen_addr is required")
	}
	path := cfg.Extra["path"]
	if path == "" {
		path = "/webhook/" + name
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel(name, channeltype.Webhook, cfg.AllowFrom),
		cfg:         cfg,
		path:        path,
		callback:    make(map[string]string),
		limiter:     channels.NewWebhookRateLimiter(),
	}, nil
}

// Start binds the HTTP listener for this webhook instance.
func (c *Channel) Start(ctx context.Context) error {
	router := chi.NewRouter()
	router.Post(c.path, c.handleInbound(ctx))

	c.server = &http.Server{
		Addr:              c.cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook listener exited", "channel", c.Name(), "error", err)
		}
	}()

	c.SetRunning(true)
	slog.Info("webhook channel listening", "channel", c.Name(), "addr", c.cfg.ListenAddr, "path", c.path)
	return nil
}

// Stop shuts down the HTTP listener.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.server == nil {
		return nil
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(shutCtx)
}

// Send POSTs the reply to the callback URL cached for this sender, if any.
// Replies with no known callback are dropped: the caller had no return path.
func (c *Channel) Send(ctx context.Context, msg message.Outbound) bool {
	c.mu.Lock()
	callbackURL := c.callback[msg.ThreadID]
	c.mu.Unlock()
	if callbackURL == "" {
		return true
	}

	body, err := json.Marshal(map[string]string{"text": msg.Text})
	if err != nil {
		slog.Error("webhook marshal reply failed", "channel", c.Name(), "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("webhook build callback request failed", "channel", c.Name(), "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.WebhookSecret != "" {
		mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
		mac.Write(body)
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Error("webhook callback POST failed", "channel", c.Name(), "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

func (c *Channel) handleInbound(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.limiter.Allow(r.RemoteAddr) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}

		if !c.verifyHMAC(body, r.Header.Get("X-Signature-256")) {
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}

		var payload inboundPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if payload.SenderID == "" || payload.Text == "" {
			http.Error(w, "sender_id and text are required", http.StatusBadRequest)
			return
		}

		if !c.IsAllowed(payload.SenderID) {
			http.Error(w, "sender not allowed", http.StatusForbidden)
			return
		}

		if payload.CallbackURL != "" {
			c.mu.Lock()
			c.callback[payload.SenderID] = payload.CallbackURL
			c.mu.Unlock()
		}

		inbound := message.Inbound{
			Channel:     channeltype.Webhook,
			ChannelName: c.Name(),
			SenderID:    payload.SenderID,
			SenderLabel: payload.SenderLabel,
			Text:        payload.Text,
			ThreadID:    payload.SenderID,
			Timestamp:   time.Now(),
			Raw:         payload,
		}

		go func() {
			if _, err := c.Deliver(ctx, inbound); err != nil {
				slog.Error("webhook deliver failed", "channel", c.Name(), "error", err)
			}
		}()

		w.WriteHeader(http.StatusAccepted)
	}
}

// verifyHMAC checks the X-Signature-256 header against the body. Passes
// when no secret is configured.
func (c *Channel) verifyHMAC(body []byte, signature string) bool {
	if c.cfg.WebhookSecret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	const prefix = "sha256="
	if len(signature) > len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}
