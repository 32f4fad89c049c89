// Package backend provides router.Backend implementations: the external
// conversational agent collaborator the session router forwards inbound
// messages to. The agent itself is out of this module's scope — these
// are thin, swappable transports to it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/letsgo/gateway/internal/message"
)

// HTTPBackend forwards each inbound message as a single JSON POST to a
// configured URL and expects a JSON reply back. It implements
// router.Backend without importing internal/router, keeping this package
// dependency-free of the router's own internals.
type HTTPBackend struct {
	url    string
	client *http.Client
}

// requestBody is the wire shape posted to the backend.
type requestBody struct {
	Channel     string `json:"channel"`
	ChannelName string `json:"channel_name"`
	SenderID    string `json:"sender_id"`
	SenderLabel string `json:"sender_label,omitempty"`
	Text        string `json:"text"`
	ThreadID    string `json:"thread_id,omitempty"`
}

// responseBody is the wire shape expected back from the backend.
type responseBody struct {
	Reply string `json:"reply"`
}

// NewHTTPBackend creates a backend that POSTs to url with the given
// per-call timeout.
func NewHTTPBackend(url string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBackend{url: url, client: &http.Client{Timeout: timeout}}
}

// Handle implements router.Backend.
func (b *HTTPBackend) Handle(ctx context.Context, msg message.Inbound) (string, error) {
	body, err := json.Marshal(requestBody{
		Channel:     msg.Channel.String(),
		ChannelName: msg.ChannelName,
		SenderID:    msg.SenderID,
		SenderLabel: msg.SenderLabel,
		Text:        msg.Text,
		ThreadID:    msg.ThreadID,
	})
	if err != nil {
		return "", fmt.Errorf("backend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("backend: unexpected status %d", resp.StatusCode)
	}

	var out responseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("backend: decode response: %w", err)
	}
	return out.Reply, nil
}
