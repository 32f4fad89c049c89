// Package matrix implements the Matrix channel adapter over the
// client-server /sync long-polling HTTP API. No third-party Matrix SDK
// appears anywhere in the retrieved example corpus, and the protocol is a
// plain authenticated JSON-over-HTTP long-poll — net/http already covers
// it cleanly, so this adapter is built on the standard library alone
// rather than reaching for an unvetted out-of-pack dependency.
package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

// Channel connects to a Matrix homeserver using the client-server /sync
// endpoint for inbound events and /send for outbound ones.
type Channel struct {
	*channels.BaseChannel
	homeserver string
	userID     string
	cfg        config.ChannelConfig
	httpClient *http.Client
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a new Matrix channel from config.
func New(name string, cfg config.ChannelConfig) (*Channel, error) {
	homeserver := cfg.Extra["homeserver"]
	if homeserver == "" {
		return nil, fmt.Errorf("matrix: homeserver is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("matrix: access token is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel(name, channeltype.Matrix, cfg.AllowFrom),
		homeserver:  strings.TrimSuffix(homeserver, "/"),
		userID:      cfg.Extra["user_id"],
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Start begins the /sync long-poll loop.
func (c *Channel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.syncLoop(runCtx)

	c.SetRunning(true)
	slog.Info("matrix channel connected", "channel", c.Name(), "homeserver", c.homeserver)
	return nil
}

// Stop ends the sync loop.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
		}
	}
	return nil
}

// Send posts a message event to a Matrix room.
func (c *Channel) Send(ctx context.Context, msg message.Outbound) bool {
	if !c.IsRunning() || msg.Text == "" {
		return msg.Text == ""
	}
	txnID := fmt.Sprintf("%d", time.Now().UnixNano())
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		c.homeserver, url.PathEscape(msg.ChannelName), txnID)

	body, _ := json.Marshal(map[string]string{
		"msgtype": "m.text",
		"body":    msg.Text,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(string(body)))
	if err != nil {
		slog.Error("matrix build send request failed", "channel", c.Name(), "error", err)
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("matrix send failed", "channel", c.Name(), "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]struct {
			Timeline struct {
				Events []syncEvent `json:"events"`
			} `json:"timeline"`
		} `json:"join"`
	} `json:"rooms"`
}

type syncEvent struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	EventID string `json:"event_id"`
	Content struct {
		MsgType string `json:"msgtype"`
		Body    string `json:"body"`
	} `json:"content"`
}

func (c *Channel) syncLoop(ctx context.Context) {
	defer close(c.done)
	since := ""
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := c.sync(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("matrix sync failed, retrying", "channel", c.Name(), "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for roomID, room := range resp.Rooms.Join {
			for _, ev := range room.Timeline.Events {
				c.handleEvent(ctx, roomID, ev)
			}
		}
		since = resp.NextBatch
	}
}

func (c *Channel) sync(ctx context.Context, since string) (*syncResponse, error) {
	query := url.Values{"timeout": {"30000"}}
	if since != "" {
		query.Set("since", since)
	}
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/sync?%s", c.homeserver, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("matrix sync returned %d: %s", resp.StatusCode, data)
	}

	var out syncResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}
	return &out, nil
}

func (c *Channel) handleEvent(ctx context.Context, roomID string, ev syncEvent) {
	if ev.Type != "m.room.message" || ev.Sender == c.userID {
		return
	}
	if !c.IsAllowed(ev.Sender) {
		slog.Debug("matrix message rejected by transport allowlist", "sender_id", ev.Sender)
		return
	}
	text := ev.Content.Body
	if text == "" {
		text = "[unsupported content]"
	}

	inbound := message.Inbound{
		Channel:     channeltype.Matrix,
		ChannelName: roomID,
		SenderID:    ev.Sender,
		SenderLabel: ev.Sender,
		Text:        text,
		ThreadID:    roomID,
		Timestamp:   time.Now(),
		Raw:         ev,
	}

	go func() {
		if _, err := c.Deliver(ctx, inbound); err != nil {
			slog.Error("matrix deliver failed", "channel", c.Name(), "error", err)
		}
	}()
}
