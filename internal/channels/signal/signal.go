// Package signal implements the Signal channel adapter over signal-cli's
// JSON-RPC daemon mode (signal-cli -a <number> jsonRpc), reached over a
// TCP socket. No Signal client library appears anywhere in the retrieved
// example corpus, and signal-cli's JSON-RPC framing is one JSON object
// per line — encoding/json plus bufio covers it without an unvetted
// out-of-pack dependency.
package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

// Channel connects to a signal-cli JSON-RPC daemon over TCP.
type Channel struct {
	*channels.BaseChannel
	addr    string
	account string
	mu      sync.Mutex
	conn    net.Conn
	writer  *bufio.Writer
	nextID  atomic.Int64
	cancel  context.CancelFunc
	done    chan struct{}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcNotification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type envelopeParams struct {
	Envelope struct {
		Source       string `json:"source"`
		SourceName   string `json:"sourceName"`
		Timestamp    int64  `json:"timestamp"`
		DataMessage  *struct {
			Message string `json:"message"`
		} `json:"dataMessage"`
	} `json:"envelope"`
}

// New creates a new Signal channel from config.
func New(name string, cfg config.ChannelConfig) (*Channel, error) {
	addr := cfg.Extra["rpc_addr"]
	if addr == "" {
		return nil, fmt.Errorf("signal: rpc_addr is required")
	}
	account := cfg.Extra["account"]
	if account == "" {
		return nil, fmt.Errorf("signal: account is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel(name, channeltype.Signal, cfg.AllowFrom),
		addr:        addr,
		account:     account,
	}, nil
}

// Start connects to the signal-cli JSON-RPC socket and begins reading
// notifications.
func (c *Channel) Start(ctx context.Context) error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		slog.Warn("signal failed to connect to signal-cli daemon, not starting", "channel", c.Name(), "error", err)
		return nil
	}

	c.mu.Lock()
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.readLoop(runCtx, conn)

	c.SetRunning(true)
	slog.Info("signal connected to signal-cli daemon", "channel", c.Name(), "addr", c.addr)
	return nil
}

// Stop closes the JSON-RPC connection.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
		}
	}
	return nil
}

// Send delivers an outbound message via the "send" JSON-RPC method.
func (c *Channel) Send(_ context.Context, msg message.Outbound) bool {
	if !c.IsRunning() || msg.Text == "" {
		return msg.Text == ""
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "send",
		Params: map[string]any{
			"account":    c.account,
			"recipient":  []string{msg.ChannelName},
			"message":    msg.Text,
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		slog.Error("signal marshal request failed", "channel", c.Name(), "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return false
	}
	if _, err := c.writer.Write(append(data, '\n')); err != nil {
		slog.Error("signal write failed", "channel", c.Name(), "error", err)
		return false
	}
	return c.writer.Flush() == nil
}

func (c *Channel) readLoop(ctx context.Context, conn net.Conn) {
	defer close(c.done)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.handleLine(ctx, scanner.Bytes())
	}
}

func (c *Channel) handleLine(ctx context.Context, line []byte) {
	var notif rpcNotification
	if err := json.Unmarshal(line, &notif); err != nil {
		return
	}
	if notif.Method != "receive" {
		return
	}

	var params envelopeParams
	if err := json.Unmarshal(notif.Params, &params); err != nil {
		return
	}
	env := params.Envelope
	if env.DataMessage == nil || env.Source == "" {
		return
	}

	if !c.IsAllowed(env.Source) {
		slog.Debug("signal message rejected by transport allowlist", "sender_id", env.Source)
		return
	}

	text := env.DataMessage.Message
	if text == "" {
		text = "[unsupported content]"
	}

	inbound := message.Inbound{
		Channel:     channeltype.Signal,
		ChannelName: env.Source,
		SenderID:    env.Source,
		SenderLabel: env.SourceName,
		Text:        text,
		ThreadID:    env.Source,
		Timestamp:   time.UnixMilli(env.Timestamp),
		Raw:         env,
	}

	go func() {
		if _, err := c.Deliver(ctx, inbound); err != nil {
			slog.Error("signal deliver failed", "channel", c.Name(), "error", err)
		}
	}()
}
