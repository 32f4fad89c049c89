// Package canvas implements the canvas display-surface channel adapter:
// a WebSocket endpoint that pushes structured display content (charts,
// tables, HTML, ...) to connected viewers, rather than carrying a
// conversational back-and-forth.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/display"
	"github.com/letsgo/gateway/internal/message"
	"github.com/letsgo/gateway/pkg/protocol"
)

// Channel is a WebSocket push surface: it never originates Inbound
// messages of its own (SetOnMessage's handler is never invoked) and only
// implements Send, broadcasting each outbound envelope to every
// currently connected client.
type Channel struct {
	*channels.BaseChannel
	cfg      config.ChannelConfig
	path     string
	state    *display.State
	server   *http.Server
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

// New creates a canvas channel instance. state is shared with the
// display router so reconnecting clients can be replayed the current
// ring of items.
func New(name string, cfg config.ChannelConfig, state *display.State) (*Channel, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("canvas: listen_addr is required")
	}
	path := cfg.Extra["path"]
	if path == "" {
		path = "/canvas/" + name
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel(name, channeltype.Canvas, cfg.AllowFrom),
		cfg:         cfg,
		path:        path,
		state:       state,
		clients:     make(map[*websocket.Conn]struct{}),
	}, nil
}

// Start binds the WebSocket listener.
func (c *Channel) Start(_ context.Context) error {
	router := chi.NewRouter()
	router.Get(c.path, c.handleConnect)

	c.server = &http.Server{
		Addr:              c.cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("canvas listener exited", "channel", c.Name(), "error", err)
		}
	}()

	c.SetRunning(true)
	slog.Info("canvas channel listening", "channel", c.Name(), "addr", c.cfg.ListenAddr, "path", c.path)
	return nil
}

// Stop shuts down the WebSocket listener and closes all client connections.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	c.mu.Lock()
	for conn := range c.clients {
		conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	c.clients = make(map[*websocket.Conn]struct{})
	c.mu.Unlock()

	if c.server == nil {
		return nil
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(shutCtx)
}

// Send broadcasts an outbound display envelope to every connected client.
func (c *Channel) Send(ctx context.Context, msg message.Outbound) bool {
	env, ok := display.ParseEnvelope(msg.Text)
	if !ok {
		return false
	}
	frame := protocol.NewUpdateFrame(env.ID, string(env.ContentType), env.Content, env.Title)
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("canvas marshal update failed", "channel", c.Name(), "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ok = true
	for conn := range c.clients {
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Warn("canvas write to client failed, dropping", "channel", c.Name(), "error", err)
			delete(c.clients, conn)
			ok = false
		}
	}
	return ok
}

func (c *Channel) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("canvas accept failed", "channel", c.Name(), "error", err)
		return
	}

	c.mu.Lock()
	c.clients[conn] = struct{}{}
	c.mu.Unlock()

	c.sendInitialState(r.Context(), conn)

	defer func() {
		c.mu.Lock()
		delete(c.clients, conn)
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	// Canvas is receive-only for viewers; drain and discard any frames
	// they send so the connection doesn't back up.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (c *Channel) sendInitialState(ctx context.Context, conn *websocket.Conn) {
	snapshot := c.state.Items()
	items := make([]protocol.Item, 0, len(snapshot))
	for _, it := range snapshot {
		items = append(items, protocol.Item{
			ID:          it.Envelope.ID,
			ContentType: string(it.Envelope.ContentType),
			Content:     it.Envelope.Content,
			Title:       it.Envelope.Title,
		})
	}
	data, err := json.Marshal(protocol.NewStateFrame(items))
	if err != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, data)
}
