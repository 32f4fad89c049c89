// Package irc implements the IRC channel adapter directly over net/net.Conn.
// IRC is a line-oriented plain-text TCP protocol with no JSON or binary
// framing; no library in the retrieved example corpus offers an IRC
// client, and the wire format is simple enough that bufio+net covers it
// without reaching for an unvetted out-of-pack dependency.
package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

// Channel connects to an IRC network as a single bot client.
type Channel struct {
	*channels.BaseChannel
	addr     string
	useTLS   bool
	nick     string
	rooms    []string
	mu       sync.Mutex
	conn     net.Conn
	writer   *bufio.Writer
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a new IRC channel from config.
func New(name string, cfg config.ChannelConfig) (*Channel, error) {
	addr := cfg.Extra["server"]
	if addr == "" {
		return nil, fmt.Errorf("irc: server address is required")
	}
	nick := cfg.Extra["nick"]
	if nick == "" {
		nick = "letsgo-bot"
	}
	var rooms []string
	if raw := cfg.Extra["channels"]; raw != "" {
		rooms = strings.Split(raw, ",")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel(name, channeltype.IRC, cfg.AllowFrom),
		addr:        addr,
		useTLS:      cfg.Extra["tls"] == "true",
		nick:        nick,
		rooms:       rooms,
	}, nil
}

// Start dials the IRC server, registers, joins configured channels, and
// begins the read loop.
func (c *Channel) Start(ctx context.Context) error {
	var conn net.Conn
	var err error
	if c.useTLS {
		conn, err = tls.Dial("tcp", c.addr, &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = net.Dial("tcp", c.addr)
	}
	if err != nil {
		slog.Warn("irc failed to connect, not starting", "channel", c.Name(), "error", err)
		return nil
	}

	c.mu.Lock()
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.mu.Unlock()

	c.send("NICK %s", c.nick)
	c.send("USER %s 0 * :%s", c.nick, c.nick)
	for _, room := range c.rooms {
		c.send("JOIN %s", strings.TrimSpace(room))
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.readLoop(runCtx, conn)

	c.SetRunning(true)
	slog.Info("irc connected", "channel", c.Name(), "server", c.addr, "nick", c.nick)
	return nil
}

// Stop closes the IRC connection.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	c.send("QUIT :shutting down")
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

// Send delivers an outbound message to an IRC channel or nick.
func (c *Channel) Send(_ context.Context, msg message.Outbound) bool {
	if !c.IsRunning() || msg.Text == "" {
		return msg.Text == ""
	}
	for _, line := range strings.Split(msg.Text, "\n") {
		if line == "" {
			continue
		}
		if !c.send("PRIVMSG %s :%s", msg.ChannelName, line) {
			return false
		}
	}
	return true
}

func (c *Channel) send(format string, args ...any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return false
	}
	line := fmt.Sprintf(format, args...)
	if _, err := c.writer.WriteString(line + "\r\n"); err != nil {
		slog.Error("irc write failed", "error", err)
		return false
	}
	return c.writer.Flush() == nil
}

func (c *Channel) readLoop(ctx context.Context, conn net.Conn) {
	defer close(c.done)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.handleLine(ctx, scanner.Text())
	}
}

func (c *Channel) handleLine(ctx context.Context, line string) {
	if strings.HasPrefix(line, "PING") {
		c.send("PONG%s", strings.TrimPrefix(line, "PING"))
		return
	}

	// :nick!user@host PRIVMSG #channel :message text
	if !strings.Contains(line, "PRIVMSG") {
		return
	}
	parts := strings.SplitN(line, " PRIVMSG ", 2)
	if len(parts) != 2 {
		return
	}
	prefix := strings.TrimPrefix(parts[0], ":")
	nick := prefix
	if idx := strings.Index(prefix, "!"); idx > 0 {
		nick = prefix[:idx]
	}

	rest := strings.SplitN(parts[1], " :", 2)
	if len(rest) != 2 {
		return
	}
	target, text := rest[0], rest[1]

	if !c.IsAllowed(nick) {
		slog.Debug("irc message rejected by transport allowlist", "nick", nick)
		return
	}

	inbound := message.Inbound{
		Channel:     channeltype.IRC,
		ChannelName: target,
		SenderID:    nick,
		SenderLabel: nick,
		Text:        text,
		ThreadID:    target,
		Timestamp:   time.Now(),
	}

	go func() {
		if _, err := c.Deliver(ctx, inbound); err != nil {
			slog.Error("irc deliver failed", "channel", c.Name(), "error", err)
		}
	}()
}
