// Package telegram implements the Telegram channel adapter over telego's
// long-polling Bot API client.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

// Channel connects to Telegram via the Bot API using long polling.
// Pairing and policy decisions are made by the daemon's inbound pipeline;
// this adapter only translates wire updates to Inbound/Outbound messages.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	cfg        config.ChannelConfig
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a new Telegram channel from config.
func New(name string, cfg config.ChannelConfig) (*Channel, error) {
	var opts []telego.BotOption
	if proxy, ok := cfg.Extra["proxy"]; ok && proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel(name, channeltype.Telegram, cfg.AllowFrom),
		bot:         bot,
		cfg:         cfg,
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.Token == "" {
		slog.Warn("telegram channel has no token configured, not starting", "channel", c.Name())
		return nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		slog.Warn("telegram failed to start long polling", "channel", c.Name(), "error", err)
		return nil
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "channel", c.Name(), "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed", "channel", c.Name())
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update)
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the Telegram bot by cancelling the long polling context
// and waiting for the polling goroutine to exit, so Telegram releases the
// getUpdates lock before a new instance starts.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout", "channel", c.Name())
		}
	}
	return nil
}

// Send delivers an outbound message to a Telegram chat, chunking at
// Telegram's 4096-character message limit.
func (c *Channel) Send(ctx context.Context, msg message.Outbound) bool {
	if !c.IsRunning() {
		return false
	}
	chatID, err := strconv.ParseInt(msg.ChannelName, 10, 64)
	if err != nil {
		slog.Warn("telegram send has invalid chat id", "chat", msg.ChannelName, "error", err)
		return false
	}
	if msg.Text == "" {
		return true
	}

	const maxLen = 4096
	content := msg.Text
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			chunk = content[:maxLen]
			content = content[maxLen:]
		} else {
			content = ""
		}
		params := &telego.SendMessageParams{
			ChatID: telego.ChatID{ID: chatID},
			Text:   chunk,
		}
		if msg.ThreadID != "" {
			if threadID, err := strconv.Atoi(msg.ThreadID); err == nil && threadID != 1 {
				params.MessageThreadID = threadID
			}
		}
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			slog.Error("telegram send failed", "channel", c.Name(), "error", err)
			return false
		}
	}
	return true
}

func (c *Channel) handleMessage(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg.From == nil || msg.From.IsBot {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !c.IsAllowed(senderID) {
		slog.Debug("telegram message rejected by transport allowlist", "user_id", senderID)
		return
	}

	text := msg.Text
	if text == "" && msg.Caption != "" {
		text = msg.Caption
	}
	if text == "" {
		text = "[unsupported content]"
	}

	threadID := ""
	if msg.MessageThreadID != 0 {
		threadID = strconv.Itoa(msg.MessageThreadID)
	}

	senderLabel := msg.From.Username
	if senderLabel == "" {
		senderLabel = msg.From.FirstName
	}

	inbound := message.Inbound{
		Channel:     channeltype.Telegram,
		ChannelName: strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:    senderID,
		SenderLabel: senderLabel,
		Text:        text,
		ThreadID:    threadID,
		Timestamp:   time.Unix(int64(msg.Date), 0),
		Raw:         update,
	}

	go func() {
		if _, err := c.Deliver(ctx, inbound); err != nil {
			slog.Error("telegram deliver failed", "channel", c.Name(), "error", err)
		}
	}()
}
