// Package discord implements the Discord channel adapter over discordgo's
// gateway client.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

// Channel connects to Discord via the Bot API using gateway events.
// Pairing and policy decisions are made by the daemon's inbound pipeline;
// this adapter only translates wire events to Inbound/Outbound messages.
type Channel struct {
	*channels.BaseChannel
	session        *discordgo.Session
	cfg            config.ChannelConfig
	botUserID      string
	requireMention bool
}

// New creates a Discord channel instance from its configuration.
func New(name string, cfg config.ChannelConfig) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	requireMention := true
	if v, ok := cfg.Extra["require_mention"]; ok {
		requireMention = v == "true"
	}

	return &Channel{
		BaseChannel:    channels.NewBaseChannel(name, channeltype.Discord, cfg.AllowFrom),
		session:        session,
		cfg:            cfg,
		requireMention: requireMention,
	}, nil
}

// Start opens the Discord gateway connection. On missing/invalid
// credentials it logs and leaves IsRunning false rather than erroring the
// whole daemon startup.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.Token == "" {
		slog.Warn("discord channel has no token configured, not starting", "channel", c.Name())
		return nil
	}

	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, m)
	})

	if err := c.session.Open(); err != nil {
		slog.Warn("discord failed to open gateway session", "channel", c.Name(), "error", err)
		return nil
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		slog.Warn("discord failed to fetch bot identity", "channel", c.Name(), "error", err)
		return nil
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "channel", c.Name(), "username", user.Username)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel, chunking at
// Discord's 2000-character message limit.
func (c *Channel) Send(_ context.Context, msg message.Outbound) bool {
	if !c.IsRunning() {
		return false
	}
	channelID := msg.ChannelName
	if channelID == "" {
		slog.Warn("discord send missing channel id")
		return false
	}
	if msg.Text == "" {
		return true
	}
	if err := c.sendChunked(channelID, msg.Text); err != nil {
		slog.Error("discord send failed", "channel", c.Name(), "error", err)
		return false
	}
	return true
}

func (c *Channel) sendChunked(channelID, content string) error {
	const maxLen = 2000
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			cutAt := maxLen
			if idx := lastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

func (c *Channel) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	senderName := resolveDisplayName(m)
	channelID := m.ChannelID
	isDM := m.GuildID == ""

	if !c.IsAllowed(senderID) {
		slog.Debug("discord message rejected by transport allowlist", "user_id", senderID)
		return
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		content = "[empty message]"
	}

	if !isDM && c.requireMention {
		mentioned := false
		for _, u := range m.Mentions {
			if u.ID == c.botUserID {
				mentioned = true
				break
			}
		}
		if !mentioned {
			return
		}
	}

	inbound := message.Inbound{
		Channel:     channeltype.Discord,
		ChannelName: channelID,
		SenderID:    senderID,
		SenderLabel: senderName,
		Text:        content,
		ThreadID:    channelID,
		Timestamp:   m.Timestamp,
		Raw:         m,
	}

	go func() {
		if _, err := c.Deliver(ctx, inbound); err != nil {
			slog.Error("discord deliver failed", "channel", c.Name(), "error", err)
		}
	}()
}

func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}
