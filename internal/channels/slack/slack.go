// Package slack implements the Slack channel adapter over slack-go's
// Socket Mode client, avoiding the need for an inbound-reachable webhook
// endpoint.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

// Channel connects to Slack over Socket Mode. Token is the bot token
// (xoxb-...); the app-level token (xapp-...) required for Socket Mode
// rides in the channel's WebhookSecret config slot, since both are
// env-only secrets and Slack's wire protocol isn't webhook-based here.
type Channel struct {
	*channels.BaseChannel
	client  *slack.Client
	socket  *socketmode.Client
	cfg     config.ChannelConfig
	botUser string
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Slack channel instance from its configuration.
func New(name string, cfg config.ChannelConfig) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack bot token is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("slack app-level token is required")
	}

	client := slack.New(cfg.Token, slack.OptionAppLevelToken(cfg.WebhookSecret))
	socket := socketmode.New(client)

	return &Channel{
		BaseChannel: channels.NewBaseChannel(name, channeltype.Slack, cfg.AllowFrom),
		client:      client,
		socket:      socket,
		cfg:         cfg,
	}, nil
}

// Start begins the Socket Mode event loop.
func (c *Channel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	if auth, err := c.client.AuthTest(); err == nil {
		c.botUser = auth.UserID
	} else {
		slog.Warn("slack auth test failed", "channel", c.Name(), "error", err)
	}

	go func() {
		for evt := range c.socket.Events {
			c.handleEvent(runCtx, evt)
		}
	}()

	go func() {
		defer close(c.done)
		if err := c.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("slack socket mode exited", "channel", c.Name(), "error", err)
		}
	}()

	c.SetRunning(true)
	slog.Info("slack socket mode connected", "channel", c.Name())
	return nil
}

// Stop cancels the Socket Mode connection and waits for it to exit.
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

// Send posts an outbound message to a Slack channel, in a thread if one
// is specified.
func (c *Channel) Send(_ context.Context, msg message.Outbound) bool {
	if !c.IsRunning() {
		return false
	}
	if msg.Text == "" {
		return true
	}
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if msg.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadID))
	}
	if _, _, err := c.client.PostMessage(msg.ChannelName, opts...); err != nil {
		slog.Error("slack send failed", "channel", c.Name(), "error", err)
		return false
	}
	return true
}

func (c *Channel) handleEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		c.socket.Ack(*evt.Request)
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		c.handleMessageEvent(ctx, ev.User, ev.Channel, ev.Text, ev.ThreadTimeStamp, ev.TimeStamp, ev.BotID)
	case *slackevents.AppMentionEvent:
		c.handleMessageEvent(ctx, ev.User, ev.Channel, ev.Text, ev.ThreadTimeStamp, ev.TimeStamp, "")
	}
}

func (c *Channel) handleMessageEvent(ctx context.Context, user, channel, text, threadTS, ts, botID string) {
	if botID != "" || user == "" || user == c.botUser {
		return
	}
	if !c.IsAllowed(user) {
		slog.Debug("slack message rejected by transport allowlist", "user_id", user)
		return
	}
	if text == "" {
		text = "[empty message]"
	}
	thread := threadTS
	if thread == "" {
		thread = ts
	}

	inbound := message.Inbound{
		Channel:     channeltype.Slack,
		ChannelName: channel,
		SenderID:    user,
		SenderLabel: user,
		Text:        text,
		ThreadID:    thread,
		Timestamp:   time.Now(),
	}

	go func() {
		if _, err := c.Deliver(ctx, inbound); err != nil {
			slog.Error("slack deliver failed", "channel", c.Name(), "error", err)
		}
	}()
}
