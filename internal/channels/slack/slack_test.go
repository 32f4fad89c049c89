package slack

import (
	"context"
	"testing"
	"time"

	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

func TestNew_RequiresBotToken(t *testing.T) {
	if _, err := New("slack-1", config.ChannelConfig{Type: "slack", WebhookSecret: "xapp-1"}); err == nil {
		t.Fatal("expected an error when the bot token is missing")
	}
}

func TestNew_RequiresAppLevelToken(t *testing.T) {
	if _, err := New("slack-1", config.ChannelConfig{Type: "slack", Token: "xoxb-1"}); err == nil {
		t.Fatal("expected an error when the app-level token is missing")
	}
}

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	ch, err := New("slack-1", config.ChannelConfig{Type: "slack", Token: "xoxb-1", WebhookSecret: "xapp-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ch
}

func TestHandleMessageEvent_IgnoresBotMessages(t *testing.T) {
	ch := newTestChannel(t)
	var captured *message.Inbound
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		captured = &msg
		return "", nil
	})
	ch.handleMessageEvent(context.Background(), "U1", "C1", "hi", "", "123", "B1")
	time.Sleep(10 * time.Millisecond)
	if captured != nil {
		t.Error("expected a message carrying a bot ID to be ignored")
	}
}

func TestHandleMessageEvent_IgnoresOwnBotUser(t *testing.T) {
	ch := newTestChannel(t)
	ch.botUser = "UBOT"
	var captured *message.Inbound
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		captured = &msg
		return "", nil
	})
	ch.handleMessageEvent(context.Background(), "UBOT", "C1", "hi", "", "123", "")
	time.Sleep(10 * time.Millisecond)
	if captured != nil {
		t.Error("expected the bot's own messages to be ignored")
	}
}

func TestHandleMessageEvent_DeliversValidMessage(t *testing.T) {
	ch := newTestChannel(t)
	done := make(chan message.Inbound, 1)
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		done <- msg
		return "", nil
	})
	ch.handleMessageEvent(context.Background(), "U1", "C1", "hello there", "", "123.456", "")

	select {
	case msg := <-done:
		if msg.SenderID != "U1" || msg.ChannelName != "C1" || msg.Text != "hello there" || msg.ThreadID != "123.456" {
			t.Errorf("unexpected delivered message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestHandleMessageEvent_PrefersThreadTimestamp(t *testing.T) {
	ch := newTestChannel(t)
	done := make(chan message.Inbound, 1)
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		done <- msg
		return "", nil
	})
	ch.handleMessageEvent(context.Background(), "U1", "C1", "reply", "100.000", "200.000", "")

	select {
	case msg := <-done:
		if msg.ThreadID != "100.000" {
			t.Errorf("ThreadID = %q, want the thread timestamp %q", msg.ThreadID, "100.000")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestHandleMessageEvent_EmptyTextBecomesPlaceholder(t *testing.T) {
	ch := newTestChannel(t)
	done := make(chan message.Inbound, 1)
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		done <- msg
		return "", nil
	})
	ch.handleMessageEvent(context.Background(), "U1", "C1", "", "", "123", "")

	select {
	case msg := <-done:
		if msg.Text != "[empty message]" {
			t.Errorf("Text = %q, want the empty-message placeholder", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestHandleMessageEvent_RejectsDisallowedSender(t *testing.T) {
	ch, err := New("slack-1", config.ChannelConfig{Type: "slack", Token: "xoxb-1", WebhookSecret: "xapp-1", AllowFrom: []string{"allowed-user"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var captured *message.Inbound
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		captured = &msg
		return "", nil
	})
	ch.handleMessageEvent(context.Background(), "someone-else", "C1", "hi", "", "123", "")
	time.Sleep(10 * time.Millisecond)
	if captured != nil {
		t.Error("expected a disallowed sender to be rejected at the transport level")
	}
}

func TestSend_NotRunningReturnsFalse(t *testing.T) {
	ch := newTestChannel(t)
	if ch.Send(context.Background(), message.Outbound{Text: "hi", ChannelName: "C1"}) {
		t.Error("expected Send to fail when the channel isn't running")
	}
}
