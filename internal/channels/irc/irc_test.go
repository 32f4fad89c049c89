package irc

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	ch, err := New("irc-1", config.ChannelConfig{Type: "irc", Extra: map[string]string{"server": "irc.example.org:6667"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ch
}

func TestNew_DefaultsNickWhenUnset(t *testing.T) {
	ch := newTestChannel(t)
	if ch.nick != "letsgo-bot" {
		t.Errorf("nick = %q, want default", ch.nick)
	}
}

func TestNew_RequiresServerAddress(t *testing.T) {
	if _, err := New("irc-1", config.ChannelConfig{Type: "irc"}); err == nil {
		t.Fatal("expected an error when server is missing")
	}
}

func TestNew_SplitsRoomsList(t *testing.T) {
	ch, err := New("irc-1", config.ChannelConfig{Type: "irc", Extra: map[string]string{
		"server": "irc.example.org:6667", "channels": "#one,#two",
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(ch.rooms) != 2 || ch.rooms[0] != "#one" || ch.rooms[1] != "#two" {
		t.Errorf("rooms = %v, want [#one #two]", ch.rooms)
	}
}

func TestHandleLine_RespondsToPing(t *testing.T) {
	ch := newTestChannel(t)
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	ch.conn = client
	ch.writer = bufio.NewWriter(client)

	go ch.handleLine(context.Background(), "PING :server.example.org")

	serverReader := bufio.NewReader(server)
	line, err := serverReader.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if line != "PONG :server.example.org\r\n" {
		t.Errorf("got %q, want PONG reply echoing the same payload", line)
	}
}

func TestHandleLine_ParsesPrivmsg(t *testing.T) {
	ch := newTestChannel(t)
	done := make(chan message.Inbound, 1)
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		done <- msg
		return "", nil
	})
	ch.handleLine(context.Background(), ":alice!user@host PRIVMSG #room :hello there")

	select {
	case msg := <-done:
		if msg.SenderID != "alice" || msg.ChannelName != "#room" || msg.Text != "hello there" {
			t.Errorf("unexpected delivered message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestHandleLine_IgnoresNonPrivmsgLines(t *testing.T) {
	ch := newTestChannel(t)
	var captured *message.Inbound
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		captured = &msg
		return "", nil
	})
	ch.handleLine(context.Background(), ":server.example.org 001 letsgo-bot :Welcome")
	time.Sleep(10 * time.Millisecond)
	if captured != nil {
		t.Error("expected a non-PRIVMSG line to be ignored")
	}
}

func TestHandleLine_RejectsDisallowedSender(t *testing.T) {
	ch, err := New("irc-1", config.ChannelConfig{
		Type:      "irc",
		Extra:     map[string]string{"server": "irc.example.org:6667"},
		AllowFrom: []string{"allowed-nick"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var captured *message.Inbound
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		captured = &msg
		return "", nil
	})
	ch.handleLine(context.Background(), ":someone!user@host PRIVMSG #room :hi")
	time.Sleep(10 * time.Millisecond)
	if captured != nil {
		t.Error("expected a disallowed nick to be rejected at the transport level")
	}
}

func TestSend_NotRunningNonEmptyTextFails(t *testing.T) {
	ch := newTestChannel(t)
	if ch.Send(context.Background(), message.Outbound{Text: "hi", ChannelName: "#room"}) {
		t.Error("expected Send to fail when the channel isn't running")
	}
}

func TestSend_EmptyTextIsANoopSuccess(t *testing.T) {
	ch := newTestChannel(t)
	if !ch.Send(context.Background(), message.Outbound{Text: ""}) {
		t.Error("expected Send to report success for empty text")
	}
}
