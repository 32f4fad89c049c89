package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/message"
)

type fakeChannel struct {
	*BaseChannel
	startErr error
	stopErr  error
	sendOK   bool
}

func newFakeChannel(name string, kind channeltype.Type) *fakeChannel {
	return &fakeChannel{BaseChannel: NewBaseChannel(name, kind, nil), sendOK: true}
}

func (f *fakeChannel) Start(ctx context.Context) error {
	if f.startErr == nil {
		f.SetRunning(true)
	}
	return f.startErr
}

func (f *fakeChannel) Stop(ctx context.Context) error {
	f.SetRunning(false)
	return f.stopErr
}

func (f *fakeChannel) Send(ctx context.Context, msg message.Outbound) bool {
	return f.sendOK
}

func TestManager_RegisterGetUnregister(t *testing.T) {
	m := NewManager()
	ch := newFakeChannel("a", channeltype.Discord)
	m.Register(ch)

	got, ok := m.Get("a")
	if !ok || got != Channel(ch) {
		t.Fatalf("Get(a) = (%v, %v), want registered channel", got, ok)
	}

	m.Unregister("a")
	if _, ok := m.Get("a"); ok {
		t.Error("expected channel to be gone after Unregister")
	}
}

func TestManager_StartAllContinuesPastFailures(t *testing.T) {
	m := NewManager()
	good := newFakeChannel("good", channeltype.Discord)
	bad := newFakeChannel("bad", channeltype.Slack)
	bad.startErr = errors.New("boom")
	m.Register(good)
	m.Register(bad)

	m.StartAll(context.Background())

	if !good.IsRunning() {
		t.Error("expected the healthy adapter to be running")
	}
	if bad.IsRunning() {
		t.Error("expected the failing adapter to stay not-running")
	}
}

func TestManager_StopAll(t *testing.T) {
	m := NewManager()
	ch := newFakeChannel("a", channeltype.Discord)
	ch.SetRunning(true)
	m.Register(ch)

	m.StopAll(context.Background())

	if ch.IsRunning() {
		t.Error("expected StopAll to stop the channel")
	}
}

func TestManager_List(t *testing.T) {
	m := NewManager()
	m.Register(newFakeChannel("a", channeltype.Discord))
	m.Register(newFakeChannel("b", channeltype.Slack))

	if got := len(m.List()); got != 2 {
		t.Errorf("List() length = %d, want 2", got)
	}
}

func TestManager_FirstOfType(t *testing.T) {
	m := NewManager()
	m.Register(newFakeChannel("a", channeltype.Discord))
	slackCh := newFakeChannel("b", channeltype.Slack)
	m.Register(slackCh)

	got, ok := m.FirstOfType(channeltype.Slack)
	if !ok || got != Channel(slackCh) {
		t.Fatalf("FirstOfType(slack) = (%v, %v), want %v", got, ok, slackCh)
	}

	if _, ok := m.FirstOfType(channeltype.Telegram); ok {
		t.Error("expected FirstOfType to report false for an unregistered kind")
	}
}

func TestManager_SendUnknownChannelFails(t *testing.T) {
	m := NewManager()
	if m.Send(context.Background(), "missing", message.Outbound{Text: "hi"}) {
		t.Error("expected Send to a missing channel to fail")
	}
}

func TestManager_SendDelegatesToChannel(t *testing.T) {
	m := NewManager()
	ch := newFakeChannel("a", channeltype.Discord)
	ch.sendOK = false
	m.Register(ch)

	if m.Send(context.Background(), "a", message.Outbound{Text: "hi"}) {
		t.Error("expected Send to report the channel's own failure")
	}
}

func TestManager_StatusAll(t *testing.T) {
	m := NewManager()
	ch := newFakeChannel("a", channeltype.Discord)
	ch.SetRunning(true)
	m.Register(ch)

	statuses := m.StatusAll()
	if len(statuses) != 1 {
		t.Fatalf("StatusAll() length = %d, want 1", len(statuses))
	}
	if statuses[0].Name != "a" || statuses[0].Type != channeltype.Discord.String() || !statuses[0].IsRunning {
		t.Errorf("unexpected status: %+v", statuses[0])
	}
}
