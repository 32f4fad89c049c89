package canvas

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/display"
	"github.com/letsgo/gateway/internal/message"
	"github.com/letsgo/gateway/pkg/protocol"
)

func TestNew_RequiresListenAddr(t *testing.T) {
	if _, err := New("canvas-1", config.ChannelConfig{Type: "canvas"}, display.NewState()); err == nil {
		t.Fatal("expected an error when listen_addr is missing")
	}
}

func TestSend_NoClientsStillReportsSuccess(t *testing.T) {
	ch, err := New("canvas-1", config.ChannelConfig{Type: "canvas", ListenAddr: ":0"}, display.NewState())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	envelope := `{"content_type":"markdown","content":"hi"}`
	if !ch.Send(context.Background(), message.Outbound{Text: envelope}) {
		t.Error("expected Send to report success when there are no connected clients")
	}
}

func TestSend_InvalidEnvelopeFails(t *testing.T) {
	ch, err := New("canvas-1", config.ChannelConfig{Type: "canvas", ListenAddr: ":0"}, display.NewState())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ch.Send(context.Background(), message.Outbound{Text: "not an envelope"}) {
		t.Error("expected Send to fail for text that isn't a valid display envelope")
	}
}

func TestHandleConnect_SendsInitialStateThenBroadcastsUpdates(t *testing.T) {
	state := display.NewState()
	state.Put("doc-1", display.Envelope{ID: "doc-1", ContentType: display.ContentMarkdown, Content: "seeded"})

	ch, err := New("canvas-1", config.ChannelConfig{Type: "canvas", ListenAddr: ":0"}, state)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	router := chi.NewRouter()
	router.Get(ch.path, ch.handleConnect)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + ch.path
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read initial state frame: %v", err)
	}
	var state1 protocol.StateFrame
	if err := json.Unmarshal(data, &state1); err != nil {
		t.Fatalf("unmarshal state frame: %v", err)
	}
	if state1.Type != "state" || len(state1.Items) != 1 || state1.Items[0].ID != "doc-1" {
		t.Fatalf("unexpected initial state frame: %+v", state1)
	}

	// Give the server a moment to register the connection before broadcasting.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ch.mu.Lock()
		n := len(ch.clients)
		ch.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	envelope := `{"content_type":"markdown","content":"live update","id":"doc-2"}`
	if !ch.Send(context.Background(), message.Outbound{Text: envelope}) {
		t.Fatal("expected Send to succeed with a connected client")
	}

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read update frame: %v", err)
	}
	var update protocol.UpdateFrame
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatalf("unmarshal update frame: %v", err)
	}
	if update.Type != "update" || update.ID != "doc-2" || update.Content != "live update" {
		t.Fatalf("unexpected update frame: %+v", update)
	}
}
