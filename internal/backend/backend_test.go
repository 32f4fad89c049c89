package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/message"
)

func TestEchoBackend_EchoesText(t *testing.T) {
	b := EchoBackend{}
	reply, err := b.Handle(context.Background(), message.Inbound{Text: "ping"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "echo: ping" {
		t.Errorf("reply = %q, want %q", reply, "echo: ping")
	}
}

func TestHTTPBackend_PostsAndDecodesReply(t *testing.T) {
	var gotBody requestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(responseBody{Reply: "backend says hi"})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)
	msg := message.Inbound{
		Channel:     channeltype.Discord,
		ChannelName: "chan-1",
		SenderID:    "u1",
		Text:        "hello",
	}
	reply, err := b.Handle(context.Background(), msg)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "backend says hi" {
		t.Errorf("reply = %q, want %q", reply, "backend says hi")
	}
	if gotBody.Channel != "discord" || gotBody.SenderID != "u1" || gotBody.Text != "hello" {
		t.Errorf("unexpected request body forwarded: %+v", gotBody)
	}
}

func TestHTTPBackend_ErrorStatusSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)
	if _, err := b.Handle(context.Background(), message.Inbound{Text: "x"}); err == nil {
		t.Fatal("expected a non-2xx response to surface as an error")
	}
}

func TestNewHTTPBackend_DefaultsTimeoutWhenNonPositive(t *testing.T) {
	b := NewHTTPBackend("http://example.invalid", 0)
	if b.client.Timeout != 60*time.Second {
		t.Errorf("client.Timeout = %v, want 60s default", b.client.Timeout)
	}
}
