package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/message"
)

func newTestServer(t *testing.T, ch *Channel) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	router.Post(ch.path, ch.handleInbound(context.Background()))
	return httptest.NewServer(router)
}

func TestNew_RequiresListenAddr(t *testing.T) {
	if _, err := New("wh1", config.ChannelConfig{Type: "webhook"}); err == nil {
		t.Fatal("expected an error when listen_addr is missing")
	}
}

func TestHandleInbound_DeliversValidPayload(t *testing.T) {
	ch, err := New("wh1", config.ChannelConfig{Type: "webhook", ListenAddr: ":0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var captured message.Inbound
	done := make(chan struct{})
	ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
		captured = msg
		close(done)
		return "ok", nil
	})

	srv := newTestServer(t, ch)
	defer srv.Close()

	body, _ := json.Marshal(inboundPayload{SenderID: "u1", Text: "hello"})
	resp, err := http.Post(srv.URL+ch.path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async delivery")
	}
	if captured.SenderID != "u1" || captured.Text != "hello" {
		t.Errorf("unexpected delivered message: %+v", captured)
	}
}

func TestHandleInbound_RejectsMissingFields(t *testing.T) {
	ch, err := New("wh1", config.ChannelConfig{Type: "webhook", ListenAddr: ":0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := newTestServer(t, ch)
	defer srv.Close()

	body, _ := json.Marshal(inboundPayload{Text: "no sender"})
	resp, err := http.Post(srv.URL+ch.path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleInbound_RejectsDisallowedSender(t *testing.T) {
	ch, err := New("wh1", config.ChannelConfig{Type: "webhook", ListenAddr: ":0", AllowFrom: []string{"allowed-user"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := newTestServer(t, ch)
	defer srv.Close()

	body, _ := json.Marshal(inboundPayload{SenderID: "someone-else", Text: "hi"})
	resp, err := http.Post(srv.URL+ch.path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestVerifyHMAC(t *testing.T) {
	ch, err := New("wh1", config.ChannelConfig{Type: "webhook", ListenAddr: ":0", WebhookSecret: "shh"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	body := []byte(`{"sender_id":"u1","text":"hi"}`)
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !ch.verifyHMAC(body, sig) {
		t.Error("expected a correctly signed body to verify")
	}
	if ch.verifyHMAC(body, "sha256=deadbeef") {
		t.Error("expected a mismatched signature to fail verification")
	}
	if ch.verifyHMAC(body, "") {
		t.Error("expected a missing signature to fail verification when a secret is configured")
	}
}

func TestHandleInbound_RejectsBadSignature(t *testing.T) {
	ch, err := New("wh1", config.ChannelConfig{Type: "webhook", ListenAddr: ":0", WebhookSecret: "shh"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := newTestServer(t, ch)
	defer srv.Close()

	body, _ := json.Marshal(inboundPayload{SenderID: "u1", Text: "hi"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+ch.path, bytes.NewReader(body))
	req.Header.Set("X-Signature-256", "sha256=wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestSend_NoCallbackURLIsANoopSuccess(t *testing.T) {
	ch, err := New("wh1", config.ChannelConfig{Type: "webhook", ListenAddr: ":0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok := ch.Send(context.Background(), message.Outbound{ThreadID: "unknown-sender", Text: "reply"})
	if !ok {
		t.Error("expected Send to report success when no callback is known")
	}
}

func TestSend_PostsToCallbackURL(t *testing.T) {
	var received map[string]string
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer callback.Close()

	ch, err := New("wh1", config.ChannelConfig{Type: "webhook", ListenAddr: ":0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch.callback["sender-1"] = callback.URL

	ok := ch.Send(context.Background(), message.Outbound{ThreadID: "sender-1", Text: "reply text"})
	if !ok {
		t.Fatal("expected Send to report success")
	}
	if received["text"] != "reply text" {
		t.Errorf("callback body text = %q, want %q", received["text"], "reply text")
	}
}
