package adminapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/letsgo/gateway/internal/backend"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/daemon"
	"github.com/letsgo/gateway/internal/pairing"
	"github.com/letsgo/gateway/internal/store"
	filestore "github.com/letsgo/gateway/internal/store/file"
)

func newTestServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	svc, err := pairing.NewService(pairing.Options{Path: filepath.Join(dir, "pairing.json")})
	if err != nil {
		t.Fatalf("pairing.NewService: %v", err)
	}
	stores := store.Stores{
		Pairing: filestore.NewPairingStore(svc),
		Cron:    filestore.NewCronStore(filepath.Join(dir, "cron-jobs.json"), filepath.Join(dir, "cron.log")),
	}
	cfg := &config.Config{
		Channels: config.Channels{"discord-main": {Type: "discord"}},
		FilesDir: filepath.Join(dir, "files"),
	}
	d := daemon.New(cfg, stores, backend.EchoBackend{})

	mux := http.NewServeMux()
	New(d, token).Mount(mux)
	return httptest.NewServer(mux)
}

func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	return resp
}

func TestMount_NoopWhenTokenEmpty(t *testing.T) {
	mux := http.NewServeMux()
	New(nil, "").Mount(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (no routes mounted)", resp.StatusCode)
	}
}

func TestAuth_RejectsMissingOrWrongToken(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/api/sessions", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for missing token", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want %q", resp.Header.Get("WWW-Authenticate"), "Bearer")
	}

	resp2 := doRequest(t, http.MethodGet, srv.URL+"/admin/api/sessions", "wrong", nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for wrong token", resp2.StatusCode)
	}
}

func TestHandleListSessions_ReturnsEmptyInitially(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/api/sessions", "secret-token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sessions, ok := out["sessions"].(map[string]any)
	if !ok || len(sessions) != 0 {
		t.Errorf("expected an empty sessions map, got %+v", out["sessions"])
	}
}

func TestHandleBlockSender_MissingChannelReturns400(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	defer srv.Close()

	// A plain authenticated read first; the block request below carries no
	// body, so the channel it needs is missing.
	seedResp := doRequest(t, http.MethodGet, srv.URL+"/admin/api/senders", "secret-token", nil)
	seedResp.Body.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/admin/api/senders/u1/block", "secret-token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when channel is missing from the body", resp.StatusCode)
	}
}

func TestHandleCloseSession_UnknownKeyReturns404(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	defer srv.Close()

	resp := doRequest(t, http.MethodDelete, srv.URL+"/admin/api/sessions/does-not-exist", "secret-token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleCron_ReturnsJobsAndHeartbeatsKeys(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/api/cron", "secret-token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["jobs"]; !ok {
		t.Error("expected a jobs key in the response")
	}
	if _, ok := out["heartbeats"]; !ok {
		t.Error("expected a heartbeats key in the response")
	}
}

func TestSetToken_RotatesAcceptedBearerToken(t *testing.T) {
	dir := t.TempDir()
	svc, err := pairing.NewService(pairing.Options{Path: filepath.Join(dir, "pairing.json")})
	if err != nil {
		t.Fatalf("pairing.NewService: %v", err)
	}
	stores := store.Stores{
		Pairing: filestore.NewPairingStore(svc),
		Cron:    filestore.NewCronStore(filepath.Join(dir, "cron-jobs.json"), filepath.Join(dir, "cron.log")),
	}
	cfg := &config.Config{Channels: config.Channels{"discord-main": {Type: "discord"}}, FilesDir: filepath.Join(dir, "files")}
	d := daemon.New(cfg, stores, backend.EchoBackend{})

	api := New(d, "old-token")
	mux := http.NewServeMux()
	api.Mount(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	api.SetToken("new-token")

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/api/sessions", "old-token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status with stale token = %d, want 401", resp.StatusCode)
	}

	resp2 := doRequest(t, http.MethodGet, srv.URL+"/admin/api/sessions", "new-token", nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status with rotated token = %d, want 200", resp2.StatusCode)
	}
}

func TestMetrics_ExposesPrometheusGauges(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/metrics", "secret-token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	text := string(body)
	for _, name := range []string{"letsgo_session_count", "letsgo_messages_total", "letsgo_channels_running"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", name, text)
		}
	}
}

func TestMetrics_RequiresAuth(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/metrics", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", resp.StatusCode)
	}
}

func TestHandleUsage_ReportsChannelCount(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/api/usage", "secret-token", nil)
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// channel_count reports registered adapters; daemon.New registers none
	// until Start builds them, so the configured discord-main is not counted.
	if out["channel_count"].(float64) != 0 {
		t.Errorf("channel_count = %v, want 0", out["channel_count"])
	}
}
