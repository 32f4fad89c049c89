// Package adminapi implements the gateway's control-plane HTTP surface:
// session/channel/sender/cron/usage/agent introspection, gated behind a
// single bearer token and mounted only when one is configured.
package adminapi

import (
	"embed"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/letsgo/gateway/internal/daemon"
)

//go:embed dashboard.html
var dashboardFS embed.FS

// API serves the admin surface described in the gateway daemon's
// configuration document. It is stateless beyond the token and the
// daemon reference — all real state lives in the daemon's collaborators.
type API struct {
	d *daemon.Daemon

	mu    sync.RWMutex
	token string
}

// New creates an admin API bound to token. Mount refuses to register any
// route if token is empty — the admin surface is fail-closed.
func New(d *daemon.Daemon, token string) *API {
	return &API{d: d, token: token}
}

// SetToken swaps the bearer token checked by auth, letting a config
// hot-reload rotate it without restarting the admin listener. It has no
// effect on whether routes were mounted in the first place — an admin
// surface that started unmounted (empty token at startup) stays unmounted.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *API) currentToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Mount registers every admin route on mux, each wrapped by the bearer
// auth middleware. Non-admin paths on the same server are untouched —
// callers mount this alongside other handlers on a shared *http.ServeMux.
func (a *API) Mount(mux *http.ServeMux) {
	if a.currentToken() == "" {
		return
	}

	mux.HandleFunc("GET /admin/", a.auth(a.handleDashboard))
	mux.HandleFunc("GET /admin/api/sessions", a.auth(a.handleListSessions))
	mux.HandleFunc("DELETE /admin/api/sessions/{key}", a.auth(a.handleCloseSession))
	mux.HandleFunc("GET /admin/api/channels", a.auth(a.handleListChannels))
	mux.HandleFunc("GET /admin/api/senders", a.auth(a.handleListSenders))
	mux.HandleFunc("POST /admin/api/senders/{id}/block", a.auth(a.handleBlockSender))
	mux.HandleFunc("POST /admin/api/senders/{id}/unblock", a.auth(a.handleUnblockSender))
	mux.HandleFunc("GET /admin/api/cron", a.auth(a.handleCron))
	mux.HandleFunc("GET /admin/api/usage", a.auth(a.handleUsage))
	mux.HandleFunc("GET /admin/api/agents", a.auth(a.handleAgents))

	registry := prometheus.NewRegistry()
	registry.MustRegister(&daemonCollector{d: a.d})
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	mux.HandleFunc("GET /admin/metrics", a.auth(metricsHandler.ServeHTTP))
}

// auth wraps next with bearer-token enforcement: any request whose
// Authorization header doesn't exactly match the configured token gets
// a 401 with WWW-Authenticate: Bearer.
func (a *API) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tok := a.currentToken(); tok == "" || extractBearerToken(r) != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data, err := dashboardFS.ReadFile("dashboard.html")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
