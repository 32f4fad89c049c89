package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/letsgo/gateway/internal/channeltype"
)

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": a.d.Sessions().ActiveSessions()})
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !a.d.Sessions().CloseSession(key) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session key"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (a *API) handleListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": a.d.Manager().StatusAll()})
}

func (a *API) handleListSenders(w http.ResponseWriter, r *http.Request) {
	seen := map[channeltype.Type]bool{}
	var senders []interface{}
	for _, chCfg := range a.d.Config().Channels {
		kind := channeltype.Type(chCfg.Type)
		if seen[kind] {
			continue
		}
		seen[kind] = true
		for _, rec := range a.d.Stores().Pairing.GetAllSenders(kind) {
			senders = append(senders, rec)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"senders": senders})
}

type blockRequest struct {
	Channel string `json:"channel"`
}

func (a *API) handleBlockSender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body blockRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Channel == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel is required"})
		return
	}
	if err := a.d.Stores().Pairing.BlockSender(id, channeltype.Type(body.Channel)); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

func (a *API) handleUnblockSender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body blockRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Channel == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel is required"})
		return
	}
	if err := a.d.Stores().Pairing.UnblockSender(id, channeltype.Type(body.Channel)); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

// heartbeatHistoryLimit bounds how many recent heartbeat records
// /admin/api/cron reports alongside the scheduled job list.
const heartbeatHistoryLimit = 20

func (a *API) handleCron(w http.ResponseWriter, r *http.Request) {
	jobs := a.d.Scheduler().ListJobs()
	type jobView struct {
		Name    string    `json:"name"`
		Cron    string    `json:"cron"`
		Recipe  string    `json:"recipe"`
		NextRun time.Time `json:"next_run"`
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView{Name: j.Name, Cron: j.CronExpr, Recipe: j.Recipe, NextRun: j.NextRun()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":       views,
		"heartbeats": a.d.Heartbeat().RecentHistory(heartbeatHistoryLimit),
	})
}

func (a *API) handleUsage(w http.ResponseWriter, r *http.Request) {
	channels := a.d.Manager().StatusAll()
	running := 0
	for _, c := range channels {
		if c.IsRunning {
			running++
		}
	}

	senderCounts := map[string]int{}
	seen := map[channeltype.Type]bool{}
	for _, chCfg := range a.d.Config().Channels {
		kind := channeltype.Type(chCfg.Type)
		if seen[kind] {
			continue
		}
		seen[kind] = true
		for _, rec := range a.d.Stores().Pairing.GetAllSenders(kind) {
			senderCounts[string(rec.Status)]++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":  time.Since(a.d.StartedAt()).Seconds(),
		"total_messages":  a.d.MessageCount(),
		"session_count":   len(a.d.Sessions().ActiveSessions()),
		"senders_by_status": senderCounts,
		"channel_count":   len(channels),
		"channels_running": running,
	})
}

func (a *API) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": a.d.Config().Agents})
}
