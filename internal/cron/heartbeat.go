package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/message"
)

// Dispatch is the daemon's inbound pipeline entry point — a heartbeat
// firing re-enters the same pipeline real messages go through, so auth,
// rate-limiting and transforms all apply uniformly.
type Dispatch func(ctx context.Context, msg message.Inbound) (string, error)

// HeartbeatRecord pairs a heartbeat execution with the agent it fired
// for, used when reporting recent heartbeat activity across every agent.
type HeartbeatRecord struct {
	AgentID string `json:"agent_id"`
	HistoryEntry
}

const heartbeatHistorySize = 100

// Engine is the heartbeat job kind: a scheduled firing synthesizes an
// internal Inbound message with a synthetic sender, letting the agent
// backend take a self-initiated turn through the ordinary pipeline.
type Engine struct {
	mu      sync.Mutex
	results map[string]HistoryEntry // agentID -> last result
	history []HeartbeatRecord       // bounded ring, oldest first, across all agents
}

// NewEngine creates an empty heartbeat engine.
func NewEngine() *Engine {
	return &Engine{results: make(map[string]HistoryEntry)}
}

// NewHeartbeatJob builds a *Job whose handler synthesizes a heartbeat
// Inbound message for agentID on channelName and passes it to dispatch.
func (e *Engine) NewHeartbeatJob(name, cronExpr, agentID, channelName string, dispatch Dispatch) *Job {
	handler := func(ctx context.Context, job *Job) (string, error) {
		msg := message.Inbound{
			Channel:     channeltype.Type("heartbeat"),
			ChannelName: channelName,
			SenderID:    fmt.Sprintf("heartbeat:%s", agentID),
			SenderLabel: "heartbeat",
			Text:        fmt.Sprintf("[heartbeat] scheduled check-in for agent %s", agentID),
			Timestamp:   time.Now(),
		}
		start := time.Now()
		reply, err := dispatch(ctx, msg)

		entry := HistoryEntry{StartedAt: start, DurationMS: time.Since(start).Milliseconds()}
		if err != nil {
			entry.Status = "failed"
			entry.Error = err.Error()
		} else {
			entry.Status = "ok"
			entry.Result = reply
		}
		e.mu.Lock()
		e.results[agentID] = entry
		e.history = append(e.history, HeartbeatRecord{AgentID: agentID, HistoryEntry: entry})
		if len(e.history) > heartbeatHistorySize {
			e.history = e.history[len(e.history)-heartbeatHistorySize:]
		}
		e.mu.Unlock()

		return reply, err
	}
	return NewJob(name, cronExpr, "heartbeat", map[string]string{"agent_id": agentID}, handler)
}

// LastResult returns the most recent heartbeat execution record for agentID.
func (e *Engine) LastResult(agentID string) (HistoryEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.results[agentID]
	return entry, ok
}

// RecentHistory returns the last n heartbeat execution records across
// every agent, most recent first. n <= 0 returns the full bounded ring.
func (e *Engine) RecentHistory(n int) []HeartbeatRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.history) {
		n = len(e.history)
	}
	out := make([]HeartbeatRecord, n)
	for i := 0; i < n; i++ {
		out[i] = e.history[len(e.history)-1-i]
	}
	return out
}
