// Package cron implements the scheduler and heartbeat engine: it fires
// named jobs on a cron schedule and records bounded execution history.
package cron

import (
	"context"
	"sync"
	"time"
)

const defaultHistorySize = 100

// Handler performs one job firing and returns a short human-readable
// result string or an error.
type Handler func(ctx context.Context, job *Job) (string, error)

// Job is a named, independently-scheduled unit of work.
type Job struct {
	Name     string
	CronExpr string
	Recipe   string
	Context  map[string]string
	Handler  Handler

	mu          sync.Mutex
	nextRun     time.Time
	lastRun     *time.Time
	history     []HistoryEntry
	historySize int
}

// HistoryEntry is one execution record, appended to the job's bounded ring.
type HistoryEntry struct {
	StartedAt  time.Time
	DurationMS int64
	Status     string // "ok" | "failed"
	Result     string
	Error      string
}

// NewJob constructs a job with the default history ring size.
func NewJob(name, cronExpr, recipe string, jobCtx map[string]string, handler Handler) *Job {
	return &Job{
		Name:        name,
		CronExpr:    cronExpr,
		Recipe:      recipe,
		Context:     jobCtx,
		Handler:     handler,
		historySize: defaultHistorySize,
	}
}

// NextRun returns the job's computed next firing time.
func (j *Job) NextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextRun
}

// LastRun returns the job's last firing time, if any.
func (j *Job) LastRun() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}

// History returns a snapshot copy of the job's execution history, oldest first.
func (j *Job) History() []HistoryEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]HistoryEntry, len(j.history))
	copy(out, j.history)
	return out
}

func (j *Job) recordRun(entry HistoryEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastRun = &entry.StartedAt
	j.history = append(j.history, entry)
	if len(j.history) > j.historySize {
		j.history = j.history[len(j.history)-j.historySize:]
	}
}

func (j *Job) setNextRun(t time.Time) {
	j.mu.Lock()
	j.nextRun = t
	j.mu.Unlock()
}
