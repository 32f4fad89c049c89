package store

import "time"

// CronJob is the durable description of a scheduled job, persisted so
// the job list survives a daemon restart.
type CronJob struct {
	Name       string            `json:"name"`
	CronExpr   string            `json:"cron"`
	Recipe     string            `json:"recipe"`
	Context    map[string]string `json:"context,omitempty"`
	NextRun    time.Time         `json:"next_run"`
	LastRun    *time.Time        `json:"last_run,omitempty"`
}

// CronJobResult is one execution history entry for a job.
type CronJobResult struct {
	JobName    string    `json:"job_name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Status     string    `json:"status"` // "ok" | "failed"
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// CronStore persists the configured job list and appends execution
// history. The in-process scheduler is authoritative for firing; this
// store exists so an admin restart doesn't lose job definitions.
type CronStore interface {
	ListJobs() ([]CronJob, error)
	SaveJob(job CronJob) error
	AppendResult(result CronJobResult) error
	History(jobName string, limit int) ([]CronJobResult, error)
}
