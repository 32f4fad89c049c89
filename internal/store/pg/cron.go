package pg

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/letsgo/gateway/internal/store"
)

// CronStore implements store.CronStore against Postgres.
type CronStore struct {
	db *sql.DB
}

func NewCronStore(db *sql.DB) *CronStore {
	return &CronStore{db: db}
}

func (c *CronStore) ListJobs() ([]store.CronJob, error) {
	rows, err := c.db.Query(`SELECT name, cron_expr, recipe, context, next_run, last_run FROM cron_jobs`)
	if err != nil {
		return nil, fmt.Errorf("list cron jobs: %w", err)
	}
	defer rows.Close()

	var out []store.CronJob
	for rows.Next() {
		var job store.CronJob
		var ctxJSON []byte
		var lastRun sql.NullTime
		if err := rows.Scan(&job.Name, &job.CronExpr, &job.Recipe, &ctxJSON, &job.NextRun, &lastRun); err != nil {
			return nil, fmt.Errorf("scan cron job: %w", err)
		}
		if len(ctxJSON) > 0 {
			json.Unmarshal(ctxJSON, &job.Context)
		}
		if lastRun.Valid {
			job.LastRun = &lastRun.Time
		}
		out = append(out, job)
	}
	return out, nil
}

func (c *CronStore) SaveJob(job store.CronJob) error {
	ctxJSON, err := json.Marshal(job.Context)
	if err != nil {
		return fmt.Errorf("marshal cron context: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT INTO cron_jobs (name, cron_expr, recipe, context, next_run, last_run)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (name) DO UPDATE SET cron_expr = $2, recipe = $3, context = $4, next_run = $5, last_run = $6`,
		job.Name, job.CronExpr, job.Recipe, ctxJSON, job.NextRun, job.LastRun,
	)
	if err != nil {
		return fmt.Errorf("save cron job: %w", err)
	}
	return nil
}

func (c *CronStore) AppendResult(result store.CronJobResult) error {
	_, err := c.db.Exec(
		`INSERT INTO cron_job_results (job_name, started_at, duration_ms, status, result, error)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		result.JobName, result.StartedAt, result.DurationMS, result.Status, result.Result, result.Error,
	)
	if err != nil {
		return fmt.Errorf("append cron result: %w", err)
	}
	return nil
}

func (c *CronStore) History(jobName string, limit int) ([]store.CronJobResult, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT job_name, started_at, duration_ms, status, result, error FROM cron_job_results`
	args := []any{}
	if jobName != "" {
		q += ` WHERE job_name = $1 ORDER BY started_at DESC LIMIT $2`
		args = append(args, jobName, limit)
	} else {
		q += ` ORDER BY started_at DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := c.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query cron history: %w", err)
	}
	defer rows.Close()

	var out []store.CronJobResult
	for rows.Next() {
		var r store.CronJobResult
		if err := rows.Scan(&r.JobName, &r.StartedAt, &r.DurationMS, &r.Status, &r.Result, &r.Error); err != nil {
			return nil, fmt.Errorf("scan cron result: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
