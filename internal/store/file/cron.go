package file

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/letsgo/gateway/internal/store"
)

// CronStore persists job definitions as a JSON document (atomic
// replace-on-write) and execution history as an append-only JSON-lines
// log, per the daemon configuration document's cron.log_path.
type CronStore struct {
	mu       sync.Mutex
	jobsPath string
	logPath  string
}

// NewCronStore creates a CronStore. jobsPath holds the job list document;
// logPath is the append-only execution history log.
func NewCronStore(jobsPath, logPath string) *CronStore {
	return &CronStore{jobsPath: jobsPath, logPath: logPath}
}

func (c *CronStore) ListJobs() ([]store.CronJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.jobsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cron jobs: %w", err)
	}
	var jobs []store.CronJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse cron jobs: %w", err)
	}
	return jobs, nil
}

func (c *CronStore) SaveJob(job store.CronJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	jobs, err := c.listJobsLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range jobs {
		if jobs[i].Name == job.Name {
			jobs[i] = job
			replaced = true
			break
		}
	}
	if !replaced {
		jobs = append(jobs, job)
	}
	return c.writeJobsLocked(jobs)
}

func (c *CronStore) listJobsLocked() ([]store.CronJob, error) {
	data, err := os.ReadFile(c.jobsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cron jobs: %w", err)
	}
	var jobs []store.CronJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse cron jobs: %w", err)
	}
	return jobs, nil
}

func (c *CronStore) writeJobsLocked(jobs []store.CronJob) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cron jobs: %w", err)
	}
	dir := filepath.Dir(c.jobsPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cron jobs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cron-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cron file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp cron file: %w", err)
	}
	tmp.Close()
	return os.Rename(tmp.Name(), c.jobsPath)
}

func (c *CronStore) AppendResult(result store.CronJobResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.logPath == "" {
		return nil
	}
	dir := filepath.Dir(c.logPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cron log dir: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open cron log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal cron result: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append cron log: %w", err)
	}
	return nil
}

func (c *CronStore) History(jobName string, limit int) ([]store.CronJobResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open cron log: %w", err)
	}
	defer f.Close()

	var all []store.CronJobResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r store.CronJobResult
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if jobName != "" && r.JobName != jobName {
			continue
		}
		all = append(all, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan cron log: %w", err)
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}
