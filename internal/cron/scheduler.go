package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	robfigcron "github.com/robfig/cron/v3"
)

// nextFireTime computes the next firing time after ref for a cron
// expression. Standard 5-field expressions go through gronx (the
// teacher's own cron dependency); named shorthands gronx doesn't parse
// (e.g. "@every 30m") fall back to robfig/cron's descriptor parser.
func nextFireTime(expr string, ref time.Time) (time.Time, error) {
	if gronx.IsValid(expr) {
		next, err := gronx.NextTickAfter(expr, ref, false)
		if err == nil {
			return next, nil
		}
	}

	schedule, err := robfigcron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(ref), nil
}

// Scheduler holds the list of scheduled jobs and fires each on its own
// goroutine when its next-run time arrives. A single background task
// sleeps until the earliest next-run and wakes to dispatch.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*Job

	stop chan struct{}
	done chan struct{}
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*Job)}
}

// AddJob registers a job and computes its initial next-run time.
func (s *Scheduler) AddJob(job *Job) error {
	next, err := nextFireTime(job.CronExpr, time.Now())
	if err != nil {
		return err
	}
	job.setNextRun(next)

	s.mu.Lock()
	s.jobs[job.Name] = job
	s.mu.Unlock()
	return nil
}

// RemoveJob unregisters a job by name.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// ListJobs returns a snapshot of currently registered jobs.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Start launches the scheduler's background timer loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop halts the timer loop and waits for it to exit. In-flight firings
// are not cancelled — each runs on its own goroutine independent of the
// timer loop.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		wait := s.timeUntilNext()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.fireDue(ctx)
		}
	}
}

// timeUntilNext returns how long to sleep before the earliest due job,
// capped so the loop periodically re-evaluates even with no jobs.
func (s *Scheduler) timeUntilNext() time.Duration {
	const maxWait = 30 * time.Second
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) == 0 {
		return maxWait
	}
	now := time.Now()
	earliest := time.Time{}
	for _, j := range s.jobs {
		next := j.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	wait := earliest.Sub(now)
	if wait < 0 {
		return 0
	}
	if wait > maxWait {
		return maxWait
	}
	return wait
}

// fireDue runs every job whose next-run time has arrived, each on its
// own goroutine so a slow handler doesn't block other jobs.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	due := make([]*Job, 0)
	for _, j := range s.jobs {
		if !j.NextRun().After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		next, err := nextFireTime(j.CronExpr, now.Add(time.Second))
		if err != nil {
			slog.Error("cron: failed to compute next run", "job", j.Name, "error", err)
		} else {
			j.setNextRun(next)
		}
		go s.fireOnce(ctx, j)
	}
}

func (s *Scheduler) fireOnce(ctx context.Context, j *Job) {
	start := time.Now()
	result, err := j.Handler(ctx, j)
	entry := HistoryEntry{
		StartedAt:  start,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Status = "failed"
		entry.Error = err.Error()
		slog.Error("cron job failed", "job", j.Name, "error", err)
	} else {
		entry.Status = "ok"
		entry.Result = result
	}
	j.recordRun(entry)
}
