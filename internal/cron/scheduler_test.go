package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestNextFireTime_StandardExpression(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := nextFireTime("0 * * * *", ref)
	if err != nil {
		t.Fatalf("nextFireTime: %v", err)
	}
	want := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextFireTime_DescriptorFallback(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := nextFireTime("@every 30m", ref)
	if err != nil {
		t.Fatalf("nextFireTime with descriptor: %v", err)
	}
	if !next.After(ref) {
		t.Errorf("expected next run after ref, got %v", next)
	}
}

func TestNextFireTime_InvalidExpression(t *testing.T) {
	if _, err := nextFireTime("not a cron expr", time.Now()); err == nil {
		t.Fatal("expected error for an invalid cron expression")
	}
}

func TestAddJob_ComputesNextRun(t *testing.T) {
	s := New()
	job := NewJob("job1", "0 * * * *", "", nil, func(ctx context.Context, j *Job) (string, error) {
		return "done", nil
	})
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if job.NextRun().IsZero() {
		t.Error("expected NextRun to be computed after AddJob")
	}
	if len(s.ListJobs()) != 1 {
		t.Errorf("ListJobs() length = %d, want 1", len(s.ListJobs()))
	}
}

func TestRemoveJob(t *testing.T) {
	s := New()
	job := NewJob("job1", "@every 1h", "", nil, func(ctx context.Context, j *Job) (string, error) {
		return "", nil
	})
	s.AddJob(job)
	s.RemoveJob("job1")
	if len(s.ListJobs()) != 0 {
		t.Error("expected job to be removed")
	}
}

func TestScheduler_FiresDueJobAndRecordsHistory(t *testing.T) {
	s := New()
	var mu sync.Mutex
	fired := 0
	job := NewJob("job1", "@every 1ms", "", nil, func(ctx context.Context, j *Job) (string, error) {
		mu.Lock()
		fired++
		mu.Unlock()
		return "ok-result", nil
	})
	// Force an immediate firing regardless of the descriptor's actual
	// cadence, matching how fireDue evaluates due-ness against "now".
	job.setNextRun(time.Now().Add(-time.Millisecond))
	s.mu.Lock()
	s.jobs["job1"] = job
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.fireDue(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := fired
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	history := job.History()
	if len(history) != 1 || history[0].Status != "ok" || history[0].Result != "ok-result" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestScheduler_HandlerErrorRecordsFailedStatus(t *testing.T) {
	s := New()
	job := NewJob("job1", "@every 1h", "", nil, func(ctx context.Context, j *Job) (string, error) {
		return "", errBoom
	})
	job.setNextRun(time.Now().Add(-time.Millisecond))
	s.mu.Lock()
	s.jobs["job1"] = job
	s.mu.Unlock()

	s.fireOnce(context.Background(), job)

	history := job.History()
	if len(history) != 1 || history[0].Status != "failed" || history[0].Error == "" {
		t.Fatalf("unexpected history: %+v", history)
	}
}
