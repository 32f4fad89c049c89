package file

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/letsgo/gateway/internal/store"
)

func newTestCronStore(t *testing.T) *CronStore {
	t.Helper()
	dir := t.TempDir()
	return NewCronStore(filepath.Join(dir, "cron-jobs.json"), filepath.Join(dir, "cron.log"))
}

func TestCronStore_ListJobsEmptyWhenFileMissing(t *testing.T) {
	s := newTestCronStore(t)
	jobs, err := s.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
}

func TestCronStore_SaveJobThenList(t *testing.T) {
	s := newTestCronStore(t)
	job := store.CronJob{Name: "job1", CronExpr: "@every 1h", NextRun: time.Now()}
	if err := s.SaveJob(job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	jobs, err := s.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "job1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestCronStore_SaveJobReplacesExisting(t *testing.T) {
	s := newTestCronStore(t)
	s.SaveJob(store.CronJob{Name: "job1", CronExpr: "@every 1h"})
	s.SaveJob(store.CronJob{Name: "job1", CronExpr: "@every 2h"})

	jobs, err := s.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected the save to replace rather than duplicate, got %d jobs", len(jobs))
	}
	if jobs[0].CronExpr != "@every 2h" {
		t.Errorf("CronExpr = %q, want %q", jobs[0].CronExpr, "@every 2h")
	}
}

func TestCronStore_AppendResultAndHistory(t *testing.T) {
	s := newTestCronStore(t)
	s.AppendResult(store.CronJobResult{JobName: "job1", Status: "ok", Result: "first"})
	s.AppendResult(store.CronJobResult{JobName: "job2", Status: "ok", Result: "other-job"})
	s.AppendResult(store.CronJobResult{JobName: "job1", Status: "failed", Error: "boom"})

	history, err := s.History("job1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries for job1, got %d", len(history))
	}
	if history[1].Status != "failed" || history[1].Error != "boom" {
		t.Errorf("unexpected last entry: %+v", history[1])
	}
}

func TestCronStore_HistoryRespectsLimit(t *testing.T) {
	s := newTestCronStore(t)
	for i := 0; i < 5; i++ {
		s.AppendResult(store.CronJobResult{JobName: "job1", Status: "ok"})
	}

	history, err := s.History("job1", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected History to cap at the requested limit, got %d", len(history))
	}
}

func TestCronStore_HistoryEmptyWhenLogMissing(t *testing.T) {
	s := newTestCronStore(t)
	history, err := s.History("anything", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if history != nil {
		t.Errorf("expected nil history for a missing log, got %+v", history)
	}
}
