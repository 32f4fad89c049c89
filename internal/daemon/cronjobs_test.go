package daemon

import (
	"context"
	"testing"

	"github.com/letsgo/gateway/internal/config"
)

func TestRegisterConfiguredJobs_AddsToSchedulerAndStore(t *testing.T) {
	backend := &stubBackend{reply: "noted"}
	d, _ := newTestDaemon(t, config.ChannelConfig{Type: "discord", DMPolicy: "open"}, backend)
	d.cfg.Cron.Jobs = []config.CronJobSpec{
		{Name: "nightly-cleanup", Cron: "@every 1h", Recipe: "cleanup"},
	}

	if err := d.registerConfiguredJobs(); err != nil {
		t.Fatalf("registerConfiguredJobs: %v", err)
	}

	jobs := d.Scheduler().ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "nightly-cleanup" {
		t.Fatalf("expected the job registered with the scheduler, got %+v", jobs)
	}

	stored, err := d.Stores().Cron.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(stored) != 1 || stored[0].Name != "nightly-cleanup" {
		t.Fatalf("expected the job definition persisted, got %+v", stored)
	}
}

func TestRegisterHeartbeatJobs_OneJobPerAgentChannelPair(t *testing.T) {
	backend := &stubBackend{reply: "check-in"}
	d, _ := newTestDaemon(t, config.ChannelConfig{Type: "discord", DMPolicy: "open"}, backend)
	d.cfg.Agents = map[string]config.Agent{
		"agent-a": {
			HeartbeatCron:     "@every 1h",
			HeartbeatChannels: []string{"inst", "other-inst"},
		},
		"agent-b": {}, // no heartbeat configured, must be skipped
	}

	if err := d.registerHeartbeatJobs(); err != nil {
		t.Fatalf("registerHeartbeatJobs: %v", err)
	}

	jobs := d.Scheduler().ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("expected one heartbeat job per channel, got %d: %+v", len(jobs), jobs)
	}
}

func TestRegisterConfiguredJobs_HandlerReentersPipeline(t *testing.T) {
	backend := &stubBackend{reply: "cron handled"}
	d, ch := newTestDaemon(t, config.ChannelConfig{Type: "discord", DMPolicy: "open"}, backend)
	d.cfg.Cron.Jobs = []config.CronJobSpec{
		{Name: "inst", Cron: "@every 1h", Recipe: "ping"},
	}
	if err := d.registerConfiguredJobs(); err != nil {
		t.Fatalf("registerConfiguredJobs: %v", err)
	}

	jobs := d.Scheduler().ListJobs()
	reply, err := jobs[0].Handler(context.Background(), jobs[0])
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if reply != "cron handled" {
		t.Errorf("reply = %q, want %q", reply, "cron handled")
	}
	if len(ch.sent) != 1 {
		t.Fatalf("expected the cron firing's reply delivered to the channel it names, got %+v", ch.sent)
	}
}
