package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/cron"
	"github.com/letsgo/gateway/internal/message"
	"github.com/letsgo/gateway/internal/store"
)

// jobToStoreRecord projects a scheduler job's durable fields for the
// cron store. Execution history is not part of the record; the scheduler
// keeps it per firing in memory (Job.History).
func jobToStoreRecord(job *cron.Job) store.CronJob {
	return store.CronJob{
		Name:     job.Name,
		CronExpr: job.CronExpr,
		Recipe:   job.Recipe,
		Context:  job.Context,
		NextRun:  job.NextRun(),
		LastRun:  job.LastRun(),
	}
}

// registerConfiguredJobs schedules every statically-configured job from
// the daemon config document. A configured job has no particular
// destination adapter — its handler re-enters the pipeline as a synthetic
// "cron" sender, which is useful for maintenance-style recipes that don't
// need a reply delivered anywhere; display routing simply no-ops when no
// matching adapter is registered.
func (d *Daemon) registerConfiguredJobs() error {
	for _, spec := range d.cfg.Cron.Jobs {
		spec := spec
		job := cron.NewJob(spec.Name, spec.Cron, spec.Recipe, spec.Context, func(ctx context.Context, job *cron.Job) (string, error) {
			msg := message.Inbound{
				Channel:     channeltype.Type("cron"),
				ChannelName: job.Name,
				SenderID:    fmt.Sprintf("cron:%s", job.Name),
				SenderLabel: "cron",
				Text:        fmt.Sprintf("[cron] scheduled recipe %q fired", job.Recipe),
				Timestamp:   time.Now(),
			}
			return d.OnMessage(ctx, job.Name, msg)
		})
		if err := d.scheduler.AddJob(job); err != nil {
			return fmt.Errorf("add cron job %q: %w", spec.Name, err)
		}
		d.recordJobDefinition(job)
	}
	return nil
}

// registerHeartbeatJobs schedules one heartbeat firing per configured
// agent/channel pair, letting each agent take a self-initiated turn on
// every channel it's been given a heartbeat presence on.
func (d *Daemon) registerHeartbeatJobs() error {
	for agentID, agent := range d.cfg.Agents {
		if agent.HeartbeatCron == "" || len(agent.HeartbeatChannels) == 0 {
			continue
		}
		for _, channelName := range agent.HeartbeatChannels {
			channelName := channelName
			jobName := fmt.Sprintf("heartbeat:%s:%s", agentID, channelName)
			job := d.heartbeat.NewHeartbeatJob(jobName, agent.HeartbeatCron, agentID, channelName,
				func(ctx context.Context, msg message.Inbound) (string, error) {
					return d.OnMessage(ctx, channelName, msg)
				})
			if err := d.scheduler.AddJob(job); err != nil {
				return fmt.Errorf("add heartbeat job %q: %w", jobName, err)
			}
			d.recordJobDefinition(job)
		}
	}
	return nil
}

// recordJobDefinition persists a job's durable description so the admin
// surface's job list survives a daemon restart, even though the
// in-process scheduler is what actually fires it.
func (d *Daemon) recordJobDefinition(job *cron.Job) {
	if d.stores.Cron == nil {
		return
	}
	if err := d.stores.Cron.SaveJob(jobToStoreRecord(job)); err != nil {
		// Non-fatal: the scheduler still holds the authoritative copy.
		_ = err
	}
}
