// Package daemon wires together the registry, channel manager, pairing
// store, session router, display router and cron scheduler into the
// running gateway process, and implements the inbound/outbound message
// pipeline every channel adapter's handler is bound to.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/letsgo/gateway/internal/channels"
	"github.com/letsgo/gateway/internal/channels/canvas"
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/cron"
	"github.com/letsgo/gateway/internal/display"
	"github.com/letsgo/gateway/internal/message"
	"github.com/letsgo/gateway/internal/registry"
	"github.com/letsgo/gateway/internal/router"
	"github.com/letsgo/gateway/internal/store"
)

// Daemon owns every long-lived collaborator the gateway process needs and
// implements the _on_message pipeline (see pipeline.go) that every
// channel adapter's registered handler calls into.
type Daemon struct {
	cfg     *config.Config
	manager *channels.Manager
	stores  store.Stores

	sessions *router.Router
	display  *display.Router

	scheduler *cron.Scheduler
	heartbeat *cron.Engine

	perThreadSessions bool
	filesDir          string

	inboundTransforms  []InboundTransform
	outboundTransforms []OutboundTransform

	startedAt    time.Time
	messageCount int64
}

// New constructs a Daemon from its configuration and durable
// collaborators. backend is the external conversational agent the
// session router forwards to; it is out of this module's scope.
func New(cfg *config.Config, stores store.Stores, backend router.Backend) *Daemon {
	manager := channels.NewManager()
	return &Daemon{
		cfg:       cfg,
		manager:   manager,
		stores:    stores,
		sessions:  router.New(backend, router.Options{}),
		display:   display.New(manager),
		scheduler: cron.New(),
		heartbeat: cron.NewEngine(),
		filesDir:  cfg.FilesDir,
	}
}

// UsePerThreadSessions switches the router to thread-granular session
// scoping (route key includes the message's thread id).
func (d *Daemon) UsePerThreadSessions(enabled bool) {
	d.perThreadSessions = enabled
}

// AddInboundTransform appends an inbound transform, applied in
// registration order ahead of routing.
func (d *Daemon) AddInboundTransform(t InboundTransform) {
	d.inboundTransforms = append(d.inboundTransforms, t)
}

// AddOutboundTransform appends an outbound transform, applied in
// registration order after routing and before display delivery.
func (d *Daemon) AddOutboundTransform(t OutboundTransform) {
	d.outboundTransforms = append(d.outboundTransforms, t)
}

// Manager exposes the channel manager for the admin surface.
func (d *Daemon) Manager() *channels.Manager { return d.manager }

// Sessions exposes the session router for the admin surface.
func (d *Daemon) Sessions() *router.Router { return d.sessions }

// Stores exposes the pairing/cron stores for the admin surface.
func (d *Daemon) Stores() store.Stores { return d.stores }

// Scheduler exposes the cron scheduler for the admin surface.
func (d *Daemon) Scheduler() *cron.Scheduler { return d.scheduler }

// Heartbeat exposes the heartbeat engine for the admin surface.
func (d *Daemon) Heartbeat() *cron.Engine { return d.heartbeat }

// Config exposes the daemon's configuration for the admin surface.
func (d *Daemon) Config() *config.Config { return d.cfg }

// StartedAt reports when Start was called, for uptime reporting.
func (d *Daemon) StartedAt() time.Time { return d.startedAt }

// MessageCount reports the number of messages that reached step 5
// (routing) successfully, for the admin usage projection.
func (d *Daemon) MessageCount() int64 { return d.messageCount }

// buildChannels resolves every configured channel instance via the
// registry and registers it with the manager, binding each instance's
// handler to a closure that calls back into the daemon's pipeline with
// that instance's own name — the instance name is never carried on the
// message itself, only captured by this closure.
func (d *Daemon) buildChannels() {
	for name, chCfg := range d.cfg.Channels {
		factory, err := registry.Resolve(channeltype.Type(chCfg.Type))
		if err != nil {
			slog.Warn("skipping channel with unknown type", "channel", name, "type", chCfg.Type, "error", err)
			continue
		}
		ch, err := factory(name, chCfg)
		if err != nil {
			slog.Warn("channel construction failed", "channel", name, "error", err)
			continue
		}
		instanceName := ch.Name()
		ch.SetOnMessage(func(ctx context.Context, msg message.Inbound) (string, error) {
			return d.OnMessage(ctx, instanceName, msg)
		})
		d.manager.Register(ch)
	}
}

// Start builds every configured channel, wires the canvas adapter's
// shared display state, starts the channel manager, the cron scheduler,
// the configured jobs, and the session reaper.
func (d *Daemon) Start(ctx context.Context) error {
	canvas.SetSharedState(d.display.State)

	d.buildChannels()
	d.manager.StartAll(ctx)

	if err := d.registerConfiguredJobs(); err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	if err := d.registerHeartbeatJobs(); err != nil {
		return fmt.Errorf("register heartbeat jobs: %w", err)
	}

	d.scheduler.Start(ctx)
	d.sessions.StartReaping(ctx)

	d.startedAt = time.Now()
	slog.Info("daemon started", "channels", len(d.cfg.Channels))
	return nil
}

// Stop drains and stops every subsystem: the scheduler first (no new
// firings), then every adapter, then stops the session reaper and
// flushes the pairing store.
func (d *Daemon) Stop(ctx context.Context) error {
	d.scheduler.Stop()
	d.manager.StopAll(ctx)
	d.sessions.StopReaping()

	if err := d.stores.Pairing.Flush(); err != nil {
		return fmt.Errorf("flush pairing store: %w", err)
	}
	slog.Info("daemon stopped")
	return nil
}
