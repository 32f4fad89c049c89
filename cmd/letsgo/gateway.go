package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/letsgo/gateway/internal/adminapi"
	"github.com/letsgo/gateway/internal/backend"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/daemon"
	"github.com/letsgo/gateway/internal/pairing"
	"github.com/letsgo/gateway/internal/router"
	"github.com/letsgo/gateway/internal/store"
	filestore "github.com/letsgo/gateway/internal/store/file"
	pgstore "github.com/letsgo/gateway/internal/store/pg"

	_ "github.com/letsgo/gateway/internal/channels/canvas"
	_ "github.com/letsgo/gateway/internal/channels/discord"
	_ "github.com/letsgo/gateway/internal/channels/irc"
	_ "github.com/letsgo/gateway/internal/channels/matrix"
	_ "github.com/letsgo/gateway/internal/channels/signal"
	_ "github.com/letsgo/gateway/internal/channels/slack"
	_ "github.com/letsgo/gateway/internal/channels/telegram"
	_ "github.com/letsgo/gateway/internal/channels/webhook"
	_ "github.com/letsgo/gateway/internal/channels/whatsapp"
)

// shutdownGrace bounds how long Stop is given to drain in-flight
// pipelines before the process exits regardless.
const shutdownGrace = 20 * time.Second

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway daemon (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGatewayE()
		},
	}
}

func runGateway() {
	if err := runGatewayE(); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func runGatewayE() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stores, err := buildStores(cfg)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}

	be := buildBackend(cfg)

	d := daemon.New(cfg, stores, be)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	var srv *http.Server
	var cfgWatcher *config.Watcher
	if cfg.Admin.Mounts() {
		mux := http.NewServeMux()
		api := adminapi.New(d, cfg.Admin.Token)
		api.Mount(mux)
		addr := cfg.Admin.Addr
		if addr == "" {
			addr = ":8089"
		}
		srv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			slog.Info("admin surface listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("admin surface failed", "error", err)
			}
		}()

		w, err := config.WatchFile(resolveConfigPath(), func(newCfg *config.Config) {
			api.SetToken(newCfg.Admin.Token)
			slog.Info("config hot-reload: admin token refreshed")
		})
		if err != nil {
			slog.Warn("config hot-reload watcher failed to start", "error", err)
		} else {
			cfgWatcher = w
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutdown signal received, draining")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()

	if cfgWatcher != nil {
		_ = cfgWatcher.Close()
	}
	if srv != nil {
		_ = srv.Shutdown(stopCtx)
	}

	done := make(chan error, 1)
	go func() { done <- d.Stop(stopCtx) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("stop daemon: %w", err)
		}
	case <-stopCtx.Done():
		slog.Warn("shutdown grace window elapsed, forcing exit")
	}
	return nil
}

func buildStores(cfg *config.Config) (store.Stores, error) {
	if cfg.Database.Mode == "postgres" {
		db, err := pgstore.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			return store.Stores{}, err
		}
		return store.Stores{
			Pairing: pgstore.NewPairingStore(db, cfg.Auth.CodeTTL(), cfg.Auth.MaxPerMinute()),
			Cron:    pgstore.NewCronStore(db),
		}, nil
	}

	svc, err := pairing.NewService(pairing.Options{
		Path:                 config.ExpandHome(cfg.Auth.PairingDBPath),
		CodeTTL:              cfg.Auth.CodeTTL(),
		MaxMessagesPerMinute: cfg.Auth.MaxPerMinute(),
	})
	if err != nil {
		return store.Stores{}, fmt.Errorf("open pairing store: %w", err)
	}
	logPath := config.ExpandHome(cfg.Cron.LogPath)
	jobsPath := filepath.Join(filepath.Dir(logPath), "cron-jobs.json")
	return store.Stores{
		Pairing: filestore.NewPairingStore(svc),
		Cron:    filestore.NewCronStore(jobsPath, logPath),
	}, nil
}

func buildBackend(cfg *config.Config) router.Backend {
	if cfg.Backend.URL == "" {
		slog.Warn("no backend.url configured, using echo backend")
		return backend.EchoBackend{}
	}
	return backend.NewHTTPBackend(cfg.Backend.URL, cfg.Backend.Timeout())
}
