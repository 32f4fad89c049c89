package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/config"
	"github.com/letsgo/gateway/internal/registry"

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

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("letsgo doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, will start with defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-14s %s\n", "Mode:", cfg.Database.Mode)
	if cfg.Database.Mode == "postgres" {
		if cfg.Database.PostgresDSN == "" {
			fmt.Printf("    %-14s LETSGO_POSTGRES_DSN not set\n", "Status:")
		} else {
			fmt.Printf("    %-14s configured (run `letsgo migrate up` to apply schema)\n", "Status:")
		}
	}

	fmt.Println()
	fmt.Println("  Files dir:")
	filesDir := config.ExpandHome(cfg.FilesDir)
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		fmt.Printf("    %-14s NOT WRITABLE (%s)\n", filesDir+":", err)
	} else {
		fmt.Printf("    %-14s OK\n", filesDir+":")
	}

	fmt.Println()
	fmt.Println("  Pairing store:")
	pairingPath := config.ExpandHome(cfg.Auth.PairingDBPath)
	if err := os.MkdirAll(filepath.Dir(pairingPath), 0o755); err != nil {
		fmt.Printf("    %-14s NOT WRITABLE (%s)\n", pairingPath+":", err)
	} else {
		fmt.Printf("    %-14s OK\n", pairingPath+":")
	}

	fmt.Println()
	fmt.Println("  Admin surface:")
	if cfg.Admin.Mounts() {
		fmt.Printf("    %-14s enabled on %s\n", "Status:", cfg.Admin.Addr)
	} else {
		fmt.Printf("    %-14s disabled (set admin.enabled + admin.token to turn on)\n", "Status:")
	}

	fmt.Println()
	fmt.Println("  Backend:")
	if cfg.Backend.URL == "" {
		fmt.Printf("    %-14s none configured, falling back to echo backend\n", "Status:")
	} else {
		fmt.Printf("    %-14s %s (timeout %s)\n", "Status:", cfg.Backend.URL, cfg.Backend.Timeout())
	}

	fmt.Println()
	fmt.Println("  Channels:")
	if len(cfg.Channels) == 0 {
		fmt.Println("    (none configured)")
	}
	for name, chCfg := range cfg.Channels {
		if _, err := registry.Resolve(channeltype.Type(chCfg.Type)); err != nil {
			fmt.Printf("    %-20s UNKNOWN TYPE %q\n", name+":", chCfg.Type)
			continue
		}
		fmt.Printf("    %-20s %s (dm_policy=%s)\n", name+":", chCfg.Type, policyOrDefault(chCfg.DMPolicy))
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func policyOrDefault(p string) string {
	if p == "" {
		return "pairing"
	}
	return p
}
