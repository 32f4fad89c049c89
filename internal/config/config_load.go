package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults for a bare daemon.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Channels: Channels{},
		Auth: AuthConfig{
			PairingDBPath:        home + "/.letsgo/pairing.json",
			MaxMessagesPerMinute: 60,
			CodeTTLSeconds:       300,
		},
		Cron: CronConfig{
			LogPath: home + "/.letsgo/cron.log",
		},
		FilesDir: home + "/.letsgo/files",
		Admin:    AdminConfig{Enabled: false},
		Agents:   map[string]Agent{},
		Database: DatabaseConfig{Mode: "file"},
		Backend:  BackendConfig{TimeoutSeconds: 60},
	}
}

// Load reads the daemon configuration document from path (JSON5, so
// comments and trailing commas are tolerated) and overlays environment
// variables, which always take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays secrets and operational overrides from the
// environment. Per-channel secrets are never read from the config
// document itself — only from LETSGO_CHANNEL_<NAME>_TOKEN /
// LETSGO_CHANNEL_<NAME>_WEBHOOK_SECRET, keyed by the channel instance name.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("LETSGO_ADMIN_TOKEN", &c.Admin.Token)
	envStr("LETSGO_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("LETSGO_DATABASE_MODE", &c.Database.Mode)
	envStr("LETSGO_FILES_DIR", &c.FilesDir)
	envStr("LETSGO_PAIRING_DB_PATH", &c.Auth.PairingDBPath)
	envStr("LETSGO_BACKEND_URL", &c.Backend.URL)

	if v := os.Getenv("LETSGO_MAX_MESSAGES_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Auth.MaxMessagesPerMinute = n
		}
	}
	if v := os.Getenv("LETSGO_ADMIN_ENABLED"); v != "" {
		c.Admin.Enabled = v == "true" || v == "1"
	}

	for name, ch := range c.Channels {
		envPrefix := "LETSGO_CHANNEL_" + envSafe(name)
		envStr(envPrefix+"_TOKEN", &ch.Token)
		envStr(envPrefix+"_WEBHOOK_SECRET", &ch.WebhookSecret)
		c.Channels[name] = ch
	}
}

// envSafe upper-cases a channel instance name and replaces characters
// that aren't valid in an environment variable name.
func envSafe(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
