// Package config defines and loads the gateway's daemon configuration
// document: a nested map of channels, auth, cron, files_dir, admin and
// agents settings. Extra keys in the source document are ignored.
package config

import "time"

// Config is the root configuration for the letsgo gateway.
type Config struct {
	Channels Channels        `json:"channels"`
	Auth     AuthConfig      `json:"auth"`
	Cron     CronConfig      `json:"cron"`
	FilesDir string          `json:"files_dir"`
	Admin    AdminConfig     `json:"admin"`
	Agents   map[string]Agent `json:"agents"`
	Database DatabaseConfig  `json:"database,omitempty"`
	Backend  BackendConfig   `json:"backend,omitempty"`
}

// Channels is the map of channel-instance-name → channel configuration.
type Channels map[string]ChannelConfig

// ChannelConfig is one configured channel instance. Type selects the
// adapter factory; the remaining fields are channel-specific and are
// read directly by each adapter's factory from the Extra map.
type ChannelConfig struct {
	Type           string              `json:"type"`
	Token          string              `json:"-"` // secret, env-only
	AllowFrom      FlexibleStringSlice `json:"allow_from,omitempty"`
	DMPolicy       string              `json:"dm_policy,omitempty"`
	GroupPolicy    string              `json:"group_policy,omitempty"`
	WebhookSecret  string              `json:"-"` // secret, env-only
	ListenAddr     string              `json:"listen_addr,omitempty"`
	Extra          map[string]string   `json:"extra,omitempty"`
}

// AuthConfig configures the pairing/rate-limit store.
type AuthConfig struct {
	PairingDBPath        string `json:"pairing_db_path"`
	MaxMessagesPerMinute int    `json:"max_messages_per_minute,omitempty"`
	CodeTTLSeconds       int    `json:"code_ttl_seconds,omitempty"`
}

// CodeTTL returns the configured pairing code TTL, defaulting to 300s.
func (a AuthConfig) CodeTTL() time.Duration {
	if a.CodeTTLSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(a.CodeTTLSeconds) * time.Second
}

// MaxPerMinute returns the configured rate limit, defaulting to 60.
func (a AuthConfig) MaxPerMinute() int {
	if a.MaxMessagesPerMinute <= 0 {
		return 60
	}
	return a.MaxMessagesPerMinute
}

// CronConfig configures the job log and the statically-defined job list.
type CronConfig struct {
	LogPath string        `json:"log_path,omitempty"`
	Jobs    []CronJobSpec `json:"jobs,omitempty"`
}

// CronJobSpec is one statically-configured scheduled job.
type CronJobSpec struct {
	Name    string            `json:"name"`
	Cron    string            `json:"cron"`
	Recipe  string            `json:"recipe,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// AdminConfig gates the admin HTTP surface. Mounting is fail-closed:
// only if Enabled and Token are both set.
type AdminConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"` // secret; LETSGO_ADMIN_TOKEN overrides the file value
	Addr    string `json:"addr,omitempty"`
}

// Mounts reports whether the admin surface should be mounted.
func (a AdminConfig) Mounts() bool {
	return a.Enabled && a.Token != ""
}

// Agent configures one backend agent's workspace and heartbeat schedule.
type Agent struct {
	Workspace         string   `json:"workspace,omitempty"`
	HeartbeatChannels []string `json:"heartbeat_channels,omitempty"`
	HeartbeatCron     string   `json:"heartbeat_cron,omitempty"`
}

// DatabaseConfig selects file-backed (default) or Postgres-backed stores.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "file" (default) or "postgres"
	PostgresDSN string `json:"-"`              // secret, env-only
}

// BackendConfig configures the external conversational agent collaborator.
type BackendConfig struct {
	URL            string `json:"url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Timeout returns the configured backend call timeout, defaulting to 60s.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}
