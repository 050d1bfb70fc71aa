// Package config provides configuration loading and defaults for the
// presencewatch daemon.
//
// Configuration is loaded from a TOML file in the user's data directory.
// The package covers the tracked identity, the presence API client, polling
// cadence, notification sinks, logging, and metrics with sensible defaults.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/presencewatch/internal/atomicfile"
	"tools.zach/dev/presencewatch/internal/migrate"
	"tools.zach/dev/presencewatch/internal/paths"
	"tools.zach/dev/presencewatch/internal/presence"
)

// Default Xbox Live endpoints. "{xuid}" and "{gamertag}" are substituted by
// the poll client.
const (
	DefaultPresenceURL = "https://userpresence.xboxlive.com/users/xuid({xuid})?level=all"
	DefaultProfileURL  = "https://profile.xboxlive.com/users/gt({gamertag})/profile/settings?settings=Gamertag"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Identity selects the tracked account.
	Identity IdentityConfig `toml:"identity"`
	// API holds presence API client settings.
	API APIConfig `toml:"api"`
	// Polling holds poll cadence and the interruption tolerance window.
	Polling PollingConfig `toml:"polling"`
	// Presence holds snapshot normalization settings.
	Presence PresenceConfig `toml:"presence"`
	// Notify holds notification toggles and sinks.
	Notify NotifyConfig `toml:"notify"`
	// ActivityLog holds the CSV activity log settings.
	ActivityLog ActivityLogConfig `toml:"activity_log"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Metrics holds the Prometheus endpoint settings.
	Metrics MetricsConfig `toml:"metrics"`
}

// IdentityConfig selects the tracked account. At least one field must be
// set before the daemon starts; an empty XUID is resolved from Gamertag.
type IdentityConfig struct {
	Gamertag string `toml:"gamertag"`
	XUID     string `toml:"xuid,omitempty"`
}

// APIConfig holds presence API client settings.
type APIConfig struct {
	// PresenceURL is the presence endpoint template ({xuid} is substituted).
	PresenceURL string `toml:"presence_url"`
	// ProfileURL is the gamertag lookup template ({gamertag} is substituted).
	ProfileURL string `toml:"profile_url"`
	// Authorization is a literal Authorization header value.
	Authorization string `toml:"authorization,omitempty"`
	// TokenFile holds the Authorization header value; re-read on every poll
	// so an external refresher can rotate it. Overrides Authorization.
	TokenFile string `toml:"token_file,omitempty"`
	// TimeoutSeconds bounds a single poll including retries.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// RetryMax is the number of in-poll retries for transient failures.
	RetryMax int `toml:"retry_max"`
}

// PollingConfig holds poll cadence settings.
type PollingConfig struct {
	// OnlineIntervalSeconds is the sleep while the identity is active.
	OnlineIntervalSeconds int `toml:"online_interval_seconds"`
	// OfflineIntervalSeconds is the sleep while the identity is offline.
	OfflineIntervalSeconds int `toml:"offline_interval_seconds"`
	// IntervalStepSeconds is the runtime adjustment applied per signal.
	IntervalStepSeconds int `toml:"interval_step_seconds"`
	// OfflineInterruptSeconds is the interruption tolerance window.
	OfflineInterruptSeconds int `toml:"offline_interrupt_seconds"`
}

// PresenceConfig holds snapshot normalization settings.
type PresenceConfig struct {
	// Aliases maps additional source presence codes to online, away, offline,
	// or unknown. Merged over the built-in aliases.
	Aliases map[string]string `toml:"aliases,omitempty"`
	// IgnoreGames lists doublestar patterns for titles treated as no game.
	IgnoreGames []string `toml:"ignore_games"`
}

// NotifyConfig holds notification toggles and sinks.
type NotifyConfig struct {
	// Presence enables online/offline notifications.
	Presence bool `toml:"presence"`
	// Game enables game change notifications.
	Game bool `toml:"game"`
	// Status enables every status change, including Away.
	Status bool `toml:"status"`
	// Errors enables poll error and recovery notifications.
	Errors bool `toml:"errors"`
	// Email holds the SMTP sink settings.
	Email EmailConfig `toml:"email"`
	// Webhook holds the HTTP sink settings.
	Webhook WebhookConfig `toml:"webhook"`
	// MQTT holds the MQTT sink settings.
	MQTT MQTTConfig `toml:"mqtt"`
}

// EmailConfig holds SMTP sink settings.
type EmailConfig struct {
	Enabled        bool   `toml:"enabled"`
	SMTPHost       string `toml:"smtp_host"`
	SMTPPort       int    `toml:"smtp_port"`
	SMTPUser       string `toml:"smtp_user"`
	SMTPPassword   string `toml:"smtp_password"`
	StartTLS       bool   `toml:"starttls"`
	Sender         string `toml:"sender"`
	Receiver       string `toml:"receiver"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WebhookConfig holds HTTP sink settings. An empty URL disables the sink.
type WebhookConfig struct {
	URL            string `toml:"url,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MQTTConfig holds MQTT sink settings. An empty Broker disables the sink.
type MQTTConfig struct {
	Broker   string `toml:"broker,omitempty"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id,omitempty"`
}

// ActivityLogConfig holds CSV activity log settings.
type ActivityLogConfig struct {
	Enabled bool `toml:"enabled"`
	// File is the CSV path; relative paths are resolved against the data
	// directory. Empty means activity.<identity>.csv.
	File string `toml:"file,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Enabled writes the log file; when false only console output remains.
	Enabled bool `toml:"enabled"`
	// Console tees log output to stderr.
	Console bool `toml:"console"`
	// AliveIntervalHours is how often an alive check line is logged while
	// the identity is offline. 0 disables it.
	AliveIntervalHours int `toml:"alive_interval_hours"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	// Listen is the host:port for /metrics. Empty disables the endpoint.
	Listen string `toml:"listen,omitempty"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		API: APIConfig{
			PresenceURL:    DefaultPresenceURL,
			ProfileURL:     DefaultProfileURL,
			TimeoutSeconds: 20,
			RetryMax:       2,
		},
		Polling: PollingConfig{
			OnlineIntervalSeconds:   60,
			OfflineIntervalSeconds:  150,
			IntervalStepSeconds:     30,
			OfflineInterruptSeconds: 420,
		},
		Presence: PresenceConfig{
			IgnoreGames: []string{"Home"},
		},
		Notify: NotifyConfig{
			Errors: true,
			Email: EmailConfig{
				SMTPPort:       587,
				StartTLS:       true,
				TimeoutSeconds: 15,
			},
			Webhook: WebhookConfig{
				TimeoutSeconds: 15,
			},
			MQTT: MQTTConfig{
				Topic: "presencewatch/{identity}",
			},
		},
		ActivityLog: ActivityLogConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:              "info",
			MaxSizeMB:          10,
			Enabled:            true,
			Console:            false,
			AliveIntervalHours: 6,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
// It differs from the defaults only in showing a placeholder identity.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Identity.Gamertag = "Major Nelson"
	return cfg
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	return LoadFile(filepath.Join(dataDir, paths.ConfigFile))
}

// LoadFile reads and parses the configuration file at path, applying
// migrations and validation. A missing file yields DefaultConfig.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)

	shouldMigrate := version != migrate.Config.CurrentVersion
	if shouldMigrate {
		if backupErr := os.WriteFile(path+".bak", data, 0o600); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	if migrate.Config.HasDev() {
		var devErr error
		data, devErr = migrate.Config.RunDev(data)
		if devErr != nil {
			return nil, fmt.Errorf("apply dev transforms: %w", devErr)
		}
		shouldMigrate = true
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if shouldMigrate {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Parse decodes TOML over DefaultConfig and validates the result. It does
// not run migrations.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write. The file
// may hold SMTP credentials, so it is kept private to the owner.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o600)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	if c.Log.AliveIntervalHours < 0 {
		return fmt.Errorf("log.alive_interval_hours must be >= 0, got %d", c.Log.AliveIntervalHours)
	}

	if c.Polling.OnlineIntervalSeconds <= 0 {
		return fmt.Errorf("online_interval_seconds must be > 0, got %d", c.Polling.OnlineIntervalSeconds)
	}
	if c.Polling.OfflineIntervalSeconds <= 0 {
		return fmt.Errorf("offline_interval_seconds must be > 0, got %d", c.Polling.OfflineIntervalSeconds)
	}
	if c.Polling.IntervalStepSeconds <= 0 {
		return fmt.Errorf("interval_step_seconds must be > 0, got %d", c.Polling.IntervalStepSeconds)
	}
	if c.Polling.OfflineInterruptSeconds <= 0 {
		return fmt.Errorf("offline_interrupt_seconds must be > 0, got %d", c.Polling.OfflineInterruptSeconds)
	}

	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0, got %d", c.API.TimeoutSeconds)
	}
	if c.API.RetryMax < 0 {
		return fmt.Errorf("api.retry_max must be >= 0, got %d", c.API.RetryMax)
	}
	if !strings.Contains(c.API.PresenceURL, "{xuid}") {
		return fmt.Errorf("api.presence_url %q must contain {xuid}", c.API.PresenceURL)
	}
	if !strings.Contains(c.API.ProfileURL, "{gamertag}") {
		return fmt.Errorf("api.profile_url %q must contain {gamertag}", c.API.ProfileURL)
	}

	for code, name := range c.Presence.Aliases {
		switch strings.ToLower(name) {
		case "online", "away", "offline", "unknown":
		default:
			return fmt.Errorf("invalid presence.aliases[%q] = %q: must be online, away, offline, or unknown", code, name)
		}
	}
	for _, pattern := range c.Presence.IgnoreGames {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid presence.ignore_games pattern %q", pattern)
		}
	}

	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

// validate checks the enabled notification sinks.
func (n *NotifyConfig) validate() error {
	if e := n.Email; e.Enabled {
		if e.SMTPHost == "" || e.Sender == "" || e.Receiver == "" {
			return fmt.Errorf("notify.email requires smtp_host, sender, and receiver when enabled")
		}
		if e.SMTPPort <= 0 || e.SMTPPort > 65535 {
			return fmt.Errorf("notify.email.smtp_port must be 1-65535, got %d", e.SMTPPort)
		}
	}
	if n.Email.TimeoutSeconds <= 0 {
		return fmt.Errorf("notify.email.timeout_seconds must be > 0, got %d", n.Email.TimeoutSeconds)
	}

	if n.Webhook.URL != "" {
		u, err := url.Parse(n.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid notify.webhook.url %q: must be an http or https URL", n.Webhook.URL)
		}
	}
	if n.Webhook.TimeoutSeconds <= 0 {
		return fmt.Errorf("notify.webhook.timeout_seconds must be > 0, got %d", n.Webhook.TimeoutSeconds)
	}

	if n.MQTT.Broker != "" && n.MQTT.Topic == "" {
		return fmt.Errorf("notify.mqtt.topic is required when broker is set")
	}
	return nil
}

// ///////////////////////////////////////////////
// Derived Values
// ///////////////////////////////////////////////

// IdentityName returns the name used for per-identity files and
// notifications: the gamertag, or the XUID when no gamertag is set.
func (c *Config) IdentityName() string {
	if c.Identity.Gamertag != "" {
		return c.Identity.Gamertag
	}
	return c.Identity.XUID
}

// Aliases returns the built-in presence aliases merged with the configured
// overrides. Keys are lowercased.
func (c *Config) Aliases() map[string]presence.State {
	out := maps.Clone(presence.DefaultAliases)
	for code, name := range c.Presence.Aliases {
		out[strings.ToLower(strings.TrimSpace(code))] = presence.ParseState(name)
	}
	return out
}

// Normalizer builds the snapshot normalizer for this configuration.
func (c *Config) Normalizer() presence.Normalizer {
	return presence.Normalizer{
		Aliases:     c.Aliases(),
		IgnoreGames: c.Presence.IgnoreGames,
	}
}

// OnlineInterval returns the poll interval used while active.
func (c *Config) OnlineInterval() time.Duration {
	return seconds(c.Polling.OnlineIntervalSeconds)
}

// OfflineInterval returns the poll interval used while offline.
func (c *Config) OfflineInterval() time.Duration {
	return seconds(c.Polling.OfflineIntervalSeconds)
}

// IntervalStep returns the runtime interval adjustment step.
func (c *Config) IntervalStep() time.Duration {
	return seconds(c.Polling.IntervalStepSeconds)
}

// OfflineInterrupt returns the interruption tolerance window.
func (c *Config) OfflineInterrupt() time.Duration {
	return seconds(c.Polling.OfflineInterruptSeconds)
}

// APITimeout returns the per-poll timeout.
func (c *Config) APITimeout() time.Duration {
	return seconds(c.API.TimeoutSeconds)
}

// EmailTimeout returns the SMTP delivery timeout.
func (c *Config) EmailTimeout() time.Duration {
	return seconds(c.Notify.Email.TimeoutSeconds)
}

// WebhookTimeout returns the webhook delivery timeout.
func (c *Config) WebhookTimeout() time.Duration {
	return seconds(c.Notify.Webhook.TimeoutSeconds)
}

// AliveInterval returns the alive check interval, or 0 when disabled.
func (c *Config) AliveInterval() time.Duration {
	return time.Duration(c.Log.AliveIntervalHours) * time.Hour
}

// MQTTTopic returns the MQTT topic with {identity} substituted by the
// identity slug.
func (c *Config) MQTTTopic() string {
	return strings.ReplaceAll(c.Notify.MQTT.Topic, "{identity}", paths.Slug(c.IdentityName()))
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
