// Package config provides loading and defaults for the controller settings.
//
// Settings live in podmpd.toml next to the daemon's own mpd.conf. They name
// the external binaries, the control endpoint, the startup and reply timeouts,
// and the optional library watcher and stream probe. The daemon's mpd.conf is
// not handled here; see the bootstrap package.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/podmpd/internal/atomicfile"
	"tools.zach/dev/podmpd/internal/migrate"
)

// Daemon defaults, matching the port and bind address written into mpd.conf.
const (
	DefaultBinary   = "/usr/bin/mpd"
	DefaultIfconfig = "/usr/sbin/ifconfig"
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 6600
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level controller configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Daemon holds process and control-channel settings.
	Daemon DaemonConfig `toml:"daemon"`
	// Log holds controller logging settings.
	Log LogConfig `toml:"log"`
	// Library holds the music directory watcher settings.
	Library LibraryConfig `toml:"library"`
	// Streams holds settings for probing radio stream URLs.
	Streams StreamsConfig `toml:"streams"`
}

// DaemonConfig holds process and control-channel settings.
type DaemonConfig struct {
	// Binary is the daemon executable, invoked as `<binary> <mpd.conf>`.
	Binary string `toml:"binary"`
	// Ifconfig is the interface configuration tool used for loopback bring-up.
	Ifconfig string `toml:"ifconfig"`
	// Host is the default control host when MPD_HOST is unset.
	Host string `toml:"host"`
	// Port is the default control port when MPD_PORT is unset.
	Port int `toml:"port"`
	// SpawnTimeoutSeconds bounds the wait for the launcher process to detach.
	SpawnTimeoutSeconds int `toml:"spawn_timeout_seconds"`
	// ReadyTimeoutSeconds bounds the readiness poll after spawning.
	ReadyTimeoutSeconds int `toml:"ready_timeout_seconds"`
	// ReadyInitialBackoffMS is the first delay between readiness attempts.
	ReadyInitialBackoffMS int `toml:"ready_initial_backoff_ms"`
	// ReadyMaxBackoffMS caps the doubling delay between readiness attempts.
	ReadyMaxBackoffMS int `toml:"ready_max_backoff_ms"`
	// ReplyTimeoutMS is how long a command waits for reply bytes.
	ReplyTimeoutMS int `toml:"reply_timeout_ms"`
	// WaitForPIDFile makes startup wait for the daemon's pid file before
	// polling the control port.
	WaitForPIDFile bool `toml:"wait_for_pid_file"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// LibraryConfig holds the music directory watcher settings.
type LibraryConfig struct {
	// AutoUpdate requests a database update when matching files change.
	AutoUpdate bool `toml:"auto_update"`
	// Patterns are doublestar globs relative to the music directory.
	Patterns []string `toml:"patterns"`
	// DebounceSeconds coalesces bursts of changes into one update.
	DebounceSeconds int `toml:"debounce_seconds"`
}

// StreamsConfig holds settings for probing stream URLs before queueing.
type StreamsConfig struct {
	// ProbeTimeoutSeconds bounds a single HTTP probe attempt.
	ProbeTimeoutSeconds int `toml:"probe_timeout_seconds"`
	// RetryMax is the number of retries after a failed probe attempt.
	RetryMax int `toml:"retry_max"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Daemon: DaemonConfig{
			Binary:                DefaultBinary,
			Ifconfig:              DefaultIfconfig,
			Host:                  DefaultHost,
			Port:                  DefaultPort,
			SpawnTimeoutSeconds:   10,
			ReadyTimeoutSeconds:   15,
			ReadyInitialBackoffMS: 50,
			ReadyMaxBackoffMS:     1000,
			ReplyTimeoutMS:        1000,
			WaitForPIDFile:        true,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 1,
		},
		Library: LibraryConfig{
			AutoUpdate:      false,
			Patterns:        []string{"**/*.mp3", "**/*.flac", "**/*.ogg", "**/*.m4a", "**/*.wav"},
			DebounceSeconds: 5,
		},
		Streams: StreamsConfig{
			ProbeTimeoutSeconds: 5,
			RetryMax:            2,
		},
	}
}

// ExampleConfig returns the Config written to podmpd.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

// SpawnTimeout returns SpawnTimeoutSeconds as a duration.
func (d DaemonConfig) SpawnTimeout() time.Duration {
	return time.Duration(d.SpawnTimeoutSeconds) * time.Second
}

// ReadyTimeout returns ReadyTimeoutSeconds as a duration.
func (d DaemonConfig) ReadyTimeout() time.Duration {
	return time.Duration(d.ReadyTimeoutSeconds) * time.Second
}

// ReadyBackoff returns the initial and maximum readiness backoff.
func (d DaemonConfig) ReadyBackoff() (initial, max time.Duration) {
	return time.Duration(d.ReadyInitialBackoffMS) * time.Millisecond,
		time.Duration(d.ReadyMaxBackoffMS) * time.Millisecond
}

// ReplyTimeout returns ReplyTimeoutMS as a duration.
func (d DaemonConfig) ReplyTimeout() time.Duration {
	return time.Duration(d.ReplyTimeoutMS) * time.Millisecond
}

// Debounce returns DebounceSeconds as a duration.
func (l LibraryConfig) Debounce() time.Duration {
	return time.Duration(l.DebounceSeconds) * time.Second
}

// ProbeTimeout returns ProbeTimeoutSeconds as a duration.
func (s StreamsConfig) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSeconds) * time.Second
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

// Load reads and parses the configuration file at path.
// If the file doesn't exist, returns DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	migrated := migrate.Config.NeedsMigration(version)
	if migrated {
		if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
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
	d := c.Daemon
	if strings.TrimSpace(d.Binary) == "" {
		return fmt.Errorf("daemon.binary must not be empty")
	}
	if strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("daemon.host must not be empty")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("daemon.port must be in 1..65535, got %d", d.Port)
	}
	if d.SpawnTimeoutSeconds <= 0 {
		return fmt.Errorf("spawn_timeout_seconds must be > 0, got %d", d.SpawnTimeoutSeconds)
	}
	if d.ReadyTimeoutSeconds <= 0 {
		return fmt.Errorf("ready_timeout_seconds must be > 0, got %d", d.ReadyTimeoutSeconds)
	}
	if d.ReadyInitialBackoffMS <= 0 {
		return fmt.Errorf("ready_initial_backoff_ms must be > 0, got %d", d.ReadyInitialBackoffMS)
	}
	if d.ReadyMaxBackoffMS < d.ReadyInitialBackoffMS {
		return fmt.Errorf("ready_max_backoff_ms (%d) must be >= ready_initial_backoff_ms (%d)", d.ReadyMaxBackoffMS, d.ReadyInitialBackoffMS)
	}
	if d.ReplyTimeoutMS <= 0 {
		return fmt.Errorf("reply_timeout_ms must be > 0, got %d", d.ReplyTimeoutMS)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	for _, p := range c.Library.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid library pattern %q", p)
		}
	}
	if c.Library.DebounceSeconds < 0 {
		return fmt.Errorf("library.debounce_seconds must be >= 0, got %d", c.Library.DebounceSeconds)
	}

	if c.Streams.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("streams.probe_timeout_seconds must be > 0, got %d", c.Streams.ProbeTimeoutSeconds)
	}
	if c.Streams.RetryMax < 0 {
		return fmt.Errorf("streams.retry_max must be >= 0, got %d", c.Streams.RetryMax)
	}
	return nil
}
