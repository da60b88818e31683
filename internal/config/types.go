// Package config loads and watches the busd configuration file.
//
// YAML and JSON are both accepted; YAML is coerced to JSON so one strict
// decoder (DisallowUnknownFields) covers both. Durations are Go duration
// strings ("500ms", "5m", "720h").
package config

import (
	"fmt"
	"strings"
	"time"

	"plantmart/internal/flagstore"
	"plantmart/internal/retry"
	"plantmart/pkg/logx"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Store   StoreConfig   `json:"store"`
	Bus     BusConfig     `json:"bus,omitempty"`
	Server  ServerConfig  `json:"server,omitempty"`
	Bridge  BridgeConfig  `json:"bridge,omitempty"`
	Janitor JanitorConfig `json:"janitor,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StoreConfig selects the flag store backend.
type StoreConfig struct {
	Driver      string      `json:"driver,omitempty"` // "sqlite" (default), "file", "memory"
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"`
	Retry       RetryConfig `json:"retry,omitempty"`
}

// RetryConfig tunes the write retry policy.
type RetryConfig struct {
	MaxAttempts int    `json:"max_attempts,omitempty"`
	BaseDelay   string `json:"base_delay,omitempty"`
	MaxDelay    string `json:"max_delay,omitempty"`
}

type BusConfig struct {
	// RecentWindow is how fresh a flag must be for is_recent. Default 5m.
	RecentWindow string `json:"recent_window,omitempty"`
}

// ServerConfig controls the HTTP surface (push ingest + diagnostics +
// bridge endpoint).
type ServerConfig struct {
	Addr             string `json:"addr,omitempty"` // default ":8787"
	IngestRatePerSec int    `json:"ingest_rate_per_sec,omitempty"`
	IngestBurst      int    `json:"ingest_burst,omitempty"`

	// DebugPprof mounts the profiler under /debug. Keep the listen address
	// on loopback when enabling it.
	DebugPprof bool `json:"debug_pprof,omitempty"`
}

type BridgeConfig struct {
	Enabled        *bool `json:"enabled,omitempty"` // default true
	SendRatePerSec int   `json:"send_rate_per_sec,omitempty"`
}

// JanitorConfig controls the scheduled prune of stale flag records.
type JanitorConfig struct {
	Enabled   bool   `json:"enabled,omitempty"`
	Schedule  string `json:"schedule,omitempty"`  // cron spec, default "0 3 * * *"
	Retention string `json:"retention,omitempty"` // default "720h"
}

func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Store:   StoreConfig{Driver: "sqlite", Path: "./data/flags.db"},
		Server:  ServerConfig{Addr: ":8787"},
	}
}

// Validate checks every parseable field so a bad config is rejected before
// commit, not at first use.
func (c *Config) Validate() error {
	for _, f := range []struct{ path, raw string }{
		{"store.busy_timeout", c.Store.BusyTimeout},
		{"store.retry.base_delay", c.Store.Retry.BaseDelay},
		{"store.retry.max_delay", c.Store.Retry.MaxDelay},
		{"bus.recent_window", c.Bus.RecentWindow},
		{"janitor.retention", c.Janitor.Retention},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	switch d := strings.ToLower(strings.TrimSpace(c.Store.Driver)); d {
	case "", "sqlite", "sqlite3", "file", "memory":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", d)
	}
	if d := strings.ToLower(strings.TrimSpace(c.Store.Driver)); d != "memory" && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
	}
	if c.Store.Retry.MaxAttempts < 0 {
		return fmt.Errorf("store.retry.max_attempts must be >= 0")
	}
	return nil
}

// ---- effective settings ----

func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

func (c *Config) StoreConfig() (flagstore.Config, error) {
	bt, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout)
	if err != nil {
		return flagstore.Config{}, err
	}
	return flagstore.Config{
		Driver:      c.Store.Driver,
		Path:        c.Store.Path,
		BusyTimeout: bt,
	}, nil
}

func (c *Config) RetryPolicy() (retry.Policy, error) {
	base, err := ParseDurationField("store.retry.base_delay", c.Store.Retry.BaseDelay)
	if err != nil {
		return retry.Policy{}, err
	}
	maxD, err := ParseDurationField("store.retry.max_delay", c.Store.Retry.MaxDelay)
	if err != nil {
		return retry.Policy{}, err
	}
	return retry.Policy{MaxAttempts: c.Store.Retry.MaxAttempts, BaseDelay: base, MaxDelay: maxD}, nil
}

func (c *Config) RecentWindow() (time.Duration, error) {
	return ParseDurationOrDefault("bus.recent_window", c.Bus.RecentWindow, 5*time.Minute)
}

func (c *Config) Retention() (time.Duration, error) {
	return ParseDurationOrDefault("janitor.retention", c.Janitor.Retention, 30*24*time.Hour)
}

func (c *Config) ServerAddr() string {
	if a := strings.TrimSpace(c.Server.Addr); a != "" {
		return a
	}
	return ":8787"
}

func (c *Config) JanitorSchedule() string {
	if s := strings.TrimSpace(c.Janitor.Schedule); s != "" {
		return s
	}
	return "0 3 * * *"
}

func (c *Config) BridgeEnabled() bool {
	if c.Bridge.Enabled == nil {
		return true
	}
	return *c.Bridge.Enabled
}
