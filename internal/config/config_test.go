package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"plantmart/pkg/logx"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
store:
  driver: file
  path: /tmp/flags.journal
  retry:
    max_attempts: 5
    base_delay: 200ms
bus:
  recent_window: 10m
server:
  addr: ":9000"
  ingest_rate_per_sec: 40
janitor:
  enabled: true
  schedule: "0 4 * * *"
  retention: 168h
`)

	cfg, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Store.Driver != "file" || cfg.Store.Path != "/tmp/flags.journal" {
		t.Fatalf("store = %+v", cfg.Store)
	}

	pol, err := cfg.RetryPolicy()
	if err != nil {
		t.Fatalf("RetryPolicy: %v", err)
	}
	if pol.MaxAttempts != 5 || pol.BaseDelay != 200*time.Millisecond {
		t.Fatalf("policy = %+v", pol)
	}

	win, err := cfg.RecentWindow()
	if err != nil || win != 10*time.Minute {
		t.Fatalf("RecentWindow = %v, %v", win, err)
	}
	ret, err := cfg.Retention()
	if err != nil || ret != 168*time.Hour {
		t.Fatalf("Retention = %v, %v", ret, err)
	}
	if cfg.ServerAddr() != ":9000" {
		t.Fatalf("addr = %q", cfg.ServerAddr())
	}
	if cfg.JanitorSchedule() != "0 4 * * *" {
		t.Fatalf("schedule = %q", cfg.JanitorSchedule())
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json",
		`{"store":{"driver":"memory"},"bridge":{"enabled":false}}`)

	cfg, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Store.Driver)
	}
	if cfg.BridgeEnabled() {
		t.Fatal("bridge.enabled=false ignored")
	}
}

func TestDefaultsApplyWhereUnset(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
store:
  driver: memory
`)
	cfg, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q, want default info", cfg.Logging.Level)
	}
	if cfg.ServerAddr() != ":8787" {
		t.Fatalf("addr = %q, want default :8787", cfg.ServerAddr())
	}
	if !cfg.BridgeEnabled() {
		t.Fatal("bridge must default to enabled")
	}
	if cfg.JanitorSchedule() != "0 3 * * *" {
		t.Fatalf("schedule = %q", cfg.JanitorSchedule())
	}
	win, err := cfg.RecentWindow()
	if err != nil || win != 5*time.Minute {
		t.Fatalf("RecentWindow = %v, %v", win, err)
	}
}

func TestParseRejectsBadConfigs(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		file    string
		content string
		errPart string
	}{
		{"unknown field", "config.yaml", "store:\n  driver: memory\nlogging:\n  verbosity: high\n", "unknown field"},
		{"bad duration", "config.yaml", "store:\n  driver: memory\nbus:\n  recent_window: soon\n", "recent_window"},
		{"unknown driver", "config.yaml", "store:\n  driver: redis\n  path: x\n", "unknown driver"},
		{"missing path", "config.yaml", "store:\n  driver: file\n  path: \"\"\n", "store.path"},
		{"negative attempts", "config.yaml", "store:\n  driver: memory\n  retry:\n    max_attempts: -1\n", "max_attempts"},
		{"trailing data", "config.json", `{"store":{"driver":"memory"}}{"extra":1}`, ""},
		{"broken yaml", "config.yaml", "store: [unclosed\n", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(writeConfig(t, tc.file, tc.content))
			if err == nil {
				t.Fatal("Parse accepted a bad config")
			}
			if tc.errPart != "" && !strings.Contains(err.Error(), tc.errPart) {
				t.Fatalf("err = %v, want mention of %q", err, tc.errPart)
			}
		})
	}
}

func TestManagerLoadAndGet(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", "store:\n  driver: memory\n")
	m := NewManager(path, logx.Nop())

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestManagerLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", "store:\n  driver: redis\n  path: x\n")
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err == nil {
		t.Fatal("Load accepted an invalid file")
	}
	if m.Get() != nil {
		t.Fatal("invalid file was committed")
	}
}

func TestWatchPublishesValidatedReloads(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", "store:\n  driver: memory\nlogging:\n  level: info\n")
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx)
	time.Sleep(100 * time.Millisecond) // let the watcher attach

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// An invalid write must be rejected without dropping the committed
	// config; a valid one must be published.
	if err := os.WriteFile(path, []byte("store:\n  driver: redis\n  path: x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	if got := m.Get().Store.Driver; got != "memory" {
		t.Fatalf("driver = %q after invalid reload, want memory kept", got)
	}

	if err := os.WriteFile(path, []byte("store:\n  driver: memory\nlogging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("reloaded level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never published")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", "1500ms")
	if err != nil || d != 1500*time.Millisecond {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("timeout", "fast"); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("bad value: err = %v", err)
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: got %v, %v", d, err)
	}
}
