package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/storyteller/pkg/storyteller"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
game:
  rounds: 12
  players: 3
  win_threshold: 5
  delay: 25ms
  seed: 42
reporter:
  mode: rendezvous
  ack_policy: strict
  shutdown_timeout: 5s
handlers: [json, store, publish]
publish:
  project_id: demo-project
  topic: dice-events
store:
  dsn: postgres://localhost/story
  table: dice_log
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if cfg.Game.Rounds != 12 || cfg.Game.Players != 3 || cfg.Game.WinThreshold != 5 {
		t.Fatalf("expected game overrides to apply: %+v", cfg.Game)
	}
	if cfg.Game.Delay != 25*time.Millisecond || cfg.Game.Seed != 42 {
		t.Fatalf("expected delay and seed overrides: %+v", cfg.Game)
	}
	if cfg.Mode() != storyteller.ModeRendezvous || cfg.AckPolicy() != storyteller.AckStrict {
		t.Fatalf("expected rendezvous/strict, got %s/%s", cfg.Mode(), cfg.AckPolicy())
	}
	if cfg.Reporter.ShutdownTimeout != 5*time.Second {
		t.Fatalf("expected shutdown timeout 5s, got %v", cfg.Reporter.ShutdownTimeout)
	}
	if !cfg.Enabled(HandlerStore) || !cfg.Enabled(HandlerPublish) || cfg.Enabled(HandlerTerminal) {
		t.Fatalf("unexpected handler set %v", cfg.Handlers)
	}
	if cfg.Publish.Timeout != 10*time.Second {
		t.Fatalf("expected default publish timeout, got %v", cfg.Publish.Timeout)
	}
	if cfg.Store.Table != "dice_log" {
		t.Fatalf("expected table override, got %q", cfg.Store.Table)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Game.Rounds != 100 || cfg.Game.Players != 1 || cfg.Game.WinThreshold != 3 {
		t.Fatalf("unexpected game defaults: %+v", cfg.Game)
	}
	if cfg.Mode() != storyteller.ModeFinalize || cfg.AckPolicy() != storyteller.AckTolerant {
		t.Fatalf("unexpected reporter defaults: %+v", cfg.Reporter)
	}
	if len(cfg.Handlers) != 1 || cfg.Handlers[0] != HandlerJSON {
		t.Fatalf("expected json handler by default, got %v", cfg.Handlers)
	}
	if cfg.Store.Table != "story_events" {
		t.Fatalf("unexpected default table %q", cfg.Store.Table)
	}
	if cfg.Server.Listen != ":8080" || cfg.Metrics.Listen != "" {
		t.Fatalf("unexpected listen defaults: server %q metrics %q", cfg.Server.Listen, cfg.Metrics.Listen)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Game:     GameConfig{Rounds: 1, Players: 1, WinThreshold: 3},
		Reporter: ReporterConfig{Mode: "finalize", AckPolicy: "tolerant", ShutdownTimeout: time.Second},
		Handlers: []string{HandlerJSON},
		Store:    StoreConfig{Table: "story_events"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"rounds", func(c *Config) { c.Game.Rounds = 0 }, "game.rounds"},
		{"players", func(c *Config) { c.Game.Players = 0 }, "game.players"},
		{"threshold", func(c *Config) { c.Game.WinThreshold = 7 }, "game.win_threshold"},
		{"delay", func(c *Config) { c.Game.Delay = -time.Second }, "game.delay"},
		{"mode", func(c *Config) { c.Reporter.Mode = "eventually" }, "reporter.mode"},
		{"ack policy", func(c *Config) { c.Reporter.AckPolicy = "lenient" }, "reporter.ack_policy"},
		{"shutdown", func(c *Config) { c.Reporter.ShutdownTimeout = 0 }, "reporter.shutdown_timeout"},
		{"no handlers", func(c *Config) { c.Handlers = nil }, "handlers"},
		{"unknown handler", func(c *Config) { c.Handlers = []string{"fax"} }, "unknown handler"},
		{"publish", func(c *Config) { c.Handlers = []string{HandlerPublish} }, "publish.project_id"},
		{"store dsn", func(c *Config) { c.Handlers = []string{HandlerStore} }, "store.dsn"},
		{"store table", func(c *Config) {
			c.Handlers = []string{HandlerStore}
			c.Store = StoreConfig{DSN: "postgres://x", Table: "events; drop"}
		}, "store.table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Handlers = append([]string(nil), base.Handlers...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
