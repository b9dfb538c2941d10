package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarmsched.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Scheduler.Strategy != "adaptive" {
		t.Errorf("Strategy = %q, want adaptive", cfg.Scheduler.Strategy)
	}
	if cfg.Scheduler.MaxQueueDepth != 1000 {
		t.Errorf("MaxQueueDepth = %d, want 1000", cfg.Scheduler.MaxQueueDepth)
	}
	if cfg.Scheduler.HighPressureThreshold != 0.7 {
		t.Errorf("HighPressureThreshold = %v, want 0.7", cfg.Scheduler.HighPressureThreshold)
	}
	if !cfg.Scheduler.EnableWorkStealing {
		t.Error("EnableWorkStealing = false, want true")
	}
	if got := cfg.Scheduler.TickIntervalDuration(); got != 100*time.Millisecond {
		t.Errorf("TickIntervalDuration = %v, want 100ms", got)
	}
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Scheduler.MaxRetries)
	}
	if cfg.History.SnapshotCron != "@every 1m" {
		t.Errorf("SnapshotCron = %q", cfg.History.SnapshotCron)
	}
	if cfg.Fleet.Agents != 4 {
		t.Errorf("Fleet.Agents = %d, want 4", cfg.Fleet.Agents)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  strategy: least-loaded
  max_queue_depth: 50
  tick_interval: 250ms
fleet:
  agents: 2
  failure_rate: 0.5
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Scheduler.Strategy != "least-loaded" {
		t.Errorf("Strategy = %q, want least-loaded", cfg.Scheduler.Strategy)
	}
	if cfg.Scheduler.MaxQueueDepth != 50 {
		t.Errorf("MaxQueueDepth = %d, want 50", cfg.Scheduler.MaxQueueDepth)
	}
	if got := cfg.Scheduler.TickIntervalDuration(); got != 250*time.Millisecond {
		t.Errorf("TickIntervalDuration = %v, want 250ms", got)
	}
	if cfg.Fleet.Agents != 2 || cfg.Fleet.FailureRate != 0.5 {
		t.Errorf("Fleet = %+v", cfg.Fleet)
	}
	// Untouched sections keep their defaults.
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Scheduler.MaxRetries)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFrom succeeded for missing explicit file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SWARMSCHED_SCHEDULER_STRATEGY", "round-robin")
	cfg, err := LoadFrom(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Scheduler.Strategy != "round-robin" {
		t.Errorf("Strategy = %q, want round-robin from env", cfg.Scheduler.Strategy)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFrom(writeConfig(t, ""))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"unknown strategy", func(c *Config) { c.Scheduler.Strategy = "psychic" }, true},
		{"zero queue depth", func(c *Config) { c.Scheduler.MaxQueueDepth = 0 }, true},
		{"threshold above one", func(c *Config) { c.Scheduler.HighPressureThreshold = 1.5 }, true},
		{"critical below high", func(c *Config) { c.Scheduler.CriticalPressureThreshold = 0.5 }, true},
		{"bad tick interval", func(c *Config) { c.Scheduler.TickInterval = "soon" }, true},
		{"failure rate above one", func(c *Config) { c.Fleet.FailureRate = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
