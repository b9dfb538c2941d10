// Package config handles loading and validating swarmsched configuration.
// Supports YAML config files and SWARMSCHED_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all swarmsched configuration.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	History   HistoryConfig   `mapstructure:"history"`
	Fleet     FleetConfig     `mapstructure:"fleet"`
}

// SchedulerConfig tunes the adaptive scheduler core.
type SchedulerConfig struct {
	Strategy                  string  `mapstructure:"strategy"`
	MaxQueueDepth             int     `mapstructure:"max_queue_depth"`
	HighPressureThreshold     float64 `mapstructure:"high_pressure_threshold"`
	CriticalPressureThreshold float64 `mapstructure:"critical_pressure_threshold"`
	EnableWorkStealing        bool    `mapstructure:"enable_work_stealing"`
	WorkStealingThreshold     float64 `mapstructure:"work_stealing_threshold"`
	TickInterval              string  `mapstructure:"tick_interval"`
	MaxRetries                int     `mapstructure:"max_retries"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Path          string `mapstructure:"path"`
	Format        string `mapstructure:"format"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// HistoryConfig controls the outcome/metrics history database.
type HistoryConfig struct {
	Path          string `mapstructure:"path"`
	SnapshotCron  string `mapstructure:"snapshot_cron"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// FleetConfig parameterizes the simulated agent fleet used by `run`.
type FleetConfig struct {
	Agents      int     `mapstructure:"agents"`
	FailureRate float64 `mapstructure:"failure_rate"`
	SpeedFactor float64 `mapstructure:"speed_factor"`
}

// DefaultDataDir returns the swarmsched data directory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "swarmsched")
}

// Load reads configuration from swarmsched.yaml (cwd, then
// ~/.config/swarmsched) and the environment. Missing files are fine;
// defaults cover every field.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from an explicit file path, or from the
// default search paths when path is empty.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("swarmsched")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "swarmsched"))
		}
	}

	v.SetEnvPrefix("SWARMSCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.strategy", "adaptive")
	v.SetDefault("scheduler.max_queue_depth", 1000)
	v.SetDefault("scheduler.high_pressure_threshold", 0.7)
	v.SetDefault("scheduler.critical_pressure_threshold", 0.9)
	v.SetDefault("scheduler.enable_work_stealing", true)
	v.SetDefault("scheduler.work_stealing_threshold", 0.3)
	v.SetDefault("scheduler.tick_interval", "100ms")
	v.SetDefault("scheduler.max_retries", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", filepath.Join(DefaultDataDir(), "logs"))
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.retention_days", 7)

	v.SetDefault("history.path", filepath.Join(DefaultDataDir(), "history.db"))
	v.SetDefault("history.snapshot_cron", "@every 1m")
	v.SetDefault("history.retention_days", 14)

	v.SetDefault("fleet.agents", 4)
	v.SetDefault("fleet.failure_rate", 0.1)
	v.SetDefault("fleet.speed_factor", 1.0)
}

// Validate checks field ranges that would otherwise surface as confusing
// runtime behavior.
func (c *Config) Validate() error {
	switch c.Scheduler.Strategy {
	case "round-robin", "least-loaded", "capability-match", "performance-based", "adaptive":
	default:
		return fmt.Errorf("unknown scheduler strategy %q", c.Scheduler.Strategy)
	}
	if c.Scheduler.MaxQueueDepth <= 0 {
		return fmt.Errorf("scheduler max_queue_depth must be positive, got %d", c.Scheduler.MaxQueueDepth)
	}
	if c.Scheduler.HighPressureThreshold <= 0 || c.Scheduler.HighPressureThreshold > 1 {
		return fmt.Errorf("scheduler high_pressure_threshold must be in (0,1], got %v", c.Scheduler.HighPressureThreshold)
	}
	if c.Scheduler.CriticalPressureThreshold < c.Scheduler.HighPressureThreshold || c.Scheduler.CriticalPressureThreshold > 1 {
		return fmt.Errorf("scheduler critical_pressure_threshold must be in [high,1], got %v", c.Scheduler.CriticalPressureThreshold)
	}
	if _, err := time.ParseDuration(c.Scheduler.TickInterval); err != nil {
		return fmt.Errorf("scheduler tick_interval: %w", err)
	}
	if c.Fleet.FailureRate < 0 || c.Fleet.FailureRate > 1 {
		return fmt.Errorf("fleet failure_rate must be in [0,1], got %v", c.Fleet.FailureRate)
	}
	return nil
}

// TickIntervalDuration returns the parsed scheduler tick interval.
// Validate has already checked the format.
func (c *SchedulerConfig) TickIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.TickInterval)
	return d
}
