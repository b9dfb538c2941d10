// Package commands implements the swarmsched CLI commands using cobra.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus/swarmsched/internal/config"
	"github.com/marcus/swarmsched/internal/logging"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "swarmsched",
	Short: "Adaptive task scheduler for agent fleets",
	Long: `Swarmsched schedules tasks across a pool of heterogeneous agents with
backpressure admission control, pluggable assignment strategies, bounded
retries, and work stealing.

Configure in swarmsched.yaml; run 'swarmsched run' to start the scheduler
with a simulated fleet.`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// initLogging initializes the global logger from config.
func initLogging(cfg *config.Config) error {
	return logging.Init(logging.Config{
		Level:         cfg.Logging.Level,
		Path:          cfg.Logging.Path,
		Format:        cfg.Logging.Format,
		RetentionDays: cfg.Logging.RetentionDays,
	})
}
