package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/swarmsched/internal/history"
	"github.com/marcus/swarmsched/internal/logging"
)

var statusOutcomesFlag int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest scheduler snapshot and recent task outcomes",
	Long: `Show the most recent persisted metrics snapshot and recent terminal
task outcomes from the history database.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusOutcomesFlag, "outcomes", "n", 10, "Number of recent outcomes to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := logging.ExpandPath(cfg.History.Path)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No history yet. Run 'swarmsched run' first.")
		return nil
	}

	store, err := history.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = store.Close() }()

	snap, err := store.LatestSnapshot()
	if err != nil {
		return fmt.Errorf("latest snapshot: %w", err)
	}
	if snap == nil {
		fmt.Println("No snapshots recorded yet.")
	} else {
		printSnapshot(snap)
	}

	outcomes, err := store.RecentOutcomes(statusOutcomesFlag)
	if err != nil {
		return fmt.Errorf("recent outcomes: %w", err)
	}
	if len(outcomes) > 0 {
		fmt.Println()
		printOutcomes(outcomes)
	}
	return nil
}

func printSnapshot(snap *history.Snapshot) {
	fmt.Printf("Snapshot taken: %s\n", snap.TakenAt.Local().Format(time.RFC1123))
	fmt.Printf("Queue:          %d / %d (%s pressure)\n", snap.QueueDepth, snap.QueueCapacity, snap.Pressure)
	fmt.Printf("Scheduled:      %d\n", snap.TasksScheduled)
	fmt.Printf("Completed:      %d\n", snap.TasksCompleted)
	fmt.Printf("Failed:         %d\n", snap.TasksFailed)
	fmt.Printf("Stolen:         %d\n", snap.TasksStolen)
	fmt.Printf("Avg wait:       %s\n", snap.AverageWait.Round(time.Millisecond))
	fmt.Printf("Avg decision:   %s\n", snap.AverageDecision.Round(time.Microsecond))
	fmt.Printf("Throughput:     %.2f/s\n", snap.Throughput)
}

func printOutcomes(outcomes []history.Outcome) {
	fmt.Println("Recent outcomes:")
	for _, o := range outcomes {
		mark := "+"
		if o.Status == "failed" {
			mark = "x"
		}
		line := fmt.Sprintf("  %s %s %-9s %-8s agent=%s duration=%s",
			mark, o.FinishedAt.Local().Format("15:04:05"), o.Status, o.Priority, o.AgentID,
			o.Duration.Round(time.Millisecond))
		if o.Retries > 0 {
			line += fmt.Sprintf(" retries=%d", o.Retries)
		}
		if o.Error != "" {
			line += " error=" + o.Error
		}
		fmt.Println(line)
	}
}
