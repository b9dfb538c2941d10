package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/swarmsched/internal/config"
	"github.com/marcus/swarmsched/internal/history"
	"github.com/marcus/swarmsched/internal/logging"
	"github.com/marcus/swarmsched/internal/scheduler"
)

func TestSchedulerConfigFrom(t *testing.T) {
	sc := &config.SchedulerConfig{
		Strategy:                  "least-loaded",
		MaxQueueDepth:             64,
		HighPressureThreshold:     0.6,
		CriticalPressureThreshold: 0.85,
		EnableWorkStealing:        true,
		WorkStealingThreshold:     0.25,
		TickInterval:              "50ms",
		MaxRetries:                2,
	}

	got := schedulerConfigFrom(sc)
	if got.Strategy != scheduler.StrategyLeastLoaded {
		t.Errorf("Strategy = %q", got.Strategy)
	}
	if got.MaxQueueDepth != 64 || got.MaxRetries != 2 {
		t.Errorf("config = %+v", got)
	}
	if got.TickInterval != 50*time.Millisecond {
		t.Errorf("TickInterval = %v, want 50ms", got.TickInterval)
	}
	if !got.EnableWorkStealing || got.WorkStealingThreshold != 0.25 {
		t.Errorf("stealing config = %+v", got)
	}
}

func TestOutcomeRecorderPersistsTerminalEvents(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	rec := newOutcomeRecorder(store, logging.Component("test"))

	rec.handle(scheduler.Event{
		Type:     scheduler.EventTaskEnqueued,
		TaskID:   "t1",
		Priority: scheduler.PriorityHigh,
	})
	rec.handle(scheduler.Event{
		Type:    scheduler.EventTaskAssigned,
		TaskID:  "t1",
		AgentID: "agent-1",
	})
	rec.handle(scheduler.Event{
		Type:     scheduler.EventTaskCompleted,
		TaskID:   "t1",
		AgentID:  "agent-1",
		Duration: 150 * time.Millisecond,
		Time:     time.Now(),
	})

	outcomes, err := store.RecentOutcomes(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes))
	}
	o := outcomes[0]
	if o.TaskID != "t1" || o.Status != "completed" || o.Priority != "high" {
		t.Errorf("outcome = %+v", o)
	}
	if o.Duration != 150*time.Millisecond {
		t.Errorf("Duration = %v", o.Duration)
	}

	// Priority cache entry is consumed with the terminal event.
	rec.mu.Lock()
	_, cached := rec.priorities["t1"]
	rec.mu.Unlock()
	if cached {
		t.Error("priority cache not cleared")
	}
}

func TestFormatLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DBG"},
		{"info", "INF"},
		{"warn", "WRN"},
		{"error", "ERR"},
		{"fatal", "FAT"},
		{"x", "X"},
	}
	for _, tt := range tests {
		if got := formatLogLevel(tt.level); got != tt.want {
			t.Errorf("formatLogLevel(%q) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestReadLastLines(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "swarmsched-2026-08-24.log")
	newer := filepath.Join(dir, "swarmsched-2026-08-25.log")
	if err := os.WriteFile(older, []byte("a\nb\nc\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, []byte("d\ne\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// Files are passed newest first; output reads oldest to newest.
	lines := readLastLines([]string{newer, older}, 4)
	want := []string{"b", "c", "d", "e"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
