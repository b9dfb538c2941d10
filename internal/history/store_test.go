package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRunsMigrations(t *testing.T) {
	store := openTestStore(t)

	version, err := currentVersion(store.sql)
	if err != nil {
		t.Fatalf("currentVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	_ = store.Close()
}

func TestRecordAndReadOutcomes(t *testing.T) {
	store := openTestStore(t)

	outcomes := []Outcome{
		{TaskID: "t1", Priority: "high", AgentID: "agent-1", Status: "completed", Duration: 120 * time.Millisecond, FinishedAt: time.Now().Add(-2 * time.Minute)},
		{TaskID: "t2", Priority: "low", AgentID: "agent-2", Status: "failed", Retries: 3, Error: "boom", FinishedAt: time.Now().Add(-time.Minute)},
		{TaskID: "t3", Priority: "medium", AgentID: "agent-1", Status: "completed", Duration: 80 * time.Millisecond, FinishedAt: time.Now()},
	}
	for _, o := range outcomes {
		if err := store.RecordOutcome(o); err != nil {
			t.Fatalf("RecordOutcome %s: %v", o.TaskID, err)
		}
	}

	got, err := store.RecentOutcomes(2)
	if err != nil {
		t.Fatalf("RecentOutcomes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].TaskID != "t3" || got[1].TaskID != "t2" {
		t.Errorf("order = %s, %s; want t3, t2", got[0].TaskID, got[1].TaskID)
	}
	if got[1].Status != "failed" || got[1].Retries != 3 || got[1].Error != "boom" {
		t.Errorf("t2 = %+v", got[1])
	}
	if got[0].Duration != 80*time.Millisecond {
		t.Errorf("t3 duration = %v, want 80ms", got[0].Duration)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if snap, err := store.LatestSnapshot(); err != nil || snap != nil {
		t.Fatalf("LatestSnapshot on empty store = %v, %v; want nil, nil", snap, err)
	}

	want := Snapshot{
		QueueDepth:      42,
		QueueCapacity:   1000,
		Pressure:        "medium",
		TasksScheduled:  100,
		TasksCompleted:  90,
		TasksFailed:     5,
		TasksStolen:     3,
		AverageWait:     250 * time.Millisecond,
		AverageDecision: 40 * time.Microsecond,
		Throughput:      12.5,
	}
	if err := store.RecordSnapshot(want); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}
	// An older snapshot must not displace the latest.
	older := want
	older.QueueDepth = 7
	older.TakenAt = time.Now().Add(-time.Hour)
	if err := store.RecordSnapshot(older); err != nil {
		t.Fatal(err)
	}

	got, err := store.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("LatestSnapshot = nil")
	}
	if got.QueueDepth != 42 || got.Pressure != "medium" || got.TasksCompleted != 90 {
		t.Errorf("snapshot = %+v", got)
	}
	if got.AverageWait != 250*time.Millisecond || got.AverageDecision != 40*time.Microsecond {
		t.Errorf("averages = %v, %v", got.AverageWait, got.AverageDecision)
	}
	if got.Throughput != 12.5 {
		t.Errorf("Throughput = %v, want 12.5", got.Throughput)
	}
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)

	old := time.Now().AddDate(0, 0, -30)
	recent := time.Now()

	if err := store.RecordOutcome(Outcome{TaskID: "old", Priority: "low", Status: "completed", FinishedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordOutcome(Outcome{TaskID: "new", Priority: "low", Status: "completed", FinishedAt: recent}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordSnapshot(Snapshot{TakenAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordSnapshot(Snapshot{TakenAt: recent}); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.Prune(14)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	outcomes, err := store.RecentOutcomes(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].TaskID != "new" {
		t.Errorf("outcomes after prune = %+v", outcomes)
	}
}
