// Package history persists terminal task outcomes and periodic metrics
// snapshots to SQLite. The scheduler itself holds no durable state; this
// store is observational, feeding the status command and reports.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection.
type Store struct {
	sql  *sql.DB
	path string
}

// Outcome is a terminal task result.
type Outcome struct {
	TaskID     string
	Priority   string
	AgentID    string
	Status     string // "completed" or "failed"
	Retries    int
	Duration   time.Duration
	Error      string
	FinishedAt time.Time
}

// Snapshot is a point-in-time copy of scheduler metrics.
type Snapshot struct {
	QueueDepth      int
	QueueCapacity   int
	Pressure        string
	TasksScheduled  int64
	TasksCompleted  int64
	TasksFailed     int64
	TasksStolen     int64
	AverageWait     time.Duration
	AverageDecision time.Duration
	Throughput      float64
	TakenAt         time.Time
}

// Open opens or creates the history database, applies pragmas, and runs
// migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	if err := applyPragmas(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Store{sql: sqlDB, path: dbPath}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// RecordOutcome inserts a terminal task result.
func (s *Store) RecordOutcome(o Outcome) error {
	if o.FinishedAt.IsZero() {
		o.FinishedAt = time.Now()
	}
	_, err := s.sql.Exec(`
		INSERT INTO task_outcomes (task_id, priority, agent_id, status, retries, duration_ms, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.TaskID, o.Priority, o.AgentID, o.Status, o.Retries,
		o.Duration.Milliseconds(), o.Error, o.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", o.TaskID, err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (s *Store) RecentOutcomes(limit int) ([]Outcome, error) {
	rows, err := s.sql.Query(`
		SELECT task_id, priority, agent_id, status, retries, duration_ms, error, finished_at
		FROM task_outcomes ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var durationMs int64
		if err := rows.Scan(&o.TaskID, &o.Priority, &o.AgentID, &o.Status, &o.Retries, &durationMs, &o.Error, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Duration = time.Duration(durationMs) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// RecordSnapshot inserts a metrics snapshot.
func (s *Store) RecordSnapshot(snap Snapshot) error {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	_, err := s.sql.Exec(`
		INSERT INTO metrics_snapshots
			(queue_depth, queue_capacity, pressure, scheduled, completed, failed, stolen,
			 avg_wait_ms, avg_decision_us, throughput, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.QueueDepth, snap.QueueCapacity, snap.Pressure,
		snap.TasksScheduled, snap.TasksCompleted, snap.TasksFailed, snap.TasksStolen,
		snap.AverageWait.Milliseconds(), snap.AverageDecision.Microseconds(),
		snap.Throughput, snap.TakenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent metrics snapshot, or nil when the
// table is empty.
func (s *Store) LatestSnapshot() (*Snapshot, error) {
	row := s.sql.QueryRow(`
		SELECT queue_depth, queue_capacity, pressure, scheduled, completed, failed, stolen,
		       avg_wait_ms, avg_decision_us, throughput, taken_at
		FROM metrics_snapshots ORDER BY taken_at DESC, id DESC LIMIT 1`)

	var snap Snapshot
	var waitMs, decisionUs int64
	err := row.Scan(&snap.QueueDepth, &snap.QueueCapacity, &snap.Pressure,
		&snap.TasksScheduled, &snap.TasksCompleted, &snap.TasksFailed, &snap.TasksStolen,
		&waitMs, &decisionUs, &snap.Throughput, &snap.TakenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	snap.AverageWait = time.Duration(waitMs) * time.Millisecond
	snap.AverageDecision = time.Duration(decisionUs) * time.Microsecond
	return &snap, nil
}

// Prune deletes outcomes and snapshots older than retentionDays. Returns
// the number of rows removed.
func (s *Store) Prune(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC()

	var total int64
	res, err := s.sql.Exec(`DELETE FROM task_outcomes WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning outcomes: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.sql.Exec(`DELETE FROM metrics_snapshots WHERE taken_at < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("pruning snapshots: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}
