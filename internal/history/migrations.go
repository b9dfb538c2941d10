package history

import (
	"database/sql"
	"errors"
	"fmt"
)

// migration represents a single schema change.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema: task_outcomes, metrics_snapshots",
		SQL:         migration001SQL,
	},
}

const migration001SQL = `
CREATE TABLE task_outcomes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id     TEXT NOT NULL,
    priority    TEXT NOT NULL,
    agent_id    TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    retries     INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    finished_at DATETIME NOT NULL
);

CREATE TABLE metrics_snapshots (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    queue_depth     INTEGER NOT NULL,
    queue_capacity  INTEGER NOT NULL,
    pressure        TEXT NOT NULL,
    scheduled       INTEGER NOT NULL,
    completed       INTEGER NOT NULL,
    failed          INTEGER NOT NULL,
    stolen          INTEGER NOT NULL,
    avg_wait_ms     INTEGER NOT NULL DEFAULT 0,
    avg_decision_us INTEGER NOT NULL DEFAULT 0,
    throughput      REAL NOT NULL DEFAULT 0,
    taken_at        DATETIME NOT NULL
);

CREATE INDEX idx_outcomes_finished ON task_outcomes(finished_at DESC);
CREATE INDEX idx_outcomes_task ON task_outcomes(task_id);
CREATE INDEX idx_snapshots_taken ON metrics_snapshots(taken_at DESC);
`

// migrate runs all pending migrations inside transactions.
func migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		currentVersion = m.Version
	}

	return nil
}

// currentVersion returns the schema version (0 if no migrations applied).
func currentVersion(db *sql.DB) (int, error) {
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema_version: %w", err)
	}
	return version, nil
}
