// Package store provides SQLite-based verdict history for inputsentry.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with verdicts and reasons",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add fired detectors column and summary indexes",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS verdicts (
    id                  TEXT PRIMARY KEY,
    session             TEXT NOT NULL,
    timestamp_ms        INTEGER NOT NULL,
    suspicious          INTEGER NOT NULL,
    confidence          REAL NOT NULL,
    severity            TEXT NOT NULL,
    total_events        INTEGER NOT NULL,
    keyboard_events     INTEGER NOT NULL,
    mouse_events        INTEGER NOT NULL,
    focus_events        INTEGER NOT NULL,
    unique_targets      INTEGER NOT NULL,
    time_span           REAL NOT NULL,
    events_per_second   REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_timestamp ON verdicts(timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_verdicts_session ON verdicts(session, timestamp_ms);

CREATE TABLE IF NOT EXISTS verdict_reasons (
    verdict_id  TEXT NOT NULL REFERENCES verdicts(id) ON DELETE CASCADE,
    ordinal     INTEGER NOT NULL,
    reason      TEXT NOT NULL,
    PRIMARY KEY (verdict_id, ordinal)
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS verdict_reasons;
DROP INDEX IF EXISTS idx_verdicts_session;
DROP INDEX IF EXISTS idx_verdicts_timestamp;
DROP TABLE IF EXISTS verdicts;
`

const migrationV2Up = `
ALTER TABLE verdicts ADD COLUMN fired TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_verdicts_suspicious ON verdicts(suspicious, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_verdicts_severity ON verdicts(severity);
`

const migrationV2Down = `
DROP INDEX IF EXISTS idx_verdicts_severity;
DROP INDEX IF EXISTS idx_verdicts_suspicious;
ALTER TABLE verdicts DROP COLUMN fired;
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= version {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// RollbackMigration rolls back the last applied migration.
func RollbackMigration(db *sql.DB) error {
	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == version {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d not found", version)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("rollback migration %d: %w", version, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", version); err != nil {
		tx.Rollback()
		return fmt.Errorf("remove migration record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied and latest known schema versions.
func SchemaVersion(db *sql.DB) (current, latest int, err error) {
	current, err = currentVersion(db)
	return current, migrations[len(migrations)-1].Version, err
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}
