// Package store provides SQLite-backed storage for raw source records and
// built reports.
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
		Description: "Raw source tables, one per domain",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add reports table for persisted builds",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

// Every timestamp column is Unix nanoseconds and, like every value column,
// nullable: rows are stored exactly as the upstream source returned them.
const migrationV1Up = `
CREATE TABLE IF NOT EXISTS mood_entries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id  TEXT NOT NULL,
    created_at  INTEGER,
    score       REAL,
    note        TEXT
);
CREATE INDEX IF NOT EXISTS idx_mood_subject ON mood_entries(subject_id, created_at);

CREATE TABLE IF NOT EXISTS activities (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id        TEXT NOT NULL,
    created_at        INTEGER,
    type              TEXT,
    duration_minutes  REAL
);
CREATE INDEX IF NOT EXISTS idx_activities_subject ON activities(subject_id, created_at);

CREATE TABLE IF NOT EXISTS journal_entries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id  TEXT NOT NULL,
    created_at  INTEGER,
    content     TEXT,
    mood_tag    TEXT
);
CREATE INDEX IF NOT EXISTS idx_journal_subject ON journal_entries(subject_id, created_at);

CREATE TABLE IF NOT EXISTS conversations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id  TEXT NOT NULL,
    created_at  INTEGER,
    summary     TEXT
);
CREATE INDEX IF NOT EXISTS idx_conversations_subject ON conversations(subject_id, created_at);

CREATE TABLE IF NOT EXISTS assessments (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id    TEXT NOT NULL,
    completed_at  INTEGER,
    type          TEXT,
    score         REAL,
    severity      TEXT
);
CREATE INDEX IF NOT EXISTS idx_assessments_subject ON assessments(subject_id, completed_at);

CREATE TABLE IF NOT EXISTS sleep_entries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id  TEXT NOT NULL,
    date        INTEGER,
    quality     REAL,
    hours       REAL
);
CREATE INDEX IF NOT EXISTS idx_sleep_subject ON sleep_entries(subject_id, date);

CREATE TABLE IF NOT EXISTS goals (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id  TEXT NOT NULL,
    created_at  INTEGER,
    title       TEXT,
    completed   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_goals_subject ON goals(subject_id, created_at);

CREATE TABLE IF NOT EXISTS mini_sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id  TEXT NOT NULL,
    created_at  INTEGER,
    mood        REAL,
    anxiety     REAL,
    energy      REAL
);
CREATE INDEX IF NOT EXISTS idx_mini_sessions_subject ON mini_sessions(subject_id, created_at);

CREATE TABLE IF NOT EXISTS toolkit_sessions (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id        TEXT NOT NULL,
    created_at        INTEGER,
    tool              TEXT,
    duration_minutes  REAL
);
CREATE INDEX IF NOT EXISTS idx_toolkit_subject ON toolkit_sessions(subject_id, created_at);

CREATE TABLE IF NOT EXISTS badges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id  TEXT NOT NULL,
    awarded_at  INTEGER,
    name        TEXT
);
CREATE INDEX IF NOT EXISTS idx_badges_subject ON badges(subject_id, awarded_at);

CREATE TABLE IF NOT EXISTS workshop_registrations (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id     TEXT NOT NULL,
    registered_at  INTEGER,
    title          TEXT
);
CREATE INDEX IF NOT EXISTS idx_workshops_subject ON workshop_registrations(subject_id, registered_at);
`

const migrationV1Down = `
DROP TABLE IF EXISTS workshop_registrations;
DROP TABLE IF EXISTS badges;
DROP TABLE IF EXISTS toolkit_sessions;
DROP TABLE IF EXISTS mini_sessions;
DROP TABLE IF EXISTS goals;
DROP TABLE IF EXISTS sleep_entries;
DROP TABLE IF EXISTS assessments;
DROP TABLE IF EXISTS conversations;
DROP TABLE IF EXISTS journal_entries;
DROP TABLE IF EXISTS activities;
DROP TABLE IF EXISTS mood_entries;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS reports (
    id                TEXT PRIMARY KEY,
    subject_id        TEXT NOT NULL,
    window_start      INTEGER NOT NULL,
    window_end        INTEGER NOT NULL,
    rulebook_version  TEXT NOT NULL,
    summary           TEXT NOT NULL,
    body              BLOB NOT NULL,
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_subject ON reports(subject_id, window_end);
`

const migrationV2Down = `
DROP TABLE IF EXISTS reports;
`

// MigrateDB applies all pending migrations.
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

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
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
	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("rollback migration %d: %w", currentVersion, err)
	}

	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", currentVersion); err != nil {
		tx.Rollback()
		return fmt.Errorf("remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}

	return nil
}

// MigrationStatus describes applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []AppliedMigration
}

// AppliedMigration is one row of schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// GetMigrationStatus returns the current migration status.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{
		LatestVersion: len(migrations),
	}

	rows, err := db.Query("SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		// Table might not exist yet
		status.Pending = migrations
		return status, nil
	}
	defer rows.Close()

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Version, &appliedAt, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAt)
		status.Applied = append(status.Applied, am)
		appliedVersions[am.Version] = true

		if am.Version > status.CurrentVersion {
			status.CurrentVersion = am.Version
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}

	for _, m := range migrations {
		if !appliedVersions[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}

	return status, nil
}

// ValidateSchema checks that all expected tables exist.
func ValidateSchema(db *sql.DB) error {
	required := append([]string{"schema_migrations", "reports"}, rawTables...)

	for _, table := range required {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}

	return nil
}
