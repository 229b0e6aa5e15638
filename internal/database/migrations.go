package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// migration upgrades the schema by one version inside a transaction
type migration struct {
	version int
	name    string
	up      func(tx *sqlx.Tx, driver string) error
}

var migrations = []migration{
	{version: 1, name: "base cache and queue schema", up: migrateBaseSchema},
	{version: 2, name: "queue idempotency keys and expired cache purge", up: migrateIdempotencyKeys},
}

// SchemaVersion is the version Migrate brings the database to
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies every migration newer than the stored schema version
func (db *DB) Migrate() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := db.CurrentVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.applyMigration(m, current); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.name, err)
		}
		current = m.version
	}
	return nil
}

// CurrentVersion returns the stored schema version, 0 for a fresh database
func (db *DB) CurrentVersion() (int, error) {
	var version int
	err := db.Get(&version, `SELECT version FROM schema_version LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (db *DB) applyMigration(m migration, previous int) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(tx, db.DriverName()); err != nil {
		return err
	}

	if previous == 0 {
		_, err = tx.Exec(tx.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version)
	} else {
		_, err = tx.Exec(tx.Rebind(`UPDATE schema_version SET version = ?`), m.version)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func migrateBaseSchema(tx *sqlx.Tx, driver string) error {
	queueID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == DriverPostgres {
		queueID = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS cached_exercises (
			exercise_id BIGINT NOT NULL,
			student_id BIGINT NOT NULL,
			competence_id BIGINT NOT NULL DEFAULT 0,
			level TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			cached_at BIGINT NOT NULL,
			cache_until BIGINT NOT NULL,
			next_review_date BIGINT,
			easiness_factor DOUBLE PRECISION,
			repetition_number INTEGER,
			priority TEXT,
			PRIMARY KEY (exercise_id, student_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_exercises_competence ON cached_exercises (competence_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_exercises_level ON cached_exercises (level)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_exercises_student ON cached_exercises (student_id)`,
		`CREATE TABLE IF NOT EXISTS cached_competences (
			id BIGINT PRIMARY KEY,
			payload TEXT NOT NULL,
			cached_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cached_progress (
			id BIGINT PRIMARY KEY,
			student_id BIGINT NOT NULL,
			payload TEXT NOT NULL,
			cached_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS student_data (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			timestamp BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS offline_queue (
			id ` + queueID + `,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			body TEXT,
			headers TEXT,
			timestamp BIGINT NOT NULL,
			retries INTEGER NOT NULL DEFAULT 0,
			priority TEXT NOT NULL DEFAULT 'medium'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offline_queue_timestamp ON offline_queue (timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateIdempotencyKeys adds per-request idempotency keys and the review-date
// index. Only expired cache rows are dropped; unexpired entries carry over.
func migrateIdempotencyKeys(tx *sqlx.Tx, _ string) error {
	statements := []string{
		`ALTER TABLE offline_queue ADD COLUMN idempotency_key TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_cached_exercises_next_review ON cached_exercises (next_review_date)`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	_, err := tx.Exec(tx.Rebind(`DELETE FROM cached_exercises WHERE cache_until < ?`), time.Now().UnixMilli())
	return err
}
