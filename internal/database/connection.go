package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/learnsync/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DB is the durable store handle shared by all repositories
type DB struct {
	*sqlx.DB
	// Durable is false for the in-memory fallback
	Durable bool
}

// Open establishes a connection to the configured database and migrates its schema
func Open(cfg config.DatabaseConfig) (*DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database.dsn is required for postgres")
		}
		db, err = sqlx.Connect(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	case DriverSQLite, "":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn := cfg.Path + "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
		db, err = sqlx.Connect(DriverSQLite, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	handle := &DB{DB: db, Durable: true}
	if err := handle.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return handle, nil
}

// OpenInMemory opens a private in-memory SQLite database. Nothing written to it
// survives Close.
func OpenInMemory() (*DB, error) {
	db, err := sqlx.Connect(DriverSQLite, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// every connection would see its own empty database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	handle := &DB{DB: db, Durable: false}
	if err := handle.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return handle, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}
