package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/learnsync/pkg/models"
)

// StudentDataRepository stores arbitrary keyed values for the student
type StudentDataRepository struct {
	db *DB
}

// NewStudentDataRepository creates a new repository instance
func NewStudentDataRepository(db *DB) *StudentDataRepository {
	return &StudentDataRepository{db: db}
}

// Put replaces the value stored under key
func (r *StudentDataRepository) Put(ctx context.Context, key string, value []byte, at time.Time) error {
	query := r.db.Rebind(`
		INSERT INTO student_data (key, value, timestamp) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp
	`)
	if _, err := r.db.ExecContext(ctx, query, key, string(value), at.UnixMilli()); err != nil {
		return fmt.Errorf("failed to cache student data %q: %w", key, err)
	}
	return nil
}

// Get returns the blob stored under key or nil
func (r *StudentDataRepository) Get(ctx context.Context, key string) (*models.StudentBlob, error) {
	var row struct {
		Key       string `db:"key"`
		Value     string `db:"value"`
		Timestamp int64  `db:"timestamp"`
	}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT key, value, timestamp FROM student_data WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student data %q: %w", key, err)
	}
	return &models.StudentBlob{
		Key:       row.Key,
		Value:     []byte(row.Value),
		Timestamp: time.UnixMilli(row.Timestamp),
	}, nil
}
