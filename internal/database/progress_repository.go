package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/learnsync/pkg/models"
)

// ProgressRepository handles database operations for cached progress records
type ProgressRepository struct {
	db *DB
}

// NewProgressRepository creates a new repository instance
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Upsert replaces each progress record by id
func (r *ProgressRepository) Upsert(ctx context.Context, records []models.ProgressRecord, cachedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO cached_progress (id, student_id, payload, cached_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			student_id = excluded.student_id,
			payload = excluded.payload,
			cached_at = excluded.cached_at
	`)
	for _, p := range records {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode progress %d: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, p.ID, p.StudentID, string(payload), cachedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to cache progress %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// GetAll returns every cached progress record ordered by id
func (r *ProgressRepository) GetAll(ctx context.Context) ([]models.ProgressRecord, error) {
	var payloads []string
	if err := r.db.SelectContext(ctx, &payloads, `SELECT payload FROM cached_progress ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to get cached progress: %w", err)
	}

	records := make([]models.ProgressRecord, 0, len(payloads))
	for _, p := range payloads {
		var record models.ProgressRecord
		if err := json.Unmarshal([]byte(p), &record); err != nil {
			return nil, fmt.Errorf("failed to decode cached progress: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
