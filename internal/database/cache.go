package database

import (
	"context"
	"fmt"
)

var cacheTables = []string{"cached_exercises", "cached_competences", "cached_progress", "student_data"}

// ClearCache wipes every cache namespace in one transaction. The offline queue
// is left alone.
func (db *DB) ClearCache(ctx context.Context) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range cacheTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
