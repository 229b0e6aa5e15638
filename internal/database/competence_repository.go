package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/learnsync/pkg/models"
)

// CompetenceRepository handles database operations for cached competences
type CompetenceRepository struct {
	db *DB
}

// NewCompetenceRepository creates a new repository instance
func NewCompetenceRepository(db *DB) *CompetenceRepository {
	return &CompetenceRepository{db: db}
}

// Upsert replaces each competence by id
func (r *CompetenceRepository) Upsert(ctx context.Context, competences []models.Competence, cachedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO cached_competences (id, payload, cached_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at
	`)
	for _, c := range competences {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode competence %d: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, c.ID, string(payload), cachedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to cache competence %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// GetAll returns every cached competence ordered by id
func (r *CompetenceRepository) GetAll(ctx context.Context) ([]models.Competence, error) {
	var payloads []string
	if err := r.db.SelectContext(ctx, &payloads, `SELECT payload FROM cached_competences ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to get cached competences: %w", err)
	}

	competences := make([]models.Competence, 0, len(payloads))
	for _, p := range payloads {
		var c models.Competence
		if err := json.Unmarshal([]byte(p), &c); err != nil {
			return nil, fmt.Errorf("failed to decode cached competence: %w", err)
		}
		competences = append(competences, c)
	}
	return competences, nil
}
