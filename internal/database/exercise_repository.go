package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/learnsync/pkg/models"
)

// exerciseRow is the persisted shape of a cached exercise
type exerciseRow struct {
	ExerciseID       int64           `db:"exercise_id"`
	StudentID        int64           `db:"student_id"`
	CompetenceID     int64           `db:"competence_id"`
	Level            string          `db:"level"`
	Payload          string          `db:"payload"`
	CachedAt         int64           `db:"cached_at"`
	CacheUntil       int64           `db:"cache_until"`
	NextReviewDate   sql.NullInt64   `db:"next_review_date"`
	EasinessFactor   sql.NullFloat64 `db:"easiness_factor"`
	RepetitionNumber sql.NullInt64   `db:"repetition_number"`
	Priority         sql.NullString  `db:"priority"`
}

// ExerciseRepository handles database operations for cached exercises
type ExerciseRepository struct {
	db *DB
}

// NewExerciseRepository creates a new repository instance
func NewExerciseRepository(db *DB) *ExerciseRepository {
	return &ExerciseRepository{db: db}
}

// Upsert replaces the given entries by (exercise_id, student_id) and evicts
// entries whose cache_until is before evictBefore, in one transaction.
func (r *ExerciseRepository) Upsert(ctx context.Context, entries []models.CachedExercise, evictBefore time.Time) error {
	rows := make([]exerciseRow, 0, len(entries))
	for _, e := range entries {
		row, err := toExerciseRow(e)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cached_exercises WHERE cache_until < ?`), evictBefore.UnixMilli()); err != nil {
		return fmt.Errorf("failed to evict expired exercises: %w", err)
	}

	query := `
		INSERT INTO cached_exercises (
			exercise_id, student_id, competence_id, level, payload,
			cached_at, cache_until, next_review_date, easiness_factor,
			repetition_number, priority
		) VALUES (
			:exercise_id, :student_id, :competence_id, :level, :payload,
			:cached_at, :cache_until, :next_review_date, :easiness_factor,
			:repetition_number, :priority
		)
		ON CONFLICT (exercise_id, student_id) DO UPDATE SET
			competence_id = excluded.competence_id,
			level = excluded.level,
			payload = excluded.payload,
			cached_at = excluded.cached_at,
			cache_until = excluded.cache_until,
			next_review_date = excluded.next_review_date,
			easiness_factor = excluded.easiness_factor,
			repetition_number = excluded.repetition_number,
			priority = excluded.priority
	`
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to cache exercise %d: %w", row.ExerciseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached exercises: %w", err)
	}
	return nil
}

// ListByStudent returns every stored entry for a student, optionally narrowed
// by competence and level. Expiry and due dates are not applied here.
func (r *ExerciseRepository) ListByStudent(ctx context.Context, studentID int64, competenceID *int64, level string) ([]models.CachedExercise, error) {
	query := `SELECT * FROM cached_exercises WHERE student_id = ?`
	args := []interface{}{studentID}
	if competenceID != nil {
		query += ` AND competence_id = ?`
		args = append(args, *competenceID)
	}
	if level != "" {
		query += ` AND level = ?`
		args = append(args, level)
	}
	query += ` ORDER BY exercise_id`

	var rows []exerciseRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get cached exercises: %w", err)
	}

	entries := make([]models.CachedExercise, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Get returns one entry or nil when it is not stored
func (r *ExerciseRepository) Get(ctx context.Context, exerciseID, studentID int64) (*models.CachedExercise, error) {
	var row exerciseRow
	err := r.db.GetContext(ctx, &row,
		r.db.Rebind(`SELECT * FROM cached_exercises WHERE exercise_id = ? AND student_id = ?`),
		exerciseID, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached exercise: %w", err)
	}
	entry, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Count returns the number of stored entries
func (r *ExerciseRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM cached_exercises`); err != nil {
		return 0, fmt.Errorf("failed to count cached exercises: %w", err)
	}
	return count, nil
}

func toExerciseRow(e models.CachedExercise) (exerciseRow, error) {
	payload, err := json.Marshal(e.Exercise)
	if err != nil {
		return exerciseRow{}, fmt.Errorf("failed to encode exercise %d: %w", e.ID, err)
	}
	row := exerciseRow{
		ExerciseID:   e.ID,
		StudentID:    e.StudentID,
		CompetenceID: e.CompetenceID,
		Level:        e.Level,
		Payload:      string(payload),
		CachedAt:     e.CachedAt.UnixMilli(),
		CacheUntil:   e.CacheUntil.UnixMilli(),
	}
	if sr := e.SpacedRepetition; sr != nil {
		row.NextReviewDate = sql.NullInt64{Int64: sr.NextReviewDate.UnixMilli(), Valid: true}
		row.EasinessFactor = sql.NullFloat64{Float64: sr.EasinessFactor, Valid: true}
		row.RepetitionNumber = sql.NullInt64{Int64: int64(sr.RepetitionNumber), Valid: true}
		row.Priority = sql.NullString{String: string(sr.Priority), Valid: true}
	}
	return row, nil
}

func (row exerciseRow) toModel() (models.CachedExercise, error) {
	var exercise models.Exercise
	if err := json.Unmarshal([]byte(row.Payload), &exercise); err != nil {
		return models.CachedExercise{}, fmt.Errorf("failed to decode cached exercise %d: %w", row.ExerciseID, err)
	}
	entry := models.CachedExercise{
		Exercise:   exercise,
		StudentID:  row.StudentID,
		CachedAt:   time.UnixMilli(row.CachedAt),
		CacheUntil: time.UnixMilli(row.CacheUntil),
	}
	if row.NextReviewDate.Valid {
		entry.SpacedRepetition = &models.SpacedRepetitionMeta{
			NextReviewDate:   time.UnixMilli(row.NextReviewDate.Int64),
			EasinessFactor:   row.EasinessFactor.Float64,
			RepetitionNumber: int(row.RepetitionNumber.Int64),
			Priority:         models.ReviewPriority(row.Priority.String),
		}
	}
	return entry, nil
}
