// Package store is the durable, student-scoped cache of learning content used
// while the backend is unreachable.
//
// Exercises expire CacheTTL after they were cached and, when they carry
// spaced-repetition metadata, are only served from their review day onward.
// Competences, progress records and student data never expire; they are the
// last known good copy of whatever the backend returned.
//
// Writes are single transactions and are durable when the call returns. Every
// failure of the underlying database is reported wrapped in
// models.ErrStorageUnavailable so callers can treat it as a cache miss.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/learnsync/internal/clock"
	"github.com/example/learnsync/internal/database"
	"github.com/example/learnsync/internal/spaced_repetition"
	"github.com/example/learnsync/pkg/models"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// DefaultTTL is how long a cached exercise stays servable
const DefaultTTL = 7 * 24 * time.Hour

// ExerciseQuery narrows a cached exercise lookup
type ExerciseQuery struct {
	CompetenceID *int64
	Level        string
}

// LocalStore is the cache facade over the database repositories
type LocalStore struct {
	db          *database.DB
	exercises   *database.ExerciseRepository
	competences *database.CompetenceRepository
	progress    *database.ProgressRepository
	studentData *database.StudentDataRepository
	clock       clock.Clock
	ttl         time.Duration
	logger      logrus.FieldLogger
}

// Option customizes a LocalStore
type Option func(*LocalStore)

// WithClock overrides the time source
func WithClock(c clock.Clock) Option {
	return func(s *LocalStore) { s.clock = c }
}

// WithTTL overrides how long cached exercises stay servable
func WithTTL(ttl time.Duration) Option {
	return func(s *LocalStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *LocalStore) { s.logger = logger }
}

// New creates a LocalStore over db
func New(db *database.DB, opts ...Option) *LocalStore {
	s := &LocalStore{
		db:          db,
		exercises:   database.NewExerciseRepository(db),
		competences: database.NewCompetenceRepository(db),
		progress:    database.NewProgressRepository(db),
		studentData: database.NewStudentDataRepository(db),
		clock:       clock.Real(),
		ttl:         DefaultTTL,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !db.Durable {
		s.logger.Warn("local store is running in memory; cached data will not survive a restart")
	}
	return s
}

// CacheExercises stores exercises for studentID, replacing existing entries by
// (exercise, student). meta may be nil; exercises without an entry in meta are
// cached without spaced-repetition metadata. Expired entries are evicted in the
// same transaction.
func (s *LocalStore) CacheExercises(ctx context.Context, exercises []models.Exercise, studentID int64, meta map[int64]models.SpacedRepetitionMeta) error {
	now := s.clock.Now()
	entries := make([]models.CachedExercise, 0, len(exercises))
	for _, exercise := range exercises {
		entry := models.CachedExercise{
			Exercise:   exercise,
			StudentID:  studentID,
			CachedAt:   now,
			CacheUntil: now.Add(s.ttl),
		}
		if m, ok := meta[exercise.ID]; ok {
			entry.SpacedRepetition = &m
		}
		entries = append(entries, entry)
	}

	if err := s.exercises.Upsert(ctx, entries, now); err != nil {
		return unavailable(err)
	}
	s.logger.WithFields(logrus.Fields{
		"student_id": studentID,
		"exercises":  len(entries),
		"scheduled":  len(meta),
	}).Debug("cached exercises")
	return nil
}

// GetCachedExercises returns the student's exercises that can be served right
// now, in review order.
func (s *LocalStore) GetCachedExercises(ctx context.Context, studentID int64, q ExerciseQuery) ([]models.CachedExercise, error) {
	entries, err := s.exercises.ListByStudent(ctx, studentID, q.CompetenceID, q.Level)
	if err != nil {
		return nil, unavailable(err)
	}

	now := s.clock.Now()
	readable := lo.Filter(entries, func(e models.CachedExercise, _ int) bool {
		return spaced_repetition.Readable(e, now)
	})
	spaced_repetition.SortForReview(readable)
	return readable, nil
}

// GetCachedExercise returns one servable entry or nil
func (s *LocalStore) GetCachedExercise(ctx context.Context, exerciseID, studentID int64) (*models.CachedExercise, error) {
	entry, err := s.exercises.Get(ctx, exerciseID, studentID)
	if err != nil {
		return nil, unavailable(err)
	}
	if entry == nil || !spaced_repetition.Readable(*entry, s.clock.Now()) {
		return nil, nil
	}
	return entry, nil
}

// InspectExercises returns every stored entry for the student, servable or not
func (s *LocalStore) InspectExercises(ctx context.Context, studentID int64) ([]models.CachedExerciseInfo, error) {
	entries, err := s.exercises.ListByStudent(ctx, studentID, nil, "")
	if err != nil {
		return nil, unavailable(err)
	}
	now := s.clock.Now()
	return lo.Map(entries, func(e models.CachedExercise, _ int) models.CachedExerciseInfo {
		return models.CachedExerciseInfo{CachedExercise: e, Readable: spaced_repetition.Readable(e, now)}
	}), nil
}

// CacheCompetences replaces the cached copy of each competence
func (s *LocalStore) CacheCompetences(ctx context.Context, competences []models.Competence) error {
	if err := s.competences.Upsert(ctx, competences, s.clock.Now()); err != nil {
		return unavailable(err)
	}
	return nil
}

// GetCachedCompetences returns every cached competence
func (s *LocalStore) GetCachedCompetences(ctx context.Context) ([]models.Competence, error) {
	competences, err := s.competences.GetAll(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	return competences, nil
}

// CacheProgress replaces the cached copy of each progress record
func (s *LocalStore) CacheProgress(ctx context.Context, records []models.ProgressRecord) error {
	if err := s.progress.Upsert(ctx, records, s.clock.Now()); err != nil {
		return unavailable(err)
	}
	return nil
}

// GetCachedProgress returns every cached progress record
func (s *LocalStore) GetCachedProgress(ctx context.Context) ([]models.ProgressRecord, error) {
	records, err := s.progress.GetAll(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	return records, nil
}

// CacheStudentData stores value, JSON encoded, under key
func (s *LocalStore) CacheStudentData(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode student data %q: %w", key, err)
	}
	if err := s.studentData.Put(ctx, key, encoded, s.clock.Now()); err != nil {
		return unavailable(err)
	}
	return nil
}

// GetCachedStudentData decodes the value under key into dest. found is false
// when nothing is stored.
func (s *LocalStore) GetCachedStudentData(ctx context.Context, key string, dest any) (found bool, err error) {
	blob, err := s.studentData.Get(ctx, key)
	if err != nil {
		return false, unavailable(err)
	}
	if blob == nil {
		return false, nil
	}
	if err := json.Unmarshal(blob.Value, dest); err != nil {
		return false, fmt.Errorf("decode student data %q: %w", key, err)
	}
	return true, nil
}

// ClearCache wipes every cache namespace
func (s *LocalStore) ClearCache(ctx context.Context) error {
	if err := s.db.ClearCache(ctx); err != nil {
		return unavailable(err)
	}
	s.logger.Info("local cache cleared")
	return nil
}

// Durable reports whether writes survive a restart
func (s *LocalStore) Durable() bool {
	return s.db.Durable
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
}
