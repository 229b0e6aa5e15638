package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/learnsync/internal/clock"
	"github.com/example/learnsync/internal/config"
	"github.com/example/learnsync/internal/database"
	"github.com/example/learnsync/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestStore(t *testing.T, now time.Time) (*LocalStore, *clock.Fake, *database.DB) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "store.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := clock.NewFake(now)
	logger, _ := test.NewNullLogger()
	return New(db, WithClock(fake), WithLogger(logger)), fake, db
}

func ids(entries []models.CachedExercise) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestGetCachedExercisesHonorsDueDate(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.Local)
	s, _, _ := newTestStore(t, now)
	ctx := context.Background()

	exercises := []models.Exercise{{ID: 1, Title: "due"}, {ID: 2, Title: "tomorrow"}}
	meta := map[int64]models.SpacedRepetitionMeta{
		1: {NextReviewDate: now.AddDate(0, 0, -1), Priority: models.ReviewPriorityHigh},
		2: {NextReviewDate: now.AddDate(0, 0, 1), Priority: models.ReviewPriorityNormal},
	}
	if err := s.CacheExercises(ctx, exercises, 7, meta); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCachedExercises(ctx, 7, ExerciseQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected only exercise 1, got %v", ids(got))
	}
	if got[0].SpacedRepetition == nil || got[0].SpacedRepetition.Priority != models.ReviewPriorityHigh {
		t.Fatalf("expected metadata to be attached, got %+v", got[0].SpacedRepetition)
	}

	if entry, err := s.GetCachedExercise(ctx, 2, 7); err != nil || entry != nil {
		t.Fatalf("exercise due tomorrow must be a miss, got %+v (%v)", entry, err)
	}
}

func TestGetCachedExercisesHonorsExpiry(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.Local)
	s, fake, _ := newTestStore(t, now)
	ctx := context.Background()

	if err := s.CacheExercises(ctx, []models.Exercise{{ID: 1}}, 7, nil); err != nil {
		t.Fatal(err)
	}

	fake.Advance(DefaultTTL)
	if got, _ := s.GetCachedExercises(ctx, 7, ExerciseQuery{}); len(got) != 1 {
		t.Fatalf("entry at the end of its window should still be served, got %v", ids(got))
	}

	fake.Advance(time.Second)
	if got, _ := s.GetCachedExercises(ctx, 7, ExerciseQuery{}); len(got) != 0 {
		t.Fatalf("expired entry was served: %v", ids(got))
	}
	if entry, _ := s.GetCachedExercise(ctx, 1, 7); entry != nil {
		t.Fatal("expired entry was served by single lookup")
	}
}

func TestCacheIsStudentScoped(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.Local)
	s, _, _ := newTestStore(t, now)
	ctx := context.Background()

	if err := s.CacheExercises(ctx, []models.Exercise{{ID: 1}, {ID: 2}}, 7, nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetCachedExercises(ctx, 8, ExerciseQuery{}); len(got) != 0 {
		t.Fatalf("student 8 sees student 7's cache: %v", ids(got))
	}
	if entry, _ := s.GetCachedExercise(ctx, 1, 8); entry != nil {
		t.Fatal("single lookup leaked across students")
	}

	if err := s.CacheExercises(ctx, []models.Exercise{{ID: 1, Title: "for eight"}}, 8, nil); err != nil {
		t.Fatal(err)
	}
	seven, _ := s.GetCachedExercise(ctx, 1, 7)
	eight, _ := s.GetCachedExercise(ctx, 1, 8)
	if seven == nil || eight == nil || seven.Title == eight.Title {
		t.Fatalf("expected two distinct entries, got %+v and %+v", seven, eight)
	}
}

func TestGetCachedExercisesFiltersAndSorts(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.Local)
	s, _, _ := newTestStore(t, now)
	ctx := context.Background()

	exercises := []models.Exercise{
		{ID: 1, CompetenceID: 10, Level: "A1"},
		{ID: 2, CompetenceID: 10, Level: "A1"},
		{ID: 3, CompetenceID: 10, Level: "A1"},
		{ID: 4, CompetenceID: 10, Level: "B1"},
		{ID: 5, CompetenceID: 11, Level: "A1"},
	}
	meta := map[int64]models.SpacedRepetitionMeta{
		2: {NextReviewDate: now.AddDate(0, 0, -1), Priority: models.ReviewPriorityMedium},
		3: {NextReviewDate: now.AddDate(0, 0, -4), Priority: models.ReviewPriorityMedium},
	}
	if err := s.CacheExercises(ctx, exercises, 7, meta); err != nil {
		t.Fatal(err)
	}

	competence := int64(10)
	got, err := s.GetCachedExercises(ctx, 7, ExerciseQuery{CompetenceID: &competence, Level: "A1"})
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{3, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("expected %v, got %v", want, ids(got))
		}
	}
}

func TestSimpleNamespaces(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.Local)
	s, _, _ := newTestStore(t, now)
	ctx := context.Background()

	if err := s.CacheCompetences(ctx, []models.Competence{{ID: 2, Code: "B"}, {ID: 1, Code: "A"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.CacheCompetences(ctx, []models.Competence{{ID: 1, Code: "A2"}}); err != nil {
		t.Fatal(err)
	}
	competences, err := s.GetCachedCompetences(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(competences) != 2 || competences[0].Code != "A2" {
		t.Fatalf("unexpected competences: %+v", competences)
	}

	if err := s.CacheProgress(ctx, []models.ProgressRecord{{ID: 1, StudentID: 7, AverageScore: 81.5}}); err != nil {
		t.Fatal(err)
	}
	progress, _ := s.GetCachedProgress(ctx)
	if len(progress) != 1 || progress[0].AverageScore != 81.5 {
		t.Fatalf("unexpected progress: %+v", progress)
	}

	type streak struct{ Days int }
	if err := s.CacheStudentData(ctx, "streak", streak{Days: 4}); err != nil {
		t.Fatal(err)
	}
	var got streak
	found, err := s.GetCachedStudentData(ctx, "streak", &got)
	if err != nil || !found || got.Days != 4 {
		t.Fatalf("unexpected student data: %+v found=%v err=%v", got, found, err)
	}
	if found, _ := s.GetCachedStudentData(ctx, "missing", &got); found {
		t.Fatal("missing key reported as found")
	}

	if err := s.ClearCache(ctx); err != nil {
		t.Fatal(err)
	}
	if competences, _ := s.GetCachedCompetences(ctx); len(competences) != 0 {
		t.Fatal("cache not cleared")
	}
}

func TestStorageFailureIsTyped(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.Local)
	s, _, db := newTestStore(t, now)
	db.Close()

	_, err := s.GetCachedExercises(context.Background(), 7, ExerciseQuery{})
	if !errors.Is(err, models.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	err = s.CacheExercises(context.Background(), []models.Exercise{{ID: 1}}, 7, nil)
	if !errors.Is(err, models.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
