package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/learnsync/internal/config"
	"github.com/example/learnsync/pkg/models"
	"github.com/jmoiron/sqlx"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "cache.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tables := []string{"cached_exercises", "cached_competences", "cached_progress", "student_data", "offline_queue", "schema_version"}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	version, err := db.CurrentVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion() {
		t.Fatalf("expected schema version %d, got %d", SchemaVersion(), version)
	}

	// migrating twice is a no-op
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestMigrationKeepsUnexpiredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	raw, err := sqlx.Connect(DriverSQLite, path)
	if err != nil {
		t.Fatal(err)
	}

	tx := raw.MustBegin()
	if err := migrateBaseSchema(tx, DriverSQLite); err != nil {
		t.Fatal(err)
	}
	tx.MustExec(`CREATE TABLE schema_version (version INTEGER NOT NULL)`)
	tx.MustExec(`INSERT INTO schema_version (version) VALUES (1)`)
	now := time.Now()
	insert := `INSERT INTO cached_exercises (exercise_id, student_id, payload, cached_at, cache_until) VALUES (?, 7, '{}', ?, ?)`
	tx.MustExec(insert, 1, now.UnixMilli(), now.Add(time.Hour).UnixMilli())
	tx.MustExec(insert, 2, now.Add(-8*24*time.Hour).UnixMilli(), now.Add(-time.Hour).UnixMilli())
	tx.MustExec(`INSERT INTO offline_queue (endpoint, method, timestamp) VALUES ('/exercises/attempt', 'POST', ?)`, now.UnixMilli())
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	db, err := Open(config.DatabaseConfig{Driver: DriverSQLite, Path: path})
	if err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}
	defer db.Close()

	var ids []int64
	if err := db.Select(&ids, `SELECT exercise_id FROM cached_exercises ORDER BY exercise_id`); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected only the unexpired entry to survive, got %v", ids)
	}

	pending, err := NewQueueRepository(db).ListOrdered(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].IdempotencyKey != "" {
		t.Fatalf("expected queued request to survive with empty key, got %+v", pending)
	}
}

func TestExerciseUpsertReplacesAndEvicts(t *testing.T) {
	db := openTestDB(t)
	repo := NewExerciseRepository(db)
	ctx := context.Background()
	now := time.Now()

	stale := models.CachedExercise{
		Exercise:   models.Exercise{ID: 9, Title: "old"},
		StudentID:  7,
		CachedAt:   now.Add(-10 * 24 * time.Hour),
		CacheUntil: now.Add(-3 * 24 * time.Hour),
	}
	if err := repo.Upsert(ctx, []models.CachedExercise{stale}, now.Add(-30*24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	first := models.CachedExercise{
		Exercise:   models.Exercise{ID: 1, Title: "v1", CompetenceID: 3, Level: "A1"},
		StudentID:  7,
		CachedAt:   now,
		CacheUntil: now.Add(time.Hour),
		SpacedRepetition: &models.SpacedRepetitionMeta{
			NextReviewDate: now, EasinessFactor: 2.5, RepetitionNumber: 2, Priority: models.ReviewPriorityHigh,
		},
	}
	if err := repo.Upsert(ctx, []models.CachedExercise{first}, now); err != nil {
		t.Fatal(err)
	}

	if got, err := repo.Get(ctx, 9, 7); err != nil || got != nil {
		t.Fatalf("expected expired entry to be evicted, got %+v (%v)", got, err)
	}

	second := first
	second.Title = "v2"
	second.SpacedRepetition = nil
	if err := repo.Upsert(ctx, []models.CachedExercise{second}, now); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, 1, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Title != "v2" {
		t.Fatalf("expected replaced entry, got %+v", got)
	}
	if got.SpacedRepetition != nil {
		t.Fatalf("expected metadata to be replaced wholesale, got %+v", got.SpacedRepetition)
	}

	competence := int64(3)
	list, err := repo.ListByStudent(ctx, 7, &competence, "A1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}
	if list, _ := repo.ListByStudent(ctx, 8, nil, ""); len(list) != 0 {
		t.Fatalf("expected no entries for another student, got %d", len(list))
	}
}

func TestQueueRepositoryOrderingAndApply(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	base := time.Now()

	priorities := []models.RequestPriority{
		models.RequestPriorityLow, models.RequestPriorityHigh, models.RequestPriorityMedium, models.RequestPriorityHigh,
	}
	ids := make([]int64, len(priorities))
	for i, p := range priorities {
		id, err := repo.Insert(ctx, &models.QueuedRequest{
			Endpoint:  "/exercises/attempt",
			Method:    "POST",
			Body:      []byte(`{"n":1}`),
			Headers:   map[string]string{"X-Seq": string(rune('a' + i))},
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Priority:  p,
		})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}

	list, err := repo.ListOrdered(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{ids[1], ids[3], ids[2], ids[0]}
	for i, req := range list {
		if req.ID != want[i] {
			t.Fatalf("position %d: expected id %d, got %d", i, want[i], req.ID)
		}
	}
	if list[0].Headers["X-Seq"] != "b" || string(list[0].Body) != `{"n":1}` {
		t.Fatalf("request did not round-trip: %+v", list[0])
	}

	if err := repo.Apply(ctx, []int64{ids[1]}, map[int64]int{ids[0]: 2}); err != nil {
		t.Fatal(err)
	}
	count, err := repo.Count(ctx)
	if err != nil || count != 3 {
		t.Fatalf("expected 3 pending, got %d (%v)", count, err)
	}
	if ok, _ := repo.Exists(ctx, ids[1]); ok {
		t.Fatal("removed request still exists")
	}
	list, _ = repo.ListOrdered(ctx)
	if last := list[len(list)-1]; last.ID != ids[0] || last.Retries != 2 {
		t.Fatalf("expected retries to be stored, got %+v", last)
	}
}

func TestClearCacheKeepsQueue(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if err := NewCompetenceRepository(db).Upsert(ctx, []models.Competence{{ID: 1, Code: "MATH-1"}}, now); err != nil {
		t.Fatal(err)
	}
	if err := NewStudentDataRepository(db).Put(ctx, "streak", []byte(`3`), now); err != nil {
		t.Fatal(err)
	}
	if _, err := NewQueueRepository(db).Insert(ctx, &models.QueuedRequest{Endpoint: "/x", Method: "POST", Timestamp: now, Priority: models.RequestPriorityLow}); err != nil {
		t.Fatal(err)
	}

	if err := db.ClearCache(ctx); err != nil {
		t.Fatal(err)
	}

	competences, _ := NewCompetenceRepository(db).GetAll(ctx)
	if len(competences) != 0 {
		t.Fatalf("expected competences cleared, got %d", len(competences))
	}
	if blob, _ := NewStudentDataRepository(db).Get(ctx, "streak"); blob != nil {
		t.Fatalf("expected student data cleared, got %+v", blob)
	}
	if count, _ := NewQueueRepository(db).Count(ctx); count != 1 {
		t.Fatalf("expected queue untouched, got %d", count)
	}
}

func TestOpenInMemoryIsNotDurable(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if db.Durable {
		t.Fatal("in-memory database reported as durable")
	}
	if _, err := NewQueueRepository(db).Count(context.Background()); err != nil {
		t.Fatalf("in-memory schema missing: %v", err)
	}
}
