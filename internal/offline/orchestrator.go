// Package offline decides, per call, whether to talk to the backend, serve
// from the local cache or queue a mutation for later.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/example/learnsync/internal/api"
	"github.com/example/learnsync/internal/clock"
	"github.com/example/learnsync/internal/network"
	"github.com/example/learnsync/internal/queue"
	"github.com/example/learnsync/internal/spaced_repetition"
	"github.com/example/learnsync/internal/store"
	"github.com/example/learnsync/pkg/models"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// activeStudentKey is the student_data key remembering who is signed in
const activeStudentKey = "session.active_student"

// Backend is the subset of the API client the orchestrator relies on
type Backend interface {
	ListExercises(ctx context.Context, filters models.ExerciseFilters) ([]models.Exercise, error)
	ListRecommended(ctx context.Context, studentID int64) ([]models.Exercise, error)
	ListSchedule(ctx context.Context, studentID int64) ([]models.ScheduleEntry, error)
	SubmitAttempt(ctx context.Context, payload models.AttemptPayload) (*models.SubmissionResult, error)
	ListCompetences(ctx context.Context, filters models.CompetenceFilters) ([]models.Competence, error)
	ListProgress(ctx context.Context, filters models.ProgressFilters) ([]models.ProgressRecord, error)
}

// PreloadSummary reports what a preload run stored
type PreloadSummary struct {
	StudentID int64 `json:"studentId"`
	Skipped   bool  `json:"skipped"`
	Cached    int   `json:"cached"`
	Scheduled int   `json:"scheduled"`
}

// Orchestrator is the single entry point for reads and writes that must keep
// working offline.
type Orchestrator struct {
	backend   Backend
	store     *store.LocalStore
	queue     *queue.Queue
	monitor   *network.Monitor
	clock     clock.Clock
	lookAhead time.Duration
	logger    logrus.FieldLogger

	mu          sync.Mutex
	studentID   int64
	unsubscribe func()
	cancel      context.CancelFunc
	stopped     bool
	wg          sync.WaitGroup
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithLookAhead(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.lookAhead = d
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New wires the orchestrator. Call Start to react to connectivity changes.
func New(backend Backend, st *store.LocalStore, q *queue.Queue, monitor *network.Monitor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		store:     st,
		queue:     q,
		monitor:   monitor,
		clock:     clock.Real(),
		lookAhead: spaced_repetition.DefaultLookAhead,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start restores the signed-in student and subscribes to the monitor. Each
// time the backend becomes reachable the queue is drained and the active
// student's exercises are preloaded in the background.
func (o *Orchestrator) Start(ctx context.Context) error {
	var studentID int64
	found, err := o.store.GetCachedStudentData(ctx, activeStudentKey, &studentID)
	if err != nil {
		o.logger.WithError(err).Warn("could not restore active student")
	} else if found {
		o.setStudent(studentID)
		o.logger.WithField("student_id", studentID).Info("restored active student")
	}

	o.mu.Lock()
	o.stopped = false
	o.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unsubscribe, err := o.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.stopped {
			return
		}
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.onOnline(runCtx)
		}()
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to network monitor: %w", err)
	}

	o.mu.Lock()
	o.unsubscribe = unsubscribe
	o.cancel = cancel
	o.mu.Unlock()
	return nil
}

// Stop unsubscribes from the monitor and waits for background work to finish
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	unsubscribe, cancel := o.unsubscribe, o.cancel
	o.unsubscribe, o.cancel = nil, nil
	o.stopped = true
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) onOnline(ctx context.Context) {
	summary, err := o.SyncQueue(ctx)
	if err != nil {
		o.logger.WithError(err).Error("queue sync failed")
	} else if summary.Success+summary.Failed > 0 {
		o.logger.WithFields(logrus.Fields{
			"success": summary.Success,
			"failed":  summary.Failed,
		}).Info("queue synced after reconnect")
	}

	if _, err := o.PreloadActiveStudent(ctx); err != nil {
		o.logger.WithError(err).Warn("preload after reconnect failed")
	}
}

// Online reports the monitor's last known state
func (o *Orchestrator) Online() bool {
	return o.monitor.Online()
}

// Subscribe registers a connectivity listener on the monitor
func (o *Orchestrator) Subscribe(fn network.Listener) (func(), error) {
	return o.monitor.Subscribe(fn)
}

// ActiveStudent returns the signed-in student, or 0
func (o *Orchestrator) ActiveStudent() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.studentID
}

func (o *Orchestrator) setStudent(id int64) {
	o.mu.Lock()
	o.studentID = id
	o.mu.Unlock()
}

// Authenticate makes studentID the active student and, when online, preloads
// their exercises right away.
func (o *Orchestrator) Authenticate(ctx context.Context, studentID int64) (PreloadSummary, error) {
	o.setStudent(studentID)
	if err := o.store.CacheStudentData(ctx, activeStudentKey, studentID); err != nil {
		o.logger.WithError(err).Warn("could not persist active student")
	}
	return o.PreloadExercisesForOffline(ctx, studentID)
}

// Logout forgets the active student and wipes the cache. Pending queued
// requests are kept.
func (o *Orchestrator) Logout(ctx context.Context) error {
	o.setStudent(0)
	return o.store.ClearCache(ctx)
}

// GetExercises returns exercises from the backend when possible and from the
// cache otherwise.
func (o *Orchestrator) GetExercises(ctx context.Context, filters models.ExerciseFilters) models.Result[[]models.Exercise] {
	if filters.StudentID == 0 {
		filters.StudentID = o.ActiveStudent()
	}

	if o.Online() {
		exercises, err := o.backend.ListExercises(ctx, filters)
		if err == nil {
			if err := o.store.CacheExercises(ctx, exercises, filters.StudentID, nil); err != nil {
				o.logger.WithError(err).Warn("could not cache exercises")
			}
			return models.Result[[]models.Exercise]{Success: true, Data: exercises}
		}
		o.logger.WithError(err).Warn("live exercise fetch failed, falling back to cache")
	}

	cached, err := o.store.GetCachedExercises(ctx, filters.StudentID, store.ExerciseQuery{
		CompetenceID: filters.CompetenceID,
		Level:        filters.Level,
	})
	if err != nil {
		o.logger.WithError(err).Warn("cache read failed")
	}
	exercises := lo.FilterMap(cached, func(e models.CachedExercise, _ int) (models.Exercise, bool) {
		return e.Exercise, filters.Subject == "" || e.Subject == filters.Subject
	})
	if filters.Limit > 0 && len(exercises) > filters.Limit {
		exercises = exercises[:filters.Limit]
	}
	if len(exercises) == 0 {
		return noCache[[]models.Exercise]("exercises")
	}
	return models.Result[[]models.Exercise]{Success: true, Data: exercises, FromCache: true}
}

// GetCompetences returns competences from the backend when possible and from
// the cache otherwise.
func (o *Orchestrator) GetCompetences(ctx context.Context, filters models.CompetenceFilters) models.Result[[]models.Competence] {
	if o.Online() {
		competences, err := o.backend.ListCompetences(ctx, filters)
		if err == nil {
			if err := o.store.CacheCompetences(ctx, competences); err != nil {
				o.logger.WithError(err).Warn("could not cache competences")
			}
			return models.Result[[]models.Competence]{Success: true, Data: competences}
		}
		o.logger.WithError(err).Warn("live competence fetch failed, falling back to cache")
	}

	cached, err := o.store.GetCachedCompetences(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("cache read failed")
	}
	competences := lo.Filter(cached, func(c models.Competence, _ int) bool {
		return (filters.Subject == "" || c.Subject == filters.Subject) &&
			(filters.Level == "" || c.Level == filters.Level)
	})
	if len(competences) == 0 {
		return noCache[[]models.Competence]("competences")
	}
	return models.Result[[]models.Competence]{Success: true, Data: competences, FromCache: true}
}

// GetStudentProgress returns progress records from the backend when possible
// and from the cache otherwise.
func (o *Orchestrator) GetStudentProgress(ctx context.Context, filters models.ProgressFilters) models.Result[[]models.ProgressRecord] {
	if filters.StudentID == 0 {
		filters.StudentID = o.ActiveStudent()
	}

	if o.Online() {
		records, err := o.backend.ListProgress(ctx, filters)
		if err == nil {
			if err := o.store.CacheProgress(ctx, records); err != nil {
				o.logger.WithError(err).Warn("could not cache progress")
			}
			return models.Result[[]models.ProgressRecord]{Success: true, Data: records}
		}
		o.logger.WithError(err).Warn("live progress fetch failed, falling back to cache")
	}

	cached, err := o.store.GetCachedProgress(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("cache read failed")
	}
	records := lo.Filter(cached, func(r models.ProgressRecord, _ int) bool {
		return (filters.StudentID == 0 || r.StudentID == filters.StudentID) &&
			(filters.CompetenceID == nil || r.CompetenceID == *filters.CompetenceID)
	})
	if len(records) == 0 {
		return noCache[[]models.ProgressRecord]("progress")
	}
	return models.Result[[]models.ProgressRecord]{Success: true, Data: records, FromCache: true}
}

func noCache[T any](what string) models.Result[T] {
	return models.Result[T]{
		Error: &models.APIError{
			Code:    models.CodeNoCache,
			Message: fmt.Sprintf("%s: %s", what, models.ErrNoCache),
		},
	}
}

// SubmitExercise posts an attempt. When the backend cannot take it now the
// attempt is queued and reported as accepted with Queued set.
func (o *Orchestrator) SubmitExercise(ctx context.Context, exerciseID int64, attempt models.AttemptResult) models.SubmissionResult {
	if attempt.StudentID == 0 {
		attempt.StudentID = o.ActiveStudent()
	}
	payload := models.AttemptPayload{ExerciseID: exerciseID, AttemptResult: attempt}

	if o.Online() {
		result, err := o.backend.SubmitAttempt(ctx, payload)
		if err == nil {
			return *result
		}
		if !api.IsTransient(err) {
			o.logger.WithFields(logrus.Fields{"exercise_id": exerciseID}).WithError(err).Warn("attempt rejected")
			return rejected(err)
		}
		o.logger.WithField("exercise_id", exerciseID).WithError(err).Info("backend unavailable, queueing attempt")
	}

	return o.enqueueAttempt(ctx, payload)
}

func (o *Orchestrator) enqueueAttempt(ctx context.Context, payload models.AttemptPayload) models.SubmissionResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.SubmissionResult{Error: &models.APIError{Code: models.CodeRequestFailed, Message: err.Error()}}
	}

	id, err := o.queue.Add(ctx, api.EndpointAttempt, http.MethodPost, body, nil, models.RequestPriorityHigh)
	if err != nil {
		o.logger.WithError(err).Error("could not queue attempt")
		return models.SubmissionResult{Error: &models.APIError{
			Code:    models.CodeStorageUnavailable,
			Message: err.Error(),
		}}
	}
	return models.SubmissionResult{Success: true, Queued: true, QueueID: id}
}

func rejected(err error) models.SubmissionResult {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code == "" {
			code = models.CodeRequestFailed
		}
		return models.SubmissionResult{Error: &models.APIError{Code: code, Message: apiErr.Message}}
	}
	return models.SubmissionResult{Error: &models.APIError{Code: models.CodeRequestFailed, Message: err.Error()}}
}

// PreloadExercisesForOffline caches the student's recommended exercises along
// with the spaced-repetition metadata of those due within the look-ahead
// window. It does nothing while offline.
func (o *Orchestrator) PreloadExercisesForOffline(ctx context.Context, studentID int64) (PreloadSummary, error) {
	summary := PreloadSummary{StudentID: studentID}
	if !o.Online() {
		summary.Skipped = true
		return summary, nil
	}

	var (
		recommended []models.Exercise
		schedule    []models.ScheduleEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recommended, err = o.backend.ListRecommended(gctx, studentID)
		return err
	})
	g.Go(func() error {
		var err error
		schedule, err = o.backend.ListSchedule(gctx, studentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("preload for student %d: %w", studentID, err)
	}

	meta := spaced_repetition.BuildScheduleIndex(schedule, o.clock.Now(), o.lookAhead)
	if err := o.store.CacheExercises(ctx, recommended, studentID, meta); err != nil {
		return summary, err
	}

	summary.Cached = len(recommended)
	summary.Scheduled = len(lo.Filter(recommended, func(e models.Exercise, _ int) bool {
		_, ok := meta[e.ID]
		return ok
	}))
	o.logger.WithFields(logrus.Fields{
		"student_id": studentID,
		"cached":     summary.Cached,
		"scheduled":  summary.Scheduled,
	}).Info("exercises preloaded for offline use")
	return summary, nil
}

// PreloadActiveStudent refreshes the preload for the signed-in student, if any
func (o *Orchestrator) PreloadActiveStudent(ctx context.Context) (PreloadSummary, error) {
	studentID := o.ActiveStudent()
	if studentID == 0 {
		return PreloadSummary{Skipped: true}, nil
	}
	return o.PreloadExercisesForOffline(ctx, studentID)
}

// SyncQueue drains the outbound queue. It does nothing while offline.
func (o *Orchestrator) SyncQueue(ctx context.Context) (queue.Summary, error) {
	if !o.Online() {
		return queue.Summary{}, nil
	}
	return o.queue.Process(ctx)
}

// QueueLength returns the number of requests awaiting delivery
func (o *Orchestrator) QueueLength(ctx context.Context) (int, error) {
	return o.queue.Len(ctx)
}

// IsPending reports whether a queued submission is still awaiting delivery
func (o *Orchestrator) IsPending(ctx context.Context, queueID int64) (bool, error) {
	return o.queue.IsPending(ctx, queueID)
}
