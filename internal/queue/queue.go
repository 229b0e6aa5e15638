// Package queue durably records mutations made while offline and replays them
// against the backend once it is reachable again.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/example/learnsync/internal/clock"
	"github.com/example/learnsync/internal/database"
	"github.com/example/learnsync/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxRetries      = 3
	DefaultDeliveryTimeout = 10 * time.Second
)

// Deliverer sends one queued request and returns the response status
type Deliverer interface {
	Deliver(ctx context.Context, req models.QueuedRequest) (int, error)
}

// Summary counts the outcome of one processing pass
type Summary struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Queue is the outbound request queue backed by the offline_queue table
type Queue struct {
	repo      *database.QueueRepository
	deliverer Deliverer
	clock     clock.Clock
	logger    logrus.FieldLogger

	maxRetries      int
	deliveryTimeout time.Duration

	mu         sync.Mutex
	processing bool

	// overflow holds requests added while the database refused writes. They
	// carry negative ids and live only as long as this Queue.
	memMu      sync.Mutex
	overflow   []models.QueuedRequest
	overflowID int64
}

type Option func(*Queue)

func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(q *Queue) { q.logger = l }
}

func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

func WithDeliveryTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.deliveryTimeout = d
		}
	}
}

// New opens the queue over db. Requests persisted by earlier runs are pending
// immediately.
func New(ctx context.Context, db *database.DB, deliverer Deliverer, opts ...Option) (*Queue, error) {
	q := &Queue{
		repo:            database.NewQueueRepository(db),
		deliverer:       deliverer,
		clock:           clock.Real(),
		logger:          logrus.StandardLogger(),
		maxRetries:      DefaultMaxRetries,
		deliveryTimeout: DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(q)
	}

	restored, err := q.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	q.logger.WithField("pending", restored).Info("offline queue restored")
	return q, nil
}

// Add persists a request for later delivery and returns its id. An empty
// priority means medium. When the database cannot take the write the request
// is kept in memory instead and gets a negative id.
func (q *Queue) Add(ctx context.Context, endpoint, method string, body json.RawMessage, headers map[string]string, priority models.RequestPriority) (int64, error) {
	if priority == "" {
		priority = models.RequestPriorityMedium
	}
	if method == "" {
		method = http.MethodPost
	}
	req := &models.QueuedRequest{
		Endpoint:       endpoint,
		Method:         method,
		Body:           body,
		Headers:        headers,
		Timestamp:      q.clock.Now(),
		Priority:       priority,
		IdempotencyKey: uuid.NewString(),
	}

	id, err := q.repo.Insert(ctx, req)
	if err != nil {
		id = q.keepInMemory(req)
		q.logger.WithFields(logrus.Fields{
			"id":       id,
			"endpoint": endpoint,
		}).WithError(fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)).Warn("request kept in memory only")
		return id, nil
	}

	q.logger.WithFields(logrus.Fields{
		"id":       id,
		"endpoint": endpoint,
		"method":   method,
		"priority": priority,
	}).Info("request queued")
	return id, nil
}

// Process attempts every pending request once. Only one pass runs at a time;
// a call made while a pass is in flight returns an empty summary.
func (q *Queue) Process(ctx context.Context) (Summary, error) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return Summary{}, nil
	}
	q.processing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	pending, err := q.Pending(ctx)
	if err != nil {
		return Summary{}, err
	}
	if len(pending) == 0 {
		return Summary{}, nil
	}

	var (
		summary Summary
		remove  []int64
		retries = make(map[int64]int)
	)
	for _, req := range pending {
		if ctx.Err() != nil {
			break
		}
		if q.deliver(ctx, req) {
			summary.Success++
			remove = append(remove, req.ID)
			continue
		}

		attempts := req.Retries + 1
		if attempts >= q.maxRetries {
			summary.Failed++
			remove = append(remove, req.ID)
			q.logger.WithFields(logrus.Fields{
				"id":       req.ID,
				"endpoint": req.Endpoint,
				"retries":  attempts,
			}).WithError(models.ErrDeliveryExhausted).Warn("dropping queued request")
			continue
		}
		retries[req.ID] = attempts
	}

	stored, storedRetries := q.applyInMemory(remove, retries)
	if err := q.repo.Apply(ctx, stored, storedRetries); err != nil {
		return summary, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}

	q.logger.WithFields(logrus.Fields{
		"success": summary.Success,
		"failed":  summary.Failed,
		"pending": len(retries),
	}).Info("offline queue processed")
	return summary, nil
}

func (q *Queue) deliver(ctx context.Context, req models.QueuedRequest) bool {
	ctx, cancel := context.WithTimeout(ctx, q.deliveryTimeout)
	defer cancel()

	status, err := q.deliverer.Deliver(ctx, req)
	if err != nil {
		q.logger.WithField("id", req.ID).WithError(err).Debug("delivery failed")
		return false
	}
	if status < 200 || status >= 300 {
		q.logger.WithFields(logrus.Fields{"id": req.ID, "status": status}).Debug("delivery rejected")
		return false
	}
	return true
}

// Len returns the number of pending requests
func (q *Queue) Len(ctx context.Context) (int, error) {
	inMemory := len(q.inMemory())
	n, err := q.repo.Count(ctx)
	if err != nil {
		if inMemory > 0 {
			q.logger.WithError(err).Warn("queue table unreadable, counting in-memory requests only")
			return inMemory, nil
		}
		return 0, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	return n + inMemory, nil
}

// Pending returns the pending requests in processing order
func (q *Queue) Pending(ctx context.Context) ([]models.QueuedRequest, error) {
	inMemory := q.inMemory()
	reqs, err := q.repo.ListOrdered(ctx)
	if err != nil {
		if len(inMemory) == 0 {
			return nil, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
		}
		q.logger.WithError(err).Warn("queue table unreadable, using in-memory requests only")
	}
	if len(inMemory) == 0 {
		return reqs, nil
	}

	reqs = append(reqs, inMemory...)
	sort.SliceStable(reqs, func(i, j int) bool {
		a, b := reqs[i], reqs[j]
		if ra, rb := priorityRank(a.Priority), priorityRank(b.Priority); ra != rb {
			return ra < rb
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
	return reqs, nil
}

// IsPending reports whether the request with id still awaits delivery
func (q *Queue) IsPending(ctx context.Context, id int64) (bool, error) {
	if id < 0 {
		for _, r := range q.inMemory() {
			if r.ID == id {
				return true, nil
			}
		}
		return false, nil
	}
	ok, err := q.repo.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	return ok, nil
}

// Clear discards every pending request
func (q *Queue) Clear(ctx context.Context) error {
	q.memMu.Lock()
	q.overflow = nil
	q.memMu.Unlock()

	if err := q.repo.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	q.logger.Info("offline queue cleared")
	return nil
}

func (q *Queue) keepInMemory(req *models.QueuedRequest) int64 {
	q.memMu.Lock()
	defer q.memMu.Unlock()
	q.overflowID--
	req.ID = q.overflowID
	q.overflow = append(q.overflow, *req)
	return req.ID
}

func (q *Queue) inMemory() []models.QueuedRequest {
	q.memMu.Lock()
	defer q.memMu.Unlock()
	return append([]models.QueuedRequest(nil), q.overflow...)
}

// applyInMemory settles the in-memory part of a pass and returns what is left
// for the database.
func (q *Queue) applyInMemory(remove []int64, retries map[int64]int) ([]int64, map[int64]int) {
	q.memMu.Lock()
	defer q.memMu.Unlock()

	removed := make(map[int64]bool, len(remove))
	var stored []int64
	for _, id := range remove {
		if id < 0 {
			removed[id] = true
		} else {
			stored = append(stored, id)
		}
	}
	storedRetries := make(map[int64]int, len(retries))
	for id, n := range retries {
		if id >= 0 {
			storedRetries[id] = n
		}
	}

	kept := q.overflow[:0]
	for _, r := range q.overflow {
		if removed[r.ID] {
			continue
		}
		if n, ok := retries[r.ID]; ok {
			r.Retries = n
		}
		kept = append(kept, r)
	}
	q.overflow = kept
	return stored, storedRetries
}

func priorityRank(p models.RequestPriority) int {
	switch p {
	case models.RequestPriorityHigh:
		return 0
	case models.RequestPriorityMedium:
		return 1
	default:
		return 2
	}
}
