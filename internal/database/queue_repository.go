package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/learnsync/pkg/models"
)

// queueOrder is high, medium, low priority, then FIFO within a band
const queueOrder = `
	ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		timestamp ASC, id ASC`

type queueRow struct {
	ID             int64          `db:"id"`
	Endpoint       string         `db:"endpoint"`
	Method         string         `db:"method"`
	Body           sql.NullString `db:"body"`
	Headers        sql.NullString `db:"headers"`
	Timestamp      int64          `db:"timestamp"`
	Retries        int            `db:"retries"`
	Priority       string         `db:"priority"`
	IdempotencyKey string         `db:"idempotency_key"`
}

// QueueRepository persists the outbound request queue
type QueueRepository struct {
	db *DB
}

// NewQueueRepository creates a new repository instance
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Insert appends a request and returns its assigned id
func (r *QueueRepository) Insert(ctx context.Context, req *models.QueuedRequest) (int64, error) {
	var body, headers sql.NullString
	if len(req.Body) > 0 {
		body = sql.NullString{String: string(req.Body), Valid: true}
	}
	if len(req.Headers) > 0 {
		encoded, err := json.Marshal(req.Headers)
		if err != nil {
			return 0, fmt.Errorf("failed to encode headers: %w", err)
		}
		headers = sql.NullString{String: string(encoded), Valid: true}
	}

	query := r.db.Rebind(`
		INSERT INTO offline_queue (
			endpoint, method, body, headers, timestamp, retries, priority, idempotency_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		req.Endpoint,
		req.Method,
		body,
		headers,
		req.Timestamp.UnixMilli(),
		req.Retries,
		string(req.Priority),
		req.IdempotencyKey,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to queue request: %w", err)
	}
	return id, nil
}

// ListOrdered returns pending requests in processing order
func (r *QueueRepository) ListOrdered(ctx context.Context) ([]models.QueuedRequest, error) {
	var rows []queueRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM offline_queue`+queueOrder); err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	requests := make([]models.QueuedRequest, 0, len(rows))
	for _, row := range rows {
		req := models.QueuedRequest{
			ID:             row.ID,
			Endpoint:       row.Endpoint,
			Method:         row.Method,
			Timestamp:      time.UnixMilli(row.Timestamp),
			Retries:        row.Retries,
			Priority:       models.RequestPriority(row.Priority),
			IdempotencyKey: row.IdempotencyKey,
		}
		if row.Body.Valid {
			req.Body = json.RawMessage(row.Body.String)
		}
		if row.Headers.Valid {
			if err := json.Unmarshal([]byte(row.Headers.String), &req.Headers); err != nil {
				return nil, fmt.Errorf("failed to decode headers of request %d: %w", row.ID, err)
			}
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// Apply removes delivered or exhausted requests and stores new retry counts in
// one transaction.
func (r *QueueRepository) Apply(ctx context.Context, remove []int64, retries map[int64]int) error {
	if len(remove) == 0 && len(retries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteQuery := tx.Rebind(`DELETE FROM offline_queue WHERE id = ?`)
	for _, id := range remove {
		if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
			return fmt.Errorf("failed to remove request %d: %w", id, err)
		}
	}

	updateQuery := tx.Rebind(`UPDATE offline_queue SET retries = ? WHERE id = ?`)
	for id, count := range retries {
		if _, err := tx.ExecContext(ctx, updateQuery, count, id); err != nil {
			return fmt.Errorf("failed to update retries of request %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue changes: %w", err)
	}
	return nil
}

// Count returns the number of pending requests
func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM offline_queue`); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}

// Exists reports whether the request is still pending
func (r *QueueRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM offline_queue WHERE id = ?`), id); err != nil {
		return false, fmt.Errorf("failed to look up request %d: %w", id, err)
	}
	return count > 0, nil
}

// Clear drops every pending request
func (r *QueueRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM offline_queue`); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}
