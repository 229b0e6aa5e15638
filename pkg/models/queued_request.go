package models

import (
	"encoding/json"
	"time"
)

// RequestPriority orders pending mutations in the outbound queue
type RequestPriority string

const (
	RequestPriorityHigh   RequestPriority = "high"
	RequestPriorityMedium RequestPriority = "medium"
	RequestPriorityLow    RequestPriority = "low"
)

// QueuedRequest is a mutation durably recorded for later delivery
type QueuedRequest struct {
	ID             int64             `json:"id"`
	Endpoint       string            `json:"endpoint"`
	Method         string            `json:"method"`
	Body           json.RawMessage   `json:"body,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Retries        int               `json:"retries"`
	Priority       RequestPriority   `json:"priority"`
	IdempotencyKey string            `json:"idempotencyKey"`
}
