package models

import (
	"encoding/json"
	"time"
)

// StudentBlob is an arbitrary keyed value cached for the student
type StudentBlob struct {
	Key       string          `json:"key" db:"key"`
	Value     json.RawMessage `json:"value" db:"value"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}
