package models

import "errors"

// Error taxonomy shared by the store, queue and orchestrator.
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrNoCache            = errors.New("no cached data available")
	ErrStorageUnavailable = errors.New("local storage unavailable")
	ErrDeliveryExhausted  = errors.New("queued request exhausted its retries")
	ErrTooManyListeners   = errors.New("too many network listeners")
)

// Result error codes
const (
	CodeNoCache            = "NO_CACHE"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeRequestFailed      = "REQUEST_FAILED"
)
