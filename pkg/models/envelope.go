package models

// APIError is the error part of a response envelope
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Envelope is the uniform backend response shape
type Envelope[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// Result is what the orchestrator hands to callers. FromCache is set when Data
// did not come from a live backend call in this request.
type Result[T any] struct {
	Success   bool      `json:"success"`
	Data      T         `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	FromCache bool      `json:"fromCache"`
}
