package models

// AttemptResult is what the learner produced for one exercise
type AttemptResult struct {
	Score        float64 `json:"score"`
	Answer       any     `json:"answer,omitempty"`
	TimeSpentSec int     `json:"timeSpent"`
	HintsUsed    int     `json:"hintsUsed"`
	Correct      bool    `json:"correct"`
	StudentID    int64   `json:"studentId,omitempty"`
}

// AttemptPayload is the body posted to the attempt endpoint
type AttemptPayload struct {
	ExerciseID int64 `json:"exerciseId"`
	AttemptResult
}

// SubmissionResult is the outcome of submitting an attempt
type SubmissionResult struct {
	Success  bool    `json:"success"`
	Queued   bool    `json:"queued"`
	XPEarned int     `json:"xpEarned"`
	Score    float64 `json:"score,omitempty"`
	Feedback string  `json:"feedback,omitempty"`
	QueueID  int64   `json:"queueId,omitempty"` // set only when Queued

	Error *APIError `json:"error,omitempty"`
}
