package models

import "time"

// ProgressRecord is the server's summary of a student's progress on one competence
type ProgressRecord struct {
	ID                 int64     `json:"id"`
	StudentID          int64     `json:"studentId"`
	CompetenceID       int64     `json:"competenceId"`
	ExercisesCompleted int       `json:"exercisesCompleted"`
	AverageScore       float64   `json:"averageScore"`
	MasteryLevel       string    `json:"masteryLevel"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ProgressFilters narrows a progress listing
type ProgressFilters struct {
	StudentID    int64  `json:"studentId"`
	CompetenceID *int64 `json:"competenceId,omitempty"`
}
