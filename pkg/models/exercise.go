package models

import "encoding/json"

// Exercise is one practice item as served by the backend
type Exercise struct {
	ID               int64           `json:"id" db:"id"`
	Title            string          `json:"title" db:"title"`
	Description      string          `json:"description" db:"description"`
	Subject          string          `json:"subject" db:"subject"`
	Level            string          `json:"level" db:"level"`
	Difficulty       int             `json:"difficulty" db:"difficulty"` // 1-5 scale
	CompetenceID     int64           `json:"competenceId" db:"competence_id"`
	CompetenceCode   string          `json:"competenceCode" db:"competence_code"`
	Type             string          `json:"type" db:"type"` // e.g. "multiple_choice", "fill_blank"
	Configuration    json.RawMessage `json:"configuration,omitempty"`
	Content          json.RawMessage `json:"content,omitempty"`
	Solution         json.RawMessage `json:"solution,omitempty"`
	Options          []string        `json:"options,omitempty"`
	Hints            []string        `json:"hints,omitempty"`
	XPReward         int             `json:"xpReward" db:"xp_reward"`
	EstimatedMinutes int             `json:"estimatedMinutes" db:"estimated_minutes"`
}

// ExerciseFilters narrows an exercise listing
type ExerciseFilters struct {
	StudentID    int64  `json:"studentId"`
	CompetenceID *int64 `json:"competenceId,omitempty"`
	Level        string `json:"level,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}
