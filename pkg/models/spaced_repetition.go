package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReviewPriority is the server-assigned urgency of a scheduled review
type ReviewPriority string

const (
	ReviewPriorityHigh   ReviewPriority = "high"
	ReviewPriorityMedium ReviewPriority = "medium"
	ReviewPriorityNormal ReviewPriority = "normal"
)

// SpacedRepetitionMeta is the part of the server schedule kept next to a cached exercise
type SpacedRepetitionMeta struct {
	NextReviewDate   time.Time      `json:"nextReviewDate"`
	EasinessFactor   float64        `json:"easinessFactor"`
	RepetitionNumber int            `json:"repetitionNumber"`
	Priority         ReviewPriority `json:"priority"`
}

// ScheduleEntry is one row of the server's spaced repetition schedule
type ScheduleEntry struct {
	ExerciseID       int64          `json:"exerciseId"`
	NextReviewDate   time.Time      `json:"nextReviewDate"`
	EasinessFactor   float64        `json:"easinessFactor"`
	RepetitionNumber int            `json:"repetitionNumber"`
	Priority         ReviewPriority `json:"priority"`
}

// Meta converts the schedule row into cache metadata
func (e ScheduleEntry) Meta() SpacedRepetitionMeta {
	return SpacedRepetitionMeta{
		NextReviewDate:   e.NextReviewDate,
		EasinessFactor:   e.EasinessFactor,
		RepetitionNumber: e.RepetitionNumber,
		Priority:         e.Priority,
	}
}

// UnmarshalJSON accepts nextReviewDate either as RFC 3339 or as a bare
// 2006-01-02 date, read in the local time zone.
func (e *ScheduleEntry) UnmarshalJSON(data []byte) error {
	type plain ScheduleEntry
	aux := struct {
		*plain
		NextReviewDate string `json:"nextReviewDate"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	e.NextReviewDate = time.Time{}
	if aux.NextReviewDate == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, aux.NextReviewDate); err == nil {
		e.NextReviewDate = t
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02", aux.NextReviewDate, time.Local)
	if err != nil {
		return fmt.Errorf("invalid nextReviewDate %q for exercise %d", aux.NextReviewDate, e.ExerciseID)
	}
	e.NextReviewDate = t
	return nil
}
