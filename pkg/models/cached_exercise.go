package models

import "time"

// CachedExercise is an exercise stored locally for one specific student
type CachedExercise struct {
	Exercise
	StudentID        int64                 `json:"studentId"`
	CachedAt         time.Time             `json:"cachedAt"`
	CacheUntil       time.Time             `json:"cacheUntil"`
	SpacedRepetition *SpacedRepetitionMeta `json:"spacedRepetition,omitempty"` // nil when the exercise has no schedule yet
}

// CachedExerciseInfo pairs a stored entry with whether it is currently served offline
type CachedExerciseInfo struct {
	CachedExercise
	Readable bool `json:"readable"`
}
