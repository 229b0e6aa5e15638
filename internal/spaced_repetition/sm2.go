package spaced_repetition

import (
	"sort"
	"time"

	"github.com/example/learnsync/pkg/models"
)

// DefaultLookAhead is how far ahead of today scheduled reviews are preloaded
const DefaultLookAhead = 7 * 24 * time.Hour

// StartOfDay truncates t to midnight in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// IsDue reports whether a review scheduled at next is due on now's calendar day
// or earlier. Days are compared in now's location.
func IsDue(next, now time.Time) bool {
	loc := now.Location()
	return !StartOfDay(next, loc).After(StartOfDay(now, loc))
}

// Readable reports whether a cached exercise may be served offline at now:
// the cache window has not passed and, if scheduled, the review is due.
func Readable(e models.CachedExercise, now time.Time) bool {
	if now.After(e.CacheUntil) {
		return false
	}
	if e.SpacedRepetition == nil {
		return true
	}
	return IsDue(e.SpacedRepetition.NextReviewDate, now)
}

// WithinLookAhead reports whether a review at next falls inside the preload
// window starting at now. Overdue reviews are inside the window.
func WithinLookAhead(next, now time.Time, window time.Duration) bool {
	return !next.After(now.Add(window))
}

// PriorityRank orders review priorities: high, medium, normal, then unscheduled.
func PriorityRank(meta *models.SpacedRepetitionMeta) int {
	if meta == nil {
		return 3
	}
	switch meta.Priority {
	case models.ReviewPriorityHigh:
		return 0
	case models.ReviewPriorityMedium:
		return 1
	default:
		return 2
	}
}

// SortForReview orders cached exercises the way they should be practiced:
// 1. by review priority (high first, unscheduled exercises last)
// 2. by next review date, earliest first
// 3. by exercise id
func SortForReview(entries []models.CachedExercise) {
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := PriorityRank(entries[i].SpacedRepetition), PriorityRank(entries[j].SpacedRepetition)
		if ri != rj {
			return ri < rj
		}

		mi, mj := entries[i].SpacedRepetition, entries[j].SpacedRepetition
		if mi != nil && mj != nil && !mi.NextReviewDate.Equal(mj.NextReviewDate) {
			return mi.NextReviewDate.Before(mj.NextReviewDate)
		}

		return entries[i].ID < entries[j].ID
	})
}

// BuildScheduleIndex maps exercise id to cache metadata for every schedule entry
// due within window of now.
func BuildScheduleIndex(schedule []models.ScheduleEntry, now time.Time, window time.Duration) map[int64]models.SpacedRepetitionMeta {
	index := make(map[int64]models.SpacedRepetitionMeta, len(schedule))
	for _, entry := range schedule {
		if !WithinLookAhead(entry.NextReviewDate, now, window) {
			continue
		}
		index[entry.ExerciseID] = entry.Meta()
	}
	return index
}
