package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestScheduleEntryDecodesDateFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", `"2024-05-14T08:30:00Z"`, time.Date(2024, 5, 14, 8, 30, 0, 0, time.UTC)},
		{"date only", `"2024-05-14"`, time.Date(2024, 5, 14, 0, 0, 0, 0, time.Local)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(`{"exerciseId":3,"nextReviewDate":` + tt.raw + `,"easinessFactor":2.5,"repetitionNumber":2,"priority":"high"}`)
			var entry ScheduleEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !entry.NextReviewDate.Equal(tt.want) {
				t.Fatalf("NextReviewDate = %s, want %s", entry.NextReviewDate, tt.want)
			}
			if entry.ExerciseID != 3 || entry.EasinessFactor != 2.5 || entry.RepetitionNumber != 2 || entry.Priority != ReviewPriorityHigh {
				t.Fatalf("other fields lost: %+v", entry)
			}
		})
	}
}

func TestScheduleEntryRejectsGarbageDate(t *testing.T) {
	var entry ScheduleEntry
	if err := json.Unmarshal([]byte(`{"exerciseId":3,"nextReviewDate":"next tuesday"}`), &entry); err == nil {
		t.Fatal("expected an error")
	}
}

func TestScheduleListDecodes(t *testing.T) {
	var entries []ScheduleEntry
	raw := `[{"exerciseId":1,"nextReviewDate":"2024-05-14"},{"exerciseId":2,"nextReviewDate":"2024-05-20T00:00:00+02:00"}]`
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(entries) != 2 || entries[0].NextReviewDate.Day() != 14 || entries[1].ExerciseID != 2 {
		t.Fatalf("entries = %+v", entries)
	}
}
