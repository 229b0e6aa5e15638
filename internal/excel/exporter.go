package excel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/learnsync/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the diagnostics workbook
const (
	ExercisesSheet = "Exercises"
	QueueSheet     = "Queue"
)

var exerciseHeader = []interface{}{
	"Exercise ID", "Title", "Subject", "Level", "Competence", "Student ID",
	"Cached At", "Cache Until", "Next Review", "Priority", "Repetition", "Easiness", "Readable",
}

var queueHeader = []interface{}{
	"Queue ID", "Method", "Endpoint", "Priority", "Queued At", "Retries", "Idempotency Key", "Body",
}

// ExportResult holds the result of an export operation
type ExportResult struct {
	Path      string
	Exercises int
	Requests  int
}

// ExportDiagnostics writes the cached exercises and the pending queue to an
// xlsx workbook at path.
func ExportDiagnostics(path string, exercises []models.CachedExerciseInfo, requests []models.QueuedRequest) (*ExportResult, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".xlsx" {
		return nil, fmt.Errorf("unsupported export format %q, expected .xlsx", ext)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create export directory: %v", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(ExercisesSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %v", err)
	}
	queueIndex, err := f.NewSheet(QueueSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %v", err)
	}
	f.DeleteSheet("Sheet1")

	if err := writeRows(f, ExercisesSheet, exerciseHeader, exerciseRows(exercises)); err != nil {
		return nil, err
	}
	if err := writeRows(f, QueueSheet, queueHeader, queueRows(requests)); err != nil {
		return nil, err
	}
	if len(exercises) == 0 && len(requests) > 0 {
		f.SetActiveSheet(queueIndex)
	}

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("failed to save workbook: %v", err)
	}
	return &ExportResult{Path: path, Exercises: len(exercises), Requests: len(requests)}, nil
}

func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %v", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %v", sheet, i+2, err)
		}
	}
	return nil
}

func exerciseRows(exercises []models.CachedExerciseInfo) [][]interface{} {
	rows := make([][]interface{}, 0, len(exercises))
	for _, e := range exercises {
		var next, priority string
		var repetition interface{} = ""
		var easiness interface{} = ""
		if m := e.SpacedRepetition; m != nil {
			next = m.NextReviewDate.Format("2006-01-02")
			priority = string(m.Priority)
			repetition = m.RepetitionNumber
			easiness = m.EasinessFactor
		}
		rows = append(rows, []interface{}{
			e.ID,
			e.Title,
			e.Subject,
			e.Level,
			e.CompetenceCode,
			e.StudentID,
			e.CachedAt.Format(time.RFC3339),
			e.CacheUntil.Format(time.RFC3339),
			next,
			priority,
			repetition,
			easiness,
			e.Readable,
		})
	}
	return rows
}

func queueRows(requests []models.QueuedRequest) [][]interface{} {
	rows := make([][]interface{}, 0, len(requests))
	for _, r := range requests {
		rows = append(rows, []interface{}{
			r.ID,
			r.Method,
			r.Endpoint,
			string(r.Priority),
			r.Timestamp.Format(time.RFC3339),
			r.Retries,
			r.IdempotencyKey,
			string(r.Body),
		})
	}
	return rows
}
