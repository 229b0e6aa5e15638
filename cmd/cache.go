package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/example/learnsync/internal/app"
	"github.com/example/learnsync/internal/excel"
	"github.com/spf13/cobra"
)

var exportStudentID int64

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list <student-id>",
	Short: "Show every cached exercise of a student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Store.InspectExercises(ctx, studentID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No cached exercises.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTitle\tLevel\tNext Review\tPriority\tExpires\tReadable")
			for _, e := range entries {
				next, priority := "-", "-"
				if m := e.SpacedRepetition; m != nil {
					next = m.NextReviewDate.Format("2006-01-02")
					priority = string(m.Priority)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
					e.ID, e.Title, e.Level, next, priority, e.CacheUntil.Format("2006-01-02 15:04"), e.Readable)
			}
			return w.Flush()
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe cached content (the request queue is kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			return a.Orchestrator.Logout(ctx)
		})
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Write cached exercises and pending requests to a workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Store.InspectExercises(ctx, exportStudentID)
			if err != nil {
				return err
			}
			pending, err := a.Queue.Pending(ctx)
			if err != nil {
				return err
			}
			result, err := excel.ExportDiagnostics(args[0], entries, pending)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d exercises and %d queued requests to %s\n", result.Exercises, result.Requests, result.Path)
			return nil
		})
	},
}

func init() {
	cacheExportCmd.Flags().Int64Var(&exportStudentID, "student", 0, "student whose cache to export")
	cacheExportCmd.MarkFlagRequired("student")
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd, cacheExportCmd)
	rootCmd.AddCommand(cacheCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
