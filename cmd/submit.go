package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/learnsync/internal/app"
	"github.com/example/learnsync/pkg/models"
	"github.com/spf13/cobra"
)

var attempt models.AttemptResult

var submitCmd = &cobra.Command{
	Use:   "submit <exercise-id>",
	Short: "Submit an exercise attempt, queueing it when offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exerciseID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			result := a.Orchestrator.SubmitExercise(ctx, exerciseID, attempt)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("submission failed: %s", result.Error.Message)
			}
			return nil
		})
	},
}

func init() {
	submitCmd.Flags().Int64Var(&attempt.StudentID, "student", 0, "student id")
	submitCmd.Flags().Float64Var(&attempt.Score, "score", 0, "score in percent")
	submitCmd.Flags().BoolVar(&attempt.Correct, "correct", false, "whether the answer was correct")
	submitCmd.Flags().IntVar(&attempt.TimeSpentSec, "time", 0, "time spent in seconds")
	submitCmd.Flags().IntVar(&attempt.HintsUsed, "hints", 0, "hints used")
	rootCmd.AddCommand(submitCmd)
}
