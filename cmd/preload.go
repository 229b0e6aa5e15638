package cmd

import (
	"context"
	"fmt"

	"github.com/example/learnsync/internal/app"
	"github.com/spf13/cobra"
)

var preloadCmd = &cobra.Command{
	Use:   "preload <student-id>",
	Short: "Cache a student's recommended exercises for offline use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			summary, err := a.Orchestrator.Authenticate(ctx, studentID)
			if err != nil {
				return err
			}
			if summary.Skipped {
				fmt.Println("Backend unreachable, nothing preloaded.")
				return nil
			}
			fmt.Printf("Cached %d exercises for student %d (%d with a review scheduled within the look-ahead window).\n",
				summary.Cached, studentID, summary.Scheduled)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(preloadCmd)
}
