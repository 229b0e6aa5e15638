package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var runStudentID int64

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}

		a.Scheduler.OnQueueLength = func(n int) {
			a.Logger.WithField("pending", n).Info("offline queue length")
		}
		if err := a.Start(ctx); err != nil {
			a.Close()
			return fmt.Errorf("failed to start: %w", err)
		}
		if runStudentID != 0 {
			if _, err := a.Orchestrator.Authenticate(ctx, runStudentID); err != nil {
				a.Logger.WithError(err).Warn("initial preload failed")
			}
		}

		a.Logger.Info("sync engine started, press Ctrl+C to stop")
		<-ctx.Done()
		a.Logger.Info("shutting down")

		done := make(chan error, 1)
		go func() { done <- a.Close() }()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return fmt.Errorf("shutdown timed out")
		}
	},
}

func init() {
	runCmd.Flags().Int64Var(&runStudentID, "student", 0, "sign in as this student before starting")
	rootCmd.AddCommand(runCmd)
}
