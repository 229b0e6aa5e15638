package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/example/learnsync/internal/app"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drain the offline request queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List pending requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			pending, err := a.Queue.Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPriority\tMethod\tEndpoint\tQueued At\tRetries")
			for _, r := range pending {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
					r.ID, r.Priority, r.Method, r.Endpoint, r.Timestamp.Format("2006-01-02 15:04:05"), r.Retries)
			}
			return w.Flush()
		})
	},
}

var queueSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver pending requests now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			if !a.Monitor.Online() {
				fmt.Println("Backend unreachable, queue left untouched.")
				return nil
			}
			summary, err := a.Orchestrator.SyncQueue(ctx)
			if err != nil {
				return err
			}
			remaining, err := a.Orchestrator.QueueLength(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Delivered %d, dropped %d, %d still pending.\n", summary.Success, summary.Failed, remaining)
			return nil
		})
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every pending request",
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			return a.Queue.Clear(ctx)
		})
	},
}

func init() {
	queueCmd.AddCommand(queueStatusCmd, queueSyncCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
