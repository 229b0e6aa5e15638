package cmd

import (
	"context"
	"fmt"

	"github.com/example/learnsync/internal/app"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, a *app.App) error {
			if a.Monitor.Online() {
				fmt.Println("online")
			} else {
				fmt.Println("offline")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
