package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/example/learnsync/internal/app"
	"github.com/example/learnsync/internal/config"
	"github.com/example/learnsync/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "learnsync",
	Short: "Offline-first sync and spaced repetition cache for learning content",
	Long: `learnsync keeps a student's exercises available without a network
connection, queues attempts made while offline and replays them once the
backend is reachable again.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

// loadApp reads configuration and builds the application. The caller closes it.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

// oneShot builds the app, runs the initial probe and hands it to fn
func oneShot(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Monitor.Start(ctx)
	return fn(ctx, a)
}
