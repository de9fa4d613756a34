package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coresight/coresight/internal/config"
	"github.com/coresight/coresight/internal/logging"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	jsonLogs   bool

	cfg    config.Config
	logger = zap.NewNop()
	app    *App
)

var rootCmd = &cobra.Command{
	Use:   "coresight",
	Short: "Match work to people and keep team profiles current",
	Long: `CoreSight folds duplicate issues into existing tasks, assigns tasks to the
developers whose skills fit best, evolves developer profiles from their
commits and reports on impact, cost and focus.

Configuration is read from .coresight/config.yaml (or --config) and then
overridden by CORESIGHT_* environment variables and flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.ApplyEnv(); err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Storage.Path = dbPath
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if jsonLogs {
			loaded.Logging.JSON = true
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		l, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			if err := app.Close(); err != nil {
				logger.Warn("failed to close", zap.Error(err))
			}
			app = nil
		}
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .coresight/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: discover .coresight/*.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit JSON logs")
}

// mustApp opens the engines on first use or exits.
func mustApp(cmd *cobra.Command) *App {
	if app != nil {
		return app
	}
	a, err := OpenApp(cmd.Context(), cfg, dbPath != "", logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	app = a
	return app
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
