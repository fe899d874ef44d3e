// Package cmd is the CLI boundary: flag parsing, wiring, and exit codes.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
)

var (
	app       config.App
	logLevel  string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:           "groceryworker",
	Short:         "Grocery product scraper for Canadian storefronts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; environment wins either way
		_ = godotenv.Load()
		app = config.LoadApp()
		logger.InitWithOptions(logLevel, app.LogDir)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "directory holding per-site config files")
}

// Execute runs the CLI and maps the outcome to the process exit code:
// 0 for success or a clean interrupt, 1 for fatal errors, 2 for missing or
// invalid configuration
func Execute() int {
	defer logger.Close()

	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("Interrupted, state saved")
		return 0
	}

	var serr *scraperrors.ScrapeError
	if errors.As(err, &serr) && serr.Type == scraperrors.ErrorTypeConfiguration {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}

	logger.Error("Fatal: %v", err)
	return 1
}

// signalContext cancels on SIGINT/SIGTERM so the run drains through its
// checkpoint-and-stats shutdown path
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
