// Package cli implements the contradeploy command line.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contradeploy/internal/observability/metrics"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	logger    = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// Execute runs the CLI until it completes or the process is interrupted
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd(version).ExecuteContext(ctx)
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "contradeploy",
		Short: "Deploy and verify smart contracts",
		Long: `Contradeploy deploys compiled contracts from a Foundry or Hardhat project,
waits for confirmation and requests source verification.

A deployment that succeeds but cannot be verified still exits 0.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = setupLogger(cmd.ErrOrStderr(), logLevel, logFormat)
			// The history server exports metrics by default, one-shot commands only on request
			metrics.Init(getEnvBool("METRICS_ENABLED", cmd.Name() == "serve"), "contradeploy")
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project config file (default: ./contradeploy.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", getEnv("LOG_FORMAT", "text"), "log format (text, json)")

	rootCmd.AddCommand(createDeployCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createHistoryCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultValue
	}
}
