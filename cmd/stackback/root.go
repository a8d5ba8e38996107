package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sznuper/stackback/internal/config"
	"github.com/sznuper/stackback/internal/logging"
)

// errRunFailed makes the process exit 1 without printing another error;
// the run summary has already been shown.
var errRunFailed = errors.New("backup run failed")

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "stackback",
	Short: "Consistent backups of Docker Compose stacks",
	Long: "Stackback stops each configured compose stack, archives its directory, starts it again, " +
		"prunes archives older than the retention period and mails a report. " +
		"Run it from cron with \"stackback run\" or keep \"stackback schedule\" running.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr even when it is not a terminal")
	registerOptionFlags(rootCmd)
}

// loadConfig resolves the config file with command-line overrides applied
// before defaults and validation.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	return config.Resolve(cfgFile, func(c *config.Config) {
		applyOptionFlags(cmd, c)
	})
}

func setupLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Options.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.Setup(logging.Options{
		Level:   level,
		File:    cfg.Options.LogFile,
		Verbose: verbose,
	})
}

// stderrLogger is used before a config is available.
func stderrLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
