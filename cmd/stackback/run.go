package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sznuper/stackback/internal/backup"
	"github.com/sznuper/stackback/internal/config"
	"github.com/sznuper/stackback/internal/logging"
	"github.com/sznuper/stackback/internal/metrics"
	"github.com/sznuper/stackback/internal/notify"
	"github.com/sznuper/stackback/internal/report"
	"github.com/sznuper/stackback/internal/runlock"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backup now",
	Long: "Stops, archives and restarts every configured stack, prunes old archives and sends the report. " +
		"Exits 1 if any stack failed. Use --dry-run to check stacks, list prunable archives and " +
		"validate notification targets without touching anything.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Close()

		if dryRun {
			return planRun(cmd, cfg, logger)
		}

		lock, err := runlock.Acquire(cfg.Options.LockFile)
		if err != nil {
			return err
		}
		defer lock.Release()

		rep, err := runBackup(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		printRunSummary(cmd.OutOrStdout(), rep)
		if rep.Status() == report.StatusFailed {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "check the plan without stopping stacks, deleting archives or sending mail")
	rootCmd.AddCommand(runCmd)
}

// runBackup performs one run and writes metrics if configured. The caller
// holds the run lock.
func runBackup(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*report.RunReport, error) {
	logger.Recorder.Reset()

	o, err := backup.New(cfg, logger.Logger, backup.WithLogLines(logger.Recorder.Lines))
	if err != nil {
		return nil, err
	}
	rep, err := o.Run(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Options.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Options.MetricsFile, rep); err != nil {
			logger.Warn("writing metrics failed", "path", cfg.Options.MetricsFile, "error", err)
		}
	}
	return rep, nil
}

func planRun(cmd *cobra.Command, cfg *config.Config, logger *logging.Logger) error {
	w := cmd.OutOrStdout()

	targets, err := backup.Targets(cfg)
	if err != nil {
		return err
	}
	o, err := backup.New(cfg, logger.Logger)
	if err != nil {
		return err
	}

	failed := false
	fmt.Fprintln(w, styleTitle.Render("Stacks"))
	for _, err := range o.Check() {
		failed = true
		fmt.Fprintf(w, "%s %v\n", failMark(), err)
	}
	for _, s := range backup.Stacks(cfg) {
		fmt.Fprintf(w, "  %s → %s\n", s.Path, s.ArchiveDir)
	}

	out, err := o.Prune(true)
	if err != nil {
		failed = true
		fmt.Fprintf(w, "%s retention: %v\n", failMark(), err)
	}
	printRetention(w, "would delete", out)

	fmt.Fprintln(w, styleTitle.Render("Notifications"))
	n := notify.New(targets, true, logger.Logger)
	if err := n.Send(cmd.Context(), "dry-run", ""); err != nil {
		failed = true
		fmt.Fprintf(w, "%s %v\n", failMark(), err)
	} else {
		fmt.Fprintf(w, "%s %d target(s) valid\n", okMark(), len(targets))
	}

	if failed {
		return errRunFailed
	}
	return nil
}
