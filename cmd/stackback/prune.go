package main

import (
	"github.com/spf13/cobra"

	"github.com/sznuper/stackback/internal/backup"
	"github.com/sznuper/stackback/internal/runlock"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archives older than the retention period",
	Long:  "Applies retention to every archive directory without running a backup. Use --dry-run to list what would be deleted.",
	Args:  cobra.NoArgs,
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

		if !dryRun {
			lock, err := runlock.Acquire(cfg.Options.LockFile)
			if err != nil {
				return err
			}
			defer lock.Release()
		}

		o, err := backup.New(cfg, logger.Logger)
		if err != nil {
			return err
		}
		out, err := o.Prune(dryRun)

		verb := "Deleted"
		if dryRun {
			verb = "Would delete"
		}
		printRetention(cmd.OutOrStdout(), verb, out)

		if err != nil {
			return err
		}
		if len(out.Skipped) > 0 {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	pruneCmd.Flags().Bool("dry-run", false, "list expired archives without deleting them")
	rootCmd.AddCommand(pruneCmd)
}
