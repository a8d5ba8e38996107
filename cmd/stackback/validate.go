package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sznuper/stackback/internal/backup"
	"github.com/sznuper/stackback/internal/command"
	"github.com/sznuper/stackback/internal/notify"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and environment",
	Long:  "Checks the config file, the compose and tar binaries, every stack directory and the notification targets.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()

		cfg, path, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(w, "%s config\n", failMark())
			return err
		}
		fmt.Fprintf(w, "%s config %s\n", okMark(), styleMuted.Render(path))

		failed := false
		check := func(label string, err error) {
			if err != nil {
				failed = true
				fmt.Fprintf(w, "%s %s: %v\n", failMark(), label, err)
				return
			}
			fmt.Fprintf(w, "%s %s\n", okMark(), label)
		}

		for _, bin := range []string{cfg.Compose.Command[0], cfg.Archive.Command} {
			p, err := command.LookPath(bin)
			if err == nil {
				bin = fmt.Sprintf("%s %s", bin, styleMuted.Render(p))
			}
			check(bin, err)
		}

		o, err := backup.New(cfg, stderrLogger())
		if err != nil {
			return err
		}
		stacks := backup.Stacks(cfg)
		check(fmt.Sprintf("%d stack directories", len(stacks)), errors.Join(o.Check()...))

		targets, err := backup.Targets(cfg)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Fprintf(w, "%s %s\n", styleWarn.Render("!"), "no notification targets configured")
		}
		for _, t := range targets {
			check("notify "+t.ServiceName, notify.Validate(t))
		}

		if failed {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
