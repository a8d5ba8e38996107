package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sznuper/stackback/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration",
	Long:  "Prints a commented example config, or writes it to path. An existing file is never overwritten.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			_, err := cmd.OutOrStdout().Write(config.Example)
			return err
		}

		path := args[0]
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		if _, err := f.Write(config.Example); err != nil {
			f.Close()
			return fmt.Errorf("writing config: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", okMark(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
