package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dbcc/internal/compiler"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dbcc version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dbcc %s\n", compiler.Version)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean [path]",
	Short: "Remove the build cache",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := splitTarget(args)
		cfg, err := loadConfig(root)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		dir, err := compiler.ClearCache(root, cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, cleanCmd)
}
