package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dbcc/internal/config"
)

var (
	initYAML  bool
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a dbcc configuration file",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initYAML, "yaml", false, "write dbcc.yaml instead of dbcc.json")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := "dbcc.json"
	if initYAML {
		configPath = "dbcc.yaml"
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return fmt.Errorf("creating config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", configPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - Input and exclude patterns")
	fmt.Fprintln(out, "  - Output directory and print routines")
	fmt.Fprintln(out, "  - Lint rule severities")
	return nil
}
