package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/robert-at-pretension-io/dbcc/internal/compiler"
	"github.com/robert-at-pretension-io/dbcc/internal/config"
)

// errFailed is returned when a run completed but reported failures that
// were already printed.
var errFailed = errors.New("dbcc: failures reported")

var (
	configPath string
	verbose    bool

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "dbcc",
	Short: "DBC to C codec compiler",
	Long: `dbcc compiles CAN database (.dbc) files into C code that packs and unpacks
each message into a 64-bit frame, converts between raw and physical values and
dispatches on message identifiers.

Configuration is read from dbcc.json, .dbcc.json, dbcc.yaml or dbcc.yml in the
current directory or the project root, then ~/.config/dbcc/config.json.
Run 'dbcc init' to create one.`,
	Version:       compiler.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		ForceColors:      term.IsTerminal(int(os.Stderr.Fd())),
	})
	log.SetLevel(logrus.InfoLevel)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default: search dbcc.json/dbcc.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig reads --config when given, otherwise searches from root.
// A broken config found by search falls back to defaults with a warning.
func loadConfig(root string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	cfg, err := config.Load(root)
	if err != nil {
		log.WithError(err).Warn("could not load config, using defaults")
		return config.DefaultConfig(), nil
	}
	return cfg, nil
}

// splitTarget turns positional arguments into a root path and an optional
// explicit file list.
func splitTarget(args []string) (string, []string) {
	switch len(args) {
	case 0:
		return ".", nil
	case 1:
		return args[0], nil
	}
	return ".", args
}
