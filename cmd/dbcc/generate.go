package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dbcc/internal/compiler"
	"github.com/robert-at-pretension-io/dbcc/internal/diag"
)

var (
	genOutput   string
	genNoPrint  bool
	genNoVerify bool
	genNoCache  bool
	genStdout   bool
	genTiming   string
)

var generateCmd = &cobra.Command{
	Use:   "generate [path | file.dbc...]",
	Short: "Generate C pack/unpack code from DBC files",
	Long: `Build every DBC file under path (or the files given) and write a <db>.h and
<db>.c pair per database into the output directory.

With --stdout the generated code is printed instead of written, highlighted
when stdout is a terminal.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "output directory (overrides output.dir)")
	generateCmd.Flags().BoolVar(&genNoPrint, "no-print", false, "omit print routines")
	generateCmd.Flags().BoolVar(&genNoVerify, "no-verify", false, "skip parsing the generated C")
	generateCmd.Flags().BoolVar(&genNoCache, "no-cache", false, "ignore the build cache")
	generateCmd.Flags().BoolVar(&genStdout, "stdout", false, "print generated code instead of writing files")
	generateCmd.Flags().StringVar(&genTiming, "timing", "", "write pipeline timing events (JSONL) to file")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	root, files := splitTarget(args)
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if genOutput != "" {
		cfg.Output.Dir = genOutput
	}
	off := false
	if genNoPrint {
		cfg.Output.Print = &off
	}
	if genNoVerify {
		cfg.Output.Verify = &off
	}
	if genNoCache {
		cfg.Analysis.Cache.Enabled = &off
	}

	c := compiler.New(cfg)
	c.Log = log
	c.Sink = diag.Logrus(log)
	c.Write = !genStdout
	c.TimingPath = genTiming

	result, runErr := c.Run(cmd.Context(), root, files...)
	if result == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	st := newStyles(os.Stdout)
	if genStdout {
		for _, u := range result.Units {
			fmt.Fprintln(out, st.dim.Render("/* ---- "+u.HeaderName+" ---- */"))
			if err := writeCode(out, u.Header, st.color); err != nil {
				return err
			}
			fmt.Fprintln(out, st.dim.Render("/* ---- "+u.SourceName+" ---- */"))
			if err := writeCode(out, u.Source, st.color); err != nil {
				return err
			}
		}
	} else {
		for _, f := range result.Files {
			written := make([]string, 0, len(f.Written))
			for _, w := range f.Written {
				written = append(written, relPath(w))
			}
			note := ""
			if f.Cached {
				note = st.dim.Render(" (cached)")
			}
			fmt.Fprintf(out, "%s %s → %v%s\n", st.ok.Render("✓"), relPath(f.Path), written, note)
		}
	}

	for _, e := range result.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", st.icon("error"), relPath(e.File), e.Message)
	}
	if runErr != nil {
		return runErr
	}
	if len(result.Errors) > 0 {
		return errFailed
	}
	return nil
}

func relPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, path); err == nil && !filepath.IsAbs(rel) && len(rel) < len(path) {
		return rel
	}
	return path
}
