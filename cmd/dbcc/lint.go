package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dbcc/internal/compiler"
	"github.com/robert-at-pretension-io/dbcc/internal/validator"
)

var (
	lintJSON     bool
	lintPolicies []string
)

var lintCmd = &cobra.Command{
	Use:   "lint [path | file.dbc...]",
	Short: "Check DBC files against lint rules",
	Long: `Build every DBC file and evaluate the lint rules: overlapping signals,
signals past the data length, inverted ranges, empty messages and value table
entries the raw field cannot hold.

Rule severities come from lint.rules in the configuration; "off" disables a
rule. Extra rules in package dbc.lint can be loaded with --policy.`,
	RunE: runLint,
}

func init() {
	lintCmd.Flags().BoolVar(&lintJSON, "json", false, "print results as JSON")
	lintCmd.Flags().StringArrayVar(&lintPolicies, "policy", nil, "directory of additional .rego rules (repeatable)")
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	root, files := splitTarget(args)
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c := compiler.New(cfg)
	c.Log = log
	c.Generate = false
	c.Lint = true
	c.PolicyDirs = lintPolicies

	result, runErr := c.Run(cmd.Context(), root, files...)
	if result == nil {
		return runErr
	}

	if lintJSON {
		doc := result.LintOutput()
		ov, err := validator.NewOutputValidator()
		if err != nil {
			return fmt.Errorf("CRITICAL: Failed to initialize output validator: %w", err)
		}
		if err := ov.Validate(doc); err != nil {
			return fmt.Errorf("CRITICAL: Output contract violation: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
	} else {
		printLint(cmd, result)
	}

	if runErr != nil {
		return runErr
	}
	if result.Failed() {
		return errFailed
	}
	return nil
}

func printLint(cmd *cobra.Command, result *compiler.Result) {
	out := cmd.OutOrStdout()
	st := newStyles(os.Stdout)

	if len(result.Diagnostics) > 0 {
		fmt.Fprintf(out, "\n%s\n", st.heading.Render("Diagnostics"))
		for _, d := range result.Diagnostics {
			fmt.Fprintf(out, "%s %s\n", st.icon(d.Severity.String()), d)
		}
	}
	if len(result.Violations) > 0 {
		fmt.Fprintf(out, "\n%s\n", st.heading.Render("Violations"))
		for _, v := range result.Violations {
			fmt.Fprintf(out, "%s %s %s:%d - %s\n", st.icon(v.Severity),
				st.severity(v.Severity).Render("["+v.Rule+"]"), relPath(v.File), v.Line, v.Message)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\n%s\n", st.heading.Render("Build Errors"))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "%s %s: %s\n", st.icon("error"), relPath(e.File), e.Message)
		}
	}

	fmt.Fprintf(out, "\n%s\n", st.heading.Render("Summary"))
	fmt.Fprintf(out, "  Files:    %d\n", len(result.Files)+len(result.Errors))
	fmt.Fprintf(out, "  Errors:   %s\n", st.err.Render(fmt.Sprint(result.Summary.Errors)))
	fmt.Fprintf(out, "  Warnings: %s\n", st.warn.Render(fmt.Sprint(result.Summary.Warnings)))
	fmt.Fprintf(out, "  Info:     %s\n", st.info.Render(fmt.Sprint(result.Summary.Info)))
}
