package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/robert-at-pretension-io/dbcc/internal/compiler"
	"github.com/robert-at-pretension-io/dbcc/internal/config"
	"github.com/robert-at-pretension-io/dbcc/internal/facts"
	"github.com/robert-at-pretension-io/dbcc/internal/validator"
)

func main() {
	output := flag.String("output", "", "write facts JSON to file (default: stdout)")
	flag.StringVar(output, "o", "", "write facts JSON to file (shorthand)")
	deltaFrom := flag.String("delta-from", "", "previous facts JSON to compute delta from")
	deltaOut := flag.String("delta-out", "", "write delta JSON to file (requires --delta-from)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: dbc-facts [--output file] [--delta-from prev.json --delta-out delta.json] <path | file.dbc...>")
		os.Exit(1)
	}

	root, files := args[0], []string(nil)
	if len(args) > 1 {
		root, files = ".", args
	}
	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	c := compiler.New(cfg)
	c.Generate = false
	result, runErr := c.Run(context.Background(), root, files...)
	if result == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "%s: %s\n", e.File, e.Message)
	}
	if len(result.Errors) > 0 {
		os.Exit(1)
	}

	tables := facts.BuildTables(result.Databases)
	fv, err := validator.NewFactsValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating facts validator: %v\n", err)
		os.Exit(1)
	}
	if err := fv.Validate(tables); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Fact table contract violation: %v\n", err)
		os.Exit(1)
	}

	if *output != "" {
		if err := writeJSON(*output, tables); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing facts: %v\n", err)
			os.Exit(1)
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tables); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding facts: %v\n", err)
			os.Exit(1)
		}
	}

	if *deltaFrom != "" || *deltaOut != "" {
		if *deltaFrom == "" || *deltaOut == "" {
			fmt.Fprintln(os.Stderr, "Error: --delta-from and --delta-out must be used together")
			os.Exit(1)
		}
		prev, err := readTables(*deltaFrom)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading delta-from: %v\n", err)
			os.Exit(1)
		}
		if err := fv.Validate(prev); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s is not a fact table document: %v\n", *deltaFrom, err)
			os.Exit(1)
		}
		delta := facts.ComputeDelta(prev, tables)
		if err := writeJSON(*deltaOut, delta); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing delta: %v\n", err)
			os.Exit(1)
		}
	}

	if runErr != nil {
		// Pipeline warnings (cache, timing) do not invalidate the facts.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", runErr)
	}
}

func readTables(path string) (facts.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return facts.Tables{}, err
	}
	defer func() { _ = f.Close() }()

	var tables facts.Tables
	if err := json.NewDecoder(f).Decode(&tables); err != nil {
		return facts.Tables{}, err
	}
	return tables, nil
}

func writeJSON(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
