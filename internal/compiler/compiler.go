package compiler

// =============================================================================
// COMPILER PHILOSOPHY: TRUST THE BUILDER, VALIDATE WITH CUE
// =============================================================================
//
// The compiler sits between the builder and the emitted C. Its job is to:
// 1. Resolve input files from configuration
// 2. Build each database in parallel (with a content-addressed cache)
// 3. Check every database against the CUE contract
// 4. Generate, verify and write the header/source units
// 5. Run lint rules over the whole set
//
// IMPORTANT: The compiler should NOT work around builder bugs!
//
// If the compiler needs to "fix" a database before generating code, either
// the PARSER dropped a construct or the BUILDER let a bad value through.
// Fix it there. A contract violation aborts the run.
// =============================================================================

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/robert-at-pretension-io/dbcc/internal/builder"
	"github.com/robert-at-pretension-io/dbcc/internal/config"
	"github.com/robert-at-pretension-io/dbcc/internal/diag"
	"github.com/robert-at-pretension-io/dbcc/internal/facts"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
	"github.com/robert-at-pretension-io/dbcc/internal/output"
	"github.com/robert-at-pretension-io/dbcc/internal/parser"
	"github.com/robert-at-pretension-io/dbcc/internal/policy"
	"github.com/robert-at-pretension-io/dbcc/internal/validator"
	"github.com/robert-at-pretension-io/dbcc/internal/verify"
)

// Compiler runs the DBC to C pipeline over a set of files.
type Compiler struct {
	// Configuration loaded from dbcc.json / dbcc.yaml
	Config *config.Config

	// Log receives progress and pipeline messages. Defaults to a discard logger.
	Log logrus.FieldLogger

	// Sink additionally receives every builder diagnostic as it is reported.
	Sink diag.Sink

	// Generate builds header/source units
	Generate bool

	// Write stores generated units in the configured output directory
	Write bool

	// Lint evaluates policy rules over the built databases
	Lint bool

	// PolicyDirs adds .rego files to the built-in rules
	PolicyDirs []string

	// Timing output (JSONL)
	Timing     bool
	TimingPath string

	// Optional tool version override (for tests)
	toolVersionOverride string
}

// Result is the structured outcome of a run. It serializes to JSON for
// programmatic consumption.
type Result struct {
	Files       []FileResult       `json:"files"`
	Violations  []policy.Violation `json:"violations"`
	Diagnostics []diag.Diagnostic  `json:"diagnostics"`
	Summary     policy.Summary     `json:"summary"`
	Errors      []FileError        `json:"errors,omitempty"`

	// Changes is the fact-level difference from the previous cached run.
	// Nil when there is no previous run or the cache is off.
	Changes *facts.Delta `json:"changes,omitempty"`

	// LintCached reports that rule output came from the lint cache.
	LintCached bool `json:"-"`

	Databases []*model.Database `json:"-"`
	Units     []*output.Unit    `json:"-"`
}

// FileResult describes one input file that built successfully.
type FileResult struct {
	Path     string   `json:"path"`
	Database string   `json:"database"`
	Messages int      `json:"messages"`
	Signals  int      `json:"signals"`
	Cached   bool     `json:"cached"`
	Written  []string `json:"written,omitempty"`
}

// FileError is an input file that failed to parse, build or generate.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// LintOutput is the `dbcc lint --json` document.
type LintOutput struct {
	Files       []string           `json:"files"`
	Violations  []policy.Violation `json:"violations"`
	Diagnostics []diag.Diagnostic  `json:"diagnostics"`
	Summary     policy.Summary     `json:"summary"`
}

// LintOutput projects the result onto the lint output contract.
func (r *Result) LintOutput() LintOutput {
	out := LintOutput{
		Files:       make([]string, 0, len(r.Files)),
		Violations:  r.Violations,
		Diagnostics: r.Diagnostics,
		Summary:     r.Summary,
	}
	for _, f := range r.Files {
		out.Files = append(out.Files, f.Path)
	}
	return out
}

// Failed reports whether any file failed or any error-severity violation
// was found.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0 || r.Summary.Errors > 0
}

// New creates a Compiler with the given configuration that builds and
// generates but neither writes nor lints.
func New(cfg *config.Config) *Compiler {
	return &Compiler{Config: cfg, Generate: true}
}

func (c *Compiler) logger() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (c *Compiler) toolVersion() string {
	if c.toolVersionOverride != "" {
		return c.toolVersionOverride
	}
	return computeToolVersion()
}

// built is the per-file outcome of the parallel build stage.
type built struct {
	db          *model.Database
	diagnostics []diag.Diagnostic
	cached      bool
	err         error
}

// Run compiles files, or every input the configuration resolves under
// rootPath when files is empty. rootPath may also name a single file.
func (c *Compiler) Run(ctx context.Context, rootPath string, files ...string) (*Result, error) {
	runStart := time.Now()
	log := c.logger()
	pipelineErrs := make([]error, 0)
	recordPipelineErr := func(err error) {
		log.WithError(err).Warn("pipeline")
		pipelineErrs = append(pipelineErrs, err)
	}

	baseDir := rootPath
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		baseDir = filepath.Dir(rootPath)
		if len(files) == 0 {
			files = []string{rootPath}
		}
	}

	timing := newTimingRecorder(runStart, c.resolveTimingPath(baseDir))
	if err := timing.Err(); err != nil {
		recordPipelineErr(fmt.Errorf("timing output disabled: %w", err))
	}
	defer timing.Close()

	// 0. Load configuration if not already loaded
	if c.Config == nil {
		cfg, err := config.Load(baseDir)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		c.Config = cfg
	}

	// 1. Find input files
	stepStart := time.Now()
	if len(files) == 0 {
		resolved, err := c.Config.ResolveInputs(baseDir)
		if err != nil {
			return nil, fmt.Errorf("resolve inputs: %w", err)
		}
		files = resolved
	}
	log.WithField("files", len(files)).Debug("inputs resolved")
	timing.RecordStage("scan", stepStart, "")

	// 2. Parallel build (with optional cache)
	stepStart = time.Now()
	var cache *buildCache
	var cacheDir string
	if cacheEnabled(c.Config) {
		cacheDir = resolveCacheDir(baseDir, c.Config)
		cache = newBuildCache(cacheDir, c.toolVersion())
		if err := cache.Load(); err != nil {
			recordPipelineErr(fmt.Errorf("cache disabled: %w", err))
			cache = nil
		}
	}

	results := make([]built, len(files))
	var cacheErrMu sync.Mutex
	var cacheErrs []error

	g, gctx := errgroup.WithContext(ctx)
	limit := c.Config.Analysis.MaxParallelFiles
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fileStart := time.Now()
			b, cacheErr := c.buildFile(file, cache)
			if cacheErr != nil {
				cacheErrMu.Lock()
				cacheErrs = append(cacheErrs, cacheErr)
				cacheErrMu.Unlock()
			}
			status := "built"
			switch {
			case b.err != nil:
				status = "failed"
			case b.cached:
				status = "cache_hit"
			}
			timing.RecordFile("build", file, status, fileStart)
			log.WithFields(logrus.Fields{"file": file, "status": status}).Debug("build")
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range cacheErrs {
		recordPipelineErr(err)
	}
	if cache != nil {
		if err := cache.Save(); err != nil {
			recordPipelineErr(fmt.Errorf("cache save failed: %w", err))
		}
	}
	timing.RecordStage("build", stepStart, "")

	result := &Result{
		Files:       []FileResult{},
		Violations:  []policy.Violation{},
		Diagnostics: []diag.Diagnostic{},
	}
	for i, b := range results {
		for _, d := range b.diagnostics {
			result.Diagnostics = append(result.Diagnostics, d)
			if c.Sink != nil {
				c.Sink.Report(d)
			}
		}
		if b.err != nil {
			result.Errors = append(result.Errors, FileError{File: files[i], Message: b.err.Error()})
			continue
		}
		result.Databases = append(result.Databases, b.db)
		fr := FileResult{Path: files[i], Database: b.db.Name, Messages: len(b.db.Messages), Cached: b.cached}
		for _, m := range b.db.Messages {
			fr.Signals += len(m.Signals)
		}
		result.Files = append(result.Files, fr)
	}

	// 3. Contract check
	stepStart = time.Now()
	v, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("CRITICAL: Failed to initialize validator: %w", err)
	}
	for _, db := range result.Databases {
		if err := v.Validate(db); err != nil {
			return nil, fmt.Errorf("CRITICAL: %s violates the database contract: %w", db.File, err)
		}
	}
	tables := facts.BuildTables(result.Databases)
	factsValidator, err := validator.NewFactsValidator()
	if err != nil {
		return nil, fmt.Errorf("CRITICAL: Failed to initialize facts validator: %w", err)
	}
	if err := factsValidator.Validate(tables); err != nil {
		return nil, fmt.Errorf("CRITICAL: Fact table contract violation: %w", err)
	}
	if cache != nil {
		if prev, ok, err := loadFactTablesCache(cacheDir); err != nil {
			recordPipelineErr(err)
		} else if ok {
			delta := facts.ComputeDelta(prev, tables)
			result.Changes = &delta
		}
		if err := saveFactTablesCache(cacheDir, tables); err != nil {
			recordPipelineErr(err)
		}
	}
	timing.RecordStage("validate", stepStart, "")

	// 4. Generate, verify, write
	if c.Generate || c.Write {
		stepStart = time.Now()
		if err := c.generate(ctx, baseDir, result); err != nil {
			return nil, err
		}
		timing.RecordStage("generate", stepStart, "")
	}

	// 5. Lint (with optional cache of the raw rule output)
	if c.Lint {
		stepStart = time.Now()
		lint, err := c.lint(ctx, cacheDir, policy.BuildInput(result.Databases), result, recordPipelineErr)
		if err != nil {
			return nil, err
		}
		lint.Apply(c.Config)
		result.Violations = lint.Violations
		result.Summary = lint.Summary
		status := ""
		if result.LintCached {
			status = "cache_hit"
		}
		timing.RecordStage("lint", stepStart, status)
	}

	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].File < result.Errors[j].File })
	timing.RecordStage("total", runStart, "")

	if len(pipelineErrs) > 0 {
		return result, fmt.Errorf("pipeline errors:\n%s", formatPipelineErrors(pipelineErrs))
	}
	return result, nil
}

// lint evaluates the rules, reusing the cached rule output when the input
// and rule sources are unchanged. cacheDir is empty when caching is off.
func (c *Compiler) lint(ctx context.Context, cacheDir string, input policy.Input, result *Result, recordErr func(error)) (*policy.Result, error) {
	var key string
	if cacheDir != "" {
		rulesHash, err := policy.RulesHash(c.PolicyDirs...)
		if err != nil {
			return nil, fmt.Errorf("initialize policy engine: %w", err)
		}
		if key, err = lintCacheKey(input, rulesHash, c.toolVersion()); err != nil {
			recordErr(err)
		} else if cached, err := loadLintCache(cacheDir, key); err != nil {
			recordErr(err)
		} else if cached != nil {
			result.LintCached = true
			return cached, nil
		}
	}

	engine, err := policy.New(c.PolicyDirs...)
	if err != nil {
		return nil, fmt.Errorf("initialize policy engine: %w", err)
	}
	lint, err := engine.Evaluate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}
	if key != "" {
		if err := saveLintCache(cacheDir, key, *lint); err != nil {
			recordErr(err)
		}
	}
	return lint, nil
}

// buildFile parses and builds one input. The second return reports a cache
// failure, which never fails the file itself.
func (c *Compiler) buildFile(file string, cache *buildCache) (built, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return built{err: fmt.Errorf("reading file: %w", err)}, nil
	}

	var cacheErr error
	var contentHash string
	if cache != nil {
		contentHash = hashBytes(src)
		cb, ok, err := cache.Get(file, contentHash)
		if err != nil {
			cacheErr = fmt.Errorf("cache read failed for %s: %w", file, err)
		} else if ok {
			return built{db: cb.Database, diagnostics: cb.Diagnostics, cached: true}, nil
		}
	}

	root, err := parser.Parse(src)
	if err != nil {
		return built{err: fmt.Errorf("parsing: %w", err)}, cacheErr
	}
	var sink diag.Collector
	db, err := builder.Build(root, builder.Options{File: file, Sink: &sink})
	if err != nil {
		return built{diagnostics: sink.All(), err: fmt.Errorf("building: %w", err)}, cacheErr
	}

	b := built{db: db, diagnostics: sink.All()}
	if cache != nil && cacheErr == nil {
		if err := cache.Put(file, contentHash, cachedBuild{Database: db, Diagnostics: b.diagnostics}); err != nil {
			cacheErr = fmt.Errorf("cache write failed for %s: %w", file, err)
		}
	}
	return b, cacheErr
}

// undefined returns the names in want that the parsed source does not define.
func undefined(want, defined []string) []string {
	have := make(map[string]bool, len(defined))
	for _, name := range defined {
		have[name] = true
	}
	var missing []string
	for _, name := range want {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func (c *Compiler) generate(ctx context.Context, baseDir string, result *Result) error {
	var verifier *verify.Verifier
	if c.Config.VerifyEnabled() {
		verifier = verify.New()
	}

	outDir := c.Config.Output.Dir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(baseDir, outDir)
	}

	kept := result.Databases[:0]
	files := result.Files[:0]
	for i, db := range result.Databases {
		fr := result.Files[i]
		opts := output.Options{Print: c.Config.PrintEnabled()}
		if c.Config.BannerEnabled() {
			opts.Banner = fmt.Sprintf("Generated by dbcc from %s. Do not edit.", filepath.Base(db.File))
		}
		unit, err := output.Generate(db, opts)
		if err != nil {
			result.Errors = append(result.Errors, FileError{File: fr.Path, Message: err.Error()})
			continue
		}
		if verifier != nil {
			report, err := verifier.Check(ctx, []byte(unit.Source))
			if err != nil {
				return fmt.Errorf("verifying %s: %w", unit.SourceName, err)
			}
			if !report.OK() {
				result.Errors = append(result.Errors, FileError{
					File:    fr.Path,
					Message: fmt.Sprintf("generated %s does not parse: %s", unit.SourceName, report.Problems[0]),
				})
				continue
			}
			if missing := undefined(unit.Functions, report.Functions); len(missing) > 0 {
				for _, name := range missing {
					result.Errors = append(result.Errors, FileError{
						File:    fr.Path,
						Message: fmt.Sprintf("generated %s does not define %s", unit.SourceName, name),
					})
				}
				continue
			}
		}
		if c.Write {
			for _, f := range []struct{ name, text string }{
				{unit.HeaderName, unit.Header},
				{unit.SourceName, unit.Source},
			} {
				path := filepath.Join(outDir, f.name)
				if err := writeFileAtomic(path, []byte(f.text)); err != nil {
					return fmt.Errorf("writing output: %w", err)
				}
				fr.Written = append(fr.Written, path)
			}
		}
		kept = append(kept, db)
		files = append(files, fr)
		result.Units = append(result.Units, unit)
	}
	result.Databases = kept
	result.Files = files
	return nil
}

func formatPipelineErrors(errs []error) string {
	var b strings.Builder
	for i, err := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(err.Error())
	}
	return b.String()
}
