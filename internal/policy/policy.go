package policy

import (
	"context"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/rego"
	"github.com/zeebo/blake3"

	"github.com/robert-at-pretension-io/dbcc/internal/config"
	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

//go:embed rules/*.rego
var builtinRules embed.FS

// Engine evaluates OPA lint rules against built CAN databases
type Engine struct {
	queries map[string]rego.PreparedEvalQuery
}

// Violation represents a policy violation
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// Summary provides aggregate counts
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

// Input is the data structure passed to OPA
type Input struct {
	Messages []Message `json:"messages"`
}

// Message is the lint view of a model.Message.
type Message struct {
	Name    string   `json:"name"`
	File    string   `json:"file"`
	ID      uint32   `json:"id"`
	DLC     int      `json:"dlc"`
	Line    int      `json:"line"`
	Signals []Signal `json:"signals"`
}

// Signal is the lint view of a model.Signal. Bits are frame-word indices;
// RawMin and RawMax bound what the raw field can hold.
type Signal struct {
	Name        string  `json:"name"`
	Line        int     `json:"line"`
	Bits        []int   `json:"bits"`
	StartBit    int     `json:"start_bit"`
	Length      int     `json:"length"`
	Minimum     float64 `json:"minimum"`
	Maximum     float64 `json:"maximum"`
	Signed      bool    `json:"signed"`
	MuxRole     string  `json:"mux_role"`
	SwitchValue uint64  `json:"switch_value"`
	RawMin      float64 `json:"raw_min"`
	RawMax      float64 `json:"raw_max"`
	Values      []int64 `json:"values"`
}

// BuildInput flattens databases into lint input
func BuildInput(dbs []*model.Database) Input {
	input := Input{Messages: []Message{}}
	for _, db := range dbs {
		for _, msg := range db.Messages {
			m := Message{
				Name:    msg.Name,
				File:    db.File,
				ID:      msg.ID,
				DLC:     msg.DLC,
				Line:    msg.Line,
				Signals: []Signal{},
			}
			for _, sig := range msg.Signals {
				lo, hi := rawRange(sig)
				s := Signal{
					Name:        sig.Name,
					Line:        sig.Line,
					Bits:        layout.Bits(sig),
					StartBit:    sig.StartBit,
					Length:      sig.Length,
					Minimum:     sig.Minimum,
					Maximum:     sig.Maximum,
					Signed:      sig.Signed,
					MuxRole:     sig.MuxRole.String(),
					SwitchValue: sig.SwitchValue,
					RawMin:      lo,
					RawMax:      hi,
					Values:      []int64{},
				}
				if sig.ValueTable != nil && !sig.IsFloat() {
					for _, e := range sig.ValueTable.Entries {
						s.Values = append(s.Values, e.Value)
					}
				}
				m.Signals = append(m.Signals, s)
			}
			input.Messages = append(input.Messages, m)
		}
	}
	return input
}

func rawRange(sig *model.Signal) (float64, float64) {
	if sig.Signed {
		half := math.Ldexp(1, sig.Length-1)
		return -half, half - 1
	}
	return 0, math.Ldexp(1, sig.Length) - 1
}

type module struct {
	name    string
	content string
}

// loadModules reads the built-in rules followed by every .rego file in
// extraDirs. A directory without rules is an error.
func loadModules(extraDirs []string) ([]module, error) {
	var modules []module
	builtin, err := builtinRules.ReadDir("rules")
	if err != nil {
		return nil, fmt.Errorf("reading built-in rules: %w", err)
	}
	for _, entry := range builtin {
		name := path.Join("rules", entry.Name())
		content, err := builtinRules.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		modules = append(modules, module{name, string(content)})
	}

	for _, dir := range extraDirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("finding policy files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no policy files found in %s", dir)
		}
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f, err)
			}
			modules = append(modules, module{f, string(content)})
		}
	}
	return modules, nil
}

// RulesHash fingerprints the rule set New would load from extraDirs.
func RulesHash(extraDirs ...string) (string, error) {
	modules, err := loadModules(extraDirs)
	if err != nil {
		return "", err
	}
	h := blake3.New()
	for _, m := range modules {
		_, _ = h.Write([]byte(m.name))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(m.content))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// New creates a policy engine from the built-in rules plus every .rego file
// found in extraDirs. Extra rules must live in package dbc.lint.
func New(extraDirs ...string) (*Engine, error) {
	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
	}

	modules, err := loadModules(extraDirs)
	if err != nil {
		return nil, err
	}
	opts := make([]func(*rego.Rego), 0, len(modules)+1)
	for _, m := range modules {
		opts = append(opts, rego.Module(m.name, m.content))
	}

	for key, query := range map[string]string{
		"violations": "data.dbc.lint.all_violations",
		"summary":    "data.dbc.lint.summary",
	} {
		q := append(append([]func(*rego.Rego){}, opts...), rego.Query(query))
		prepared, err := rego.New(q...).PrepareForEval(context.Background())
		if err != nil {
			return nil, fmt.Errorf("preparing %s query: %w", key, err)
		}
		engine.queries[key] = prepared
	}

	return engine, nil
}

// Evaluate runs the policies against the input data
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	// Convert input to map for OPA
	inputMap, err := structToMap(input)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{Violations: []Violation{}}

	rs, err := e.queries["violations"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:     getString(vmap, "rule"),
					Severity: getString(vmap, "severity"),
					File:     getString(vmap, "file"),
					Line:     getInt(vmap, "line"),
					Message:  getString(vmap, "message"),
				})
			}
		}
	}
	sortViolations(result.Violations)

	rs, err = e.queries["summary"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		smap, ok := rs[0].Expressions[0].Value.(map[string]interface{})
		if ok {
			result.Summary = Summary{
				TotalViolations: getInt(smap, "total_violations"),
				Errors:          getInt(smap, "errors"),
				Warnings:        getInt(smap, "warnings"),
				Info:            getInt(smap, "info"),
			}
		}
	}

	return result, nil
}

// Apply rewrites severities from the lint configuration, dropping rules set
// to "off" and files matching an ignore pattern, and recounts the summary.
func (r *Result) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	kept := r.Violations[:0]
	for _, v := range r.Violations {
		if !cfg.IsRuleEnabled(v.Rule) || cfg.ShouldIgnoreFile(v.File) {
			continue
		}
		v.Severity = cfg.GetRuleSeverity(v.Rule, v.Severity)
		kept = append(kept, v)
	}
	r.Violations = kept
	r.Summary = Summarize(kept)
}

// Summarize counts violations by severity.
func Summarize(violations []Violation) Summary {
	s := Summary{TotalViolations: len(violations)}
	for _, v := range violations {
		switch v.Severity {
		case "error":
			s.Errors++
		case "warning":
			s.Warnings++
		case "info":
			s.Info++
		}
	}
	return s
}

func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].File != vs[j].File {
			return vs[i].File < vs[j].File
		}
		if vs[i].Line != vs[j].Line {
			return vs[i].Line < vs[j].Line
		}
		if vs[i].Rule != vs[j].Rule {
			return vs[i].Rule < vs[j].Rule
		}
		return vs[i].Message < vs[j].Message
	})
}

// Helper functions
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case json.Number:
			i, _ := n.Int64()
			return int(i)
		}
	}
	return 0
}
