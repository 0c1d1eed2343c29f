package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for dbcc
type Config struct {
	// Inputs is a list of glob patterns for DBC files; ** matches any depth
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Exclude is a list of glob patterns removed from Inputs
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// Output controls generated code
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`

	// Lint contains linting rule configuration
	Lint LintConfig `json:"lint,omitempty" yaml:"lint,omitempty"`

	// Analysis contains pipeline options
	Analysis AnalysisConfig `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// OutputConfig controls code generation
type OutputConfig struct {
	// Dir receives generated .h/.c pairs (relative to project root if not absolute)
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Print emits print routines
	Print *bool `json:"print,omitempty" yaml:"print,omitempty"`

	// Verify parses generated C before writing it
	Verify *bool `json:"verify,omitempty" yaml:"verify,omitempty"`

	// Banner adds a generated-file comment naming the source
	Banner *bool `json:"banner,omitempty" yaml:"banner,omitempty"`
}

// LintConfig contains linting configuration
type LintConfig struct {
	// Rules maps rule names to severity: "off", "info", "warning", "error"
	Rules map[string]string `json:"rules,omitempty" yaml:"rules,omitempty"`

	// IgnorePatterns is a list of file patterns to skip linting entirely
	IgnorePatterns []string `json:"ignorePatterns,omitempty" yaml:"ignorePatterns,omitempty"`
}

// CacheConfig controls the built-database cache
type CacheConfig struct {
	// Enabled turns on cache usage
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Dir is the cache directory (relative to project root if not absolute)
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// AnalysisConfig contains pipeline options
type AnalysisConfig struct {
	// MaxParallelFiles limits concurrent file processing (0 = auto)
	MaxParallelFiles int `json:"maxParallelFiles,omitempty" yaml:"maxParallelFiles,omitempty"`

	// Cache controls incremental build cache behavior
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
}

const (
	defaultOutputDir = "generated"
	defaultCacheDir  = ".dbcc_cache"
)

var defaultInputs = []string{"*.dbc", "**/*.dbc"}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Inputs:  append([]string(nil), defaultInputs...),
		Exclude: []string{},
		Output: OutputConfig{
			Dir:    defaultOutputDir,
			Print:  boolPtr(true),
			Verify: boolPtr(true),
			Banner: boolPtr(true),
		},
		Lint: LintConfig{
			Rules:          map[string]string{},
			IgnorePatterns: []string{},
		},
		Analysis: AnalysisConfig{
			MaxParallelFiles: 0, // auto
			Cache: CacheConfig{
				Enabled: boolPtr(true),
				Dir:     defaultCacheDir,
			},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// configNames are tried in order within each search directory
var configNames = []string{"dbcc.json", ".dbcc.json", "dbcc.yaml", "dbcc.yml"}

// Load finds and loads the configuration file
// Search order:
//  1. ./dbcc.json, ./.dbcc.json, ./dbcc.yaml, ./dbcc.yml (current working directory)
//  2. the same names in <rootPath> (if different from cwd)
//  3. ~/.config/dbcc/config.json
//
// Returns DefaultConfig if no config file is found
func Load(rootPath string) (*Config, error) {
	cwd, _ := os.Getwd()

	var searchPaths []string
	for _, name := range configNames {
		searchPaths = append(searchPaths, filepath.Join(cwd, name))
	}

	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		absRoot, _ := filepath.Abs(rootPath)
		if absRoot != cwd {
			for _, name := range configNames {
				searchPaths = append(searchPaths, filepath.Join(rootPath, name))
			}
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "dbcc", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	return DefaultConfig(), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile loads configuration from a specific file. JSON files may carry
// comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	if len(c.Inputs) == 0 {
		c.Inputs = append([]string(nil), defaultInputs...)
	}
	if c.Output.Dir == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Output.Print == nil {
		c.Output.Print = boolPtr(true)
	}
	if c.Output.Verify == nil {
		c.Output.Verify = boolPtr(true)
	}
	if c.Output.Banner == nil {
		c.Output.Banner = boolPtr(true)
	}

	if c.Lint.Rules == nil {
		c.Lint.Rules = make(map[string]string)
	}

	if c.Analysis.Cache.Dir == "" {
		c.Analysis.Cache.Dir = defaultCacheDir
	}
	if c.Analysis.Cache.Enabled == nil {
		c.Analysis.Cache.Enabled = boolPtr(true)
	}
}

// Save writes the configuration to a file, as YAML for .yaml/.yml paths and
// indented JSON otherwise
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// PrintEnabled reports whether print routines are generated
func (c *Config) PrintEnabled() bool {
	return c.Output.Print == nil || *c.Output.Print
}

// VerifyEnabled reports whether generated C is parsed before writing
func (c *Config) VerifyEnabled() bool {
	return c.Output.Verify == nil || *c.Output.Verify
}

// BannerEnabled reports whether generated files carry a banner comment
func (c *Config) BannerEnabled() bool {
	return c.Output.Banner == nil || *c.Output.Banner
}

// GetRuleSeverity returns the severity for a rule, or the default if not configured
func (c *Config) GetRuleSeverity(rule string, defaultSeverity string) string {
	if severity, ok := c.Lint.Rules[rule]; ok {
		return severity
	}
	return defaultSeverity
}

// IsRuleEnabled returns true if the rule is not set to "off"
func (c *Config) IsRuleEnabled(rule string) bool {
	if severity, ok := c.Lint.Rules[rule]; ok {
		return severity != "off"
	}
	return true // enabled by default
}

// ShouldIgnoreFile checks if a file should be skipped by lint
func (c *Config) ShouldIgnoreFile(filePath string) bool {
	for _, pattern := range c.Lint.IgnorePatterns {
		if matched, _ := filepath.Match(pattern, filePath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(filePath)); matched {
			return true
		}
	}
	return false
}
