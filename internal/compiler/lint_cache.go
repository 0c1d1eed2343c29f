package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/dbcc/internal/policy"
)

const lintCacheVersion = 1

// lintCacheEntry holds the rule output of the last lint run before
// configured severities are applied.
type lintCacheEntry struct {
	Version int           `json:"version"`
	Key     string        `json:"key"`
	Result  policy.Result `json:"result"`
}

func lintCachePath(dir string) string {
	return filepath.Join(dir, "lint_cache.json")
}

// lintCacheKey covers the lint input, the rule sources and the tool build.
func lintCacheKey(input policy.Input, rulesHash, toolVersion string) (string, error) {
	data, err := json.Marshal(struct {
		Input       policy.Input `json:"input"`
		Rules       string       `json:"rules"`
		ToolVersion string       `json:"tool_version"`
	}{input, rulesHash, toolVersion})
	if err != nil {
		return "", fmt.Errorf("marshal lint cache key: %w", err)
	}
	return hashBytes(data), nil
}

func loadLintCache(dir, key string) (*policy.Result, error) {
	data, err := os.ReadFile(lintCachePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lint cache: %w", err)
	}
	var entry lintCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse lint cache: %w", err)
	}
	if entry.Version != lintCacheVersion || entry.Key != key {
		return nil, nil
	}
	return &entry.Result, nil
}

func saveLintCache(dir, key string, result policy.Result) error {
	data, err := json.Marshal(lintCacheEntry{
		Version: lintCacheVersion,
		Key:     key,
		Result:  result,
	})
	if err != nil {
		return fmt.Errorf("marshal lint cache: %w", err)
	}
	if err := writeFileAtomic(lintCachePath(dir), data); err != nil {
		return fmt.Errorf("write lint cache: %w", err)
	}
	return nil
}
