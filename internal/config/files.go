package config

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveInputs expands the Inputs patterns under rootPath, removes Exclude
// matches, and returns the DBC files found, sorted and de-duplicated.
func (c *Config) ResolveInputs(rootPath string) ([]string, error) {
	fileSet := make(map[string]bool)
	for _, pattern := range c.Inputs {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}

		matches, err := expandGlob(pattern)
		if err != nil {
			// Invalid patterns match nothing
			continue
		}
		for _, match := range matches {
			if IsDBC(match) {
				fileSet[filepath.Clean(match)] = true
			}
		}
	}

	for _, pattern := range c.Exclude {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}
		matches, err := expandGlob(pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			delete(fileSet, filepath.Clean(match))
		}
	}

	result := make([]string, 0, len(fileSet))
	for f := range fileSet {
		result = append(result, f)
	}
	sort.Strings(result)
	return result, nil
}

// IsDBC reports whether path has a .dbc extension, in any case.
func IsDBC(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".dbc")
}

// expandGlob expands a glob pattern, handling ** for recursive matching
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return expandDoubleStarGlob(pattern)
	}
	return filepath.Glob(pattern)
}

// expandDoubleStarGlob walks the directory before ** and matches the rest
// of the pattern against each file's path relative to it.
func expandDoubleStarGlob(pattern string) ([]string, error) {
	parts := strings.SplitN(pattern, "**", 2)
	baseDir := filepath.Clean(parts[0])
	if baseDir == "" {
		baseDir = "."
	}
	suffix := strings.TrimPrefix(parts[1], string(filepath.Separator))

	var results []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped
			return nil
		}
		if d.IsDir() {
			if path != baseDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if suffix == "" {
			results = append(results, path)
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return nil
		}
		if matchSuffix(rel, suffix) {
			results = append(results, path)
		}
		return nil
	})
	return results, err
}

// matchSuffix checks if a relative path matches the pattern after **.
// A pattern without a separator matches the file name at any depth;
// otherwise it must match the trailing path components.
func matchSuffix(path, pattern string) bool {
	if !strings.Contains(pattern, string(filepath.Separator)) {
		matched, _ := filepath.Match(pattern, filepath.Base(path))
		return matched
	}

	want := strings.Count(pattern, string(filepath.Separator)) + 1
	parts := strings.Split(path, string(filepath.Separator))
	if len(parts) < want {
		return false
	}
	tail := filepath.Join(parts[len(parts)-want:]...)
	matched, _ := filepath.Match(pattern, tail)
	return matched
}
