package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/robert-at-pretension-io/dbcc/internal/config"
)

// Version is the tool version, overridden at link time.
var Version = "dev"

func cacheEnabled(cfg *config.Config) bool {
	if cfg == nil || cfg.Analysis.Cache.Enabled == nil {
		return false
	}
	return *cfg.Analysis.Cache.Enabled
}

func resolveCacheDir(rootPath string, cfg *config.Config) string {
	baseDir := rootPath
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		baseDir = filepath.Dir(rootPath)
	}
	cacheDir := cfg.Analysis.Cache.Dir
	if cacheDir == "" {
		cacheDir = ".dbcc_cache"
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(baseDir, cacheDir)
	}
	return cacheDir
}

// computeToolVersion identifies the code that produced a cached database.
// Release builds are keyed by version and VCS revision; anything else by
// the executable's own content.
func computeToolVersion() string {
	key := fmt.Sprintf("v%d|%s", cacheIndexVersion, Version)
	if info, ok := debug.ReadBuildInfo(); ok {
		var revision, modified string
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.modified":
				modified = s.Value
			}
		}
		if revision != "" && modified != "true" {
			return hashBytes([]byte(key + "|" + revision))
		}
	}
	if exe, err := os.Executable(); err == nil {
		if f, err := os.Open(exe); err == nil {
			defer f.Close()
			if h, err := hashReader(f); err == nil {
				return hashBytes([]byte(key + "|" + h))
			}
		}
	}
	return hashBytes([]byte(key))
}

// ClearCache removes the build cache for the given root path.
// Returns the cache directory that was targeted.
func ClearCache(rootPath string, cfg *config.Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("clear cache: config is nil")
	}
	cacheDir := resolveCacheDir(rootPath, cfg)
	if err := os.RemoveAll(cacheDir); err != nil {
		return cacheDir, fmt.Errorf("remove cache: %w", err)
	}
	return cacheDir, nil
}
