package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolveInputsDefaults(t *testing.T) {
	root := t.TempDir()
	top := filepath.Join(root, "body.dbc")
	nested := filepath.Join(root, "powertrain", "engine", "engine.dbc")
	hidden := filepath.Join(root, ".dbcc_cache", "stale.dbc")
	writeFile(t, top, "VERSION \"\"")
	writeFile(t, nested, "VERSION \"\"")
	writeFile(t, hidden, "VERSION \"\"")
	writeFile(t, filepath.Join(root, "notes.txt"), "not a database")

	files, err := DefaultConfig().ResolveInputs(root)
	if err != nil {
		t.Fatalf("ResolveInputs: %v", err)
	}
	if diff := cmp.Diff([]string{top, nested}, files); diff != "" {
		t.Fatalf("inputs (-want +got):\n%s", diff)
	}
}

func TestResolveInputsExclude(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "can", "a.dbc")
	drop := filepath.Join(root, "can", "legacy", "b.dbc")
	writeFile(t, keep, "")
	writeFile(t, drop, "")

	cfg := Config{
		Inputs:  []string{"can/**/*.dbc"},
		Exclude: []string{"can/legacy/*.dbc"},
	}
	files, err := cfg.ResolveInputs(root)
	if err != nil {
		t.Fatalf("ResolveInputs: %v", err)
	}
	if diff := cmp.Diff([]string{keep}, files); diff != "" {
		t.Fatalf("inputs (-want +got):\n%s", diff)
	}
}

func TestMatchSuffix(t *testing.T) {
	sep := string(filepath.Separator)
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"a" + sep + "b.dbc", "*.dbc", true},
		{"a" + sep + "b.dbc", "a" + sep + "*.dbc", true},
		{"x" + sep + "a" + sep + "b.dbc", "a" + sep + "*.dbc", true},
		{"b.dbc", "a" + sep + "*.dbc", false},
		{"a" + sep + "b.txt", "*.dbc", false},
	}
	for _, tt := range tests {
		if got := matchSuffix(tt.path, tt.pattern); got != tt.want {
			t.Fatalf("matchSuffix(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
		}
	}
}
