package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/robert-at-pretension-io/dbcc/internal/codec"
	"github.com/robert-at-pretension-io/dbcc/internal/compiler"
)

func TestGenerateTestdata(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot)
	work := copyTestdata(t, repoRoot)
	out := filepath.Join(t.TempDir(), "gen")

	stdout := run(t, bin, work, "generate", "-o", out, work)
	for _, name := range []string{"vehicle.h", "vehicle.c", "chassis.h", "chassis.c"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Fatalf("expected %s to be generated: %v\nstdout:\n%s", name, err, stdout)
		}
		if !strings.Contains(string(data), "Generated by dbcc") {
			t.Fatalf("%s is missing the banner", name)
		}
	}

	src, err := os.ReadFile(filepath.Join(out, "vehicle.c"))
	if err != nil {
		t.Fatalf("read vehicle.c: %v", err)
	}
	for _, fn := range []string{"unpack_vehicle_message", "pack_vehicle_message", "print_vehicle_message"} {
		if !strings.Contains(string(src), fn) {
			t.Fatalf("vehicle.c does not define %s", fn)
		}
	}
}

func TestLintTestdata(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot)
	work := copyTestdata(t, repoRoot)

	stdout := run(t, bin, work, "lint", "--json", work)
	var doc compiler.LintOutput
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("parse JSON output: %v\nstdout:\n%s", err, stdout)
	}
	if len(doc.Files) != 2 {
		t.Fatalf("expected 2 files, got %v", doc.Files)
	}
	if doc.Summary.Errors != 0 {
		t.Fatalf("unexpected lint errors: %+v", doc.Violations)
	}
}

func TestDecodeTestdata(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot)
	work := copyTestdata(t, repoRoot)

	stdout := run(t, bin, work, "decode", "--json",
		filepath.Join(work, "vehicle.dbc"), "0x100", "40 1F D2 FA 03 00 00 00")
	var doc struct {
		Message string        `json:"message"`
		Values  []codec.Value `json:"values"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("parse JSON output: %v\nstdout:\n%s", err, stdout)
	}
	if doc.Message != "Engine" {
		t.Fatalf("message = %q", doc.Message)
	}

	got := map[string]codec.Value{}
	for _, v := range doc.Values {
		got[v.Signal] = v
	}
	want := map[string]codec.Number{"Rpm": "4103.75", "Temp": "-86", "Gear": "3"}
	for name, phys := range want {
		if got[name].Physical != phys {
			t.Fatalf("%s = %s, want %s", name, got[name].Physical, phys)
		}
	}
	if diff := cmp.Diff("Drive", got["Gear"].Label); diff != "" {
		t.Fatalf("Gear label (-want +got):\n%s", diff)
	}
}

func run(t *testing.T, bin, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "HOME="+t.TempDir(), "NO_COLOR=1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("dbcc %s failed: %v\nstderr:\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String()
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "dbcc")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/dbcc")
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build dbcc failed: %v\n%s", err, string(out))
	}
	return binPath
}

// copyTestdata copies testdata/dbc into a temp dir so cache files never land
// in the repository.
func copyTestdata(t *testing.T, repoRoot string) string {
	t.Helper()
	src := filepath.Join(repoRoot, "testdata", "dbc")
	dst := t.TempDir()
	entries, err := os.ReadDir(src)
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", e.Name(), err)
		}
	}
	return dst
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	dir := start
	for {
		candidate := filepath.Join(dir, "testdata", "dbc", "vehicle.dbc")
		if _, err := os.Stat(candidate); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("repo root not found from %s", start)
		}
		dir = parent
	}
}
