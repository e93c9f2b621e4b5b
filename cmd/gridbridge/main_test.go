package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sameehj/gridbridge/pkg/workbook"
)

// setup writes a config pointing at a fresh script library and returns the
// working directory.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	scripts := filepath.Join(dir, "scripts")
	if err := os.MkdirAll(scripts, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	lib := "# Upper-case the header row\ndef shout(df):\n    for c in range(df.shape[1]):\n        df.iloc[0, c] = df.iloc[0, c].upper()\n"
	if err := os.WriteFile(filepath.Join(scripts, "shout.star"), []byte(lib), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	cfg := "logLevel: error\nscripts:\n  paths: [" + scripts + "]\n  watch: false\n"
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GRIDBRIDGE_CONFIG", cfgPath)
	t.Setenv("GRIDBRIDGE_SCRIPTS_PATH", "")
	t.Setenv("GRIDBRIDGE_ENGINES", "")
	t.Setenv("GRIDBRIDGE_EXEC_TIMEOUT", "")
	cfgFile = ""
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	setup(t)
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "gridbridge ") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunCommandWritesOutput(t *testing.T) {
	dir := setup(t)
	input := filepath.Join(dir, "book.csv")
	if err := os.WriteFile(input, []byte("name,qty\napple,3\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	output := filepath.Join(dir, "out.json")
	code := `load("shout.star", "shout")
shout(dfs["book"])
dfs["book"].iloc[2, 0] = "pear"
print("rows", len(dfs["book"]))`

	out, _, err := execute(t, "run", "--input", input, "--code", code, "--output", output, "--diff")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "rows 3") || !strings.Contains(out, "@@ book") {
		t.Fatalf("unexpected output %q", out)
	}

	sheets, err := workbook.Read(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	cells := sheets[0].Cells
	if cells[0][0] != "NAME" || cells[1][1] != "3" || cells[2][0] != "pear" || cells[2][1] != "" {
		t.Fatalf("unexpected cells %v", cells)
	}
}

func TestRunCommandReportsScriptError(t *testing.T) {
	dir := setup(t)
	input := filepath.Join(dir, "book.csv")
	if err := os.WriteFile(input, []byte("a\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	_, stderr, err := execute(t, "run", "--input", input, "--code", "nope()")
	if err == nil || !strings.Contains(err.Error(), "execution") {
		t.Fatalf("expected execution failure, got %v", err)
	}
	if !strings.Contains(stderr, "Script execution error:") {
		t.Fatalf("expected diagnostic on stderr, got %q", stderr)
	}
}

func TestCheckCommand(t *testing.T) {
	setup(t)
	out, _, err := execute(t, "check", "--code", "x = 1")
	if err != nil || strings.TrimSpace(out) != "ok" {
		t.Fatalf("check: %q %v", out, err)
	}
	_, stderr, err := execute(t, "check", "--code", "def f(:")
	if err == nil || !strings.Contains(stderr, "SyntaxError") {
		t.Fatalf("expected syntax error, got %v %q", err, stderr)
	}
}

func TestScriptsListCommand(t *testing.T) {
	setup(t)
	out, _, err := execute(t, "scripts", "list")
	if err != nil {
		t.Fatalf("scripts list: %v", err)
	}
	if !strings.Contains(out, "shout.star") || !strings.Contains(out, "Upper-case the header row") {
		t.Fatalf("unexpected listing %q", out)
	}
}

func TestDoctorCommand(t *testing.T) {
	setup(t)
	out, _, err := execute(t, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	for _, want := range []string{"Default engine: starlark", "starlark: allowed", "python: disabled by policy", "Scripts loaded: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
