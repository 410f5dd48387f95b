package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.orgsim/
func isolateHome(t *testing.T) string {
	t.Helper()
	tmpHome := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
	t.Setenv("USERPROFILE", tmpHome)
	return tmpHome
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func findCmd(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"version", "run", "batch", "presets", "runs", "exports", "config", "mcp-server"} {
		findCmd(t, root, name)
	}
	if root.PersistentFlags().Lookup("json") == nil || root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing global --json or --config flag")
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestPresets(t *testing.T) {
	isolateHome(t)
	out, err := execute(t, "presets")
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	for _, name := range []string{"classic", "logistic", "stochastic"} {
		if !strings.Contains(out, name) {
			t.Errorf("presets output missing %s:\n%s", name, out)
		}
	}

	out, err = execute(t, "presets", "--json")
	if err != nil {
		t.Fatalf("presets --json: %v", err)
	}
	var variants []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &variants); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(variants) != 3 {
		t.Errorf("got %d presets, want 3", len(variants))
	}
}

func TestBatch_CSV(t *testing.T) {
	isolateHome(t)
	out, err := execute(t, "batch", "--seed", "1", "--modularity", "0.5", "--slack", "0.2")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 101 {
		t.Fatalf("got %d rows, want header plus 100", len(rows))
	}
	if rows[0][0] != "tick" || rows[1][0] != "1" || rows[100][0] != "100" {
		t.Errorf("unexpected tick column: %v %v %v", rows[0][0], rows[1][0], rows[100][0])
	}
	if rows[1][5] != "0.2" {
		t.Errorf("slack column = %q, want 0.2", rows[1][5])
	}
}

func TestBatch_Deterministic(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	for _, path := range []string{a, b} {
		if _, err := execute(t, "batch", "--preset", "stochastic", "--seed", "42", "--out", path); err != nil {
			t.Fatalf("batch: %v", err)
		}
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if len(da) == 0 || !bytes.Equal(da, db) {
		t.Error("seeded batches differ")
	}
}

func TestBatch_RejectsOutOfRangeControls(t *testing.T) {
	isolateHome(t)
	if _, err := execute(t, "batch", "--modularity", "0.3"); err == nil {
		t.Error("batch with modularity 0.3 succeeded, want error")
	}
	if _, err := execute(t, "batch", "--diversification", "0.5"); err == nil {
		t.Error("classic batch with diversification succeeded, want error")
	}
}

func TestBatchArchiveAndRuns(t *testing.T) {
	isolateHome(t)
	out, err := execute(t, "batch", "--seed", "3", "--archive", "--json")
	if err != nil {
		t.Fatalf("batch --archive: %v", err)
	}
	var res struct {
		RunID   string `json:"run_id"`
		Summary struct {
			TickCount  int `json:"tick_count"`
			ShockCount int `json:"shock_count"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.RunID == "" || res.Summary.TickCount != 100 || res.Summary.ShockCount != 5 {
		t.Fatalf("batch result = %+v", res)
	}

	out, err = execute(t, "runs", "list")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, res.RunID) {
		t.Errorf("runs list missing %s:\n%s", res.RunID, out)
	}

	out, err = execute(t, "runs", "show", res.RunID, "--csv")
	if err != nil {
		t.Fatalf("runs show --csv: %v", err)
	}
	if lines := strings.Count(out, "\n"); lines != 101 {
		t.Errorf("runs show --csv printed %d lines, want 101", lines)
	}

	if _, err := execute(t, "runs", "delete", res.RunID); err != nil {
		t.Fatalf("runs delete: %v", err)
	}
	if _, err := execute(t, "runs", "show", res.RunID); err == nil {
		t.Error("runs show after delete succeeded, want error")
	}
}

func TestRun_Console(t *testing.T) {
	isolateHome(t)
	out, err := execute(t, "run", "--interval", "1ms", "--max-ticks", "5", "--no-export")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d status lines, want 5:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[4], "Performance (ROA)") {
		t.Errorf("last line = %q", lines[4])
	}
}

func TestRun_ConsoleExport(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	t.Setenv("ORGSIM_EXPORT_DIR", dir)

	out, err := execute(t, "run", "--interval", "1ms", "--max-ticks", "3")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Simulation finished! Exported 3 quarters.") {
		t.Errorf("missing export message:\n%s", out)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "orgsim-*.csv"))
	if len(matches) != 1 {
		t.Fatalf("got %d export files, want 1", len(matches))
	}

	out, err = execute(t, "exports", "list", "--json")
	if err != nil {
		t.Fatalf("exports list: %v", err)
	}
	var listed struct {
		TotalCount int    `json:"total_count"`
		Directory  string `json:"directory"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if listed.TotalCount != 1 || listed.Directory != dir {
		t.Errorf("exports list = %+v, want 1 file in %s", listed, dir)
	}

	out, err = execute(t, "runs", "list", "--json")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, `"tick_count": 3`) && !strings.Contains(out, `"tick_count":3`) {
		t.Errorf("archived run missing from runs list:\n%s", out)
	}
}

func TestExportsPrune(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	t.Setenv("ORGSIM_EXPORT_DIR", dir)

	if _, err := execute(t, "exports", "prune"); err == nil {
		t.Fatal("prune without a retention limit succeeded, want error")
	}

	for _, name := range []string{
		"orgsim-20260101T000000.000000Z.csv",
		"orgsim-20260102T000000.000000Z.csv",
		"orgsim-20260103T000000.000000Z.csv",
		"notes.csv",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("tick\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := execute(t, "config", "set", "export.retention.max_count", "1"); err != nil {
		t.Fatalf("config set: %v", err)
	}

	out, err := execute(t, "exports", "prune", "--json")
	if err != nil {
		t.Fatalf("exports prune: %v", err)
	}
	var res struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.DeletedCount != 2 {
		t.Errorf("deleted_count = %d, want 2", res.DeletedCount)
	}
	if _, err := os.Stat(filepath.Join(dir, "orgsim-20260103T000000.000000Z.csv")); err != nil {
		t.Errorf("newest export removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.csv")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}
