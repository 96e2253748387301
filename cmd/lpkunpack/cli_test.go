package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/lpkunpack/internal/config"
	"github.com/hpungsan/lpkunpack/internal/db"
	"github.com/hpungsan/lpkunpack/internal/lpk"
	"github.com/hpungsan/lpkunpack/internal/lpktest"
	"github.com/hpungsan/lpkunpack/internal/ops"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	cleanup := func() {
		database.Close()
	}
	return database, cleanup
}

// testConfig returns a config that writes no reports.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ReportFormat = config.ReportNone
	return cfg
}

// captureStdout runs fn with command output redirected to a buffer.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()
	err := fn()
	return buf.String(), err
}

// writeArchive writes an STD2_0 archive with one character.
func writeArchive(t *testing.T, path string) {
	t.Helper()
	root := fmt.Sprintf("%032x.bin3", 1)
	sc := &lpk.SchemaContext{Variant: lpk.VariantStandard, Tag: "STD2_0", PackageID: "pkg", Encrypted: true}
	key, err := sc.KeyFor(root)
	if err != nil {
		t.Fatalf("KeyFor: %v", err)
	}
	lpktest.WriteArchive(t, path, []lpktest.Entry{
		{Name: lpk.ManifestName, Data: []byte(`{"type":"STD2_0","id":"pkg","list":[{"character":"Hero","costume":[{"path":"` + root + `"}]}]}`)},
		{Name: root, Data: lpk.Encrypt(key, []byte(`{"Version":3}`))},
	})
}

// TestParseDuration tests the parseDuration helper function.
func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{name: "7 days", input: "7d", expected: 7},
		{name: "zero days", input: "0d", expected: 0},
		{name: "30 days", input: "30d", expected: 30},
		{name: "no suffix", input: "7", wantErr: true},
		{name: "hours", input: "7h", wantErr: true},
		{name: "negative", input: "-1d", wantErr: true},
		{name: "not a number", input: "xd", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

// TestCLIExtract tests the extract command end to end.
func TestCLIExtract(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	tmpDir := t.TempDir()
	archivePath := filepath.Join(tmpDir, "hero.lpk")
	writeArchive(t, archivePath)
	out := filepath.Join(tmpDir, "out")

	app := newCLIApp(database, testConfig())
	text, err := captureStdout(t, func() error {
		return app.Run([]string{"lpkunpack", "extract", "--no-prompt", "-o", out, archivePath})
	})
	if err != nil {
		t.Fatalf("extract command failed: %v", err)
	}

	var output ops.ExtractOutput
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, text)
	}
	if output.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", output.Succeeded)
	}
	if _, err := os.Stat(filepath.Join(out, "hero", "Hero", "model0.json")); err != nil {
		t.Errorf("model0.json not written: %v", err)
	}

	// The run is in the ledger.
	text, err = captureStdout(t, func() error {
		return app.Run([]string{"lpkunpack", "history"})
	})
	if err != nil {
		t.Fatalf("history command failed: %v", err)
	}
	var history ops.HistoryOutput
	if err := json.Unmarshal([]byte(text), &history); err != nil {
		t.Fatalf("failed to parse history: %v\nOutput: %s", err, text)
	}
	if len(history.Runs) != 1 || history.Runs[0].ID != output.Archives[0].RunID {
		t.Errorf("history runs = %+v, want the extracted run", history.Runs)
	}

	text, err = captureStdout(t, func() error {
		return app.Run([]string{"lpkunpack", "history", output.Archives[0].RunID})
	})
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.Contains(text, `"translations"`) {
		t.Errorf("run detail missing translations: %s", text)
	}
}

// TestCLIExtract_NoLedger tests that --no-ledger skips recording.
func TestCLIExtract_NoLedger(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	tmpDir := t.TempDir()
	archivePath := filepath.Join(tmpDir, "hero.lpk")
	writeArchive(t, archivePath)

	app := newCLIApp(database, testConfig())
	_, err := captureStdout(t, func() error {
		return app.Run([]string{"lpkunpack", "extract", "--no-prompt", "--no-ledger", "-o", filepath.Join(tmpDir, "out"), archivePath})
	})
	if err != nil {
		t.Fatalf("extract command failed: %v", err)
	}

	runs, total, err := db.ListRuns(database, db.RunFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if total != 0 || len(runs) != 0 {
		t.Errorf("expected no recorded runs, got %d", total)
	}
}

// TestCLIExtract_FailedArchiveExitsNonZero tests the exit status of a batch
// with a failing archive.
func TestCLIExtract_FailedArchiveExitsNonZero(t *testing.T) {
	tmpDir := t.TempDir()
	archivePath := filepath.Join(tmpDir, "broken.lpk")
	if err := os.WriteFile(archivePath, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newCLIApp(nil, testConfig())
	text, err := captureStdout(t, func() error {
		return app.Run([]string{"lpkunpack", "extract", "--no-prompt", "-o", filepath.Join(tmpDir, "out"), archivePath})
	})
	if err == nil {
		t.Fatal("expected error for failed archive")
	}
	if !strings.Contains(text, `"failed": 1`) {
		t.Errorf("output should still list the outcome: %s", text)
	}
}

// TestCLIInspectYAML tests inspect with YAML output.
func TestCLIInspectYAML(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "hero.lpk")
	writeArchive(t, archivePath)

	app := newCLIApp(nil, testConfig())
	text, err := captureStdout(t, func() error {
		return app.Run([]string{"lpkunpack", "inspect", "--format", "yaml", archivePath})
	})
	if err != nil {
		t.Fatalf("inspect command failed: %v", err)
	}

	var output ops.InspectOutput
	if err := yaml.Unmarshal([]byte(text), &output); err != nil {
		t.Fatalf("failed to parse yaml: %v\nOutput: %s", err, text)
	}
	if !strings.Contains(text, "variant: STD2_0") {
		t.Errorf("expected block-style yaml, got:\n%s", text)
	}
	if strings.Contains(text, "{") {
		t.Errorf("expected no flow mappings, got:\n%s", text)
	}
}

// TestCLIPurge tests the purge command.
func TestCLIPurge(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	run := &db.Run{ID: "01PURGE", ArchivePath: "/a.lpk", Status: db.StatusFailed, StartedAt: 1, FinishedAt: 2}
	if err := db.InsertRun(database, run, nil); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	app := newCLIApp(database, testConfig())
	text, err := captureStdout(t, func() error {
		return app.Run([]string{"lpkunpack", "purge", "--older-than=1d", "--status=failed"})
	})
	if err != nil {
		t.Fatalf("purge command failed: %v", err)
	}

	var output ops.PurgeOutput
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, text)
	}
	if output.Purged != 1 {
		t.Errorf("purged = %d, want 1", output.Purged)
	}
}

// TestCLIErrorHandling tests that commands return errors properly.
func TestCLIErrorHandling(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	tests := []struct {
		name string
		args []string
	}{
		{"extract without target", []string{"lpkunpack", "extract"}},
		{"extract missing target", []string{"lpkunpack", "extract", "--no-prompt", "/nonexistent/a.lpk"}},
		{"inspect without target", []string{"lpkunpack", "inspect"}},
		{"history unknown run", []string{"lpkunpack", "history", "missing"}},
		{"history bad status", []string{"lpkunpack", "history", "--status=done"}},
		{"invalid duration format", []string{"lpkunpack", "purge", "--older-than=invalid"}},
		{"serve invalid port", []string{"lpkunpack", "serve", "--port=70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := captureStdout(t, func() error { return app.Run(tt.args) })
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	t.Run("unknown format", func(t *testing.T) {
		archivePath := filepath.Join(t.TempDir(), "hero.lpk")
		writeArchive(t, archivePath)
		_, err := captureStdout(t, func() error {
			return app.Run([]string{"lpkunpack", "inspect", "--format=xml", archivePath})
		})
		if err == nil || !strings.Contains(err.Error(), "INVALID_REQUEST") {
			t.Errorf("expected INVALID_REQUEST, got %v", err)
		}
	})
}

// TestCLILedgerDisabled tests ledger commands without a database.
func TestCLILedgerDisabled(t *testing.T) {
	app := newCLIApp(nil, testConfig())

	for _, args := range [][]string{
		{"lpkunpack", "history"},
		{"lpkunpack", "purge"},
		{"lpkunpack", "serve"},
	} {
		_, err := captureStdout(t, func() error { return app.Run(args) })
		if err == nil || !strings.Contains(err.Error(), "ledger is disabled") {
			t.Errorf("%v: expected ledger disabled error, got %v", args[1:], err)
		}
	}
}

// TestOpenLedger tests that a disabled ledger opens nothing.
func TestOpenLedger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LedgerDisabled = true
	database, err := openLedger(t.TempDir(), cfg)
	if err != nil || database != nil {
		t.Errorf("openLedger disabled = %v, %v; want nil, nil", database, err)
	}

	cfg.LedgerDisabled = false
	dir := t.TempDir()
	database, err = openLedger(dir, cfg)
	if err != nil {
		t.Fatalf("openLedger failed: %v", err)
	}
	defer database.Close()
	if _, err := os.Stat(filepath.Join(dir, db.FileName)); err != nil {
		t.Errorf("ledger file not created: %v", err)
	}
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"lpkunpack"}, expected: false},
		{name: "extract command", args: []string{"lpkunpack", "extract"}, expected: true},
		{name: "history command", args: []string{"lpkunpack", "history"}, expected: true},
		{name: "serve command", args: []string{"lpkunpack", "serve"}, expected: true},
		{name: "help flag", args: []string{"lpkunpack", "--help"}, expected: true},
		{name: "version flag", args: []string{"lpkunpack", "--version"}, expected: true},
		{name: "short help flag", args: []string{"lpkunpack", "-h"}, expected: true},
		{name: "short version flag", args: []string{"lpkunpack", "-V"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"lpkunpack", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Save and restore os.Args
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		args     []string
		expected bool
	}{
		{[]string{"lpkunpack"}, false},
		{[]string{"lpkunpack", "help"}, true},
		{[]string{"lpkunpack", "--version"}, true},
		{[]string{"lpkunpack", "extract"}, false},
	}

	for _, tt := range tests {
		oldArgs := os.Args
		os.Args = tt.args
		result := isHelpOrVersion()
		os.Args = oldArgs

		if result != tt.expected {
			t.Errorf("isHelpOrVersion(%v) = %v, want %v", tt.args, result, tt.expected)
		}
	}
}
