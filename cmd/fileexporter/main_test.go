package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fileexporter/internal/testsupport"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeTestConfig(t *testing.T, dir string, dataDirs ...string) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "port = 9105\ninterval = 5\n\n[daemon]\nlock_path = %q\n", filepath.Join(dir, "fileexporter.lock"))
	for i, data := range dataDirs {
		fmt.Fprintf(&b, "\n[[directories]]\npath = %q\nname = \"dir%d\"\ninclude_patterns = [\"*.log\"]\n", data, i)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "fileexporter.toml")
	out, _, err := runCLI(t, []string{"config", "init", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", target}, ""); err == nil {
		t.Fatal("expected config init to refuse overwriting")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateRequiresConfigFlag(t *testing.T) {
	_, _, err := runCLI(t, []string{"config", "validate"}, "")
	if err == nil {
		t.Fatal("expected error without --config")
	}
	requireContains(t, err.Error(), "--config")
}

func TestConfigValidateReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("port = 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "port")
}

func TestRootRequiresConfig(t *testing.T) {
	if _, _, err := runCLI(t, nil, ""); err == nil {
		t.Fatal("expected daemon run without --config to fail")
	}
	if _, _, err := runCLI(t, nil, filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected daemon run with a missing config to fail")
	}
}

func TestScanJSON(t *testing.T) {
	base := t.TempDir()
	data := filepath.Join(base, "data")
	testsupport.WriteFileAt(t, filepath.Join(data, "a.log"), 2048, time.Now().Add(-time.Hour))
	testsupport.WriteFile(t, filepath.Join(data, "skip.txt"), 1)
	configPath := writeTestConfig(t, base, data, filepath.Join(base, "missing"))

	out, _, err := runCLI(t, []string{"scan", "--json"}, configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var rows []scanRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode scan output: %v\n%s", err, out)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Name != "dir0" || rows[0].Files != 1 || rows[0].TotalSizeBytes != 2048 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[0].OldestAgeSeconds < 3600 {
		t.Fatalf("oldest age = %v, want >= 3600", rows[0].OldestAgeSeconds)
	}
	if rows[1].Reason != "not_found" || rows[1].Files != 0 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestScanTable(t *testing.T) {
	base := t.TempDir()
	data := filepath.Join(base, "data")
	testsupport.WriteFile(t, filepath.Join(data, "a.log"), 10)
	configPath := writeTestConfig(t, base, data)

	out, _, err := runCLI(t, []string{"scan"}, configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "DIRECTORY")
	requireContains(t, out, "dir0")
	requireContains(t, out, "10 B")
	requireContains(t, out, "ok")
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatBytes(0), "0 B"},
		{formatBytes(1023), "1023 B"},
		{formatBytes(1536), "1.5 KiB"},
		{formatBytes(5 * 1024 * 1024), "5.0 MiB"},
		{formatAge(0), "0s"},
		{formatAge(-3), "0s"},
		{formatAge(90), "1m30s"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("got %q, want %q", tt.got, tt.want)
		}
	}
}
