package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fileexporter/internal/config"
	"fileexporter/internal/logging"
)

func newBufferLogger(t *testing.T, format, level string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: format, Level: level, Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		records = append(records, record)
	}
	return records
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "console", "info")
	logging.NewComponentLogger(logger, "scanner").Info("directory scanned",
		logging.String(logging.FieldPath, "/srv/my logs"),
		logging.Int("files", 3),
	)

	out := buf.String()
	if !strings.Contains(out, "INFO scanner: directory scanned") {
		t.Fatalf("expected level and component prefix, got %q", out)
	}
	if !strings.Contains(out, `path="/srv/my logs"`) || !strings.Contains(out, "files=3") {
		t.Fatalf("expected key=value fields, got %q", out)
	}
	if strings.Contains(out, "component=") {
		t.Fatalf("component should only appear as a prefix, got %q", out)
	}
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", out)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logger, buf := newBufferLogger(t, "console", "debug")
	logger.Debug("message with caller")

	if !strings.Contains(buf.String(), "[logger_test.go:") {
		t.Fatalf("expected caller information at debug level, got %q", buf.String())
	}
}

func TestConsoleLoggerFlattensGroups(t *testing.T) {
	logger, buf := newBufferLogger(t, "console", "info")
	logger.WithGroup("scan").Info("grouped", "dir", "logs")

	if !strings.Contains(buf.String(), "scan.dir=logs") {
		t.Fatalf("expected dotted group key, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, "console", "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "WARN shown") {
		t.Fatalf("expected warn record, got %q", out)
	}
}

func TestJSONLoggerFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "json", "info")
	logger.Info("cycle done", logging.Int("directories", 2))

	records := decodeLines(t, buf)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	record := records[0]
	if record["level"] != "info" || record["msg"] != "cycle done" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record["directories"] != float64(2) {
		t.Fatalf("directories = %v", record["directories"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestTeeHandlerRespectsLevels(t *testing.T) {
	var infoBuf, errBuf bytes.Buffer
	info, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &infoBuf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	errs, err := logging.New(logging.Options{Format: "json", Level: "error", Writer: &errBuf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger := slog.New(logging.TeeHandler(info.Handler(), nil, errs.Handler())).With("component", "tee")
	logger.Info("routine")
	logger.Error("broken")

	if got := len(decodeLines(t, &infoBuf)); got != 2 {
		t.Fatalf("info handler records = %d, want 2", got)
	}
	records := decodeLines(t, &errBuf)
	if len(records) != 1 || records[0]["msg"] != "broken" || records[0]["component"] != "tee" {
		t.Fatalf("error handler records = %v", records)
	}
}

func TestTeeHandlerWithoutHandlers(t *testing.T) {
	h := logging.TeeHandler(nil)
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("empty tee should discard everything")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "nested", "fileexporter.log")

	logger, err := logging.NewFromConfig(&cfg, "")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("persisted line")
	logger.Debug("below configured level")

	content, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"persisted line"`) {
		t.Fatalf("expected JSON record in log file, got %q", content)
	}
	if strings.Contains(string(content), "below configured level") {
		t.Fatalf("debug record written at info level: %q", content)
	}
}

func TestNewFromConfigLevelOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "fileexporter.log")

	logger, err := logging.NewFromConfig(&cfg, "debug")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Debug("now visible")

	content, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "now visible") {
		t.Fatalf("expected debug record with override, got %q", content)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logger, buf := newBufferLogger(t, "json", "info")
	logging.WarnWithContext(logger, "slow scan", "scan_slow", logging.String(logging.FieldImpact, "metrics lag"))

	records := decodeLines(t, buf)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	record := records[0]
	if record[logging.FieldEventType] != "scan_slow" {
		t.Fatalf("event_type = %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil || record[logging.FieldErrorHint] == "" {
		t.Fatalf("expected default error_hint, got %v", record)
	}
	if record[logging.FieldImpact] != "metrics lag" {
		t.Fatalf("caller impact overwritten: %v", record[logging.FieldImpact])
	}
}

func TestWithContextAddsCycleID(t *testing.T) {
	logger, buf := newBufferLogger(t, "json", "info")
	ctx := logging.WithCycleID(context.Background(), "cycle-123")

	if id, ok := logging.CycleIDFromContext(ctx); !ok || id != "cycle-123" {
		t.Fatalf("CycleIDFromContext = %q, %v", id, ok)
	}
	logging.WithContext(ctx, logger).Info("tagged")
	logging.WithContext(context.Background(), logger).Info("untagged")

	records := decodeLines(t, buf)
	if records[0][logging.FieldCycleID] != "cycle-123" {
		t.Fatalf("expected cycle_id on first record, got %v", records[0])
	}
	if _, ok := records[1][logging.FieldCycleID]; ok {
		t.Fatalf("unexpected cycle_id on second record: %v", records[1])
	}
}

func TestErrorAttrHandlesNil(t *testing.T) {
	if got := logging.Error(nil).Value.String(); got != "<nil>" {
		t.Fatalf("Error(nil) = %q", got)
	}
}
