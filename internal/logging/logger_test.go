package logging

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(t *testing.T, level LogLevel, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: level, Output: &buf, Format: format})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return logger, &buf
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   LogLevel
	}{
		{"default config", Config{Level: LogLevelNormal, Format: "text"}, LogLevelNormal},
		{"verbose config", Config{Level: LogLevelVerbose, Format: "json"}, LogLevelVerbose},
		{"quiet config", Config{Level: LogLevelQuiet, Format: "text"}, LogLevelQuiet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if logger.GetLevel() != tt.want {
				t.Errorf("NewLogger() level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var buf bytes.Buffer

	logger, err := NewLogger(Config{Level: LogLevelNormal, Output: &buf, LogFile: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hello file")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !strings.Contains(buf.String(), "hello file") {
		t.Error("Expected message in primary output")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestNewLoggerWithBadFile(t *testing.T) {
	_, err := NewLogger(Config{LogFile: filepath.Join(t.TempDir(), "missing", "run.log")})
	if err == nil {
		t.Error("Expected error for unwritable log file")
	}
}

func TestLogRecordFailure(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")

	logger.LogRecordFailure("users", "email=a@example.com", errors.New("column 'name' cannot be null"))

	output := buf.String()
	for _, want := range []string{`"kind":"users"`, `"key":"email=a@example.com"`, "cannot be null", "Record failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got %s", want, output)
		}
	}
}

func TestLogRecordSkipped_OnlyVerbose(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")
	logger.LogRecordSkipped("users", "email=a@example.com")
	if buf.Len() != 0 {
		t.Errorf("Expected skipped records to be hidden at normal level, got %s", buf.String())
	}

	logger.SetLevel(LogLevelVerbose)
	logger.LogRecordSkipped("users", "email=a@example.com")
	if !strings.Contains(buf.String(), "skipped") {
		t.Errorf("Expected skipped record at verbose level, got %s", buf.String())
	}
}

func TestLogKindCompleted(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	logger.LogKindCompleted("documents", 4, 0, 0, 1, time.Second)
	if !strings.Contains(buf.String(), "level=warning") {
		t.Errorf("Expected warning when records errored, got %s", buf.String())
	}

	buf.Reset()
	logger.LogKindCompleted("documents", 5, 0, 0, 0, time.Second)
	if !strings.Contains(buf.String(), "level=info") {
		t.Errorf("Expected info when no records errored, got %s", buf.String())
	}
}

func TestLogKindAborted(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelQuiet, "text")

	logger.LogKindAborted("share_requests", 2, 10, errors.New("server has gone away"))

	output := buf.String()
	if !strings.Contains(output, "Kind aborted") || !strings.Contains(output, "processed=2") {
		t.Errorf("Expected abort to be logged even in quiet mode, got %s", output)
	}
}

func TestLogDatabaseConnection(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	logger.LogDatabaseConnection("mysql", "db.internal", "platform", true, time.Millisecond, nil)
	if !strings.Contains(buf.String(), "Database connection established") {
		t.Errorf("Expected success message, got %s", buf.String())
	}

	buf.Reset()
	logger.LogDatabaseConnection("mysql", "db.internal", "platform", false, time.Millisecond, errors.New("refused"))
	if !strings.Contains(buf.String(), "refused") {
		t.Errorf("Expected error detail, got %s", buf.String())
	}
}

func TestLogSQLExecutionTruncation(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelDebug, "json")

	logger.LogSQLExecution(strings.Repeat("x", 300), time.Millisecond, 1, nil)

	if !strings.Contains(buf.String(), `"sql_length":300`) {
		t.Errorf("Expected truncated statement length, got %s", buf.String())
	}
}

func TestSetLevelAndIsLevelEnabled(t *testing.T) {
	logger, _ := newBufferLogger(t, LogLevelQuiet, "text")

	if logger.IsLevelEnabled(LogLevelNormal) {
		t.Error("Expected normal level disabled in quiet mode")
	}

	logger.SetLevel(LogLevelDebug)
	if !logger.IsLevelEnabled(LogLevelVerbose) {
		t.Error("Expected verbose level enabled in debug mode")
	}
	if logger.GetLevel() != LogLevelDebug {
		t.Errorf("Expected debug level, got %v", logger.GetLevel())
	}
}

func TestLogOperationStart(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	done := logger.LogOperationStart("import", map[string]interface{}{"snapshot": "s.json"})
	done(nil)

	output := buf.String()
	if !strings.Contains(output, "Operation started") || !strings.Contains(output, "Operation completed") {
		t.Errorf("Expected start and completion, got %s", output)
	}

	buf.Reset()
	done = logger.LogOperationStart("import", nil)
	done(errors.New("boom"))
	if !strings.Contains(buf.String(), "Operation failed") {
		t.Errorf("Expected failure, got %s", buf.String())
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := CreateContextWithRunID(context.Background(), "run-42")
	if got := GetRunIDFromContext(ctx); got != "run-42" {
		t.Errorf("Expected run-42, got %q", got)
	}
	if got := GetRunIDFromContext(context.Background()); got != "" {
		t.Errorf("Expected empty run id, got %q", got)
	}

	logger, buf := newBufferLogger(t, LogLevelNormal, "text")
	logger.WithContext(ctx).Info("correlated")
	if !strings.Contains(buf.String(), "run_id=run-42") {
		t.Errorf("Expected run id field, got %s", buf.String())
	}
}

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"root:secret@tcp(localhost:3306)/platform?parseTime=true", "root:***@tcp(localhost:3306)/platform?parseTime=true"},
		{"postgres://admin:hunter2@db:5432/platform?sslmode=disable", "postgres://admin:***@db:5432/platform?sslmode=disable"},
		{"host=db user=admin password=hunter2 dbname=platform", "host=db user=admin password=*** dbname=platform"},
		{"file:/tmp/platform.db", "file:/tmp/platform.db"},
	}

	for _, tt := range tests {
		if got := SanitizeDSN(tt.in); got != tt.want {
			t.Errorf("SanitizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
