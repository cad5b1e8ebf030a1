package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"", "json", "JSON", "text", "console"} {
		if _, err := New(Config{Format: format, Output: &bytes.Buffer{}}); err != nil {
			t.Errorf("New(format=%q) error = %v", format, err)
		}
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("New(format=xml) should fail")
	}
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("New(level=loud) should fail")
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	calls := map[string]func(string, ...any){
		"DEBUG": l.Debug,
		"INFO":  l.Info,
		"WARN":  l.Warn,
		"ERROR": l.Error,
	}
	for want, call := range calls {
		buf.Reset()
		call("session saved", "session_id", "s-1")

		entry := decodeLine(t, &buf)
		if entry["level"] != want {
			t.Errorf("level = %v, want %s", entry["level"], want)
		}
		if entry["msg"] != "session saved" || entry["session_id"] != "s-1" {
			t.Errorf("entry = %v", entry)
		}
	}
}

func TestLogger_WithAndContext(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Output: &buf})

	l.With("component", "engine").WithContext(context.Background()).Info("initialized")

	if got := decodeLine(t, &buf)["component"]; got != "engine" {
		t.Errorf("component = %v, want engine", got)
	}
}

func TestSetLevel_AffectsExistingLoggers(t *testing.T) {
	defer SetLevel("info")

	var buf bytes.Buffer
	l, _ := New(Config{Level: "error", Output: &buf})

	l.Warn("dropped")
	if buf.Len() != 0 {
		t.Fatalf("warn logged at error level: %s", buf.String())
	}

	SetLevel("debug")
	l.Debug("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("debug not logged after SetLevel(debug): %q", buf.String())
	}
	if Level() != "debug" {
		t.Errorf("Level() = %q, want debug", Level())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{" info ", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetLevel_UnknownFallsBackToInfo(t *testing.T) {
	defer SetLevel("info")

	SetLevel("error")
	SetLevel("verbose")
	if Level() != "info" {
		t.Errorf("Level() = %q, want info", Level())
	}
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	l, _ := New(Config{Output: &buf})
	SetDefault(l)

	Default().Info("from default")
	slog.Info("from slog")
	if !strings.Contains(buf.String(), "from default") || !strings.Contains(buf.String(), "from slog") {
		t.Errorf("SetDefault should route both loggers, got: %s", buf.String())
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Format: "text", Output: &buf})

	l.Info("cache swept", "expired", 3)

	if !strings.Contains(buf.String(), `msg="cache swept"`) || !strings.Contains(buf.String(), "expired=3") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinvault.log")
	l, err := New(Config{File: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("written to file", "component", "storage")
	if err := Close(l); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file = %s", data)
	}
}

func TestClose_NonFileLogger(t *testing.T) {
	l, _ := New(Config{Output: &bytes.Buffer{}})
	if err := Close(l); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestSlog_Redacts(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Output: &buf})

	Slog(l).Info("via slog", "secret", "hunter2")
	if !strings.Contains(buf.String(), "via slog") {
		t.Errorf("Slog() should share the handler, got: %s", buf.String())
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("Slog() output should be redacted, got: %s", buf.String())
	}
}
