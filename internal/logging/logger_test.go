package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		l, err := NewLogger(LogLevelInfo, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.level != LogLevelInfo {
			t.Errorf("level = %d, want %d", l.level, LogLevelInfo)
		}
		if l.file != nil {
			t.Error("file should be nil when no path given")
		}
	})

	t.Run("with file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.log")
		l, err := NewLogger(LogLevelDebug, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.fileLog == nil {
			t.Error("fileLog should not be nil")
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := NewLogger(LogLevelInfo, "/nonexistent/dir/test.log")
		if err == nil {
			t.Error("expected error for invalid path")
		}
	})
}

func TestNewLoggerWithOptions_Defaults(t *testing.T) {
	l, err := NewLoggerWithOptions(LogLevelInfo, "", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	if l.format != "text" {
		t.Errorf("format = %q, want %q", l.format, "text")
	}
	if l.logEvery != 1 {
		t.Errorf("logEvery = %d, want 1", l.logEvery)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(LogLevelInfo, Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerLevelsWriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelInfo, path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Error("boom %d", 1)
	l.Info("hello")
	l.Verbose("hidden verbose")
	l.Debug("hidden debug")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	for _, want := range []string{"ERROR: boom 1", "INFO: hello"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
	for _, unwanted := range []string{"hidden verbose", "hidden debug"} {
		if strings.Contains(content, unwanted) {
			t.Errorf("log should not contain %q", unwanted)
		}
	}
}

func TestJSONFormatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.json")
	l, err := NewLoggerWithOptions(LogLevelInfo, path, "json", 1)
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}
	l.Error("upstream refused")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"level":"error"`) {
		t.Errorf("expected error level field, got %s", content)
	}
	if !strings.Contains(content, `"message":"upstream refused"`) {
		t.Errorf("expected message field, got %s", content)
	}
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotate.log")
	l, err := New(LogLevelInfo, Options{File: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("rotated line")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "rotated line") {
		t.Errorf("rotating log missing line: %s", data)
	}
}

func TestSampling(t *testing.T) {
	l, err := NewLoggerWithOptions(LogLevelVerbose, "", "text", 3)
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}
	defer l.Close()

	passed := 0
	for i := 0; i < 9; i++ {
		if l.sample() {
			passed++
		}
	}
	if passed != 3 {
		t.Errorf("sampled %d of 9, want 3", passed)
	}
}

func TestSetGetLevel(t *testing.T) {
	l, _ := NewLogger(LogLevelInfo, "")
	defer l.Close()
	l.SetLevel(LogLevelDebug)
	if got := l.GetLevel(); got != LogLevelDebug {
		t.Errorf("GetLevel = %d, want %d", got, LogLevelDebug)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"silent", LogLevelSilent},
		{"ERROR", LogLevelError},
		{"info", LogLevelInfo},
		{"verbose", LogLevelVerbose},
		{"debug", LogLevelDebug},
		{"bogus", LogLevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatHex(t *testing.T) {
	if got := FormatHex([]byte{0xde, 0xad, 0xbe, 0xef}); got != "de ad be ef" {
		t.Errorf("FormatHex = %q", got)
	}
	if got := FormatHex(nil); got != "" {
		t.Errorf("FormatHex(nil) = %q", got)
	}
}

func TestLogHexAtDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hex.log")
	l, err := NewLogger(LogLevelDebug, path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.LogHex("payload", []byte{0x01, 0xff})
	l.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "payload: 01 ff") {
		t.Errorf("hex line missing: %s", data)
	}
}
