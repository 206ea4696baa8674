package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tturner/fuzzrelay/internal/capture"
	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNextWrapsAround(t *testing.T) {
	path := writeFile(t, "replay.txt", "41\n42\n\n43\n")
	e, err := Load(path, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.Len() != 3 {
		t.Fatalf("Len = %d, want 3", e.Len())
	}

	want := []string{"A", "B", "C", "A"}
	for i, w := range want {
		if got := string(e.Next()); got != w {
			t.Fatalf("call %d: got %q, want %q", i, got, w)
		}
	}
	if e.Cursor() != 1 {
		t.Fatalf("Cursor = %d, want 1", e.Cursor())
	}
	e.Reset()
	if got := string(e.Next()); got != "A" {
		t.Fatalf("after Reset got %q", got)
	}
}

func TestLoadFatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"blank lines only", "\n\n"},
		{"undecodable line", "4142\nnothex\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "replay.txt", tt.content)
			_, err := Load(path, Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsFatal(err) {
				t.Fatalf("expected fatal error, got %T: %v", err, err)
			}
		})
	}
}

func TestLoadPCAP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pcap")
	msgs := []capture.Message{
		{Direction: config.DirectionClientToServer, Payload: []byte("ping")},
		{Direction: config.DirectionServerToClient, Payload: []byte("pong")},
	}
	if err := capture.WritePCAP(path, msgs, capture.PCAPOptions{ServerPort: 7000}); err != nil {
		t.Fatalf("WritePCAP: %v", err)
	}

	e, err := Load(path, Options{PCAPPort: 7000})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.Len() != 1 || string(e.Next()) != "pong" {
		t.Fatalf("expected only the server reply, got %d messages", e.Len())
	}
}

func TestNewRequiresMessages(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty message list")
	}
	e, err := New([][]byte{[]byte("x")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if string(e.Next()) != "x" || string(e.Next()) != "x" {
		t.Fatal("single message should repeat")
	}
}
