package capture

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tturner/fuzzrelay/internal/config"
)

func TestStoreCloseWritesHexLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	store := NewStore(path, config.DirectionBoth)
	store.Append([]byte("Hello"), config.DirectionClientToServer)
	store.Append([]byte{0x00, 0xff}, config.DirectionServerToClient)

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	if got, want := string(data), "48656c6c6f\n00ff\n"; got != want {
		t.Fatalf("file = %q, want %q", got, want)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	payloads := [][]byte{[]byte("first"), {}, {0xde, 0xad}, bytes.Repeat([]byte{0x41}, 5000)}

	store := NewStore(path, config.DirectionBoth)
	for _, p := range payloads {
		store.Append(p, config.DirectionClientToServer)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadHexFile(path)
	if err != nil {
		t.Fatalf("ReadHexFile: %v", err)
	}
	// the empty payload becomes a blank line, which is skipped on reload
	want := [][]byte{payloads[0], payloads[2], payloads[3]}
	if len(got) != len(want) {
		t.Fatalf("got %d payloads, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("payload %d differs", i)
		}
	}
}

func TestStoreScope(t *testing.T) {
	store := NewStore("", config.DirectionServerToClient)
	if store.Append([]byte("req"), config.DirectionClientToServer) {
		t.Error("out-of-scope payload accepted")
	}
	if !store.Append([]byte("resp"), config.DirectionServerToClient) {
		t.Error("in-scope payload rejected")
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", store.Len())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close without path: %v", err)
	}
}

func TestStoreClearAndOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	store := NewStore(path, "")
	store.Append([]byte("one"), config.DirectionClientToServer)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	store.Clear()
	store.Append([]byte("two"), config.DirectionClientToServer)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "74776f\n" {
		t.Fatalf("file = %q, want only the second session", data)
	}
	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].Seq != 0 {
		t.Fatalf("messages after clear = %+v", msgs)
	}
}

func TestReadHexFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("4142\nzz\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := ReadHexFile(bad)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
	if _, err := ReadHexFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHexDump(t *testing.T) {
	out := HexDump([]byte("AB\x00"), 16)
	if !strings.HasPrefix(out, "0000: 41 42 00 ") {
		t.Errorf("unexpected prefix: %q", out)
	}
	if !strings.HasSuffix(out, "|AB.|\n") {
		t.Errorf("unexpected ascii column: %q", out)
	}
	if HexDump(nil, 0) != "" {
		t.Error("empty input should produce empty dump")
	}
}
