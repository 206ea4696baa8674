package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tturner/fuzzrelay/internal/capture"
	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/errors"
	"github.com/tturner/fuzzrelay/internal/journal"
	"github.com/tturner/fuzzrelay/internal/logging"
)

func TestApplyRelayMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		wantErr bool
		c2s     bool
		s2c     bool
	}{
		{name: "passthrough", mode: "passthrough"},
		{name: "fuzz server", mode: "fuzz-server", c2s: true},
		{name: "fuzz client", mode: "fuzz-client", s2c: true},
		{name: "underscore alias", mode: "fuzz_server", c2s: true},
		{name: "both", mode: "fuzz-both", c2s: true, s2c: true},
		{name: "record", mode: "record"},
		{name: "server data", mode: "server_data", wantErr: true},
		{name: "unknown", mode: "chaos", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.CreateDefaultRelayConfig()
			err := ApplyRelayMode(cfg, tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyRelayMode(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if cfg.Mutation.ClientToServer != tt.c2s || cfg.Mutation.ServerToClient != tt.s2c {
				t.Errorf("directions = %v/%v, want %v/%v", cfg.Mutation.ClientToServer, cfg.Mutation.ServerToClient, tt.c2s, tt.s2c)
			}
		})
	}

	cfg := config.CreateDefaultRelayConfig()
	if err := ApplyRelayMode(cfg, "record"); err != nil {
		t.Fatal(err)
	}
	if cfg.Capture.Path == "" || cfg.Capture.Direction != config.DirectionBoth {
		t.Errorf("record mode capture = %+v", cfg.Capture)
	}
}

func TestLoadRelayConfigOverrides(t *testing.T) {
	cfg, err := LoadRelayConfig(RelayOptions{
		Mode:         "fuzz-server",
		ListenPort:   2121,
		RemoteHost:   "10.0.0.5",
		RemotePort:   21,
		Test:         "5:9",
		Ratio:        "0.1",
		Seed:         42,
		SeedSet:      true,
		IgnoredBytes: []string{"0d", "0a"},
		Preset:       "ftp-noauth",
		LogLevel:     "debug",
	})
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.Relay.ListenPort != 2121 || cfg.Relay.RemoteHost != "10.0.0.5" || cfg.Relay.RemotePort != 21 {
		t.Errorf("relay = %+v", cfg.Relay)
	}
	if !cfg.Mutation.ClientToServer || cfg.Mutation.Test != "5:9" || cfg.Mutation.Seed != 42 {
		t.Errorf("mutation = %+v", cfg.Mutation)
	}
	if cfg.Handlers.Preset != "ftp-noauth" || cfg.Logging.Level != "debug" {
		t.Errorf("handlers %+v logging %+v", cfg.Handlers, cfg.Logging)
	}
}

func TestServerFirstPresetToleratesTimeouts(t *testing.T) {
	tests := []struct {
		name     string
		opts     RelayOptions
		tolerate bool
	}{
		{name: "ftp-noauth preset", opts: RelayOptions{Preset: "ftp-noauth"}, tolerate: true},
		{name: "inspect preset", opts: RelayOptions{Preset: "inspect"}, tolerate: false},
		{name: "explicit chain", opts: RelayOptions{Handlers: []string{"auth_strip"}}, tolerate: false},
		{name: "explicit flag", opts: RelayOptions{Tolerate: true}, tolerate: true},
		{name: "no handlers", opts: RelayOptions{}, tolerate: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadRelayConfig(tt.opts)
			if err != nil {
				t.Fatalf("LoadRelayConfig: %v", err)
			}
			if cfg.Relay.TolerateReadTimeouts != tt.tolerate {
				t.Fatalf("TolerateReadTimeouts = %v, want %v", cfg.Relay.TolerateReadTimeouts, tt.tolerate)
			}
		})
	}
}

func TestLoadRelayConfigFatal(t *testing.T) {
	tests := []struct {
		name string
		opts RelayOptions
	}{
		{name: "bad range", opts: RelayOptions{Test: "5:5:5"}},
		{name: "bad ratio", opts: RelayOptions{Ratio: "1.5"}},
		{name: "bad mode", opts: RelayOptions{Mode: "nope"}},
		{name: "missing file", opts: RelayOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRelayConfig(tt.opts)
			if !errors.IsFatal(err) {
				t.Fatalf("expected fatal error, got %v", err)
			}
		})
	}
}

func TestLoadStubConfigRequiresData(t *testing.T) {
	if _, err := LoadStubConfig(StubOptions{}); !errors.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	cfg, err := LoadStubConfig(StubOptions{DataPath: "replay.txt", PCAPPort: 21})
	if err != nil {
		t.Fatalf("LoadStubConfig: %v", err)
	}
	if cfg.Capture.Path != "replay.txt" || cfg.Replay.PCAPPort != 21 {
		t.Fatalf("cfg = %+v %+v", cfg.Capture, cfg.Replay)
	}
}

func TestPrintDefaultConfigParses(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintDefaultConfig(&buf); err != nil {
		t.Fatalf("PrintDefaultConfig: %v", err)
	}
	path := filepath.Join(t.TempDir(), "fuzzrelay.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := ValidateConfig(&out, path); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	if !strings.Contains(out.String(), "is valid") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestValidateConfigRejectsUnknownPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	data := "relay:\n  remote_port: 21\nhandlers:\n  preset: nope\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateConfig(&bytes.Buffer{}, path); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

func TestCaptureDumpAndExport(t *testing.T) {
	dir := t.TempDir()
	hexPath := filepath.Join(dir, "capture.txt")
	if err := capture.WriteHexFile(hexPath, [][]byte{[]byte("USER a\r\n"), []byte("331 ok\r\n")}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := DumpCapture(&out, CaptureDumpOptions{Path: hexPath, Width: 16}); err != nil {
		t.Fatalf("DumpCapture: %v", err)
	}
	if !strings.Contains(out.String(), "2 messages, 16 bytes") {
		t.Fatalf("dump header = %q", out.String())
	}

	pcapPath := filepath.Join(dir, "capture.pcap")
	out.Reset()
	if err := ExportCapture(&out, CaptureExportOptions{Input: hexPath, Output: pcapPath, Alternate: true, ServerPort: 21}); err != nil {
		t.Fatalf("ExportCapture: %v", err)
	}
	replies, err := capture.ReadPCAPPayloads(pcapPath, 21, config.DirectionServerToClient)
	if err != nil {
		t.Fatalf("ReadPCAPPayloads: %v", err)
	}
	if len(replies) != 1 || string(replies[0]) != "331 ok\r\n" {
		t.Fatalf("server replies = %q", replies)
	}
}

func seedJournal(t *testing.T, path string, rows ...journal.Session) {
	t.Helper()
	logger, _ := logging.NewLogger(logging.LogLevelSilent, "")
	j, err := journal.Open(path, logger)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()
	for _, r := range rows {
		if err := j.Record(context.Background(), r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
}

func TestJournalCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	now := time.Now()
	seedJournal(t, path,
		journal.Session{ID: "aaaaaaaa-1", Mode: "relay", StartedAt: now.Add(-time.Minute), EndedAt: now, FirstTest: -1, LastTest: -1, Reason: "client closed"},
		journal.Session{ID: "bbbbbbbb-2", Mode: "relay", StartedAt: now, EndedAt: now.Add(time.Second), FirstTest: 3, LastTest: 5, Ratio: "0.1", Directions: "client_to_server", Reason: "upstream closed"},
	)

	var out bytes.Buffer
	if err := ListJournal(context.Background(), &out, JournalOptions{Path: path}); err != nil {
		t.Fatalf("ListJournal: %v", err)
	}
	if !strings.Contains(out.String(), "bbbbbbbb") || !strings.Contains(out.String(), "3:5") {
		t.Fatalf("list output:\n%s", out.String())
	}

	var copied string
	orig := copyText
	copyText = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { copyText = orig })

	out.Reset()
	if err := LastJournal(context.Background(), &out, JournalOptions{Path: path, Copy: true}); err != nil {
		t.Fatalf("LastJournal: %v", err)
	}
	if !strings.Contains(copied, "--test 3:5") || !strings.Contains(copied, "--client-to-server") {
		t.Fatalf("copied = %q", copied)
	}
}

func TestJournalRequiresPath(t *testing.T) {
	if err := ListJournal(context.Background(), &bytes.Buffer{}, JournalOptions{}); !errors.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestResumeFromJournal(t *testing.T) {
	tests := []struct {
		name      string
		testRange string
		lastTest  int64
		wantDone  bool
		wantStart int64
	}{
		{name: "unbounded continues", testRange: "0:", lastTest: 9, wantStart: 10},
		{name: "bounded continues", testRange: "0:20", lastTest: 9, wantStart: 10},
		{name: "bounded complete", testRange: "0:9", lastTest: 9, wantDone: true},
		{name: "start already ahead", testRange: "50:", lastTest: 9, wantStart: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "journal.db")
			seedJournal(t, path, journal.Session{ID: "x", StartedAt: time.Now(), FirstTest: 0, LastTest: tt.lastTest})

			cfg := config.CreateDefaultRelayConfig()
			cfg.Mutation.Test = tt.testRange
			cfg.Mutation.ClientToServer = true
			cfg.Journal.Path = path
			logger, _ := logging.NewLogger(logging.LogLevelSilent, "")

			rt, err := buildRuntime(cfg, logger)
			if err != nil {
				t.Fatalf("buildRuntime: %v", err)
			}
			defer rt.close()

			done, err := rt.resume(context.Background())
			if err != nil {
				t.Fatalf("resume: %v", err)
			}
			if done != tt.wantDone {
				t.Fatalf("done = %v, want %v", done, tt.wantDone)
			}
			if !done && rt.mutator.Test() != tt.wantStart {
				t.Fatalf("mutator starts at %d, want %d", rt.mutator.Test(), tt.wantStart)
			}
		})
	}
}

func TestFinalizeExportsPCAP(t *testing.T) {
	dir := t.TempDir()
	cfg := config.CreateDefaultRelayConfig()
	cfg.Relay.RemotePort = 21
	cfg.Capture.Path = filepath.Join(dir, "capture.txt")
	cfg.Capture.PCAPPath = filepath.Join(dir, "capture.pcap")
	logger, _ := logging.NewLogger(logging.LogLevelSilent, "")

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	rt.capture.Append([]byte("USER a\r\n"), config.DirectionClientToServer)
	rt.capture.Append([]byte("331 ok\r\n"), config.DirectionServerToClient)

	if err := rt.finalize(cfg, logger); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	hexLines, err := capture.ReadHexFile(cfg.Capture.Path)
	if err != nil || len(hexLines) != 2 {
		t.Fatalf("hex capture = %d lines, err %v", len(hexLines), err)
	}
	replies, err := capture.ReadPCAPPayloads(cfg.Capture.PCAPPath, 21, config.DirectionServerToClient)
	if err != nil || len(replies) != 1 {
		t.Fatalf("pcap replies = %q, err %v", replies, err)
	}
}

func TestListings(t *testing.T) {
	var out bytes.Buffer
	ListHandlers(&out)
	ListModes(&out)
	for _, want := range []string{"ftp-noauth", "auth_strip", "fuzz-server", "passthrough"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("listing missing %q", want)
		}
	}
}
