package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/relay"
)

func TestFeedDropsWhenFull(t *testing.T) {
	feed := NewFeed(2)
	obs := feed.Observer()
	for i := 0; i < 5; i++ {
		obs(relay.Event{Kind: relay.EventPayload})
	}
	if len(feed.Events()) != 2 {
		t.Fatalf("buffered = %d, want 2", len(feed.Events()))
	}
	if feed.Dropped() != 3 {
		t.Fatalf("Dropped = %d, want 3", feed.Dropped())
	}
}

func TestMonitorAppliesEvents(t *testing.T) {
	m := NewMonitor(MonitorOptions{Title: "test"})

	m.Update(eventMsg(relay.Event{Kind: relay.EventListening, Remote: "127.0.0.1:10101"}))
	m.Update(eventMsg(relay.Event{Kind: relay.EventSessionStart, SessionID: "abcdef0123456789", Remote: "127.0.0.1:5555"}))
	if m.active == nil {
		t.Fatal("session start should set the active session")
	}
	for i := 0; i < maxPayloadRows+3; i++ {
		m.Update(eventMsg(relay.Event{Kind: relay.EventPayload, Time: time.Now(), Direction: config.DirectionClientToServer, Size: 10, Verdict: "forward", Test: int64(i), Mutated: 1}))
	}
	if len(m.payloads) != maxPayloadRows {
		t.Fatalf("payload rows = %d, want %d", len(m.payloads), maxPayloadRows)
	}
	if m.payloads[0].Test != 3 {
		t.Fatalf("oldest kept payload test = %d, want 3", m.payloads[0].Test)
	}

	sum := relay.SessionSummary{ID: "abcdef0123456789", Remote: "127.0.0.1:5555", FirstTest: 0, LastTest: 14, Reason: "client closed"}
	m.Update(eventMsg(relay.Event{Kind: relay.EventSessionEnd, Summary: &sum}))
	if m.active != nil || len(m.sessions) != 1 {
		t.Fatalf("active %v, sessions %d", m.active, len(m.sessions))
	}

	view := m.View()
	for _, want := range []string{"test", "127.0.0.1:10101", "abcdef01", "0:14", "client closed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestMonitorStatsTick(t *testing.T) {
	m := NewMonitor(MonitorOptions{Stats: func() relay.StatsSnapshot {
		return relay.StatsSnapshot{Sessions: 4, TestIndex: 99}
	}})
	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick should schedule the next tick")
	}
	if m.stats.Sessions != 4 || m.stats.TestIndex != 99 {
		t.Fatalf("stats = %+v", m.stats)
	}
}

func TestMonitorCopyReproduce(t *testing.T) {
	var copied string
	m := NewMonitor(MonitorOptions{Reproduce: func(s relay.SessionSummary) string {
		if s.FirstTest < 0 {
			return ""
		}
		return "fuzzrelay relay --test 1:2"
	}})
	m.copy = func(text string) error { copied = text; return nil }

	key := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}}
	m.Update(key)
	if !strings.Contains(m.status, "no finished session") {
		t.Fatalf("status = %q", m.status)
	}

	m.Update(eventMsg(relay.Event{Kind: relay.EventSessionEnd, Summary: &relay.SessionSummary{FirstTest: 1, LastTest: 2}}))
	m.Update(key)
	if copied != "fuzzrelay relay --test 1:2" {
		t.Fatalf("copied = %q", copied)
	}

	m.copy = func(string) error { return errors.New("no clipboard") }
	m.Update(key)
	if !strings.Contains(m.status, "copy failed") {
		t.Fatalf("status = %q", m.status)
	}
}

func TestMonitorQuit(t *testing.T) {
	quit := false
	m := NewMonitor(MonitorOptions{Quit: func() { quit = true }})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil || !quit {
		t.Fatal("q should call Quit and return tea.Quit")
	}
}

func TestWizardApply(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(v *WizardValues)
		wantErr bool
		check   func(t *testing.T, cfg *config.RelayConfig)
	}{
		{
			name: "defaults round trip",
			edit: func(v *WizardValues) {},
			check: func(t *testing.T, cfg *config.RelayConfig) {
				if cfg.Relay.ListenPort != 10101 || cfg.Mutation.ClientToServer {
					t.Errorf("unexpected config: %+v", cfg.Relay)
				}
			},
		},
		{
			name: "fuzz client to server",
			edit: func(v *WizardValues) {
				v.RemoteHost = "10.0.0.5"
				v.RemotePort = "21"
				v.Directions = string(config.DirectionClientToServer)
				v.Test = "5:9"
				v.IgnoredBytes = "0d 0a"
				v.Preset = "ftp-noauth"
			},
			check: func(t *testing.T, cfg *config.RelayConfig) {
				if !cfg.Mutation.ClientToServer || cfg.Mutation.ServerToClient {
					t.Errorf("directions = %v/%v", cfg.Mutation.ClientToServer, cfg.Mutation.ServerToClient)
				}
				if cfg.Relay.RemotePort != 21 || cfg.Mutation.Test != "5:9" {
					t.Errorf("relay %+v mutation %+v", cfg.Relay, cfg.Mutation)
				}
				if len(cfg.Mutation.IgnoredBytes) != 2 || cfg.Handlers.Preset != "ftp-noauth" {
					t.Errorf("ignored %v preset %q", cfg.Mutation.IgnoredBytes, cfg.Handlers.Preset)
				}
			},
		},
		{
			name:    "bad port",
			edit:    func(v *WizardValues) { v.ListenPort = "70000" },
			wantErr: true,
		},
		{
			name:    "bad ratio",
			edit:    func(v *WizardValues) { v.Ratio = "0.9:0.1" },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.CreateDefaultRelayConfig()
			v := WizardValuesFrom(cfg)
			tt.edit(v)
			err := v.Apply(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && err == nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestBuildWizardForm(t *testing.T) {
	v := WizardValuesFrom(config.CreateDefaultRelayConfig())
	if BuildWizardForm(v) == nil {
		t.Fatal("BuildWizardForm returned nil")
	}
}
