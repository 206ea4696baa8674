package tui

// Live relay monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/fuzzrelay/internal/relay"
)

const (
	maxPayloadRows = 12
	maxSessionRows = 6
)

// MonitorOptions configures the monitor model.
type MonitorOptions struct {
	Title string
	Feed  *Feed
	// Stats polls relay counters on every tick.
	Stats func() relay.StatsSnapshot
	// Reproduce renders the command that replays a finished session.
	Reproduce func(relay.SessionSummary) string
	// Quit is called when the user leaves the monitor.
	Quit func()
}

type eventMsg relay.Event

type tickMsg time.Time

type feedClosedMsg struct{}

// Monitor is the bubbletea model behind `relay --tui`.
type Monitor struct {
	opts   MonitorOptions
	styles Styles
	width  int

	listening string
	stopped   bool
	stats     relay.StatsSnapshot
	active    *relay.Event
	payloads  []relay.Event
	sessions  []relay.SessionSummary
	status    string

	// copy is swapped in tests.
	copy func(string) error
}

// NewMonitor builds the monitor model.
func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.Title == "" {
		opts.Title = "fuzzrelay"
	}
	return &Monitor{opts: opts, styles: DefaultStyles, width: 100, copy: clipboard.WriteAll}
}

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Monitor) waitForEvent() tea.Cmd {
	if m.opts.Feed == nil {
		return nil
	}
	events := m.opts.Feed.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		if m.opts.Stats != nil {
			m.stats = m.opts.Stats()
		}
		return m, tickCmd()

	case eventMsg:
		m.apply(relay.Event(msg))
		return m, m.waitForEvent()

	case feedClosedMsg:
		m.stopped = true
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.opts.Quit != nil {
				m.opts.Quit()
			}
			return m, tea.Quit
		case "c":
			m.copyLastReproduce()
		case "x":
			m.payloads = nil
			m.status = "payload log cleared"
		}
	}
	return m, nil
}

func (m *Monitor) apply(ev relay.Event) {
	switch ev.Kind {
	case relay.EventListening:
		m.listening = ev.Remote
	case relay.EventSessionStart:
		e := ev
		m.active = &e
	case relay.EventPayload:
		m.payloads = append(m.payloads, ev)
		if len(m.payloads) > maxPayloadRows {
			m.payloads = m.payloads[len(m.payloads)-maxPayloadRows:]
		}
	case relay.EventSessionEnd:
		m.active = nil
		if ev.Summary != nil {
			m.sessions = append(m.sessions, *ev.Summary)
			if len(m.sessions) > maxSessionRows {
				m.sessions = m.sessions[len(m.sessions)-maxSessionRows:]
			}
		}
	case relay.EventStopped:
		m.stopped = true
	}
}

func (m *Monitor) copyLastReproduce() {
	if len(m.sessions) == 0 || m.opts.Reproduce == nil {
		m.status = "copy: no finished session yet"
		return
	}
	cmd := m.opts.Reproduce(m.sessions[len(m.sessions)-1])
	if cmd == "" {
		m.status = "copy: last session did not mutate anything"
		return
	}
	if err := m.copy(cmd); err != nil {
		m.status = fmt.Sprintf("copy failed: %v", err)
		return
	}
	m.status = "reproduce command copied to clipboard"
}

// View implements tea.Model.
func (m *Monitor) View() string {
	s := m.styles
	var b strings.Builder

	state := s.Success.Render("listening")
	if m.stopped {
		state = s.Dim.Render("stopped")
	} else if m.active != nil {
		state = s.Warning.Render("session " + shortID(m.active.SessionID) + " from " + m.active.Remote)
	}
	b.WriteString(s.Title.Render(m.opts.Title) + "  " + s.Dim.Render(m.listening) + "  " + state + "\n\n")

	b.WriteString(m.renderStats() + "\n")
	b.WriteString(m.renderPayloads() + "\n")
	b.WriteString(m.renderSessions() + "\n")

	if m.status != "" {
		b.WriteString(s.Info.Render(m.status) + "\n")
	}
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Monitor) renderStats() string {
	s := m.styles
	st := m.stats
	row := func(label string, value interface{}) string {
		return s.Label.Render(label) + s.Value.Render(fmt.Sprint(value))
	}
	left := strings.Join([]string{
		row("sessions", st.Sessions),
		row("active", st.Active),
		row("errors", st.SessionErrors),
	}, "\n")
	mid := strings.Join([]string{
		row("client bytes", st.ClientBytes),
		row("upstream", st.UpstreamBytes),
		row("drops", st.Drops),
	}, "\n")
	right := strings.Join([]string{
		row("test index", st.TestIndex),
		row("mutations", st.Mutations),
		row("mut errors", st.MutationErrors),
	}, "\n")
	return s.Box.Render(lipgloss.JoinHorizontal(lipgloss.Top, left, "   ", mid, "   ", right))
}

func (m *Monitor) renderPayloads() string {
	s := m.styles
	lines := []string{s.Header.Render("Payloads")}
	if len(m.payloads) == 0 {
		lines = append(lines, s.Dim.Render("waiting for traffic"))
	}
	for _, ev := range m.payloads {
		line := fmt.Sprintf("%s %s  %-14s %6dB  %s",
			VerdictIcon(ev.Verdict, ev.Mutated > 0, s),
			ev.Time.Format("15:04:05.000"),
			ev.Direction.Label(),
			ev.Size,
			ev.Verdict)
		if ev.Mutated > 0 {
			line += s.Mutated.Render(fmt.Sprintf("  test %d, %d bytes", ev.Test, ev.Mutated))
		}
		lines = append(lines, line)
	}
	return s.Box.Width(max(m.width-4, 40)).Render(strings.Join(lines, "\n"))
}

func (m *Monitor) renderSessions() string {
	s := m.styles
	lines := []string{s.Header.Render("Sessions")}
	if len(m.sessions) == 0 {
		lines = append(lines, s.Dim.Render("none finished yet"))
	}
	for i := len(m.sessions) - 1; i >= 0; i-- {
		sum := m.sessions[i]
		tests := "-"
		if sum.FirstTest >= 0 {
			tests = fmt.Sprintf("%d:%d", sum.FirstTest, sum.LastTest)
		}
		line := fmt.Sprintf("%s %s  %-21s tests %-11s %s",
			StatusIcon(sum.Err != nil, s),
			shortID(sum.ID),
			sum.Remote,
			tests,
			sum.Reason)
		if sum.Err != nil {
			line += "  " + s.Error.Render(sum.Err.Error())
		}
		lines = append(lines, line)
	}
	return s.Box.Width(max(m.width-4, 40)).Render(strings.Join(lines, "\n"))
}

func (m *Monitor) renderFooter() string {
	s := m.styles
	keys := []struct{ key, hint string }{
		{"c", "copy reproduce command"},
		{"x", "clear payloads"},
		{"q", "quit"},
	}
	var parts []string
	for _, k := range keys {
		parts = append(parts, s.KeyBinding.Render(k.key)+" "+s.KeyHint.Render(k.hint))
	}
	return s.Footer.Render(strings.Join(parts, "  "))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
