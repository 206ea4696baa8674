package relay

import (
	"sync/atomic"
	"time"

	"github.com/tturner/fuzzrelay/internal/config"
)

// Mode selects what sits on the far side of the relay.
type Mode int

const (
	// ModeRelay dials the configured upstream for every session.
	ModeRelay Mode = iota
	// ModeStub never dials upstream and answers each client read from the replay engine.
	ModeStub
)

func (m Mode) String() string {
	if m == ModeStub {
		return "stub"
	}
	return "relay"
}

// EventKind identifies a relay event.
type EventKind string

const (
	EventListening    EventKind = "listening"
	EventSessionStart EventKind = "session_start"
	EventPayload      EventKind = "payload"
	EventSessionEnd   EventKind = "session_end"
	EventStopped      EventKind = "stopped"
)

// Event is published to the Observer. Fields beyond Kind and Time are set
// when they apply to the event kind.
type Event struct {
	Kind      EventKind
	Time      time.Time
	SessionID string
	Remote    string
	Direction config.Direction
	Size      int
	Verdict   string
	Test      int64
	Mutated   int
	Summary   *SessionSummary
	Err       error
}

// Observer receives relay events. It is called synchronously from the
// session goroutine and must not block.
type Observer func(Event)

// MultiObserver fans one event out to every non-nil observer.
func MultiObserver(observers ...Observer) Observer {
	var live []Observer
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return func(ev Event) {
		for _, o := range live {
			o(ev)
		}
	}
}

// SessionSummary describes a finished session.
type SessionSummary struct {
	ID            string
	Remote        string
	Mode          Mode
	Start         time.Time
	End           time.Time
	ClientBytes   int64 // bytes read from the client
	UpstreamBytes int64 // bytes read from upstream
	FirstTest     int64 // -1 when no mutation ran
	LastTest      int64 // -1 when no mutation ran
	Mutations     int
	Drops         int
	Exhausted     bool // the test range ran out during the session
	Reason        string
	Err           error
}

// Stats holds relay-wide counters.
type Stats struct {
	sessions       atomic.Int64
	active         atomic.Int64
	clientBytes    atomic.Int64
	upstreamBytes  atomic.Int64
	mutations      atomic.Int64
	drops          atomic.Int64
	sessionErrors  atomic.Int64
	mutationErrors atomic.Int64
	testIndex      atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Sessions       int64
	Active         int64
	ClientBytes    int64
	UpstreamBytes  int64
	Mutations      int64
	Drops          int64
	SessionErrors  int64
	MutationErrors int64
	TestIndex      int64
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Sessions:       s.sessions.Load(),
		Active:         s.active.Load(),
		ClientBytes:    s.clientBytes.Load(),
		UpstreamBytes:  s.upstreamBytes.Load(),
		Mutations:      s.mutations.Load(),
		Drops:          s.drops.Load(),
		SessionErrors:  s.sessionErrors.Load(),
		MutationErrors: s.mutationErrors.Load(),
		TestIndex:      s.testIndex.Load(),
	}
}
