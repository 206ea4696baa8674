package tui

import (
	"sync/atomic"

	"github.com/tturner/fuzzrelay/internal/relay"
)

// Feed hands relay events to the monitor without ever blocking the session.
type Feed struct {
	events  chan relay.Event
	dropped atomic.Int64
}

// NewFeed creates a feed buffering up to size events.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 256
	}
	return &Feed{events: make(chan relay.Event, size)}
}

// Observer returns the relay observer that publishes into the feed.
// Events are discarded when the monitor falls behind.
func (f *Feed) Observer() relay.Observer {
	return func(ev relay.Event) {
		select {
		case f.events <- ev:
		default:
			f.dropped.Add(1)
		}
	}
}

// Events is the receive side of the feed.
func (f *Feed) Events() <-chan relay.Event {
	return f.events
}

// Dropped counts events discarded because the buffer was full.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}
