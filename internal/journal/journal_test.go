package journal

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/logging"
	"github.com/tturner/fuzzrelay/internal/relay"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	logger, _ := logging.NewLogger(logging.LogLevelSilent, "")
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenRequiresPath(t *testing.T) {
	logger, _ := logging.NewLogger(logging.LogLevelSilent, "")
	if _, err := Open("", logger); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLastOnEmptyJournal(t *testing.T) {
	j := openTestJournal(t)
	if _, err := j.Last(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Last = %v, want ErrEmpty", err)
	}
	if _, ok, err := j.ResumeIndex(context.Background()); err != nil || ok {
		t.Fatalf("ResumeIndex = ok %v err %v", ok, err)
	}
}

func TestRecordListLast(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := []Session{
		{ID: "a", StartedAt: base, FirstTest: 0, LastTest: 4},
		{ID: "b", StartedAt: base.Add(time.Minute), FirstTest: -1, LastTest: -1},
		{ID: "c", StartedAt: base.Add(2 * time.Minute), FirstTest: 5, LastTest: 11},
	}
	for _, r := range rows {
		if err := j.Record(ctx, r); err != nil {
			t.Fatalf("Record %s: %v", r.ID, err)
		}
	}

	list, err := j.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	if strings.Join(ids, ",") != "c,b,a" {
		t.Fatalf("List order = %v", ids)
	}

	limited, err := j.List(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("List(2) = %d rows, err %v", len(limited), err)
	}

	last, err := j.Last(ctx)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if last.ID != "c" {
		t.Fatalf("Last = %s", last.ID)
	}

	next, ok, err := j.ResumeIndex(ctx)
	if err != nil || !ok || next != 12 {
		t.Fatalf("ResumeIndex = %d %v %v, want 12", next, ok, err)
	}
}

func TestRecordRequiresID(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Record(context.Background(), Session{}); err == nil {
		t.Fatal("expected error for missing ID")
	}
}

func TestObserverRecordsSessionEnd(t *testing.T) {
	j := openTestJournal(t)
	obs := j.Observer(Run{
		Listen:     "127.0.0.1:10101",
		Upstream:   "127.0.0.1:21",
		TestRange:  "0:infinite",
		Ratio:      "0.01:0.05",
		Directions: config.DirectionClientToServer,
	})

	obs(relay.Event{Kind: relay.EventSessionStart, SessionID: "ignored"})
	sum := relay.SessionSummary{
		ID:        "11111111-2222-3333-4444-555555555555",
		Mode:      relay.ModeRelay,
		Start:     time.Now().Add(-time.Second),
		End:       time.Now(),
		FirstTest: 3,
		LastTest:  9,
		Mutations: 7,
		Reason:    "client closed",
		Err:       errors.New("upstream read reset: boom"),
	}
	obs(relay.Event{Kind: relay.EventSessionEnd, Summary: &sum})

	list, err := j.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("recorded %d sessions, want 1", len(list))
	}
	got := list[0]
	if got.ID != sum.ID || got.Upstream != "127.0.0.1:21" || got.Error == "" || got.Mutations != 7 {
		t.Fatalf("row = %+v", got)
	}
}

func TestReproduceCommand(t *testing.T) {
	tests := []struct {
		name string
		s    Session
		want string
	}{
		{
			name: "no mutation",
			s:    Session{FirstTest: -1, LastTest: -1},
			want: "",
		},
		{
			name: "client to server",
			s: Session{
				Listen: "localhost:10101", Upstream: "10.0.0.5:21",
				FirstTest: 4, LastTest: 9, Ratio: "0.01:0.05",
				Directions: string(config.DirectionClientToServer),
			},
			want: "fuzzrelay relay --listen-host localhost --listen-port 10101 --remote-host 10.0.0.5 --remote-port 21 --test 4:9 --ratio 0.01:0.05 --client-to-server",
		},
		{
			name: "both with seed",
			s: Session{
				FirstTest: 0, LastTest: 0, Seed: 7,
				Directions: string(config.DirectionBoth),
			},
			want: "fuzzrelay relay --test 0:0 --seed 7 --client-to-server --server-to-client",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.ReproduceCommand(); got != tt.want {
				t.Errorf("ReproduceCommand() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}
