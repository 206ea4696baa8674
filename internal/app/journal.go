package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tturner/fuzzrelay/internal/errors"
	"github.com/tturner/fuzzrelay/internal/journal"
	"github.com/tturner/fuzzrelay/internal/logging"
)

// JournalOptions controls the journal commands.
type JournalOptions struct {
	Path  string
	Limit int
	Copy  bool
}

// copyText is swapped in tests.
var copyText = clipboard.WriteAll

func openJournal(path string) (*journal.Journal, error) {
	if path == "" {
		return nil, errors.Fatalf("journal path is required (--journal)")
	}
	logger, err := logging.NewLogger(logging.LogLevelError, "")
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(path, logger)
	if err != nil {
		return nil, errors.Fatal("open journal", err)
	}
	return j, nil
}

// ListJournal prints recorded sessions, newest first.
func ListJournal(ctx context.Context, w io.Writer, opts JournalOptions) error {
	j, err := openJournal(opts.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	sessions, err := j.List(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintf(w, "No sessions recorded in %s\n", opts.Path)
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		tests := "-"
		if s.Mutated() {
			tests = fmt.Sprintf("%d:%d", s.FirstTest, s.LastTest)
		}
		status := s.Reason
		if s.Error != "" {
			status = s.Error
		}
		rows = append(rows, []string{
			shortID(s.ID),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Mode,
			s.Remote,
			tests,
			strconv.FormatInt(s.ClientBytes, 10) + "/" + strconv.FormatInt(s.UpstreamBytes, 10),
			s.Duration().Round(time.Millisecond).String(),
			status,
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "MODE", "CLIENT", "TESTS", "BYTES C/U", "DURATION", "END").
		Rows(rows...)
	fmt.Fprintln(w, t.String())
	return nil
}

// LastJournal prints the most recent session and its reproduce command,
// optionally copying the command to the clipboard.
func LastJournal(ctx context.Context, w io.Writer, opts JournalOptions) error {
	j, err := openJournal(opts.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	s, err := j.Last(ctx)
	if stderrors.Is(err, journal.ErrEmpty) {
		fmt.Fprintf(w, "No sessions recorded in %s\n", opts.Path)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Session:   %s\n", s.ID)
	fmt.Fprintf(w, "Mode:      %s\n", s.Mode)
	fmt.Fprintf(w, "Client:    %s\n", s.Remote)
	if s.Upstream != "" {
		fmt.Fprintf(w, "Upstream:  %s\n", s.Upstream)
	}
	fmt.Fprintf(w, "Started:   %s (%s)\n", s.StartedAt.Local().Format(time.RFC3339), s.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Bytes:     client %d, upstream %d\n", s.ClientBytes, s.UpstreamBytes)
	if s.Mutated() {
		fmt.Fprintf(w, "Tests:     %d:%d (%d mutations, range %s)\n", s.FirstTest, s.LastTest, s.Mutations, s.TestRange)
	}
	fmt.Fprintf(w, "End:       %s\n", s.Reason)
	if s.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", s.Error)
	}

	cmd := s.ReproduceCommand()
	if cmd == "" {
		return nil
	}
	fmt.Fprintf(w, "\nReproduce:\n  %s\n", cmd)
	if opts.Copy {
		if err := copyText(cmd); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(w, "Copied to clipboard")
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
