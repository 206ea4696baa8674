package journal

// SQLite journal of finished relay sessions, used to report and resume fuzz runs.

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/logging"
	"github.com/tturner/fuzzrelay/internal/relay"
)

// ErrEmpty is returned by Last when no session has been recorded.
var ErrEmpty = stderrors.New("journal is empty")

// Session is one journal row.
type Session struct {
	ID            string `gorm:"primaryKey;size:36"`
	Mode          string `gorm:"size:16"`
	Remote        string
	Listen        string
	Upstream      string
	StartedAt     time.Time `gorm:"index"`
	EndedAt       time.Time
	ClientBytes   int64
	UpstreamBytes int64
	TestRange     string
	Ratio         string
	Seed          int64
	Directions    string
	FirstTest     int64
	LastTest      int64
	Mutations     int
	Drops         int
	Exhausted     bool
	Reason        string
	Error         string
}

// Duration is the wall time the session was open.
func (s Session) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Mutated reports whether the session consumed any test index.
func (s Session) Mutated() bool {
	return s.FirstTest >= 0 && s.LastTest >= s.FirstTest
}

// ReproduceCommand returns a relay invocation that replays exactly the
// test indices the session consumed.
func (s Session) ReproduceCommand() string {
	if !s.Mutated() {
		return ""
	}
	parts := []string{"fuzzrelay", "relay"}
	if host, port, ok := splitHostPort(s.Listen); ok {
		parts = append(parts, "--listen-host", host, "--listen-port", port)
	}
	if host, port, ok := splitHostPort(s.Upstream); ok {
		parts = append(parts, "--remote-host", host, "--remote-port", port)
	}
	parts = append(parts, "--test", fmt.Sprintf("%d:%d", s.FirstTest, s.LastTest))
	if s.Ratio != "" {
		parts = append(parts, "--ratio", s.Ratio)
	}
	if s.Seed != 0 {
		parts = append(parts, "--seed", strconv.FormatInt(s.Seed, 10))
	}
	if dirs := config.Direction(s.Directions); dirs != "" {
		if dirs.Includes(config.DirectionClientToServer) {
			parts = append(parts, "--client-to-server")
		}
		if dirs.Includes(config.DirectionServerToClient) {
			parts = append(parts, "--server-to-client")
		}
	}
	return strings.Join(parts, " ")
}

func splitHostPort(addr string) (string, string, bool) {
	idx := strings.LastIndex(addr, ":")
	if idx <= 0 || idx == len(addr)-1 {
		return "", "", false
	}
	return strings.Trim(addr[:idx], "[]"), addr[idx+1:], true
}

// Run describes the relay run that sessions belong to.
type Run struct {
	Listen     string
	Upstream   string
	TestRange  string
	Ratio      string
	Seed       int64
	Directions config.Direction
}

// Journal wraps the session database.
type Journal struct {
	db     *gorm.DB
	path   string
	logger *logging.Logger
}

// Open opens or creates the journal at path and migrates its schema.
func Open(path string, logger *logging.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: NewGormLogger(logger)})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Session{}); err != nil {
		return nil, fmt.Errorf("migrate journal %s: %w", path, err)
	}
	return &Journal{db: db, path: path, logger: logger}, nil
}

// Path returns the database file.
func (j *Journal) Path() string {
	return j.path
}

// Close releases the database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores one session row.
func (j *Journal) Record(ctx context.Context, s Session) error {
	if s.ID == "" {
		return fmt.Errorf("journal: session ID is required")
	}
	if err := j.db.WithContext(ctx).Create(&s).Error; err != nil {
		return fmt.Errorf("record session %s: %w", s.ID, err)
	}
	return nil
}

// List returns the most recent sessions first. limit <= 0 returns all rows.
func (j *Journal) List(ctx context.Context, limit int) ([]Session, error) {
	var sessions []Session
	q := j.db.WithContext(ctx).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Last returns the most recently started session.
func (j *Journal) Last(ctx context.Context) (*Session, error) {
	var s Session
	err := j.db.WithContext(ctx).Order("started_at desc").First(&s).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("last session: %w", err)
	}
	return &s, nil
}

// ResumeIndex returns the test index after the highest one ever consumed,
// and false when no session has mutated anything yet.
func (j *Journal) ResumeIndex(ctx context.Context) (int64, bool, error) {
	var row struct {
		Max *int64
	}
	err := j.db.WithContext(ctx).Model(&Session{}).
		Select("MAX(last_test) AS max").
		Where("last_test >= 0").
		Scan(&row).Error
	if err != nil {
		return 0, false, fmt.Errorf("resume index: %w", err)
	}
	if row.Max == nil {
		return 0, false, nil
	}
	return *row.Max + 1, true, nil
}

// Observer returns a relay observer that records every finished session.
// Journal failures are logged and never end the relay.
func (j *Journal) Observer(run Run) relay.Observer {
	return func(ev relay.Event) {
		if ev.Kind != relay.EventSessionEnd || ev.Summary == nil {
			return
		}
		if err := j.Record(context.Background(), FromSummary(*ev.Summary, run)); err != nil {
			j.logger.Error("[journal] %v", err)
		}
	}
}

// FromSummary builds a journal row from a relay session summary.
func FromSummary(sum relay.SessionSummary, run Run) Session {
	s := Session{
		ID:            sum.ID,
		Mode:          sum.Mode.String(),
		Remote:        sum.Remote,
		Listen:        run.Listen,
		StartedAt:     sum.Start,
		EndedAt:       sum.End,
		ClientBytes:   sum.ClientBytes,
		UpstreamBytes: sum.UpstreamBytes,
		TestRange:     run.TestRange,
		Ratio:         run.Ratio,
		Seed:          run.Seed,
		Directions:    string(run.Directions),
		FirstTest:     sum.FirstTest,
		LastTest:      sum.LastTest,
		Mutations:     sum.Mutations,
		Drops:         sum.Drops,
		Exhausted:     sum.Exhausted,
		Reason:        sum.Reason,
	}
	if sum.Mode == relay.ModeRelay {
		s.Upstream = run.Upstream
	}
	if sum.Err != nil {
		s.Error = sum.Err.Error()
	}
	return s
}
