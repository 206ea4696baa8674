package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/errors"
	"github.com/tturner/fuzzrelay/internal/journal"
	"github.com/tturner/fuzzrelay/internal/relay"
	"github.com/tturner/fuzzrelay/internal/replay"
	"github.com/tturner/fuzzrelay/internal/shaping"
	"github.com/tturner/fuzzrelay/internal/tui"
)

// StubOptions carries the stub command's flags.
type StubOptions struct {
	ConfigPath string
	ListenHost string
	ListenPort int
	TimeoutMs  int
	Tolerate   bool

	DataPath  string
	PCAPPort  int
	Direction string

	LogLevel  string
	LogFormat string
	LogFile   string

	JournalPath string
	Metrics     bool
	TUI         bool
}

// LoadStubConfig resolves the stub configuration. The replay source is
// capture.path unless --data overrides it.
func LoadStubConfig(opts StubOptions) (*config.RelayConfig, error) {
	cfg, err := LoadRelayConfig(RelayOptions{
		ConfigPath:  opts.ConfigPath,
		ListenHost:  opts.ListenHost,
		ListenPort:  opts.ListenPort,
		TimeoutMs:   opts.TimeoutMs,
		Tolerate:    opts.Tolerate,
		CapturePath: opts.DataPath,
		LogLevel:    opts.LogLevel,
		LogFormat:   opts.LogFormat,
		LogFile:     opts.LogFile,
		JournalPath: opts.JournalPath,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	if opts.PCAPPort != 0 {
		cfg.Replay.PCAPPort = opts.PCAPPort
	}
	if cfg.Capture.Path == "" {
		return nil, errors.Fatalf("stub mode requires replay data (--data or capture.path)")
	}
	return cfg, nil
}

// RunStub answers every client read with the next recorded payload.
func RunStub(opts StubOptions) error {
	cfg, err := LoadStubConfig(opts)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	rep, err := replay.Load(cfg.Capture.Path, replay.Options{
		PCAPPort:  cfg.Replay.PCAPPort,
		Direction: config.Direction(opts.Direction),
	})
	if err != nil {
		return err
	}
	logger.Info("[stub] loaded %s", rep)

	var observer relay.Observer
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return errors.Fatal("journal", err)
		}
		defer j.Close()
		observer = j.Observer(journal.Run{Listen: listenAddr(cfg)})
	}

	var feed *tui.Feed
	if opts.TUI {
		feed = tui.NewFeed(512)
	}

	r, err := relay.New(relay.Options{
		Mode:     relay.ModeStub,
		Config:   cfg,
		Logger:   logger,
		Replay:   rep,
		Shaper:   shaping.New(cfg.Shaping, cfg.Mutation.Seed),
		Observer: relay.MultiObserver(observer, feedObserver(feed)),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.TUI {
		fmt.Fprintf(os.Stdout, "fuzzrelay stub on %s replaying %d messages from %s\n", listenAddr(cfg), rep.Len(), rep.Source())
	}
	if err := serve(ctx, r, feed, opts.TUI, "fuzzrelay stub", nil); err != nil {
		return err
	}
	if !opts.TUI {
		s := r.Stats()
		fmt.Fprintf(os.Stdout, "\nStub stopped\n  Sessions: %d (%d with errors)\n", s.Sessions, s.SessionErrors)
	}
	return nil
}
