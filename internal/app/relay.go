package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tturner/fuzzrelay/internal/capture"
	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/errors"
	"github.com/tturner/fuzzrelay/internal/intercept"
	"github.com/tturner/fuzzrelay/internal/journal"
	"github.com/tturner/fuzzrelay/internal/logging"
	"github.com/tturner/fuzzrelay/internal/mutate"
	"github.com/tturner/fuzzrelay/internal/relay"
	"github.com/tturner/fuzzrelay/internal/shaping"
	"github.com/tturner/fuzzrelay/internal/tui"
)

// RelayOptions carries the relay command's flags. Zero values leave the
// configuration untouched.
type RelayOptions struct {
	ConfigPath string
	Mode       string

	ListenHost string
	ListenPort int
	RemoteHost string
	RemotePort int
	TimeoutMs  int
	Tolerate   bool

	Test           string
	Ratio          string
	Seed           int64
	SeedSet        bool
	ClientToServer bool
	ServerToClient bool
	IgnoredBytes   []string

	CapturePath      string
	CaptureDirection string
	PCAPPath         string

	Preset   string
	Handlers []string

	LogLevel  string
	LogFormat string
	LogFile   string
	LogEvery  int
	HexDump   bool

	JournalPath string
	Resume      bool
	Metrics     bool
	MetricsPort int
	TUI         bool
}

// LoadRelayConfig resolves the effective configuration: file (or defaults),
// then mode, then flag overrides, then validation.
func LoadRelayConfig(opts RelayOptions) (*config.RelayConfig, error) {
	var cfg *config.RelayConfig
	if opts.ConfigPath != "" {
		loaded, err := config.LoadRelayConfig(opts.ConfigPath)
		if err != nil {
			return nil, errors.Fatal("load config", errors.WrapConfigError(err, opts.ConfigPath))
		}
		cfg = loaded
	} else {
		cfg = config.CreateDefaultRelayConfig()
	}

	if opts.Mode != "" {
		if err := ApplyRelayMode(cfg, opts.Mode); err != nil {
			return nil, errors.Fatal("mode", err)
		}
	}
	applyRelayOverrides(cfg, opts)
	applyPresetTimeouts(cfg)
	config.ApplyDefaults(cfg)

	if err := config.ValidateRelayConfig(cfg); err != nil {
		source := opts.ConfigPath
		if source == "" {
			source = "command line flags"
		}
		return nil, errors.Fatal("validate config", errors.WrapConfigError(err, source))
	}
	return cfg, nil
}

func applyRelayOverrides(cfg *config.RelayConfig, opts RelayOptions) {
	if opts.ListenHost != "" {
		cfg.Relay.ListenHost = opts.ListenHost
	}
	if opts.ListenPort != 0 {
		cfg.Relay.ListenPort = opts.ListenPort
	}
	if opts.RemoteHost != "" {
		cfg.Relay.RemoteHost = opts.RemoteHost
	}
	if opts.RemotePort != 0 {
		cfg.Relay.RemotePort = opts.RemotePort
	}
	if opts.TimeoutMs != 0 {
		cfg.Relay.TimeoutMs = opts.TimeoutMs
	}
	if opts.Tolerate {
		cfg.Relay.TolerateReadTimeouts = true
	}

	if opts.Test != "" {
		cfg.Mutation.Test = opts.Test
	}
	if opts.Ratio != "" {
		cfg.Mutation.Ratio = opts.Ratio
	}
	if opts.SeedSet {
		cfg.Mutation.Seed = opts.Seed
	}
	if opts.ClientToServer {
		cfg.Mutation.ClientToServer = true
	}
	if opts.ServerToClient {
		cfg.Mutation.ServerToClient = true
	}
	if len(opts.IgnoredBytes) > 0 {
		cfg.Mutation.IgnoredBytes = opts.IgnoredBytes
	}

	if opts.CapturePath != "" {
		cfg.Capture.Path = opts.CapturePath
	}
	if opts.CaptureDirection != "" {
		cfg.Capture.Direction = config.Direction(opts.CaptureDirection)
	}
	if opts.PCAPPath != "" {
		cfg.Capture.PCAPPath = opts.PCAPPath
	}

	if len(opts.Handlers) > 0 {
		cfg.Handlers.Chain = opts.Handlers
	} else if opts.Preset != "" {
		cfg.Handlers.Preset = opts.Preset
		cfg.Handlers.Chain = nil
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if opts.LogFile != "" {
		cfg.Logging.LogFile = opts.LogFile
	}
	if opts.LogEvery > 0 {
		cfg.Logging.LogEveryN = opts.LogEvery
	}
	if opts.HexDump {
		cfg.Logging.IncludeHexDump = true
	}

	if opts.JournalPath != "" {
		cfg.Journal.Path = opts.JournalPath
	}
	if opts.Metrics {
		cfg.Metrics.Enable = true
	}
	if opts.MetricsPort != 0 {
		cfg.Metrics.Port = opts.MetricsPort
	}
}

// applyPresetTimeouts turns on tolerated read timeouts for presets whose
// server speaks first. The relay reads the client first, so a strict client
// timeout would end the session before the banner is relayed.
func applyPresetTimeouts(cfg *config.RelayConfig) {
	if len(cfg.Handlers.Chain) > 0 || cfg.Handlers.Preset == "" {
		return
	}
	preset, err := intercept.ResolvePreset(cfg.Handlers.Preset)
	if err != nil {
		return
	}
	if preset.ServerFirst {
		cfg.Relay.TolerateReadTimeouts = true
	}
}

// RunRelay runs the intercepting relay until interrupted or until a
// bounded test range is exhausted.
func RunRelay(opts RelayOptions) error {
	cfg, err := LoadRelayConfig(opts)
	if err != nil {
		return err
	}
	if opts.Resume && cfg.Journal.Path == "" {
		return errors.Fatalf("--resume requires a journal (journal.path or --journal)")
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	if opts.Resume {
		done, err := rt.resume(ctx)
		if err != nil {
			return err
		}
		if done {
			fmt.Fprintf(os.Stdout, "Test range %s already completed according to %s\n", rt.testRange, cfg.Journal.Path)
			return nil
		}
	}

	mode := "passthrough"
	if cfg.Mutation.ClientToServer || cfg.Mutation.ServerToClient {
		mode = "fuzz " + mutationDirections(cfg).Label()
	}
	logger.LogStartup(mode, listenAddr(cfg), upstreamAddr(cfg), rt.testRange.String(), cfg.Mutation.Ratio)

	var feed *tui.Feed
	if opts.TUI {
		feed = tui.NewFeed(512)
	}

	r, err := relay.New(relay.Options{
		Mode:              relay.ModeRelay,
		Config:            cfg,
		Logger:            logger,
		Mutator:           rt.mutator,
		Chain:             rt.chain,
		Capture:           rt.capture,
		Shaper:            rt.shaper,
		Observer:          relay.MultiObserver(rt.journalObserver(cfg), feedObserver(feed)),
		StopWhenExhausted: rt.mutator != nil && !rt.testRange.Unbounded,
	})
	if err != nil {
		return err
	}

	if !opts.TUI {
		fmt.Fprintf(os.Stdout, "fuzzrelay relaying %s -> %s (%s)\n", listenAddr(cfg), upstreamAddr(cfg), mode)
		if cfg.Mutation.ClientToServer || cfg.Mutation.ServerToClient {
			fmt.Fprintf(os.Stdout, "  Test range: %s  Ratio: %s\n", rt.testRange, cfg.Mutation.Ratio)
		}
	}

	runErr := serve(ctx, r, feed, opts.TUI, "fuzzrelay "+mode, rt.reproduce(cfg))
	finErr := rt.finalize(cfg, logger)
	if runErr != nil {
		return runErr
	}
	if finErr != nil {
		return finErr
	}
	if !opts.TUI {
		printStats(r.Stats(), cfg)
	}
	return nil
}

// serve runs the relay and, when requested, the monitor. Leaving the
// monitor stops the relay and vice versa.
func serve(ctx context.Context, r *relay.Relay, feed *tui.Feed, withTUI bool, title string, reproduce func(relay.SessionSummary) string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return r.Run(gctx)
	})
	if withTUI {
		g.Go(func() error {
			return tui.RunMonitor(gctx, tui.MonitorOptions{
				Title:     title,
				Feed:      feed,
				Stats:     r.Stats,
				Reproduce: reproduce,
				Quit:      cancel,
			})
		})
	}
	return g.Wait()
}

func feedObserver(feed *tui.Feed) relay.Observer {
	if feed == nil {
		return nil
	}
	return feed.Observer()
}

func mutationDirections(cfg *config.RelayConfig) config.Direction {
	switch {
	case cfg.Mutation.ClientToServer && cfg.Mutation.ServerToClient:
		return config.DirectionBoth
	case cfg.Mutation.ClientToServer:
		return config.DirectionClientToServer
	case cfg.Mutation.ServerToClient:
		return config.DirectionServerToClient
	}
	return ""
}

func listenAddr(cfg *config.RelayConfig) string {
	return net.JoinHostPort(cfg.Relay.ListenHost, strconv.Itoa(cfg.Relay.ListenPort))
}

func upstreamAddr(cfg *config.RelayConfig) string {
	return net.JoinHostPort(cfg.Relay.RemoteHost, strconv.Itoa(cfg.Relay.RemotePort))
}

func printStats(s relay.StatsSnapshot, cfg *config.RelayConfig) {
	fmt.Fprintf(os.Stdout, "\nRelay stopped\n")
	fmt.Fprintf(os.Stdout, "  Sessions: %d (%d with errors)\n", s.Sessions, s.SessionErrors)
	fmt.Fprintf(os.Stdout, "  Bytes: client %d, upstream %d\n", s.ClientBytes, s.UpstreamBytes)
	if cfg.Mutation.ClientToServer || cfg.Mutation.ServerToClient {
		fmt.Fprintf(os.Stdout, "  Mutations: %d (%d failed), next test index %d\n", s.Mutations, s.MutationErrors, s.TestIndex)
	}
	if s.Drops > 0 {
		fmt.Fprintf(os.Stdout, "  Dropped payloads: %d\n", s.Drops)
	}
}

// runtime holds the per-process collaborators shared by every session.
type runtime struct {
	testRange config.TestRange
	mutator   *mutate.Engine
	chain     *intercept.Chain
	capture   *capture.Store
	shaper    *shaping.Shaper
	journal   *journal.Journal
	logger    *logging.Logger
	mutOpts   mutate.Options
}

func buildRuntime(cfg *config.RelayConfig, logger *logging.Logger) (*runtime, error) {
	testRange, err := config.ParseTestRange(cfg.Mutation.Test)
	if err != nil {
		return nil, errors.Fatal("mutation.test", err)
	}
	ratio, err := config.ParseRatio(cfg.Mutation.Ratio)
	if err != nil {
		return nil, errors.Fatal("mutation.ratio", err)
	}
	ignored, err := config.ParseIgnoredBytes(cfg.Mutation.IgnoredBytes)
	if err != nil {
		return nil, errors.Fatal("mutation.ignored_bytes", err)
	}

	rt := &runtime{
		testRange: testRange,
		logger:    logger,
		mutOpts:   mutate.Options{Range: testRange, Ratio: ratio, Ignored: ignored, Seed: cfg.Mutation.Seed},
	}
	if cfg.Mutation.ClientToServer || cfg.Mutation.ServerToClient {
		rt.mutator = mutate.New(rt.mutOpts)
	}

	chain, err := intercept.Build(cfg.Handlers, logger)
	if err != nil {
		return nil, errors.Fatal("handlers", err)
	}
	rt.chain = chain

	if cfg.Capture.Path != "" || cfg.Capture.PCAPPath != "" {
		rt.capture = capture.NewStore(cfg.Capture.Path, cfg.Capture.Direction)
	}

	rt.shaper = shaping.New(cfg.Shaping, cfg.Mutation.Seed)

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return nil, errors.Fatal("journal", err)
		}
		rt.journal = j
	}
	return rt, nil
}

// resume moves the test range start past the highest index recorded in the
// journal. It reports true when a bounded range has nothing left to run.
func (rt *runtime) resume(ctx context.Context) (bool, error) {
	next, ok, err := rt.journal.ResumeIndex(ctx)
	if err != nil {
		return false, errors.Fatal("resume", err)
	}
	if !ok || next <= rt.testRange.Start {
		rt.logger.Info("[resume] starting at configured test %d", rt.testRange.Start)
		return false, nil
	}
	if !rt.testRange.Unbounded && next > rt.testRange.End {
		return true, nil
	}
	rt.testRange.Start = next
	rt.mutOpts.Range = rt.testRange
	if rt.mutator != nil {
		rt.mutator = mutate.New(rt.mutOpts)
	}
	rt.logger.Info("[resume] continuing at test %d", next)
	fmt.Fprintf(os.Stdout, "Resuming at test %d\n", next)
	return false, nil
}

func (rt *runtime) journalObserver(cfg *config.RelayConfig) relay.Observer {
	if rt.journal == nil {
		return nil
	}
	return rt.journal.Observer(journal.Run{
		Listen:     listenAddr(cfg),
		Upstream:   upstreamAddr(cfg),
		TestRange:  rt.testRange.String(),
		Ratio:      cfg.Mutation.Ratio,
		Seed:       cfg.Mutation.Seed,
		Directions: mutationDirections(cfg),
	})
}

func (rt *runtime) reproduce(cfg *config.RelayConfig) func(relay.SessionSummary) string {
	run := journal.Run{
		Listen:     listenAddr(cfg),
		Upstream:   upstreamAddr(cfg),
		Ratio:      cfg.Mutation.Ratio,
		Seed:       cfg.Mutation.Seed,
		Directions: mutationDirections(cfg),
	}
	return func(sum relay.SessionSummary) string {
		return journal.FromSummary(sum, run).ReproduceCommand()
	}
}

// finalize runs handler finalizers, flushes the capture store and writes
// the optional pcap export.
func (rt *runtime) finalize(cfg *config.RelayConfig, logger *logging.Logger) error {
	var errs []error
	if err := rt.chain.Finalize(); err != nil {
		logger.Error("[handlers] finalize: %v", err)
		errs = append(errs, err)
	}
	if rt.capture != nil {
		if err := rt.capture.Close(); err != nil {
			errs = append(errs, fmt.Errorf("flush capture: %w", err))
		}
		if cfg.Capture.PCAPPath != "" && rt.capture.Len() > 0 {
			opts := capture.PCAPOptions{ServerPort: uint16(cfg.Relay.RemotePort)}
			if err := rt.capture.ExportPCAP(cfg.Capture.PCAPPath, opts); err != nil {
				errs = append(errs, fmt.Errorf("export pcap: %w", err))
			} else {
				logger.Info("[capture] wrote pcap %s", cfg.Capture.PCAPPath)
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("finalize: %w", stderrors.Join(errs...))
}

func (rt *runtime) close() {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Error("[journal] close: %v", err)
		}
	}
}

func buildLogger(cfg *config.RelayConfig) (*logging.Logger, error) {
	logger, err := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.Options{
		File:       cfg.Logging.LogFile,
		Format:     cfg.Logging.Format,
		LogEveryN:  cfg.Logging.LogEveryN,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, errors.Fatal("create logger", err)
	}
	return logger, nil
}
