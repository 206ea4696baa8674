package relay

// Intercepting TCP relay: one session at a time between a client and an upstream server.

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tturner/fuzzrelay/internal/capture"
	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/errors"
	"github.com/tturner/fuzzrelay/internal/intercept"
	"github.com/tturner/fuzzrelay/internal/logging"
	"github.com/tturner/fuzzrelay/internal/mutate"
	"github.com/tturner/fuzzrelay/internal/replay"
	"github.com/tturner/fuzzrelay/internal/shaping"
)

// Options wires the relay's collaborators. Config and Logger are required;
// every other collaborator is optional except Replay in stub mode.
type Options struct {
	Mode    Mode
	Config  *config.RelayConfig
	Logger  *logging.Logger
	Mutator *mutate.Engine
	Chain   *intercept.Chain
	Capture *capture.Store
	Replay  *replay.Engine
	Shaper  *shaping.Shaper
	// Observer receives session and payload events.
	Observer Observer
	// StopWhenExhausted ends Serve after a session that ran the test range out.
	StopWhenExhausted bool
}

// Relay accepts one client at a time and pumps bytes to and from upstream.
type Relay struct {
	opts   Options
	cfg    *config.RelayConfig
	logger *logging.Logger
	stats  Stats

	mutateC2S bool
	mutateS2C bool

	mu              sync.Mutex
	listener        *net.TCPListener
	metricsListener net.Listener
	wg              sync.WaitGroup
}

// New validates options and builds a relay.
func New(opts Options) (*Relay, error) {
	if opts.Config == nil {
		return nil, errors.Fatalf("relay requires a configuration")
	}
	if opts.Logger == nil {
		return nil, errors.Fatalf("relay requires a logger")
	}
	if opts.Mode == ModeStub && opts.Replay == nil {
		return nil, errors.Fatalf("stub mode requires replay data")
	}
	if opts.Chain == nil {
		opts.Chain = intercept.NewChain()
	}
	r := &Relay{
		opts:      opts,
		cfg:       opts.Config,
		logger:    opts.Logger,
		mutateC2S: opts.Mutator != nil && opts.Config.Mutation.ClientToServer,
		mutateS2C: opts.Mutator != nil && opts.Config.Mutation.ServerToClient,
	}
	if opts.Mutator != nil {
		r.stats.testIndex.Store(opts.Mutator.Test())
	}
	return r, nil
}

// Listen binds the relay listener and, when enabled, the metrics listener.
func (r *Relay) Listen(ctx context.Context) error {
	if !strings.EqualFold(r.cfg.Relay.Transport, "tcp") {
		return errors.Fatalf("unsupported transport: %s", r.cfg.Relay.Transport)
	}
	addr := net.JoinHostPort(r.cfg.Relay.ListenHost, strconv.Itoa(r.cfg.Relay.ListenPort))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return errors.Fatal("resolve listen address", err)
	}
	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return errors.Fatal("listen",
			errors.WrapListenError(err, r.cfg.Relay.ListenHost, r.cfg.Relay.ListenPort))
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()

	if r.cfg.Metrics.Enable {
		if err := r.startMetricsListener(ctx); err != nil {
			listener.Close()
			return errors.Fatal("metrics listener", err)
		}
	}

	r.logger.Info("[%s] listening on %s", r.opts.Mode, listener.Addr())
	r.emit(Event{Kind: EventListening, Remote: listener.Addr().String()})
	return nil
}

// Addr returns the bound relay address after Listen.
func (r *Relay) Addr() *net.TCPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	if addr, ok := r.listener.Addr().(*net.TCPAddr); ok {
		return addr
	}
	return nil
}

// MetricsAddr returns the bound metrics address, or nil when disabled.
func (r *Relay) MetricsAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metricsListener == nil {
		return nil
	}
	return r.metricsListener.Addr()
}

// Stats returns a snapshot of relay counters.
func (r *Relay) Stats() StatsSnapshot {
	return r.stats.snapshot()
}

// Run binds, serves until ctx is cancelled or the test range is exhausted, and closes.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Listen(ctx); err != nil {
		return err
	}
	defer r.Close()
	return r.Serve(ctx)
}

// Serve runs the accept loop. Sessions are handled inline so the next
// client is not accepted until the current session has closed.
func (r *Relay) Serve(ctx context.Context) error {
	r.mu.Lock()
	listener := r.listener
	r.mu.Unlock()
	if listener == nil {
		return errors.Fatalf("relay is not listening")
	}
	defer r.emit(Event{Kind: EventStopped})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		r.logger.Verbose("[%s] waiting for connection", r.opts.Mode)
		_ = listener.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := listener.AcceptTCP()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return errors.Fatal("accept", err)
		}

		summary := r.handleSession(ctx, conn)
		if summary.Exhausted && r.opts.StopWhenExhausted {
			r.logger.Info("[%s] test range %s exhausted, stopping", r.opts.Mode, r.opts.Mutator.Range())
			return nil
		}
	}
}

// Close shuts both listeners and waits for background loops.
func (r *Relay) Close() error {
	r.mu.Lock()
	var err error
	if r.listener != nil {
		err = r.listener.Close()
		r.listener = nil
	}
	if r.metricsListener != nil {
		r.metricsListener.Close()
		r.metricsListener = nil
	}
	r.mu.Unlock()
	r.wg.Wait()
	return err
}

func (r *Relay) emit(ev Event) {
	if r.opts.Observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.opts.Observer(ev)
}

func (r *Relay) upstreamAddr() string {
	return net.JoinHostPort(r.cfg.Relay.RemoteHost, strconv.Itoa(r.cfg.Relay.RemotePort))
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (r *Relay) String() string {
	return fmt.Sprintf("%s %s:%d", r.opts.Mode, r.cfg.Relay.ListenHost, r.cfg.Relay.ListenPort)
}
