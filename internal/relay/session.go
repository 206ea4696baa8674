package relay

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/errors"
	"github.com/tturner/fuzzrelay/internal/intercept"
)

const (
	sideClient   = "client"
	sideUpstream = "upstream"
)

// session is the state of one accepted client.
type session struct {
	relay    *Relay
	summary  SessionSummary
	client   net.Conn
	upstream net.Conn
	buf      []byte

	warnedExhausted bool
}

// readResult is the outcome of one bounded read.
type readResult int

const (
	readData readResult = iota
	readSkip            // tolerated timeout, move on to the other side
	readEnd             // the session is over
)

func (r *Relay) handleSession(ctx context.Context, client *net.TCPConn) SessionSummary {
	s := &session{
		relay:  r,
		client: client,
		buf:    make([]byte, r.cfg.Relay.BufferSize),
		summary: SessionSummary{
			ID:        uuid.NewString(),
			Remote:    client.RemoteAddr().String(),
			Mode:      r.opts.Mode,
			Start:     time.Now(),
			FirstTest: -1,
			LastTest:  -1,
		},
	}
	if len(s.buf) == 0 {
		s.buf = make([]byte, 4096)
	}

	r.stats.sessions.Add(1)
	r.stats.active.Add(1)
	defer r.stats.active.Add(-1)

	r.logger.Info("[%s] accepted connection from %s (session %s)", r.opts.Mode, s.summary.Remote, s.summary.ID)
	r.emit(Event{Kind: EventSessionStart, SessionID: s.summary.ID, Remote: s.summary.Remote})

	s.run(ctx)

	s.summary.End = time.Now()
	if s.summary.Err != nil {
		r.stats.sessionErrors.Add(1)
	}
	r.logger.LogSession(s.summary.ID, s.summary.Remote, s.summary.ClientBytes, s.summary.UpstreamBytes, s.summary.Reason, s.summary.Err)
	summary := s.summary
	r.emit(Event{Kind: EventSessionEnd, SessionID: summary.ID, Remote: summary.Remote, Summary: &summary, Err: summary.Err})
	return summary
}

// run drives the session until a side closes or fails. Both connections
// are closed on every exit path.
func (s *session) run(ctx context.Context) {
	r := s.relay
	defer func() {
		s.client.Close()
		if s.upstream != nil {
			s.upstream.Close()
		}
	}()

	if r.opts.Mode == ModeRelay {
		dialer := net.Dialer{Timeout: msDuration(r.cfg.UpstreamTimeoutMs())}
		upstream, err := dialer.DialContext(ctx, "tcp", r.upstreamAddr())
		if err != nil {
			s.end("upstream dial failed", errors.NewSessionError(sideUpstream, "dial", err))
			r.logger.Error("%v", errors.WrapNetworkError(err, r.cfg.Relay.RemoteHost, r.cfg.Relay.RemotePort))
			return
		}
		s.upstream = upstream
		r.logger.Verbose("[connection] connected to upstream %s", upstream.RemoteAddr())
	}

	// Cancellation unblocks pending reads by closing both sockets.
	stop := context.AfterFunc(ctx, func() {
		s.client.Close()
		if s.upstream != nil {
			s.upstream.Close()
		}
	})
	defer stop()

	if r.opts.Mutator != nil {
		r.opts.Mutator.Reset()
		r.stats.testIndex.Store(r.opts.Mutator.Test())
	}
	if r.opts.Capture != nil {
		r.opts.Capture.Clear()
	}
	defer s.flushCapture()

	for {
		if ctx.Err() != nil {
			s.end("relay stopped", nil)
			return
		}

		res, data := s.read(s.client, sideClient, r.cfg.ClientTimeoutMs())
		if res == readEnd {
			return
		}
		if res == readData {
			s.summary.ClientBytes += int64(len(data))
			r.stats.clientBytes.Add(int64(len(data)))
			if r.opts.Mode == ModeStub {
				if !s.answerFromReplay() {
					return
				}
				continue
			}
			sent, ok := s.forward(data, config.DirectionClientToServer)
			if !ok {
				return
			}
			if !sent {
				// Nothing went upstream, so there is no answer to wait for.
				continue
			}
		}
		if s.upstream == nil {
			continue
		}

		res, data = s.read(s.upstream, sideUpstream, r.cfg.UpstreamTimeoutMs())
		if res == readEnd {
			return
		}
		if res == readData {
			s.summary.UpstreamBytes += int64(len(data))
			r.stats.upstreamBytes.Add(int64(len(data)))
			if _, ok := s.forward(data, config.DirectionServerToClient); !ok {
				return
			}
		}
	}
}

// read performs one bounded read from conn.
func (s *session) read(conn net.Conn, side string, timeoutMs int) (readResult, []byte) {
	r := s.relay
	r.logger.Verbose("[connection] receive data from %s", side)
	if timeoutMs > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(msDuration(timeoutMs)))
	}
	n, err := conn.Read(s.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, s.buf[:n])
		r.logger.Verbose("[connection] received %d bytes from %s", n, side)
		return readData, data
	}
	if err == nil {
		s.end(side+" closed", nil)
		return readEnd, nil
	}

	serr := errors.NewSessionError(side, "read", err)
	switch serr.Kind {
	case errors.KindClosed:
		r.logger.Verbose("[connection] no data received from %s, closing", side)
		s.end(side+" closed", nil)
		return readEnd, nil
	case errors.KindTimeout:
		if r.cfg.Relay.TolerateReadTimeouts {
			r.logger.Verbose("[connection] read from %s timed out, continuing", side)
			return readSkip, nil
		}
		s.end(side+" timeout", serr)
		return readEnd, nil
	default:
		r.logger.Error("[connection] error while receiving data from %s: %v", side, err)
		s.end(side+" "+string(serr.Kind), serr)
		return readEnd, nil
	}
}

// forward runs payload through the chain, the mutator and the capture store
// and writes the result to the far side. sent is false when the chain
// dropped the payload; ok is false when the session must end.
func (s *session) forward(payload []byte, dir config.Direction) (sent, ok bool) {
	r := s.relay
	dst, back := s.upstream, s.client
	dstSide, backSide := sideUpstream, sideClient
	if dir == config.DirectionServerToClient {
		dst, back = s.client, s.upstream
		dstSide, backSide = sideClient, sideUpstream
	}
	if r.cfg.Logging.IncludeHexDump {
		r.logger.LogHex(dir.Label(), payload)
	}

	v := r.opts.Chain.Handle(payload, dir)
	if v.Dropped() {
		s.summary.Drops++
		r.stats.drops.Add(1)
		r.emit(Event{Kind: EventPayload, SessionID: s.summary.ID, Direction: dir, Size: len(payload), Verdict: v.Action.String()})
		if v.Action == intercept.ActionDropWithReply && len(v.Reply) > 0 {
			r.logger.Verbose("[connection] payload dropped, replying %d bytes to %s", len(v.Reply), backSide)
			if err := s.write(back, v.Reply, backSide); err != nil {
				return false, false
			}
		} else {
			r.logger.Verbose("[connection] payload dropped")
		}
		return false, true
	}

	data := v.Payload
	test, mutated := s.mutate(&data, dir)
	if r.opts.Capture != nil {
		r.opts.Capture.Append(data, dir)
	}
	r.emit(Event{Kind: EventPayload, SessionID: s.summary.ID, Direction: dir, Size: len(data), Verdict: v.Action.String(), Test: test, Mutated: mutated})

	r.logger.Verbose("[connection] send data to %s", dstSide)
	if err := s.write(dst, data, dstSide); err != nil {
		return false, false
	}
	r.logger.Verbose("[connection] sent %d bytes to %s", len(data), dstSide)
	return true, true
}

// mutate rewrites *data in place when mutation is enabled for dir. It
// returns the test index used (-1 when none) and the replacement count.
func (s *session) mutate(data *[]byte, dir config.Direction) (int64, int) {
	r := s.relay
	enabled := (dir == config.DirectionClientToServer && r.mutateC2S) ||
		(dir == config.DirectionServerToClient && r.mutateS2C)
	if !enabled {
		return -1, 0
	}
	engine := r.opts.Mutator
	if engine.Exhausted() {
		s.summary.Exhausted = true
		if !s.warnedExhausted {
			r.logger.Info("[fuzzer] test range %s exhausted, forwarding unmodified", engine.Range())
			s.warnedExhausted = true
		}
		return -1, 0
	}

	out, report, err := engine.MutateWithReport(*data)
	if err != nil {
		r.stats.mutationErrors.Add(1)
		r.logger.Error("[fuzzer] %v, forwarding unmodified", err)
		return -1, 0
	}
	r.logger.Verbose("[fuzzer] test %d: %d bytes replaced", report.Test, report.Count)
	*data = out
	if s.summary.FirstTest < 0 {
		s.summary.FirstTest = report.Test
	}
	s.summary.LastTest = report.Test
	s.summary.Mutations++
	r.stats.mutations.Add(1)
	r.stats.testIndex.Store(engine.Test())
	if engine.Exhausted() {
		s.summary.Exhausted = true
	}
	return report.Test, report.Count
}

func (s *session) answerFromReplay() bool {
	r := s.relay
	r.logger.Verbose("[stub] ignoring client data")
	reply := r.opts.Replay.Next()
	r.emit(Event{Kind: EventPayload, SessionID: s.summary.ID, Direction: config.DirectionServerToClient, Size: len(reply), Verdict: "replay"})
	if err := s.write(s.client, reply, sideClient); err != nil {
		return false
	}
	r.logger.Verbose("[stub] sent %d bytes to client", len(reply))
	return true
}

func (s *session) write(conn net.Conn, data []byte, side string) error {
	r := s.relay
	if timeout := r.cfg.Relay.TimeoutMs; timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(msDuration(timeout)))
	}
	var err error
	if r.opts.Shaper != nil {
		err = r.opts.Shaper.Write(conn, data)
	} else {
		_, err = conn.Write(data)
	}
	if err != nil {
		serr := errors.NewSessionError(side, "write", err)
		r.logger.Error("[connection] error while sending data to %s: %v", side, err)
		s.end(side+" write "+string(serr.Kind), serr)
		return serr
	}
	return nil
}

func (s *session) flushCapture() {
	store := s.relay.opts.Capture
	if store == nil || store.Path() == "" {
		return
	}
	if err := store.Close(); err != nil {
		s.relay.logger.Error("[capture] %v", err)
		return
	}
	s.relay.logger.Verbose("[capture] wrote %d messages to %s", store.Len(), store.Path())
}

// end records why the session finished. The first reason wins.
func (s *session) end(reason string, err error) {
	if s.summary.Reason != "" {
		return
	}
	s.summary.Reason = reason
	if err != nil && !stderrors.Is(err, net.ErrClosed) {
		s.summary.Err = err
	}
}
