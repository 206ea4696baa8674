package relay

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

func (r *Relay) startMetricsListener(ctx context.Context) error {
	addr := net.JoinHostPort(r.cfg.Metrics.ListenIP, strconv.Itoa(r.cfg.Metrics.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("start metrics listener: %w", err)
	}
	r.mu.Lock()
	r.metricsListener = listener
	r.mu.Unlock()

	r.logger.Info("[metrics] listening on %s", listener.Addr())
	r.wg.Add(1)
	go r.metricsLoop(ctx, listener)
	return nil
}

func (r *Relay) metricsLoop(ctx context.Context, listener net.Listener) {
	defer r.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		writeMetrics(conn, r.opts.Mode, r.stats.snapshot())
		_ = conn.Close()
	}
}

func writeMetrics(conn net.Conn, mode Mode, s StatsSnapshot) {
	fmt.Fprintf(conn, "fuzzrelay_up{mode=%q} 1\n", mode.String())
	fmt.Fprintf(conn, "fuzzrelay_sessions_total %d\n", s.Sessions)
	fmt.Fprintf(conn, "fuzzrelay_sessions_active %d\n", s.Active)
	fmt.Fprintf(conn, "fuzzrelay_session_errors_total %d\n", s.SessionErrors)
	fmt.Fprintf(conn, "fuzzrelay_client_bytes_total %d\n", s.ClientBytes)
	fmt.Fprintf(conn, "fuzzrelay_upstream_bytes_total %d\n", s.UpstreamBytes)
	fmt.Fprintf(conn, "fuzzrelay_mutations_total %d\n", s.Mutations)
	fmt.Fprintf(conn, "fuzzrelay_mutation_errors_total %d\n", s.MutationErrors)
	fmt.Fprintf(conn, "fuzzrelay_drops_total %d\n", s.Drops)
	fmt.Fprintf(conn, "fuzzrelay_test_index %d\n", s.TestIndex)
}
