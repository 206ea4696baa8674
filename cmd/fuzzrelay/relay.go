package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/fuzzrelay/internal/app"
)

type relayFlags struct {
	config string
	mode   string

	listenHost string
	listenPort int
	remoteHost string
	remotePort int
	timeoutMs  int
	tolerate   bool

	test           string
	ratio          string
	seed           int64
	clientToServer bool
	serverToClient bool
	ignoredBytes   []string

	capture          string
	captureDirection string
	pcap             string

	preset   string
	handlers []string

	logLevel  string
	logFormat string
	logFile   string
	logEvery  int
	hexDump   bool

	journal     string
	resume      bool
	metrics     bool
	metricsPort int
	tui         bool
}

func newRelayCmd() *cobra.Command {
	flags := &relayFlags{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the intercepting relay",
		Long: `Accept TCP clients on the listen address and relay each one to the remote
service. Payloads pass through the handler chain and, when a direction is
enabled, through the mutation engine.

Each mutated payload consumes one test index from --test. With a bounded
range the relay stops once the range is exhausted. Re-running a single index
(--test N) reproduces exactly the same corruption.

The relay reads the client first. For protocols where the server speaks
first (FTP, SMTP, ...) pass --tolerate-timeouts so the banner is relayed; the
ftp-noauth preset turns it on by itself.

Configuration is read from --config when given; flags override the file.`,
		Example: `  # Plain relay, useful to check connectivity
  fuzzrelay relay --listen-port 2121 --remote-host 10.0.0.5 --remote-port 21

  # Fuzz what the client sends to the server, tests 0 through 999
  fuzzrelay relay --remote-port 21 --client-to-server --test 0:999 --ratio 0.01:0.05

  # Reproduce a single test case
  fuzzrelay relay --remote-port 21 --client-to-server --test 417 --seed 0

  # Strip AUTH from FTP sessions and record the exchange
  fuzzrelay relay --remote-port 21 --preset ftp-noauth --capture capture.txt

  # Continue a long run where the journal left off, with the live monitor
  fuzzrelay relay --config fuzz.yaml --journal runs.db --resume --tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return app.RunRelay(flags.options(cmd))
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.config, "config", "", "Config file path (YAML)")
	f.StringVar(&flags.mode, "mode", "", "Mode preset: passthrough|fuzz-server|fuzz-client|fuzz-both|record")

	f.StringVar(&flags.listenHost, "listen-host", "", "Listen host (default \"localhost\")")
	f.IntVar(&flags.listenPort, "listen-port", 0, "Listen port (default 10101)")
	f.StringVar(&flags.remoteHost, "remote-host", "", "Upstream host (default \"localhost\")")
	f.IntVar(&flags.remotePort, "remote-port", 0, "Upstream port (default 80)")
	f.IntVar(&flags.timeoutMs, "timeout-ms", 0, "Read/write timeout in milliseconds (default 3000)")
	f.BoolVar(&flags.tolerate, "tolerate-timeouts", false, "Keep the session open when a read times out")

	f.StringVar(&flags.test, "test", "", "Test range: N, N:M, N: or N:infinite (default \"0:infinite\")")
	f.StringVar(&flags.ratio, "ratio", "", "Mutation ratio: r or min:max within [0,1] (default \"0.01:0.05\")")
	f.Int64Var(&flags.seed, "seed", 0, "Salt mixed into every test index")
	f.BoolVar(&flags.clientToServer, "client-to-server", false, "Mutate client to server payloads")
	f.BoolVar(&flags.serverToClient, "server-to-client", false, "Mutate server to client payloads")
	f.StringSliceVar(&flags.ignoredBytes, "ignore-byte", nil, "Byte value never written or replaced, hex or decimal (repeatable)")

	f.StringVar(&flags.capture, "capture", "", "Hex capture file written at the end of each session")
	f.StringVar(&flags.captureDirection, "capture-direction", "", "Capture direction: both|client_to_server|server_to_client")
	f.StringVar(&flags.pcap, "pcap", "", "Export the last session's capture as pcap on exit")

	f.StringVar(&flags.preset, "preset", "", "Handler preset (see 'fuzzrelay handlers')")
	f.StringSliceVar(&flags.handlers, "handler", nil, "Handler name, in chain order (repeatable, overrides --preset)")

	f.StringVar(&flags.logLevel, "log-level", "", "Log level: silent|error|info|verbose|debug")
	f.StringVar(&flags.logFormat, "log-format", "", "Log format: text|json")
	f.StringVar(&flags.logFile, "log-file", "", "Log file path (rotated)")
	f.IntVar(&flags.logEvery, "log-every", 0, "Log every Nth payload event")
	f.BoolVar(&flags.hexDump, "hex-dump", false, "Include hex dumps of payloads in debug logs")

	f.StringVar(&flags.journal, "journal", "", "Session journal (SQLite) path")
	f.BoolVar(&flags.resume, "resume", false, "Start after the highest test index in the journal")
	f.BoolVar(&flags.metrics, "metrics", false, "Serve plaintext metrics")
	f.IntVar(&flags.metricsPort, "metrics-port", 0, "Metrics port (default 9109)")
	f.BoolVar(&flags.tui, "tui", false, "Show the live monitor")

	return cmd
}

func (f *relayFlags) options(cmd *cobra.Command) app.RelayOptions {
	return app.RelayOptions{
		ConfigPath:       f.config,
		Mode:             f.mode,
		ListenHost:       f.listenHost,
		ListenPort:       f.listenPort,
		RemoteHost:       f.remoteHost,
		RemotePort:       f.remotePort,
		TimeoutMs:        f.timeoutMs,
		Tolerate:         f.tolerate,
		Test:             f.test,
		Ratio:            f.ratio,
		Seed:             f.seed,
		SeedSet:          cmd.Flags().Changed("seed"),
		ClientToServer:   f.clientToServer,
		ServerToClient:   f.serverToClient,
		IgnoredBytes:     f.ignoredBytes,
		CapturePath:      f.capture,
		CaptureDirection: f.captureDirection,
		PCAPPath:         f.pcap,
		Preset:           f.preset,
		Handlers:         f.handlers,
		LogLevel:         f.logLevel,
		LogFormat:        f.logFormat,
		LogFile:          f.logFile,
		LogEvery:         f.logEvery,
		HexDump:          f.hexDump,
		JournalPath:      f.journal,
		Resume:           f.resume,
		Metrics:          f.metrics,
		MetricsPort:      f.metricsPort,
		TUI:              f.tui,
	}
}
