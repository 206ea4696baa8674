package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/fuzzrelay/internal/app"
)

type stubFlags struct {
	config     string
	listenHost string
	listenPort int
	timeoutMs  int
	tolerate   bool
	data       string
	pcapPort   int
	direction  string
	logLevel   string
	logFormat  string
	logFile    string
	journal    string
	metrics    bool
	tui        bool
}

func newStubCmd() *cobra.Command {
	flags := &stubFlags{}

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Answer clients from a recorded capture",
		Long: `Run a stub server that never connects upstream. Every read from a client is
answered with the next payload of the replay file, wrapping around at the end.

The replay file is a hex capture (one payload per line) or a pcap, in which
case the server side of --pcap-port is replayed.`,
		Example: `  # Replay server answers recorded by 'fuzzrelay relay --capture'
  fuzzrelay stub --listen-port 2121 --data server.txt

  # Replay FTP server replies from a packet capture
  fuzzrelay stub --data ftp.pcap --pcap-port 21`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.data == "" && flags.config == "" {
				return missingFlagError(cmd, "--data")
			}
			return app.RunStub(app.StubOptions{
				ConfigPath:  flags.config,
				ListenHost:  flags.listenHost,
				ListenPort:  flags.listenPort,
				TimeoutMs:   flags.timeoutMs,
				Tolerate:    flags.tolerate,
				DataPath:    flags.data,
				PCAPPort:    flags.pcapPort,
				Direction:   flags.direction,
				LogLevel:    flags.logLevel,
				LogFormat:   flags.logFormat,
				LogFile:     flags.logFile,
				JournalPath: flags.journal,
				Metrics:     flags.metrics,
				TUI:         flags.tui,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.config, "config", "", "Config file path (YAML); capture.path is the replay file")
	f.StringVar(&flags.listenHost, "listen-host", "", "Listen host (default \"localhost\")")
	f.IntVar(&flags.listenPort, "listen-port", 0, "Listen port (default 10101)")
	f.IntVar(&flags.timeoutMs, "timeout-ms", 0, "Read/write timeout in milliseconds (default 3000)")
	f.BoolVar(&flags.tolerate, "tolerate-timeouts", false, "Keep the session open when a read times out")
	f.StringVar(&flags.data, "data", "", "Replay file: hex capture or .pcap")
	f.IntVar(&flags.pcapPort, "pcap-port", 0, "Server port to replay from a pcap")
	f.StringVar(&flags.direction, "direction", "", "Direction replayed from a pcap (default server_to_client)")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: silent|error|info|verbose|debug")
	f.StringVar(&flags.logFormat, "log-format", "", "Log format: text|json")
	f.StringVar(&flags.logFile, "log-file", "", "Log file path (rotated)")
	f.StringVar(&flags.journal, "journal", "", "Session journal (SQLite) path")
	f.BoolVar(&flags.metrics, "metrics", false, "Serve plaintext metrics")
	f.BoolVar(&flags.tui, "tui", false, "Show the live monitor")

	return cmd
}
