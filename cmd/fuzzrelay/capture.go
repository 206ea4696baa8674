package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/fuzzrelay/internal/app"
)

func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Inspect and convert capture files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newCaptureDumpCmd())
	cmd.AddCommand(newCaptureExportCmd())
	return cmd
}

func newCaptureDumpCmd() *cobra.Command {
	var opts app.CaptureDumpOptions
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Hex dump every payload of a capture",
		Example: `  fuzzrelay capture dump --input capture.txt
  fuzzrelay capture dump --input ftp.pcap --pcap-port 21 --direction client_to_server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if opts.Path == "" {
				return missingFlagError(cmd, "--input")
			}
			return app.DumpCapture(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Path, "input", "", "Hex capture or pcap file")
	cmd.Flags().IntVar(&opts.PCAPPort, "pcap-port", 0, "Server port to select in a pcap (0 = any)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "Direction to select in a pcap (default both)")
	cmd.Flags().IntVar(&opts.Width, "width", 16, "Bytes per dump line")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum messages to print (0 = all)")
	return cmd
}

func newCaptureExportCmd() *cobra.Command {
	var opts app.CaptureExportOptions
	cmd := &cobra.Command{
		Use:   "export-pcap",
		Short: "Convert a hex capture to pcap",
		Example: `  # Request/response capture recorded in both directions
  fuzzrelay capture export-pcap --input capture.txt --output capture.pcap --alternate --server-port 21`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if opts.Input == "" {
				return missingFlagError(cmd, "--input")
			}
			if opts.Output == "" {
				return missingFlagError(cmd, "--output")
			}
			return app.ExportCapture(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Input, "input", "", "Hex capture file")
	cmd.Flags().StringVar(&opts.Output, "output", "", "pcap file to write")
	cmd.Flags().BoolVar(&opts.Alternate, "alternate", false, "Treat odd messages as server to client")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "Direction of every message when not alternating (default client_to_server)")
	cmd.Flags().IntVar(&opts.ClientPort, "client-port", 0, "Synthetic client port")
	cmd.Flags().IntVar(&opts.ServerPort, "server-port", 0, "Synthetic server port")
	return cmd
}
