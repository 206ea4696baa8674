package app

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tturner/fuzzrelay/internal/capture"
	"github.com/tturner/fuzzrelay/internal/config"
)

// CaptureDumpOptions controls `capture dump`.
type CaptureDumpOptions struct {
	Path      string
	PCAPPort  int
	Direction string
	Width     int
	Limit     int
}

// DumpCapture prints every payload of a hex capture or pcap as a hex dump.
func DumpCapture(w io.Writer, opts CaptureDumpOptions) error {
	payloads, err := readPayloads(opts.Path, opts.PCAPPort, config.Direction(opts.Direction))
	if err != nil {
		return err
	}
	total := 0
	for _, p := range payloads {
		total += len(p)
	}
	fmt.Fprintf(w, "%s: %d messages, %d bytes\n", opts.Path, len(payloads), total)
	for i, p := range payloads {
		if opts.Limit > 0 && i >= opts.Limit {
			fmt.Fprintf(w, "... %d more\n", len(payloads)-i)
			break
		}
		fmt.Fprintf(w, "\n#%d (%d bytes)\n%s", i, len(p), capture.HexDump(p, opts.Width))
	}
	return nil
}

// CaptureExportOptions controls `capture export-pcap`.
type CaptureExportOptions struct {
	Input      string
	Output     string
	Alternate  bool   // treat odd messages as server->client
	Direction  string // direction of every message when Alternate is false
	ClientPort int
	ServerPort int
}

// ExportCapture converts a hex capture into a pcap file.
func ExportCapture(w io.Writer, opts CaptureExportOptions) error {
	payloads, err := capture.ReadHexFile(opts.Input)
	if err != nil {
		return err
	}
	dir := config.Direction(opts.Direction)
	if dir == "" || dir == config.DirectionBoth {
		dir = config.DirectionClientToServer
	}
	messages := make([]capture.Message, 0, len(payloads))
	for i, p := range payloads {
		d := dir
		if opts.Alternate && i%2 == 1 {
			d = config.DirectionServerToClient
		}
		messages = append(messages, capture.Message{Seq: i, Direction: d, Payload: p})
	}
	if err := capture.WritePCAP(opts.Output, messages, capture.PCAPOptions{
		ClientPort: uint16(opts.ClientPort),
		ServerPort: uint16(opts.ServerPort),
	}); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %d messages from %s to %s\n", len(messages), opts.Input, opts.Output)
	return nil
}

func readPayloads(path string, port int, dir config.Direction) ([][]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng":
		if dir == "" {
			dir = config.DirectionBoth
		}
		return capture.ReadPCAPPayloads(path, port, dir)
	default:
		return capture.ReadHexFile(path)
	}
}
