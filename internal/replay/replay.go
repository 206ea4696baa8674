package replay

// Cyclic replay of captured payloads for stub mode

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tturner/fuzzrelay/internal/capture"
	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/errors"
)

// Options controls how a replay source is read.
type Options struct {
	// PCAPPort is the server port used to select payloads from pcap input.
	PCAPPort int
	// Direction selects which side of a pcap conversation to replay.
	Direction config.Direction
}

// Engine serves loaded messages in order and wraps to the first one after the last.
type Engine struct {
	mu       sync.Mutex
	source   string
	messages [][]byte
	cursor   int
}

// Load reads a capture file. Hex capture files hold one payload per line;
// .pcap and .pcapng files are read through the capture package. A source
// that yields no messages is fatal.
func Load(path string, opts Options) (*Engine, error) {
	var (
		messages [][]byte
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng":
		dir := opts.Direction
		if dir == "" {
			dir = config.DirectionServerToClient
		}
		messages, err = capture.ReadPCAPPayloads(path, opts.PCAPPort, dir)
	default:
		messages, err = capture.ReadHexFile(path)
	}
	if err != nil {
		return nil, errors.Fatal("load replay data", err)
	}
	if len(messages) == 0 {
		return nil, errors.Fatalf("no data loaded from %s", path)
	}
	return &Engine{source: path, messages: messages}, nil
}

// New builds an engine from in-memory messages.
func New(messages [][]byte) (*Engine, error) {
	if len(messages) == 0 {
		return nil, errors.Fatalf("replay requires at least one message")
	}
	return &Engine{source: "memory", messages: messages}, nil
}

// Next returns the message at the cursor and advances, wrapping to zero.
func (e *Engine) Next() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := e.messages[e.cursor]
	e.cursor = (e.cursor + 1) % len(e.messages)
	out := make([]byte, len(msg))
	copy(out, msg)
	return out
}

// Reset rewinds the cursor to the first message.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.cursor = 0
	e.mu.Unlock()
}

// Len returns the number of loaded messages.
func (e *Engine) Len() int {
	return len(e.messages)
}

// Cursor returns the index Next will serve.
func (e *Engine) Cursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Source names where the messages were loaded from.
func (e *Engine) Source() string {
	return e.source
}

func (e *Engine) String() string {
	return fmt.Sprintf("replay(%s, %d messages)", e.source, len(e.messages))
}
