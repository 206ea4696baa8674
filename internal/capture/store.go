package capture

// Hex-line capture store for relayed payloads

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tturner/fuzzrelay/internal/config"
)

// Message is one captured payload. Direction is kept in memory only; the
// hex file stores payloads alone.
type Message struct {
	Seq       int
	Direction config.Direction
	Payload   []byte
}

// Store accumulates payloads and persists them as one lowercase hex line each.
type Store struct {
	mu       sync.Mutex
	path     string
	scope    config.Direction
	messages []Message
	next     int
}

// NewStore creates a store that writes to path. Payloads flowing outside
// scope are ignored. An empty path keeps the store in memory only.
func NewStore(path string, scope config.Direction) *Store {
	if scope == "" {
		scope = config.DirectionBoth
	}
	return &Store{path: path, scope: scope}
}

// Path returns the output file path.
func (s *Store) Path() string {
	return s.path
}

// Scope returns the direction filter.
func (s *Store) Scope() config.Direction {
	return s.scope
}

// Append records a copy of payload. It reports false when dir is out of scope.
func (s *Store) Append(payload []byte, dir config.Direction) bool {
	if !s.scope.Includes(dir) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(payload))
	copy(data, payload)
	s.messages = append(s.messages, Message{Seq: s.next, Direction: dir, Payload: data})
	s.next++
	return true
}

// Clear drops every accumulated message.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.next = 0
	s.mu.Unlock()
}

// Len returns the number of accumulated messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Messages returns a snapshot of the accumulated messages in arrival order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Payloads returns the accumulated payloads in arrival order.
func (s *Store) Payloads() [][]byte {
	msgs := s.Messages()
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.Payload
	}
	return out
}

// Close serializes every accumulated message to the store file, overwriting
// it. It may be called repeatedly; each call rewrites the full list.
func (s *Store) Close() error {
	if s.path == "" {
		return nil
	}
	return WriteHexFile(s.path, s.Payloads())
}

// WriteHexFile writes one lowercase hex payload per line, newline terminated.
func WriteHexFile(path string, payloads [][]byte) error {
	var buf bytes.Buffer
	for _, p := range payloads {
		buf.WriteString(hex.EncodeToString(p))
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write capture %s: %w", path, err)
	}
	return nil
}

// ReadHexFile reads a capture file. Blank lines are skipped; any other line
// that is not valid hex is an error.
func ReadHexFile(path string) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	defer file.Close()

	var payloads [][]byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		payloads = append(payloads, data)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read capture %s: %w", path, err)
	}
	return payloads, nil
}
