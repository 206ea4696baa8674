package intercept

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tturner/fuzzrelay/internal/capture"
	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/logging"
)

// AuthStripReply is sent to a client whose AUTH command was suppressed.
const AuthStripReply = "202 Command not implemented\r\n"

// AuthStrip refuses FTP AUTH commands so a session stays in cleartext.
type AuthStrip struct {
	logger *logging.Logger
}

func NewAuthStrip(logger *logging.Logger) *AuthStrip {
	return &AuthStrip{logger: logger}
}

func (h *AuthStrip) Name() string { return "auth_strip" }

func (h *AuthStrip) Supports(dir config.Direction) bool {
	return dir == config.DirectionClientToServer
}

func (h *AuthStrip) Handle(payload []byte, dir config.Direction) Verdict {
	if !utf8.Valid(payload) {
		h.logger.Verbose("[auth_strip] payload is not valid UTF-8, forwarding unchanged")
		return Forward(payload)
	}
	if strings.Contains(string(payload), "AUTH") {
		h.logger.Info("[auth_strip] suppressed AUTH command")
		return DropWithReply([]byte(AuthStripReply))
	}
	return Forward(payload)
}

func (h *AuthStrip) Finalize() error { return nil }

// HexDumper logs every payload as a hex dump at debug level.
type HexDumper struct {
	logger *logging.Logger
}

func NewHexDumper(logger *logging.Logger) *HexDumper {
	return &HexDumper{logger: logger}
}

func (h *HexDumper) Name() string { return "hexdump" }

func (h *HexDumper) Supports(config.Direction) bool { return true }

func (h *HexDumper) Handle(payload []byte, dir config.Direction) Verdict {
	if h.logger.GetLevel() >= logging.LogLevelDebug {
		h.logger.Debug("[hexdump] %s %d bytes\n%s", dir.Label(), len(payload), capture.HexDump(payload, 16))
	}
	return Forward(payload)
}

func (h *HexDumper) Finalize() error { return nil }

// Recorder keeps every payload of its direction across sessions and writes
// them to a capture file when finalized.
type Recorder struct {
	store  *capture.Store
	logger *logging.Logger
}

func NewRecorder(path string, dir config.Direction, logger *logging.Logger) *Recorder {
	return &Recorder{store: capture.NewStore(path, dir), logger: logger}
}

func (h *Recorder) Name() string { return "record" }

func (h *Recorder) Supports(dir config.Direction) bool {
	return h.store.Scope().Includes(dir)
}

func (h *Recorder) Handle(payload []byte, dir config.Direction) Verdict {
	h.store.Append(payload, dir)
	return Forward(payload)
}

// Store exposes the recorded messages.
func (h *Recorder) Store() *capture.Store {
	return h.store
}

func (h *Recorder) Finalize() error {
	h.logger.Info("[record] writing %d messages to %s", h.store.Len(), h.store.Path())
	return h.store.Close()
}

type ruleMatcher func(payload []byte) bool

type compiledRule struct {
	name   string
	scope  config.Direction
	action string
	data   []byte
	match  ruleMatcher
	hits   int
}

// RuleSet applies configured match rules; the first matching rule wins.
type RuleSet struct {
	mu     sync.Mutex
	rules  []*compiledRule
	logger *logging.Logger
}

// NewRuleSet compiles rules. Matchers and replies are validated here.
func NewRuleSet(rules []config.RuleConfig, logger *logging.Logger) (*RuleSet, error) {
	rs := &RuleSet{logger: logger}
	for i, r := range rules {
		cr := &compiledRule{name: r.Name, scope: r.Direction, action: r.Action}
		switch {
		case r.Contains != "":
			needle := []byte(r.Contains)
			cr.match = func(p []byte) bool { return bytes.Contains(p, needle) }
		case r.Hex != "":
			needle, err := hex.DecodeString(r.Hex)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): bad hex matcher: %w", i, r.Name, err)
			}
			cr.match = func(p []byte) bool { return bytes.Contains(p, needle) }
		case r.Regex != "":
			re, err := regexp.Compile(r.Regex)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): bad regex: %w", i, r.Name, err)
			}
			cr.match = re.Match
		default:
			return nil, fmt.Errorf("rule %d (%s): no matcher", i, r.Name)
		}
		switch {
		case r.ReplyHex != "":
			data, err := hex.DecodeString(r.ReplyHex)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): bad reply_hex: %w", i, r.Name, err)
			}
			cr.data = data
		case r.ReplyText != "":
			cr.data = []byte(r.ReplyText)
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

func (h *RuleSet) Name() string { return "rule" }

func (h *RuleSet) Supports(dir config.Direction) bool {
	for _, r := range h.rules {
		if r.scope.Includes(dir) {
			return true
		}
	}
	return false
}

func (h *RuleSet) Handle(payload []byte, dir config.Direction) Verdict {
	for _, r := range h.rules {
		if !r.scope.Includes(dir) || !r.match(payload) {
			continue
		}
		h.mu.Lock()
		r.hits++
		h.mu.Unlock()
		h.logger.Verbose("[rule] %s matched %s payload (%s)", r.name, dir.Label(), r.action)
		switch r.action {
		case "drop":
			return Drop()
		case "reply":
			return DropWithReply(append([]byte(nil), r.data...))
		case "replace":
			return Forward(append([]byte(nil), r.data...))
		}
	}
	return Forward(payload)
}

// Hits returns per-rule match counts in rule order.
func (h *RuleSet) Hits() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.rules))
	for _, r := range h.rules {
		out[r.name] = r.hits
	}
	return out
}

func (h *RuleSet) Finalize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.rules {
		h.logger.Info("[rule] %s: %d hits", r.name, r.hits)
	}
	return nil
}
