package config

// Configuration loading and validation for fuzzrelay

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Direction scopes mutation, capture and handlers to one side of the relay.
type Direction string

const (
	DirectionBoth           Direction = "both"
	DirectionClientToServer Direction = "client_to_server"
	DirectionServerToClient Direction = "server_to_client"
)

// Includes reports whether a scope of d admits traffic flowing in dir.
func (d Direction) Includes(dir Direction) bool {
	return d == "" || d == DirectionBoth || d == dir
}

// Label is the short arrow form used in logs.
func (d Direction) Label() string {
	switch d {
	case DirectionClientToServer:
		return "client->server"
	case DirectionServerToClient:
		return "server->client"
	default:
		return "both"
	}
}

// RelaySection holds listener, upstream and socket settings.
type RelaySection struct {
	ListenHost           string `yaml:"listen_host"`
	ListenPort           int    `yaml:"listen_port"`
	RemoteHost           string `yaml:"remote_host"`
	RemotePort           int    `yaml:"remote_port"`
	Transport            string `yaml:"transport"` // only "tcp" is supported
	TimeoutMs            int    `yaml:"timeout_ms"`
	ClientTimeoutMs      int    `yaml:"client_timeout_ms,omitempty"`   // 0 = timeout_ms
	UpstreamTimeoutMs    int    `yaml:"upstream_timeout_ms,omitempty"` // 0 = timeout_ms
	BufferSize           int    `yaml:"buffer_size"`
	TolerateReadTimeouts bool   `yaml:"tolerate_read_timeouts"`
}

// MutationSection configures the byte mutator.
type MutationSection struct {
	Test           string   `yaml:"test"`  // start | start:end | start: | start:infinite
	Ratio          string   `yaml:"ratio"` // ratio | min:max
	Seed           int64    `yaml:"seed,omitempty"`
	ClientToServer bool     `yaml:"client_to_server"`
	ServerToClient bool     `yaml:"server_to_client"`
	IgnoredBytes   []string `yaml:"ignored_bytes,omitempty"` // hex values, e.g. "0d"
}

// CaptureSection configures the hex capture file.
type CaptureSection struct {
	Path      string    `yaml:"path,omitempty"`
	Direction Direction `yaml:"direction,omitempty"`
	PCAPPath  string    `yaml:"pcap_path,omitempty"`
}

// ReplaySection configures stub-mode replay input.
type ReplaySection struct {
	PCAPPort int `yaml:"pcap_port,omitempty"` // server port used to pick payloads out of a pcap
}

// RuleConfig is one entry of the rule handler.
type RuleConfig struct {
	Name      string    `yaml:"name"`
	Direction Direction `yaml:"direction,omitempty"`
	Contains  string    `yaml:"contains,omitempty"`
	Hex       string    `yaml:"hex,omitempty"`
	Regex     string    `yaml:"regex,omitempty"`
	Action    string    `yaml:"action"` // drop | reply | replace
	ReplyText string    `yaml:"reply_text,omitempty"`
	ReplyHex  string    `yaml:"reply_hex,omitempty"`
}

// HandlersSection selects the interception chain.
type HandlersSection struct {
	Preset          string       `yaml:"preset,omitempty"`
	Chain           []string     `yaml:"chain,omitempty"` // explicit handler list, overrides preset
	Rules           []RuleConfig `yaml:"rules,omitempty"`
	RecordPath      string       `yaml:"record_path,omitempty"`      // output of the record handler
	RecordDirection Direction    `yaml:"record_direction,omitempty"` // payloads the record handler keeps
}

// ShapingSection controls how relayed bytes are written.
type ShapingSection struct {
	ChunkWrites          bool  `yaml:"chunk_writes,omitempty"`
	ChunkMin             int   `yaml:"chunk_min,omitempty"`
	ChunkMax             int   `yaml:"chunk_max,omitempty"`
	InterChunkDelayMs    int   `yaml:"inter_chunk_delay_ms,omitempty"`
	LatencyMs            int   `yaml:"latency_ms,omitempty"`
	JitterMs             int   `yaml:"jitter_ms,omitempty"`
	BandwidthBytesPerSec int64 `yaml:"bandwidth_bytes_per_sec,omitempty"`
}

// LoggingSection controls log formatting and verbosity.
type LoggingSection struct {
	Format         string `yaml:"format,omitempty"` // "text" or "json"
	Level          string `yaml:"level,omitempty"`  // "silent","error","info","verbose","debug"
	LogEveryN      int    `yaml:"log_every_n,omitempty"`
	IncludeHexDump bool   `yaml:"include_hex_dump,omitempty"`
	LogFile        string `yaml:"log_file,omitempty"`
	MaxSizeMB      int    `yaml:"max_size_mb,omitempty"`
	MaxBackups     int    `yaml:"max_backups,omitempty"`
}

// JournalSection points at the SQLite session journal.
type JournalSection struct {
	Path string `yaml:"path,omitempty"`
}

// MetricsSection controls the plaintext metrics listener.
type MetricsSection struct {
	Enable   bool   `yaml:"enable,omitempty"`
	ListenIP string `yaml:"listen_ip,omitempty"`
	Port     int    `yaml:"port,omitempty"`
}

// RelayConfig is the complete relay configuration. It is treated as
// immutable once loaded and validated.
type RelayConfig struct {
	Relay    RelaySection    `yaml:"relay"`
	Mutation MutationSection `yaml:"mutation"`
	Capture  CaptureSection  `yaml:"capture,omitempty"`
	Replay   ReplaySection   `yaml:"replay,omitempty"`
	Handlers HandlersSection `yaml:"handlers,omitempty"`
	Shaping  ShapingSection  `yaml:"shaping,omitempty"`
	Logging  LoggingSection  `yaml:"logging,omitempty"`
	Journal  JournalSection  `yaml:"journal,omitempty"`
	Metrics  MetricsSection  `yaml:"metrics,omitempty"`
}

// CreateDefaultRelayConfig returns a configuration with every default applied.
func CreateDefaultRelayConfig() *RelayConfig {
	cfg := &RelayConfig{
		Mutation: MutationSection{
			IgnoredBytes: []string{},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// WriteDefaultRelayConfig writes a default configuration to path.
func WriteDefaultRelayConfig(path string) error {
	return WriteRelayConfig(path, CreateDefaultRelayConfig())
}

// WriteRelayConfig marshals cfg to YAML at path.
func WriteRelayConfig(path string, cfg *RelayConfig) error {
	data, err := MarshalRelayConfig(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// MarshalRelayConfig renders cfg as YAML.
func MarshalRelayConfig(cfg *RelayConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// LoadRelayConfig loads a relay configuration from a YAML file
func LoadRelayConfig(path string) (*RelayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s\n\n"+
				"To fix this:\n"+
				"  1. Generate one: fuzzrelay print-default-config > fuzzrelay.yaml\n"+
				"  2. Or run the wizard: fuzzrelay init\n"+
				"  3. Or run without --config and pass flags only", path)
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return ParseRelayConfig(data)
}

// ParseRelayConfig unmarshals YAML, applies defaults and validates.
func ParseRelayConfig(data []byte) (*RelayConfig, error) {
	var cfg RelayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := ValidateRelayConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *RelayConfig) {
	applyRelayDefaults(cfg)
	applyMutationDefaults(cfg)
	applyCaptureDefaults(cfg)
	applyHandlerDefaults(cfg)
	applyLoggingDefaults(cfg)
	applyMetricsDefaults(cfg)
}

func applyRelayDefaults(cfg *RelayConfig) {
	if cfg.Relay.ListenHost == "" {
		cfg.Relay.ListenHost = "localhost"
	}
	if cfg.Relay.ListenPort == 0 {
		cfg.Relay.ListenPort = 10101
	}
	if cfg.Relay.RemoteHost == "" {
		cfg.Relay.RemoteHost = "localhost"
	}
	if cfg.Relay.RemotePort == 0 {
		cfg.Relay.RemotePort = 80
	}
	if cfg.Relay.Transport == "" {
		cfg.Relay.Transport = "tcp"
	}
	if cfg.Relay.TimeoutMs == 0 {
		cfg.Relay.TimeoutMs = 3000
	}
	if cfg.Relay.BufferSize == 0 {
		cfg.Relay.BufferSize = 4096
	}
}

func applyMutationDefaults(cfg *RelayConfig) {
	if cfg.Mutation.Test == "" {
		cfg.Mutation.Test = "0:infinite"
	}
	if cfg.Mutation.Ratio == "" {
		cfg.Mutation.Ratio = "0.01:0.05"
	}
}

func applyCaptureDefaults(cfg *RelayConfig) {
	if cfg.Capture.Direction == "" {
		cfg.Capture.Direction = DirectionBoth
	}
}

func applyHandlerDefaults(cfg *RelayConfig) {
	if cfg.Handlers.Preset == "" && len(cfg.Handlers.Chain) == 0 {
		cfg.Handlers.Preset = "none"
	}
}

func applyLoggingDefaults(cfg *RelayConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.LogEveryN == 0 {
		cfg.Logging.LogEveryN = 1
	}
}

func applyMetricsDefaults(cfg *RelayConfig) {
	if cfg.Metrics.ListenIP == "" {
		cfg.Metrics.ListenIP = "127.0.0.1"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9109
	}
}

// ClientTimeoutMs returns the effective client-side socket timeout.
func (c *RelayConfig) ClientTimeoutMs() int {
	if c.Relay.ClientTimeoutMs > 0 {
		return c.Relay.ClientTimeoutMs
	}
	return c.Relay.TimeoutMs
}

// UpstreamTimeoutMs returns the effective upstream socket timeout.
func (c *RelayConfig) UpstreamTimeoutMs() int {
	if c.Relay.UpstreamTimeoutMs > 0 {
		return c.Relay.UpstreamTimeoutMs
	}
	return c.Relay.TimeoutMs
}

// ValidateRelayConfig validates a relay configuration
func ValidateRelayConfig(cfg *RelayConfig) error {
	if !strings.EqualFold(cfg.Relay.Transport, "tcp") {
		return fmt.Errorf("relay.transport %q is not supported (only tcp)", cfg.Relay.Transport)
	}
	if err := validatePort("relay.listen_port", cfg.Relay.ListenPort, true); err != nil {
		return err
	}
	if err := validatePort("relay.remote_port", cfg.Relay.RemotePort, false); err != nil {
		return err
	}
	if cfg.Relay.TimeoutMs < 0 || cfg.Relay.ClientTimeoutMs < 0 || cfg.Relay.UpstreamTimeoutMs < 0 {
		return fmt.Errorf("relay timeouts must be >= 0")
	}
	if cfg.Relay.BufferSize < 0 {
		return fmt.Errorf("relay.buffer_size must be > 0")
	}

	if _, err := ParseTestRange(cfg.Mutation.Test); err != nil {
		return fmt.Errorf("mutation.test: %w", err)
	}
	if _, err := ParseRatio(cfg.Mutation.Ratio); err != nil {
		return fmt.Errorf("mutation.ratio: %w", err)
	}
	if _, err := ParseIgnoredBytes(cfg.Mutation.IgnoredBytes); err != nil {
		return fmt.Errorf("mutation.ignored_bytes: %w", err)
	}

	if err := validateDirection("capture.direction", cfg.Capture.Direction); err != nil {
		return err
	}
	if err := validateDirection("handlers.record_direction", cfg.Handlers.RecordDirection); err != nil {
		return err
	}
	for i, rule := range cfg.Handlers.Rules {
		if err := validateRule(rule, i); err != nil {
			return err
		}
	}

	if cfg.Shaping.ChunkMin < 0 || cfg.Shaping.ChunkMax < 0 || cfg.Shaping.InterChunkDelayMs < 0 {
		return fmt.Errorf("shaping chunk values must be >= 0")
	}
	if cfg.Shaping.ChunkMax > 0 && cfg.Shaping.ChunkMin > cfg.Shaping.ChunkMax {
		return fmt.Errorf("shaping.chunk_min must be <= shaping.chunk_max")
	}
	if cfg.Shaping.LatencyMs < 0 || cfg.Shaping.JitterMs < 0 || cfg.Shaping.BandwidthBytesPerSec < 0 {
		return fmt.Errorf("shaping latency, jitter and bandwidth must be >= 0")
	}

	if cfg.Logging.Level != "" {
		switch strings.ToLower(cfg.Logging.Level) {
		case "silent", "error", "info", "verbose", "debug":
		default:
			return fmt.Errorf("logging.level must be silent, error, info, verbose, or debug")
		}
	}
	if cfg.Logging.Format != "" {
		switch strings.ToLower(cfg.Logging.Format) {
		case "text", "json":
		default:
			return fmt.Errorf("logging.format must be text or json")
		}
	}
	if cfg.Logging.LogEveryN < 0 || cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging numeric values must be >= 0")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535")
	}
	return nil
}

func validatePort(name string, port int, allowZero bool) error {
	if port < 0 || port > 65535 || (port == 0 && !allowZero) {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func validateDirection(name string, d Direction) error {
	switch d {
	case "", DirectionBoth, DirectionClientToServer, DirectionServerToClient:
		return nil
	default:
		return fmt.Errorf("%s must be both, client_to_server, or server_to_client, got %q", name, d)
	}
}

func validateRule(rule RuleConfig, index int) error {
	if rule.Name == "" {
		return fmt.Errorf("handlers.rules[%d]: name is required", index)
	}
	if err := validateDirection(fmt.Sprintf("handlers.rules[%d].direction", index), rule.Direction); err != nil {
		return err
	}
	matchers := 0
	for _, m := range []string{rule.Contains, rule.Hex, rule.Regex} {
		if m != "" {
			matchers++
		}
	}
	if matchers != 1 {
		return fmt.Errorf("handlers.rules[%d] (%s): exactly one of contains, hex, regex is required", index, rule.Name)
	}
	switch rule.Action {
	case "drop":
	case "reply", "replace":
		if rule.ReplyText == "" && rule.ReplyHex == "" {
			return fmt.Errorf("handlers.rules[%d] (%s): action %s needs reply_text or reply_hex", index, rule.Name, rule.Action)
		}
	default:
		return fmt.Errorf("handlers.rules[%d] (%s): action must be drop, reply, or replace", index, rule.Name)
	}
	return nil
}
