package intercept

import (
	"fmt"
	"strings"

	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/logging"
)

// Preset is a named handler chain.
type Preset struct {
	Name        string
	Description string
	Handlers    []string
	// ServerFirst marks protocols where the server sends a banner before the
	// client writes anything. Such presets need tolerated read timeouts.
	ServerFirst bool
}

// AvailablePresets returns the supported chain presets.
func AvailablePresets() []Preset {
	return []Preset{
		{
			Name:        "none",
			Description: "No handlers; payloads pass straight to the mutator",
		},
		{
			Name:        "ftp-noauth",
			Description: "Refuse FTP AUTH so the session stays in cleartext (enables tolerate_read_timeouts)",
			Handlers:    []string{"auth_strip"},
			ServerFirst: true,
		},
		{
			Name:        "inspect",
			Description: "Hex dump every payload at debug level",
			Handlers:    []string{"hexdump"},
		},
		{
			Name:        "record",
			Description: "Record payloads across sessions to handlers.record_path",
			Handlers:    []string{"record"},
		},
	}
}

// HandlerNames lists the handlers that can appear in an explicit chain.
func HandlerNames() []string {
	return []string{"auth_strip", "rule", "hexdump", "record"}
}

// ResolvePreset finds a preset by name.
func ResolvePreset(name string) (Preset, error) {
	for _, p := range AvailablePresets() {
		if p.Name == name {
			return p, nil
		}
	}
	var names []string
	for _, p := range AvailablePresets() {
		names = append(names, p.Name)
	}
	return Preset{}, fmt.Errorf("unknown handler preset %q (available: %s)", name, strings.Join(names, ", "))
}

// Build constructs the chain selected by cfg. An explicit chain overrides the preset.
func Build(cfg config.HandlersSection, logger *logging.Logger) (*Chain, error) {
	names := cfg.Chain
	if len(names) == 0 && cfg.Preset != "" {
		preset, err := ResolvePreset(cfg.Preset)
		if err != nil {
			return nil, err
		}
		names = preset.Handlers
	}

	handlers := make([]Handler, 0, len(names))
	for _, name := range names {
		h, err := newHandler(strings.TrimSpace(name), cfg, logger)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return NewChain(handlers...), nil
}

func newHandler(name string, cfg config.HandlersSection, logger *logging.Logger) (Handler, error) {
	switch name {
	case "auth_strip":
		return NewAuthStrip(logger), nil
	case "hexdump":
		return NewHexDumper(logger), nil
	case "record":
		if cfg.RecordPath == "" {
			return nil, fmt.Errorf("handler record requires handlers.record_path")
		}
		return NewRecorder(cfg.RecordPath, cfg.RecordDirection, logger), nil
	case "rule":
		if len(cfg.Rules) == 0 {
			return nil, fmt.Errorf("handler rule requires handlers.rules")
		}
		rs, err := NewRuleSet(cfg.Rules, logger)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown handler %q (available: %s)", name, strings.Join(HandlerNames(), ", "))
	}
}
