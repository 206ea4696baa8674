package app

import (
	"fmt"
	"strings"

	"github.com/tturner/fuzzrelay/internal/config"
)

// RelayMode is a named bundle of config overrides for the relay command.
type RelayMode struct {
	Name        string
	Description string
	apply       func(cfg *config.RelayConfig)
}

// AvailableModes lists the relay modes in display order.
func AvailableModes() []RelayMode {
	return []RelayMode{
		{
			Name:        "passthrough",
			Description: "Forward traffic unmodified (handlers and capture still apply)",
			apply: func(cfg *config.RelayConfig) {
				cfg.Mutation.ClientToServer = false
				cfg.Mutation.ServerToClient = false
			},
		},
		{
			Name:        "fuzz-server",
			Description: "Mutate client->server payloads to exercise the server",
			apply: func(cfg *config.RelayConfig) {
				cfg.Mutation.ClientToServer = true
				cfg.Mutation.ServerToClient = false
			},
		},
		{
			Name:        "fuzz-client",
			Description: "Mutate server->client payloads to exercise the client",
			apply: func(cfg *config.RelayConfig) {
				cfg.Mutation.ClientToServer = false
				cfg.Mutation.ServerToClient = true
			},
		},
		{
			Name:        "fuzz-both",
			Description: "Mutate payloads in both directions",
			apply: func(cfg *config.RelayConfig) {
				cfg.Mutation.ClientToServer = true
				cfg.Mutation.ServerToClient = true
			},
		},
		{
			Name:        "record",
			Description: "Forward unmodified and capture both directions for later stub replay",
			apply: func(cfg *config.RelayConfig) {
				cfg.Mutation.ClientToServer = false
				cfg.Mutation.ServerToClient = false
				if cfg.Capture.Path == "" {
					cfg.Capture.Path = "capture.txt"
				}
				cfg.Capture.Direction = config.DirectionBoth
			},
		},
	}
}

// ApplyRelayMode applies the named mode to cfg.
func ApplyRelayMode(cfg *config.RelayConfig, mode string) error {
	name := strings.ToLower(strings.TrimSpace(mode))
	// Underscore spellings are accepted as aliases.
	switch name {
	case "fuzz_server":
		name = "fuzz-server"
	case "fuzz_client":
		name = "fuzz-client"
	case "server_data", "server-data":
		return fmt.Errorf("mode %q serves recorded data; use 'fuzzrelay stub' instead", mode)
	}
	for _, m := range AvailableModes() {
		if m.Name == name {
			m.apply(cfg)
			return nil
		}
	}
	names := make([]string, 0, len(AvailableModes()))
	for _, m := range AvailableModes() {
		names = append(names, m.Name)
	}
	return fmt.Errorf("unknown mode %q (available: %s)", mode, strings.Join(names, ", "))
}
