package app

import (
	"fmt"
	"io"
	"os"

	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/errors"
	"github.com/tturner/fuzzrelay/internal/intercept"
	"github.com/tturner/fuzzrelay/internal/logging"
	"github.com/tturner/fuzzrelay/internal/tui"
)

// ValidateConfig loads path, builds its handler chain and reports the result.
func ValidateConfig(w io.Writer, path string) error {
	cfg, err := config.LoadRelayConfig(path)
	if err != nil {
		return errors.WrapConfigError(err, path)
	}
	logger, err := logging.NewLogger(logging.LogLevelSilent, "")
	if err != nil {
		return err
	}
	chain, err := intercept.Build(cfg.Handlers, logger)
	if err != nil {
		return errors.WrapConfigError(err, path)
	}
	testRange, _ := config.ParseTestRange(cfg.Mutation.Test)

	fmt.Fprintf(w, "%s is valid\n", path)
	fmt.Fprintf(w, "  Listen:   %s\n", listenAddr(cfg))
	fmt.Fprintf(w, "  Upstream: %s\n", upstreamAddr(cfg))
	fmt.Fprintf(w, "  Mutation: %s, tests %s, ratio %s\n", mutationLabel(cfg), testRange, cfg.Mutation.Ratio)
	if chain.Len() > 0 {
		fmt.Fprintf(w, "  Handlers: %v\n", chain.Names())
	}
	return nil
}

func mutationLabel(cfg *config.RelayConfig) string {
	dirs := mutationDirections(cfg)
	if dirs == "" {
		return "off"
	}
	return dirs.Label()
}

// PrintDefaultConfig writes the default configuration as YAML.
func PrintDefaultConfig(w io.Writer) error {
	data, err := config.MarshalRelayConfig(config.CreateDefaultRelayConfig())
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// PrintModeConfig writes the default configuration with a mode applied.
func PrintModeConfig(w io.Writer, mode string) error {
	cfg := config.CreateDefaultRelayConfig()
	if err := ApplyRelayMode(cfg, mode); err != nil {
		return err
	}
	data, err := config.MarshalRelayConfig(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// InitOptions controls `fuzzrelay init`.
type InitOptions struct {
	Output string
	Force  bool
}

// RunInit runs the config wizard and writes the result.
func RunInit(w io.Writer, opts InitOptions) error {
	if opts.Output == "" {
		opts.Output = "fuzzrelay.yaml"
	}
	if _, err := os.Stat(opts.Output); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", opts.Output)
	}
	cfg := config.CreateDefaultRelayConfig()
	if err := tui.RunWizard(cfg); err != nil {
		return err
	}
	if err := config.WriteRelayConfig(opts.Output, cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s\nStart the relay with: fuzzrelay relay --config %s\n", opts.Output, opts.Output)
	return nil
}

// ListHandlers prints handler presets and the handlers usable in a chain.
func ListHandlers(w io.Writer) {
	fmt.Fprintln(w, "Handler presets (handlers.preset / --preset):")
	for _, p := range intercept.AvailablePresets() {
		chain := "-"
		if len(p.Handlers) > 0 {
			chain = fmt.Sprint(p.Handlers)
		}
		fmt.Fprintf(w, "  %-12s %-14s %s\n", p.Name, chain, p.Description)
	}
	fmt.Fprintln(w, "\nHandlers (handlers.chain / --handler):")
	for _, name := range intercept.HandlerNames() {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

// ListModes prints the relay modes.
func ListModes(w io.Writer) {
	fmt.Fprintln(w, "Relay modes (--mode):")
	for _, m := range AvailableModes() {
		fmt.Fprintf(w, "  %-12s %s\n", m.Name, m.Description)
	}
	fmt.Fprintln(w, "\nRecorded data is served by 'fuzzrelay stub', not by a relay mode.")
}
