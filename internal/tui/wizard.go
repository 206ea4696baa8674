package tui

// Interactive config wizard for `fuzzrelay init`

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/tturner/fuzzrelay/internal/config"
	"github.com/tturner/fuzzrelay/internal/intercept"
)

// WizardValues holds the raw form answers.
type WizardValues struct {
	ListenHost    string
	ListenPort    string
	RemoteHost    string
	RemotePort    string
	TimeoutMs     string
	Tolerate      bool
	Test          string
	Ratio         string
	Directions    string
	Preset        string
	CapturePath   string
	CaptureScope  string
	JournalPath   string
	EnableMetrics bool
	IgnoredBytes  string
}

// WizardValuesFrom seeds the form with an existing configuration.
func WizardValuesFrom(cfg *config.RelayConfig) *WizardValues {
	dirs := "none"
	switch {
	case cfg.Mutation.ClientToServer && cfg.Mutation.ServerToClient:
		dirs = string(config.DirectionBoth)
	case cfg.Mutation.ClientToServer:
		dirs = string(config.DirectionClientToServer)
	case cfg.Mutation.ServerToClient:
		dirs = string(config.DirectionServerToClient)
	}
	return &WizardValues{
		ListenHost:    cfg.Relay.ListenHost,
		ListenPort:    strconv.Itoa(cfg.Relay.ListenPort),
		RemoteHost:    cfg.Relay.RemoteHost,
		RemotePort:    strconv.Itoa(cfg.Relay.RemotePort),
		TimeoutMs:     strconv.Itoa(cfg.Relay.TimeoutMs),
		Tolerate:      cfg.Relay.TolerateReadTimeouts,
		Test:          cfg.Mutation.Test,
		Ratio:         cfg.Mutation.Ratio,
		Directions:    dirs,
		Preset:        cfg.Handlers.Preset,
		CapturePath:   cfg.Capture.Path,
		CaptureScope:  string(cfg.Capture.Direction),
		JournalPath:   cfg.Journal.Path,
		EnableMetrics: cfg.Metrics.Enable,
		IgnoredBytes:  strings.Join(cfg.Mutation.IgnoredBytes, " "),
	}
}

// Apply writes the answers into cfg and validates the result.
func (v *WizardValues) Apply(cfg *config.RelayConfig) error {
	listenPort, err := parsePort("listen port", v.ListenPort)
	if err != nil {
		return err
	}
	remotePort, err := parsePort("remote port", v.RemotePort)
	if err != nil {
		return err
	}
	timeout, err := strconv.Atoi(strings.TrimSpace(v.TimeoutMs))
	if err != nil || timeout <= 0 {
		return fmt.Errorf("timeout must be a positive number of milliseconds, got %q", v.TimeoutMs)
	}

	cfg.Relay.ListenHost = strings.TrimSpace(v.ListenHost)
	cfg.Relay.ListenPort = listenPort
	cfg.Relay.RemoteHost = strings.TrimSpace(v.RemoteHost)
	cfg.Relay.RemotePort = remotePort
	cfg.Relay.TimeoutMs = timeout
	cfg.Relay.TolerateReadTimeouts = v.Tolerate

	cfg.Mutation.Test = strings.TrimSpace(v.Test)
	cfg.Mutation.Ratio = strings.TrimSpace(v.Ratio)
	cfg.Mutation.ClientToServer = v.Directions == string(config.DirectionBoth) || v.Directions == string(config.DirectionClientToServer)
	cfg.Mutation.ServerToClient = v.Directions == string(config.DirectionBoth) || v.Directions == string(config.DirectionServerToClient)
	cfg.Mutation.IgnoredBytes = strings.Fields(v.IgnoredBytes)

	cfg.Handlers.Preset = v.Preset
	cfg.Handlers.Chain = nil
	if v.Preset == "record" && cfg.Handlers.RecordPath == "" {
		cfg.Handlers.RecordPath = "record.txt"
	}
	cfg.Capture.Path = strings.TrimSpace(v.CapturePath)
	cfg.Capture.Direction = config.Direction(v.CaptureScope)
	cfg.Journal.Path = strings.TrimSpace(v.JournalPath)
	cfg.Metrics.Enable = v.EnableMetrics

	config.ApplyDefaults(cfg)
	return config.ValidateRelayConfig(cfg)
}

func parsePort(name, value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 1 and 65535, got %q", name, value)
	}
	return port, nil
}

func validatePortInput(value string) error {
	_, err := parsePort("port", value)
	return err
}

func validateTestInput(value string) error {
	_, err := config.ParseTestRange(value)
	return err
}

func validateRatioInput(value string) error {
	_, err := config.ParseRatio(value)
	return err
}

func validateIgnoredInput(value string) error {
	_, err := config.ParseIgnoredBytes(strings.Fields(value))
	return err
}

// BuildWizardForm binds a huh form to v.
func BuildWizardForm(v *WizardValues) *huh.Form {
	var presetOptions []huh.Option[string]
	for _, p := range intercept.AvailablePresets() {
		presetOptions = append(presetOptions, huh.NewOption(p.Name+" - "+p.Description, p.Name))
	}

	relayGroup := huh.NewGroup(
		huh.NewInput().
			Title("Listen host").
			Description("Address the relay binds for clients.").
			Value(&v.ListenHost),
		huh.NewInput().
			Title("Listen port").
			Validate(validatePortInput).
			Value(&v.ListenPort),
		huh.NewInput().
			Title("Remote host").
			Description("Upstream server the relay dials per session.").
			Value(&v.RemoteHost),
		huh.NewInput().
			Title("Remote port").
			Validate(validatePortInput).
			Value(&v.RemotePort),
		huh.NewInput().
			Title("Socket timeout (ms)").
			Value(&v.TimeoutMs),
		huh.NewConfirm().
			Title("Tolerate read timeouts?").
			Description("Keep the session open when one side is idle (server-speaks-first protocols).").
			Value(&v.Tolerate),
	)

	mutationGroup := huh.NewGroup(
		huh.NewSelect[string]().
			Title("Mutate traffic").
			Options(
				huh.NewOption("No mutation (passthrough)", "none"),
				huh.NewOption("Client to server", string(config.DirectionClientToServer)),
				huh.NewOption("Server to client", string(config.DirectionServerToClient)),
				huh.NewOption("Both directions", string(config.DirectionBoth)),
			).
			Value(&v.Directions),
		huh.NewInput().
			Title("Test range").
			Description("start, start:end, start: or start:infinite").
			Validate(validateTestInput).
			Value(&v.Test),
		huh.NewInput().
			Title("Mutation ratio").
			Description("ratio or min:max, each in [0,1]").
			Validate(validateRatioInput).
			Value(&v.Ratio),
		huh.NewInput().
			Title("Ignored bytes").
			Description("Hex byte values never mutated, space separated (e.g. 0d 0a).").
			Validate(validateIgnoredInput).
			Value(&v.IgnoredBytes),
	)

	outputGroup := huh.NewGroup(
		huh.NewSelect[string]().
			Title("Handler preset").
			Options(presetOptions...).
			Value(&v.Preset),
		huh.NewInput().
			Title("Capture file (optional)").
			Description("Hex capture written after every session.").
			Value(&v.CapturePath),
		huh.NewSelect[string]().
			Title("Capture direction").
			Options(
				huh.NewOption("Both", string(config.DirectionBoth)),
				huh.NewOption("Client to server", string(config.DirectionClientToServer)),
				huh.NewOption("Server to client", string(config.DirectionServerToClient)),
			).
			Value(&v.CaptureScope),
		huh.NewInput().
			Title("Session journal (optional)").
			Description("SQLite file recording every session for resume and reproduce.").
			Value(&v.JournalPath),
		huh.NewConfirm().
			Title("Enable metrics listener?").
			Value(&v.EnableMetrics),
	)

	return huh.NewForm(relayGroup, mutationGroup, outputGroup)
}

// RunWizard runs the form against cfg and applies the answers.
func RunWizard(cfg *config.RelayConfig) error {
	values := WizardValuesFrom(cfg)
	if err := BuildWizardForm(values).Run(); err != nil {
		return err
	}
	return values.Apply(cfg)
}
