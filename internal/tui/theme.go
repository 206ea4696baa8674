package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the monitor.
type Theme struct {
	TextPrimary lipgloss.Color
	TextDim     lipgloss.Color
	TextMuted   lipgloss.Color

	Border        lipgloss.Color
	BorderFocused lipgloss.Color

	Accent  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color
	Purple  lipgloss.Color
}

// DefaultTheme is a dark Tokyo Night palette.
var DefaultTheme = Theme{
	TextPrimary: lipgloss.Color("#c0caf5"),
	TextDim:     lipgloss.Color("#565f89"),
	TextMuted:   lipgloss.Color("#414868"),

	Border:        lipgloss.Color("#414868"),
	BorderFocused: lipgloss.Color("#7aa2f7"),

	Accent:  lipgloss.Color("#7aa2f7"),
	Success: lipgloss.Color("#9ece6a"),
	Warning: lipgloss.Color("#e0af68"),
	Error:   lipgloss.Color("#f7768e"),
	Info:    lipgloss.Color("#7dcfff"),
	Purple:  lipgloss.Color("#bb9af7"),
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Base  lipgloss.Style
	Dim   lipgloss.Style
	Muted lipgloss.Style
	Bold  lipgloss.Style

	Title  lipgloss.Style
	Header lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Mutated lipgloss.Style

	Box        lipgloss.Style
	BoxFocused lipgloss.Style
	KeyBinding lipgloss.Style
	KeyHint    lipgloss.Style
	Footer     lipgloss.Style
}

// NewStyles creates a Styles instance from a Theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Base:  lipgloss.NewStyle().Foreground(t.TextPrimary),
		Dim:   lipgloss.NewStyle().Foreground(t.TextDim),
		Muted: lipgloss.NewStyle().Foreground(t.TextMuted),
		Bold:  lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true),

		Title: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		Label: lipgloss.NewStyle().
			Foreground(t.TextDim).
			Width(14),
		Value: lipgloss.NewStyle().Foreground(t.TextPrimary),

		Success: lipgloss.NewStyle().Foreground(t.Success),
		Warning: lipgloss.NewStyle().Foreground(t.Warning),
		Error:   lipgloss.NewStyle().Foreground(t.Error),
		Info:    lipgloss.NewStyle().Foreground(t.Info),
		Mutated: lipgloss.NewStyle().Foreground(t.Purple).Bold(true),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		BoxFocused: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.BorderFocused).
			Padding(0, 1),
		KeyBinding: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		KeyHint: lipgloss.NewStyle().Foreground(t.TextDim),
		Footer:  lipgloss.NewStyle().Foreground(t.TextDim),
	}
}

// DefaultStyles uses the default theme.
var DefaultStyles = NewStyles(DefaultTheme)

// VerdictIcon returns a colored marker for a payload verdict.
func VerdictIcon(verdict string, mutated bool, s Styles) string {
	switch {
	case mutated:
		return s.Mutated.Render("✱")
	case verdict == "drop" || verdict == "drop_with_reply":
		return s.Warning.Render("✗")
	case verdict == "replay":
		return s.Info.Render("↺")
	default:
		return s.Success.Render("●")
	}
}

// StatusIcon returns a colored marker for a finished session.
func StatusIcon(failed bool, s Styles) string {
	if failed {
		return s.Error.Render("●")
	}
	return s.Success.Render("●")
}
