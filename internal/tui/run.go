package tui

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"
)

// RunMonitor shows the monitor until the user quits or ctx is cancelled.
func RunMonitor(ctx context.Context, opts MonitorOptions) error {
	program := tea.NewProgram(NewMonitor(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && (ctx.Err() != nil || stderrors.Is(err, tea.ErrProgramKilled)) {
		return nil
	}
	return err
}
