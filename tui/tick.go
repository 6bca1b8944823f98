// Package tui runs the dragon snake in a terminal with Bubble Tea.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg advances the simulation by one step.
type TickMsg time.Time

func tickCmd(rate time.Duration) tea.Cmd {
	return tea.Tick(rate, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
