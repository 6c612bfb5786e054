// ABOUTME: Display initialization and control
// ABOUTME: Wraps the bubbletea program for the gateway status screen
package display

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Control carries the quit signal back from the display.
type Control struct {
	Quit chan QuitRequest
}

// NewControl creates the display control channels.
func NewControl() *Control {
	return &Control{
		Quit: make(chan QuitRequest, 1),
	}
}

// Run starts the display program. The caller pumps StatusMsg values via
// Program.Send from the display task.
func Run(ctrl *Control) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl.Quit), tea.WithAltScreen())
	return p, nil
}
