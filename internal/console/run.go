package console

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrNotTerminal is returned by Run when stdout is not a terminal.
var ErrNotTerminal = errors.New("the dashboard needs an interactive terminal; use the status, toggle or schedules commands instead")

// Run shows the dashboard for client until the user quits.
func Run(client *Client) error {
	if !IsTerminal() {
		return ErrNotTerminal
	}

	p := tea.NewProgram(NewModel(client, client.URL()), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
