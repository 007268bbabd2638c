package console

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/reeslabree/sprinkler-controller/internal/version"
)

// AppName is shown in the dashboard title bar
const AppName = "SPRINKLER CONSOLE"

// Layout constants for responsive terminal width
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 100 // Maximum content width before capping
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - zone on, connected
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors, disconnected
	WarningColor = lipgloss.Color("#FFA500") // Orange - pending
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	SectionTitleStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Bold(true).
				MarginTop(1)

	ZoneStyle = lipgloss.NewStyle().
			PaddingLeft(4).
			Foreground(TextColor)

	SelectedZoneStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				Foreground(PrimaryColor).
				Bold(true)

	OnStyle = lipgloss.NewStyle().
		Foreground(SuccessColor).
		Bold(true)

	OffStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	ConnectedStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	DisconnectedStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	PendingStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	ScheduleStyle = lipgloss.NewStyle().
			PaddingLeft(4).
			Foreground(TextColor)

	InactiveScheduleStyle = lipgloss.NewStyle().
				PaddingLeft(4).
				Foreground(MutedColor)

	StatusLineStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			MarginTop(1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			MarginTop(1)
)

// Markers
const (
	OnMarker     = "●"
	OffMarker    = "○"
	CursorMarker = "▸ "
)

// AppVersion returns the version shown under the dashboard title
func AppVersion() string {
	return version.Full()
}

// BoxStyle returns the bordered frame around the dashboard.
func BoxStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(0, 1).
		Width(width - 2) // Account for border characters
}

// ClampWidth bounds a terminal width to the supported range.
func ClampWidth(width int) int {
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the clamped stdout width, with fallback
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth
	}
	return ClampWidth(width)
}
