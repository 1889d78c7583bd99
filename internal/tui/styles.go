package tui

import "github.com/charmbracelet/lipgloss"

// Marketa palette.
var (
	Primary     = lipgloss.Color("#6D28D9")
	Accent      = lipgloss.Color("#F59E0B")
	Muted       = lipgloss.Color("#6B7280")
	Destructive = lipgloss.Color("#E53935")
	Success     = lipgloss.Color("#22C55E")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(Primary).
			Padding(0, 1)

	helpStyle   = lipgloss.NewStyle().Foreground(Muted)
	errorStyle  = lipgloss.NewStyle().Foreground(Destructive)
	statusStyle = lipgloss.NewStyle().Foreground(Success)

	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	noteStyle           = lipgloss.NewStyle().Italic(true).Foreground(Muted)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1)
)
