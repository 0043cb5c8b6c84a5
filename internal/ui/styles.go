package ui

import "github.com/charmbracelet/lipgloss"

const (
	streamingCursor = "▍"
	minSidebarWidth = 20
	maxSidebarWidth = 36
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	subtle = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	danger = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F87"}

	sidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(subtle).
			PaddingRight(1)
	sidebarFocusedStyle = sidebarStyle.BorderForeground(accent)

	itemStyle         = lipgloss.NewStyle()
	activeItemStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	selectedItemStyle = lipgloss.NewStyle().Reverse(true)
	dateStyle         = lipgloss.NewStyle().Foreground(subtle)

	titleStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	userLabel      = lipgloss.NewStyle().Bold(true).Foreground(accent).Render("You")
	assistantLabel = lipgloss.NewStyle().Bold(true).Render("Assistant")
	statusStyle    = lipgloss.NewStyle().Foreground(subtle)
	errorStyle     = lipgloss.NewStyle().Foreground(danger)
	inputStyle     = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(subtle)
)
