package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/tally/internal/queue"
)

var (
	// Base colors
	primaryColor   = lipgloss.Color("212")
	secondaryColor = lipgloss.Color("141")
	mutedColor     = lipgloss.Color("241")
	successColor   = lipgloss.Color("42")
	warningColor   = lipgloss.Color("214")
	errorColor     = lipgloss.Color("196")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	subtleStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	selectedRowStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	pendingStyle     = lipgloss.NewStyle().Foreground(secondaryColor)
	onlineStyle      = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle     = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	errorStyle       = lipgloss.NewStyle().Foreground(errorColor)
	spinnerStyle     = lipgloss.NewStyle().Foreground(secondaryColor)

	actionStyles = map[queue.Action]lipgloss.Style{
		queue.ActionInsert: lipgloss.NewStyle().Foreground(successColor),
		queue.ActionUpdate: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		queue.ActionDelete: lipgloss.NewStyle().Foreground(errorColor),
	}
)

func formatAction(a queue.Action) string {
	style, ok := actionStyles[a]
	if !ok {
		return string(a)
	}
	return style.Render("[" + string(a) + "]")
}
