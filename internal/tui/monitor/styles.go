package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/desk/internal/models"
	desksync "github.com/marcus/desk/internal/sync"
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

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	senderStyle    = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)
	unreadStyle    = lipgloss.NewStyle().Foreground(warningColor)
	spinnerStyle   = lipgloss.NewStyle().Foreground(primaryColor)

	connectivityStyles = map[desksync.Status]lipgloss.Style{
		desksync.StatusChecking: lipgloss.NewStyle().Foreground(warningColor),
		desksync.StatusOnline:   lipgloss.NewStyle().Foreground(successColor).Bold(true),
		desksync.StatusOffline:  lipgloss.NewStyle().Foreground(errorColor).Bold(true),
	}

	taskStatusStyles = map[models.TaskStatus]lipgloss.Style{
		models.TaskStatusNew:        lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.TaskStatusInProgress: lipgloss.NewStyle().Foreground(warningColor),
		models.TaskStatusCompleted:  lipgloss.NewStyle().Foreground(successColor),
		models.TaskStatusCanceled:   lipgloss.NewStyle().Foreground(mutedColor),
	}
)

// formatConnectivity renders a status badge with color
func formatConnectivity(s desksync.Status) string {
	label := "● " + string(s)
	style, ok := connectivityStyles[s]
	if !ok {
		return label
	}
	return style.Render(label)
}

func formatTaskStatus(s models.TaskStatus) string {
	style, ok := taskStatusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}
