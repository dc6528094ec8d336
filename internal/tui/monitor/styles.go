package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/dealbook/internal/models"
	dsync "github.com/marcus/dealbook/internal/sync"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	// Panel styles
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

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	idStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))

	selectedTabStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Underline(true)
	tabStyle         = lipgloss.NewStyle().Foreground(mutedColor)

	// Activity type badges
	activityBadges = map[models.ActivityType]lipgloss.Style{
		models.ActivityAdd:    lipgloss.NewStyle().Foreground(successColor),
		models.ActivityUpdate: lipgloss.NewStyle().Foreground(warningColor),
		models.ActivityDelete: lipgloss.NewStyle().Foreground(errorColor),
	}

	// Push status badges
	pushBadges = map[dsync.PushStatus]lipgloss.Style{
		dsync.PushOK:       lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(successColor),
		dsync.PushConflict: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(warningColor),
		dsync.PushFailed:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).Background(errorColor),
		dsync.PushSkipped:  lipgloss.NewStyle().Foreground(mutedColor),
	}
	dirtyStyle = lipgloss.NewStyle().Foreground(warningColor)
)

// formatActivityBadge renders an activity type badge
func formatActivityBadge(t models.ActivityType) string {
	labels := map[models.ActivityType]string{
		models.ActivityAdd:    "[ADD]",
		models.ActivityUpdate: "[UPD]",
		models.ActivityDelete: "[DEL]",
	}
	label, ok := labels[t]
	if !ok {
		return subtleStyle.Render("[???]")
	}
	return activityBadges[t].Render(label)
}

// formatPushBadge renders the last push outcome
func formatPushBadge(s dsync.PushStatus) string {
	labels := map[dsync.PushStatus]string{
		dsync.PushOK:       " SAVED ",
		dsync.PushConflict: " CONFLICT ",
		dsync.PushFailed:   " SAVE FAILED ",
		dsync.PushSkipped:  " LOCAL ONLY ",
	}
	label, ok := labels[s]
	if !ok {
		return ""
	}
	return pushBadges[s].Render(label)
}
