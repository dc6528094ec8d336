package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/dealbook/internal/models"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	// header + footer take one line each
	available := m.Height - 2
	entitiesHeight := available * 3 / 5
	activityHeight := available - entitiesHeight

	panels := lipgloss.JoinVertical(lipgloss.Left,
		m.renderEntitiesPanel(entitiesHeight),
		m.renderActivityPanel(activityHeight),
	)
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), panels, m.renderFooter())
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("dealbook watch (resize for full view)\n\n")
	for _, c := range m.Categories {
		s.WriteString(fmt.Sprintf("%s: %d\n", c, len(m.Doc.Categories[c])))
	}
	if badge := formatPushBadge(m.Status.Last.Status); badge != "" {
		s.WriteString("\n" + badge + "\n")
	}
	s.WriteString("\nq:quit r:pull ?:help")
	return s.String()
}

// renderHeader shows who we are and the sync state
func (m Model) renderHeader() string {
	principal := m.Status.Principal
	if principal == "" {
		principal = "not connected"
	}
	parts := []string{
		titleStyle.Render("dealbook"),
		principal,
		subtleStyle.Render("client " + shortID(m.Status.ClientID)),
	}
	if badge := formatPushBadge(m.Status.Last.Status); badge != "" {
		parts = append(parts, badge)
	}
	if m.Status.Dirty {
		parts = append(parts, dirtyStyle.Render("unsaved changes"))
	}
	if m.Refreshing {
		parts = append(parts, subtleStyle.Render("pulling..."))
	}
	if m.Err != nil {
		parts = append(parts, lipgloss.NewStyle().Foreground(errorColor).Render("pull failed: "+m.Err.Error()))
	}
	return ansi.Truncate(" "+strings.Join(parts, "  "), m.Width, "...")
}

// renderEntitiesPanel shows the selected category with a tab strip of all categories
func (m Model) renderEntitiesPanel(height int) string {
	var content strings.Builder

	tabs := make([]string, 0, len(m.Categories))
	for i, c := range m.Categories {
		label := fmt.Sprintf("%s %d", c, len(m.Doc.Categories[c]))
		if i == m.CategoryIdx {
			tabs = append(tabs, selectedTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	content.WriteString(strings.Join(tabs, " "))
	content.WriteString("\n")

	entities := m.Doc.Categories[m.SelectedCategory()]
	if len(entities) == 0 {
		content.WriteString(subtleStyle.Render("No " + m.SelectedCategory()))
		content.WriteString("\n")
	}
	offset := m.ScrollOffset[PanelEntities]
	for i := offset; i < offset+visibleItems(len(entities), offset, height-4); i++ {
		content.WriteString(m.formatEntity(entities[i]))
		content.WriteString("\n")
	}

	title := strings.ToUpper(m.SelectedCategory())
	return m.wrapPanel(title, content.String(), height, PanelEntities)
}

// renderActivityPanel shows the activity log, newest first
func (m Model) renderActivityPanel(height int) string {
	var content strings.Builder
	log := m.Doc.ActivityLog
	if len(log) == 0 {
		content.WriteString(subtleStyle.Render("No activity yet"))
		content.WriteString("\n")
	}
	offset := m.ScrollOffset[PanelActivity]
	for i := offset; i < offset+visibleItems(len(log), offset, height-3); i++ {
		content.WriteString(m.formatActivityItem(log[i]))
		content.WriteString("\n")
	}
	return m.wrapPanel(fmt.Sprintf("ACTIVITY (%d)", len(log)), content.String(), height, PanelActivity)
}

func (m Model) renderFooter() string {
	bindings := m.keys.footerBindings()
	helps := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		helps = append(helps, h.Key+":"+h.Desc)
	}
	keys := helpStyle.Render(strings.Join(helps, "  "))

	last := ""
	if !m.LastChange.IsZero() {
		last = timestampStyle.Render(fmt.Sprintf("Last change: %s (%s)", m.LastChange.Format("15:04:05"), m.ChangedTag))
	}

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(last) - 2
	if padding < 0 {
		padding = 0
	}
	return fmt.Sprintf(" %s%s%s", keys, strings.Repeat(" ", padding), last)
}

// renderHelp renders the help overlay
func (m Model) renderHelp() string {
	groups := []struct {
		title    string
		bindings []key.Binding
	}{
		{"NAVIGATION", []key.Binding{m.keys.NextPanel, m.keys.PrevPanel, m.keys.NextCategory, m.keys.Down}},
		{"ACTIONS", []key.Binding{m.keys.Refresh, m.keys.Help, m.keys.Quit}},
	}
	var sb strings.Builder
	sb.WriteString("\nWATCH - Key Bindings\n")
	for _, g := range groups {
		sb.WriteString("\n" + g.title + ":\n")
		for _, b := range g.bindings {
			h := b.Help()
			sb.WriteString(fmt.Sprintf("  %-12s %s\n", h.Key, h.Desc))
		}
	}
	sb.WriteString("\nPulling replaces local state with the remote document.\n")
	sb.WriteString("\nPress ? to close help\n")
	return helpStyle.Render(sb.String())
}

// wrapPanel wraps content in a panel with title and border
func (m Model) wrapPanel(title, content string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	contentWidth := m.Width - 4 // border and padding
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	contentHeight := height - 3 // title + border
	if contentHeight < 1 {
		contentHeight = 1
	}
	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}
	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "...")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, panelTitleStyle.Render(title), strings.Join(lines, "\n"))
	return style.Width(m.Width - 2).Render(inner)
}

func (m Model) formatEntity(e models.Entity) string {
	parts := []string{idStyle.Render(e.ID()), e.DisplayName()}
	if ts, ok := e[models.FieldUpdatedAt].(string); ok && len(ts) >= 16 {
		parts = append(parts, timestampStyle.Render(ts[:10]))
	}
	return strings.Join(parts, "  ")
}

func (m Model) formatActivityItem(a models.ActivityEntry) string {
	return fmt.Sprintf("%s %s %s",
		timestampStyle.Render(a.At.Local().Format("01-02 15:04")),
		formatActivityBadge(a.Type),
		a.Text)
}

// visibleItems calculates how many items can be shown given scroll offset and height
func visibleItems(total, offset, height int) int {
	remaining := total - offset
	if remaining < 0 {
		return 0
	}
	if remaining > height {
		return max(height, 0)
	}
	return remaining
}

// shortID shortens a client id for display
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
