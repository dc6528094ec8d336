// Package monitor is the live "watch" view: a Bubble Tea model that re-renders the
// CRM document on every store notification and shows sync status.
package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/dealbook/internal/models"
	dsync "github.com/marcus/dealbook/internal/sync"
)

// Source is what the monitor reads from. statemgr.Manager satisfies it.
type Source interface {
	Snapshot() *models.Document
	Status() dsync.Status
	Refresh(ctx context.Context) error
}

// Panel represents which panel is active
type Panel int

const (
	PanelEntities Panel = iota
	PanelActivity
)

const panelCount = 2

// Model is the main Bubble Tea model for the monitor TUI
type Model struct {
	Source Source

	// Window dimensions
	Width  int
	Height int

	// Data
	Doc        *models.Document
	Status     dsync.Status
	Categories []string
	LastChange time.Time
	ChangedTag string

	// UI state
	ActivePanel  Panel
	CategoryIdx  int
	ScrollOffset map[Panel]int
	ShowHelp     bool
	Refreshing   bool
	Err          error // Last refresh error, if any

	// Configuration
	TickInterval   time.Duration
	RefreshTimeout time.Duration

	keys keyMap
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 12

// TickMsg re-reads sync status so relative times stay current
type TickMsg time.Time

// DocChangedMsg is sent by the store subscriber on every notification
type DocChangedMsg struct {
	Category string
	At       time.Time
}

// PushMsg carries a push result from the sync engine
type PushMsg struct {
	Result dsync.PushResult
}

// RefreshDoneMsg reports the end of a manual refresh
type RefreshDoneMsg struct {
	Err error
}

// NewModel creates a new monitor model
func NewModel(src Source, tick time.Duration) Model {
	m := Model{
		Source:         src,
		ScrollOffset:   make(map[Panel]int),
		ActivePanel:    PanelEntities,
		TickInterval:   tick,
		RefreshTimeout: 10 * time.Second,
		keys:           defaultKeyMap(),
	}
	m.load()
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return m.scheduleTick()
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		m.Status = m.Source.Status()
		return m, m.scheduleTick()

	case DocChangedMsg:
		m.load()
		m.LastChange = msg.At
		m.ChangedTag = msg.Category
		return m, nil

	case PushMsg:
		m.Status = m.Source.Status()
		m.Status.Last = msg.Result
		return m, nil

	case RefreshDoneMsg:
		m.Refreshing = false
		m.Err = msg.Err
		m.load()
		return m, nil
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextPanel):
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case key.Matches(msg, m.keys.PrevPanel):
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case key.Matches(msg, m.keys.NextCategory):
		if len(m.Categories) > 0 {
			m.CategoryIdx = (m.CategoryIdx + 1) % len(m.Categories)
			m.ScrollOffset[PanelEntities] = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.PrevCategory):
		if len(m.Categories) > 0 {
			m.CategoryIdx = (m.CategoryIdx + len(m.Categories) - 1) % len(m.Categories)
			m.ScrollOffset[PanelEntities] = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.ScrollOffset[m.ActivePanel] < m.panelLen(m.ActivePanel)-1 {
			m.ScrollOffset[m.ActivePanel]++
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.ScrollOffset[m.ActivePanel] > 0 {
			m.ScrollOffset[m.ActivePanel]--
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.Refreshing {
			return m, nil
		}
		m.Refreshing = true
		return m, m.refresh()

	case key.Matches(msg, m.keys.Help):
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// SelectedCategory returns the category shown in the entities panel.
func (m Model) SelectedCategory() string {
	if len(m.Categories) == 0 {
		return ""
	}
	return m.Categories[m.CategoryIdx]
}

// load takes a fresh snapshot and keeps the selected category when it still exists.
func (m *Model) load() {
	selected := m.SelectedCategory()
	m.Doc = m.Source.Snapshot()
	m.Status = m.Source.Status()
	m.Categories = m.Doc.CategoryNames()
	m.CategoryIdx = 0
	for i, c := range m.Categories {
		if c == selected {
			m.CategoryIdx = i
			break
		}
	}
	for p := Panel(0); p < panelCount; p++ {
		if n := m.panelLen(p); m.ScrollOffset[p] >= n {
			m.ScrollOffset[p] = max(n-1, 0)
		}
	}
}

func (m Model) panelLen(p Panel) int {
	if m.Doc == nil {
		return 0
	}
	if p == PanelActivity {
		return len(m.Doc.ActivityLog)
	}
	return len(m.Doc.Categories[m.SelectedCategory()])
}

// scheduleTick returns a command that sends a TickMsg after the tick interval
func (m Model) scheduleTick() tea.Cmd {
	if m.TickInterval <= 0 {
		return nil
	}
	return tea.Tick(m.TickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refresh returns a command that re-pulls the remote document
func (m Model) refresh() tea.Cmd {
	src, timeout := m.Source, m.RefreshTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return RefreshDoneMsg{Err: src.Refresh(ctx)}
	}
}
