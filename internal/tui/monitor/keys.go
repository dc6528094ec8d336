package monitor

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit         key.Binding
	NextPanel    key.Binding
	PrevPanel    key.Binding
	NextCategory key.Binding
	PrevCategory key.Binding
	Up           key.Binding
	Down         key.Binding
	Refresh      key.Binding
	Help         key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		NextPanel:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch panel")),
		PrevPanel:    key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous panel")),
		NextCategory: key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("←→", "category")),
		PrevCategory: key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("←→", "category")),
		Up:           key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑↓", "scroll")),
		Down:         key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("↑↓", "scroll")),
		Refresh:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "pull")),
		Help:         key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	}
}

// footerBindings are the bindings listed in the footer, in order.
func (k keyMap) footerBindings() []key.Binding {
	return []key.Binding{k.Quit, k.NextPanel, k.NextCategory, k.Down, k.Refresh, k.Help}
}
