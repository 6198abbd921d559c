package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds every binding of the simulator view.
type keyMap struct {
	Toggle   key.Binding
	Reset    key.Binding
	Up       key.Binding
	Down     key.Binding
	Increase key.Binding
	Decrease key.Binding
	DampLess key.Binding
	DampMore key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Toggle:   key.NewBinding(key.WithKeys(" ", "s"), key.WithHelp("space", "start/stop")),
		Reset:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous node")),
		Down:     key.NewBinding(key.WithKeys("down", "j", "tab"), key.WithHelp("↓/j", "next node")),
		Increase: key.NewBinding(key.WithKeys("+", "=", "right", "l"), key.WithHelp("+", "increase node")),
		Decrease: key.NewBinding(key.WithKeys("-", "_", "left", "h"), key.WithHelp("-", "decrease node")),
		DampLess: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "damping -")),
		DampMore: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "damping +")),
		Faster:   key.NewBinding(key.WithKeys(">", "."), key.WithHelp(">", "faster")),
		Slower:   key.NewBinding(key.WithKeys("<", ","), key.WithHelp("<", "slower")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Increase, k.Decrease, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Reset, k.Quit},
		{k.Up, k.Down, k.Increase, k.Decrease},
		{k.DampLess, k.DampMore, k.Faster, k.Slower},
		{k.Help},
	}
}
