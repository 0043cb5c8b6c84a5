package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keyboard bindings of the chat screen
type KeyMap struct {
	Send     key.Binding
	Stop     key.Binding
	New      key.Binding
	Focus    key.Binding
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Delete   key.Binding
	Rename   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Stop: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop"),
		),
		New: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "history"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Rename: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rename"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// inputHelp is shown while the message input has focus
type inputHelp struct{ k KeyMap }

func (h inputHelp) ShortHelp() []key.Binding {
	return []key.Binding{h.k.Send, h.k.Stop, h.k.New, h.k.Focus, h.k.Quit}
}

func (h inputHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{h.ShortHelp(), {h.k.PageUp, h.k.PageDown}}
}

// sidebarHelp is shown while the history list has focus
type sidebarHelp struct{ k KeyMap }

func (h sidebarHelp) ShortHelp() []key.Binding {
	return []key.Binding{h.k.Up, h.k.Down, h.k.Select, h.k.Rename, h.k.Delete, h.k.New, h.k.Quit}
}

func (h sidebarHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{h.ShortHelp()}
}
