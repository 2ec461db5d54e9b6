package chat

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the chat key bindings.
type KeyMap struct {
	Send      key.Binding
	Interrupt key.Binding
	Quit      key.Binding
	AgentPane key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Interrupt: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "interrupt"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
		AgentPane: key.NewBinding(
			key.WithKeys("ctrl+a"),
			key.WithHelp("ctrl+a", "toggle agent pane"),
		),
	}
}
