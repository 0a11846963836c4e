package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the bindings of the timeline screen.
type keyMap struct {
	Toggle      key.Binding
	Restart     key.Binding
	SeekBack    key.Binding
	SeekForward key.Binding
	Up          key.Binding
	Down        key.Binding
	MoveLeft    key.Binding
	MoveRight   key.Binding
	Place       key.Binding
	Remove      key.Binding
	RemoveTrack key.Binding
	Duration    key.Binding
	Open        key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "play/pause"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		SeekBack: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "seek -1s"),
		),
		SeekForward: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "seek +1s"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "select up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "select down"),
		),
		MoveLeft: key.NewBinding(
			key.WithKeys("shift+left", "H"),
			key.WithHelp("H", "move -1s"),
		),
		MoveRight: key.NewBinding(
			key.WithKeys("shift+right", "L"),
			key.WithHelp("L", "move +1s"),
		),
		Place: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("1-9", "place track"),
		),
		Remove: key.NewBinding(
			key.WithKeys("x", "delete"),
			key.WithHelp("x", "remove instance"),
		),
		RemoveTrack: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "remove track"),
		),
		Duration: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "duration"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "add file"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Restart, k.Place, k.Duration, k.Open, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Restart, k.SeekBack, k.SeekForward},
		{k.Up, k.Down, k.MoveLeft, k.MoveRight},
		{k.Place, k.Remove, k.RemoveTrack},
		{k.Duration, k.Open, k.Help, k.Quit},
	}
}
