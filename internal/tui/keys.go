package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Record  key.Binding
	Confirm key.Binding
	Play    key.Binding
	Up      key.Binding
	Down    key.Binding
	Less    key.Binding
	More    key.Binding
	Shape   key.Binding
	Clear   key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Record: key.NewBinding(
			key.WithKeys(" ", "space"),
			key.WithHelp("space", "record/stop"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Play: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "play/pause"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/↓", "select label"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
		),
		Less: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/→", "adjust"),
		),
		More: key.NewBinding(
			key.WithKeys("right", "l"),
		),
		Shape: key.NewBinding(
			key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("0-9", "shape"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear data"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Record, k.Confirm, k.Play, k.Up, k.Less, k.Shape, k.Clear, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Record, k.Confirm, k.Play},
		{k.Up, k.Less, k.Shape},
		{k.Clear, k.Quit},
	}
}
