package tui

import "github.com/charmbracelet/bubbles/key"

func binding(help string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(keys[0], help))
}

type keyMap struct {
	Pause    key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Forward  key.Binding
	Back     key.Binding
	TuneUp   key.Binding
	TuneDown key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Pause:    binding("pause", "space", " ", "p"),
		Faster:   binding("faster", "+", "="),
		Slower:   binding("slower", "-", "_"),
		Forward:  binding("forward", "up", "k"),
		Back:     binding("back", "down", "j"),
		TuneUp:   binding("transpose up", "right", "l"),
		TuneDown: binding("transpose down", "left", "h"),
		Help:     binding("help", "?"),
		Quit:     binding("quit", "q", "esc", "ctrl+c"),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Faster, k.Slower, k.Forward, k.Back, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Forward, k.Back},
		{k.Faster, k.Slower},
		{k.TuneUp, k.TuneDown},
		{k.Help, k.Quit},
	}
}
