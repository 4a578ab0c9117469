package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the terminal dashboard.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	// Login form.
	NextField key.Binding
	Submit    key.Binding

	// Gallery.
	Search   key.Binding // Focus the search box.
	Upload   key.Binding // Open the upload prompt.
	Download key.Binding // Save the selected image.
	Refresh  key.Binding
	Logout   key.Binding

	Cancel key.Binding // Leave the search box or prompt.
	Quit   key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	NextField: key.NewBinding(
		key.WithKeys("tab", "shift+tab"),
		key.WithHelp("tab", "next field"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "submit"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Upload: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "upload"),
	),
	Download: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "download"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Logout: key.NewBinding(
		key.WithKeys("L"),
		key.WithHelp("L", "sign out"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// galleryHelp adapts the gallery bindings to help.KeyMap.
type galleryHelp KeyMap

func (k galleryHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Search, k.Upload, k.Download, k.Refresh, k.Logout, k.Quit}
}

func (k galleryHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Cancel}}
}
