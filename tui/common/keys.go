package common

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines shared key bindings across all views.
type KeyMap struct {
	Quit        key.Binding
	ForceQuit   key.Binding
	ToggleHints key.Binding
	Up          key.Binding
	Down        key.Binding
	Enter       key.Binding
	Back        key.Binding
	NewEditor   key.Binding // p: compose via $EDITOR
	NewInline   key.Binding // P: compose via inline textarea
	Edit        key.Binding // e: edit own post (buffer)
	EditInline  key.Binding // E: edit own post (inline)
	Delete      key.Binding // d: delete own post
	AttachPhoto key.Binding // a: attach or replace photo
	RemovePhoto key.Binding // x: remove photo
	Open        key.Binding // o: open photo in browser
	Profile     key.Binding // u: own profile
	Home        key.Binding // H: global timeline
	Rename      key.Binding // n: rename (profile)
	Avatar      key.Binding // v: change avatar (profile)
	SignOut     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
		ToggleHints: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "keys"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		NewEditor: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "post ($EDITOR)"),
		),
		NewInline: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "post (inline)"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit (buffer)"),
		),
		EditInline: key.NewBinding(
			key.WithKeys("E"),
			key.WithHelp("E", "edit (inline)"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		AttachPhoto: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "photo"),
		),
		RemovePhoto: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "remove photo"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open photo"),
		),
		Profile: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "profile"),
		),
		Home: key.NewBinding(
			key.WithKeys("H"),
			key.WithHelp("H", "timeline"),
		),
		Rename: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "rename"),
		),
		Avatar: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "avatar"),
		),
		SignOut: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "sign out"),
		),
	}
}
