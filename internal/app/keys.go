package app

import (
	"github.com/charmbracelet/bubbles/key"

	helpview "github.com/dvangennip/web-remote-for-OBS/internal/views/help"
)

// sceneKeys are the shortcut keys of the first ten scenes.
const sceneKeys = "1234567890"

// forceKeys are sceneKeys with shift held on a US layout; they put the
// scene on program even in studio mode.
const forceKeys = "!@#$%^&*()"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Enter      key.Binding
	Tab        key.Binding
	Scene      key.Binding
	ForceScene key.Binding
	Transition key.Binding
	StudioMode key.Binding
	Layout     key.Binding

	Mute       key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Visibility key.Binding
	Toggle     key.Binding
	Increase   key.Binding
	Decrease   key.Binding
	Track      key.Binding

	Stream     key.Binding
	Record     key.Binding
	Pause      key.Binding
	VirtualCam key.Binding
	Text       key.Binding

	Connect    key.Binding
	Disconnect key.Binding
	Dashboard  key.Binding
	Debug      key.Binding
	Help       key.Binding
	Resync     key.Binding
	Escape     key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select scene / filters"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "scenes / mixer"),
		),
		Scene: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9", "0"),
			key.WithHelp("1-0", "select scene"),
		),
		ForceScene: key.NewBinding(
			key.WithKeys("!", "@", "#", "$", "%", "^", "&", "*", "(", ")"),
			key.WithHelp("shift+1-0", "scene to program"),
		),
		Transition: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "transition"),
		),
		StudioMode: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "studio mode"),
		),
		Layout: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "full scene list"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "volume up"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "volume down"),
		),
		Visibility: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "show / hide source"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "filter on / off"),
		),
		Increase: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "next value"),
		),
		Decrease: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "previous value"),
		),
		Track: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6"),
			key.WithHelp("1-6", "toggle track"),
		),
		Stream: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "start / stop stream"),
		),
		Record: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "start / stop recording"),
		),
		Pause: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "pause recording"),
		),
		VirtualCam: key.NewBinding(
			key.WithKeys("V"),
			key.WithHelp("V", "virtual camera"),
		),
		Text: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "set text source"),
		),
		Connect: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "connection"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "disconnect"),
		),
		Dashboard: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "stats"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "debug log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Resync: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resync"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap for the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Scene, k.Transition, k.Mute, k.Enter, k.Connect, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Tab, k.Enter, k.Scene, k.ForceScene, k.Transition, k.StudioMode, k.Layout},
		{k.Mute, k.VolumeUp, k.VolumeDown, k.Visibility},
		{k.Toggle, k.Increase, k.Decrease, k.Track},
		{k.Stream, k.Record, k.Pause, k.VirtualCam, k.Text},
		{k.Connect, k.Disconnect, k.Dashboard, k.Debug, k.Help, k.Resync, k.Escape, k.Quit},
	}
}

// Sections groups the bindings for the help overlay.
func (k KeyMap) Sections() []helpview.Section {
	titles := []string{"Scenes", "Audio mixer", "Filter panel", "Outputs", "General"}
	groups := k.FullHelp()
	sections := make([]helpview.Section, 0, len(groups))
	for i, group := range groups {
		s := helpview.Section{Title: titles[i]}
		for _, b := range group {
			h := b.Help()
			s.Keys = append(s.Keys, [2]string{h.Key, h.Desc})
		}
		sections = append(sections, s)
	}
	return sections
}
