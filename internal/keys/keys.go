// Package keys provides string constants for Bubble Tea v2 key press events
// and the bindings of the log browser.
//
// These constants are derived from tea.KeyPressMsg{Code: tea.KeyXxx}.String()
// and are guaranteed to match the actual runtime values. Using these constants
// instead of hardcoded strings prevents typo bugs (e.g., "escape" vs "esc").
package keys

import tea "charm.land/bubbletea/v2"

// Navigation keys
var (
	Up     = tea.KeyPressMsg{Code: tea.KeyUp}.String()     // "up"
	Down   = tea.KeyPressMsg{Code: tea.KeyDown}.String()   // "down"
	Home   = tea.KeyPressMsg{Code: tea.KeyHome}.String()   // "home"
	End    = tea.KeyPressMsg{Code: tea.KeyEnd}.String()    // "end"
	PgUp   = tea.KeyPressMsg{Code: tea.KeyPgUp}.String()   // "pgup"
	PgDown = tea.KeyPressMsg{Code: tea.KeyPgDown}.String() // "pgdown"
)

// Action keys
var (
	Enter  = tea.KeyPressMsg{Code: tea.KeyEnter}.String()  // "enter"
	Escape = tea.KeyPressMsg{Code: tea.KeyEscape}.String() // "esc"
)

// Ctrl combinations
var (
	CtrlC = (tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl}).String() // "ctrl+c"
	CtrlD = (tea.KeyPressMsg{Code: 'd', Mod: tea.ModCtrl}).String() // "ctrl+d"
	CtrlU = (tea.KeyPressMsg{Code: 'u', Mod: tea.ModCtrl}).String() // "ctrl+u"
)

// Binding is one action of the log browser.
type Binding struct {
	Keys []string
	Help string
}

// Matches reports whether key triggers b.
func (b Binding) Matches(key string) bool {
	for _, k := range b.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Log browser bindings.
var (
	SelectUp   = Binding{Keys: []string{Up, "k"}, Help: "up"}
	SelectDown = Binding{Keys: []string{Down, "j"}, Help: "down"}
	PageUp     = Binding{Keys: []string{PgUp, CtrlU}, Help: "page up"}
	PageDown   = Binding{Keys: []string{PgDown, CtrlD}, Help: "page down"}
	First      = Binding{Keys: []string{Home, "g"}, Help: "first"}
	Last       = Binding{Keys: []string{End, "G"}, Help: "last"}
	Show       = Binding{Keys: []string{Enter}, Help: "show"}
	Back       = Binding{Keys: []string{Escape}, Help: "back"}
	CopyChange = Binding{Keys: []string{"y"}, Help: "copy change id"}
	CopyCommit = Binding{Keys: []string{"Y"}, Help: "copy commit id"}
	Quit       = Binding{Keys: []string{"q", CtrlC}, Help: "quit"}
)

// Footer lists the bindings shown in the browser's footer.
var Footer = []Binding{SelectUp, SelectDown, Show, CopyChange, Quit}
