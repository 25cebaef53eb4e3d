package keys

import "testing"

// TestKeyStringValues verifies that all key constants produce the expected
// string representations. This acts as a safety net if Bubble Tea ever changes
// its key string format.
func TestKeyStringValues(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Up", Up, "up"},
		{"Down", Down, "down"},
		{"Home", Home, "home"},
		{"End", End, "end"},
		{"PgUp", PgUp, "pgup"},
		{"PgDown", PgDown, "pgdown"},
		{"Enter", Enter, "enter"},
		{"Escape", Escape, "esc"},
		{"CtrlC", CtrlC, "ctrl+c"},
		{"CtrlD", CtrlD, "ctrl+d"},
		{"CtrlU", CtrlU, "ctrl+u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestBindingMatches(t *testing.T) {
	tests := []struct {
		binding Binding
		key     string
		want    bool
	}{
		{SelectDown, "j", true},
		{SelectDown, "down", true},
		{SelectDown, "k", false},
		{Quit, "ctrl+c", true},
		{CopyChange, "Y", false},
		{CopyCommit, "Y", true},
	}
	for _, tt := range tests {
		if got := tt.binding.Matches(tt.key); got != tt.want {
			t.Errorf("%s.Matches(%q) = %v, want %v", tt.binding.Help, tt.key, got, tt.want)
		}
	}
}

func TestBindingsDoNotOverlap(t *testing.T) {
	all := []Binding{SelectUp, SelectDown, PageUp, PageDown, First, Last, Show, Back, CopyChange, CopyCommit, Quit}
	seen := map[string]string{}
	for _, b := range all {
		for _, k := range b.Keys {
			if prev, ok := seen[k]; ok {
				t.Errorf("key %q bound to both %q and %q", k, prev, b.Help)
			}
			seen[k] = b.Help
		}
	}
}
