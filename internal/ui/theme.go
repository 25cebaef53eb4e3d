// Package ui renders weft's data for a terminal: log pages with their
// graph, revision headers and diffs, and an interactive log browser.
package ui

import (
	"sort"

	"charm.land/lipgloss/v2"
)

// Theme is the color palette used by every renderer.
type Theme struct {
	Name string

	Primary   string // change ids, selection
	Secondary string // commit ids
	Text      string
	TextMuted string
	Border    string

	WorkingCopy string
	Immutable   string
	Conflict    string
	Bookmark    string
	Tag         string

	DiffAdded   string
	DiffRemoved string
	DiffHeader  string
	DiffHunk    string

	// Chroma is the chroma style used for source lines in diffs.
	Chroma string
}

// ThemeName is a type for theme identifiers
type ThemeName string

// Available theme names
const (
	ThemeDarkPurple ThemeName = "dark-purple"
	ThemeNord       ThemeName = "nord"
	ThemeDracula    ThemeName = "dracula"
	ThemeGruvbox    ThemeName = "gruvbox"
	ThemeLight      ThemeName = "light"
)

// DefaultTheme is the theme used when the app config names none.
const DefaultTheme = ThemeDarkPurple

// BuiltinThemes contains all built-in themes
var BuiltinThemes = map[ThemeName]Theme{
	ThemeDarkPurple: {
		Name:        "Dark Purple",
		Primary:     "#A78BFA",
		Secondary:   "#22D3EE",
		Text:        "#F9FAFB",
		TextMuted:   "#9CA3AF",
		Border:      "#374151",
		WorkingCopy: "#10B981",
		Immutable:   "#60A5FA",
		Conflict:    "#EF4444",
		Bookmark:    "#C084FC",
		Tag:         "#F59E0B",
		DiffAdded:   "#4ADE80",
		DiffRemoved: "#F87171",
		DiffHeader:  "#60A5FA",
		DiffHunk:    "#C084FC",
		Chroma:      "monokai",
	},
	ThemeNord: {
		Name:        "Nord",
		Primary:     "#88C0D0",
		Secondary:   "#81A1C1",
		Text:        "#ECEFF4",
		TextMuted:   "#D8DEE9",
		Border:      "#4C566A",
		WorkingCopy: "#A3BE8C",
		Immutable:   "#5E81AC",
		Conflict:    "#BF616A",
		Bookmark:    "#B48EAD",
		Tag:         "#EBCB8B",
		DiffAdded:   "#A3BE8C",
		DiffRemoved: "#BF616A",
		DiffHeader:  "#81A1C1",
		DiffHunk:    "#B48EAD",
		Chroma:      "nord",
	},
	ThemeDracula: {
		Name:        "Dracula",
		Primary:     "#BD93F9",
		Secondary:   "#8BE9FD",
		Text:        "#F8F8F2",
		TextMuted:   "#6272A4",
		Border:      "#44475A",
		WorkingCopy: "#50FA7B",
		Immutable:   "#8BE9FD",
		Conflict:    "#FF5555",
		Bookmark:    "#FF79C6",
		Tag:         "#FFB86C",
		DiffAdded:   "#50FA7B",
		DiffRemoved: "#FF5555",
		DiffHeader:  "#8BE9FD",
		DiffHunk:    "#BD93F9",
		Chroma:      "dracula",
	},
	ThemeGruvbox: {
		Name:        "Gruvbox Dark",
		Primary:     "#FE8019",
		Secondary:   "#83A598",
		Text:        "#EBDBB2",
		TextMuted:   "#A89984",
		Border:      "#504945",
		WorkingCopy: "#B8BB26",
		Immutable:   "#83A598",
		Conflict:    "#FB4934",
		Bookmark:    "#D3869B",
		Tag:         "#FABD2F",
		DiffAdded:   "#B8BB26",
		DiffRemoved: "#FB4934",
		DiffHeader:  "#83A598",
		DiffHunk:    "#D3869B",
		Chroma:      "gruvbox",
	},
	ThemeLight: {
		Name:        "Light",
		Primary:     "#7C3AED",
		Secondary:   "#0891B2",
		Text:        "#1F2937",
		TextMuted:   "#6B7280",
		Border:      "#D1D5DB",
		WorkingCopy: "#059669",
		Immutable:   "#2563EB",
		Conflict:    "#DC2626",
		Bookmark:    "#9333EA",
		Tag:         "#D97706",
		DiffAdded:   "#16A34A",
		DiffRemoved: "#DC2626",
		DiffHeader:  "#2563EB",
		DiffHunk:    "#9333EA",
		Chroma:      "github",
	},
}

// ThemeNames returns the built-in theme names, sorted.
func ThemeNames() []ThemeName {
	names := make([]ThemeName, 0, len(BuiltinThemes))
	for name := range BuiltinThemes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// GetTheme returns a theme by name, defaulting to DarkPurple if not found
func GetTheme(name ThemeName) Theme {
	if theme, ok := BuiltinThemes[name]; ok {
		return theme
	}
	return BuiltinThemes[DefaultTheme]
}

// currentTheme holds the active theme
var currentTheme = BuiltinThemes[DefaultTheme]

// CurrentTheme returns the currently active theme
func CurrentTheme() Theme {
	return currentTheme
}

// SetTheme sets the active theme and regenerates all styles
func SetTheme(name ThemeName) {
	currentTheme = GetTheme(name)
	regenerateStyles()
}

// SetThemeByName sets the active theme by string name. An empty name
// keeps the current theme.
func SetThemeByName(name string) {
	if name == "" {
		return
	}
	SetTheme(ThemeName(name))
}

// regenerateStyles rebuilds every style from the current theme.
func regenerateStyles() {
	t := currentTheme

	ChangeIDStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Primary)).Bold(true)
	CommitIDStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Secondary))
	IDRestStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.TextMuted))
	TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text))
	MutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.TextMuted))
	EmptyDescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.TextMuted)).Italic(true)
	BookmarkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Bookmark))
	TagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Tag))
	WorkingCopyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.WorkingCopy)).Bold(true)
	ImmutableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Immutable))
	ConflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Conflict)).Bold(true)
	GraphStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Border))

	SelectedStyle = lipgloss.NewStyle().Reverse(true)

	DiffAddedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.DiffAdded))
	DiffRemovedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.DiffRemoved))
	DiffHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.DiffHeader)).Bold(true)
	DiffHunkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.DiffHunk))

	FooterKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Secondary)).Bold(true)
	FooterDescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.TextMuted))
	StatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)).Background(lipgloss.Color(t.Border)).Padding(0, 1)
	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Conflict))
}
