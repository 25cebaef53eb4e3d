package ui

import "charm.land/lipgloss/v2"

// Styles are rebuilt by SetTheme.
var (
	ChangeIDStyle    lipgloss.Style
	CommitIDStyle    lipgloss.Style
	IDRestStyle      lipgloss.Style
	TextStyle        lipgloss.Style
	MutedStyle       lipgloss.Style
	EmptyDescStyle   lipgloss.Style
	BookmarkStyle    lipgloss.Style
	TagStyle         lipgloss.Style
	WorkingCopyStyle lipgloss.Style
	ImmutableStyle   lipgloss.Style
	ConflictStyle    lipgloss.Style
	GraphStyle       lipgloss.Style
	SelectedStyle    lipgloss.Style

	DiffAddedStyle   lipgloss.Style
	DiffRemovedStyle lipgloss.Style
	DiffHeaderStyle  lipgloss.Style
	DiffHunkStyle    lipgloss.Style

	FooterKeyStyle  lipgloss.Style
	FooterDescStyle lipgloss.Style
	StatusStyle     lipgloss.Style
	ErrorStyle      lipgloss.Style
)

func init() {
	regenerateStyles()
}

// Graph glyphs.
const (
	GlyphWorkingCopy = "@"
	GlyphImmutable   = "◆"
	GlyphConflict    = "×"
	GlyphRevision    = "○"
	GlyphEdge        = "│"
	GlyphIndirect    = "╎"
	GlyphMissing     = "~"
)

// EmptyDescription is shown for revisions without a description.
const EmptyDescription = "(no description set)"
