package ui

import (
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/zhubert/weft/internal/messages"
)

// IDLength is how many characters of an id the log shows.
const IDLength = 8

// FormatID renders id's unique prefix in style and the rest muted, showing
// at least length characters.
func FormatID(id messages.ID, style lipgloss.Style, length int) string {
	n := max(length, len(id.Prefix))
	n = min(n, len(id.Hex))
	rest := id.Hex[len(id.Prefix):n]
	return style.Render(id.Prefix) + IDRestStyle.Render(rest)
}

// FormatRefs renders a revision's bookmarks and tags. A local bookmark
// that differs from a remote is marked with '*'.
func FormatRefs(refs []messages.Ref, markUnpushed bool) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		name := r.DisplayName()
		switch r.Kind {
		case messages.RefTag:
			parts = append(parts, TagStyle.Render(name))
		case messages.RefRemoteBookmark:
			parts = append(parts, MutedStyle.Render(name))
		default:
			if markUnpushed && r.HasUnpushed {
				name += "*"
			}
			parts = append(parts, BookmarkStyle.Render(name))
		}
	}
	return strings.Join(parts, " ")
}

// FormatHeader renders a revision as one line of at most width cells.
func FormatHeader(h messages.RevHeader, width int, markUnpushed bool) string {
	parts := []string{
		FormatID(h.ID.Change, ChangeIDStyle, IDLength),
		FormatID(h.ID.Commit, CommitIDStyle, IDLength),
	}
	if h.Author.Email != "" {
		parts = append(parts, MutedStyle.Render(h.Author.Email))
	}
	if !h.Author.Timestamp.IsZero() {
		parts = append(parts, MutedStyle.Render(h.Author.Timestamp.Local().Format("2006-01-02 15:04")))
	}
	if refs := FormatRefs(h.Refs, markUnpushed); refs != "" {
		parts = append(parts, refs)
	}
	if h.HasConflict {
		parts = append(parts, ConflictStyle.Render("conflict"))
	}
	if summary := h.Summary(); summary != "" {
		parts = append(parts, TextStyle.Render(summary))
	} else {
		parts = append(parts, EmptyDescStyle.Render(EmptyDescription))
	}
	return TruncateStyled(strings.Join(parts, " "), width)
}

// TruncateStyled cuts a string holding escape sequences to width cells.
// A width of zero or less means no limit.
func TruncateStyled(s string, width int) string {
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

// Truncate cuts plain text to width cells, counting wide runes twice.
func Truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
