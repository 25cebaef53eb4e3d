package ui

import (
	"strings"

	"github.com/zhubert/weft/internal/messages"
)

// GraphView accumulates the pages of one log query and draws them. Lines
// arrive with the row they end at, so rows are redrawn as pages arrive.
type GraphView struct {
	rows []messages.LogRow
	more bool
	// MarkUnpushed flags local bookmarks that differ from a remote.
	MarkUnpushed bool
}

// Append adds the next page.
func (g *GraphView) Append(page messages.LogPage) {
	g.rows = append(g.rows, page.Rows...)
	g.more = page.HasMore
}

// Reset drops every row, ready for a new query.
func (g *GraphView) Reset() {
	g.rows = nil
	g.more = false
}

// Len returns the number of rows loaded.
func (g *GraphView) Len() int { return len(g.rows) }

// HasMore reports whether the query has rows not loaded yet.
func (g *GraphView) HasMore() bool { return g.more }

// Row returns the i'th row.
func (g *GraphView) Row(i int) messages.LogRow { return g.rows[i] }

// columns is the graph width in cells of two characters.
func (g *GraphView) columns() int {
	n := 1
	for _, r := range g.rows {
		n = max(n, r.Location.Column+r.Padding+1)
		for _, l := range r.Lines {
			n = max(n, l.Target.Column+1, l.Source.Column+1)
		}
	}
	return n
}

// cells lays out the glyph of every column of every row. An edge runs
// down its target column between the rows it connects.
func (g *GraphView) cells() [][]string {
	cols := g.columns()
	grid := make([][]string, len(g.rows))
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	for _, r := range g.rows {
		for _, l := range r.Lines {
			glyph := GlyphEdge
			if l.Indirect {
				glyph = GlyphIndirect
			}
			for row := l.Source.Row + 1; row < l.Target.Row && row < len(grid); row++ {
				grid[row][l.Target.Column] = glyph
			}
			if l.Kind == messages.LineToMissing && l.Target.Row < len(grid) {
				grid[l.Target.Row][l.Target.Column] = GlyphMissing
			}
		}
	}
	for i, r := range g.rows {
		grid[i][r.Location.Column] = nodeGlyph(r.Revision)
	}
	return grid
}

func nodeGlyph(h messages.RevHeader) string {
	switch {
	case h.IsWorkingCopy:
		return WorkingCopyStyle.Render(GlyphWorkingCopy)
	case h.HasConflict:
		return ConflictStyle.Render(GlyphConflict)
	case h.IsImmutable:
		return ImmutableStyle.Render(GlyphImmutable)
	default:
		return TextStyle.Render(GlyphRevision)
	}
}

// Render draws one line per row, each at most width cells.
func (g *GraphView) Render(width int) []string {
	grid := g.cells()
	out := make([]string, len(g.rows))
	for i, r := range g.rows {
		var b strings.Builder
		for _, cell := range grid[i] {
			switch cell {
			case "":
				b.WriteString("  ")
			case GlyphEdge, GlyphIndirect, GlyphMissing:
				b.WriteString(GraphStyle.Render(cell) + " ")
			default:
				b.WriteString(cell + " ")
			}
		}
		b.WriteString(FormatHeader(r.Revision, 0, g.MarkUnpushed))
		out[i] = TruncateStyled(b.String(), width)
	}
	return out
}
