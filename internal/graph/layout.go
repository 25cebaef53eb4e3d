// Package graph lays out a revset's commit graph as rows of columns and
// lines, one page at a time. QueryState carries the open edges between
// pages so a page never needs the rows before it.
package graph

import (
	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/logger"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/revset"
)

var log = logger.ComponentLogger("Graph")

// Session is what the layout needs from a workspace session.
type Session interface {
	Evaluate(expr string) (*revset.Result, error)
	Repo() *engine.ReadonlyRepo
	FormatHeader(c *engine.Commit, immutable revset.Set) (messages.RevHeader, error)
}

// LogStem is an edge that left an earlier row and has not reached its
// target yet.
type LogStem struct {
	Source messages.LogCoordinates
	Target engine.CommitID
	// Indirect edges skip commits outside the revset.
	Indirect bool
	// WasInserted is set when the stem took a column other than its
	// source's.
	WasInserted bool
	// KnownImmutable is set when the source is immutable, which makes
	// the target immutable too.
	KnownImmutable bool
	// Missing stems point at a parent outside the revset. They are closed
	// by the next row.
	Missing bool
}

// QueryState is the cursor of one log query.
type QueryState struct {
	Revset   string
	PageSize int
	NextRow  int
	// Stems is indexed by column; nil is a free column.
	Stems []*LogStem
}

// NewQueryState starts a query at its first row.
func NewQueryState(expr string, pageSize int) *QueryState {
	return &QueryState{Revset: expr, PageSize: max(pageSize, 1)}
}

// NextPage evaluates the revset again, skips the rows already emitted and
// lays out the next page.
func (q *QueryState) NextPage(s Session) (messages.LogPage, error) {
	res, err := s.Evaluate(q.Revset)
	if err != nil {
		return messages.LogPage{}, err
	}
	it := res.Graph()
	it.Skip(q.NextRow)

	l := &layout{q: q, s: s}
	var rows []messages.LogRow
	extra := false
	for {
		if len(rows) >= q.PageSize {
			// A missing edge left by the last row is closed by one more.
			if extra || !q.hasMissing() {
				break
			}
			extra = true
		}
		node, ok := it.Next()
		if !ok {
			break
		}
		r, err := l.row(node)
		if err != nil {
			return messages.LogPage{}, err
		}
		rows = append(rows, r)
		q.NextRow++
	}
	if !it.HasNext() && len(rows) > 0 {
		last := &rows[len(rows)-1]
		last.Lines = append(last.Lines, q.closeMissing(q.NextRow)...)
		q.trim()
	}
	log.Debug("laid out page", "revset", q.Revset, "rows", len(rows), "next_row", q.NextRow, "stems", len(q.Stems))
	return messages.LogPage{Rows: rows, HasMore: it.HasNext()}, nil
}

func (q *QueryState) hasMissing() bool {
	for _, st := range q.Stems {
		if st != nil && st.Missing {
			return true
		}
	}
	return false
}

// findStem returns the column of the stem waiting for id, or -1.
func (q *QueryState) findStem(id engine.CommitID) int {
	for i, st := range q.Stems {
		if st != nil && !st.Missing && st.Target == id {
			return i
		}
	}
	return -1
}

// freeColumn returns the first free column, appending one if needed.
func (q *QueryState) freeColumn() int {
	for i, st := range q.Stems {
		if st == nil {
			return i
		}
	}
	return len(q.Stems)
}

func (q *QueryState) set(col int, st *LogStem) {
	for len(q.Stems) <= col {
		q.Stems = append(q.Stems, nil)
	}
	q.Stems[col] = st
}

// trim drops free columns from the right edge.
func (q *QueryState) trim() {
	for len(q.Stems) > 0 && q.Stems[len(q.Stems)-1] == nil {
		q.Stems = q.Stems[:len(q.Stems)-1]
	}
}

// closeMissing ends every missing stem at row and frees its column.
func (q *QueryState) closeMissing(row int) []messages.LogLine {
	var lines []messages.LogLine
	for col, st := range q.Stems {
		if st == nil || !st.Missing {
			continue
		}
		lines = append(lines, messages.LogLine{
			Kind:     messages.LineToMissing,
			Source:   st.Source,
			Target:   messages.LogCoordinates{Column: col, Row: row},
			Indirect: st.Indirect,
		})
		q.Stems[col] = nil
	}
	return lines
}

// layout holds what one page computes at most once.
type layout struct {
	q         *QueryState
	s         Session
	immutable revset.Set
}

func (l *layout) isImmutable(id engine.CommitID) (bool, error) {
	if l.immutable == nil {
		res, err := l.s.Evaluate("::immutable_heads()")
		if err != nil {
			return false, err
		}
		l.immutable = res.Set()
	}
	return l.immutable[id], nil
}

func (l *layout) row(node engine.GraphNode) (messages.LogRow, error) {
	q := l.q
	row := q.NextRow
	widthBefore := len(q.Stems)

	column := q.findStem(node.ID)
	if column < 0 {
		column = q.freeColumn()
	}
	here := messages.LogCoordinates{Column: column, Row: row}

	lines := q.closeMissing(row)

	knownImmutable := false
	if column < len(q.Stems) {
		if st := q.Stems[column]; st != nil {
			kind := messages.LineFromNode
			if st.WasInserted {
				kind = messages.LineToNode
			}
			lines = append(lines, messages.LogLine{Kind: kind, Source: st.Source, Target: here, Indirect: st.Indirect})
			knownImmutable = st.KnownImmutable
		}
		q.Stems[column] = nil
	}
	q.trim()

	c, err := l.s.Repo().Commit(node.ID)
	if err != nil {
		return messages.LogRow{}, err
	}
	header, err := l.s.FormatHeader(c, nil)
	if err != nil {
		return messages.LogRow{}, err
	}
	header.IsImmutable = knownImmutable
	if !knownImmutable {
		if header.IsImmutable, err = l.isImmutable(node.ID); err != nil {
			return messages.LogRow{}, err
		}
	}

	root := engine.RootCommitID
	first := true
	for _, edge := range node.Edges {
		if edge.Type == engine.EdgeMissing {
			if edge.Target == root {
				continue
			}
			col := q.freeColumn()
			if first && (column >= len(q.Stems) || q.Stems[column] == nil) {
				col = column
			}
			first = false
			q.set(col, &LogStem{
				Source:         here,
				Target:         edge.Target,
				Indirect:       true,
				WasInserted:    col != column,
				KnownImmutable: header.IsImmutable,
				Missing:        true,
			})
			continue
		}

		indirect := edge.Type == engine.EdgeIndirect
		if slot := q.findStem(edge.Target); slot >= 0 {
			st := q.Stems[slot]
			st.KnownImmutable = st.KnownImmutable || header.IsImmutable
			lines = append(lines, messages.LogLine{
				Kind:     messages.LineToIntersection,
				Source:   here,
				Target:   messages.LogCoordinates{Column: slot, Row: row + 1},
				Indirect: indirect,
			})
			first = false
			continue
		}

		col := q.freeColumn()
		if first && (column >= len(q.Stems) || q.Stems[column] == nil) {
			col = column
		}
		first = false
		q.set(col, &LogStem{
			Source:         here,
			Target:         edge.Target,
			Indirect:       indirect,
			WasInserted:    col != column,
			KnownImmutable: header.IsImmutable,
		})
	}

	width := max(widthBefore, len(q.Stems), column+1)
	return messages.LogRow{
		Revision: header,
		Location: here,
		Padding:  width - column - 1,
		Lines:    lines,
	}, nil
}
