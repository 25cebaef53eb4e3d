package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ChangeKind classifies a file change between two trees.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeDeleted:
		return "deleted"
	default:
		return "modified"
	}
}

// FileChange is one path that differs between two trees.
type FileChange struct {
	Path   string
	Kind   ChangeKind
	Before *TreeEntry
	After  *TreeEntry
}

// DiffTrees lists the paths that differ, sorted by path.
func DiffTrees(before, after *Tree) []FileChange {
	var out []FileChange
	for path, b := range before.Entries {
		a, ok := after.Entries[path]
		switch {
		case !ok:
			out = append(out, FileChange{Path: path, Kind: ChangeDeleted, Before: &b})
		case a != b:
			out = append(out, FileChange{Path: path, Kind: ChangeModified, Before: &b, After: &a})
		}
	}
	for path, a := range after.Entries {
		if _, ok := before.Entries[path]; !ok {
			out = append(out, FileChange{Path: path, Kind: ChangeAdded, After: &a})
		}
	}
	slices.SortFunc(out, func(x, y FileChange) int { return strings.Compare(x.Path, y.Path) })
	return out
}

// HunkRange is a span of lines. Start is 1-based; for an empty span it is the
// line number the span would begin at.
type HunkRange struct {
	Start int `json:"start"`
	Len   int `json:"len"`
}

// Hunk is one region of a line diff. Each line carries a one-character
// prefix (' ', '-' or '+') followed by the line including its newline.
type Hunk struct {
	From  HunkRange `json:"from_file"`
	To    HunkRange `json:"to_file"`
	Lines []string  `json:"lines"`
}

// Header formats the hunk range the way unified diffs do.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.From.Start, h.From.Len, h.To.Start, h.To.Len)
}

// Sides returns the before and after line content of the hunk.
func (h Hunk) Sides() (before, after []string) {
	for _, l := range h.Lines {
		if l == "" {
			continue
		}
		switch l[0] {
		case ' ':
			before = append(before, l[1:])
			after = append(after, l[1:])
		case '-':
			before = append(before, l[1:])
		case '+':
			after = append(after, l[1:])
		}
	}
	return before, after
}

// Reverse returns the hunk that undoes h.
func (h Hunk) Reverse() Hunk {
	lines := make([]string, len(h.Lines))
	for i, l := range h.Lines {
		switch {
		case strings.HasPrefix(l, "-"):
			lines[i] = "+" + l[1:]
		case strings.HasPrefix(l, "+"):
			lines[i] = "-" + l[1:]
		default:
			lines[i] = l
		}
	}
	return Hunk{From: h.To, To: h.From, Lines: lines}
}

// DiffHunks computes the hunks turning before into after with the given
// number of context lines.
func DiffHunks(before, after []byte, context int) []Hunk {
	a, b := SplitLines(before), SplitLines(after)
	m := difflib.NewMatcher(a, b)
	var hunks []Hunk
	for _, group := range m.GetGroupedOpCodes(context) {
		first, last := group[0], group[len(group)-1]
		h := Hunk{
			From: HunkRange{Start: first.I1 + 1, Len: last.I2 - first.I1},
			To:   HunkRange{Start: first.J1 + 1, Len: last.J2 - first.J1},
		}
		for _, op := range group {
			switch op.Tag {
			case 'e':
				for _, l := range a[op.I1:op.I2] {
					h.Lines = append(h.Lines, " "+l)
				}
			case 'd':
				for _, l := range a[op.I1:op.I2] {
					h.Lines = append(h.Lines, "-"+l)
				}
			case 'i':
				for _, l := range b[op.J1:op.J2] {
					h.Lines = append(h.Lines, "+"+l)
				}
			case 'r':
				for _, l := range a[op.I1:op.I2] {
					h.Lines = append(h.Lines, "-"+l)
				}
				for _, l := range b[op.J1:op.J2] {
					h.Lines = append(h.Lines, "+"+l)
				}
			}
		}
		hunks = append(hunks, h)
	}
	return hunks
}

// ErrHunkMismatch is returned when a hunk's expected lines are not present.
var ErrHunkMismatch = fmt.Errorf("hunk does not match content")

// ApplyHunk applies h to content. The hunk's context and removed lines must
// match content exactly at h.From.
func ApplyHunk(content []byte, h Hunk) ([]byte, error) {
	lines := SplitLines(content)
	before, after := h.Sides()
	if len(before) != h.From.Len {
		return nil, fmt.Errorf("%w: range says %d lines, hunk has %d", ErrHunkMismatch, h.From.Len, len(before))
	}
	start := h.From.Start - 1
	if start < 0 || start+len(before) > len(lines) {
		return nil, fmt.Errorf("%w: lines %d-%d out of range", ErrHunkMismatch, h.From.Start, h.From.Start+h.From.Len)
	}
	if !slices.Equal(lines[start:start+len(before)], before) {
		return nil, fmt.Errorf("%w at line %d", ErrHunkMismatch, h.From.Start)
	}
	out := make([]string, 0, len(lines)-len(before)+len(after))
	out = append(out, lines[:start]...)
	out = append(out, after...)
	out = append(out, lines[start+len(before):]...)
	return JoinLines(out), nil
}

// LineRange returns lines [r.Start, r.Start+r.Len) of content, or an error
// if the range is out of bounds.
func LineRange(content []byte, r HunkRange) ([]string, error) {
	lines := SplitLines(content)
	start := r.Start - 1
	if start < 0 || start+r.Len > len(lines) {
		return nil, fmt.Errorf("%w: lines %d-%d out of range", ErrHunkMismatch, r.Start, r.Start+r.Len)
	}
	return lines[start : start+r.Len], nil
}

// SpliceLines replaces lines [r.Start, r.Start+r.Len) of content with repl.
func SpliceLines(content []byte, r HunkRange, repl []string) ([]byte, error) {
	lines := SplitLines(content)
	start := r.Start - 1
	if start < 0 || start+r.Len > len(lines) {
		return nil, fmt.Errorf("%w: lines %d-%d out of range", ErrHunkMismatch, r.Start, r.Start+r.Len)
	}
	out := make([]string, 0, len(lines)-r.Len+len(repl))
	out = append(out, lines[:start]...)
	out = append(out, repl...)
	out = append(out, lines[start+r.Len:]...)
	return JoinLines(out), nil
}
