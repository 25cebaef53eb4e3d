package engine

import (
	"bytes"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	conflictStart = "<<<<<<< "
	conflictBase  = "||||||| "
	conflictSep   = "=======\n"
	conflictEnd   = ">>>>>>> "
)

// SplitLines splits content into lines, each keeping its trailing newline.
// A final line without a newline is kept as is.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	s := string(content)
	var lines []string
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) []byte {
	var b bytes.Buffer
	for _, l := range lines {
		b.WriteString(l)
	}
	return b.Bytes()
}

// lineChange replaces base[start:end] with lines.
type lineChange struct {
	start, end int
	lines      []string
}

func lineChanges(base, side []string) []lineChange {
	var out []lineChange
	m := difflib.NewMatcher(base, side)
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		out = append(out, lineChange{start: op.I1, end: op.I2, lines: side[op.J1:op.J2]})
	}
	return out
}

func applyLineChanges(base []string, lo, hi int, changes []lineChange) []string {
	var out []string
	cursor := lo
	for _, c := range changes {
		out = append(out, base[cursor:c.start]...)
		out = append(out, c.lines...)
		cursor = c.end
	}
	return append(out, base[cursor:hi]...)
}

func withNewline(lines []string) []string {
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		lines = slices.Clone(lines)
		lines[n-1] += "\n"
	}
	return lines
}

// MergeLines performs a three-way merge of text. It returns the merged
// content and whether conflict markers were written.
func MergeLines(base, ours, theirs []byte) ([]byte, bool) {
	if bytes.Equal(ours, theirs) || bytes.Equal(base, theirs) {
		return ours, false
	}
	if bytes.Equal(base, ours) {
		return theirs, false
	}

	b, o, t := SplitLines(base), SplitLines(ours), SplitLines(theirs)
	oc, tc := lineChanges(b, o), lineChanges(b, t)

	var out []string
	conflicted := false
	pos, i, j := 0, 0, 0
	for i < len(oc) || j < len(tc) {
		var lo, hi int
		if j >= len(tc) || (i < len(oc) && oc[i].start <= tc[j].start) {
			lo, hi = oc[i].start, oc[i].end
		} else {
			lo, hi = tc[j].start, tc[j].end
		}
		i0, j0 := i, j
		for {
			grew := false
			for i < len(oc) && oc[i].start <= hi {
				hi = max(hi, oc[i].end)
				i++
				grew = true
			}
			for j < len(tc) && tc[j].start <= hi {
				hi = max(hi, tc[j].end)
				j++
				grew = true
			}
			if !grew {
				break
			}
		}

		out = append(out, b[pos:lo]...)
		ourSide := oc[i0:i]
		theirSide := tc[j0:j]
		switch {
		case len(theirSide) == 0:
			out = append(out, applyLineChanges(b, lo, hi, ourSide)...)
		case len(ourSide) == 0:
			out = append(out, applyLineChanges(b, lo, hi, theirSide)...)
		default:
			ov := applyLineChanges(b, lo, hi, ourSide)
			tv := applyLineChanges(b, lo, hi, theirSide)
			if slices.Equal(ov, tv) {
				out = append(out, ov...)
				break
			}
			conflicted = true
			out = append(out, conflictStart+"ours\n")
			out = append(out, withNewline(ov)...)
			out = append(out, conflictBase+"base\n")
			out = append(out, withNewline(b[lo:hi])...)
			out = append(out, conflictSep)
			out = append(out, withNewline(tv)...)
			out = append(out, conflictEnd+"theirs\n")
		}
		pos = hi
	}
	out = append(out, b[pos:]...)
	return JoinLines(out), conflicted
}

// HasConflictMarkers reports whether content contains a conflict block.
func HasConflictMarkers(content []byte) bool {
	for _, l := range SplitLines(content) {
		if strings.HasPrefix(l, conflictStart) {
			return true
		}
	}
	return false
}

// MergeTrees merges the changes from base to theirs into ours.
func MergeTrees(store Store, base, ours, theirs TreeID) (TreeID, error) {
	if ours == theirs || base == theirs {
		return ours, nil
	}
	if base == ours {
		return theirs, nil
	}
	bt, err := store.ReadTree(base)
	if err != nil {
		return "", err
	}
	ot, err := store.ReadTree(ours)
	if err != nil {
		return "", err
	}
	tt, err := store.ReadTree(theirs)
	if err != nil {
		return "", err
	}

	out := ot.Clone()
	paths := map[string]bool{}
	for p := range bt.Entries {
		paths[p] = true
	}
	for p := range tt.Entries {
		paths[p] = true
	}
	for p := range ot.Entries {
		paths[p] = true
	}
	for path := range paths {
		be, bok := bt.Entries[path]
		oe, ook := ot.Entries[path]
		te, tok := tt.Entries[path]
		sameOT := ook == tok && oe == te
		sameBT := bok == tok && be == te
		sameBO := bok == ook && be == oe
		switch {
		case sameOT, sameBT:
			continue
		case sameBO:
			if tok {
				out.Entries[path] = te
			} else {
				delete(out.Entries, path)
			}
			continue
		}

		var bc, oc, tc []byte
		if bok {
			if bc, err = store.ReadBlob(be.Blob); err != nil {
				return "", err
			}
		}
		if ook {
			if oc, err = store.ReadBlob(oe.Blob); err != nil {
				return "", err
			}
		}
		if tok {
			if tc, err = store.ReadBlob(te.Blob); err != nil {
				return "", err
			}
		}
		merged, conflicted := MergeLines(bc, oc, tc)
		if !ook && !tok {
			delete(out.Entries, path)
			continue
		}
		if (!ook || !tok) && !conflicted && len(merged) == 0 {
			delete(out.Entries, path)
			continue
		}
		if !ook || !tok {
			// One side deleted the file while the other changed it.
			conflicted = true
		}
		blob, err := store.WriteBlob(merged)
		if err != nil {
			return "", err
		}
		exec := oe.Executable
		if !ook {
			exec = te.Executable
		}
		out.Entries[path] = TreeEntry{Blob: blob, Executable: exec, Conflict: conflicted || HasConflictMarkers(merged)}
	}
	return store.WriteTree(out)
}
