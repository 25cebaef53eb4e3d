package ui

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/zhubert/weft/internal/messages"
)

// highlightLine colors one source line by the language of path. Files
// chroma cannot identify are returned unchanged.
func highlightLine(code, path string) string {
	lexer := lexers.Match(path)
	if lexer == nil {
		return code
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(currentTheme.Chroma)
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.ReplaceAll(buf.String(), "\n", "")
}

func changeMarker(kind messages.ChangeKind) string {
	switch kind {
	case messages.ChangeAdded:
		return "A"
	case messages.ChangeDeleted:
		return "D"
	default:
		return "M"
	}
}

// RenderHunk draws a hunk header and its lines.
func RenderHunk(h messages.ChangeHunk, path string) []string {
	loc := h.Location
	out := []string{DiffHunkStyle.Render(fmt.Sprintf("@@ -%d,%d +%d,%d @@",
		loc.FromFile.Start, loc.FromFile.Len, loc.ToFile.Start, loc.ToFile.Len))}
	for _, line := range h.Lines {
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			out = append(out, "")
			continue
		}
		sign, code := line[:1], line[1:]
		switch sign {
		case "+":
			out = append(out, DiffAddedStyle.Render(sign)+highlightLine(code, path))
		case "-":
			out = append(out, DiffRemovedStyle.Render(sign+code))
		default:
			out = append(out, " "+highlightLine(code, path))
		}
	}
	return out
}

// RenderRevisions draws the detail of a revision query: headers with full
// descriptions, parents, and the diff of every changed file.
func RenderRevisions(res *messages.RevsResult, width int) string {
	if res == nil || res.Kind == messages.RevsNotFound {
		return ErrorStyle.Render("revision not found")
	}
	var lines []string
	for _, h := range res.Headers {
		lines = append(lines, FormatHeader(h, width, false))
		desc := strings.TrimRight(h.Description, "\n")
		if desc == "" {
			lines = append(lines, "    "+EmptyDescStyle.Render(EmptyDescription))
		}
		for _, l := range strings.Split(desc, "\n") {
			if desc != "" {
				lines = append(lines, "    "+TextStyle.Render(l))
			}
		}
	}
	if len(res.Parents) > 0 {
		lines = append(lines, "", MutedStyle.Render("Parents:"))
		for _, p := range res.Parents {
			lines = append(lines, "  "+FormatHeader(p, width-2, false))
		}
	}
	for _, ch := range res.Changes {
		header := changeMarker(ch.Kind) + " " + ch.Path.RelativePath
		if ch.HasConflict {
			header += " " + ConflictStyle.Render("(conflict)")
		}
		lines = append(lines, "", DiffHeaderStyle.Render(header))
		for _, h := range ch.Hunks {
			lines = append(lines, RenderHunk(h, ch.Path.RepoPath)...)
		}
	}
	if len(res.ConflictingFiles) > 0 {
		lines = append(lines, "", ConflictStyle.Render("Conflicts:"))
		for _, c := range res.ConflictingFiles {
			lines = append(lines, "  "+c.Path.RelativePath)
		}
	}
	for i, l := range lines {
		lines[i] = TruncateStyled(l, width)
	}
	return strings.Join(lines, "\n")
}
