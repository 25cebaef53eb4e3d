package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"github.com/zhubert/weft/internal/messages"
)

func TestRenderHunk(t *testing.T) {
	h := messages.ChangeHunk{
		Location: messages.HunkLocation{
			FromFile: messages.FileRange{Start: 1, Len: 2},
			ToFile:   messages.FileRange{Start: 1, Len: 2},
		},
		Lines: []string{" keep\n", "-old\n", "+new\n"},
	}
	got := RenderHunk(h, "notes.unknownext")
	want := []string{"@@ -1,2 +1,2 @@", " keep", "-old", "+new"}
	if len(got) != len(want) {
		t.Fatalf("RenderHunk() = %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if s := ansi.Strip(got[i]); s != want[i] {
			t.Errorf("line %d = %q, want %q", i, s, want[i])
		}
	}
}

func TestRenderHunkHighlightsKnownLanguages(t *testing.T) {
	h := messages.ChangeHunk{Lines: []string{"+package main\n"}}
	got := RenderHunk(h, "main.go")
	if ansi.Strip(got[1]) != "+package main" {
		t.Errorf("line = %q, want +package main", ansi.Strip(got[1]))
	}
	if got[1] == ansi.Strip(got[1]) {
		t.Error("Go source was not highlighted")
	}
}

func TestRenderRevisions(t *testing.T) {
	if got := ansi.Strip(RenderRevisions(&messages.RevsResult{Kind: messages.RevsNotFound}, 80)); got != "revision not found" {
		t.Errorf("not found = %q", got)
	}

	res := &messages.RevsResult{
		Kind:    messages.RevsDetail,
		Headers: []messages.RevHeader{header("k", "add file\n\nwith a body")},
		Parents: []messages.RevHeader{header("p", "parent")},
		Changes: []messages.RevChange{
			{
				Kind: messages.ChangeAdded,
				Path: messages.TreePath{RepoPath: "dir/a.txt", RelativePath: "dir/a.txt"},
				Hunks: []messages.ChangeHunk{{
					Location: messages.HunkLocation{ToFile: messages.FileRange{Start: 1, Len: 1}},
					Lines:    []string{"+hello\n"},
				}},
			},
			{
				Kind:        messages.ChangeModified,
				Path:        messages.TreePath{RepoPath: "b.txt", RelativePath: "b.txt"},
				HasConflict: true,
			},
		},
		ConflictingFiles: []messages.RevConflict{{Path: messages.TreePath{RepoPath: "b.txt", RelativePath: "b.txt"}}},
	}
	got := ansi.Strip(RenderRevisions(res, 0))
	for _, want := range []string{"with a body", "Parents:", "parent", "A dir/a.txt", "+hello", "M b.txt (conflict)", "Conflicts:"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderRevisions() missing %q in:\n%s", want, got)
		}
	}
}
