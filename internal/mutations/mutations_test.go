package mutations

import (
	"context"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/session"
)

func TestRegistry(t *testing.T) {
	types := Types()
	if len(types) != 22 {
		t.Errorf("len(Types()) = %d, want 22", len(types))
	}
	for _, typ := range types {
		m, err := Envelope{Type: typ}.Decode()
		if err != nil {
			t.Errorf("Decode(%s) error = %v", typ, err)
			continue
		}
		if m.Type() != typ {
			t.Errorf("Decode(%s).Type() = %s", typ, m.Type())
		}
	}
}

func TestDecode(t *testing.T) {
	m, err := Decode([]byte(`{"type":"describe_revision","mutation":{"new_description":"hello","reset_author":true}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := &DescribeRevision{NewDescription: "hello", ResetAuthor: true}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("Decode() = %+v, want %+v", m, want)
	}

	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	again, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode(Encode()) error = %v", err)
	}
	if !reflect.DeepEqual(again, want) {
		t.Errorf("Decode(Encode()) = %+v, want %+v", again, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown type", `{"type":"rewrite_history","mutation":{}}`},
		{"bad envelope", `{"type":`},
		{"bad body", `{"type":"abandon_revisions","mutation":{"ids":"nope"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, errors.KindInvalid) {
				t.Errorf("Decode() error = %v, want KindInvalid", err)
			}
		})
	}
}

type panicking struct{}

func (panicking) Type() string { return "panicking" }

func (panicking) Execute(context.Context, *session.WorkspaceSession, *Env) (messages.MutationResult, error) {
	panic("boom")
}

func TestRunRecoversPanic(t *testing.T) {
	got := Run(ctx, nil, nil, panicking{})
	if got.Kind != messages.ResultInternalError {
		t.Fatalf("Run() kind = %s, want %s", got.Kind, messages.ResultInternalError)
	}
	if !strings.Contains(got.Message, "boom") {
		t.Errorf("Run() message = %q, want it to mention the panic", got.Message)
	}
}

func TestResultFromError(t *testing.T) {
	tests := []struct {
		err     error
		want    messages.MutationResultKind
		message string
	}{
		{errors.ImmutableRevision("abc"), messages.ResultPreconditionError, "revision abc is immutable"},
		{errors.RevisionNotFound("abc"), messages.ResultPreconditionError, "revision abc not found"},
		{errors.AmbiguousRevision("abc", 2), messages.ResultPreconditionError, "revision abc resolved to 2 commits"},
		{errors.HunkMismatch("f.txt"), messages.ResultPreconditionError, "hunk no longer applies to f.txt"},
		{errors.E(errors.Op("x"), errors.KindIO, "disk full"), messages.ResultInternalError, "disk full"},
		{context.Canceled, messages.ResultInternalError, "context canceled"},
	}
	for _, tt := range tests {
		got := ResultFromError("test", tt.err)
		if got.Kind != tt.want || got.Message != tt.message {
			t.Errorf("ResultFromError(%v) = %s %q, want %s %q", tt.err, got.Kind, got.Message, tt.want, tt.message)
		}
	}
}

func TestAbandonReparentsChildren(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"p.txt": "p\n"})
	x := h.commit("X", map[string]string{"p.txt": "p\n", "x.txt": "x\n"}, p)
	h.commit("C1", map[string]string{"p.txt": "p\n", "x.txt": "x\n", "c1.txt": "1\n"}, x)
	h.commit("C2", map[string]string{"p.txt": "p\n", "x.txt": "x\n", "c2.txt": "2\n"}, x)
	h.finish()

	wantKind(t, run(t, s, &AbandonRevisions{IDs: []messages.RevID{revID(s, x)}}), messages.ResultUpdated)

	if findDesc(t, s, "X") != nil {
		t.Fatal("abandoned revision is still visible")
	}
	all, err := s.Evaluate("all()")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if slices.Contains(all.IDs(), x.ID) {
		t.Error("all() contains the abandoned revision")
	}
	for _, name := range []string{"C1", "C2"} {
		c := byDesc(t, s, name)
		if !slices.Equal(c.Parents, []engine.CommitID{p.ID}) {
			t.Errorf("%s parents = %v, want [%s]", name, c.Parents, p.ID.Short())
		}
		if got := fileContent(t, s, c, "x.txt"); got != "" {
			t.Errorf("%s x.txt = %q, want it gone with X", name, got)
		}
	}
}

func TestImmutableRevisionsAreRefused(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"p.txt": "p\n"})
	q := h.commit("Q", map[string]string{"q.txt": "q\n"})
	h.finish()
	wantKind(t, run(t, s, &CreateRef{ID: revID(s, p), Ref: messages.Ref{Kind: messages.RefTag, Name: "v1"}}), messages.ResultUpdated)
	p = byDesc(t, s, "P")
	hunk := hunkWith(t, s, p, "p.txt", "+p\n")
	pPath := messages.TreePath{RepoPath: "p.txt", RelativePath: "p.txt"}

	before := s.Operation().ID()
	tests := []struct {
		name string
		m    Mutation
	}{
		{"abandon", &AbandonRevisions{IDs: []messages.RevID{revID(s, p)}}},
		{"describe", &DescribeRevision{ID: revID(s, p), NewDescription: "changed"}},
		{"checkout", &CheckoutRevision{ID: revID(s, p)}},
		{"move revision", &MoveRevision{ID: revID(s, p), ParentIDs: []messages.RevID{revID(s, q)}}},
		{"move source", &MoveSource{ID: revID(s, p), ParentIDs: []messages.RevID{revID(s, q)}}},
		{"squash", &MoveChanges{FromID: revID(s, p), ToID: revID(s, q)}},
		{"move hunk", &MoveHunk{FromID: revID(s, p), ToID: revID(s, q), Path: pPath, Hunk: hunk}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(t, s, tt.m)
			if got.Kind != messages.ResultPreconditionError {
				t.Errorf("result = %s, want %s", got.Kind, messages.ResultPreconditionError)
			}
			if s.Operation().ID() != before {
				t.Error("a refused mutation recorded an operation")
			}
		})
	}
}

func TestCreateAndCheckout(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"p.txt": "p\n"})
	h.finish()

	got := run(t, s, &CreateRevision{ParentIDs: []messages.RevID{revID(s, p)}})
	wantKind(t, got, messages.ResultUpdated)
	if got.NewSelection == nil || !got.NewSelection.IsWorkingCopy {
		t.Fatalf("NewSelection = %+v, want the new working-copy commit", got.NewSelection)
	}
	wc, err := s.WCCommit()
	if err != nil {
		t.Fatalf("WCCommit() error = %v", err)
	}
	if !slices.Equal(wc.Parents, []engine.CommitID{p.ID}) || wc.Tree != p.Tree {
		t.Errorf("new working copy = parents %v tree %s, want an empty child of P", wc.Parents, wc.Tree)
	}

	wantKind(t, run(t, s, &CheckoutRevision{ID: revID(s, p)}), messages.ResultUpdated)
	wc, err = s.WCCommit()
	if err != nil {
		t.Fatalf("WCCommit() error = %v", err)
	}
	if wc.ID != p.ID {
		t.Errorf("working copy = %s, want P", wc.ID.Short())
	}
	// The empty commit left behind is dropped.
	if n := len(s.Repo().Index().Children(p.ID)); n != 0 {
		t.Errorf("P has %d children, want 0", n)
	}

	wantKind(t, run(t, s, &CreateRevision{}), messages.ResultPreconditionError)
}

func TestDescribe(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	a := h.commit("A", map[string]string{"a.txt": "a\n"})
	h.finish()

	wantKind(t, run(t, s, &DescribeRevision{ID: revID(s, a), NewDescription: "A"}), messages.ResultUnchanged)
	wantKind(t, run(t, s, &DescribeRevision{ID: revID(s, a), NewDescription: "better"}), messages.ResultUpdated)

	c := byDesc(t, s, "better")
	if c.ChangeID != a.ChangeID {
		t.Errorf("change id = %s, want %s", c.ChangeID.Short(), a.ChangeID.Short())
	}
	if findDesc(t, s, "A") != nil {
		t.Error("old description is still visible")
	}
}

func TestInsertRevision(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	a := h.commit("A", map[string]string{"a.txt": "a\n"})
	b := h.commit("B", map[string]string{"a.txt": "a\n", "b.txt": "b\n"}, a)
	c := h.commit("C", map[string]string{"a.txt": "a\n", "b.txt": "b\n", "c.txt": "c\n"}, b)
	h.finish()

	got := run(t, s, &InsertRevision{ID: revID(s, c), AfterID: revID(s, a), BeforeID: revID(s, b)})
	wantKind(t, got, messages.ResultUpdated)

	nc, nb := byDesc(t, s, "C"), byDesc(t, s, "B")
	if !slices.Equal(nc.Parents, []engine.CommitID{a.ID}) {
		t.Errorf("C parents = %v, want [A]", nc.Parents)
	}
	if !slices.Equal(nb.Parents, []engine.CommitID{nc.ID}) {
		t.Errorf("B parents = %v, want [C]", nb.Parents)
	}
	if got := fileContent(t, s, nc, "b.txt"); got != "" {
		t.Errorf("C b.txt = %q, want none", got)
	}
	if got := fileContent(t, s, nb, "c.txt"); got != "c\n" {
		t.Errorf("B c.txt = %q, want %q", got, "c\n")
	}
	if got.NewSelection == nil || got.NewSelection.Description != "C" {
		t.Errorf("NewSelection = %+v, want C", got.NewSelection)
	}
}

func TestMoveRevisionLeavesChildren(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	a := h.commit("A", map[string]string{"a.txt": "a\n"})
	b := h.commit("B", map[string]string{"a.txt": "a\n", "b.txt": "b\n"}, a)
	h.commit("C", map[string]string{"a.txt": "a\n", "b.txt": "b\n", "c.txt": "c\n"}, b)
	d := h.commit("D", map[string]string{"d.txt": "d\n"})
	h.finish()

	wantKind(t, run(t, s, &MoveRevision{ID: revID(s, b), ParentIDs: []messages.RevID{revID(s, d)}}), messages.ResultUpdated)

	nb, nc := byDesc(t, s, "B"), byDesc(t, s, "C")
	if !slices.Equal(nb.Parents, []engine.CommitID{d.ID}) {
		t.Errorf("B parents = %v, want [D]", nb.Parents)
	}
	if !slices.Equal(nc.Parents, []engine.CommitID{a.ID}) {
		t.Errorf("C parents = %v, want [A]", nc.Parents)
	}
	if got := fileContent(t, s, nc, "b.txt"); got != "" {
		t.Errorf("C b.txt = %q, want it gone with B", got)
	}
	if got := fileContent(t, s, nb, "d.txt"); got != "d\n" {
		t.Errorf("B d.txt = %q, want %q", got, "d\n")
	}
}

func TestMoveOntoCurrentParentsIsUnchanged(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"p.txt": "p\n"})
	x := h.commit("X", map[string]string{"p.txt": "p\n", "x.txt": "x\n"}, p)
	h.finish()

	// Committer timestamps have one-second resolution in signatures.
	time.Sleep(1100 * time.Millisecond)

	before := s.Operation()
	tests := []struct {
		name string
		m    Mutation
	}{
		{"move source", &MoveSource{ID: revID(s, x), ParentIDs: []messages.RevID{revID(s, p)}}},
		{"move revision", &MoveRevision{ID: revID(s, x), ParentIDs: []messages.RevID{revID(s, p)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantKind(t, run(t, s, tt.m), messages.ResultUnchanged)
			if s.Operation() != before {
				t.Error("a no-op move replaced the current operation")
			}
			if got := byDesc(t, s, "X"); got.ID != x.ID {
				t.Errorf("X = %s, want %s", got.ID.Short(), x.ID.Short())
			}
		})
	}
}

func TestMoveSourceRefusesDescendant(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	a := h.commit("A", map[string]string{"a.txt": "a\n"})
	b := h.commit("B", map[string]string{"a.txt": "a\n", "b.txt": "b\n"}, a)
	h.finish()

	before := s.Operation().ID()
	wantKind(t, run(t, s, &MoveSource{ID: revID(s, a), ParentIDs: []messages.RevID{revID(s, b)}}), messages.ResultPreconditionError)
	if s.Operation().ID() != before {
		t.Error("a refused move recorded an operation")
	}
}

func TestDuplicateRevisions(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	a := h.commit("A", map[string]string{"a.txt": "a\n"})
	b := h.commit("B", map[string]string{"a.txt": "a\n", "b.txt": "b\n"}, a)
	h.finish()

	got := run(t, s, &DuplicateRevisions{IDs: messages.RevSet{From: revID(s, a), To: revID(s, b)}})
	wantKind(t, got, messages.ResultUpdated)
	if got.NewSelection == nil || got.NewSelection.Description != "B" {
		t.Fatalf("NewSelection = %+v, want the copy of B", got.NewSelection)
	}

	var copies []*engine.Commit
	for _, id := range s.Repo().Index().All() {
		c, err := s.Repo().Commit(id)
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if c.ID != a.ID && c.ID != b.ID && (c.Description == "A" || c.Description == "B") {
			copies = append(copies, c)
		}
	}
	if len(copies) != 2 {
		t.Fatalf("found %d copies, want 2", len(copies))
	}
	for _, c := range copies {
		if c.ChangeID == a.ChangeID || c.ChangeID == b.ChangeID {
			t.Errorf("copy of %s kept its change id", c.Description)
		}
		if c.Description == "B" && slices.Contains(c.Parents, a.ID) {
			t.Error("copy of B sits on the original A")
		}
	}
}

func TestBackoutRevisions(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	a := h.commit("add a", map[string]string{"a.txt": "a\n"})
	b := h.commit("add b", map[string]string{"a.txt": "a\n", "b.txt": "b\n"}, a)
	h.finish()
	wantKind(t, run(t, s, &CheckoutRevision{ID: revID(s, b)}), messages.ResultUpdated)

	got := run(t, s, &BackoutRevisions{IDs: messages.SingleRevSet(revID(s, b))})
	wantKind(t, got, messages.ResultUpdated)
	wc, err := s.WCCommit()
	if err != nil {
		t.Fatalf("WCCommit() error = %v", err)
	}
	if wc.Description != `Back out "add b"` {
		t.Errorf("description = %q", wc.Description)
	}
	if wc.Tree != a.Tree {
		t.Errorf("backout tree = %s, want the tree of %q", wc.Tree, a.Description)
	}
}

func TestMoveChanges(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	a := h.commit("A", map[string]string{"a.txt": "a\n", "shared.txt": "mine\n"})
	b := h.commit("B", map[string]string{"b.txt": "b\n"})
	h.finish()

	paths := []messages.TreePath{{RepoPath: "shared.txt", RelativePath: "shared.txt"}}
	wantKind(t, run(t, s, &MoveChanges{FromID: revID(s, a), ToID: revID(s, b), Paths: paths}), messages.ResultUpdated)
	na, nb := byDesc(t, s, "A"), byDesc(t, s, "B")
	if got := fileContent(t, s, na, "shared.txt"); got != "" {
		t.Errorf("A shared.txt = %q, want it moved out", got)
	}
	if got := fileContent(t, s, nb, "shared.txt"); got != "mine\n" {
		t.Errorf("B shared.txt = %q, want %q", got, "mine\n")
	}

	// Moving everything empties A, which is abandoned.
	wantKind(t, run(t, s, &MoveChanges{FromID: revID(s, na), ToID: revID(s, nb)}), messages.ResultUpdated)
	if findDesc(t, s, "A") != nil {
		t.Error("emptied source is still visible")
	}
	merged := byDesc(t, s, "B\n\nA")
	if got := fileContent(t, s, merged, "a.txt"); got != "a\n" {
		t.Errorf("a.txt = %q, want %q", got, "a\n")
	}
}

func TestCopyChanges(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"f.txt": "old\n", "g.txt": "g\n"})
	b := h.commit("B", map[string]string{"f.txt": "new\n", "g.txt": "changed\n"}, p)
	h.finish()

	from := s.Operation().FormatCommitID(p.ID)
	paths := []messages.TreePath{{RepoPath: "f.txt", RelativePath: "f.txt"}}
	wantKind(t, run(t, s, &CopyChanges{FromID: from, ToID: revID(s, b), Paths: paths}), messages.ResultUpdated)
	nb := byDesc(t, s, "B")
	if got := fileContent(t, s, nb, "f.txt"); got != "old\n" {
		t.Errorf("f.txt = %q, want %q", got, "old\n")
	}
	if got := fileContent(t, s, nb, "g.txt"); got != "changed\n" {
		t.Errorf("g.txt = %q, want it untouched", got)
	}

	wantKind(t, run(t, s, &CopyChanges{FromID: from, ToID: revID(s, nb)}), messages.ResultUpdated)
	if got := byDesc(t, s, "B"); got.Tree != p.Tree {
		t.Error("full restore did not copy the whole tree")
	}
	wantKind(t, run(t, s, &CopyChanges{FromID: from, ToID: revID(s, byDesc(t, s, "B"))}), messages.ResultUnchanged)
}

var fPath = messages.TreePath{RepoPath: "f.txt", RelativePath: "f.txt"}

func TestMoveHunk(t *testing.T) {
	base := numbered(20, nil)
	two := numbered(20, map[int]string{2: "two"})
	eighteen := numbered(20, map[int]string{18: "eighteen"})
	both := numbered(20, map[int]string{2: "two", 18: "eighteen"})

	tests := []struct {
		name string
		// build returns the hunk's source and destination.
		build func(h *history, p *engine.Commit) (from, to *engine.Commit)
		// wantB is the final content of f.txt in B.
		wantA, wantB string
	}{
		{
			name: "source is ancestor",
			build: func(h *history, p *engine.Commit) (*engine.Commit, *engine.Commit) {
				a := h.commit("A", map[string]string{"f.txt": two, "other.txt": "x\n"}, p)
				b := h.commit("B", map[string]string{"f.txt": both, "other.txt": "x\n"}, a)
				return a, b
			},
			wantA: base,
			wantB: both,
		},
		{
			name: "destination is ancestor",
			build: func(h *history, p *engine.Commit) (*engine.Commit, *engine.Commit) {
				b := h.commit("B", map[string]string{"f.txt": eighteen}, p)
				a := h.commit("A", map[string]string{"f.txt": both, "other.txt": "x\n"}, b)
				return a, b
			},
			wantA: both,
			wantB: both,
		},
		{
			name: "unrelated",
			build: func(h *history, p *engine.Commit) (*engine.Commit, *engine.Commit) {
				a := h.commit("A", map[string]string{"f.txt": two, "other.txt": "x\n"}, p)
				b := h.commit("B", map[string]string{"f.txt": eighteen}, p)
				return a, b
			},
			wantA: base,
			wantB: both,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t)
			h := newHistory(t, s)
			p := h.commit("P", map[string]string{"f.txt": base})
			from, to := tt.build(h, p)
			h.finish()

			hunk := hunkWith(t, s, from, "f.txt", "+two\n")
			got := run(t, s, &MoveHunk{FromID: revID(s, from), ToID: revID(s, to), Path: fPath, Hunk: hunk})
			wantKind(t, got, messages.ResultUpdated)

			a, b := byDesc(t, s, "A"), byDesc(t, s, "B")
			if got := fileContent(t, s, a, "f.txt"); got != tt.wantA {
				t.Errorf("A f.txt = %q, want %q", got, tt.wantA)
			}
			if got := fileContent(t, s, b, "f.txt"); got != tt.wantB {
				t.Errorf("B f.txt = %q, want %q", got, tt.wantB)
			}
			if got := fileContent(t, s, a, "other.txt"); got != "x\n" {
				t.Errorf("A other.txt = %q, want the rest of A kept", got)
			}
			if a.ChangeID != from.ChangeID || b.ChangeID != to.ChangeID {
				t.Error("moving a hunk changed a change id")
			}
		})
	}
}

func TestMoveHunkAbandonsEmptiedSource(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"f.txt": numbered(20, nil)})
	a := h.commit("A", map[string]string{"f.txt": numbered(20, map[int]string{2: "two"})}, p)
	b := h.commit("B", map[string]string{"f.txt": numbered(20, map[int]string{18: "eighteen"})}, p)
	h.finish()

	hunk := hunkWith(t, s, a, "f.txt", "+two\n")
	wantKind(t, run(t, s, &MoveHunk{FromID: revID(s, a), ToID: revID(s, b), Path: fPath, Hunk: hunk}), messages.ResultUpdated)

	if findDesc(t, s, "A") != nil {
		t.Error("emptied source is still visible")
	}
	merged := byDesc(t, s, "B\n\nA")
	want := numbered(20, map[int]string{2: "two", 18: "eighteen"})
	if got := fileContent(t, s, merged, "f.txt"); got != want {
		t.Errorf("f.txt = %q, want %q", got, want)
	}
}

func TestMoveHunkDeletingFile(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"f.txt": "a\nb\n", "o.txt": "o\n"})
	a := h.commit("A", map[string]string{"o.txt": "o\n", "k.txt": "k\n"}, p)
	h.commit("B", map[string]string{"f.txt": "a\nb\n", "o.txt": "o\n", "b.txt": "b\n"}, p)
	h.finish()

	hunk := hunkWith(t, s, a, "f.txt", "-a\n")
	wantKind(t, run(t, s, &MoveHunk{FromID: revID(s, a), ToID: revID(s, byDesc(t, s, "B")), Path: fPath, Hunk: hunk}), messages.ResultUpdated)

	store := s.Repo().Store()
	na, nb := byDesc(t, s, "A"), byDesc(t, s, "B")
	at, err := store.ReadTree(na.Tree)
	if err != nil {
		t.Fatalf("ReadTree(A) error = %v", err)
	}
	if at.HasConflicts() {
		t.Error("A has conflicts after moving the deletion out")
	}
	if got := fileContent(t, s, na, "f.txt"); got != "a\nb\n" {
		t.Errorf("A f.txt = %q, want it restored to %q", got, "a\nb\n")
	}
	if got := fileContent(t, s, na, "k.txt"); got != "k\n" {
		t.Errorf("A k.txt = %q, want the rest of A kept", got)
	}
	bt, err := store.ReadTree(nb.Tree)
	if err != nil {
		t.Fatalf("ReadTree(B) error = %v", err)
	}
	if _, ok := bt.Entries["f.txt"]; ok {
		t.Error("B still has f.txt, want it deleted")
	}
	if bt.HasConflicts() {
		t.Error("B has conflicts after receiving the deletion")
	}
}

func TestMoveHunkRoundTrip(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"f.txt": numbered(20, nil)})
	a := h.commit("A", map[string]string{"f.txt": numbered(20, map[int]string{2: "two"}), "other.txt": "x\n"}, p)
	b := h.commit("B", map[string]string{"f.txt": numbered(20, map[int]string{18: "eighteen"})}, p)
	h.finish()

	hunk := hunkWith(t, s, a, "f.txt", "+two\n")
	wantKind(t, run(t, s, &MoveHunk{FromID: revID(s, a), ToID: revID(s, b), Path: fPath, Hunk: hunk}), messages.ResultUpdated)

	na, nb := byDesc(t, s, "A"), byDesc(t, s, "B")
	back := hunkWith(t, s, nb, "f.txt", "+two\n")
	wantKind(t, run(t, s, &MoveHunk{FromID: revID(s, nb), ToID: revID(s, na), Path: fPath, Hunk: back}), messages.ResultUpdated)

	if got := byDesc(t, s, "A"); got.Tree != a.Tree {
		t.Error("A's tree differs after moving the hunk back")
	}
	if got := byDesc(t, s, "B"); got.Tree != b.Tree {
		t.Error("B's tree differs after moving the hunk back")
	}
}

func TestMoveHunkMismatch(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"f.txt": numbered(20, nil)})
	a := h.commit("A", map[string]string{"f.txt": numbered(20, map[int]string{2: "two"})}, p)
	b := h.commit("B", map[string]string{"g.txt": "g\n"}, p)
	h.finish()

	hunk := hunkWith(t, s, a, "f.txt", "+two\n")
	hunk.Lines = slices.Clone(hunk.Lines)
	hunk.Lines[0] = " not a line\n"

	before := s.Operation().ID()
	got := run(t, s, &MoveHunk{FromID: revID(s, a), ToID: revID(s, b), Path: fPath, Hunk: hunk})
	wantKind(t, got, messages.ResultPreconditionError)
	if got.Message != "hunk no longer applies to f.txt" {
		t.Errorf("message = %q", got.Message)
	}
	if s.Operation().ID() != before {
		t.Error("a failed hunk move recorded an operation")
	}
}

func TestCopyHunk(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	p := h.commit("P", map[string]string{"f.txt": numbered(20, nil)})
	b := h.commit("B", map[string]string{"f.txt": numbered(20, map[int]string{2: "two", 18: "eighteen"})}, p)
	h.finish()

	hunk := hunkWith(t, s, b, "f.txt", "+eighteen\n")
	from := s.Operation().FormatCommitID(p.ID)
	wantKind(t, run(t, s, &CopyHunk{FromID: from, ToID: revID(s, b), Path: fPath, Hunk: hunk}), messages.ResultUpdated)

	want := numbered(20, map[int]string{2: "two"})
	nb := byDesc(t, s, "B")
	if got := fileContent(t, s, nb, "f.txt"); got != want {
		t.Errorf("f.txt = %q, want %q", got, want)
	}

	// The hunk's new side no longer matches B.
	got := run(t, s, &CopyHunk{FromID: from, ToID: revID(s, nb), Path: fPath, Hunk: hunk})
	wantKind(t, got, messages.ResultPreconditionError)
}

func TestRefMutations(t *testing.T) {
	s := newTestSession(t)
	h := newHistory(t, s)
	a := h.commit("A", map[string]string{"a.txt": "a\n"})
	b := h.commit("B", map[string]string{"b.txt": "b\n"})
	h.finish()

	feature := messages.Ref{Kind: messages.RefLocalBookmark, Name: "feature"}
	wantKind(t, run(t, s, &CreateRef{ID: revID(s, a), Ref: feature}), messages.ResultUpdated)
	if got := s.Repo().View().LocalBookmarks["feature"]; got != a.ID {
		t.Errorf("feature = %s, want A", got.Short())
	}

	dup := run(t, s, &CreateRef{ID: revID(s, b), Ref: feature})
	wantKind(t, dup, messages.ResultPreconditionError)
	if dup.Message != "bookmark feature already exists" {
		t.Errorf("message = %q", dup.Message)
	}

	wantKind(t, run(t, s, &MoveRef{Ref: feature, ToID: revID(s, b)}), messages.ResultUpdated)
	if got := s.Repo().View().LocalBookmarks["feature"]; got != b.ID {
		t.Errorf("feature = %s, want B", got.Short())
	}

	wantKind(t, run(t, s, &RenameBookmark{Ref: feature, NewName: "topic"}), messages.ResultUpdated)
	view := s.Repo().View()
	if _, ok := view.LocalBookmarks["feature"]; ok {
		t.Error("old bookmark name still exists")
	}
	if view.LocalBookmarks["topic"] != b.ID {
		t.Errorf("topic = %s, want B", view.LocalBookmarks["topic"].Short())
	}

	topic := messages.Ref{Kind: messages.RefLocalBookmark, Name: "topic"}
	wantKind(t, run(t, s, &DeleteRef{Ref: topic}), messages.ResultUpdated)
	if len(s.Repo().View().LocalBookmarks) != 0 {
		t.Errorf("bookmarks = %v, want none", s.Repo().View().LocalBookmarks)
	}

	wantKind(t, run(t, s, &MoveRef{Ref: topic, ToID: revID(s, a)}), messages.ResultPreconditionError)
	wantKind(t, run(t, s, &TrackBookmark{Ref: topic}), messages.ResultPreconditionError)
}

func TestUndoOperation(t *testing.T) {
	s := newTestSession(t)
	wantKind(t, run(t, s, &UndoOperation{}), messages.ResultPreconditionError)

	h := newHistory(t, s)
	a := h.commit("A", map[string]string{"a.txt": "a\n"})
	h.finish()
	wantKind(t, run(t, s, &DescribeRevision{ID: revID(s, a), NewDescription: "renamed"}), messages.ResultUpdated)

	wantKind(t, run(t, s, &UndoOperation{}), messages.ResultUpdated)
	if findDesc(t, s, "renamed") != nil {
		t.Error("undone description is still visible")
	}
	if got := byDesc(t, s, "A"); got.ID != a.ID {
		t.Errorf("A = %s, want the original commit", got.ID.Short())
	}
}

func TestGitMutationsNeedBackend(t *testing.T) {
	s := newTestSession(t)
	for _, m := range []Mutation{&GitPush{}, &GitFetch{}} {
		got := run(t, s, m)
		if got.Kind != messages.ResultPreconditionError {
			t.Errorf("%s result = %s, want %s", m.Type(), got.Kind, messages.ResultPreconditionError)
		}
	}
}

func TestPushCandidates(t *testing.T) {
	view := &engine.View{
		LocalBookmarks: map[string]engine.CommitID{
			"moved":     "c2",
			"same":      "c1",
			"untracked": "c3",
		},
		RemoteBookmarks: map[string]map[string]engine.RemoteRef{
			"origin": {
				"moved":     {Target: "c1", Tracked: true},
				"same":      {Target: "c1", Tracked: true},
				"untracked": {Target: "c1"},
				"deleted":   {Target: "c1", Tracked: true},
			},
		},
	}
	got := pushCandidates(view, "origin")
	want := []string{"deleted", "moved"}
	if !slices.Equal(got, want) {
		t.Errorf("pushCandidates() = %v, want %v", got, want)
	}
}

func TestWithCredentialsCancelled(t *testing.T) {
	called := false
	_, err := withCredentials(&messages.InputResponse{Cancel: true}, nil, func([]string) error {
		called = true
		return nil
	})
	if !errors.Is(err, errors.KindAuth) {
		t.Errorf("withCredentials() error = %v, want KindAuth", err)
	}
	if called {
		t.Error("git ran after the user cancelled")
	}
}

func TestInputRequest(t *testing.T) {
	req := inputRequest([]string{"Username for 'https://example.com': ", "Password: "})
	if req.Title != "Git Login" {
		t.Errorf("Title = %q", req.Title)
	}
	if len(req.Fields) != 2 || req.Fields[1].Label != "Password: " {
		t.Errorf("Fields = %+v", req.Fields)
	}
}
