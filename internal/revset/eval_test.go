package revset

import (
	"slices"
	"testing"

	"github.com/zhubert/weft/internal/engine"
	errs "github.com/zhubert/weft/internal/errors"
)

// mapResolver resolves symbols from a fixed table.
type mapResolver map[string][]engine.CommitID

func (r mapResolver) ResolveSymbol(name string) ([]engine.CommitID, error) {
	ids, ok := r[name]
	if !ok {
		return nil, errs.RevisionNotFound(name)
	}
	return ids, nil
}

type fixture struct {
	ctx     *Context
	names   map[engine.CommitID]string
	a, b, c engine.CommitID
	m       engine.CommitID
}

// newFixture builds root - A - B - M and A - C - M, with a bookmark on B,
// a tag on C and a remote bookmark on A.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := engine.NewMemoryStore()
	repo, err := engine.LoadRepoAt(store, engine.RootOperationID)
	if err != nil {
		t.Fatalf("LoadRepoAt() error = %v", err)
	}
	user := engine.Signature{Name: "Test User", Email: "test@example.com"}
	tx := repo.StartTransaction(user)
	m := tx.Repo()

	write := func(desc string, files map[string]string, parents ...engine.CommitID) engine.CommitID {
		t.Helper()
		tree := engine.NewTree()
		for path, content := range files {
			blob, err := store.WriteBlob([]byte(content))
			if err != nil {
				t.Fatalf("WriteBlob() error = %v", err)
			}
			tree.Entries[path] = engine.TreeEntry{Blob: blob}
		}
		treeID, err := store.WriteTree(tree)
		if err != nil {
			t.Fatalf("WriteTree() error = %v", err)
		}
		c, err := m.NewCommit(parents, treeID).SetDescription(desc).Write()
		if err != nil {
			t.Fatalf("Write(%q) error = %v", desc, err)
		}
		return c.ID
	}

	f := &fixture{names: map[engine.CommitID]string{engine.RootCommitID: "root"}}
	f.a = write("add a", map[string]string{"a": "a\n"}, engine.RootCommitID)
	f.b = write("add b", map[string]string{"a": "a\n", "b": "b\n"}, f.a)
	// C changes nothing.
	f.c = write("empty c", map[string]string{"a": "a\n"}, f.a)
	f.m = write("merge", map[string]string{"a": "a\n", "b": "b\n", "m": "m\n"}, f.b, f.c)
	f.names[f.a], f.names[f.b], f.names[f.c], f.names[f.m] = "A", "B", "C", "M"

	m.SetLocalBookmark("feature", f.b)
	m.SetTag("v1.0", f.c)
	m.SetRemoteBookmark("main", "origin", engine.RemoteRef{Target: f.a, Tracked: true})
	m.SetWCCommit(engine.DefaultWorkspace, f.m)
	repo, err = tx.Commit("build fixture")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	aliases, err := NewAliasTable(map[string]string{
		"trunk()": `latest(remote_bookmarks(exact:"main") | root())`,
	})
	if err != nil {
		t.Fatalf("NewAliasTable() error = %v", err)
	}
	f.ctx = &Context{
		Store:     store,
		Index:     repo.Index(),
		View:      repo.View(),
		Workspace: engine.DefaultWorkspace,
		UserEmail: "test@example.com",
		Aliases:   aliases,
		Resolver: mapResolver{
			"@": {f.m},
			"A": {f.a},
			"B": {f.b},
			"C": {f.c},
			"M": {f.m},
		},
	}
	return f
}

func (f *fixture) eval(t *testing.T, expr string) []string {
	t.Helper()
	res, err := Evaluate(f.ctx, expr)
	if err != nil {
		t.Fatalf("Evaluate(%q) error = %v", expr, err)
	}
	var out []string
	for id := range res.Set() {
		out = append(out, f.names[id])
	}
	slices.Sort(out)
	return out
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		expr string
		want []string
	}{
		{"all()", []string{"A", "B", "C", "M", "root"}},
		{"none()", nil},
		{"root()", []string{"root"}},
		{"@", []string{"M"}},
		{"A | B", []string{"A", "B"}},
		{"all() & ::B", []string{"A", "B", "root"}},
		{"::M ~ ::B", []string{"C", "M"}},
		{"~::B", []string{"C", "M"}},
		{"A::", []string{"A", "B", "C", "M"}},
		{"::B", []string{"A", "B", "root"}},
		{"B::M", []string{"B", "M"}},
		{"B..M", []string{"C", "M"}},
		{"..B", []string{"A", "B"}},
		{"B..", []string{"C", "M"}},
		{"M-", []string{"B", "C"}},
		{"A+", []string{"B", "C"}},
		{"A++", []string{"M"}},
		{"parents(M)", []string{"B", "C"}},
		{"children(root())", []string{"A"}},
		{"heads(all())", []string{"M"}},
		{"heads(A | B | C)", []string{"B", "C"}},
		{"roots(A::)", []string{"A"}},
		{"descendants(C)", []string{"C", "M"}},
		{"ancestors(M, 2)", []string{"B", "C", "M"}},
		{"ancestors(M, 0)", nil},
		{"visible_heads()", []string{"M"}},
		{"bookmarks()", []string{"B"}},
		{"bookmarks(feat)", []string{"B"}},
		{"bookmarks(exact:feat)", nil},
		{"remote_bookmarks()", []string{"A"}},
		{"remote_bookmarks(main, upstream)", nil},
		{"tags()", []string{"C"}},
		{`tags(glob:"v1.*")`, []string{"C"}},
		{"working_copies()", []string{"M"}},
		{"description(add)", []string{"A", "B"}},
		{`description(exact:"merge")`, []string{"M"}},
		{"author(test@example.com)", []string{"A", "B", "C", "M"}},
		{"mine()", []string{"A", "B", "C", "M"}},
		{"merges()", []string{"M"}},
		{"empty()", []string{"C", "root"}},
		{"conflicts()", nil},
		{"present(missing)", nil},
		{"present(A)", []string{"A"}},
		{"trunk()", []string{"A"}},
		{"git_head()", nil},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := f.eval(t, tt.expr)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		expr string
		kind errs.Kind
	}{
		{"missing", errs.KindNotFound},
		{"A | missing", errs.KindNotFound},
		{"nosuch()", errs.KindInvalid},
		{"all(A)", errs.KindInvalid},
		{"ancestors(A, -1)", errs.KindInvalid},
		{"ancestors(A, x)", errs.KindInvalid},
		{"exact:foo", errs.KindInvalid},
		{"description(bogus:x)", errs.KindInvalid},
		{"A |", errs.KindInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Evaluate(f.ctx, tt.expr)
			if !errs.Is(err, tt.kind) {
				t.Errorf("Evaluate(%q) error = %v, want kind %s", tt.expr, err, tt.kind)
			}
		})
	}
	if _, err := Evaluate(f.ctx, "missing"); !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
}

func TestResultOrder(t *testing.T) {
	f := newFixture(t)
	res, err := Evaluate(f.ctx, "::M")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	ids := res.IDs()
	if len(ids) != 5 || ids[0] != f.m || ids[len(ids)-1] != engine.RootCommitID {
		t.Errorf("IDs() = %v, want M first and root last", ids)
	}
	if !res.Contains(f.a) || res.Contains("nope") {
		t.Error("Contains() disagrees with the set")
	}
	if got := res.Set().Members(); !slices.IsSorted(got) {
		t.Errorf("Members() = %v, want sorted", got)
	}
}
