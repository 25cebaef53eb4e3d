package engine

import (
	"testing"
)

// testRepo wraps a memory store with helpers for building histories.
type testRepo struct {
	t     *testing.T
	store *MemoryStore
	repo  *ReadonlyRepo
}

var testUser = Signature{Name: "Test User", Email: "test@example.com"}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	store := NewMemoryStore()
	repo, err := LoadRepoAt(store, RootOperationID)
	if err != nil {
		t.Fatalf("LoadRepoAt(root) error = %v", err)
	}
	return &testRepo{t: t, store: store, repo: repo}
}

// tree writes a tree holding the given path -> content pairs.
func (r *testRepo) tree(files map[string]string) TreeID {
	r.t.Helper()
	tree := NewTree()
	for path, content := range files {
		blob, err := r.store.WriteBlob([]byte(content))
		if err != nil {
			r.t.Fatalf("WriteBlob() error = %v", err)
		}
		tree.Entries[path] = TreeEntry{Blob: blob}
	}
	id, err := r.store.WriteTree(tree)
	if err != nil {
		r.t.Fatalf("WriteTree() error = %v", err)
	}
	return id
}

// commit adds a commit in its own transaction and returns it.
func (r *testRepo) commit(desc string, files map[string]string, parents ...CommitID) *Commit {
	r.t.Helper()
	if len(parents) == 0 {
		parents = []CommitID{RootCommitID}
	}
	tx := r.repo.StartTransaction(testUser)
	c, err := tx.Repo().NewCommit(parents, r.tree(files)).SetDescription(desc).Write()
	if err != nil {
		r.t.Fatalf("Write(%q) error = %v", desc, err)
	}
	r.repo, err = tx.Commit("add " + desc)
	if err != nil {
		r.t.Fatalf("Commit() error = %v", err)
	}
	return c
}

func (r *testRepo) file(id CommitID, path string) string {
	r.t.Helper()
	c, err := r.repo.Commit(id)
	if err != nil {
		r.t.Fatalf("Commit(%s) error = %v", id.Short(), err)
	}
	tree, err := r.store.ReadTree(c.Tree)
	if err != nil {
		r.t.Fatalf("ReadTree() error = %v", err)
	}
	data, ok, err := ReadFile(r.store, tree, path)
	if err != nil {
		r.t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	if !ok {
		return "<absent>"
	}
	return string(data)
}
