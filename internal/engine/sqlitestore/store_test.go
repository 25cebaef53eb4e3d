package sqlitestore

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/zhubert/weft/internal/engine"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpenSeedsRootOperation(t *testing.T) {
	s, _ := openTestStore(t)
	heads, err := s.OpHeads()
	if err != nil {
		t.Fatalf("OpHeads() error = %v", err)
	}
	if !slices.Equal(heads, []engine.OperationID{engine.RootOperationID}) {
		t.Errorf("OpHeads() = %v, want [root]", heads)
	}
	op, err := s.ReadOperation(engine.RootOperationID)
	if err != nil || !op.IsRoot() {
		t.Errorf("ReadOperation(root) = %v, %v", op, err)
	}
}

func TestObjectsRoundTrip(t *testing.T) {
	s, path := openTestStore(t)

	blob, err := s.WriteBlob([]byte("hello\n"))
	if err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}
	tree := engine.NewTree()
	tree.Entries["hello.txt"] = engine.TreeEntry{Blob: blob, Executable: true}
	treeID, err := s.WriteTree(tree)
	if err != nil {
		t.Fatalf("WriteTree() error = %v", err)
	}
	c := &engine.Commit{
		ChangeID:    engine.NewChangeID(),
		Parents:     []engine.CommitID{engine.RootCommitID},
		Tree:        treeID,
		Description: "hello",
		Author:      engine.NewSignature("a", "a@example.com"),
	}
	c.Committer = c.Author
	id, err := s.WriteCommit(c)
	if err != nil {
		t.Fatalf("WriteCommit() error = %v", err)
	}
	if _, err := s.WriteCommit(c); err != nil {
		t.Errorf("second WriteCommit() error = %v", err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.ReadCommit(id)
	if err != nil {
		t.Fatalf("ReadCommit() error = %v", err)
	}
	if got.ID != id || got.Description != "hello" || got.Tree != treeID {
		t.Errorf("ReadCommit() = %+v", got)
	}
	if got.ComputeID() != id {
		t.Error("commit id changed after a round trip through the store")
	}
	gotTree, err := s.ReadTree(treeID)
	if err != nil {
		t.Fatalf("ReadTree() error = %v", err)
	}
	if gotTree.Entries["hello.txt"] != tree.Entries["hello.txt"] {
		t.Errorf("ReadTree() entry = %+v", gotTree.Entries["hello.txt"])
	}
	data, err := s.ReadBlob(blob)
	if err != nil || string(data) != "hello\n" {
		t.Errorf("ReadBlob() = %q, %v", data, err)
	}

	if _, err := s.ReadCommit(engine.CommitID("ffffffffffffffffffffffffffffffffffffffff")); !errors.Is(err, engine.ErrObjectNotFound) {
		t.Errorf("ReadCommit(unknown) error = %v, want ErrObjectNotFound", err)
	}
}

func TestTransactionsAgainstSQLite(t *testing.T) {
	s, _ := openTestStore(t)
	repo, err := engine.LoadRepoAt(s, engine.RootOperationID)
	if err != nil {
		t.Fatalf("LoadRepoAt() error = %v", err)
	}
	tx := repo.StartTransaction(engine.NewSignature("a", "a@example.com"))
	c, err := tx.Repo().NewCommit([]engine.CommitID{engine.RootCommitID}, engine.EmptyTreeID).SetDescription("first").Write()
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	tx.Repo().SetLocalBookmark("main", c.ID)
	repo, err = tx.Commit("first commit")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	heads, _ := s.OpHeads()
	if !slices.Equal(heads, []engine.OperationID{repo.OperationID()}) {
		t.Errorf("OpHeads() = %v, want [%s]", heads, repo.OperationID().Short())
	}
	loaded, err := engine.LoadRepoAt(s, repo.OperationID())
	if err != nil {
		t.Fatalf("LoadRepoAt() error = %v", err)
	}
	if loaded.View().LocalBookmarks["main"] != c.ID {
		t.Errorf("bookmark main = %s, want %s", loaded.View().LocalBookmarks["main"], c.ID)
	}
}

func TestGitMapping(t *testing.T) {
	s, _ := openTestStore(t)
	id := engine.CommitID("1111111111111111111111111111111111111111")
	sha := "2222222222222222222222222222222222222222"
	if err := s.SetGitMapping(id, sha); err != nil {
		t.Fatalf("SetGitMapping() error = %v", err)
	}
	if got, ok, err := s.GitMapping(id); err != nil || !ok || got != sha {
		t.Errorf("GitMapping() = %q, %v, %v", got, ok, err)
	}
	if got, ok, err := s.CommitForGit(sha); err != nil || !ok || got != id {
		t.Errorf("CommitForGit() = %q, %v, %v", got, ok, err)
	}
	if _, ok, _ := s.CommitForGit("3333"); ok {
		t.Error("CommitForGit(unknown) found a mapping")
	}
}

func TestApplyMigrationsOnce(t *testing.T) {
	s, _ := openTestStore(t)
	fsys := fstest.MapFS{
		"001_extra.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE extra (id TEXT);\n-- +migrate Down\nDROP TABLE extra;\n")},
	}
	if err := applyMigrations(s.sqlDB, fsys); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}
	if err := applyMigrations(s.sqlDB, fsys); err != nil {
		t.Fatalf("second applyMigrations() error = %v", err)
	}
	if got := upSection("-- +migrate Up\nA\n-- +migrate Down\nB\n"); got != "\nA\n" {
		t.Errorf("upSection() = %q", got)
	}
}
