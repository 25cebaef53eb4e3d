package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/messages"
)

var ctx = context.Background()

// newTestSession creates a workspace in a temp dir over a memory store.
func newTestSession(t *testing.T) *WorkspaceSession {
	t.Helper()
	t.Setenv("WEFT_CONFIG_DIR", t.TempDir())
	root := t.TempDir()
	settings, err := config.LoadSettingsFrom(
		filepath.Join(t.TempDir(), "settings.yaml"),
		config.RepoSettingsPath(root),
	)
	if err != nil {
		t.Fatalf("LoadSettingsFrom() error = %v", err)
	}
	s, err := Create(ctx, root, engine.NewMemoryStore(), settings)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

func writeTree(t *testing.T, store engine.Store, files map[string]string) engine.TreeID {
	t.Helper()
	tree := engine.NewTree()
	for path, content := range files {
		blob, err := store.WriteBlob([]byte(content))
		if err != nil {
			t.Fatalf("WriteBlob() error = %v", err)
		}
		tree.Entries[path] = engine.TreeEntry{Blob: blob}
	}
	id, err := store.WriteTree(tree)
	if err != nil {
		t.Fatalf("WriteTree() error = %v", err)
	}
	return id
}

// addCommit commits a new revision in its own transaction.
func addCommit(t *testing.T, s *WorkspaceSession, desc string, files map[string]string, parents ...engine.CommitID) *engine.Commit {
	t.Helper()
	if len(parents) == 0 {
		parents = []engine.CommitID{engine.RootCommitID}
	}
	tx := s.Repo().StartTransaction(s.signature())
	c, err := tx.Repo().NewCommit(parents, writeTree(t, s.store, files)).SetDescription(desc).Write()
	if err != nil {
		t.Fatalf("Write(%q) error = %v", desc, err)
	}
	if _, err := s.FinishTransaction(ctx, tx, "add "+desc); err != nil {
		t.Fatalf("FinishTransaction(%q) error = %v", desc, err)
	}
	return c
}

func revID(s *WorkspaceSession, c *engine.Commit) messages.RevID {
	return s.Operation().FormatRevID(c)
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", rel, err)
	}
	return string(data)
}

var testUser = engine.Signature{Name: "Test User", Email: "test@example.com"}
