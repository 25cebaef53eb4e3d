package mutations

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/session"
)

var ctx = context.Background()

func newTestSession(t *testing.T) *session.WorkspaceSession {
	t.Helper()
	t.Setenv("WEFT_CONFIG_DIR", t.TempDir())
	root := t.TempDir()
	settings, err := config.LoadSettingsFrom(filepath.Join(t.TempDir(), "settings.yaml"), config.RepoSettingsPath(root))
	if err != nil {
		t.Fatalf("LoadSettingsFrom() error = %v", err)
	}
	s, err := session.Create(ctx, root, engine.NewMemoryStore(), settings)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

// history commits revisions in one transaction. Files are full contents
// keyed by path; a revision inherits nothing from its parents.
type history struct {
	t  *testing.T
	s  *session.WorkspaceSession
	tx *engine.Transaction
}

func newHistory(t *testing.T, s *session.WorkspaceSession) *history {
	t.Helper()
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		t.Fatalf("StartTransaction() error = %v", err)
	}
	return &history{t: t, s: s, tx: tx}
}

func (h *history) commit(desc string, files map[string]string, parents ...*engine.Commit) *engine.Commit {
	h.t.Helper()
	ids := []engine.CommitID{engine.RootCommitID}
	if len(parents) > 0 {
		ids = nil
		for _, p := range parents {
			ids = append(ids, p.ID)
		}
	}
	store := h.tx.Repo().Store()
	tree := engine.NewTree()
	for path, content := range files {
		blob, err := store.WriteBlob([]byte(content))
		if err != nil {
			h.t.Fatalf("WriteBlob() error = %v", err)
		}
		tree.Entries[path] = engine.TreeEntry{Blob: blob}
	}
	treeID, err := store.WriteTree(tree)
	if err != nil {
		h.t.Fatalf("WriteTree() error = %v", err)
	}
	c, err := h.tx.Repo().NewCommit(ids, treeID).SetDescription(desc).Write()
	if err != nil {
		h.t.Fatalf("Write(%q) error = %v", desc, err)
	}
	return c
}

func (h *history) finish() {
	h.t.Helper()
	if _, err := h.s.FinishTransaction(ctx, h.tx, "build history"); err != nil {
		h.t.Fatalf("FinishTransaction() error = %v", err)
	}
}

// byDesc returns the visible commit with the given description.
func byDesc(t *testing.T, s *session.WorkspaceSession, desc string) *engine.Commit {
	t.Helper()
	c := findDesc(t, s, desc)
	if c == nil {
		t.Fatalf("no visible commit described %q", desc)
	}
	return c
}

func findDesc(t *testing.T, s *session.WorkspaceSession, desc string) *engine.Commit {
	t.Helper()
	for _, id := range s.Repo().Index().All() {
		c, err := s.Repo().Commit(id)
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if c.Description == desc {
			return c
		}
	}
	return nil
}

func revID(s *session.WorkspaceSession, c *engine.Commit) messages.RevID {
	return s.Operation().FormatRevID(c)
}

func fileContent(t *testing.T, s *session.WorkspaceSession, c *engine.Commit, path string) string {
	t.Helper()
	store := s.Repo().Store()
	tree, err := store.ReadTree(c.Tree)
	if err != nil {
		t.Fatalf("ReadTree() error = %v", err)
	}
	data, _, err := engine.ReadFile(store, tree, path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

func parentsOf(c *engine.Commit) []engine.CommitID {
	return c.Parents
}

// numbered returns lines "1".."n" with the given replacements.
func numbered(n int, replace map[int]string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if r, ok := replace[i]; ok {
			b.WriteString(r)
		} else {
			fmt.Fprintf(&b, "%d", i)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// hunkWith returns the hunk of path in c's diff that contains line.
func hunkWith(t *testing.T, s *session.WorkspaceSession, c *engine.Commit, path, line string) messages.ChangeHunk {
	t.Helper()
	res, err := s.QueryRevisions(messages.SingleRevSet(revID(s, c)))
	if err != nil {
		t.Fatalf("QueryRevisions() error = %v", err)
	}
	for _, ch := range res.Changes {
		if ch.Path.RepoPath != path {
			continue
		}
		for _, h := range ch.Hunks {
			for _, l := range h.Lines {
				if l == line {
					return h
				}
			}
		}
	}
	t.Fatalf("no hunk of %s in %q contains %q", path, c.Description, line)
	return messages.ChangeHunk{}
}

func run(t *testing.T, s *session.WorkspaceSession, m Mutation) messages.MutationResult {
	t.Helper()
	return Run(ctx, s, nil, m)
}

func wantKind(t *testing.T, got messages.MutationResult, want messages.MutationResultKind) {
	t.Helper()
	if got.Kind != want {
		t.Fatalf("result = %s (%s), want %s", got.Kind, got.Message, want)
	}
}
