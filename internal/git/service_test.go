package git

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	pexec "github.com/zhubert/weft/internal/exec"
)

var ctx = context.Background()

func TestParseCommit(t *testing.T) {
	raw := "tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\n" +
		"parent 1111111111111111111111111111111111111111\n" +
		"parent 2222222222222222222222222222222222222222\n" +
		"author Alice Example <alice@example.com> 1700000000 +0100\n" +
		"committer Bob <bob@example.com> 1700000060 -0500\n" +
		"gpgsig -----BEGIN PGP SIGNATURE-----\n" +
		" abcdef\n" +
		" -----END PGP SIGNATURE-----\n" +
		"\n" +
		"Subject line\n\nBody\n"

	c, err := parseCommit("abc", raw)
	if err != nil {
		t.Fatalf("parseCommit() error = %v", err)
	}
	if c.Tree != "4b825dc642cb6eb9a060e54bf8d69288fbee4904" {
		t.Errorf("Tree = %q", c.Tree)
	}
	if len(c.Parents) != 2 {
		t.Errorf("Parents = %v, want 2 parents", c.Parents)
	}
	if c.Author.Name != "Alice Example" || c.Author.Email != "alice@example.com" {
		t.Errorf("Author = %+v", c.Author)
	}
	if !c.Author.When.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Author.When = %v", c.Author.When)
	}
	if _, offset := c.Committer.When.Zone(); offset != -5*3600 {
		t.Errorf("Committer zone offset = %d, want -18000", offset)
	}
	if c.Message != "Subject line\n\nBody\n" {
		t.Errorf("Message = %q", c.Message)
	}

	if _, err := parseCommit("abc", "author x <y> 1 +0000\n\nmsg"); err == nil {
		t.Error("parseCommit() without tree should fail")
	}
}

func TestParseTree(t *testing.T) {
	out := []byte("100644 blob aaaa\tREADME.md\x00" +
		"100755 blob bbbb\tbin/run.sh\x00" +
		"160000 commit cccc\tvendor/sub\x00")
	got := parseTree(out)
	want := []TreeItem{
		{Path: "README.md", SHA: "aaaa"},
		{Path: "bin/run.sh", SHA: "bbbb", Executable: true},
	}
	if !slices.Equal(got, want) {
		t.Errorf("parseTree() = %+v, want %+v", got, want)
	}
}

func TestParseRefs(t *testing.T) {
	out := "aaaa\t\trefs/heads/main\n" +
		"bbbb\tcccc\trefs/tags/v1\n" +
		"dddd\t\trefs/remotes/origin/main"
	got := parseRefs(out)
	want := []RefEntry{
		{Name: "refs/heads/main", SHA: "aaaa"},
		{Name: "refs/tags/v1", SHA: "cccc"},
		{Name: "refs/remotes/origin/main", SHA: "dddd"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("parseRefs() = %+v, want %+v", got, want)
	}
}

func TestCommandFailureIsGitError(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"fetch"}, pexec.MockResponse{
		Stderr: []byte("fatal: could not read Username"),
		Err:    fmt.Errorf("exit status 128"),
	})
	svc := NewGitService(mock, "/repo")
	err := svc.Fetch(ctx, "origin", nil)
	if !errors.Is(err, errors.KindGit) {
		t.Fatalf("Fetch() error = %v, want KindGit", err)
	}
	if !strings.Contains(err.Error(), "could not read Username") {
		t.Errorf("error %q should carry stderr", err)
	}
}

func TestHeadUnborn(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"rev-parse", "--verify", "--quiet", "HEAD"}, pexec.MockResponse{Err: fmt.Errorf("exit status 1")})
	svc := NewGitService(mock, "/repo")
	sha, err := svc.Head(ctx)
	if err != nil || sha != "" {
		t.Errorf("Head() = %q, %v, want empty, nil", sha, err)
	}
}

func TestPushArgs(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"push"}, pexec.MockResponse{})
	svc := NewGitService(mock, "/repo")
	err := svc.Push(ctx, "origin", []PushRef{{Branch: "main", SHA: "abc", ExpectedSHA: "def"}}, []string{"A=1"})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	calls := mock.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	want := []string{"push", "--porcelain", "--force-with-lease=refs/heads/main:def", "origin", "abc:refs/heads/main"}
	if !slices.Equal(calls[0].Args, want) {
		t.Errorf("args = %v, want %v", calls[0].Args, want)
	}
	if !slices.Equal(calls[0].Env, []string{"A=1"}) {
		t.Errorf("env = %v", calls[0].Env)
	}
}

func TestImportCommitWithMock(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"cat-file", "commit", "c2"}, pexec.MockResponse{
		Stdout: []byte("tree t2\nparent c1\nauthor A <a@x> 1700000100 +0000\ncommitter A <a@x> 1700000100 +0000\n\nsecond\n"),
	})
	mock.AddExactMatch("git", []string{"cat-file", "commit", "c1"}, pexec.MockResponse{
		Stdout: []byte("tree t1\nauthor A <a@x> 1700000000 +0000\ncommitter A <a@x> 1700000000 +0000\n\nfirst\n"),
	})
	mock.AddExactMatch("git", []string{"ls-tree", "-r", "-z", "--full-tree", "t1"}, pexec.MockResponse{
		Stdout: []byte("100644 blob b1\tfile.txt\x00"),
	})
	mock.AddExactMatch("git", []string{"ls-tree", "-r", "-z", "--full-tree", "t2"}, pexec.MockResponse{
		Stdout: []byte("100644 blob b2\tfile.txt\x00"),
	})
	mock.AddExactMatch("git", []string{"cat-file", "blob", "b1"}, pexec.MockResponse{Stdout: []byte("one\n")})
	mock.AddExactMatch("git", []string{"cat-file", "blob", "b2"}, pexec.MockResponse{Stdout: []byte("two\n")})

	store := engine.NewMemoryStore()
	col := NewColocation(NewGitService(mock, "/repo"), store)
	id, err := col.ImportCommit(ctx, "c2")
	if err != nil {
		t.Fatalf("ImportCommit() error = %v", err)
	}
	c, err := store.ReadCommit(id)
	if err != nil {
		t.Fatalf("ReadCommit() error = %v", err)
	}
	if c.Description != "second\n" {
		t.Errorf("Description = %q", c.Description)
	}
	if c.ChangeID != engine.ChangeIDFromGit("c2") {
		t.Errorf("ChangeID = %s, want one derived from the git sha", c.ChangeID)
	}
	parent, err := store.ReadCommit(c.Parents[0])
	if err != nil {
		t.Fatalf("ReadCommit(parent) error = %v", err)
	}
	if !slices.Equal(parent.Parents, []engine.CommitID{engine.RootCommitID}) {
		t.Errorf("parent.Parents = %v, want [root]", parent.Parents)
	}
	if sha, ok, _ := store.GitMapping(c.Parents[0]); !ok || sha != "c1" {
		t.Errorf("GitMapping(parent) = %q, %v", sha, ok)
	}

	before := len(mock.GetCalls())
	again, err := col.ImportCommit(ctx, "c2")
	if err != nil || again != id {
		t.Errorf("second ImportCommit() = %s, %v, want %s", again, err, id)
	}
	if len(mock.GetCalls()) != before {
		t.Error("second ImportCommit() ran git again")
	}
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func TestExportAndImportRoundTrip(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	svc := NewGitService(pexec.NewRealExecutor(), dir)
	if err := svc.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	store := engine.NewMemoryStore()
	blob, _ := store.WriteBlob([]byte("hello\n"))
	tree := engine.NewTree()
	tree.Entries["dir/hello.txt"] = engine.TreeEntry{Blob: blob, Executable: true}
	treeID, _ := store.WriteTree(tree)
	sig := engine.Signature{Name: "T", Email: "t@example.com", Timestamp: time.Unix(1700000000, 0).UTC()}
	id, err := store.WriteCommit(&engine.Commit{
		ChangeID:    engine.NewChangeID(),
		Parents:     []engine.CommitID{engine.RootCommitID},
		Tree:        treeID,
		Description: "exported\n",
		Author:      sig,
		Committer:   sig,
	})
	if err != nil {
		t.Fatalf("WriteCommit() error = %v", err)
	}

	col := NewColocation(svc, store)
	sha, err := col.ExportCommit(ctx, id)
	if err != nil {
		t.Fatalf("ExportCommit() error = %v", err)
	}
	obj, err := svc.ReadCommit(ctx, sha)
	if err != nil {
		t.Fatalf("ReadCommit() error = %v", err)
	}
	if obj.Message != "exported\n" || len(obj.Parents) != 0 {
		t.Errorf("exported commit = %+v", obj)
	}
	items, err := svc.ListTree(ctx, obj.Tree)
	if err != nil {
		t.Fatalf("ListTree() error = %v", err)
	}
	if len(items) != 1 || items[0].Path != "dir/hello.txt" || !items[0].Executable {
		t.Errorf("ListTree() = %+v", items)
	}

	// A fresh store imports the same content under the same tree id.
	other := engine.NewMemoryStore()
	imported, err := NewColocation(svc, other).ImportCommit(ctx, sha)
	if err != nil {
		t.Fatalf("ImportCommit() error = %v", err)
	}
	c, _ := other.ReadCommit(imported)
	if c.Tree != treeID {
		t.Errorf("imported tree = %s, want %s", c.Tree, treeID)
	}
}
