// Package git talks to the git repository colocated with a workspace.
// Everything goes through the git CLI via a CommandExecutor so tests can
// substitute canned output.
package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zhubert/weft/internal/errors"
	pexec "github.com/zhubert/weft/internal/exec"
	"github.com/zhubert/weft/internal/logger"
)

// GitService runs git commands against one repository.
type GitService struct {
	executor pexec.CommandExecutor
	repoPath string
	log      *slog.Logger
}

// NewGitService returns a service for the repository at repoPath.
func NewGitService(executor pexec.CommandExecutor, repoPath string) *GitService {
	return &GitService{
		executor: executor,
		repoPath: repoPath,
		log:      logger.ComponentLogger("Git").With("repo", repoPath),
	}
}

// RepoPath returns the repository the service runs in.
func (s *GitService) RepoPath() string {
	return s.repoPath
}

func (s *GitService) run(ctx context.Context, stdin []byte, env []string, args ...string) ([]byte, error) {
	stdout, stderr, err := s.executor.RunCommand(ctx, pexec.Command{
		Dir:   s.repoPath,
		Name:  "git",
		Args:  args,
		Env:   env,
		Stdin: stdin,
	})
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		s.log.Debug("git command failed", "args", args, "error", err)
		return stdout, errors.GitCommandFailed(strings.Join(args, " "), err)
	}
	return stdout, nil
}

func (s *GitService) output(ctx context.Context, args ...string) (string, error) {
	out, err := s.run(ctx, nil, nil, args...)
	return strings.TrimSpace(string(out)), err
}

// IsRepository reports whether path is inside a git work tree with its own
// .git directory.
func IsRepository(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// Init creates an empty repository.
func (s *GitService) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.repoPath, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.repoPath, err)
	}
	_, err := s.run(ctx, nil, nil, "init", "--quiet")
	return err
}

// Clone clones url into the service's repository path without a checkout.
// env is added to git's environment, usually askpass settings.
func (s *GitService) Clone(ctx context.Context, url string, env []string) error {
	parent := filepath.Dir(s.repoPath)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	_, stderr, err := s.executor.RunCommand(ctx, pexec.Command{
		Dir:  parent,
		Name: "git",
		Args: []string{"clone", "--no-checkout", "--quiet", url, s.repoPath},
		Env:  env,
	})
	if err != nil {
		return errors.GitCommandFailed("clone "+url, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(stderr))))
	}
	return nil
}

// Remotes lists the configured remotes.
func (s *GitService) Remotes(ctx context.Context) ([]string, error) {
	out, err := s.output(ctx, "remote")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Fetch fetches a remote, pruning deleted branches.
func (s *GitService) Fetch(ctx context.Context, remote string, env []string) error {
	_, err := s.run(ctx, nil, env, "fetch", "--prune", "--quiet", remote)
	return err
}

// PushRef describes one ref update for Push. An empty SHA deletes the branch.
type PushRef struct {
	Branch string
	SHA    string
	// ExpectedSHA is the remote's value the push is based on, for
	// --force-with-lease. Empty means the branch should not exist remotely.
	ExpectedSHA string
}

// Push updates branches on a remote.
func (s *GitService) Push(ctx context.Context, remote string, refs []PushRef, env []string) error {
	if len(refs) == 0 {
		return nil
	}
	args := []string{"push", "--porcelain"}
	for _, r := range refs {
		args = append(args, fmt.Sprintf("--force-with-lease=refs/heads/%s:%s", r.Branch, r.ExpectedSHA))
	}
	args = append(args, remote)
	for _, r := range refs {
		args = append(args, r.SHA+":refs/heads/"+r.Branch)
	}
	_, err := s.run(ctx, nil, env, args...)
	return err
}

// Head returns the sha HEAD points at, or "" for an unborn branch.
func (s *GitService) Head(ctx context.Context) (string, error) {
	out, err := s.run(ctx, nil, nil, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		// rev-parse --quiet exits 1 without output when HEAD is unborn.
		if len(bytes.TrimSpace(out)) == 0 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// DetachHead points HEAD at sha and resets the index to its tree.
func (s *GitService) DetachHead(ctx context.Context, sha string) error {
	if _, err := s.run(ctx, nil, nil, "update-ref", "--no-deref", "HEAD", sha); err != nil {
		return err
	}
	_, err := s.run(ctx, nil, nil, "read-tree", sha)
	return err
}

// RefEntry is one ref of the repository.
type RefEntry struct {
	Name string // full name, e.g. refs/heads/main
	SHA  string // peeled to the commit for annotated tags
}

// Refs lists branches, remote-tracking branches and tags.
func (s *GitService) Refs(ctx context.Context) ([]RefEntry, error) {
	out, err := s.output(ctx, "for-each-ref", "--format=%(objectname)%09%(*objectname)%09%(refname)", "refs/heads", "refs/remotes", "refs/tags")
	if err != nil {
		return nil, err
	}
	return parseRefs(out), nil
}

func parseRefs(out string) []RefEntry {
	var refs []RefEntry
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			continue
		}
		sha := parts[0]
		if parts[1] != "" {
			sha = parts[1]
		}
		refs = append(refs, RefEntry{Name: parts[2], SHA: sha})
	}
	return refs
}

// UpdateRef sets ref to sha.
func (s *GitService) UpdateRef(ctx context.Context, ref, sha string) error {
	_, err := s.run(ctx, nil, nil, "update-ref", ref, sha)
	return err
}

// DeleteRef removes ref.
func (s *GitService) DeleteRef(ctx context.Context, ref string) error {
	_, err := s.run(ctx, nil, nil, "update-ref", "-d", ref)
	return err
}

// Ident is a git author or committer line.
type Ident struct {
	Name  string
	Email string
	When  time.Time
}

func (i Ident) date() string {
	return fmt.Sprintf("%d %s", i.When.Unix(), i.When.Format("-0700"))
}

func parseIdent(s string) Ident {
	open := strings.LastIndexByte(s, '<')
	closing := strings.LastIndexByte(s, '>')
	if open < 0 || closing < open {
		return Ident{Name: strings.TrimSpace(s)}
	}
	id := Ident{
		Name:  strings.TrimSpace(s[:open]),
		Email: s[open+1 : closing],
	}
	fields := strings.Fields(s[closing+1:])
	if len(fields) >= 1 {
		if secs, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			loc := time.UTC
			if len(fields) >= 2 {
				if t, err := time.Parse("-0700", fields[1]); err == nil {
					loc = t.Location()
				}
			}
			id.When = time.Unix(secs, 0).In(loc)
		}
	}
	return id
}

// CommitObject is a parsed git commit.
type CommitObject struct {
	SHA       string
	Tree      string
	Parents   []string
	Author    Ident
	Committer Ident
	Message   string
}

// ReadCommit parses the commit object sha.
func (s *GitService) ReadCommit(ctx context.Context, sha string) (*CommitObject, error) {
	out, err := s.run(ctx, nil, nil, "cat-file", "commit", sha)
	if err != nil {
		return nil, err
	}
	return parseCommit(sha, string(out))
}

func parseCommit(sha, raw string) (*CommitObject, error) {
	header, message, found := strings.Cut(raw, "\n\n")
	if !found {
		header = strings.TrimSuffix(raw, "\n")
	}
	c := &CommitObject{SHA: sha, Message: message}
	for _, line := range strings.Split(header, "\n") {
		// Continuation lines of multi-line headers such as gpgsig.
		if strings.HasPrefix(line, " ") {
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "tree":
			c.Tree = value
		case "parent":
			c.Parents = append(c.Parents, value)
		case "author":
			c.Author = parseIdent(value)
		case "committer":
			c.Committer = parseIdent(value)
		}
	}
	if c.Tree == "" {
		return nil, fmt.Errorf("commit %s has no tree", sha)
	}
	return c, nil
}

// TreeItem is one blob of a recursively listed tree.
type TreeItem struct {
	Path       string
	SHA        string
	Executable bool
}

// ListTree lists every blob reachable from tree. Submodules are skipped.
func (s *GitService) ListTree(ctx context.Context, tree string) ([]TreeItem, error) {
	out, err := s.run(ctx, nil, nil, "ls-tree", "-r", "-z", "--full-tree", tree)
	if err != nil {
		return nil, err
	}
	return parseTree(out), nil
}

func parseTree(out []byte) []TreeItem {
	var items []TreeItem
	for _, rec := range bytes.Split(out, []byte{0}) {
		if len(rec) == 0 {
			continue
		}
		meta, path, ok := bytes.Cut(rec, []byte{'\t'})
		if !ok {
			continue
		}
		fields := strings.Fields(string(meta))
		if len(fields) != 3 || fields[1] != "blob" {
			continue
		}
		items = append(items, TreeItem{
			Path:       string(path),
			SHA:        fields[2],
			Executable: fields[0] == "100755",
		})
	}
	return items
}

// ReadBlob returns the content of a blob.
func (s *GitService) ReadBlob(ctx context.Context, sha string) ([]byte, error) {
	return s.run(ctx, nil, nil, "cat-file", "blob", sha)
}

// WriteBlob stores data as a blob and returns its sha.
func (s *GitService) WriteBlob(ctx context.Context, data []byte) (string, error) {
	out, err := s.run(ctx, data, nil, "hash-object", "-w", "--stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// WriteTree builds a tree object from items using a throwaway index file.
func (s *GitService) WriteTree(ctx context.Context, items []TreeItem) (string, error) {
	indexFile, err := os.CreateTemp("", "weft-index-*")
	if err != nil {
		return "", fmt.Errorf("create temporary index: %w", err)
	}
	indexPath := indexFile.Name()
	indexFile.Close()
	os.Remove(indexPath)
	defer os.Remove(indexPath)

	env := []string{"GIT_INDEX_FILE=" + indexPath}
	var info bytes.Buffer
	for _, item := range items {
		mode := "100644"
		if item.Executable {
			mode = "100755"
		}
		fmt.Fprintf(&info, "%s %s\t%s\x00", mode, item.SHA, item.Path)
	}
	if _, err := s.run(ctx, info.Bytes(), env, "update-index", "--add", "-z", "--index-info"); err != nil {
		return "", err
	}
	out, err := s.run(ctx, nil, env, "write-tree")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CommitTree writes a commit object and returns its sha.
func (s *GitService) CommitTree(ctx context.Context, tree string, parents []string, message string, author, committer Ident) (string, error) {
	args := []string{"commit-tree", tree}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	env := []string{
		"GIT_AUTHOR_NAME=" + identName(author),
		"GIT_AUTHOR_EMAIL=" + identEmail(author),
		"GIT_AUTHOR_DATE=" + author.date(),
		"GIT_COMMITTER_NAME=" + identName(committer),
		"GIT_COMMITTER_EMAIL=" + identEmail(committer),
		"GIT_COMMITTER_DATE=" + committer.date(),
	}
	out, err := s.run(ctx, []byte(message), env, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// git refuses empty identities.
func identName(i Ident) string {
	if i.Name == "" {
		return "weft"
	}
	return i.Name
}

func identEmail(i Ident) string {
	if i.Email == "" {
		return "weft@localhost"
	}
	return i.Email
}
