package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/engine/sqlitestore"
	"github.com/zhubert/weft/internal/errors"
	pexec "github.com/zhubert/weft/internal/exec"
	"github.com/zhubert/weft/internal/git"
	"github.com/zhubert/weft/internal/logger"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/revset"
)

// executor is the command executor used for git commands.
// It can be swapped for testing via SetExecutor.
var executor pexec.CommandExecutor = pexec.NewRealExecutor()

// SetExecutor sets the command executor used by this package.
func SetExecutor(e pexec.CommandExecutor) {
	executor = e
}

// GetExecutor returns the current command executor.
func GetExecutor() pexec.CommandExecutor {
	return executor
}

var log = logger.ComponentLogger("Session")

// internalGitDir holds the git backend of a non-colocated workspace.
const internalGitDir = "git"

// WorkspaceSession is one open workspace. It is not safe for concurrent
// use; a worker goroutine owns it.
type WorkspaceSession struct {
	root       string
	workspace  string
	store      engine.Store
	wc         *engine.LocalWorkingCopy
	settings   *config.Settings
	aliases    *revset.AliasTable
	op         *SessionOperation
	colocation *git.Colocation
	colocated  bool
	isLarge    bool
	log        *slog.Logger
}

// FindRoot walks up from path to the nearest directory holding a workspace.
func FindRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.WorkspaceNotFound(path)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		if info, err := os.Stat(filepath.Join(dir, engine.MetaDir)); err == nil && info.IsDir() {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			return "", errors.WorkspaceNotFound(path)
		}
	}
}

func storePath(root string) string {
	return filepath.Join(root, engine.MetaDir, sqlitestore.FileName)
}

// Open loads the workspace containing path.
func Open(ctx context.Context, path string) (*WorkspaceSession, error) {
	root, err := FindRoot(path)
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(root)
	if err != nil {
		return nil, errors.ConfigLoadFailed(config.RepoSettingsPath(root), err)
	}
	store, err := sqlitestore.Open(storePath(root))
	if err != nil {
		return nil, errors.WorkspaceLoadFailed(root, err)
	}
	wc, err := engine.LoadWorkingCopy(root, store)
	if err != nil {
		_ = store.Close()
		return nil, errors.WorkspaceLoadFailed(root, err)
	}
	s, err := newSession(root, store, wc, settings)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s.log.Info("opened workspace", "operation", s.op.ID().Short(), "colocated", s.colocated, "large", s.isLarge)
	return s, nil
}

func newSession(root string, store engine.Store, wc *engine.LocalWorkingCopy, settings *config.Settings) (*WorkspaceSession, error) {
	aliases, err := revset.NewAliasTable(settings.Aliases())
	if err != nil {
		return nil, errors.E(errors.Op("session.Open"), errors.KindConfig, "invalid revset alias", err)
	}
	s := &WorkspaceSession{
		root:      root,
		workspace: wc.WorkspaceID(),
		store:     store,
		wc:        wc,
		settings:  settings,
		aliases:   aliases,
		log:       logger.WithWorkspace(root),
	}
	s.colocation, s.colocated = openGitBackend(root, store)

	repo, err := ResolveOperation(store, s.signature())
	if err != nil {
		return nil, err
	}
	s.install(repo)
	s.isLarge = repo.Index().Len() >= settings.UI.LargeRepoThreshold
	return s, nil
}

// openGitBackend finds the git repository backing a workspace: the
// workspace itself when colocated, else the internal one if present.
func openGitBackend(root string, store engine.Store) (*git.Colocation, bool) {
	if git.IsRepository(root) {
		return git.NewColocation(git.NewGitService(executor, root), store), true
	}
	internal := filepath.Join(root, engine.MetaDir, internalGitDir)
	if _, err := os.Stat(internal); err == nil {
		return git.NewColocation(git.NewGitService(executor, internal), store), false
	}
	return nil, false
}

// Init creates a workspace at path. With colocate the workspace is also a
// git work tree; an existing git repository there is imported.
func Init(ctx context.Context, path string, colocate bool) (string, error) {
	const op = errors.Op("session.Init")
	root, err := prepareRoot(path)
	if err != nil {
		return "", err
	}
	gitDir := filepath.Join(root, engine.MetaDir, internalGitDir)
	if colocate {
		gitDir = root
	}
	svc := git.NewGitService(executor, gitDir)
	if !git.IsRepository(gitDir) {
		if err := svc.Init(ctx); err != nil {
			return "", errors.E(op, errors.KindIO, "cannot create git repository", err)
		}
	}
	if err := initialize(ctx, root, svc, colocate); err != nil {
		return "", err
	}
	return root, nil
}

// Clone clones url into a new workspace at path. env is passed to git,
// usually to route credential prompts.
func Clone(ctx context.Context, url, path string, colocate bool, env []string) (string, error) {
	root, err := prepareRoot(path)
	if err != nil {
		return "", err
	}
	gitDir := filepath.Join(root, engine.MetaDir, internalGitDir)
	if colocate {
		gitDir = root
	}
	svc := git.NewGitService(executor, gitDir)
	if err := svc.Clone(ctx, url, env); err != nil {
		return "", err
	}
	if err := initialize(ctx, root, svc, colocate); err != nil {
		return "", err
	}
	return root, nil
}

func prepareRoot(path string) (string, error) {
	const op = errors.Op("session.Init")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", errors.E(op, errors.KindIO, "cannot create workspace directory", err)
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return "", errors.E(op, errors.KindIO, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if _, err := os.Stat(filepath.Join(root, engine.MetaDir, sqlitestore.FileName)); err == nil {
		return "", errors.E(op, errors.KindPrecondition, "a workspace already exists at "+root)
	}
	if err := os.MkdirAll(filepath.Join(root, engine.MetaDir), 0o755); err != nil {
		return "", errors.E(op, errors.KindIO, "cannot create workspace directory", err)
	}
	return root, nil
}

// Create sets up a workspace at root over store with no git backend and
// returns it open. The caller keeps ownership of store.
func Create(ctx context.Context, root string, store engine.Store, settings *config.Settings) (*WorkspaceSession, error) {
	wc, err := initWorkspace(ctx, root, store, settings, nil, false)
	if err != nil {
		return nil, err
	}
	return newSession(root, store, wc, settings)
}

// initialize opens the new workspace's store and sets it up from svc.
func initialize(ctx context.Context, root string, svc *git.GitService, colocated bool) error {
	store, err := sqlitestore.Open(storePath(root))
	if err != nil {
		return errors.WorkspaceLoadFailed(root, err)
	}
	defer store.Close()

	settings, err := config.LoadSettings(root)
	if err != nil {
		return errors.ConfigLoadFailed(config.RepoSettingsPath(root), err)
	}
	_, err = initWorkspace(ctx, root, store, settings, git.NewColocation(svc, store), colocated)
	return err
}

// initWorkspace imports git's refs and HEAD when col is set, creates the
// default workspace's working-copy commit on top of HEAD and writes the
// working-copy state.
func initWorkspace(ctx context.Context, root string, store engine.Store, settings *config.Settings, col *git.Colocation, colocated bool) (*engine.LocalWorkingCopy, error) {
	const op = errors.Op("session.Init")
	sig := engine.NewSignature(settings.User.Name, settings.User.Email)
	base, err := ResolveOperation(store, sig)
	if err != nil {
		return nil, err
	}
	tx := base.StartTransaction(sig)
	parent := engine.RootCommitID
	if col != nil {
		if err := col.ImportRefs(ctx, tx.Repo()); err != nil {
			return nil, errors.E(op, errors.KindGit, "cannot import git refs", err)
		}
		head, _, err := col.ImportHead(ctx, tx.Repo().View())
		if err != nil {
			return nil, errors.E(op, errors.KindGit, "cannot import git HEAD", err)
		}
		if head != "" {
			if err := tx.Repo().AddHead(head); err != nil {
				return nil, err
			}
			tx.Repo().SetGitHead(head)
			parent = head
		}
	}
	parentCommit, err := tx.Repo().Commit(parent)
	if err != nil {
		return nil, err
	}
	wcCommit, err := tx.Repo().CheckOut(engine.DefaultWorkspace, parentCommit)
	if err != nil {
		return nil, err
	}
	repo, err := tx.Commit(fmt.Sprintf("add workspace '%s'", engine.DefaultWorkspace))
	if err != nil {
		return nil, errors.E(op, errors.KindIO, "cannot write operation", err)
	}

	// A colocated git work tree already has the files on disk; anything
	// else starts empty and is checked out.
	onDisk := engine.EmptyTreeID
	if colocated {
		onDisk = wcCommit.Tree
	}
	wc, err := engine.InitWorkingCopy(root, store, engine.DefaultWorkspace, repo.OperationID(), onDisk)
	if err != nil {
		return nil, errors.WorkspaceLoadFailed(root, err)
	}
	if onDisk != wcCommit.Tree {
		if _, err := wc.CheckOut(onDisk, wcCommit.Tree); err != nil {
			return nil, errors.E(op, errors.KindIO, "cannot check out working copy", err)
		}
	}
	if err := wc.Finish(repo.OperationID()); err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	return wc, nil
}

// Close releases the store.
func (s *WorkspaceSession) Close() error {
	return s.store.Close()
}

func (s *WorkspaceSession) signature() engine.Signature {
	return engine.NewSignature(s.settings.User.Name, s.settings.User.Email)
}

// install replaces the current operation with a fresh snapshot of repo.
func (s *WorkspaceSession) install(repo *engine.ReadonlyRepo) {
	s.op = NewSessionOperation(repo, s.workspace, s.settings.DisambiguationRevset(), s.aliases, s.settings.User.Email)
}

// Root returns the workspace root.
func (s *WorkspaceSession) Root() string { return s.root }

// Settings returns the merged settings.
func (s *WorkspaceSession) Settings() *config.Settings { return s.settings }

// Operation returns the current operation.
func (s *WorkspaceSession) Operation() *SessionOperation { return s.op }

// Colocated reports whether the workspace is also a git work tree.
func (s *WorkspaceSession) Colocated() bool { return s.colocated }

// IsLarge reports whether the repository is over the large-repo threshold.
func (s *WorkspaceSession) IsLarge() bool { return s.isLarge }

// Git returns the git backend, or nil if the workspace has none.
func (s *WorkspaceSession) Git() *git.Colocation { return s.colocation }

// Repo returns the repository at the current operation.
func (s *WorkspaceSession) Repo() *engine.ReadonlyRepo { return s.op.Repo }

// WCCommit returns the workspace's working-copy commit.
func (s *WorkspaceSession) WCCommit() (*engine.Commit, error) {
	return s.op.WCCommit()
}

func (s *WorkspaceSession) revsetContext() *revset.Context {
	return s.op.revsetContext(s.aliases, s.settings.User.Email)
}

// Evaluate evaluates a revset against the current operation.
func (s *WorkspaceSession) Evaluate(expr string) (*revset.Result, error) {
	return revset.Evaluate(s.revsetContext(), expr)
}

// ResolveSingle evaluates expr and requires exactly one commit.
func (s *WorkspaceSession) ResolveSingle(expr string) (*engine.Commit, error) {
	res, err := s.Evaluate(expr)
	if err != nil {
		return nil, err
	}
	switch res.Len() {
	case 0:
		return nil, errors.RevisionNotFound(expr)
	case 1:
		return s.op.Repo.Commit(res.IDs()[0])
	}
	return nil, errors.AmbiguousRevision(expr, res.Len())
}

// ResolveOptionalCommit resolves a commit id, returning nil if it is not
// visible.
func (s *WorkspaceSession) ResolveOptionalCommit(id messages.ID) (*engine.Commit, error) {
	cid := engine.CommitID(id.Hex)
	if !s.op.Repo.Index().Has(cid) {
		return nil, nil
	}
	return s.op.Repo.Commit(cid)
}

// ResolveOptionalID resolves a revision the way the user last saw it: by
// change if the change has one visible commit, else by the commit id as
// long as it still belongs to the expected change.
func (s *WorkspaceSession) ResolveOptionalID(id messages.RevID) (*engine.Commit, error) {
	idx := s.op.Repo.Index()
	commits := idx.CommitsForChange(engine.ChangeID(id.Change.Hex))
	switch len(commits) {
	case 0:
		return nil, errors.RevisionNotFound(id.Change.Prefix)
	case 1:
		return s.op.Repo.Commit(commits[0])
	}
	c, err := s.ResolveOptionalCommit(id.Commit)
	if err != nil {
		return nil, err
	}
	if c == nil || !strings.HasPrefix(string(c.ChangeID), id.Change.Prefix) {
		return nil, errors.AmbiguousRevision(id.Change.Prefix, len(commits))
	}
	return c, nil
}

// ResolveChange resolves a revision strictly by change. A divergent change
// is only accepted when the commit id names one of its commits.
func (s *WorkspaceSession) ResolveChange(id messages.RevID) (*engine.Commit, error) {
	idx := s.op.Repo.Index()
	commits := idx.CommitsForChange(engine.ChangeID(id.Change.Hex))
	switch len(commits) {
	case 0:
		return nil, errors.RevisionNotFound(id.Change.Prefix)
	case 1:
		return s.op.Repo.Commit(commits[0])
	}
	if slices.Contains(commits, engine.CommitID(id.Commit.Hex)) {
		return s.op.Repo.Commit(engine.CommitID(id.Commit.Hex))
	}
	return nil, errors.AmbiguousRevision(id.Change.Prefix, len(commits))
}

// ResolveMultipleChanges resolves a contiguous selection, returning the
// commits of from::to newest first.
func (s *WorkspaceSession) ResolveMultipleChanges(set messages.RevSet) ([]*engine.Commit, error) {
	from, err := s.ResolveChange(set.From)
	if err != nil {
		return nil, err
	}
	to, err := s.ResolveChange(set.To)
	if err != nil {
		return nil, err
	}
	idx := s.op.Repo.Index()
	desc := idx.Descendants([]engine.CommitID{from.ID})
	anc := idx.Ancestors([]engine.CommitID{to.ID}, -1)
	var ids []engine.CommitID
	for id := range desc {
		if anc[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.E(errors.Op("session.ResolveMultipleChanges"), errors.KindInvalid,
			fmt.Sprintf("%s is not an ancestor of %s", set.From.Change.Prefix, set.To.Change.Prefix))
	}
	idx.SortByPosition(ids)
	out := make([]*engine.Commit, 0, len(ids))
	for _, id := range ids {
		c, err := s.op.Repo.Commit(id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// immutableSet evaluates ::immutable_heads() against the current operation.
func (s *WorkspaceSession) immutableSet() (revset.Set, error) {
	res, err := s.Evaluate("::immutable_heads()")
	if err != nil {
		return nil, err
	}
	return res.Set(), nil
}

// IsImmutable reports whether id is an ancestor of an immutable head.
func (s *WorkspaceSession) IsImmutable(id engine.CommitID) (bool, error) {
	set, err := s.immutableSet()
	if err != nil {
		return false, err
	}
	return set[id], nil
}

// CheckMutable returns an ImmutableRevision error naming the first
// immutable commit among commits.
func (s *WorkspaceSession) CheckMutable(commits ...*engine.Commit) error {
	set, err := s.immutableSet()
	if err != nil {
		return err
	}
	for _, c := range commits {
		if set[c.ID] {
			return errors.ImmutableRevision(s.op.FormatChangeID(c.ChangeID).Prefix)
		}
	}
	return nil
}

// FormatHeader builds the UI summary of c. immutable is the result of
// ::immutable_heads() for the current request.
func (s *WorkspaceSession) FormatHeader(c *engine.Commit, immutable revset.Set) (messages.RevHeader, error) {
	hasConflict := false
	if !c.IsRoot() {
		tree, err := s.store.ReadTree(c.Tree)
		if err != nil {
			return messages.RevHeader{}, err
		}
		hasConflict = tree.HasConflicts()
	}
	parents := make([]string, 0, len(c.Parents))
	for _, p := range c.Parents {
		if c.IsRoot() {
			break
		}
		parents = append(parents, string(p))
	}
	refs := s.op.Refs(c.ID)
	if !s.settings.UI.MarkUnpushedBookmarks {
		refs = slices.Clone(refs)
		for i := range refs {
			refs[i].HasUnpushed = false
		}
	}
	return messages.RevHeader{
		ID:          s.op.FormatRevID(c),
		Description: c.Description,
		Author: messages.Signature{
			Name:      c.Author.Name,
			Email:     c.Author.Email,
			Timestamp: c.Author.Timestamp,
		},
		HasConflict:   hasConflict,
		IsWorkingCopy: c.ID == s.op.WCID,
		IsImmutable:   immutable[c.ID],
		Refs:          refs,
		ParentIDs:     parents,
	}, nil
}

// Header formats c, evaluating immutability for this call.
func (s *WorkspaceSession) Header(c *engine.Commit) (messages.RevHeader, error) {
	immutable, err := s.immutableSet()
	if err != nil {
		return messages.RevHeader{}, err
	}
	return s.FormatHeader(c, immutable)
}

// Status summarizes the current operation and working copy.
func (s *WorkspaceSession) Status() (*messages.RepoStatus, error) {
	wc, err := s.WCCommit()
	if err != nil {
		return nil, err
	}
	op := s.op.Repo.Operation()
	return &messages.RepoStatus{
		OperationDescription: op.Metadata.Description,
		OperationID:          string(op.ID),
		WorkingCopy:          s.op.FormatCommitID(wc.ID),
	}, nil
}

// Config describes the open workspace to the UI.
func (s *WorkspaceSession) Config(ctx context.Context) (*messages.RepoConfig, error) {
	status, err := s.Status()
	if err != nil {
		return nil, err
	}
	var remotes []string
	if s.colocation != nil {
		remotes, err = s.colocation.Service().Remotes(ctx)
		if err != nil {
			s.log.Warn("cannot list git remotes", "error", err)
		}
	}
	return &messages.RepoConfig{
		Kind:                  messages.RepoConfigWorkspace,
		AbsolutePath:          s.root,
		GitRemotes:            remotes,
		DefaultQuery:          s.settings.Revsets.Log,
		LatestQuery:           s.settings.Revsets.Log,
		Status:                status,
		Colocated:             s.colocated,
		MarkUnpushedBookmarks: s.settings.UI.MarkUnpushedBookmarks,
	}, nil
}
