package mutations

import (
	"context"
	"fmt"
	"slices"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/session"
)

// MoveChanges moves files, or every change when Paths is empty, out of one
// revision and into another.
type MoveChanges struct {
	FromID messages.RevID      `json:"from_id"`
	ToID   messages.RevID      `json:"to_id"`
	Paths  []messages.TreePath `json:"paths"`
}

func (*MoveChanges) Type() string { return "move_changes" }

func (m *MoveChanges) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	operands, err := resolveChanges(s, []messages.RevID{m.FromID, m.ToID})
	if err != nil {
		return messages.MutationResult{}, err
	}
	from, to := operands[0], operands[1]
	if from.ID == to.ID {
		return messages.PreconditionError("cannot move changes into the same revision"), nil
	}
	if err := s.CheckMutable(from, to); err != nil {
		return messages.MutationResult{}, err
	}

	store := tx.Repo().Store()
	base, err := engine.MergedParentTree(store, from.Parents)
	if err != nil {
		return messages.MutationResult{}, err
	}
	sibling := from.Tree
	if len(m.Paths) > 0 {
		if sibling, err = restorePaths(store, base, from.Tree, m.Paths); err != nil {
			return messages.MutationResult{}, err
		}
	}
	if sibling == base {
		return messages.Unchanged(), nil
	}
	if _, err := transplant(tx, from, to, base, sibling); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, fmt.Sprintf("squash commit %s into %s", from.ID.Short(), to.ID.Short()), "")
}

// CopyChanges restores files in a revision from another commit's tree, or
// the whole tree when Paths is empty.
type CopyChanges struct {
	FromID messages.ID         `json:"from_id"`
	ToID   messages.RevID      `json:"to_id"`
	Paths  []messages.TreePath `json:"paths"`
}

func (*CopyChanges) Type() string { return "copy_changes" }

func (m *CopyChanges) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	from, err := s.ResolveOptionalCommit(m.FromID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if from == nil {
		return messages.PreconditionError(fmt.Sprintf("revision %s not found", m.FromID.Prefix)), nil
	}
	to, err := s.ResolveChange(m.ToID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if err := s.CheckMutable(to); err != nil {
		return messages.MutationResult{}, err
	}

	repo := tx.Repo()
	tree := from.Tree
	if len(m.Paths) > 0 {
		if tree, err = restorePaths(repo.Store(), to.Tree, from.Tree, m.Paths); err != nil {
			return messages.MutationResult{}, err
		}
	}
	if tree == to.Tree {
		return messages.Unchanged(), nil
	}
	if _, err := repo.RewriteCommit(to).SetTree(tree).Write(); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, fmt.Sprintf("restore into commit %s", to.ID.Short()), "")
}

// MoveHunk moves one diff hunk of a file from one revision to another.
type MoveHunk struct {
	FromID messages.RevID      `json:"from_id"`
	ToID   messages.RevID      `json:"to_id"`
	Path   messages.TreePath   `json:"path"`
	Hunk   messages.ChangeHunk `json:"hunk"`
}

func (*MoveHunk) Type() string { return "move_hunk" }

func (m *MoveHunk) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	from, err := s.ResolveOptionalID(m.FromID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	to, err := s.ResolveChange(m.ToID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if from.ID == to.ID {
		return messages.PreconditionError("cannot move a hunk into the same revision"), nil
	}
	if err := s.CheckMutable(from, to); err != nil {
		return messages.MutationResult{}, err
	}

	store := tx.Repo().Store()
	base, err := engine.MergedParentTree(store, from.Parents)
	if err != nil {
		return messages.MutationResult{}, err
	}
	fromTree, err := store.ReadTree(from.Tree)
	if err != nil {
		return messages.MutationResult{}, err
	}
	_, inSource := fromTree.Entries[m.Path.RepoPath]
	sibling, err := applyHunk(store, base, m.Path.RepoPath, session.EngineHunk(m.Hunk), !inSource)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if _, err := transplant(tx, from, to, base, sibling); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, fmt.Sprintf("move hunk in %s from %s to %s", m.Path.RepoPath, from.ID.Short(), to.ID.Short()), "")
}

// CopyHunk restores one hunk of a revision's file from another commit.
// The hunk's new side must match the destination's current lines.
type CopyHunk struct {
	FromID messages.ID         `json:"from_id"`
	ToID   messages.RevID      `json:"to_id"`
	Path   messages.TreePath   `json:"path"`
	Hunk   messages.ChangeHunk `json:"hunk"`
}

func (*CopyHunk) Type() string { return "copy_hunk" }

func (m *CopyHunk) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	from, err := s.ResolveOptionalCommit(m.FromID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if from == nil {
		return messages.PreconditionError(fmt.Sprintf("revision %s not found", m.FromID.Prefix)), nil
	}
	to, err := s.ResolveChange(m.ToID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if err := s.CheckMutable(to); err != nil {
		return messages.MutationResult{}, err
	}

	repo := tx.Repo()
	store := repo.Store()
	path := m.Path.RepoPath
	toTree, err := store.ReadTree(to.Tree)
	if err != nil {
		return messages.MutationResult{}, err
	}
	fromTree, err := store.ReadTree(from.Tree)
	if err != nil {
		return messages.MutationResult{}, err
	}
	current, _, err := engine.ReadFile(store, toTree, path)
	if err != nil {
		return messages.MutationResult{}, err
	}
	source, inSource, err := engine.ReadFile(store, fromTree, path)
	if err != nil {
		return messages.MutationResult{}, err
	}

	h := session.EngineHunk(m.Hunk)
	_, expected := h.Sides()
	actual, err := engine.LineRange(current, h.To)
	if err != nil || !slices.Equal(actual, expected) {
		return messages.MutationResult{}, errors.HunkMismatch(path)
	}
	restored, err := engine.LineRange(source, h.From)
	if err != nil {
		return messages.MutationResult{}, errors.HunkMismatch(path)
	}
	content, err := engine.SpliceLines(current, h.To, restored)
	if err != nil {
		return messages.MutationResult{}, errors.HunkMismatch(path)
	}

	out := toTree.Clone()
	if !inSource && len(content) == 0 {
		delete(out.Entries, path)
	} else {
		blob, err := store.WriteBlob(content)
		if err != nil {
			return messages.MutationResult{}, err
		}
		entry, ok := toTree.Entries[path]
		if !ok {
			entry = fromTree.Entries[path]
		}
		out.Entries[path] = engine.TreeEntry{Blob: blob, Executable: entry.Executable}
	}
	treeID, err := store.WriteTree(out)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if treeID == to.Tree {
		return messages.Unchanged(), nil
	}
	if _, err := repo.RewriteCommit(to).SetTree(treeID).Write(); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, fmt.Sprintf("restore hunk in %s into %s", path, to.ID.Short()), "")
}

// applyHunk applies h to path in base and stores the result. Context and
// removed lines must match exactly. When deleted is set and the hunk empties
// the file, the path is removed instead of left as an empty file.
func applyHunk(store engine.Store, base engine.TreeID, path string, h engine.Hunk, deleted bool) (engine.TreeID, error) {
	tree, err := store.ReadTree(base)
	if err != nil {
		return "", err
	}
	content, _, err := engine.ReadFile(store, tree, path)
	if err != nil {
		return "", err
	}
	patched, err := engine.ApplyHunk(content, h)
	if err != nil {
		log.Debug("hunk does not apply", "path", path, "error", err)
		return "", errors.HunkMismatch(path)
	}
	out := tree.Clone()
	if deleted && len(patched) == 0 {
		delete(out.Entries, path)
		return store.WriteTree(out)
	}
	blob, err := store.WriteBlob(patched)
	if err != nil {
		return "", err
	}
	out.Entries[path] = engine.TreeEntry{Blob: blob, Executable: tree.Entries[path].Executable}
	return store.WriteTree(out)
}

// restorePaths returns into with paths replaced by their version in from.
func restorePaths(store engine.Store, into, from engine.TreeID, paths []messages.TreePath) (engine.TreeID, error) {
	it, err := store.ReadTree(into)
	if err != nil {
		return "", err
	}
	ft, err := store.ReadTree(from)
	if err != nil {
		return "", err
	}
	out := it.Clone()
	for _, p := range paths {
		if e, ok := ft.Entries[p.RepoPath]; ok {
			out.Entries[p.RepoPath] = e
		} else {
			delete(out.Entries, p.RepoPath)
		}
	}
	return store.WriteTree(out)
}

// transplant moves the difference between base and sibling out of from and
// into to. base is from's parent tree. The order of the edits depends on how
// the two are related, since rebasing one can rewrite the other. It returns
// the destination's final commit id.
func transplant(tx *engine.Transaction, from, to *engine.Commit, base, sibling engine.TreeID) (engine.CommitID, error) {
	repo := tx.Repo()
	store := repo.Store()
	idx, err := repo.Index()
	if err != nil {
		return "", err
	}

	remainder, err := engine.MergeTrees(store, sibling, from.Tree, base)
	if err != nil {
		return "", err
	}
	abandon := remainder == base

	apply := func(dest *engine.Commit) (*engine.Commit, error) {
		tree, err := engine.MergeTrees(store, base, dest.Tree, sibling)
		if err != nil {
			return nil, err
		}
		b := repo.RewriteCommit(dest).SetTree(tree)
		if abandon {
			b.SetDescription(combineDescriptions(dest.Description, from.Description))
		}
		return b.Write()
	}
	source := func() error {
		if abandon {
			return repo.AbandonCommit(from)
		}
		_, err := repo.RewriteCommit(from).SetTree(remainder).Write()
		return err
	}

	switch {
	case idx.IsAncestor(to.ID, from.ID):
		dest, err := apply(to)
		if err != nil {
			return "", err
		}
		if err := source(); err != nil {
			return "", err
		}
		if _, err := repo.RebaseDescendants(); err != nil {
			return "", err
		}
		return dest.ID, nil

	case idx.IsAncestor(from.ID, to.ID):
		if err := source(); err != nil {
			return "", err
		}
		mapping, err := repo.RebaseDescendantsWithMap()
		if err != nil {
			return "", err
		}
		// The rebase rewrote the destination; merge against its new tree.
		rebased, err := repo.Commit(mapped(mapping, to.ID))
		if err != nil {
			return "", err
		}
		dest, err := apply(rebased)
		if err != nil {
			return "", err
		}
		if _, err := repo.RebaseDescendants(); err != nil {
			return "", err
		}
		return dest.ID, nil

	default:
		if err := source(); err != nil {
			return "", err
		}
		if _, err := repo.RebaseDescendants(); err != nil {
			return "", err
		}
		dest, err := apply(to)
		if err != nil {
			return "", err
		}
		if _, err := repo.RebaseDescendants(); err != nil {
			return "", err
		}
		return dest.ID, nil
	}
}
