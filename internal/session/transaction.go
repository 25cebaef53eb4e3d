package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/messages"
)

var tracer = otel.Tracer("github.com/zhubert/weft/internal/session")

// Trigger says who asked for a transaction. It decides whether the working
// copy is snapshotted first.
type Trigger int

const (
	// TriggerUser is an explicit user action; it always snapshots.
	TriggerUser Trigger = iota
	// TriggerBackground is a refresh the user did not ask for.
	TriggerBackground
)

// UpdateStaleCommand is the remediation named in stale working copy errors.
const UpdateStaleCommand = "weft snapshot --update-stale"

// Staleness relates the working copy's recorded operation to the session's.
type Staleness int

const (
	// Fresh: both are at the same operation.
	Fresh Staleness = iota
	// Updated: the working copy was updated by a newer operation.
	Updated
	// Stale: the session moved on without updating the files on disk.
	Stale
	// Sibling: the two operations are on unrelated branches of history.
	Sibling
)

func (s Staleness) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Updated:
		return "updated"
	case Stale:
		return "stale"
	case Sibling:
		return "sibling"
	}
	return "unknown"
}

func (s *WorkspaceSession) shouldSnapshot(trigger Trigger) bool {
	if trigger == TriggerUser {
		return true
	}
	if auto := s.settings.Snapshot.AutoUpdate; auto != nil {
		return *auto
	}
	return !s.isLarge
}

// StartTransaction snapshots the working copy when the snapshot policy
// allows it, then opens a transaction on the current operation.
func (s *WorkspaceSession) StartTransaction(ctx context.Context, trigger Trigger) (*engine.Transaction, error) {
	if s.shouldSnapshot(trigger) {
		if _, err := s.ImportAndSnapshot(ctx); err != nil {
			return nil, err
		}
	}
	return s.op.Repo.StartTransaction(s.signature()), nil
}

// FinishTransaction commits tx if it changed anything and returns the new
// status, or nil if there was nothing to commit. Descendants of rewritten
// commits are rebased and the files on disk follow the working-copy commit.
func (s *WorkspaceSession) FinishTransaction(ctx context.Context, tx *engine.Transaction, description string) (*messages.RepoStatus, error) {
	ctx, span := tracer.Start(ctx, "session.FinishTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("description", description))

	if !tx.Repo().HasChanges() {
		span.SetAttributes(attribute.Bool("changed", false))
		return nil, nil
	}
	if _, err := tx.Repo().RebaseDescendants(); err != nil {
		return nil, errors.E(errors.Op("session.FinishTransaction"), errors.KindInternal, "cannot rebase descendants", err)
	}
	span.SetAttributes(attribute.Bool("changed", true))
	return s.commit(ctx, tx, description, true)
}

// commit publishes tx and installs the new operation. With checkout the
// files on disk are updated from the old to the new working-copy tree;
// otherwise the new tree is only recorded, because the disk already has it.
func (s *WorkspaceSession) commit(ctx context.Context, tx *engine.Transaction, description string, checkout bool) (*messages.RepoStatus, error) {
	const op = errors.Op("session.commit")
	m := tx.Repo()

	oldWC, err := s.op.WCCommit()
	if err != nil {
		return nil, err
	}
	newWC, err := m.Commit(m.View().WCCommits[s.workspace])
	if err != nil {
		return nil, errors.E(op, errors.KindInternal, "working-copy commit missing after transaction", err)
	}

	if s.colocation != nil {
		if s.colocated {
			head, err := s.colocation.ResetHead(ctx, newWC)
			if err != nil {
				return nil, errors.E(op, errors.KindGit, "cannot reset git HEAD", err)
			}
			m.SetGitHead(head)
		}
		if err := s.colocation.ExportRefs(ctx, m.View()); err != nil {
			return nil, errors.E(op, errors.KindGit, "cannot export refs to git", err)
		}
	}

	repo, err := tx.Commit(description)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, "cannot write operation", err)
	}
	s.install(repo)
	s.log.Debug("committed operation", "operation", repo.OperationID().Short(), "description", description)

	if oldWC.Tree != newWC.Tree {
		if checkout {
			stats, err := s.wc.CheckOut(oldWC.Tree, newWC.Tree)
			if err != nil {
				return nil, errors.E(op, errors.KindIO, "cannot update working copy", err)
			}
			s.log.Debug("updated working copy", "added", stats.Added, "updated", stats.Updated, "removed", stats.Removed)
		} else {
			s.wc.Reset(newWC.Tree)
		}
	}
	if err := s.wc.Finish(repo.OperationID()); err != nil {
		return nil, errors.E(op, errors.KindIO, "cannot save working copy state", err)
	}
	return s.Status()
}

// ImportAndSnapshot brings outside changes into the repository: git's HEAD
// for colocated workspaces, then the files on disk, then git's refs. It
// returns the status after the last change, or nil if nothing changed.
func (s *WorkspaceSession) ImportAndSnapshot(ctx context.Context) (*messages.RepoStatus, error) {
	ctx, span := tracer.Start(ctx, "session.ImportAndSnapshot")
	defer span.End()

	var status *messages.RepoStatus
	if s.colocated {
		st, err := s.importGitHead(ctx)
		if err != nil {
			return nil, err
		}
		status = firstNonNil(st, status)
	}
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	status = firstNonNil(st, status)
	if s.colocated {
		st, err := s.importGitRefs(ctx)
		if err != nil {
			return nil, err
		}
		status = firstNonNil(st, status)
	}
	return status, nil
}

func firstNonNil(a, b *messages.RepoStatus) *messages.RepoStatus {
	if a != nil {
		return a
	}
	return b
}

// importGitHead follows a HEAD moved by git itself: the working copy moves
// onto the new HEAD, and the old working-copy commit is abandoned if it
// was an empty leaf. The files on disk already match, so none are written.
func (s *WorkspaceSession) importGitHead(ctx context.Context) (*messages.RepoStatus, error) {
	const op = errors.Op("session.importGitHead")
	head, moved, err := s.colocation.ImportHead(ctx, s.op.Repo.View())
	if err != nil {
		return nil, errors.E(op, errors.KindGit, "cannot import git HEAD", err)
	}
	if !moved || head == "" {
		return nil, nil
	}
	s.log.Info("git HEAD moved", "head", head.Short())

	tx := s.op.Repo.StartTransaction(s.signature())
	m := tx.Repo()
	if err := m.AddHead(head); err != nil {
		return nil, err
	}
	m.SetGitHead(head)
	headCommit, err := m.Commit(head)
	if err != nil {
		return nil, err
	}
	if _, err := m.CheckOut(s.workspace, headCommit); err != nil {
		return nil, errors.E(op, errors.KindInternal, err)
	}
	if _, err := m.RebaseDescendants(); err != nil {
		return nil, errors.E(op, errors.KindInternal, err)
	}
	return s.commit(ctx, tx, "import git head", false)
}

func (s *WorkspaceSession) importGitRefs(ctx context.Context) (*messages.RepoStatus, error) {
	tx := s.op.Repo.StartTransaction(s.signature())
	if err := s.colocation.ImportRefs(ctx, tx.Repo()); err != nil {
		return nil, errors.E(errors.Op("session.importGitRefs"), errors.KindGit, "cannot import git refs", err)
	}
	if !tx.Repo().HasChanges() {
		return nil, nil
	}
	if _, err := tx.Repo().RebaseDescendants(); err != nil {
		return nil, err
	}
	return s.commit(ctx, tx, "import git refs", true)
}

// CheckStaleness compares the working copy's operation with the session's.
// A working copy behind the session is still fresh if its working-copy
// commit is unchanged, since only other state moved.
func (s *WorkspaceSession) CheckStaleness() (Staleness, error) {
	wcOp := s.wc.OperationID()
	cur := s.op.ID()
	if wcOp == cur {
		return Fresh, nil
	}
	behind, err := engine.IsOpAncestor(s.store, wcOp, cur)
	if err != nil {
		return Fresh, err
	}
	if behind {
		old, err := s.store.ReadOperation(wcOp)
		if err != nil {
			return Fresh, err
		}
		if old.View.WCCommits[s.workspace] == s.op.WCID {
			return Fresh, nil
		}
		return Stale, nil
	}
	ahead, err := engine.IsOpAncestor(s.store, cur, wcOp)
	if err != nil {
		return Fresh, err
	}
	if ahead {
		return Updated, nil
	}
	return Sibling, nil
}

// snapshot records the files on disk into the working-copy commit.
func (s *WorkspaceSession) snapshot(ctx context.Context) (*messages.RepoStatus, error) {
	const op = errors.Op("session.snapshot")
	for reloaded := false; ; reloaded = true {
		state, err := s.CheckStaleness()
		if err != nil {
			return nil, errors.E(op, errors.KindIO, err)
		}
		if state == Fresh {
			break
		}
		switch state {
		case Updated:
			if reloaded {
				return nil, errors.E(op, errors.KindInternal, "working copy still ahead after reload")
			}
			s.log.Info("working copy updated by another process; reloading", "operation", s.wc.OperationID().Short())
			if err := s.ReloadAt(s.wc.OperationID()); err != nil {
				return nil, err
			}
			continue
		case Stale:
			return nil, errors.StaleWorkingCopy(UpdateStaleCommand)
		default:
			return nil, errors.SiblingOperation(s.wc.OperationID().Short())
		}
	}

	wcCommit, err := s.op.WCCommit()
	if err != nil {
		return nil, err
	}
	tree, err := s.wc.Snapshot()
	if err != nil {
		return nil, errors.E(op, errors.KindIO, "cannot snapshot working copy", err)
	}
	if tree == wcCommit.Tree {
		if s.wc.OperationID() != s.op.ID() {
			if err := s.wc.Finish(s.op.ID()); err != nil {
				return nil, errors.E(op, errors.KindIO, err)
			}
		}
		return nil, nil
	}

	tx := s.op.Repo.StartTransaction(s.signature())
	if _, err := tx.Repo().RewriteCommit(wcCommit).SetTree(tree).Write(); err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	if _, err := tx.Repo().RebaseDescendants(); err != nil {
		return nil, errors.E(op, errors.KindInternal, "cannot rebase descendants", err)
	}
	return s.commit(ctx, tx, "snapshot working copy", false)
}

// UpdateStale repairs a stale working copy by writing the current
// working-copy commit's files to disk and recording the session's operation.
// Edits made on disk since the working copy's last operation are lost.
func (s *WorkspaceSession) UpdateStale(ctx context.Context) (*messages.RepoStatus, error) {
	const op = errors.Op("session.UpdateStale")
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	wcCommit, err := s.op.WCCommit()
	if err != nil {
		return nil, err
	}
	stats, err := s.wc.Recover(wcCommit.Tree)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, "cannot update working copy", err)
	}
	if err := s.wc.Finish(s.op.ID()); err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	s.log.Info("updated stale working copy", "files", stats.Updated, "removed", stats.Removed)
	return s.Status()
}

// Reload resolves the current operation again, picking up other writers.
func (s *WorkspaceSession) Reload(ctx context.Context) error {
	repo, err := ResolveOperation(s.store, s.signature())
	if err != nil {
		return err
	}
	if repo.OperationID() != s.op.ID() {
		s.install(repo)
	}
	return nil
}

// ReloadAt installs the repository at a specific operation.
func (s *WorkspaceSession) ReloadAt(id engine.OperationID) error {
	repo, err := engine.LoadRepoAt(s.store, id)
	if err != nil {
		return errors.E(errors.Op("session.ReloadAt"), errors.KindIO, "cannot load operation "+id.Short(), err)
	}
	s.install(repo)
	return nil
}
