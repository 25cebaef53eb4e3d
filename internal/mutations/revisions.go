package mutations

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/session"
)

// CheckoutRevision makes a revision the working-copy commit.
type CheckoutRevision struct {
	ID messages.RevID `json:"id"`
}

func (*CheckoutRevision) Type() string { return "checkout_revision" }

func (m *CheckoutRevision) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	c, err := s.ResolveChange(m.ID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if err := s.CheckMutable(c); err != nil {
		return messages.MutationResult{}, err
	}
	if err := tx.Repo().Edit(s.Operation().Workspace, c); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, "edit commit "+c.ID.Short(), "")
}

// CreateRevision starts a new empty working-copy commit on top of parents.
type CreateRevision struct {
	ParentIDs []messages.RevID `json:"parent_ids"`
}

func (*CreateRevision) Type() string { return "create_revision" }

func (m *CreateRevision) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	if len(m.ParentIDs) == 0 {
		return messages.PreconditionError("a new revision needs at least one parent"), nil
	}
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	parents, err := resolveChanges(s, m.ParentIDs)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	ids := commitIDs(parents)
	tree, err := engine.MergedParentTree(repo.Store(), ids)
	if err != nil {
		return messages.MutationResult{}, err
	}
	nc, err := repo.NewCommit(ids, tree).Write()
	if err != nil {
		return messages.MutationResult{}, err
	}
	if err := repo.Edit(s.Operation().Workspace, nc); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, "new empty commit", nc.ID)
}

// InsertRevision moves a single revision between after and before.
type InsertRevision struct {
	ID       messages.RevID `json:"id"`
	AfterID  messages.RevID `json:"after_id"`
	BeforeID messages.RevID `json:"before_id"`
}

func (*InsertRevision) Type() string { return "insert_revision" }

func (m *InsertRevision) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	operands, err := resolveChanges(s, []messages.RevID{m.ID, m.AfterID, m.BeforeID})
	if err != nil {
		return messages.MutationResult{}, err
	}
	target, after, before := operands[0], operands[1], operands[2]
	if target.ID == after.ID || target.ID == before.ID {
		return messages.PreconditionError("cannot insert a revision next to itself"), nil
	}
	if err := s.CheckMutable(target, before); err != nil {
		return messages.MutationResult{}, err
	}

	mapping, err := disinheritChildren(tx, target)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	afterID := mapped(mapping, after.ID)
	before, err = repo.Commit(mapped(mapping, before.ID))
	if err != nil {
		return messages.MutationResult{}, err
	}

	newParents := []engine.CommitID{afterID}
	tree, err := repo.RebasedTree(target, newParents)
	if err != nil {
		return messages.MutationResult{}, err
	}
	moved, err := repo.RewriteCommit(target).SetParents(newParents).SetTree(tree).Write()
	if err != nil {
		return messages.MutationResult{}, err
	}

	var beforeParents []engine.CommitID
	replaced := false
	for _, p := range before.Parents {
		if p == afterID {
			p, replaced = moved.ID, true
		}
		beforeParents = append(beforeParents, p)
	}
	if !replaced {
		beforeParents = []engine.CommitID{moved.ID}
	}
	beforeTree, err := repo.RebasedTree(before, beforeParents)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if _, err := repo.RewriteCommit(before).SetParents(beforeParents).SetTree(beforeTree).Write(); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, fmt.Sprintf("insert commit %s", target.ID.Short()), moved.ID)
}

// MoveRevision rebases a single revision; its children stay where they
// are, moving onto its old parents.
type MoveRevision struct {
	ID        messages.RevID   `json:"id"`
	ParentIDs []messages.RevID `json:"parent_ids"`
}

func (*MoveRevision) Type() string { return "move_revision" }

func (m *MoveRevision) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	target, err := s.ResolveChange(m.ID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	parents, err := resolveChanges(s, m.ParentIDs)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if slices.Contains(commitIDs(parents), target.ID) {
		return messages.PreconditionError("cannot move a revision onto itself"), nil
	}
	if err := s.CheckMutable(target); err != nil {
		return messages.MutationResult{}, err
	}

	mapping, err := disinheritChildren(tx, target)
	if err != nil {
		return messages.MutationResult{}, err
	}
	var newParents []engine.CommitID
	for _, p := range parents {
		newParents = append(newParents, mapped(mapping, p.ID))
	}
	repo := tx.Repo()
	tree, err := repo.RebasedTree(target, newParents)
	if err != nil {
		return messages.MutationResult{}, err
	}
	moved, err := repo.RewriteCommit(target).SetParents(newParents).SetTree(tree).Write()
	if err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, fmt.Sprintf("rebase commit %s", target.ID.Short()), moved.ID)
}

// MoveSource rebases a revision together with its descendants.
type MoveSource struct {
	ID        messages.RevID   `json:"id"`
	ParentIDs []messages.RevID `json:"parent_ids"`
}

func (*MoveSource) Type() string { return "move_source" }

func (m *MoveSource) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	target, err := s.ResolveChange(m.ID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	parents, err := resolveChanges(s, m.ParentIDs)
	if err != nil {
		return messages.MutationResult{}, err
	}
	idx := s.Repo().Index()
	for _, p := range parents {
		if idx.IsAncestor(target.ID, p.ID) {
			return messages.PreconditionError(fmt.Sprintf("cannot rebase %s onto its own descendant", s.Operation().FormatChangeID(target.ChangeID).Prefix)), nil
		}
	}
	if err := s.CheckMutable(target); err != nil {
		return messages.MutationResult{}, err
	}

	repo := tx.Repo()
	newParents := commitIDs(parents)
	tree, err := repo.RebasedTree(target, newParents)
	if err != nil {
		return messages.MutationResult{}, err
	}
	moved, err := repo.RewriteCommit(target).SetParents(newParents).SetTree(tree).Write()
	if err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, fmt.Sprintf("rebase commit %s and descendants", target.ID.Short()), moved.ID)
}

// DescribeRevision sets a revision's description.
type DescribeRevision struct {
	ID             messages.RevID `json:"id"`
	NewDescription string         `json:"new_description"`
	ResetAuthor    bool           `json:"reset_author"`
}

func (*DescribeRevision) Type() string { return "describe_revision" }

func (m *DescribeRevision) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	c, err := s.ResolveChange(m.ID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if c.Description == m.NewDescription && !m.ResetAuthor {
		return messages.Unchanged(), nil
	}
	if err := s.CheckMutable(c); err != nil {
		return messages.MutationResult{}, err
	}
	b := tx.Repo().RewriteCommit(c).SetDescription(m.NewDescription)
	if m.ResetAuthor {
		b.ResetAuthor()
	}
	if _, err := b.Write(); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, "describe commit "+c.ID.Short(), "")
}

// DuplicateRevisions copies a contiguous range onto the same parents.
type DuplicateRevisions struct {
	IDs messages.RevSet `json:"ids"`
}

func (*DuplicateRevisions) Type() string { return "duplicate_revisions" }

func (m *DuplicateRevisions) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	commits, err := s.ResolveMultipleChanges(m.IDs)
	if err != nil {
		return messages.MutationResult{}, err
	}

	repo := tx.Repo()
	copies := map[engine.CommitID]engine.CommitID{}
	var head engine.CommitID
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		parents := make([]engine.CommitID, len(c.Parents))
		for j, p := range c.Parents {
			parents[j] = mapped(copies, p)
		}
		dup, err := repo.DuplicateCommit(c).SetParents(parents).Write()
		if err != nil {
			return messages.MutationResult{}, err
		}
		copies[c.ID] = dup.ID
		head = dup.ID
	}
	return finish(ctx, s, tx, fmt.Sprintf("duplicate %d commit(s)", len(commits)), head)
}

// AbandonRevisions hides revisions; their children move onto their parents.
type AbandonRevisions struct {
	IDs []messages.RevID `json:"ids"`
}

func (*AbandonRevisions) Type() string { return "abandon_revisions" }

func (m *AbandonRevisions) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	commits, err := resolveChanges(s, m.IDs)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if err := s.CheckMutable(commits...); err != nil {
		return messages.MutationResult{}, err
	}
	var short []string
	for _, c := range commits {
		if err := tx.Repo().AbandonCommit(c); err != nil {
			return messages.MutationResult{}, err
		}
		short = append(short, c.ID.Short())
	}
	return finish(ctx, s, tx, "abandon commit "+strings.Join(short, ", "), "")
}

// BackoutRevisions adds a working-copy commit on top of @ that reverts a
// contiguous range.
type BackoutRevisions struct {
	IDs messages.RevSet `json:"ids"`
}

func (*BackoutRevisions) Type() string { return "backout_revisions" }

func (m *BackoutRevisions) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	commits, err := s.ResolveMultipleChanges(m.IDs)
	if err != nil {
		return messages.MutationResult{}, err
	}
	wc, err := s.WCCommit()
	if err != nil {
		return messages.MutationResult{}, err
	}

	repo := tx.Repo()
	store := repo.Store()
	newest, oldest := commits[0], commits[len(commits)-1]
	base, err := engine.MergedParentTree(store, oldest.Parents)
	if err != nil {
		return messages.MutationResult{}, err
	}
	tree, err := engine.MergeTrees(store, newest.Tree, wc.Tree, base)
	if err != nil {
		return messages.MutationResult{}, err
	}

	var lines []string
	for _, c := range commits {
		summary, _, _ := strings.Cut(c.Description, "\n")
		lines = append(lines, fmt.Sprintf("Back out %q", summary))
	}
	nc, err := repo.NewCommit([]engine.CommitID{wc.ID}, tree).SetDescription(strings.Join(lines, "\n")).Write()
	if err != nil {
		return messages.MutationResult{}, err
	}
	if err := repo.Edit(s.Operation().Workspace, nc); err != nil {
		return messages.MutationResult{}, err
	}
	return finish(ctx, s, tx, fmt.Sprintf("back out %d commit(s)", len(commits)), nc.ID)
}
