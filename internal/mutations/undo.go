package mutations

import (
	"context"

	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/session"
)

// UndoOperation records a new operation restoring the refs and heads from
// before the latest one.
type UndoOperation struct{}

func (*UndoOperation) Type() string { return "undo_operation" }

func (m *UndoOperation) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	head := tx.Base().Operation()
	if len(head.Parents) != 1 {
		return messages.PreconditionError("cannot undo a merge operation"), nil
	}
	parent, err := tx.Repo().Store().ReadOperation(head.Parents[0])
	if err != nil {
		return messages.MutationResult{}, err
	}
	if parent.IsRoot() {
		return messages.PreconditionError("nothing to undo"), nil
	}
	tx.Repo().SetView(parent.View)
	return finish(ctx, s, tx, "undo operation "+head.ID.Short(), "")
}
