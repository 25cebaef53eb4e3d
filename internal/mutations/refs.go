package mutations

import (
	"context"
	"fmt"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/session"
)

// TrackBookmark makes the local bookmark follow a remote bookmark,
// creating the local bookmark if needed.
type TrackBookmark struct {
	Ref messages.Ref `json:"ref"`
}

func (*TrackBookmark) Type() string { return "track_bookmark" }

func (m *TrackBookmark) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	if m.Ref.Kind != messages.RefRemoteBookmark {
		return messages.PreconditionError(fmt.Sprintf("%s is not a remote bookmark", m.Ref.DisplayName())), nil
	}
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	remote, ok := repo.View().RemoteBookmark(m.Ref.Name, m.Ref.Remote)
	if !ok {
		return messages.PreconditionError(fmt.Sprintf("no such bookmark %s", m.Ref.DisplayName())), nil
	}
	if remote.Tracked {
		return messages.Unchanged(), nil
	}
	if _, exists := repo.View().LocalBookmarks[m.Ref.Name]; !exists {
		repo.SetLocalBookmark(m.Ref.Name, remote.Target)
	}
	repo.SetRemoteBookmark(m.Ref.Name, m.Ref.Remote, engine.RemoteRef{Target: remote.Target, Tracked: true})
	return finish(ctx, s, tx, "track remote bookmark "+m.Ref.DisplayName(), "")
}

// UntrackBookmark stops a local bookmark following a remote. For a local
// bookmark every remote is untracked.
type UntrackBookmark struct {
	Ref messages.Ref `json:"ref"`
}

func (*UntrackBookmark) Type() string { return "untrack_bookmark" }

func (m *UntrackBookmark) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	view := repo.View()
	switch m.Ref.Kind {
	case messages.RefRemoteBookmark:
		ref, ok := view.RemoteBookmark(m.Ref.Name, m.Ref.Remote)
		if !ok {
			return messages.PreconditionError(fmt.Sprintf("no such bookmark %s", m.Ref.DisplayName())), nil
		}
		repo.SetRemoteBookmark(m.Ref.Name, m.Ref.Remote, engine.RemoteRef{Target: ref.Target})
	case messages.RefLocalBookmark:
		for _, remote := range view.Remotes() {
			if ref, ok := view.RemoteBookmark(m.Ref.Name, remote); ok && ref.Tracked {
				repo.SetRemoteBookmark(m.Ref.Name, remote, engine.RemoteRef{Target: ref.Target})
			}
		}
	default:
		return messages.PreconditionError(fmt.Sprintf("%s is not a bookmark", m.Ref.DisplayName())), nil
	}
	return finish(ctx, s, tx, "untrack bookmark "+m.Ref.DisplayName(), "")
}

// RenameBookmark renames a local bookmark.
type RenameBookmark struct {
	Ref     messages.Ref `json:"ref"`
	NewName string       `json:"new_name"`
}

func (*RenameBookmark) Type() string { return "rename_bookmark" }

func (m *RenameBookmark) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	if m.Ref.Kind != messages.RefLocalBookmark {
		return messages.PreconditionError(fmt.Sprintf("cannot rename %s", m.Ref.DisplayName())), nil
	}
	if m.NewName == "" {
		return messages.PreconditionError("bookmark name cannot be empty"), nil
	}
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	target, ok := repo.View().LocalBookmarks[m.Ref.Name]
	if !ok {
		return messages.PreconditionError(fmt.Sprintf("no such bookmark %s", m.Ref.Name)), nil
	}
	if m.NewName == m.Ref.Name {
		return messages.Unchanged(), nil
	}
	if _, exists := repo.View().LocalBookmarks[m.NewName]; exists {
		return messages.MutationResult{}, errors.RefExists("bookmark", m.NewName)
	}
	repo.SetLocalBookmark(m.Ref.Name, "")
	repo.SetLocalBookmark(m.NewName, target)
	return finish(ctx, s, tx, fmt.Sprintf("rename bookmark %s to %s", m.Ref.Name, m.NewName), "")
}

// CreateRef adds a local bookmark or tag.
type CreateRef struct {
	ID  messages.RevID `json:"id"`
	Ref messages.Ref   `json:"ref"`
}

func (*CreateRef) Type() string { return "create_ref" }

func (m *CreateRef) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	if m.Ref.Name == "" {
		return messages.PreconditionError("ref name cannot be empty"), nil
	}
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	c, err := s.ResolveChange(m.ID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	view := repo.View()
	switch m.Ref.Kind {
	case messages.RefLocalBookmark:
		if _, exists := view.LocalBookmarks[m.Ref.Name]; exists {
			return messages.MutationResult{}, errors.RefExists("bookmark", m.Ref.Name)
		}
		repo.SetLocalBookmark(m.Ref.Name, c.ID)
	case messages.RefTag:
		if _, exists := view.Tags[m.Ref.Name]; exists {
			return messages.MutationResult{}, errors.RefExists("tag", m.Ref.Name)
		}
		repo.SetTag(m.Ref.Name, c.ID)
	default:
		return messages.PreconditionError("remote bookmarks are created by pushing"), nil
	}
	return finish(ctx, s, tx, fmt.Sprintf("create %s %s pointing to commit %s", m.Ref.Kind, m.Ref.Name, c.ID.Short()), "")
}

// DeleteRef removes a bookmark or tag. Deleting a remote bookmark forgets
// it locally; it is not deleted on the remote.
type DeleteRef struct {
	Ref messages.Ref `json:"ref"`
}

func (*DeleteRef) Type() string { return "delete_ref" }

func (m *DeleteRef) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	switch m.Ref.Kind {
	case messages.RefLocalBookmark:
		repo.SetLocalBookmark(m.Ref.Name, "")
	case messages.RefTag:
		repo.SetTag(m.Ref.Name, "")
	case messages.RefRemoteBookmark:
		repo.SetRemoteBookmark(m.Ref.Name, m.Ref.Remote, engine.RemoteRef{})
		if col := s.Git(); col != nil && s.Colocated() {
			if err := col.Service().DeleteRef(ctx, "refs/remotes/"+m.Ref.Remote+"/"+m.Ref.Name); err != nil {
				return messages.MutationResult{}, err
			}
		}
	}
	return finish(ctx, s, tx, "delete "+string(m.Ref.Kind)+" "+m.Ref.DisplayName(), "")
}

// MoveRef points an existing local bookmark or tag at another revision.
type MoveRef struct {
	Ref  messages.Ref   `json:"ref"`
	ToID messages.RevID `json:"to_id"`
}

func (*MoveRef) Type() string { return "move_ref" }

func (m *MoveRef) Execute(ctx context.Context, s *session.WorkspaceSession, _ *Env) (messages.MutationResult, error) {
	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	c, err := s.ResolveChange(m.ToID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	view := repo.View()
	switch m.Ref.Kind {
	case messages.RefLocalBookmark:
		if _, ok := view.LocalBookmarks[m.Ref.Name]; !ok {
			return messages.PreconditionError(fmt.Sprintf("no such bookmark %s", m.Ref.Name)), nil
		}
		repo.SetLocalBookmark(m.Ref.Name, c.ID)
	case messages.RefTag:
		if _, ok := view.Tags[m.Ref.Name]; !ok {
			return messages.PreconditionError(fmt.Sprintf("no such tag %s", m.Ref.Name)), nil
		}
		repo.SetTag(m.Ref.Name, c.ID)
	default:
		return messages.PreconditionError("remote bookmarks are moved by pushing or fetching"), nil
	}
	return finish(ctx, s, tx, fmt.Sprintf("point %s %s to commit %s", m.Ref.Kind, m.Ref.Name, c.ID.Short()), "")
}
