package mutations

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/zhubert/weft/internal/askpass"
	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/git"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/session"
)

// GitPush pushes one bookmark, or every tracked bookmark that moved, to a
// remote.
type GitPush struct {
	Remote   string                  `json:"remote,omitempty"`
	Bookmark string                  `json:"bookmark,omitempty"`
	Input    *messages.InputResponse `json:"input,omitempty"`
}

func (*GitPush) Type() string { return "git_push" }

func (m *GitPush) Execute(ctx context.Context, s *session.WorkspaceSession, env *Env) (messages.MutationResult, error) {
	col := s.Git()
	if col == nil {
		return messages.PreconditionError("this workspace has no git backend"), nil
	}
	remote := m.Remote
	if remote == "" {
		remote = s.Settings().Git.PushRemote
	}
	remotes, err := col.Service().Remotes(ctx)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if !slices.Contains(remotes, remote) {
		return messages.PreconditionError(fmt.Sprintf("no such remote %s", remote)), nil
	}

	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	repo := tx.Repo()
	view := repo.View()
	names := []string{m.Bookmark}
	if m.Bookmark == "" {
		names = pushCandidates(view, remote)
	}

	var refs []git.PushRef
	updates := map[string]engine.CommitID{}
	for _, name := range names {
		local, hasLocal := view.LocalBookmarks[name]
		tracked, hasRemote := view.RemoteBookmark(name, remote)
		switch {
		case !hasLocal && !hasRemote:
			return messages.PreconditionError(fmt.Sprintf("no such bookmark %s", name)), nil
		case hasLocal && hasRemote && tracked.Target == local:
			continue
		}
		ref := git.PushRef{Branch: name}
		if hasLocal {
			if ref.SHA, err = col.ExportCommit(ctx, local); err != nil {
				return messages.MutationResult{}, err
			}
		}
		if hasRemote {
			if ref.ExpectedSHA, err = col.ExportCommit(ctx, tracked.Target); err != nil {
				return messages.MutationResult{}, err
			}
		}
		refs = append(refs, ref)
		updates[name] = local
	}
	if len(refs) == 0 {
		return messages.Unchanged(), nil
	}

	env.progress(fmt.Sprintf("Pushing to %s", remote), 0)
	req, err := withCredentials(m.Input, env, func(gitEnv []string) error {
		return col.Service().Push(ctx, remote, refs, gitEnv)
	})
	if err != nil {
		return messages.PreconditionError(fmt.Sprintf("failed to push to %s: %s", remote, errors.Message(err))), nil
	}
	if req != nil {
		return messages.InputRequired(*req), nil
	}
	env.progress(fmt.Sprintf("Pushed to %s", remote), 1)

	for name, target := range updates {
		if target == "" {
			repo.SetRemoteBookmark(name, remote, engine.RemoteRef{})
			continue
		}
		repo.SetRemoteBookmark(name, remote, engine.RemoteRef{Target: target, Tracked: true})
	}
	return finish(ctx, s, tx, fmt.Sprintf("push to %s", remote), "")
}

// pushCandidates lists the bookmarks a push to remote would update: local
// bookmarks tracking it, and tracked remote bookmarks deleted locally.
func pushCandidates(view *engine.View, remote string) []string {
	var names []string
	for name, local := range view.LocalBookmarks {
		if ref, ok := view.RemoteBookmark(name, remote); ok && ref.Tracked && ref.Target != local {
			names = append(names, name)
		}
	}
	for name, ref := range view.RemoteBookmarks[remote] {
		if _, ok := view.LocalBookmarks[name]; !ok && ref.Tracked {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GitFetch fetches remotes and imports their bookmarks. Tracked local
// bookmarks that had not moved follow their remote.
type GitFetch struct {
	Remote string                  `json:"remote,omitempty"`
	Input  *messages.InputResponse `json:"input,omitempty"`
}

func (*GitFetch) Type() string { return "git_fetch" }

func (m *GitFetch) Execute(ctx context.Context, s *session.WorkspaceSession, env *Env) (messages.MutationResult, error) {
	col := s.Git()
	if col == nil {
		return messages.PreconditionError("this workspace has no git backend"), nil
	}
	remotes, err := col.Service().Remotes(ctx)
	if err != nil {
		return messages.MutationResult{}, err
	}
	var fetch []string
	switch {
	case m.Remote != "":
		fetch = []string{m.Remote}
	case len(s.Settings().Git.FetchRemotes) > 0:
		fetch = s.Settings().Git.FetchRemotes
	default:
		fetch = remotes
	}
	if len(fetch) == 0 {
		return messages.PreconditionError("no remotes to fetch from"), nil
	}
	for _, r := range fetch {
		if !slices.Contains(remotes, r) {
			return messages.PreconditionError(fmt.Sprintf("no such remote %s", r)), nil
		}
	}

	tx, err := s.StartTransaction(ctx, session.TriggerUser)
	if err != nil {
		return messages.MutationResult{}, err
	}
	for i, r := range fetch {
		env.progress(fmt.Sprintf("Fetching %s", r), float64(i)/float64(len(fetch)))
		req, err := withCredentials(m.Input, env, func(gitEnv []string) error {
			return col.Service().Fetch(ctx, r, gitEnv)
		})
		if err != nil {
			return messages.PreconditionError(fmt.Sprintf("failed to fetch %s: %s", r, errors.Message(err))), nil
		}
		if req != nil {
			return messages.InputRequired(*req), nil
		}
	}
	env.progress("Fetched", 1)

	repo := tx.Repo()
	before := repo.View().Clone()
	if err := col.ImportRefs(ctx, repo); err != nil {
		return messages.MutationResult{}, err
	}
	followTrackedBookmarks(repo, before)
	return finish(ctx, s, tx, "fetch from git remote(s) "+strings.Join(fetch, ", "), "")
}

// followTrackedBookmarks moves local bookmarks that sat on their tracked
// remote's old target to the remote's new target.
func followTrackedBookmarks(repo *engine.MutableRepo, before *engine.View) {
	after := repo.View()
	for remote, refs := range after.RemoteBookmarks {
		for name, ref := range refs {
			old, ok := before.RemoteBookmark(name, remote)
			if !ok || !ref.Tracked || old.Target == ref.Target {
				continue
			}
			if local, ok := after.LocalBookmarks[name]; ok && local == old.Target {
				repo.SetLocalBookmark(name, ref.Target)
			}
		}
	}
}

// withCredentials runs a git network command with prompts relayed to an
// askpass server answering from input. If the command fails after asking
// something input could not answer, the prompts are returned as a request.
func withCredentials(input *messages.InputResponse, env *Env, run func(gitEnv []string) error) (*messages.InputRequest, error) {
	if input != nil && input.Cancel {
		return nil, errors.E(errors.Op("mutations.withCredentials"), errors.KindAuth, "cancelled by user")
	}
	var answers map[string]string
	if input != nil {
		answers = input.Fields
	}
	responses := askpass.NewResponses(answers)
	srv, err := askpass.NewServer(responses)
	if err != nil {
		return nil, err
	}
	srv.Start()
	defer srv.Close()

	executable := ""
	if env != nil {
		executable = env.Executable
	}
	if executable == "" {
		if executable, err = os.Executable(); err != nil {
			return nil, err
		}
	}

	err = run(srv.Env(executable))
	if err == nil {
		return nil, nil
	}
	prompts := responses.Unanswered()
	if len(prompts) == 0 {
		return nil, err
	}
	log.Info("git asked for credentials", "prompts", len(prompts))
	return inputRequest(prompts), nil
}

func inputRequest(prompts []string) *messages.InputRequest {
	req := &messages.InputRequest{
		Title:  "Git Login",
		Detail: "The remote requires authentication.",
	}
	for _, p := range prompts {
		req.Fields = append(req.Fields, messages.InputField{Label: p})
	}
	return req
}
