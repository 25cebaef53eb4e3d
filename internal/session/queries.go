package session

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/messages"
)

// DiffContext is the number of context lines around each hunk.
const DiffContext = 3

// QueryRevisions describes a contiguous range: headers newest first, the
// parents of the oldest member, and the combined changes of the range.
func (s *WorkspaceSession) QueryRevisions(set messages.RevSet) (*messages.RevsResult, error) {
	commits, err := s.ResolveMultipleChanges(set)
	if errors.Is(err, errors.KindNotFound) {
		return &messages.RevsResult{Kind: messages.RevsNotFound, Set: &set}, nil
	}
	if err != nil {
		return nil, err
	}
	immutable, err := s.immutableSet()
	if err != nil {
		return nil, err
	}

	result := &messages.RevsResult{Kind: messages.RevsDetail, Set: &set}
	for _, c := range commits {
		h, err := s.FormatHeader(c, immutable)
		if err != nil {
			return nil, err
		}
		result.Headers = append(result.Headers, h)
	}

	newest, oldest := commits[0], commits[len(commits)-1]
	if !oldest.IsRoot() {
		for _, p := range oldest.Parents {
			pc, err := s.op.Repo.Commit(p)
			if err != nil {
				return nil, err
			}
			h, err := s.FormatHeader(pc, immutable)
			if err != nil {
				return nil, err
			}
			result.Parents = append(result.Parents, h)
		}
	}

	baseTree := engine.EmptyTreeID
	if !oldest.IsRoot() {
		if baseTree, err = engine.MergedParentTree(s.store, oldest.Parents); err != nil {
			return nil, err
		}
	}
	changes, conflicts, err := s.diffTrees(baseTree, newest.Tree)
	if err != nil {
		return nil, err
	}
	result.Changes = changes
	result.ConflictingFiles = conflicts
	return result, nil
}

func (s *WorkspaceSession) treePath(p string) messages.TreePath {
	return messages.TreePath{RepoPath: p, RelativePath: filepath.FromSlash(p)}
}

func (s *WorkspaceSession) diffTrees(from, to engine.TreeID) ([]messages.RevChange, []messages.RevConflict, error) {
	before, err := s.store.ReadTree(from)
	if err != nil {
		return nil, nil, err
	}
	after, err := s.store.ReadTree(to)
	if err != nil {
		return nil, nil, err
	}

	var changes []messages.RevChange
	for _, fc := range engine.DiffTrees(before, after) {
		var old, cur []byte
		if fc.Before != nil {
			if old, err = s.store.ReadBlob(fc.Before.Blob); err != nil {
				return nil, nil, err
			}
		}
		if fc.After != nil {
			if cur, err = s.store.ReadBlob(fc.After.Blob); err != nil {
				return nil, nil, err
			}
		}
		change := messages.RevChange{
			Kind:        messages.ChangeKind(fc.Kind.String()),
			Path:        s.treePath(fc.Path),
			HasConflict: fc.After != nil && fc.After.Conflict,
		}
		for _, h := range engine.DiffHunks(old, cur, DiffContext) {
			change.Hunks = append(change.Hunks, changeHunk(h))
		}
		changes = append(changes, change)
	}

	var conflicts []messages.RevConflict
	for _, p := range after.Paths() {
		e := after.Entries[p]
		if !e.Conflict {
			continue
		}
		data, err := s.store.ReadBlob(e.Blob)
		if err != nil {
			return nil, nil, err
		}
		lines := engine.SplitLines(data)
		hunk := messages.ChangeHunk{
			Location: messages.HunkLocation{
				FromFile: messages.FileRange{Start: 1, Len: len(lines)},
				ToFile:   messages.FileRange{Start: 1, Len: len(lines)},
			},
		}
		for _, l := range lines {
			hunk.Lines = append(hunk.Lines, " "+l)
		}
		conflicts = append(conflicts, messages.RevConflict{Path: s.treePath(p), Hunk: hunk})
	}
	return changes, conflicts, nil
}

func changeHunk(h engine.Hunk) messages.ChangeHunk {
	return messages.ChangeHunk{
		Location: messages.HunkLocation{
			FromFile: messages.FileRange{Start: h.From.Start, Len: h.From.Len},
			ToFile:   messages.FileRange{Start: h.To.Start, Len: h.To.Len},
		},
		Lines: slices.Clone(h.Lines),
	}
}

// EngineHunk converts a UI hunk back into the engine's form.
func EngineHunk(h messages.ChangeHunk) engine.Hunk {
	return engine.Hunk{
		From:  engine.HunkRange{Start: h.Location.FromFile.Start, Len: h.Location.FromFile.Len},
		To:    engine.HunkRange{Start: h.Location.ToFile.Start, Len: h.Location.ToFile.Len},
		Lines: slices.Clone(h.Lines),
	}
}

// QueryRemotes lists the git remotes. If trackingBookmark is set, only
// remotes where that bookmark exists are returned, or every remote if it
// exists on none of them yet.
func (s *WorkspaceSession) QueryRemotes(ctx context.Context, trackingBookmark string) ([]string, error) {
	if s.colocation == nil {
		return nil, nil
	}
	remotes, err := s.colocation.Service().Remotes(ctx)
	if err != nil {
		return nil, err
	}
	if trackingBookmark == "" {
		return remotes, nil
	}
	view := s.op.Repo.View()
	var tracking []string
	for _, r := range remotes {
		if _, ok := view.RemoteBookmark(trackingBookmark, r); ok {
			tracking = append(tracking, r)
		}
	}
	if len(tracking) == 0 {
		return remotes, nil
	}
	return tracking, nil
}

// ReadConfigArray returns the string array stored at a dotted settings key.
func (s *WorkspaceSession) ReadConfigArray(key string) ([]string, error) {
	values, err := s.settings.ReadArray(key)
	if err != nil {
		return nil, errors.E(errors.Op("session.ReadConfigArray"), errors.KindConfig, err)
	}
	return values, nil
}

// WriteConfigArray stores values at a dotted key in the settings file of
// scope and reloads the settings.
func (s *WorkspaceSession) WriteConfigArray(scope config.Scope, key string, values []string) error {
	path, err := s.settings.Path(scope)
	if err != nil {
		return errors.E(errors.Op("session.WriteConfigArray"), errors.KindConfig, err)
	}
	if err := config.WriteArray(path, key, values); err != nil {
		return errors.ConfigSaveFailed(path, err)
	}
	settings, err := s.settings.Reload()
	if err != nil {
		return errors.ConfigLoadFailed(path, err)
	}
	s.settings = settings
	s.log.Debug("settings updated", "scope", scope, "key", key)
	return nil
}
