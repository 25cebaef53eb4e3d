package session

import (
	"cmp"
	"slices"
	"strings"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/revset"
)

// SessionOperation is the repository at one resolved operation plus the
// caches derived from it. It is never modified after construction.
type SessionOperation struct {
	Repo      *engine.ReadonlyRepo
	Workspace string
	WCID      engine.CommitID

	refIndex map[engine.CommitID][]messages.Ref
	prefixes *PrefixContext
}

// NewSessionOperation builds the snapshot and its caches. The
// disambiguation revset is evaluated once here; if it fails the prefix
// context covers no commits and every prefix is repo-wide.
func NewSessionOperation(repo *engine.ReadonlyRepo, workspace string, disambiguation string, aliases *revset.AliasTable, userEmail string) *SessionOperation {
	op := &SessionOperation{
		Repo:      repo,
		Workspace: workspace,
		WCID:      repo.View().WCCommits[workspace],
		refIndex:  buildRefIndex(repo.View()),
	}

	// The disambiguation set is evaluated with repo-wide prefixes; it
	// cannot depend on itself.
	op.prefixes = newPrefixContext(repo.Index(), nil)
	set := map[engine.CommitID]bool{}
	if disambiguation != "" {
		res, err := revset.Evaluate(op.revsetContext(aliases, userEmail), disambiguation)
		if err == nil {
			set = res.Set()
		} else {
			log.Warn("disambiguation revset failed", "revset", disambiguation, "error", err)
		}
	}
	op.prefixes = newPrefixContext(repo.Index(), set)
	return op
}

func (op *SessionOperation) revsetContext(aliases *revset.AliasTable, userEmail string) *revset.Context {
	return &revset.Context{
		Store:     op.Repo.Store(),
		Index:     op.Repo.Index(),
		View:      op.Repo.View(),
		Workspace: op.Workspace,
		UserEmail: userEmail,
		Aliases:   aliases,
		Resolver:  &symbolResolver{op: op},
	}
}

// ID returns the operation id.
func (op *SessionOperation) ID() engine.OperationID {
	return op.Repo.OperationID()
}

// Refs returns the bookmarks and tags pointing at id.
func (op *SessionOperation) Refs(id engine.CommitID) []messages.Ref {
	return op.refIndex[id]
}

// Prefixes returns the id-prefix context of this operation.
func (op *SessionOperation) Prefixes() *PrefixContext {
	return op.prefixes
}

// WCCommit returns the workspace's working-copy commit.
func (op *SessionOperation) WCCommit() (*engine.Commit, error) {
	if op.WCID == "" {
		return nil, errors.E(errors.Op("session.WCCommit"), errors.KindNotFound, "workspace "+op.Workspace+" has no working-copy commit")
	}
	return op.Repo.Commit(op.WCID)
}

// FormatCommitID splits a commit id at its shortest unique prefix.
func (op *SessionOperation) FormatCommitID(id engine.CommitID) messages.ID {
	return messages.NewID(string(id), op.prefixes.ShortestCommitPrefixLen(id))
}

// FormatChangeID splits a change id at its shortest unique prefix.
func (op *SessionOperation) FormatChangeID(id engine.ChangeID) messages.ID {
	return messages.NewID(string(id), op.prefixes.ShortestChangePrefixLen(id))
}

// FormatRevID returns the dual id of c.
func (op *SessionOperation) FormatRevID(c *engine.Commit) messages.RevID {
	return messages.RevID{
		Change: op.FormatChangeID(c.ChangeID),
		Commit: op.FormatCommitID(c.ID),
	}
}

func buildRefIndex(view *engine.View) map[engine.CommitID][]messages.Ref {
	index := map[engine.CommitID][]messages.Ref{}
	for name, target := range view.LocalBookmarks {
		unpushed := false
		for _, remote := range view.Remotes() {
			if ref, ok := view.RemoteBookmark(name, remote); ok && ref.Tracked && ref.Target != target {
				unpushed = true
			}
		}
		index[target] = append(index[target], messages.Ref{Kind: messages.RefLocalBookmark, Name: name, HasUnpushed: unpushed})
	}
	for remote, refs := range view.RemoteBookmarks {
		for name, ref := range refs {
			index[ref.Target] = append(index[ref.Target], messages.Ref{
				Kind:      messages.RefRemoteBookmark,
				Name:      name,
				Remote:    remote,
				IsTracked: ref.Tracked,
			})
		}
	}
	for name, target := range view.Tags {
		index[target] = append(index[target], messages.Ref{Kind: messages.RefTag, Name: name})
	}
	order := map[messages.RefKind]int{messages.RefLocalBookmark: 0, messages.RefRemoteBookmark: 1, messages.RefTag: 2}
	for _, refs := range index {
		slices.SortFunc(refs, func(a, b messages.Ref) int {
			return cmp.Or(
				cmp.Compare(order[a.Kind], order[b.Kind]),
				strings.Compare(a.Name, b.Name),
				strings.Compare(a.Remote, b.Remote),
			)
		})
	}
	return index
}

// PrefixContext shortens and resolves id prefixes. Prefixes only need to be
// unique within the disambiguation set; ids outside it get repo-wide
// unique prefixes, and resolution tries the set first.
type PrefixContext struct {
	index   *engine.Index
	set     map[engine.CommitID]bool
	commits *engine.PrefixSet
	changes *engine.PrefixSet
}

func newPrefixContext(index *engine.Index, set map[engine.CommitID]bool) *PrefixContext {
	var commitKeys, changeKeys []string
	for id := range set {
		c, ok := index.Commit(id)
		if !ok {
			continue
		}
		commitKeys = append(commitKeys, string(id))
		changeKeys = append(changeKeys, string(c.ChangeID))
	}
	return &PrefixContext{
		index:   index,
		set:     set,
		commits: engine.NewPrefixSet(commitKeys),
		changes: engine.NewPrefixSet(changeKeys),
	}
}

// ShortestCommitPrefixLen returns the prefix length shown for id.
func (p *PrefixContext) ShortestCommitPrefixLen(id engine.CommitID) int {
	if p.set[id] {
		return p.commits.ShortestUniquePrefixLen(string(id))
	}
	return p.index.ShortestCommitPrefixLen(id)
}

// ShortestChangePrefixLen returns the prefix length shown for id.
func (p *PrefixContext) ShortestChangePrefixLen(id engine.ChangeID) int {
	if _, res := p.changes.Resolve(string(id)); res == engine.SingleMatch {
		return p.changes.ShortestUniquePrefixLen(string(id))
	}
	return p.index.ShortestChangePrefixLen(id)
}

// ResolveCommitPrefix resolves a commit id prefix.
func (p *PrefixContext) ResolveCommitPrefix(prefix string) (engine.CommitID, engine.PrefixResolution) {
	if match, res := p.commits.Resolve(prefix); res != engine.NoMatch {
		return engine.CommitID(match), res
	}
	return p.index.ResolveCommitPrefix(prefix)
}

// ResolveChangePrefix resolves a change id prefix to the visible commits
// of the change.
func (p *PrefixContext) ResolveChangePrefix(prefix string) ([]engine.CommitID, engine.PrefixResolution) {
	match, res := p.changes.Resolve(prefix)
	switch res {
	case engine.SingleMatch:
		return p.index.CommitsForChange(engine.ChangeID(match)), res
	case engine.AmbiguousMatch:
		return nil, res
	}
	return p.index.ResolveChangePrefix(prefix)
}

// symbolResolver resolves revset symbols against one operation.
type symbolResolver struct {
	op *SessionOperation
}

func (r *symbolResolver) ResolveSymbol(name string) ([]engine.CommitID, error) {
	view := r.op.Repo.View()

	if name == "@" {
		if r.op.WCID == "" {
			return nil, errors.RevisionNotFound("@")
		}
		return []engine.CommitID{r.op.WCID}, nil
	}
	if ws, ok := strings.CutSuffix(name, "@"); ok {
		id, found := view.WCCommits[ws]
		if !found {
			return nil, errors.RevisionNotFound(name)
		}
		return []engine.CommitID{id}, nil
	}
	if i := strings.LastIndexByte(name, '@'); i > 0 {
		if ref, ok := view.RemoteBookmark(name[:i], name[i+1:]); ok {
			return []engine.CommitID{ref.Target}, nil
		}
		return nil, errors.RevisionNotFound(name)
	}
	if id, ok := view.LocalBookmarks[name]; ok {
		return []engine.CommitID{id}, nil
	}
	if id, ok := view.Tags[name]; ok {
		return []engine.CommitID{id}, nil
	}

	if engine.IsCommitIDPrefix(name) {
		id, res := r.op.prefixes.ResolveCommitPrefix(name)
		switch res {
		case engine.SingleMatch:
			return []engine.CommitID{id}, nil
		case engine.AmbiguousMatch:
			return nil, errors.AmbiguousRevision(name, 2)
		}
	}
	if engine.IsChangeIDPrefix(name) {
		ids, res := r.op.prefixes.ResolveChangePrefix(name)
		switch res {
		case engine.SingleMatch:
			return ids, nil
		case engine.AmbiguousMatch:
			return nil, errors.AmbiguousRevision(name, 2)
		}
	}
	return nil, errors.RevisionNotFound(name)
}
