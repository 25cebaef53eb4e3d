// Package mutations implements the edits a client can request. Each edit is
// a struct decoded from a tagged JSON envelope; executing it opens one
// transaction, which is committed only if the repository changed.
package mutations

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"

	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/logger"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/session"
)

var log = logger.ComponentLogger("Mutations")

// Mutation is one edit requested by the client.
type Mutation interface {
	// Type is the tag the mutation is encoded under.
	Type() string
	Execute(ctx context.Context, s *session.WorkspaceSession, env *Env) (messages.MutationResult, error)
}

// Env carries what a mutation may need besides the session.
type Env struct {
	// Progress receives updates from long network operations. May be nil.
	Progress func(messages.Progress)
	// Executable is the binary git runs as its askpass helper.
	Executable string
}

func (e *Env) progress(message string, overall float64) {
	if e != nil && e.Progress != nil {
		e.Progress(messages.Progress{Message: message, Overall: overall})
	}
}

// Envelope is the wire form of a mutation.
type Envelope struct {
	Type     string          `json:"type"`
	Mutation json.RawMessage `json:"mutation"`
}

var registry = map[string]func() Mutation{}

func register(f func() Mutation) {
	registry[f().Type()] = f
}

func init() {
	register(func() Mutation { return &CheckoutRevision{} })
	register(func() Mutation { return &CreateRevision{} })
	register(func() Mutation { return &InsertRevision{} })
	register(func() Mutation { return &MoveRevision{} })
	register(func() Mutation { return &MoveSource{} })
	register(func() Mutation { return &DescribeRevision{} })
	register(func() Mutation { return &DuplicateRevisions{} })
	register(func() Mutation { return &AbandonRevisions{} })
	register(func() Mutation { return &BackoutRevisions{} })
	register(func() Mutation { return &MoveChanges{} })
	register(func() Mutation { return &CopyChanges{} })
	register(func() Mutation { return &MoveHunk{} })
	register(func() Mutation { return &CopyHunk{} })
	register(func() Mutation { return &TrackBookmark{} })
	register(func() Mutation { return &UntrackBookmark{} })
	register(func() Mutation { return &RenameBookmark{} })
	register(func() Mutation { return &CreateRef{} })
	register(func() Mutation { return &DeleteRef{} })
	register(func() Mutation { return &MoveRef{} })
	register(func() Mutation { return &GitPush{} })
	register(func() Mutation { return &GitFetch{} })
	register(func() Mutation { return &UndoOperation{} })
}

// Types lists the registered mutation tags.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Decode parses an envelope into its mutation.
func Decode(data []byte) (Mutation, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.E(errors.Op("mutations.Decode"), errors.KindInvalid, err)
	}
	return env.Decode()
}

// Decode returns the mutation the envelope holds.
func (e Envelope) Decode() (Mutation, error) {
	f, ok := registry[e.Type]
	if !ok {
		return nil, errors.E(errors.Op("mutations.Decode"), errors.KindInvalid, fmt.Sprintf("unknown mutation type %q", e.Type))
	}
	m := f()
	if len(e.Mutation) > 0 {
		if err := json.Unmarshal(e.Mutation, m); err != nil {
			return nil, errors.E(errors.Op("mutations.Decode"), errors.KindInvalid, fmt.Sprintf("decode %s", e.Type), err)
		}
	}
	return m, nil
}

// Encode wraps a mutation in its envelope.
func Encode(m Mutation) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: m.Type(), Mutation: body})
}

// Run executes m and turns every failure, including a panic, into a result.
func Run(ctx context.Context, s *session.WorkspaceSession, env *Env, m Mutation) (result messages.MutationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("mutation panicked", "type", m.Type(), "panic", r, "stack", string(debug.Stack()))
			result = messages.InternalError(fmt.Sprintf("%s failed: %v", m.Type(), r))
		}
	}()

	result, err := m.Execute(ctx, s, env)
	if err != nil {
		return ResultFromError(m.Type(), err)
	}
	log.Debug("mutation executed", "type", m.Type(), "result", result.Kind)
	return result
}

// ResultFromError maps an executor error to the result the client sees.
func ResultFromError(typ string, err error) messages.MutationResult {
	switch errors.GetKind(err) {
	case errors.KindPrecondition, errors.KindNotFound, errors.KindAmbiguous,
		errors.KindStale, errors.KindSibling, errors.KindInvalid:
		log.Info("mutation refused", "type", typ, "error", err)
		return messages.PreconditionError(errors.Message(err))
	}
	log.Error("mutation failed", "type", typ, "error", err)
	return messages.InternalError(errors.Message(err))
}

// finish commits tx and reports the new status, selecting selectID if set.
func finish(ctx context.Context, s *session.WorkspaceSession, tx *engine.Transaction, description string, selectID engine.CommitID) (messages.MutationResult, error) {
	status, err := s.FinishTransaction(ctx, tx, description)
	if err != nil {
		return messages.MutationResult{}, err
	}
	if status == nil {
		return messages.Unchanged(), nil
	}
	if selectID == "" {
		return messages.Updated(status, nil), nil
	}
	c, err := s.Repo().Commit(selectID)
	if err != nil {
		return messages.MutationResult{}, err
	}
	header, err := s.Header(c)
	if err != nil {
		return messages.MutationResult{}, err
	}
	return messages.Updated(status, &header), nil
}

// disinheritChildren moves the children of target onto target's parents and
// rebases their descendants, so target can be moved or dropped without
// taking them along. It returns the old to new id of every moved commit.
func disinheritChildren(tx *engine.Transaction, target *engine.Commit) (map[engine.CommitID]engine.CommitID, error) {
	m := tx.Repo()
	idx, err := m.Index()
	if err != nil {
		return nil, err
	}
	mapping := map[engine.CommitID]engine.CommitID{}
	for _, id := range idx.Children(target.ID) {
		child, err := m.Commit(id)
		if err != nil {
			return nil, err
		}
		var parents []engine.CommitID
		for _, p := range child.Parents {
			if p == target.ID {
				parents = append(parents, target.Parents...)
			} else {
				parents = append(parents, p)
			}
		}
		parents = reduceParents(idx, parents)
		tree, err := m.RebasedTree(child, parents)
		if err != nil {
			return nil, err
		}
		nc, err := m.RewriteCommit(child).SetParents(parents).SetTree(tree).Write()
		if err != nil {
			return nil, err
		}
		mapping[child.ID] = nc.ID
	}
	rebased, err := m.RebaseDescendantsWithMap()
	if err != nil {
		return nil, err
	}
	for old, nw := range rebased {
		mapping[old] = nw
	}
	return mapping, nil
}

// reduceParents deduplicates parents and drops any that is an ancestor of
// another.
func reduceParents(idx *engine.Index, parents []engine.CommitID) []engine.CommitID {
	var uniq []engine.CommitID
	for _, p := range parents {
		if !slices.Contains(uniq, p) {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 2 {
		return uniq
	}
	var out []engine.CommitID
	for _, p := range uniq {
		redundant := false
		for _, q := range uniq {
			if p != q && idx.IsAncestor(p, q) {
				redundant = true
				break
			}
		}
		if !redundant {
			out = append(out, p)
		}
	}
	return out
}

// mapped follows id through a rebase map.
func mapped(mapping map[engine.CommitID]engine.CommitID, id engine.CommitID) engine.CommitID {
	if nw, ok := mapping[id]; ok {
		return nw
	}
	return id
}

// resolveChanges resolves each id strictly.
func resolveChanges(s *session.WorkspaceSession, ids []messages.RevID) ([]*engine.Commit, error) {
	var out []*engine.Commit
	for _, id := range ids {
		c, err := s.ResolveChange(id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func commitIDs(commits []*engine.Commit) []engine.CommitID {
	ids := make([]engine.CommitID, len(commits))
	for i, c := range commits {
		ids[i] = c.ID
	}
	return ids
}

// combineDescriptions joins two descriptions, skipping empty ones.
func combineDescriptions(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
