package engine

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"github.com/zhubert/weft/internal/logger"
)

// MutableRepo is a repository being edited inside a transaction.
type MutableRepo struct {
	base      *ReadonlyRepo
	store     Store
	user      Signature
	view      *View
	rewrites  map[CommitID]Rewrite
	parentOps []OperationID
	index     *Index
	log       *slog.Logger
}

func newMutableRepo(base *ReadonlyRepo, user Signature) *MutableRepo {
	return &MutableRepo{
		base:      base,
		store:     base.store,
		user:      user,
		view:      base.View().Clone(),
		rewrites:  map[CommitID]Rewrite{},
		parentOps: []OperationID{base.OperationID()},
		index:     base.index,
		log:       logger.ComponentLogger("Engine"),
	}
}

// Store returns the object store.
func (m *MutableRepo) Store() Store { return m.store }

// Base returns the repo the transaction started from.
func (m *MutableRepo) Base() *ReadonlyRepo { return m.base }

// View returns the current refs. Use the setters to change them.
func (m *MutableRepo) View() *View { return m.view }

// Index returns an index of the commits visible in the current view.
func (m *MutableRepo) Index() (*Index, error) {
	if m.index != nil {
		return m.index, nil
	}
	idx, err := BuildIndex(m.store, m.view.VisibleHeads())
	if err != nil {
		return nil, err
	}
	m.index = idx
	return idx, nil
}

func (m *MutableRepo) invalidate() {
	m.index = nil
}

// Commit reads a commit from the store.
func (m *MutableRepo) Commit(id CommitID) (*Commit, error) {
	return m.store.ReadCommit(id)
}

// IsAncestor reports whether a is an ancestor of, or equal to, b in the
// current view.
func (m *MutableRepo) IsAncestor(a, b CommitID) (bool, error) {
	idx, err := m.Index()
	if err != nil {
		return false, err
	}
	return idx.IsAncestor(a, b), nil
}

func (m *MutableRepo) signature() Signature {
	return Signature{Name: m.user.Name, Email: m.user.Email, Timestamp: time.Now().Truncate(time.Second)}
}

// CommitBuilder collects the fields of a commit before writing it.
type CommitBuilder struct {
	repo        *MutableRepo
	commit      Commit
	predecessor CommitID
	original    *Commit
}

// NewCommit starts a commit with a fresh change id.
func (m *MutableRepo) NewCommit(parents []CommitID, tree TreeID) *CommitBuilder {
	sig := m.signature()
	return &CommitBuilder{
		repo: m,
		commit: Commit{
			ChangeID:  NewChangeID(),
			Parents:   slices.Clone(parents),
			Tree:      tree,
			Author:    sig,
			Committer: sig,
		},
	}
}

// RewriteCommit starts a new version of c. Writing it records c as rewritten.
func (m *MutableRepo) RewriteCommit(c *Commit) *CommitBuilder {
	cp := c.Clone()
	cp.Committer = m.signature()
	if cp.Author.Name == "" && cp.Author.Email == "" {
		cp.Author = cp.Committer
	}
	return &CommitBuilder{repo: m, commit: *cp, predecessor: c.ID, original: c}
}

// DuplicateCommit starts a copy of c under a new change id.
func (m *MutableRepo) DuplicateCommit(c *Commit) *CommitBuilder {
	cp := c.Clone()
	cp.ChangeID = NewChangeID()
	cp.Committer = m.signature()
	return &CommitBuilder{repo: m, commit: *cp}
}

func (b *CommitBuilder) SetParents(parents []CommitID) *CommitBuilder {
	b.commit.Parents = slices.Clone(parents)
	return b
}

func (b *CommitBuilder) SetTree(tree TreeID) *CommitBuilder {
	b.commit.Tree = tree
	return b
}

func (b *CommitBuilder) SetDescription(desc string) *CommitBuilder {
	b.commit.Description = desc
	return b
}

// ResetAuthor makes the committer the author.
func (b *CommitBuilder) ResetAuthor() *CommitBuilder {
	b.commit.Author = b.commit.Committer
	return b
}

func (b *CommitBuilder) SetAuthor(sig Signature) *CommitBuilder {
	b.commit.Author = sig
	return b
}

// Write stores the commit and makes it visible. A rewrite that differs from
// its predecessor only in committer returns the predecessor unchanged.
func (b *CommitBuilder) Write() (*Commit, error) {
	m := b.repo
	if len(b.commit.Parents) == 0 {
		b.commit.Parents = []CommitID{RootCommitID}
	}
	if b.original != nil && sameContent(b.original, &b.commit) {
		return b.original.Clone(), nil
	}
	id, err := m.store.WriteCommit(&b.commit)
	if err != nil {
		return nil, fmt.Errorf("write commit: %w", err)
	}
	c := b.commit.Clone()
	c.ID = id
	m.addHead(id, c.Parents)
	if b.predecessor != "" && b.predecessor != id {
		m.rewrites[b.predecessor] = Rewrite{New: []CommitID{id}}
		if err := m.removeHead(b.predecessor); err != nil {
			return nil, err
		}
	}
	m.invalidate()
	return c, nil
}

// sameContent compares everything but the committer.
func sameContent(a, b *Commit) bool {
	return a.ChangeID == b.ChangeID &&
		slices.Equal(a.Parents, b.Parents) &&
		a.Tree == b.Tree &&
		a.Description == b.Description &&
		a.Author.Name == b.Author.Name &&
		a.Author.Email == b.Author.Email &&
		a.Author.Timestamp.Equal(b.Author.Timestamp)
}

// AbandonCommit hides c. Its children are moved onto its parents by the
// next RebaseDescendants.
func (m *MutableRepo) AbandonCommit(c *Commit) error {
	if c.IsRoot() {
		return fmt.Errorf("cannot abandon the root commit")
	}
	m.rewrites[c.ID] = Rewrite{New: slices.Clone(c.Parents), Abandoned: true}
	if err := m.removeHead(c.ID); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// SetRewritten records that old was replaced by new outside a CommitBuilder.
func (m *MutableRepo) SetRewritten(old, new CommitID) {
	if old == new {
		return
	}
	m.rewrites[old] = Rewrite{New: []CommitID{new}}
	m.invalidate()
}

// HasRewrites reports whether any commit was rewritten or abandoned.
func (m *MutableRepo) HasRewrites() bool {
	return len(m.rewrites) > 0
}

// IsRewritten reports whether id was rewritten or abandoned in this transaction.
func (m *MutableRepo) IsRewritten(id CommitID) bool {
	_, ok := m.rewrites[id]
	return ok
}

func (m *MutableRepo) addHead(id CommitID, parents []CommitID) {
	heads := slices.DeleteFunc(m.view.Heads, func(h CommitID) bool {
		return slices.Contains(parents, h)
	})
	if !slices.Contains(heads, id) {
		heads = append(heads, id)
	}
	m.view.Heads = heads
}

// AddHead makes id and its ancestors visible.
func (m *MutableRepo) AddHead(id CommitID) error {
	c, err := m.store.ReadCommit(id)
	if err != nil {
		return err
	}
	m.addHead(id, c.Parents)
	m.invalidate()
	return nil
}

func (m *MutableRepo) removeHead(id CommitID) error {
	if !slices.Contains(m.view.Heads, id) {
		return nil
	}
	c, err := m.store.ReadCommit(id)
	if err != nil {
		return err
	}
	heads := slices.DeleteFunc(m.view.Heads, func(h CommitID) bool { return h == id })
	for _, p := range c.Parents {
		if !slices.Contains(heads, p) {
			heads = append(heads, p)
		}
	}
	m.view.Heads = heads
	return nil
}

// resolveRewritten follows recorded rewrites from id. abandoned is true if
// any step of the chain was an abandonment.
func (m *MutableRepo) resolveRewritten(id CommitID) (ids []CommitID, abandoned bool) {
	seen := map[CommitID]bool{}
	var walk func(id CommitID)
	walk = func(id CommitID) {
		rw, ok := m.rewrites[id]
		if !ok || seen[id] {
			ids = appendUnique(ids, id)
			return
		}
		seen[id] = true
		if rw.Abandoned {
			abandoned = true
		}
		for _, n := range rw.New {
			walk(n)
		}
	}
	walk(id)
	return ids, abandoned
}

// NewParents maps parents through the recorded rewrites, dropping any new
// parent that is an ancestor of another.
func (m *MutableRepo) NewParents(parents []CommitID) ([]CommitID, error) {
	var out []CommitID
	for _, p := range parents {
		ids, _ := m.resolveRewritten(p)
		for _, id := range ids {
			out = appendUnique(out, id)
		}
	}
	if len(out) > 1 {
		idx, err := m.Index()
		if err != nil {
			return nil, err
		}
		out = idx.reduceAncestors(out)
		if len(out) > 1 {
			out = slices.DeleteFunc(out, func(id CommitID) bool { return id == RootCommitID })
		}
	}
	if len(out) == 0 {
		out = []CommitID{RootCommitID}
	}
	return out, nil
}

// MergedParentTree returns the tree a commit with these parents starts from:
// the first parent's tree with the other parents merged in.
func MergedParentTree(store Store, parents []CommitID) (TreeID, error) {
	if len(parents) == 0 {
		return EmptyTreeID, nil
	}
	first, err := store.ReadCommit(parents[0])
	if err != nil {
		return "", err
	}
	tree := first.Tree
	for _, p := range parents[1:] {
		other, err := store.ReadCommit(p)
		if err != nil {
			return "", err
		}
		baseID, err := commonAncestor(store, parents[0], p)
		if err != nil {
			return "", err
		}
		base, err := store.ReadCommit(baseID)
		if err != nil {
			return "", err
		}
		tree, err = MergeTrees(store, base.Tree, tree, other.Tree)
		if err != nil {
			return "", err
		}
	}
	return tree, nil
}

// commonAncestor walks the store breadth-first from both commits and
// returns the first commit reached from both.
func commonAncestor(store Store, a, b CommitID) (CommitID, error) {
	fromA := map[CommitID]bool{}
	fromB := map[CommitID]bool{}
	qa, qb := []CommitID{a}, []CommitID{b}
	for len(qa) > 0 || len(qb) > 0 {
		if len(qa) > 0 {
			id := qa[0]
			qa = qa[1:]
			if fromB[id] {
				return id, nil
			}
			if !fromA[id] {
				fromA[id] = true
				c, err := store.ReadCommit(id)
				if err != nil {
					return "", err
				}
				qa = append(qa, c.Parents...)
			}
		}
		if len(qb) > 0 {
			id := qb[0]
			qb = qb[1:]
			if fromA[id] {
				return id, nil
			}
			if !fromB[id] {
				fromB[id] = true
				c, err := store.ReadCommit(id)
				if err != nil {
					return "", err
				}
				qb = append(qb, c.Parents...)
			}
		}
	}
	return RootCommitID, nil
}

// RebasedTree returns c's changes applied on top of newParents.
func (m *MutableRepo) RebasedTree(c *Commit, newParents []CommitID) (TreeID, error) {
	if slices.Equal(c.Parents, newParents) {
		return c.Tree, nil
	}
	oldBase, err := MergedParentTree(m.store, c.Parents)
	if err != nil {
		return "", err
	}
	newBase, err := MergedParentTree(m.store, newParents)
	if err != nil {
		return "", err
	}
	if oldBase == newBase {
		return c.Tree, nil
	}
	return MergeTrees(m.store, oldBase, newBase, c.Tree)
}

// RebaseDescendants moves every descendant of a rewritten or abandoned commit
// onto the new version of its parents. It returns how many were rebased.
func (m *MutableRepo) RebaseDescendants() (int, error) {
	mapping, err := m.RebaseDescendantsWithMap()
	return len(mapping), err
}

// RebaseDescendantsWithMap is RebaseDescendants returning the old to new id
// of every rebased commit.
func (m *MutableRepo) RebaseDescendantsWithMap() (map[CommitID]CommitID, error) {
	mapping := map[CommitID]CommitID{}
	if len(m.rewrites) == 0 {
		return mapping, nil
	}
	idx, err := m.Index()
	if err != nil {
		return nil, err
	}
	roots := make([]CommitID, 0, len(m.rewrites))
	for old := range m.rewrites {
		roots = append(roots, old)
	}
	desc := idx.Descendants(roots)

	for _, id := range idx.All() {
		if !desc[id] || m.IsRewritten(id) {
			continue
		}
		c, _ := idx.Commit(id)
		parents, err := m.NewParents(c.Parents)
		if err != nil {
			return nil, err
		}
		if slices.Equal(parents, c.Parents) {
			continue
		}
		tree, err := m.RebasedTree(c, parents)
		if err != nil {
			return nil, fmt.Errorf("rebase %s: %w", id.Short(), err)
		}
		nc, err := m.RewriteCommit(c).SetParents(parents).SetTree(tree).Write()
		if err != nil {
			return nil, err
		}
		mapping[id] = nc.ID
	}

	if err := m.updateRefs(); err != nil {
		return nil, err
	}
	if err := m.normalizeHeads(); err != nil {
		return nil, err
	}
	return mapping, nil
}

// updateRefs moves refs off rewritten commits. Bookmarks on abandoned
// commits are deleted; an abandoned working-copy commit is replaced by a new
// empty commit on its parents.
func (m *MutableRepo) updateRefs() error {
	for name, target := range m.view.LocalBookmarks {
		if !m.IsRewritten(target) {
			continue
		}
		ids, abandoned := m.resolveRewritten(target)
		if abandoned {
			delete(m.view.LocalBookmarks, name)
			continue
		}
		m.view.LocalBookmarks[name] = ids[0]
	}
	for ws, target := range m.view.WCCommits {
		if !m.IsRewritten(target) {
			continue
		}
		ids, abandoned := m.resolveRewritten(target)
		if !abandoned {
			m.view.WCCommits[ws] = ids[0]
			continue
		}
		tree, err := MergedParentTree(m.store, ids)
		if err != nil {
			return err
		}
		nc, err := m.NewCommit(ids, tree).Write()
		if err != nil {
			return err
		}
		m.view.WCCommits[ws] = nc.ID
	}
	m.invalidate()
	return nil
}

// normalizeHeads replaces rewritten heads by their parents and drops heads
// that are ancestors of other heads.
func (m *MutableRepo) normalizeHeads() error {
	var cands []CommitID
	seen := map[CommitID]bool{}
	queue := slices.Clone(m.view.Heads)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		if !m.IsRewritten(id) {
			cands = append(cands, id)
			continue
		}
		c, err := m.store.ReadCommit(id)
		if err != nil {
			return err
		}
		queue = append(queue, c.Parents...)
	}
	if len(cands) == 0 {
		m.view.Heads = []CommitID{RootCommitID}
		m.invalidate()
		return nil
	}
	idx, err := BuildIndex(m.store, cands)
	if err != nil {
		return err
	}
	set := map[CommitID]bool{}
	for _, id := range cands {
		set[id] = true
	}
	heads := idx.Heads(set)
	out := make([]CommitID, 0, len(heads))
	for id := range heads {
		out = append(out, id)
	}
	slices.Sort(out)
	m.view.Heads = out
	m.invalidate()
	return nil
}

// HasChanges reports whether the transaction changed anything.
func (m *MutableRepo) HasChanges() bool {
	if len(m.rewrites) > 0 || len(m.parentOps) > 1 {
		return true
	}
	if err := m.normalizeHeads(); err != nil {
		m.log.Warn("failed to normalize heads", "error", err)
		return true
	}
	return !viewsEqual(m.view, m.base.View())
}

func viewsEqual(a, b *View) bool {
	ac, bc := a.Clone(), b.Clone()
	slices.Sort(ac.Heads)
	slices.Sort(bc.Heads)
	return reflect.DeepEqual(ac, bc)
}

// SetLocalBookmark points a bookmark at target; an empty target deletes it.
func (m *MutableRepo) SetLocalBookmark(name string, target CommitID) {
	if target == "" {
		delete(m.view.LocalBookmarks, name)
	} else {
		m.view.LocalBookmarks[name] = target
	}
	m.invalidate()
}

// SetRemoteBookmark updates a remote bookmark; an empty target deletes it.
func (m *MutableRepo) SetRemoteBookmark(name, remote string, ref RemoteRef) {
	m.view.SetRemoteBookmark(name, remote, ref)
	m.invalidate()
}

// SetTag points a tag at target; an empty target deletes it.
func (m *MutableRepo) SetTag(name string, target CommitID) {
	if target == "" {
		delete(m.view.Tags, name)
	} else {
		m.view.Tags[name] = target
	}
	m.invalidate()
}

// SetView replaces every ref and head with those of v.
func (m *MutableRepo) SetView(v *View) {
	m.view = v.Clone()
	m.invalidate()
}

// SetGitHead records the commit the colocated git HEAD points at.
func (m *MutableRepo) SetGitHead(id CommitID) {
	m.view.GitHead = id
	m.invalidate()
}

// SetWCCommit points a workspace at a commit.
func (m *MutableRepo) SetWCCommit(workspace string, id CommitID) {
	m.view.WCCommits[workspace] = id
	m.invalidate()
}

// Edit makes c the working-copy commit of a workspace, abandoning the
// previous one if it was an empty, undescribed leaf.
func (m *MutableRepo) Edit(workspace string, c *Commit) error {
	old, hadOld := m.view.WCCommits[workspace]
	m.SetWCCommit(workspace, c.ID)
	if hadOld && old != c.ID {
		return m.maybeAbandonWC(old)
	}
	return nil
}

// CheckOut creates a new empty commit on top of c and edits it.
func (m *MutableRepo) CheckOut(workspace string, c *Commit) (*Commit, error) {
	nc, err := m.NewCommit([]CommitID{c.ID}, c.Tree).Write()
	if err != nil {
		return nil, err
	}
	if err := m.Edit(workspace, nc); err != nil {
		return nil, err
	}
	return nc, nil
}

func (m *MutableRepo) maybeAbandonWC(id CommitID) error {
	if id == RootCommitID {
		return nil
	}
	for ws, target := range m.view.WCCommits {
		if target == id {
			m.log.Debug("previous working-copy commit still in use", "workspace", ws)
			return nil
		}
	}
	for _, target := range m.view.LocalBookmarks {
		if target == id {
			return nil
		}
	}
	idx, err := m.Index()
	if err != nil {
		return err
	}
	if len(idx.Children(id)) > 0 {
		return nil
	}
	c, err := m.store.ReadCommit(id)
	if err != nil {
		return err
	}
	if c.Description != "" {
		return nil
	}
	parentTree, err := MergedParentTree(m.store, c.Parents)
	if err != nil {
		return err
	}
	if parentTree != c.Tree {
		return nil
	}
	return m.AbandonCommit(c)
}

// MergeOperation merges a concurrent operation into this repo. Ref changes
// from both sides are combined; where both moved the same ref differently
// this side wins. Rewrites recorded by the other side are replayed by the
// next RebaseDescendants.
func (m *MutableRepo) MergeOperation(other *Operation) error {
	baseID, err := CommonAncestorOp(m.store, m.base.OperationID(), other.ID)
	if err != nil {
		return fmt.Errorf("find common operation: %w", err)
	}
	baseOp, err := m.store.ReadOperation(baseID)
	if err != nil {
		return err
	}
	rewrites, err := rewritesBetween(m.store, baseID, other.ID)
	if err != nil {
		return err
	}
	m.view = mergeViews(baseOp.View, m.view, other.View, func(ref string) {
		m.log.Warn("concurrent operations moved ref differently, keeping ours", "ref", ref, "other", other.ID.Short())
	})
	for old, rw := range rewrites {
		if _, ok := m.rewrites[old]; !ok {
			m.rewrites[old] = rw
		}
	}
	m.parentOps = append(m.parentOps, other.ID)
	m.invalidate()
	return nil
}
