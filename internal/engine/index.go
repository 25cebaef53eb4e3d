package engine

import (
	"sort"
	"strings"
)

// IndexEntry is one visible commit.
type IndexEntry struct {
	Commit *Commit
	// Position orders commits topologically: parents have lower positions.
	Position   int
	Generation int
}

// Index answers graph queries over the commits visible in one view.
type Index struct {
	entries  map[CommitID]*IndexEntry
	order    []CommitID
	children map[CommitID][]CommitID
	byChange map[ChangeID][]CommitID
	commits  *PrefixSet
	changes  *PrefixSet
}

// BuildIndex loads every ancestor of heads.
func BuildIndex(store Store, heads []CommitID) (*Index, error) {
	idx := &Index{
		entries:  map[CommitID]*IndexEntry{},
		children: map[CommitID][]CommitID{},
		byChange: map[ChangeID][]CommitID{},
	}

	stack := append([]CommitID{RootCommitID}, heads...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := idx.entries[id]; ok {
			continue
		}
		c, err := store.ReadCommit(id)
		if err != nil {
			return nil, err
		}
		idx.entries[id] = &IndexEntry{Commit: c, Generation: -1}
		for _, p := range c.Parents {
			if _, ok := idx.entries[p]; !ok {
				stack = append(stack, p)
			}
		}
	}

	var generation func(id CommitID) int
	generation = func(id CommitID) int {
		e := idx.entries[id]
		if e.Generation >= 0 {
			return e.Generation
		}
		g := 0
		for _, p := range e.Commit.Parents {
			if pg := generation(p) + 1; pg > g {
				g = pg
			}
		}
		e.Generation = g
		return g
	}

	idx.order = make([]CommitID, 0, len(idx.entries))
	for id, e := range idx.entries {
		generation(id)
		idx.order = append(idx.order, id)
		for _, p := range e.Commit.Parents {
			idx.children[p] = append(idx.children[p], id)
		}
		idx.byChange[e.Commit.ChangeID] = append(idx.byChange[e.Commit.ChangeID], id)
	}
	sort.Slice(idx.order, func(i, j int) bool {
		a, b := idx.entries[idx.order[i]], idx.entries[idx.order[j]]
		if a.Generation != b.Generation {
			return a.Generation < b.Generation
		}
		if !a.Commit.Committer.Timestamp.Equal(b.Commit.Committer.Timestamp) {
			return a.Commit.Committer.Timestamp.Before(b.Commit.Committer.Timestamp)
		}
		return a.Commit.ID < b.Commit.ID
	})
	for pos, id := range idx.order {
		idx.entries[id].Position = pos
	}
	for _, kids := range idx.children {
		sort.Slice(kids, func(i, j int) bool {
			return idx.entries[kids[i]].Position < idx.entries[kids[j]].Position
		})
	}

	commitKeys := make([]string, 0, len(idx.entries))
	for id := range idx.entries {
		commitKeys = append(commitKeys, string(id))
	}
	changeKeys := make([]string, 0, len(idx.byChange))
	for id := range idx.byChange {
		changeKeys = append(changeKeys, string(id))
	}
	idx.commits = NewPrefixSet(commitKeys)
	idx.changes = NewPrefixSet(changeKeys)
	return idx, nil
}

// Len returns the number of visible commits, including the root.
func (idx *Index) Len() int { return len(idx.order) }

// Has reports whether id is visible.
func (idx *Index) Has(id CommitID) bool {
	_, ok := idx.entries[id]
	return ok
}

// Entry returns the index entry for a visible commit.
func (idx *Index) Entry(id CommitID) (*IndexEntry, bool) {
	e, ok := idx.entries[id]
	return e, ok
}

// Commit returns a visible commit.
func (idx *Index) Commit(id CommitID) (*Commit, bool) {
	e, ok := idx.entries[id]
	if !ok {
		return nil, false
	}
	return e.Commit, true
}

// All returns every visible commit id in position order.
func (idx *Index) All() []CommitID {
	out := make([]CommitID, len(idx.order))
	copy(out, idx.order)
	return out
}

// Children returns the visible children of id in position order.
func (idx *Index) Children(id CommitID) []CommitID {
	return idx.children[id]
}

// CommitsForChange returns the visible commits carrying a change id.
func (idx *Index) CommitsForChange(id ChangeID) []CommitID {
	return idx.byChange[id]
}

// SortByPosition sorts ids in place, newest first.
func (idx *Index) SortByPosition(ids []CommitID) {
	sort.Slice(ids, func(i, j int) bool {
		return idx.entries[ids[i]].Position > idx.entries[ids[j]].Position
	})
}

// IsAncestor reports whether a is an ancestor of, or equal to, b.
func (idx *Index) IsAncestor(a, b CommitID) bool {
	ea, ok := idx.entries[a]
	if !ok {
		return false
	}
	if _, ok := idx.entries[b]; !ok {
		return false
	}
	seen := map[CommitID]bool{}
	stack := []CommitID{b}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == a {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, p := range idx.entries[id].Commit.Parents {
			if idx.entries[p].Generation >= ea.Generation {
				stack = append(stack, p)
			}
		}
	}
	return false
}

// Ancestors returns the set of ancestors of ids, including ids. A negative
// depth means unlimited; depth 1 is ids themselves.
func (idx *Index) Ancestors(ids []CommitID, depth int) map[CommitID]bool {
	out := map[CommitID]bool{}
	type item struct {
		id    CommitID
		depth int
	}
	queue := make([]item, 0, len(ids))
	for _, id := range ids {
		if idx.Has(id) {
			queue = append(queue, item{id, 1})
		}
	}
	best := map[CommitID]int{}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if d, ok := best[it.id]; ok && d <= it.depth {
			continue
		}
		best[it.id] = it.depth
		out[it.id] = true
		if depth >= 0 && it.depth >= depth {
			continue
		}
		for _, p := range idx.entries[it.id].Commit.Parents {
			queue = append(queue, item{p, it.depth + 1})
		}
	}
	return out
}

// Descendants returns the set of descendants of ids, including ids.
func (idx *Index) Descendants(ids []CommitID) map[CommitID]bool {
	out := map[CommitID]bool{}
	for _, id := range ids {
		if idx.Has(id) {
			out[id] = true
		}
	}
	if len(out) == 0 {
		return out
	}
	minPos := len(idx.order)
	for id := range out {
		if p := idx.entries[id].Position; p < minPos {
			minPos = p
		}
	}
	for _, id := range idx.order[minPos:] {
		if out[id] {
			continue
		}
		for _, p := range idx.entries[id].Commit.Parents {
			if out[p] {
				out[id] = true
				break
			}
		}
	}
	return out
}

// Heads returns the members of set that have no descendants in set.
func (idx *Index) Heads(set map[CommitID]bool) map[CommitID]bool {
	var members []CommitID
	for id := range set {
		if idx.Has(id) {
			members = append(members, id)
		}
	}
	covered := map[CommitID]bool{}
	var stack []CommitID
	for _, id := range members {
		stack = append(stack, idx.entries[id].Commit.Parents...)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if covered[id] {
			continue
		}
		covered[id] = true
		stack = append(stack, idx.entries[id].Commit.Parents...)
	}
	out := map[CommitID]bool{}
	for _, id := range members {
		if !covered[id] {
			out[id] = true
		}
	}
	return out
}

// Roots returns the members of set that have no ancestors in set.
func (idx *Index) Roots(set map[CommitID]bool) map[CommitID]bool {
	hasAncestor := map[CommitID]bool{}
	out := map[CommitID]bool{}
	for _, id := range idx.order {
		for _, p := range idx.entries[id].Commit.Parents {
			if set[p] || hasAncestor[p] {
				hasAncestor[id] = true
				break
			}
		}
		if set[id] && !hasAncestor[id] {
			out[id] = true
		}
	}
	return out
}

// PrefixResolution is the outcome of resolving a hex prefix.
type PrefixResolution int

const (
	NoMatch PrefixResolution = iota
	SingleMatch
	AmbiguousMatch
)

// ResolveCommitPrefix resolves a commit id prefix among visible commits.
func (idx *Index) ResolveCommitPrefix(prefix string) (CommitID, PrefixResolution) {
	match, res := idx.commits.Resolve(prefix)
	return CommitID(match), res
}

// ResolveChangePrefix resolves a change id prefix to the visible commits of
// that change.
func (idx *Index) ResolveChangePrefix(prefix string) ([]CommitID, PrefixResolution) {
	match, res := idx.changes.Resolve(prefix)
	if res != SingleMatch {
		return nil, res
	}
	return idx.byChange[ChangeID(match)], SingleMatch
}

// ShortestCommitPrefixLen returns the length of the shortest unique prefix of id.
func (idx *Index) ShortestCommitPrefixLen(id CommitID) int {
	return idx.commits.ShortestUniquePrefixLen(string(id))
}

// ShortestChangePrefixLen returns the length of the shortest unique prefix of id.
func (idx *Index) ShortestChangePrefixLen(id ChangeID) int {
	return idx.changes.ShortestUniquePrefixLen(string(id))
}

// PrefixSet resolves hex prefixes against a fixed set of keys.
type PrefixSet struct {
	keys []string
}

// NewPrefixSet returns a set over keys. Duplicate keys are collapsed.
func NewPrefixSet(keys []string) *PrefixSet {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	uniq := sorted[:0]
	for i, k := range sorted {
		if i == 0 || k != sorted[i-1] {
			uniq = append(uniq, k)
		}
	}
	return &PrefixSet{keys: uniq}
}

// Len returns the number of keys.
func (s *PrefixSet) Len() int { return len(s.keys) }

// Resolve finds the key starting with prefix.
func (s *PrefixSet) Resolve(prefix string) (string, PrefixResolution) {
	i := sort.SearchStrings(s.keys, prefix)
	if i >= len(s.keys) || !strings.HasPrefix(s.keys[i], prefix) {
		return "", NoMatch
	}
	if i+1 < len(s.keys) && strings.HasPrefix(s.keys[i+1], prefix) {
		return "", AmbiguousMatch
	}
	return s.keys[i], SingleMatch
}

// ShortestUniquePrefixLen returns how many characters of key are needed to
// tell it apart from every other key in the set. The key itself need not be
// a member.
func (s *PrefixSet) ShortestUniquePrefixLen(key string) int {
	i := sort.SearchStrings(s.keys, key)
	n := 0
	if i > 0 {
		n = max(n, commonPrefixLen(s.keys[i-1], key))
	}
	j := i
	if j < len(s.keys) && s.keys[j] == key {
		j++
	}
	if j < len(s.keys) {
		n = max(n, commonPrefixLen(s.keys[j], key))
	}
	return min(n+1, len(key))
}

func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
