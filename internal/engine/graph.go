package engine

// EdgeType classifies an edge between two graph nodes.
type EdgeType int

const (
	// EdgeDirect points at a parent that is in the set.
	EdgeDirect EdgeType = iota
	// EdgeIndirect points at an ancestor in the set through commits outside it.
	EdgeIndirect
	// EdgeMissing points at a parent outside the set with no ancestor in it.
	EdgeMissing
)

func (t EdgeType) String() string {
	switch t {
	case EdgeDirect:
		return "direct"
	case EdgeIndirect:
		return "indirect"
	default:
		return "missing"
	}
}

// GraphEdge is an outgoing edge of a GraphNode.
type GraphEdge struct {
	Target CommitID
	Type   EdgeType
}

// GraphNode is one commit of a graph walk with its edges.
type GraphNode struct {
	ID    CommitID
	Edges []GraphEdge
}

// GraphIterator yields the members of a set children-first, keeping each
// branch contiguous where the topology allows it.
type GraphIterator struct {
	nodes []GraphNode
	pos   int
}

// Next returns the next node, or false when the walk is done.
func (it *GraphIterator) Next() (GraphNode, bool) {
	if it.pos >= len(it.nodes) {
		return GraphNode{}, false
	}
	n := it.nodes[it.pos]
	it.pos++
	return n, true
}

// HasNext reports whether Next would return a node.
func (it *GraphIterator) HasNext() bool {
	return it.pos < len(it.nodes)
}

// Skip discards up to n nodes.
func (it *GraphIterator) Skip(n int) {
	it.pos = min(it.pos+n, len(it.nodes))
}

// Graph builds a topologically grouped walk over the visible members of set.
func (idx *Index) Graph(set map[CommitID]bool) *GraphIterator {
	// nearest[c] holds, for a commit outside the set, the closest ancestors
	// that are in the set.
	nearest := map[CommitID][]CommitID{}
	minPos := len(idx.order)
	for id := range set {
		if e, ok := idx.entries[id]; ok && e.Position < minPos {
			minPos = e.Position
		}
	}
	for _, id := range idx.order[minPos:] {
		if set[id] {
			continue
		}
		var near []CommitID
		for _, p := range idx.entries[id].Commit.Parents {
			if set[p] {
				near = appendUnique(near, p)
			} else {
				for _, n := range nearest[p] {
					near = appendUnique(near, n)
				}
			}
		}
		nearest[id] = near
	}

	var members []CommitID
	for _, id := range idx.order {
		if set[id] {
			members = append(members, id)
		}
	}

	edges := map[CommitID][]GraphEdge{}
	pending := map[CommitID]int{}
	for _, id := range members {
		var out []GraphEdge
		seen := map[CommitID]bool{}
		for _, p := range idx.entries[id].Commit.Parents {
			if set[p] {
				if !seen[p] {
					seen[p] = true
					out = append(out, GraphEdge{Target: p, Type: EdgeDirect})
				}
				continue
			}
			near := nearest[p]
			if len(near) == 0 {
				out = append(out, GraphEdge{Target: p, Type: EdgeMissing})
				continue
			}
			for _, n := range idx.reduceAncestors(near) {
				if !seen[n] {
					seen[n] = true
					out = append(out, GraphEdge{Target: n, Type: EdgeIndirect})
				}
			}
		}
		edges[id] = out
		for _, e := range out {
			if e.Type != EdgeMissing {
				pending[e.Target]++
			}
		}
	}

	// members is in ascending position order; walk it from the end.
	emitted := map[CommitID]bool{}
	nodes := make([]GraphNode, 0, len(members))
	cursor := len(members) - 1
	var next CommitID
	for len(nodes) < len(members) {
		cand := next
		next = ""
		if cand == "" {
			for cursor >= 0 && emitted[members[cursor]] {
				cursor--
			}
			cand = members[cursor]
		}
		emitted[cand] = true
		nodes = append(nodes, GraphNode{ID: cand, Edges: edges[cand]})
		for i, e := range edges[cand] {
			if e.Type == EdgeMissing {
				continue
			}
			pending[e.Target]--
			if i == 0 && pending[e.Target] == 0 && !emitted[e.Target] {
				next = e.Target
			}
		}
	}
	return &GraphIterator{nodes: nodes}
}

// reduceAncestors drops ids that are ancestors of other ids in the list.
func (idx *Index) reduceAncestors(ids []CommitID) []CommitID {
	if len(ids) < 2 {
		return ids
	}
	var out []CommitID
	for i, a := range ids {
		redundant := false
		for j, b := range ids {
			if i != j && a != b && idx.IsAncestor(a, b) {
				redundant = true
				break
			}
		}
		if !redundant {
			out = append(out, a)
		}
	}
	return out
}

func appendUnique(ids []CommitID, id CommitID) []CommitID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
