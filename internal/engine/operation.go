package engine

import (
	"maps"
	"os"
	"os/user"
	"slices"
	"time"
)

// Rewrite records what a commit turned into during an operation. For an
// abandoned commit, New holds the parents its children should move to.
type Rewrite struct {
	New       []CommitID `json:"new"`
	Abandoned bool       `json:"abandoned,omitempty"`
}

// OperationMetadata describes an operation for humans.
type OperationMetadata struct {
	Description string            `json:"description"`
	Hostname    string            `json:"hostname"`
	Username    string            `json:"username"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Operation is one atomic write to the repository.
type Operation struct {
	ID       OperationID          `json:"-"`
	Parents  []OperationID        `json:"parents"`
	View     *View                `json:"view"`
	Metadata OperationMetadata    `json:"metadata"`
	Rewrites map[CommitID]Rewrite `json:"rewrites,omitempty"`
}

// ComputeID derives the operation id from its content.
func (op *Operation) ComputeID() OperationID {
	return OperationID(hashJSON256(op))
}

// Clone returns a deep copy.
func (op *Operation) Clone() *Operation {
	cp := *op
	cp.Parents = slices.Clone(op.Parents)
	if op.View != nil {
		cp.View = op.View.Clone()
	}
	cp.Metadata.Tags = maps.Clone(op.Metadata.Tags)
	cp.Rewrites = maps.Clone(op.Rewrites)
	return &cp
}

// IsRoot reports whether op is the root operation.
func (op *Operation) IsRoot() bool {
	return op.ID == RootOperationID
}

// RootOperation returns the operation every history starts from.
func RootOperation() *Operation {
	return &Operation{
		ID:   RootOperationID,
		View: NewView(),
	}
}

func newMetadata(description string, start time.Time) OperationMetadata {
	host, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return OperationMetadata{
		Description: description,
		Hostname:    host,
		Username:    username,
		Start:       start,
		End:         time.Now(),
	}
}

// IsOpAncestor reports whether a is an ancestor of, or equal to, b.
func IsOpAncestor(store Store, a, b OperationID) (bool, error) {
	if a == b || a == RootOperationID {
		return true, nil
	}
	seen := map[OperationID]bool{}
	queue := []OperationID{b}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == a {
			return true, nil
		}
		if seen[id] || id == RootOperationID {
			continue
		}
		seen[id] = true
		op, err := store.ReadOperation(id)
		if err != nil {
			return false, err
		}
		queue = append(queue, op.Parents...)
	}
	return false, nil
}

// CommonAncestorOp returns a common ancestor of a and b, preferring the one
// closest to a.
func CommonAncestorOp(store Store, a, b OperationID) (OperationID, error) {
	ancestorsOfB := map[OperationID]bool{}
	queue := []OperationID{b}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if ancestorsOfB[id] {
			continue
		}
		ancestorsOfB[id] = true
		if id == RootOperationID {
			continue
		}
		op, err := store.ReadOperation(id)
		if err != nil {
			return "", err
		}
		queue = append(queue, op.Parents...)
	}

	seen := map[OperationID]bool{}
	queue = []OperationID{a}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if ancestorsOfB[id] {
			return id, nil
		}
		if seen[id] || id == RootOperationID {
			continue
		}
		seen[id] = true
		op, err := store.ReadOperation(id)
		if err != nil {
			return "", err
		}
		queue = append(queue, op.Parents...)
	}
	return RootOperationID, nil
}

// rewritesBetween collects the rewrites recorded by operations that are
// ancestors of head but not of base, oldest first.
func rewritesBetween(store Store, base, head OperationID) (map[CommitID]Rewrite, error) {
	var chain []*Operation
	seen := map[OperationID]bool{}
	queue := []OperationID{head}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] || id == RootOperationID {
			continue
		}
		seen[id] = true
		isBase, err := IsOpAncestor(store, id, base)
		if err != nil {
			return nil, err
		}
		if isBase {
			continue
		}
		op, err := store.ReadOperation(id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, op)
		queue = append(queue, op.Parents...)
	}

	out := map[CommitID]Rewrite{}
	for i := len(chain) - 1; i >= 0; i-- {
		for old, rw := range chain[i].Rewrites {
			out[old] = rw
		}
	}
	return out, nil
}
