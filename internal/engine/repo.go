package engine

import (
	"fmt"
	"time"
)

// ReadonlyRepo is the repository as of one operation.
type ReadonlyRepo struct {
	store Store
	op    *Operation
	index *Index
}

// LoadRepoAt loads the repository at an operation.
func LoadRepoAt(store Store, id OperationID) (*ReadonlyRepo, error) {
	op, err := store.ReadOperation(id)
	if err != nil {
		return nil, fmt.Errorf("load operation: %w", err)
	}
	return repoFromOperation(store, op)
}

func repoFromOperation(store Store, op *Operation) (*ReadonlyRepo, error) {
	op.View.ensureMaps()
	index, err := BuildIndex(store, op.View.VisibleHeads())
	if err != nil {
		return nil, fmt.Errorf("build index at operation %s: %w", op.ID.Short(), err)
	}
	return &ReadonlyRepo{store: store, op: op, index: index}, nil
}

// Store returns the object store.
func (r *ReadonlyRepo) Store() Store { return r.store }

// Operation returns the operation this repo was loaded at.
func (r *ReadonlyRepo) Operation() *Operation { return r.op }

// OperationID returns the id of the operation this repo was loaded at.
func (r *ReadonlyRepo) OperationID() OperationID { return r.op.ID }

// View returns the refs at this operation. Callers must not modify it.
func (r *ReadonlyRepo) View() *View { return r.op.View }

// Index returns the index of visible commits.
func (r *ReadonlyRepo) Index() *Index { return r.index }

// Commit reads a commit, visible or not.
func (r *ReadonlyRepo) Commit(id CommitID) (*Commit, error) {
	if c, ok := r.index.Commit(id); ok {
		return c, nil
	}
	return r.store.ReadCommit(id)
}

// StartTransaction opens a transaction on top of this repo. user is used
// for the author and committer of new commits.
func (r *ReadonlyRepo) StartTransaction(user Signature) *Transaction {
	return &Transaction{
		repo:    newMutableRepo(r, user),
		base:    r,
		started: time.Now(),
	}
}

// VisibleHeads returns every commit whose ancestors are visible: the heads
// plus anything a ref points at.
func (v *View) VisibleHeads() []CommitID {
	out := append([]CommitID(nil), v.Heads...)
	out = append(out, v.RefTargets()...)
	for _, refs := range v.RemoteBookmarks {
		for _, ref := range refs {
			out = append(out, ref.Target)
		}
	}
	if v.GitHead != "" {
		out = append(out, v.GitHead)
	}
	return out
}
