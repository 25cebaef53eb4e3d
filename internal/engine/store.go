package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrObjectNotFound is returned by stores for unknown ids.
var ErrObjectNotFound = errors.New("object not found")

// Store persists commits, trees, blobs and operations, plus the set of
// operation heads. Object writes are idempotent because ids are content hashes.
type Store interface {
	ReadCommit(id CommitID) (*Commit, error)
	WriteCommit(c *Commit) (CommitID, error)
	ReadTree(id TreeID) (*Tree, error)
	WriteTree(t *Tree) (TreeID, error)
	ReadBlob(id BlobID) ([]byte, error)
	WriteBlob(data []byte) (BlobID, error)

	ReadOperation(id OperationID) (*Operation, error)
	WriteOperation(op *Operation) (OperationID, error)
	// OpHeads returns the current operation heads.
	OpHeads() ([]OperationID, error)
	// UpdateOpHeads adds newHead and removes every id in old, atomically.
	UpdateOpHeads(old []OperationID, newHead OperationID) error

	// GitMapping returns the git sha a commit was exported to or imported from.
	GitMapping(id CommitID) (string, bool, error)
	// CommitForGit returns the commit recorded for a git sha.
	CommitForGit(sha string) (CommitID, bool, error)
	SetGitMapping(id CommitID, sha string) error

	Close() error
}

// MemoryStore is a Store held entirely in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	commits map[CommitID]*Commit
	trees   map[TreeID]*Tree
	blobs   map[BlobID][]byte
	ops     map[OperationID]*Operation
	heads   []OperationID
	toGit   map[CommitID]string
	fromGit map[string]CommitID
}

// NewMemoryStore returns an empty store holding the root operation.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		commits: map[CommitID]*Commit{},
		trees:   map[TreeID]*Tree{},
		blobs:   map[BlobID][]byte{},
		ops:     map[OperationID]*Operation{},
		toGit:   map[CommitID]string{},
		fromGit: map[string]CommitID{},
	}
	s.heads = []OperationID{RootOperationID}
	return s
}

func (s *MemoryStore) ReadCommit(id CommitID) (*Commit, error) {
	if id == RootCommitID {
		return RootCommit(), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commits[id]
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", id.Short(), ErrObjectNotFound)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) WriteCommit(c *Commit) (CommitID, error) {
	id := c.ComputeID()
	cp := c.Clone()
	cp.ID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[id] = cp
	return id, nil
}

func (s *MemoryStore) ReadTree(id TreeID) (*Tree, error) {
	if id == EmptyTreeID {
		return NewTree(), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[id]
	if !ok {
		return nil, fmt.Errorf("tree %s: %w", id, ErrObjectNotFound)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) WriteTree(t *Tree) (TreeID, error) {
	id := t.ID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees[id] = t.Clone()
	return id, nil
}

func (s *MemoryStore) ReadBlob(id BlobID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", id, ErrObjectNotFound)
	}
	return slices.Clone(b), nil
}

func (s *MemoryStore) WriteBlob(data []byte) (BlobID, error) {
	id := HashBlob(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = slices.Clone(data)
	return id, nil
}

func (s *MemoryStore) ReadOperation(id OperationID) (*Operation, error) {
	if id == RootOperationID {
		return RootOperation(), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", id.Short(), ErrObjectNotFound)
	}
	return op.Clone(), nil
}

func (s *MemoryStore) WriteOperation(op *Operation) (OperationID, error) {
	id := op.ComputeID()
	cp := op.Clone()
	cp.ID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[id] = cp
	return id, nil
}

func (s *MemoryStore) OpHeads() ([]OperationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.heads), nil
}

func (s *MemoryStore) UpdateOpHeads(old []OperationID, newHead OperationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.heads[:0:0]
	for _, h := range s.heads {
		if !slices.Contains(old, h) && h != newHead {
			kept = append(kept, h)
		}
	}
	s.heads = append(kept, newHead)
	return nil
}

func (s *MemoryStore) GitMapping(id CommitID) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sha, ok := s.toGit[id]
	return sha, ok, nil
}

func (s *MemoryStore) CommitForGit(sha string) (CommitID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.fromGit[sha]
	return id, ok, nil
}

func (s *MemoryStore) SetGitMapping(id CommitID, sha string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toGit[id] = sha
	s.fromGit[sha] = id
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// ReadFile returns the content of path in tree, or nil if absent.
func ReadFile(store Store, tree *Tree, path string) ([]byte, bool, error) {
	e, ok := tree.Entries[path]
	if !ok {
		return nil, false, nil
	}
	data, err := store.ReadBlob(e.Blob)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
