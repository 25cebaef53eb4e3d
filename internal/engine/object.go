package engine

import (
	"maps"
	"slices"
	"time"
)

// Signature records who made a commit and when.
type Signature struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSignature returns a signature stamped with the current time.
func NewSignature(name, email string) Signature {
	return Signature{Name: name, Email: email, Timestamp: time.Now().Truncate(time.Second)}
}

// Commit is an immutable revision.
type Commit struct {
	ID          CommitID   `json:"-"`
	ChangeID    ChangeID   `json:"change_id"`
	Parents     []CommitID `json:"parents"`
	Tree        TreeID     `json:"tree"`
	Description string     `json:"description"`
	Author      Signature  `json:"author"`
	Committer   Signature  `json:"committer"`
}

// ComputeID derives the commit id from the commit's content.
func (c *Commit) ComputeID() CommitID {
	return CommitID(hashJSON(c))
}

// IsRoot reports whether c is the root commit.
func (c *Commit) IsRoot() bool {
	return c.ID == RootCommitID
}

// IsMerge reports whether c has more than one parent.
func (c *Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

// FirstParent returns the first parent, or the root id for the root commit.
func (c *Commit) FirstParent() CommitID {
	if len(c.Parents) == 0 {
		return RootCommitID
	}
	return c.Parents[0]
}

// Clone returns a deep copy.
func (c *Commit) Clone() *Commit {
	cp := *c
	cp.Parents = slices.Clone(c.Parents)
	return &cp
}

// RootCommit returns the root commit. It is never written to a store;
// stores answer for it directly.
func RootCommit() *Commit {
	return &Commit{
		ID:       RootCommitID,
		ChangeID: RootChangeID,
		Parents:  nil,
		Tree:     EmptyTreeID,
	}
}

// TreeEntry is one file in a tree.
type TreeEntry struct {
	Blob       BlobID `json:"blob"`
	Executable bool   `json:"executable,omitempty"`
	// Conflict marks a file whose content holds unresolved conflict markers.
	Conflict bool `json:"conflict,omitempty"`
}

// Tree maps slash-separated paths to file entries. Directories are implicit.
type Tree struct {
	Entries map[string]TreeEntry `json:"entries"`
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{Entries: map[string]TreeEntry{}}
}

// ID returns the content hash of the tree.
func (t *Tree) ID() TreeID {
	if len(t.Entries) == 0 {
		return EmptyTreeID
	}
	return TreeID(hashJSON(t))
}

// Paths returns the tree's paths in sorted order.
func (t *Tree) Paths() []string {
	return slices.Sorted(maps.Keys(t.Entries))
}

// Clone returns a copy that can be modified independently.
func (t *Tree) Clone() *Tree {
	return &Tree{Entries: maps.Clone(t.Entries)}
}

// HasConflicts reports whether any entry is conflicted.
func (t *Tree) HasConflicts() bool {
	for _, e := range t.Entries {
		if e.Conflict {
			return true
		}
	}
	return false
}

// EmptyTreeID is the id of the tree with no entries.
var EmptyTreeID = TreeID(hashJSON(&Tree{Entries: map[string]TreeEntry{}}))
