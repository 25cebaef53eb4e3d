package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// MetaDir is the directory holding weft's state inside a workspace.
	MetaDir = ".weft"
	// DefaultWorkspace is the name of the workspace created by init and clone.
	DefaultWorkspace = "default"

	wcStateDir  = "working_copy"
	wcStateFile = "state.json"
)

type wcState struct {
	OperationID OperationID `json:"operation_id"`
	TreeID      TreeID      `json:"tree_id"`
	WorkspaceID string      `json:"workspace_id"`
}

// LocalWorkingCopy is the on-disk checkout of a workspace.
type LocalWorkingCopy struct {
	root  string
	store Store
	state wcState
}

// CheckoutStats counts the files touched by a checkout.
type CheckoutStats struct {
	Added    int
	Updated  int
	Removed  int
	Conflict int
}

func statePath(root string) string {
	return filepath.Join(root, MetaDir, wcStateDir, wcStateFile)
}

// InitWorkingCopy records a fresh working copy at root.
func InitWorkingCopy(root string, store Store, workspaceID string, op OperationID, tree TreeID) (*LocalWorkingCopy, error) {
	wc := &LocalWorkingCopy{
		root:  root,
		store: store,
		state: wcState{OperationID: op, TreeID: tree, WorkspaceID: workspaceID},
	}
	if err := os.MkdirAll(filepath.Dir(statePath(root)), 0o755); err != nil {
		return nil, fmt.Errorf("create working copy state dir: %w", err)
	}
	if err := wc.save(); err != nil {
		return nil, err
	}
	return wc, nil
}

// LoadWorkingCopy reads the working copy state at root.
func LoadWorkingCopy(root string, store Store) (*LocalWorkingCopy, error) {
	data, err := os.ReadFile(statePath(root))
	if err != nil {
		return nil, fmt.Errorf("read working copy state: %w", err)
	}
	wc := &LocalWorkingCopy{root: root, store: store}
	if err := json.Unmarshal(data, &wc.state); err != nil {
		return nil, fmt.Errorf("parse working copy state: %w", err)
	}
	if wc.state.TreeID == "" {
		wc.state.TreeID = EmptyTreeID
	}
	return wc, nil
}

func (wc *LocalWorkingCopy) save() error {
	data, err := json.MarshalIndent(wc.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := statePath(wc.root) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write working copy state: %w", err)
	}
	return os.Rename(tmp, statePath(wc.root))
}

// Root returns the workspace root directory.
func (wc *LocalWorkingCopy) Root() string { return wc.root }

// OperationID returns the operation the working copy was last updated at.
func (wc *LocalWorkingCopy) OperationID() OperationID { return wc.state.OperationID }

// TreeID returns the tree the files on disk were last known to match.
func (wc *LocalWorkingCopy) TreeID() TreeID { return wc.state.TreeID }

// WorkspaceID returns the name of the workspace.
func (wc *LocalWorkingCopy) WorkspaceID() string { return wc.state.WorkspaceID }

// Snapshot records the files on disk as a tree and returns its id.
func (wc *LocalWorkingCopy) Snapshot() (TreeID, error) {
	ignore := loadIgnore(wc.root)
	tree := NewTree()
	err := filepath.WalkDir(wc.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(wc.root, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == MetaDir || rel == ".git" || ignore.match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.match(rel, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		blob, err := wc.store.WriteBlob(data)
		if err != nil {
			return err
		}
		tree.Entries[rel] = TreeEntry{
			Blob:       blob,
			Executable: info.Mode()&0o111 != 0,
			Conflict:   HasConflictMarkers(data),
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("snapshot working copy: %w", err)
	}
	id, err := wc.store.WriteTree(tree)
	if err != nil {
		return "", err
	}
	wc.state.TreeID = id
	return id, nil
}

// CheckOut updates the files on disk from the old tree to the new one.
func (wc *LocalWorkingCopy) CheckOut(oldTree, newTree TreeID) (CheckoutStats, error) {
	var stats CheckoutStats
	before, err := wc.store.ReadTree(oldTree)
	if err != nil {
		return stats, err
	}
	after, err := wc.store.ReadTree(newTree)
	if err != nil {
		return stats, err
	}
	for _, ch := range DiffTrees(before, after) {
		p := filepath.Join(wc.root, filepath.FromSlash(ch.Path))
		switch ch.Kind {
		case ChangeDeleted:
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return stats, err
			}
			removeEmptyParents(wc.root, filepath.Dir(p))
			stats.Removed++
		default:
			if err := wc.writeFile(p, *ch.After); err != nil {
				return stats, err
			}
			if ch.Kind == ChangeAdded {
				stats.Added++
			} else {
				stats.Updated++
			}
			if ch.After.Conflict {
				stats.Conflict++
			}
		}
	}
	wc.state.TreeID = newTree
	return stats, nil
}

// Recover rewrites every file of tree to disk and removes files the
// recorded tree had that tree does not.
func (wc *LocalWorkingCopy) Recover(tree TreeID) (CheckoutStats, error) {
	var stats CheckoutStats
	t, err := wc.store.ReadTree(tree)
	if err != nil {
		return stats, err
	}
	if old, err := wc.store.ReadTree(wc.state.TreeID); err == nil {
		for p := range old.Entries {
			if _, ok := t.Entries[p]; ok {
				continue
			}
			full := filepath.Join(wc.root, filepath.FromSlash(p))
			if err := os.Remove(full); err == nil {
				removeEmptyParents(wc.root, filepath.Dir(full))
				stats.Removed++
			}
		}
	}
	for _, p := range t.Paths() {
		if err := wc.writeFile(filepath.Join(wc.root, filepath.FromSlash(p)), t.Entries[p]); err != nil {
			return stats, err
		}
		stats.Updated++
	}
	wc.state.TreeID = tree
	return stats, nil
}

// Reset records tree as checked out without touching any file.
func (wc *LocalWorkingCopy) Reset(tree TreeID) {
	wc.state.TreeID = tree
}

// Finish records op as the operation the working copy is at and saves the state.
func (wc *LocalWorkingCopy) Finish(op OperationID) error {
	wc.state.OperationID = op
	return wc.save()
}

func (wc *LocalWorkingCopy) writeFile(p string, e TreeEntry) error {
	data, err := wc.store.ReadBlob(e.Blob)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if e.Executable {
		mode = 0o755
	}
	if err := os.WriteFile(p, data, mode); err != nil {
		return err
	}
	return os.Chmod(p, mode)
}

func removeEmptyParents(root, dir string) {
	for dir != root && strings.HasPrefix(dir, root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// ignoreRules holds the patterns of the workspace's top-level .gitignore.
type ignoreRules struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	glob     string
	dirOnly  bool
	anchored bool
	negate   bool
}

func loadIgnore(root string) ignoreRules {
	var rules ignoreRules
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return rules
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var p ignorePattern
		if strings.HasPrefix(line, "!") {
			p.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if strings.Contains(line, "/") {
			p.anchored = true
			line = strings.TrimPrefix(line, "/")
		}
		p.glob = line
		rules.patterns = append(rules.patterns, p)
	}
	return rules
}

func (r ignoreRules) match(rel string, isDir bool) bool {
	ignored := false
	for _, p := range r.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		var ok bool
		if p.anchored {
			ok, _ = path.Match(p.glob, rel)
		} else {
			ok, _ = path.Match(p.glob, path.Base(rel))
		}
		if ok {
			ignored = !p.negate
		}
	}
	return ignored
}
