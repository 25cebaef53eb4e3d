package git

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zhubert/weft/internal/engine"
)

// Colocation keeps a workspace's repository and its git repository in step.
// Commit identities are linked through the store's git mapping.
type Colocation struct {
	git   *GitService
	store engine.Store
	blobs map[engine.BlobID]string
}

// NewColocation links svc with store.
func NewColocation(svc *GitService, store engine.Store) *Colocation {
	return &Colocation{git: svc, store: store, blobs: map[engine.BlobID]string{}}
}

// Service returns the underlying git service.
func (c *Colocation) Service() *GitService {
	return c.git
}

// ImportCommit brings the git commit sha and its ancestors into the store,
// returning the matching commit id. Already imported commits are reused.
func (c *Colocation) ImportCommit(ctx context.Context, sha string) (engine.CommitID, error) {
	if id, ok, err := c.store.CommitForGit(sha); err != nil || ok {
		return id, err
	}

	// Walk parents first without recursion; histories can be deep.
	var order []*CommitObject
	pending := []string{sha}
	seen := map[string]bool{}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if _, ok, err := c.store.CommitForGit(cur); err != nil {
			return "", err
		} else if ok {
			continue
		}
		obj, err := c.git.ReadCommit(ctx, cur)
		if err != nil {
			return "", err
		}
		order = append(order, obj)
		pending = append(pending, obj.Parents...)
	}

	byHash := map[string]*CommitObject{}
	for _, obj := range order {
		byHash[obj.SHA] = obj
	}
	imported := map[string]engine.CommitID{}
	var importOne func(obj *CommitObject) (engine.CommitID, error)
	importOne = func(obj *CommitObject) (engine.CommitID, error) {
		if id, ok := imported[obj.SHA]; ok {
			return id, nil
		}
		var parents []engine.CommitID
		for _, p := range obj.Parents {
			if id, ok, err := c.store.CommitForGit(p); err != nil {
				return "", err
			} else if ok {
				parents = append(parents, id)
				continue
			}
			id, err := importOne(byHash[p])
			if err != nil {
				return "", err
			}
			parents = append(parents, id)
		}
		if len(parents) == 0 {
			parents = []engine.CommitID{engine.RootCommitID}
		}
		tree, err := c.importTree(ctx, obj.Tree)
		if err != nil {
			return "", err
		}
		commit := &engine.Commit{
			ChangeID:    engine.ChangeIDFromGit(obj.SHA),
			Parents:     parents,
			Tree:        tree,
			Description: obj.Message,
			Author:      engine.Signature{Name: obj.Author.Name, Email: obj.Author.Email, Timestamp: obj.Author.When},
			Committer:   engine.Signature{Name: obj.Committer.Name, Email: obj.Committer.Email, Timestamp: obj.Committer.When},
		}
		id, err := c.store.WriteCommit(commit)
		if err != nil {
			return "", err
		}
		if err := c.store.SetGitMapping(id, obj.SHA); err != nil {
			return "", err
		}
		imported[obj.SHA] = id
		return id, nil
	}

	// order is newest first; import oldest first to keep recursion shallow.
	for i := len(order) - 1; i >= 0; i-- {
		if _, err := importOne(order[i]); err != nil {
			return "", fmt.Errorf("import git commit %s: %w", order[i].SHA, err)
		}
	}
	return imported[sha], nil
}

func (c *Colocation) importTree(ctx context.Context, sha string) (engine.TreeID, error) {
	items, err := c.git.ListTree(ctx, sha)
	if err != nil {
		return "", err
	}
	tree := engine.NewTree()
	for _, item := range items {
		data, err := c.git.ReadBlob(ctx, item.SHA)
		if err != nil {
			return "", err
		}
		blob, err := c.store.WriteBlob(data)
		if err != nil {
			return "", err
		}
		c.blobs[blob] = item.SHA
		tree.Entries[item.Path] = engine.TreeEntry{
			Blob:       blob,
			Executable: item.Executable,
			Conflict:   engine.HasConflictMarkers(data),
		}
	}
	return c.store.WriteTree(tree)
}

// ExportCommit writes commit id and its ancestors to git, returning the sha.
// The root commit has no git equivalent and exports as "".
func (c *Colocation) ExportCommit(ctx context.Context, id engine.CommitID) (string, error) {
	if id == engine.RootCommitID {
		return "", nil
	}
	if sha, ok, err := c.store.GitMapping(id); err != nil || ok {
		return sha, err
	}
	commit, err := c.store.ReadCommit(id)
	if err != nil {
		return "", err
	}
	var parents []string
	for _, p := range commit.Parents {
		sha, err := c.ExportCommit(ctx, p)
		if err != nil {
			return "", err
		}
		if sha != "" {
			parents = append(parents, sha)
		}
	}
	tree, err := c.exportTree(ctx, commit.Tree)
	if err != nil {
		return "", err
	}
	sha, err := c.git.CommitTree(ctx, tree, parents, commit.Description,
		Ident{Name: commit.Author.Name, Email: commit.Author.Email, When: commit.Author.Timestamp},
		Ident{Name: commit.Committer.Name, Email: commit.Committer.Email, When: commit.Committer.Timestamp})
	if err != nil {
		return "", err
	}
	if err := c.store.SetGitMapping(id, sha); err != nil {
		return "", err
	}
	return sha, nil
}

func (c *Colocation) exportTree(ctx context.Context, id engine.TreeID) (string, error) {
	tree, err := c.store.ReadTree(id)
	if err != nil {
		return "", err
	}
	items := make([]TreeItem, 0, len(tree.Entries))
	for _, p := range tree.Paths() {
		e := tree.Entries[p]
		sha, ok := c.blobs[e.Blob]
		if !ok {
			data, err := c.store.ReadBlob(e.Blob)
			if err != nil {
				return "", err
			}
			if sha, err = c.git.WriteBlob(ctx, data); err != nil {
				return "", err
			}
			c.blobs[e.Blob] = sha
		}
		items = append(items, TreeItem{Path: p, SHA: sha, Executable: e.Executable})
	}
	return c.git.WriteTree(ctx, items)
}

// ImportHead reads git's HEAD. It returns the imported commit and whether
// HEAD moved away from the view's recorded git head.
func (c *Colocation) ImportHead(ctx context.Context, view *engine.View) (engine.CommitID, bool, error) {
	sha, err := c.git.Head(ctx)
	if err != nil {
		return "", false, err
	}
	if sha == "" {
		return "", false, nil
	}
	id, err := c.ImportCommit(ctx, sha)
	if err != nil {
		return "", false, err
	}
	return id, id != view.GitHead, nil
}

// ResetHead detaches git's HEAD at the working-copy commit's first parent,
// which is what git users expect to see checked out. It returns the commit
// HEAD now points at, or "" if that parent is the root.
func (c *Colocation) ResetHead(ctx context.Context, wc *engine.Commit) (engine.CommitID, error) {
	parent := wc.FirstParent()
	sha, err := c.ExportCommit(ctx, parent)
	if err != nil {
		return "", err
	}
	if sha == "" {
		return "", nil
	}
	if err := c.git.DetachHead(ctx, sha); err != nil {
		return "", err
	}
	return parent, nil
}

const (
	headsPrefix   = "refs/heads/"
	remotesPrefix = "refs/remotes/"
	tagsPrefix    = "refs/tags/"
)

// ImportRefs copies git's branches, remote-tracking branches and tags into
// the repo, replacing the previous values.
func (c *Colocation) ImportRefs(ctx context.Context, repo *engine.MutableRepo) error {
	refs, err := c.git.Refs(ctx)
	if err != nil {
		return err
	}
	local := map[string]engine.CommitID{}
	tags := map[string]engine.CommitID{}
	remote := map[string]map[string]engine.CommitID{}
	for _, ref := range refs {
		id, err := c.ImportCommit(ctx, ref.SHA)
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(ref.Name, headsPrefix):
			local[strings.TrimPrefix(ref.Name, headsPrefix)] = id
		case strings.HasPrefix(ref.Name, tagsPrefix):
			tags[strings.TrimPrefix(ref.Name, tagsPrefix)] = id
		case strings.HasPrefix(ref.Name, remotesPrefix):
			rest := strings.TrimPrefix(ref.Name, remotesPrefix)
			r, name, ok := strings.Cut(rest, "/")
			if !ok || name == "HEAD" {
				continue
			}
			if remote[r] == nil {
				remote[r] = map[string]engine.CommitID{}
			}
			remote[r][name] = id
		}
		if err := repo.AddHead(id); err != nil {
			return err
		}
	}

	view := repo.View()
	for name := range view.LocalBookmarks {
		if _, ok := local[name]; !ok {
			repo.SetLocalBookmark(name, "")
		}
	}
	for name, id := range local {
		repo.SetLocalBookmark(name, id)
	}
	for name := range view.Tags {
		if _, ok := tags[name]; !ok {
			repo.SetTag(name, "")
		}
	}
	for name, id := range tags {
		repo.SetTag(name, id)
	}
	for r, refs := range view.RemoteBookmarks {
		for name := range refs {
			if _, ok := remote[r][name]; !ok {
				repo.SetRemoteBookmark(name, r, engine.RemoteRef{})
			}
		}
	}
	for r, names := range remote {
		for name, id := range names {
			old, _ := view.RemoteBookmark(name, r)
			repo.SetRemoteBookmark(name, r, engine.RemoteRef{Target: id, Tracked: old.Tracked})
		}
	}
	return nil
}

// ExportRefs writes the view's bookmarks and tags to git.
func (c *Colocation) ExportRefs(ctx context.Context, view *engine.View) error {
	refs, err := c.git.Refs(ctx)
	if err != nil {
		return err
	}
	current := map[string]string{}
	for _, r := range refs {
		current[r.Name] = r.SHA
	}

	want := map[string]engine.CommitID{}
	for name, id := range view.LocalBookmarks {
		want[headsPrefix+name] = id
	}
	for name, id := range view.Tags {
		want[tagsPrefix+name] = id
	}
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sha, err := c.ExportCommit(ctx, want[name])
		if err != nil {
			return err
		}
		if sha == "" || current[name] == sha {
			continue
		}
		if err := c.git.UpdateRef(ctx, name, sha); err != nil {
			return err
		}
	}
	for name := range current {
		if strings.HasPrefix(name, remotesPrefix) {
			continue
		}
		if _, ok := want[name]; !ok {
			if err := c.git.DeleteRef(ctx, name); err != nil {
				return err
			}
		}
	}
	return nil
}
