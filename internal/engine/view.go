package engine

import (
	"maps"
	"slices"
)

// RemoteRef is a bookmark as last seen on a remote.
type RemoteRef struct {
	Target  CommitID `json:"target"`
	Tracked bool     `json:"tracked,omitempty"`
}

// View is the state of all refs at one operation.
type View struct {
	Heads           []CommitID                      `json:"heads"`
	WCCommits       map[string]CommitID             `json:"wc_commits"`
	LocalBookmarks  map[string]CommitID             `json:"local_bookmarks"`
	RemoteBookmarks map[string]map[string]RemoteRef `json:"remote_bookmarks"` // remote -> name -> ref
	Tags            map[string]CommitID             `json:"tags"`
	GitHead         CommitID                        `json:"git_head,omitempty"`
}

// NewView returns a view whose only head is the root commit.
func NewView() *View {
	return &View{
		Heads:           []CommitID{RootCommitID},
		WCCommits:       map[string]CommitID{},
		LocalBookmarks:  map[string]CommitID{},
		RemoteBookmarks: map[string]map[string]RemoteRef{},
		Tags:            map[string]CommitID{},
	}
}

// Clone returns a deep copy.
func (v *View) Clone() *View {
	cp := &View{
		Heads:           slices.Clone(v.Heads),
		WCCommits:       maps.Clone(v.WCCommits),
		LocalBookmarks:  maps.Clone(v.LocalBookmarks),
		RemoteBookmarks: make(map[string]map[string]RemoteRef, len(v.RemoteBookmarks)),
		Tags:            maps.Clone(v.Tags),
		GitHead:         v.GitHead,
	}
	for remote, refs := range v.RemoteBookmarks {
		cp.RemoteBookmarks[remote] = maps.Clone(refs)
	}
	cp.ensureMaps()
	return cp
}

func (v *View) ensureMaps() {
	if v.WCCommits == nil {
		v.WCCommits = map[string]CommitID{}
	}
	if v.LocalBookmarks == nil {
		v.LocalBookmarks = map[string]CommitID{}
	}
	if v.RemoteBookmarks == nil {
		v.RemoteBookmarks = map[string]map[string]RemoteRef{}
	}
	if v.Tags == nil {
		v.Tags = map[string]CommitID{}
	}
}

// RemoteBookmark returns the named remote bookmark.
func (v *View) RemoteBookmark(name, remote string) (RemoteRef, bool) {
	ref, ok := v.RemoteBookmarks[remote][name]
	return ref, ok
}

// SetRemoteBookmark sets or, with an empty target, removes a remote bookmark.
func (v *View) SetRemoteBookmark(name, remote string, ref RemoteRef) {
	if ref.Target == "" {
		delete(v.RemoteBookmarks[remote], name)
		if len(v.RemoteBookmarks[remote]) == 0 {
			delete(v.RemoteBookmarks, remote)
		}
		return
	}
	if v.RemoteBookmarks[remote] == nil {
		v.RemoteBookmarks[remote] = map[string]RemoteRef{}
	}
	v.RemoteBookmarks[remote][name] = ref
}

// Remotes returns the names of remotes that have bookmarks, sorted.
func (v *View) Remotes() []string {
	return slices.Sorted(maps.Keys(v.RemoteBookmarks))
}

// RefTargets returns every commit a ref points at, used to keep ref
// targets visible.
func (v *View) RefTargets() []CommitID {
	var out []CommitID
	for _, id := range v.WCCommits {
		out = append(out, id)
	}
	for _, id := range v.LocalBookmarks {
		out = append(out, id)
	}
	for _, id := range v.Tags {
		out = append(out, id)
	}
	return out
}

func mergeRefMap(base, ours, theirs map[string]CommitID, onConflict func(name string)) map[string]CommitID {
	out := maps.Clone(ours)
	if out == nil {
		out = map[string]CommitID{}
	}
	names := map[string]bool{}
	for k := range base {
		names[k] = true
	}
	for k := range theirs {
		names[k] = true
	}
	for name := range names {
		b, t, o := base[name], theirs[name], ours[name]
		if b == t || t == o {
			continue
		}
		if b == o {
			if t == "" {
				delete(out, name)
			} else {
				out[name] = t
			}
			continue
		}
		onConflict(name)
	}
	return out
}

// mergeViews merges theirs into ours relative to base. Heads added or removed
// by theirs are applied to ours. When both sides moved a ref differently,
// ours wins and onConflict is told the ref name.
func mergeViews(base, ours, theirs *View, onConflict func(ref string)) *View {
	out := ours.Clone()

	baseHeads := slices.Clone(base.Heads)
	heads := slices.Clone(ours.Heads)
	for _, h := range theirs.Heads {
		if !slices.Contains(baseHeads, h) && !slices.Contains(heads, h) {
			heads = append(heads, h)
		}
	}
	for _, h := range baseHeads {
		if !slices.Contains(theirs.Heads, h) {
			heads = slices.DeleteFunc(heads, func(x CommitID) bool { return x == h })
		}
	}
	out.Heads = heads

	out.WCCommits = mergeRefMap(base.WCCommits, ours.WCCommits, theirs.WCCommits, func(n string) { onConflict("workspace " + n) })
	out.LocalBookmarks = mergeRefMap(base.LocalBookmarks, ours.LocalBookmarks, theirs.LocalBookmarks, func(n string) { onConflict("bookmark " + n) })
	out.Tags = mergeRefMap(base.Tags, ours.Tags, theirs.Tags, func(n string) { onConflict("tag " + n) })

	remotes := map[string]bool{}
	for r := range base.RemoteBookmarks {
		remotes[r] = true
	}
	for r := range theirs.RemoteBookmarks {
		remotes[r] = true
	}
	for remote := range remotes {
		flat := func(v *View) map[string]CommitID {
			m := map[string]CommitID{}
			for name, ref := range v.RemoteBookmarks[remote] {
				m[name] = ref.Target
			}
			return m
		}
		merged := mergeRefMap(flat(base), flat(ours), flat(theirs), func(n string) { onConflict("bookmark " + n + "@" + remote) })
		refs := map[string]RemoteRef{}
		for name, target := range merged {
			ref := RemoteRef{Target: target}
			if r, ok := ours.RemoteBookmarks[remote][name]; ok {
				ref.Tracked = r.Tracked
			} else if r, ok := theirs.RemoteBookmarks[remote][name]; ok {
				ref.Tracked = r.Tracked
			}
			refs[name] = ref
		}
		if len(refs) == 0 {
			delete(out.RemoteBookmarks, remote)
		} else {
			out.RemoteBookmarks[remote] = refs
		}
	}

	if base.GitHead != theirs.GitHead && base.GitHead == ours.GitHead {
		out.GitHead = theirs.GitHead
	}
	return out
}
