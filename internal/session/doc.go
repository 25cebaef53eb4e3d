// Package session holds the live state of one open workspace.
//
// # Overview
//
// A WorkspaceSession owns exactly one current SessionOperation: a read-only
// snapshot of the repository at a resolved operation, together with the
// caches that only make sense for that operation (the ref index and the
// id-prefix context). Every committed transaction or reload replaces the
// SessionOperation with a new instance; nothing patches an existing one.
//
// # Resolving the current operation
//
// Concurrent writers may leave several operation heads behind.
// ResolveOperation drops heads that are ancestors of other heads, then
// merges the rest into one unpublished operation, rebasing descendants of
// anything the merged operations rewrote.
//
// # Transactions
//
// StartTransaction snapshots the working copy when the snapshot policy
// allows it and opens a transaction on the current operation.
// FinishTransaction commits it only if the repository changed, keeps a
// colocated git repository in step, and updates the files on disk when the
// working-copy commit's tree changed.
//
// # Ids
//
// Revisions are identified by change id and commit id. ResolveOptionalID
// prefers the change and falls back to the commit when the change is
// divergent; ResolveChange refuses divergent changes unless the commit id
// picks one of them.
package session
