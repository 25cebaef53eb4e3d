package worker

import (
	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/mutations"
)

// Request is one message to a worker. Every request carries a one-shot
// reply channel, which the worker writes exactly once.
type Request interface {
	name() string
}

// Result pairs a reply value with the error that replaced it.
type Result[T any] struct {
	Value T
	Err   error
}

// OpenWorkspace loads the workspace containing Path, replacing the open
// one. A workspace that fails to load is reported as a RepoConfig of kind
// load_error rather than an error.
type OpenWorkspace struct {
	Path  string
	Reply chan<- messages.RepoConfig
}

// InitWorkspace creates a workspace at Path and opens it.
type InitWorkspace struct {
	Path     string
	Colocate bool
	Reply    chan<- messages.RepoConfig
}

// CloneWorkspace clones URL into Path and opens the result.
type CloneWorkspace struct {
	URL      string
	Path     string
	Colocate bool
	Reply    chan<- messages.RepoConfig
}

// QueryLog starts a log query and returns its first page.
type QueryLog struct {
	Revset string
	Reply  chan<- Result[messages.LogPage]
}

// QueryLogNextPage continues the current log query.
type QueryLogNextPage struct {
	Reply chan<- Result[messages.LogPage]
}

// QueryRevisions returns the detail of a range of revisions.
type QueryRevisions struct {
	Set   messages.RevSet
	Reply chan<- Result[*messages.RevsResult]
}

// QueryRemotes lists remotes, optionally only those relevant to a bookmark.
type QueryRemotes struct {
	TrackingBookmark string
	Reply            chan<- Result[[]string]
}

// ExecuteSnapshot records changes made on disk. With UpdateStale set, a
// stale working copy is first rewritten from its commit. The reply is nil
// when nothing changed.
type ExecuteSnapshot struct {
	UpdateStale bool
	Reply       chan<- Result[*messages.RepoStatus]
}

// ExecuteMutation runs one mutation.
type ExecuteMutation struct {
	Mutation mutations.Mutation
	Reply    chan<- messages.MutationResult
}

// ReadConfigArray reads an array-valued setting.
type ReadConfigArray struct {
	Key   string
	Reply chan<- Result[[]string]
}

// WriteConfigArray writes an array-valued setting in one scope.
type WriteConfigArray struct {
	Scope  config.Scope
	Key    string
	Values []string
	Reply  chan<- error
}

// EndSession closes the open workspace. The worker keeps running.
type EndSession struct {
	Reply chan<- struct{}
}

func (OpenWorkspace) name() string    { return "open_workspace" }
func (InitWorkspace) name() string    { return "init_workspace" }
func (CloneWorkspace) name() string   { return "clone_workspace" }
func (QueryLog) name() string         { return "query_log" }
func (QueryLogNextPage) name() string { return "query_log_next_page" }
func (QueryRevisions) name() string   { return "query_revisions" }
func (QueryRemotes) name() string     { return "query_remotes" }
func (ExecuteSnapshot) name() string  { return "execute_snapshot" }
func (ExecuteMutation) name() string  { return "execute_mutation" }
func (ReadConfigArray) name() string  { return "read_config_array" }
func (WriteConfigArray) name() string { return "write_config_array" }
func (EndSession) name() string       { return "end_session" }
