// Package messages defines the values exchanged between a workspace worker
// and its client. Everything here is plain data with JSON tags; nothing
// holds engine state.
package messages

import (
	"time"
)

// Event names pushed through an EventSink.
const (
	EventRepoConfig = "weft://repo/config"
	EventRepoStatus = "weft://repo/status"
	EventProgress   = "weft://progress"
	EventInput      = "weft://input"
)

// ID is a change or commit id split at its shortest unique prefix.
// Prefix + Rest always equals Hex.
type ID struct {
	Hex    string `json:"hex"`
	Prefix string `json:"prefix"`
	Rest   string `json:"rest"`
}

// NewID splits hex after prefixLen characters.
func NewID(hex string, prefixLen int) ID {
	prefixLen = max(0, min(prefixLen, len(hex)))
	return ID{Hex: hex, Prefix: hex[:prefixLen], Rest: hex[prefixLen:]}
}

// RevID identifies a revision by both its change and its commit.
type RevID struct {
	Change ID `json:"change"`
	Commit ID `json:"commit"`
}

// RevSet is a contiguous range of revisions, From being the oldest.
type RevSet struct {
	From RevID `json:"from"`
	To   RevID `json:"to"`
}

// SingleRevSet returns the range holding only id.
func SingleRevSet(id RevID) RevSet {
	return RevSet{From: id, To: id}
}

// RefKind distinguishes the kinds of refs shown on a revision.
type RefKind string

const (
	RefLocalBookmark  RefKind = "local_bookmark"
	RefRemoteBookmark RefKind = "remote_bookmark"
	RefTag            RefKind = "tag"
)

// Ref is a bookmark or tag pointing at a revision.
type Ref struct {
	Kind   RefKind `json:"kind"`
	Name   string  `json:"name"`
	Remote string  `json:"remote,omitempty"`
	// Local bookmarks: whether any remote holds a different target.
	HasUnpushed bool `json:"has_unpushed,omitempty"`
	// Remote bookmarks: whether the local bookmark follows this remote.
	IsTracked bool `json:"is_tracked,omitempty"`
}

// DisplayName formats the ref the way revsets spell it.
func (r Ref) DisplayName() string {
	if r.Kind == RefRemoteBookmark {
		return r.Name + "@" + r.Remote
	}
	return r.Name
}

// Signature is the author or committer of a revision.
type Signature struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// RevHeader is the summary of one revision shown in the log and detail views.
type RevHeader struct {
	ID            RevID     `json:"id"`
	Description   string    `json:"description"`
	Author        Signature `json:"author"`
	HasConflict   bool      `json:"has_conflict"`
	IsWorkingCopy bool      `json:"is_working_copy"`
	IsImmutable   bool      `json:"is_immutable"`
	Refs          []Ref     `json:"refs"`
	ParentIDs     []string  `json:"parent_ids"`
}

// Summary returns the first line of the description.
func (h RevHeader) Summary() string {
	for i := 0; i < len(h.Description); i++ {
		if h.Description[i] == '\n' {
			return h.Description[:i]
		}
	}
	return h.Description
}

// RepoStatus is the part of the repository state every view shows.
type RepoStatus struct {
	OperationDescription string `json:"operation_description"`
	OperationID          string `json:"operation_id"`
	WorkingCopy          ID     `json:"working_copy"`
}

// RepoConfigKind selects which fields of RepoConfig are set.
type RepoConfigKind string

const (
	RepoConfigWorkspace   RepoConfigKind = "workspace"
	RepoConfigLoadError   RepoConfigKind = "load_error"
	RepoConfigWorkerError RepoConfigKind = "worker_error"
)

// RepoConfig describes an open workspace, or why one could not be opened.
type RepoConfig struct {
	Kind                  RepoConfigKind `json:"kind"`
	AbsolutePath          string         `json:"absolute_path,omitempty"`
	GitRemotes            []string       `json:"git_remotes,omitempty"`
	DefaultQuery          string         `json:"default_query,omitempty"`
	LatestQuery           string         `json:"latest_query,omitempty"`
	Status                *RepoStatus    `json:"status,omitempty"`
	Colocated             bool           `json:"colocated,omitempty"`
	MarkUnpushedBookmarks bool           `json:"mark_unpushed_bookmarks,omitempty"`
	ThemeOverride         string         `json:"theme_override,omitempty"`
	Message               string         `json:"message,omitempty"`
}

// LogCoordinates locates a node or line end in the graph.
type LogCoordinates struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// LogLineKind is the shape of one graph line.
type LogLineKind string

const (
	// FromNode starts at a node and ends at a later row.
	LineFromNode LogLineKind = "from_node"
	// ToNode ends at a node, started by an earlier row.
	LineToNode LogLineKind = "to_node"
	// ToIntersection joins an edge that another line already carries.
	LineToIntersection LogLineKind = "to_intersection"
	// ToMissing ends at an ancestor outside the queried set.
	LineToMissing LogLineKind = "to_missing"
)

// LogLine is one edge segment of the graph.
type LogLine struct {
	Kind     LogLineKind    `json:"kind"`
	Source   LogCoordinates `json:"source"`
	Target   LogCoordinates `json:"target"`
	Indirect bool           `json:"indirect"`
}

// LogRow is one revision of the graph with the lines that end at it or
// leave from it.
type LogRow struct {
	Revision RevHeader      `json:"revision"`
	Location LogCoordinates `json:"location"`
	Padding  int            `json:"padding"`
	Lines    []LogLine      `json:"lines"`
}

// LogPage is one page of a log query.
type LogPage struct {
	Rows    []LogRow `json:"rows"`
	HasMore bool     `json:"has_more"`
}

// ChangeKind is how a file differs between a revision and its parents.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// TreePath is a repository path plus its form relative to the workspace root.
type TreePath struct {
	RepoPath     string `json:"repo_path"`
	RelativePath string `json:"relative_path"`
}

// FileRange is a 1-based line range of a file.
type FileRange struct {
	Start int `json:"start"`
	Len   int `json:"len"`
}

// HunkLocation places a hunk in the old and new files.
type HunkLocation struct {
	FromFile FileRange `json:"from_file"`
	ToFile   FileRange `json:"to_file"`
}

// ChangeHunk is one unified-diff hunk. Lines keep their ' ', '-' or '+'
// prefix and their trailing newline.
type ChangeHunk struct {
	Location HunkLocation `json:"location"`
	Lines    []string     `json:"lines"`
}

// RevChange is one changed file of a revision.
type RevChange struct {
	Kind        ChangeKind   `json:"kind"`
	Path        TreePath     `json:"path"`
	HasConflict bool         `json:"has_conflict"`
	Hunks       []ChangeHunk `json:"hunks"`
}

// RevConflict is a file carrying conflict markers.
type RevConflict struct {
	Path TreePath   `json:"path"`
	Hunk ChangeHunk `json:"hunk"`
}

// RevsResultKind selects which fields of RevsResult are set.
type RevsResultKind string

const (
	RevsNotFound RevsResultKind = "not_found"
	RevsDetail   RevsResultKind = "detail"
)

// RevsResult is the detail of a range of revisions.
type RevsResult struct {
	Kind             RevsResultKind `json:"kind"`
	Set              *RevSet        `json:"set,omitempty"`
	Headers          []RevHeader    `json:"headers,omitempty"`
	Parents          []RevHeader    `json:"parents,omitempty"`
	Changes          []RevChange    `json:"changes,omitempty"`
	ConflictingFiles []RevConflict  `json:"conflicting_files,omitempty"`
}

// InputField is one value a credential prompt asks for.
type InputField struct {
	Label   string   `json:"label"`
	Choices []string `json:"choices,omitempty"`
}

// InputRequest asks the user for credentials a network operation needs.
type InputRequest struct {
	Title  string       `json:"title"`
	Detail string       `json:"detail"`
	Fields []InputField `json:"fields"`
}

// InputResponse answers an InputRequest, keyed by field label.
type InputResponse struct {
	Cancel bool              `json:"cancel"`
	Fields map[string]string `json:"fields"`
}

// Progress reports how far a long operation has got.
type Progress struct {
	Message string  `json:"message"`
	Overall float64 `json:"overall"`
}

// MutationResultKind selects which fields of MutationResult are set.
type MutationResultKind string

const (
	ResultUnchanged         MutationResultKind = "unchanged"
	ResultUpdated           MutationResultKind = "updated"
	ResultReconfigured      MutationResultKind = "reconfigured"
	ResultInputRequired     MutationResultKind = "input_required"
	ResultPreconditionError MutationResultKind = "precondition_error"
	ResultInternalError     MutationResultKind = "internal_error"
)

// MutationResult is the outcome of one mutation.
type MutationResult struct {
	Kind         MutationResultKind `json:"kind"`
	NewStatus    *RepoStatus        `json:"new_status,omitempty"`
	NewSelection *RevHeader         `json:"new_selection,omitempty"`
	NewConfig    *RepoConfig        `json:"new_config,omitempty"`
	Request      *InputRequest      `json:"request,omitempty"`
	Message      string             `json:"message,omitempty"`
}

// Unchanged reports a mutation that left the repository as it was.
func Unchanged() MutationResult {
	return MutationResult{Kind: ResultUnchanged}
}

// Updated reports a committed change. selection may be nil.
func Updated(status *RepoStatus, selection *RevHeader) MutationResult {
	return MutationResult{Kind: ResultUpdated, NewStatus: status, NewSelection: selection}
}

// Reconfigured reports a change that invalidates the client's RepoConfig.
func Reconfigured(cfg RepoConfig) MutationResult {
	return MutationResult{Kind: ResultReconfigured, NewConfig: &cfg}
}

// InputRequired asks the client to retry with credentials.
func InputRequired(req InputRequest) MutationResult {
	return MutationResult{Kind: ResultInputRequired, Request: &req}
}

// PreconditionError reports an expected, user-facing failure.
func PreconditionError(message string) MutationResult {
	return MutationResult{Kind: ResultPreconditionError, Message: message}
}

// InternalError reports an unexpected failure.
func InternalError(message string) MutationResult {
	return MutationResult{Kind: ResultInternalError, Message: message}
}
