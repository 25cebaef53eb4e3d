// Package errors provides structured error types for weft.
// Errors carry the operation that failed and a Kind that callers use to
// decide how a failure is surfaced to the UI.
package errors

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAmbiguous
	KindInvalid
	KindPrecondition
	KindIO
	KindNetwork
	KindConfig
	KindGit
	KindStale
	KindSibling
	KindAuth
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAmbiguous:
		return "ambiguous"
	case KindInvalid:
		return "invalid"
	case KindPrecondition:
		return "precondition failed"
	case KindIO:
		return "I/O error"
	case KindNetwork:
		return "network error"
	case KindConfig:
		return "configuration error"
	case KindGit:
		return "git error"
	case KindStale:
		return "stale working copy"
	case KindSibling:
		return "sibling operation"
	case KindAuth:
		return "authentication required"
	case KindInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for weft.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the human-readable part of the error without the Op prefix.
func (e *Error) Message() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s", e.Context, e.Err)
	}
	return e.Err.Error()
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing message of err, dropping the Op prefix of
// the outermost structured error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}

// Workspace errors
func WorkspaceLoadFailed(path string, err error) error {
	return E(Op("session.Open"), KindIO, fmt.Sprintf("cannot open workspace at %s", path), err)
}

func WorkspaceNotFound(path string) error {
	return E(Op("session.Open"), KindNotFound, fmt.Sprintf("no weft workspace found at %s", path))
}

// Revision errors
func RevisionNotFound(id string) error {
	return E(Op("session.Resolve"), KindNotFound, fmt.Sprintf("revision %s not found", id))
}

func AmbiguousRevision(id string, count int) error {
	return E(Op("session.Resolve"), KindAmbiguous, fmt.Sprintf("revision %s resolved to %d commits", id, count))
}

func ImmutableRevision(id string) error {
	return E(Op("session.CheckImmutable"), KindPrecondition, fmt.Sprintf("revision %s is immutable", id))
}

func RevsetInvalid(expr string, err error) error {
	return E(Op("revset.Parse"), KindInvalid, fmt.Sprintf("invalid revset %q", expr), err)
}

// Working copy errors
func StaleWorkingCopy(hint string) error {
	return E(Op("session.Snapshot"), KindStale, "the working copy is stale (not updated since operation was rewritten); run "+hint)
}

func SiblingOperation(opID string) error {
	return E(Op("session.Snapshot"), KindSibling, fmt.Sprintf("the repo was loaded at operation %s, which seems to be a sibling of the working copy's operation", opID))
}

func HunkMismatch(path string) error {
	return E(Op("mutations.MoveHunk"), KindPrecondition, fmt.Sprintf("hunk no longer applies to %s", path))
}

// Ref errors
func RefExists(kind, name string) error {
	return E(Op("mutations.CreateRef"), KindPrecondition, fmt.Sprintf("%s %s already exists", kind, name))
}

// Config errors
func ConfigLoadFailed(path string, err error) error {
	return E(Op("config.Load"), KindConfig, fmt.Sprintf("failed to load config from %s", path), err)
}

func ConfigSaveFailed(path string, err error) error {
	return E(Op("config.Save"), KindConfig, fmt.Sprintf("failed to save config to %s", path), err)
}

func ConfigInvalid(reason string) error {
	return E(Op("config.Validate"), KindInvalid, reason)
}

// Git errors
func GitCommandFailed(args string, err error) error {
	return E(Op("git.Run"), KindGit, fmt.Sprintf("git %s failed", args), err)
}

// CLI prerequisite errors
func CLINotFound(name string) error {
	return E(Op("cli.Check"), KindNotFound, fmt.Sprintf("required CLI tool '%s' not found in PATH", name))
}
