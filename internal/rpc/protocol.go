package rpc

import (
	"encoding/json"

	"github.com/zhubert/weft/internal/messages"
)

// Error codes follow JSON-RPC 2.0 where one applies.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	// CodeFailed is a request the worker rejected; Kind says why.
	CodeFailed = -32000
)

// Request is one line read from the client.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers the request with the same id.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error describes a failed request.
type Error struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Event is pushed by the worker between responses.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Method parameters.

type OpenParams struct {
	Path string `json:"path"`
}

type InitParams struct {
	Path     string `json:"path"`
	Colocate bool   `json:"colocate"`
}

type CloneParams struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Colocate bool   `json:"colocate"`
}

type QueryLogParams struct {
	Revset string `json:"revset"`
}

type QueryRevisionsParams struct {
	Set messages.RevSet `json:"set"`
}

type QueryRemotesParams struct {
	TrackingBookmark string `json:"tracking_bookmark,omitempty"`
}

type SnapshotParams struct {
	UpdateStale bool `json:"update_stale,omitempty"`
}

type ReadConfigParams struct {
	Key string `json:"key"`
}

type WriteConfigParams struct {
	Scope  string   `json:"scope"`
	Key    string   `json:"key"`
	Values []string `json:"values"`
}
