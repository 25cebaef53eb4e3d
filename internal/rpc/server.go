// Package rpc binds a worker to newline-delimited JSON on a pair of
// streams. Each input line is a request with an id and each reply is one
// output line; worker events are written as lines with an "event" key.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/logger"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/mutations"
	"github.com/zhubert/weft/internal/worker"
)

// maxLine bounds one request line. Longer lines are discarded as they are
// read and answered with a parse error.
var maxLine = 16 << 20

// Server reads requests from one stream and writes replies to another.
type Server struct {
	reader *bufio.Reader
	writer io.Writer
	opts   worker.Options
	worker *worker.Worker
	mu     sync.Mutex
	log    *slog.Logger
}

// NewServer creates a server over r and w.
func NewServer(r io.Reader, w io.Writer, opts worker.Options) *Server {
	return &Server{
		reader: bufio.NewReaderSize(r, 64<<10),
		writer: w,
		opts:   opts,
		log:    logger.ComponentLogger("RPC"),
	}
}

// Send writes a worker event. It implements worker.EventSink.
func (s *Server) Send(event string, payload any) error {
	return s.write(Event{Event: event, Payload: payload})
}

// Run serves requests until the input ends or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.worker = worker.New(s, s.opts)
	s.worker.Start(ctx)
	defer func() {
		s.worker.Cancel()
		s.worker.Wait()
	}()

	s.log.Info("server starting")
	for {
		line, tooLong, err := s.readLine()
		if err != nil && err != io.EOF {
			s.log.Error("read error", "error", err)
			return err
		}
		if tooLong {
			s.sendError(nil, CodeParseError, "request too large", "")
		} else if trimmed := strings.TrimSpace(line); trimmed != "" {
			s.handleLine(ctx, trimmed)
		}
		if err == io.EOF {
			s.log.Info("EOF received, shutting down")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// readLine reads up to the next newline, keeping at most maxLine bytes.
func (s *Server) readLine() (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		frag, err := s.reader.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(frag) > maxLine {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return string(buf), tooLong, err
	}
}

func (s *Server) handleLine(ctx context.Context, line string) {
	s.log.Debug("received request", "line", line)
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.log.Error("JSON parse error", "error", err)
		s.sendError(nil, CodeParseError, "Parse error", "")
		return
	}
	s.handleRequest(ctx, &req)
}

func (s *Server) handleRequest(ctx context.Context, req *Request) {
	switch req.Method {
	case "open_workspace":
		var p OpenParams
		if s.decode(req, &p) {
			call(ctx, s, req.ID, func(r chan<- messages.RepoConfig) worker.Request {
				return worker.OpenWorkspace{Path: p.Path, Reply: r}
			})
		}
	case "init_workspace":
		var p InitParams
		if s.decode(req, &p) {
			call(ctx, s, req.ID, func(r chan<- messages.RepoConfig) worker.Request {
				return worker.InitWorkspace{Path: p.Path, Colocate: p.Colocate, Reply: r}
			})
		}
	case "clone_workspace":
		var p CloneParams
		if s.decode(req, &p) {
			call(ctx, s, req.ID, func(r chan<- messages.RepoConfig) worker.Request {
				return worker.CloneWorkspace{URL: p.URL, Path: p.Path, Colocate: p.Colocate, Reply: r}
			})
		}
	case "query_log":
		var p QueryLogParams
		if s.decode(req, &p) {
			callResult(ctx, s, req.ID, func(r chan<- worker.Result[messages.LogPage]) worker.Request {
				return worker.QueryLog{Revset: p.Revset, Reply: r}
			})
		}
	case "query_log_next_page":
		callResult(ctx, s, req.ID, func(r chan<- worker.Result[messages.LogPage]) worker.Request {
			return worker.QueryLogNextPage{Reply: r}
		})
	case "query_revisions":
		var p QueryRevisionsParams
		if s.decode(req, &p) {
			callResult(ctx, s, req.ID, func(r chan<- worker.Result[*messages.RevsResult]) worker.Request {
				return worker.QueryRevisions{Set: p.Set, Reply: r}
			})
		}
	case "query_remotes":
		var p QueryRemotesParams
		if s.decode(req, &p) {
			callResult(ctx, s, req.ID, func(r chan<- worker.Result[[]string]) worker.Request {
				return worker.QueryRemotes{TrackingBookmark: p.TrackingBookmark, Reply: r}
			})
		}
	case "execute_snapshot":
		var p SnapshotParams
		if s.decode(req, &p) {
			callResult(ctx, s, req.ID, func(r chan<- worker.Result[*messages.RepoStatus]) worker.Request {
				return worker.ExecuteSnapshot{UpdateStale: p.UpdateStale, Reply: r}
			})
		}
	case "execute_mutation":
		m, err := mutations.Decode(req.Params)
		if err != nil {
			s.sendError(req.ID, CodeInvalidParams, errors.Message(err), errors.GetKind(err).String())
			return
		}
		call(ctx, s, req.ID, func(r chan<- messages.MutationResult) worker.Request {
			return worker.ExecuteMutation{Mutation: m, Reply: r}
		})
	case "read_config_array":
		var p ReadConfigParams
		if s.decode(req, &p) {
			callResult(ctx, s, req.ID, func(r chan<- worker.Result[[]string]) worker.Request {
				return worker.ReadConfigArray{Key: p.Key, Reply: r}
			})
		}
	case "write_config_array":
		var p WriteConfigParams
		if !s.decode(req, &p) {
			return
		}
		scope, err := config.ParseScope(p.Scope)
		if err != nil {
			s.sendError(req.ID, CodeInvalidParams, err.Error(), "")
			return
		}
		werr, err := worker.Call(ctx, s.worker, func(r chan<- error) worker.Request {
			return worker.WriteConfigArray{Scope: scope, Key: p.Key, Values: p.Values, Reply: r}
		})
		switch {
		case err != nil:
			s.sendError(req.ID, CodeInternal, err.Error(), "")
		case werr != nil:
			s.sendError(req.ID, CodeFailed, errors.Message(werr), errors.GetKind(werr).String())
		default:
			s.sendResult(req.ID, nil)
		}
	case "end_session":
		call(ctx, s, req.ID, func(r chan<- struct{}) worker.Request {
			return worker.EndSession{Reply: r}
		})
	default:
		s.log.Warn("unknown method", "method", req.Method)
		s.sendError(req.ID, CodeMethodNotFound, "Method not found", "")
	}
}

func (s *Server) decode(req *Request, v any) bool {
	if len(req.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		s.sendError(req.ID, CodeInvalidParams, "Invalid params: "+err.Error(), "")
		return false
	}
	return true
}

func call[T any](ctx context.Context, s *Server, id json.RawMessage, build func(chan<- T) worker.Request) {
	v, err := worker.Call(ctx, s.worker, build)
	if err != nil {
		s.sendError(id, CodeInternal, err.Error(), "")
		return
	}
	s.sendResult(id, v)
}

func callResult[T any](ctx context.Context, s *Server, id json.RawMessage, build func(chan<- worker.Result[T]) worker.Request) {
	res, err := worker.Call(ctx, s.worker, build)
	if err != nil {
		s.sendError(id, CodeInternal, err.Error(), "")
		return
	}
	if res.Err != nil {
		s.sendError(id, CodeFailed, errors.Message(res.Err), errors.GetKind(res.Err).String())
		return
	}
	s.sendResult(id, res.Value)
}

func (s *Server) sendResult(id json.RawMessage, result any) {
	if result == nil {
		result = struct{}{}
	}
	s.send(Response{ID: id, Result: result})
}

func (s *Server) sendError(id json.RawMessage, code int, message, kind string) {
	s.send(Response{ID: id, Error: &Error{Code: code, Kind: kind, Message: message}})
}

func (s *Server) send(resp Response) {
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	if err := s.write(resp); err != nil {
		s.log.Error("write error", "error", err)
	}
}

func (s *Server) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Debug("sending", "line", string(data))
	_, err = s.writer.Write(append(data, '\n'))
	return err
}
