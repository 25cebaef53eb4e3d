// Package worker runs one workspace session on a dedicated goroutine.
// Clients submit requests carrying reply channels; the worker handles them
// one at a time and pushes status changes to an EventSink.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/errors"
	"github.com/zhubert/weft/internal/graph"
	"github.com/zhubert/weft/internal/logger"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/mutations"
	"github.com/zhubert/weft/internal/notification"
	"github.com/zhubert/weft/internal/session"
)

// ErrStopped is returned by Submit once the worker has finished.
var ErrStopped = errors.E(errors.Op("worker.Submit"), errors.KindInternal, "worker stopped")

// Options configures a worker.
type Options struct {
	// AppConfig records recent workspaces and last queries. May be nil.
	AppConfig *config.Config
	// Executable is the binary git runs as its askpass helper.
	Executable string
	// Notify enables a desktop notification after push and fetch.
	Notify bool
}

// Worker owns at most one open WorkspaceSession.
type Worker struct {
	requests chan Request
	sink     EventSink
	opts     Options
	session  *session.WorkspaceSession
	query    *graph.QueryState
	tracer   trace.Tracer
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a worker that reports events to sink.
func New(sink EventSink, opts Options) *Worker {
	return &Worker{
		requests: make(chan Request),
		sink:     sink,
		opts:     opts,
		tracer:   otel.Tracer("github.com/zhubert/weft/internal/worker"),
		log:      logger.ComponentLogger("Worker"),
		done:     make(chan struct{}),
	}
}

// Start begins the worker's goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.run()
}

// Cancel requests the worker to stop. The request in progress finishes
// first.
func (w *Worker) Cancel() {
	if w.cancel != nil {
		w.cancel()
	}
}

// Wait blocks until the worker has finished.
func (w *Worker) Wait() {
	<-w.done
}

// Done returns true if the worker has finished.
func (w *Worker) Done() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Submit hands req to the worker. It blocks until the worker accepts it.
func (w *Worker) Submit(ctx context.Context, req Request) error {
	select {
	case w.requests <- req:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call submits the request built around a fresh reply channel and waits
// for the reply.
func Call[T any](ctx context.Context, w *Worker, build func(reply chan<- T) Request) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if err := w.Submit(ctx, build(reply)); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-w.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrStopped
		}
	}
}

func (w *Worker) run() {
	defer w.once.Do(func() { close(w.done) })
	defer w.closeSession()

	w.log.Info("worker started")
	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("worker stopping", "reason", w.ctx.Err())
			return
		case req := <-w.requests:
			w.handle(req)
		}
	}
}

func (w *Worker) handle(req Request) {
	ctx, span := w.tracer.Start(w.ctx, "worker."+req.name())
	defer span.End()
	w.log.Debug("handling request", "request", req.name())

	switch r := req.(type) {
	case OpenWorkspace:
		reply(w, r.Reply, w.openWorkspace(ctx, r.Path))
	case InitWorkspace:
		root, err := session.Init(ctx, r.Path, r.Colocate)
		reply(w, r.Reply, w.openCreated(ctx, span, r.Path, root, err))
	case CloneWorkspace:
		root, err := session.Clone(ctx, r.URL, r.Path, r.Colocate, nil)
		reply(w, r.Reply, w.openCreated(ctx, span, r.Path, root, err))
	case QueryLog:
		page, err := w.queryLog(r.Revset)
		reply(w, r.Reply, result(w, span, page, err))
	case QueryLogNextPage:
		page, err := w.queryLogNextPage()
		reply(w, r.Reply, result(w, span, page, err))
	case QueryRevisions:
		res, err := withSession(w, func(s *session.WorkspaceSession) (*messages.RevsResult, error) {
			return s.QueryRevisions(r.Set)
		})
		reply(w, r.Reply, result(w, span, res, err))
	case QueryRemotes:
		remotes, err := withSession(w, func(s *session.WorkspaceSession) ([]string, error) {
			return s.QueryRemotes(ctx, r.TrackingBookmark)
		})
		reply(w, r.Reply, result(w, span, remotes, err))
	case ExecuteSnapshot:
		status, err := w.snapshot(ctx, r.UpdateStale)
		reply(w, r.Reply, result(w, span, status, err))
	case ExecuteMutation:
		reply(w, r.Reply, w.dispatchMutation(ctx, span, r.Mutation))
	case ReadConfigArray:
		values, err := withSession(w, func(s *session.WorkspaceSession) ([]string, error) {
			return s.ReadConfigArray(r.Key)
		})
		reply(w, r.Reply, result(w, span, values, err))
	case WriteConfigArray:
		err := w.writeConfigArray(ctx, r)
		w.fail(span, err)
		reply(w, r.Reply, err)
	case EndSession:
		w.closeSession()
		reply(w, r.Reply, struct{}{})
	default:
		w.log.Error("unknown request", "type", fmt.Sprintf("%T", req))
	}
}

func reply[T any](w *Worker, ch chan<- T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	case <-w.ctx.Done():
	}
}

func result[T any](w *Worker, span trace.Span, v T, err error) Result[T] {
	w.fail(span, err)
	return Result[T]{Value: v, Err: err}
}

func (w *Worker) fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, errors.Message(err))
	w.log.Warn("request failed", "error", err)
}

func withSession[T any](w *Worker, f func(*session.WorkspaceSession) (T, error)) (T, error) {
	var zero T
	if w.session == nil {
		return zero, errors.E(errors.Op("worker"), errors.KindPrecondition, "no workspace is open")
	}
	return f(w.session)
}

func (w *Worker) emit(event string, payload any) {
	if w.sink == nil {
		return
	}
	if err := w.sink.Send(event, payload); err != nil {
		w.log.Warn("failed to send event", "event", event, "error", err)
	}
}

func (w *Worker) closeSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.log.Warn("failed to close workspace", "root", w.session.Root(), "error", err)
	}
	w.log.Info("closed workspace", "root", w.session.Root())
	w.session = nil
	w.query = nil
}

func (w *Worker) openWorkspace(ctx context.Context, path string) messages.RepoConfig {
	w.closeSession()
	s, err := session.Open(ctx, path)
	if err != nil {
		return w.loadError(path, err)
	}
	return w.install(ctx, s)
}

func (w *Worker) openCreated(ctx context.Context, span trace.Span, path, root string, err error) messages.RepoConfig {
	if err != nil {
		w.fail(span, err)
		return w.loadError(path, err)
	}
	return w.openWorkspace(ctx, root)
}

func (w *Worker) loadError(path string, err error) messages.RepoConfig {
	w.log.Error("failed to load workspace", "path", path, "error", err)
	cfg := messages.RepoConfig{
		Kind:         messages.RepoConfigLoadError,
		AbsolutePath: path,
		Message:      errors.Message(err),
	}
	w.emit(EventRepoConfig, cfg)
	return cfg
}

func (w *Worker) install(ctx context.Context, s *session.WorkspaceSession) messages.RepoConfig {
	w.session = s
	w.query = nil
	cfg, err := w.config(ctx)
	if err != nil {
		w.log.Error("failed to describe workspace", "root", s.Root(), "error", err)
		cfg = &messages.RepoConfig{Kind: messages.RepoConfigWorkerError, AbsolutePath: s.Root(), Message: errors.Message(err)}
	}
	if app := w.opts.AppConfig; app != nil {
		app.TouchWorkspace(s.Root(), s.Colocated())
		if err := app.Save(); err != nil {
			w.log.Warn("failed to save recent workspaces", "error", err)
		}
	}
	w.emit(EventRepoConfig, *cfg)
	return *cfg
}

// config describes the open session, with the last query and theme from
// the app config.
func (w *Worker) config(ctx context.Context) (*messages.RepoConfig, error) {
	cfg, err := w.session.Config(ctx)
	if err != nil {
		return nil, err
	}
	if app := w.opts.AppConfig; app != nil {
		if last := app.GetLastRevset(w.session.Root()); last != "" {
			cfg.LatestQuery = last
		}
		cfg.ThemeOverride = app.GetTheme()
	}
	return cfg, nil
}

func (w *Worker) queryLog(expr string) (messages.LogPage, error) {
	return withSession(w, func(s *session.WorkspaceSession) (messages.LogPage, error) {
		q := graph.NewQueryState(expr, s.Settings().UI.LogPageSize)
		page, err := q.NextPage(s)
		if err != nil {
			w.query = nil
			return messages.LogPage{}, err
		}
		w.query = q
		if app := w.opts.AppConfig; app != nil && app.GetLastRevset(s.Root()) != expr {
			app.SetLastRevset(s.Root(), expr)
			if err := app.Save(); err != nil {
				w.log.Warn("failed to save last query", "error", err)
			}
		}
		return page, nil
	})
}

func (w *Worker) queryLogNextPage() (messages.LogPage, error) {
	return withSession(w, func(s *session.WorkspaceSession) (messages.LogPage, error) {
		if w.query == nil {
			return messages.LogPage{}, errors.E(errors.Op("worker.QueryLogNextPage"), errors.KindPrecondition, "no log query in progress")
		}
		return w.query.NextPage(s)
	})
}

func (w *Worker) snapshot(ctx context.Context, updateStale bool) (*messages.RepoStatus, error) {
	return withSession(w, func(s *session.WorkspaceSession) (*messages.RepoStatus, error) {
		if updateStale {
			status, err := s.UpdateStale(ctx)
			if err != nil {
				return nil, err
			}
			w.emit(EventRepoStatus, *status)
			return status, nil
		}
		status, err := s.ImportAndSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		if status != nil {
			w.emit(EventRepoStatus, *status)
		}
		return status, nil
	})
}

func (w *Worker) writeConfigArray(ctx context.Context, r WriteConfigArray) error {
	_, err := withSession(w, func(s *session.WorkspaceSession) (struct{}, error) {
		if err := s.WriteConfigArray(r.Scope, r.Key, r.Values); err != nil {
			return struct{}{}, err
		}
		cfg, err := w.config(ctx)
		if err != nil {
			return struct{}{}, err
		}
		w.emit(EventRepoConfig, *cfg)
		return struct{}{}, nil
	})
	return err
}

// dispatchMutation runs m against the open session. Panics and errors
// become results; a reconfiguring or input-requiring result is also
// pushed to the sink.
func (w *Worker) dispatchMutation(ctx context.Context, span trace.Span, m mutations.Mutation) (res messages.MutationResult) {
	if m == nil {
		return messages.InternalError("no mutation given")
	}
	span.SetAttributes(attribute.String("weft.mutation", m.Type()))
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("mutation dispatch panicked", "type", m.Type(), "panic", r, "stack", string(debug.Stack()))
			res = messages.InternalError(fmt.Sprintf("%s failed: %v", m.Type(), r))
		}
		span.SetAttributes(attribute.String("weft.result", string(res.Kind)))
		if res.Kind == messages.ResultInternalError {
			span.SetStatus(codes.Error, res.Message)
		}
	}()

	if w.session == nil {
		return messages.PreconditionError("no workspace is open")
	}
	env := &mutations.Env{
		Progress:   func(p messages.Progress) { w.emit(EventProgress, p) },
		Executable: w.opts.Executable,
	}
	res = mutations.Run(ctx, w.session, env, m)

	switch res.Kind {
	case messages.ResultReconfigured:
		if res.NewConfig != nil {
			w.emit(EventRepoConfig, *res.NewConfig)
		}
	case messages.ResultInputRequired:
		if res.Request != nil {
			w.emit(EventInput, *res.Request)
		}
	}
	w.notifyRemote(m, res)
	return res
}

func (w *Worker) notifyRemote(m mutations.Mutation, res messages.MutationResult) {
	if !w.opts.Notify {
		return
	}
	var operation string
	switch m.(type) {
	case *mutations.GitPush:
		operation = "Push"
	case *mutations.GitFetch:
		operation = "Fetch"
	default:
		return
	}
	var failure string
	switch res.Kind {
	case messages.ResultInputRequired:
		return
	case messages.ResultPreconditionError, messages.ResultInternalError:
		failure = res.Message
	}
	_ = notification.RemoteOperationFinished(operation, w.session.Root(), failure)
}
