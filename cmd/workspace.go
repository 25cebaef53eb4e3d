package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/ui"
	"github.com/zhubert/weft/internal/worker"
)

// workerOptions builds the options shared by every command that starts a
// worker.
func workerOptions() (worker.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return worker.Options{}, fmt.Errorf("error loading config: %w", err)
	}
	executable, err := os.Executable()
	if err != nil {
		return worker.Options{}, fmt.Errorf("error locating executable: %w", err)
	}
	ui.SetThemeByName(cfg.GetTheme())
	return worker.Options{
		AppConfig:  cfg,
		Executable: executable,
		Notify:     cfg.GetNotificationsEnabled(),
	}, nil
}

// startWorker starts a worker whose events are only recorded.
func startWorker(ctx context.Context) (*worker.Worker, *worker.RecordingSink, error) {
	opts, err := workerOptions()
	if err != nil {
		return nil, nil, err
	}
	sink := &worker.RecordingSink{}
	w := worker.New(sink, opts)
	w.Start(ctx)
	return w, sink, nil
}

func stopWorker(w *worker.Worker) {
	w.Cancel()
	w.Wait()
}

// workspace is an open workspace served by a worker.
type workspace struct {
	w      *worker.Worker
	sink   *worker.RecordingSink
	config messages.RepoConfig
}

func (ws *workspace) close() {
	stopWorker(ws.w)
}

// openWorkspace starts a worker and opens the workspace containing path.
func openWorkspace(ctx context.Context, path string) (*workspace, error) {
	w, sink, err := startWorker(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := worker.Call(ctx, w, func(reply chan<- messages.RepoConfig) worker.Request {
		return worker.OpenWorkspace{Path: path, Reply: reply}
	})
	if err == nil {
		err = repoConfigError(cfg)
	}
	if err != nil {
		stopWorker(w)
		return nil, err
	}
	ui.SetThemeByName(cfg.ThemeOverride)
	return &workspace{w: w, sink: sink, config: cfg}, nil
}

func repoConfigError(cfg messages.RepoConfig) error {
	switch cfg.Kind {
	case messages.RepoConfigLoadError:
		return fmt.Errorf("cannot open workspace at %s: %s", cfg.AbsolutePath, cfg.Message)
	case messages.RepoConfigWorkerError:
		return fmt.Errorf("worker error: %s", cfg.Message)
	}
	return nil
}

// query submits a request answered with a Result and unwraps it.
func query[T any](ctx context.Context, w *worker.Worker, build func(chan<- worker.Result[T]) worker.Request) (T, error) {
	res, err := worker.Call(ctx, w, build)
	if err != nil {
		return res.Value, err
	}
	return res.Value, res.Err
}

func printStatus(out io.Writer, status *messages.RepoStatus) {
	if status == nil {
		fmt.Fprintln(out, "Nothing changed.")
		return
	}
	fmt.Fprintf(out, "Working copy now at %s (operation %s: %s)\n",
		status.WorkingCopy.Hex[:min(len(status.WorkingCopy.Hex), ui.IDLength)],
		status.OperationID[:min(len(status.OperationID), 12)],
		status.OperationDescription)
}
