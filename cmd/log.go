package cmd

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/ui"
	"github.com/zhubert/weft/internal/worker"
)

var (
	logRevset      string
	logLimit       int
	logInteractive bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the revision graph",
	Long: `Show the revisions selected by a revset as a graph.

Without -r the last query run in this workspace is used, falling back to
the revsets.log setting.`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVarP(&logRevset, "revisions", "r", "", "Revset to show")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Show at most this many revisions (0 for all)")
	logCmd.Flags().BoolVarP(&logInteractive, "interactive", "i", false, "Browse the log interactively")
	rootCmd.AddCommand(logCmd)
}

// workerSource feeds the log browser from a worker.
type workerSource struct {
	ctx context.Context
	w   *worker.Worker
}

func (s workerSource) NextPage() (messages.LogPage, error) {
	return query(s.ctx, s.w, func(reply chan<- worker.Result[messages.LogPage]) worker.Request {
		return worker.QueryLogNextPage{Reply: reply}
	})
}

func (s workerSource) Show(rev messages.RevID) (*messages.RevsResult, error) {
	return query(s.ctx, s.w, func(reply chan<- worker.Result[*messages.RevsResult]) worker.Request {
		return worker.QueryRevisions{Set: messages.SingleRevSet(rev), Reply: reply}
	})
}

func startLog(ctx context.Context, ws *workspace, expr string) (messages.LogPage, error) {
	if expr == "" {
		expr = ws.config.LatestQuery
	}
	if expr == "" {
		expr = ws.config.DefaultQuery
	}
	return query(ctx, ws.w, func(reply chan<- worker.Result[messages.LogPage]) worker.Request {
		return worker.QueryLog{Revset: expr, Reply: reply}
	})
}

func runLog(cmd *cobra.Command, args []string) error {
	if logInteractive {
		return browse(cmd.Context(), logRevset)
	}
	ctx := cmd.Context()
	ws, err := openWorkspace(ctx, repoPath)
	if err != nil {
		return err
	}
	defer ws.close()

	page, err := startLog(ctx, ws, logRevset)
	if err != nil {
		return err
	}
	graph := ui.GraphView{MarkUnpushed: ws.config.MarkUnpushedBookmarks}
	graph.Append(page)
	source := workerSource{ctx: ctx, w: ws.w}
	for graph.HasMore() && (logLimit == 0 || graph.Len() < logLimit) {
		page, err := source.NextPage()
		if err != nil {
			return err
		}
		graph.Append(page)
	}

	lines := graph.Render(0)
	if logLimit > 0 && len(lines) > logLimit {
		lines = lines[:logLimit]
	}
	out := cmd.OutOrStdout()
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

func runBrowse(cmd *cobra.Command, args []string) error {
	return browse(cmd.Context(), "")
}

func browse(ctx context.Context, expr string) error {
	ws, err := openWorkspace(ctx, repoPath)
	if err != nil {
		return err
	}
	defer ws.close()

	page, err := startLog(ctx, ws, expr)
	if err != nil {
		return err
	}
	b := ui.NewBrowser(page, workerSource{ctx: ctx, w: ws.w}, ws.config.MarkUnpushedBookmarks)
	if _, err := tea.NewProgram(b).Run(); err != nil {
		return fmt.Errorf("error running log browser: %w", err)
	}
	return nil
}
