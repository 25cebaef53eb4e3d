package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/worker"
)

var updateStale bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Record changes made in the working copy",
	Long: `Import refs changed by git and record files changed on disk as a new
working-copy commit. With --update-stale a working copy left behind by
another process is first rewritten from its commit.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&updateStale, "update-stale", false, "Update a stale working copy before snapshotting")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := openWorkspace(ctx, repoPath)
	if err != nil {
		return err
	}
	defer ws.close()

	status, err := query(ctx, ws.w, func(reply chan<- worker.Result[*messages.RepoStatus]) worker.Request {
		return worker.ExecuteSnapshot{UpdateStale: updateStale, Reply: reply}
	})
	if err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), status)
	return nil
}
