package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/ui"
	"github.com/zhubert/weft/internal/worker"
)

var showCmd = &cobra.Command{
	Use:   "show <revset>",
	Short: "Show a revision's description and changes",
	Long: `Show the header, description, parents and diff of a revision. When the
revset selects several revisions the newest is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := openWorkspace(ctx, repoPath)
	if err != nil {
		return err
	}
	defer ws.close()

	page, err := query(ctx, ws.w, func(reply chan<- worker.Result[messages.LogPage]) worker.Request {
		return worker.QueryLog{Revset: args[0], Reply: reply}
	})
	if err != nil {
		return err
	}
	if len(page.Rows) == 0 {
		return fmt.Errorf("revset %q selects no revisions", args[0])
	}
	res, err := workerSource{ctx: ctx, w: ws.w}.Show(page.Rows[0].Revision.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderRevisions(res, 0))
	return nil
}
