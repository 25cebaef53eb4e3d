package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/mutations"
	"github.com/zhubert/weft/internal/ui"
	"github.com/zhubert/weft/internal/worker"
)

var (
	pushRemote   string
	pushBookmark string
	fetchRemote  string
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push bookmarks to a git remote",
	Long: `Push a bookmark, or every bookmark that differs from the remote. The
remote defaults to the git.push-remote setting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, &mutations.GitPush{Remote: pushRemote, Bookmark: pushBookmark})
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch from git remotes",
	Long:  `Fetch from a remote, or from every remote named by the git.fetch-remotes setting.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, &mutations.GitFetch{Remote: fetchRemote})
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the last operation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, &mutations.UndoOperation{})
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushRemote, "remote", "", "Remote to push to")
	pushCmd.Flags().StringVarP(&pushBookmark, "bookmark", "b", "", "Bookmark to push")
	fetchCmd.Flags().StringVar(&fetchRemote, "remote", "", "Remote to fetch from")
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(undoCmd)
}

// promptInput is replaced in tests.
var promptInput = ui.PromptInput

// withInput returns m carrying the user's answer to a credential request.
// Only network mutations ask for input.
func withInput(m mutations.Mutation, input *messages.InputResponse) bool {
	switch m := m.(type) {
	case *mutations.GitPush:
		m.Input = input
	case *mutations.GitFetch:
		m.Input = input
	default:
		return false
	}
	return true
}

func runMutation(cmd *cobra.Command, m mutations.Mutation) error {
	ctx := cmd.Context()
	ws, err := openWorkspace(ctx, repoPath)
	if err != nil {
		return err
	}
	defer ws.close()
	return execute(ctx, ws, cmd.OutOrStdout(), m)
}

// execute runs m, prompting for credentials as often as the mutation asks.
func execute(ctx context.Context, ws *workspace, out io.Writer, m mutations.Mutation) error {
	for {
		res, err := worker.Call(ctx, ws.w, func(reply chan<- messages.MutationResult) worker.Request {
			return worker.ExecuteMutation{Mutation: m, Reply: reply}
		})
		if err != nil {
			return err
		}
		printProgress(out, ws.sink)

		switch res.Kind {
		case messages.ResultInputRequired:
			if res.Request == nil {
				return errors.New("credentials requested without a prompt")
			}
			input, err := promptInput(*res.Request)
			if err != nil {
				return fmt.Errorf("error reading credentials: %w", err)
			}
			if !withInput(m, &input) {
				return fmt.Errorf("%s cannot take credentials", m.Type())
			}
			if input.Cancel {
				return errors.New("cancelled")
			}
		case messages.ResultPreconditionError, messages.ResultInternalError:
			return errors.New(res.Message)
		case messages.ResultUnchanged:
			fmt.Fprintln(out, "Nothing changed.")
			return nil
		default:
			printStatus(out, res.NewStatus)
			return nil
		}
	}
}

// printProgress prints progress reported since the last call.
func printProgress(out io.Writer, sink *worker.RecordingSink) {
	for _, payload := range sink.Drain(worker.EventProgress) {
		if p, ok := payload.(messages.Progress); ok && p.Message != "" {
			fmt.Fprintln(out, p.Message)
		}
	}
}
