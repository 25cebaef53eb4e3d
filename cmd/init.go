package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/worker"
)

var colocate bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a workspace",
	Long: `Create a workspace in path, or the current directory. With --colocate
the workspace shares a .git directory that git tools can use directly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var cloneCmd = &cobra.Command{
	Use:   "clone <url> <path>",
	Short: "Clone a git repository into a new workspace",
	Args:  cobra.ExactArgs(2),
	RunE:  runClone,
}

func init() {
	initCmd.Flags().BoolVar(&colocate, "colocate", false, "Share the workspace's .git directory with git")
	cloneCmd.Flags().BoolVar(&colocate, "colocate", false, "Share the workspace's .git directory with git")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cloneCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	return createWorkspace(cmd, "Initialized", func(reply chan<- messages.RepoConfig) worker.Request {
		return worker.InitWorkspace{Path: path, Colocate: colocate, Reply: reply}
	})
}

func runClone(cmd *cobra.Command, args []string) error {
	return createWorkspace(cmd, "Cloned", func(reply chan<- messages.RepoConfig) worker.Request {
		return worker.CloneWorkspace{URL: args[0], Path: args[1], Colocate: colocate, Reply: reply}
	})
}

func createWorkspace(cmd *cobra.Command, verb string, build func(chan<- messages.RepoConfig) worker.Request) error {
	ctx := cmd.Context()
	w, _, err := startWorker(ctx)
	if err != nil {
		return err
	}
	defer stopWorker(w)

	cfg, err := worker.Call(ctx, w, build)
	if err != nil {
		return err
	}
	if err := repoConfigError(cfg); err != nil {
		return err
	}
	kind := "workspace"
	if cfg.Colocated {
		kind = "colocated workspace"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s at %s\n", verb, kind, cfg.AbsolutePath)
	return nil
}
