package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/engine"
	"github.com/zhubert/weft/internal/logger"
)

var skipConfirm bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Forget missing workspaces and remove log files",
	Long: `Removes workspaces that no longer exist on disk from the recent list
and deletes weft's log files from the temp directory.

It will prompt for confirmation before proceeding unless the --yes flag is used.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	return runCleanWithReader(cmd.InOrStdin(), cmd.OutOrStdout())
}

// missingWorkspaces returns the recent workspaces whose metadata is gone.
func missingWorkspaces(cfg *config.Config) []string {
	var missing []string
	for _, ws := range cfg.GetWorkspaces() {
		if _, err := os.Stat(filepath.Join(ws.Root, engine.MetaDir)); err != nil {
			missing = append(missing, ws.Root)
		}
	}
	return missing
}

// runCleanWithReader allows injecting a reader for testing
func runCleanWithReader(input io.Reader, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	missing := missingWorkspaces(cfg)
	logs, err := logger.LogFiles(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error finding log files: %v\n", err)
	}

	if len(missing) == 0 && len(logs) == 0 {
		fmt.Fprintln(out, "Nothing to clean.")
		return nil
	}

	fmt.Fprintln(out, "This will clean:")
	if len(missing) > 0 {
		fmt.Fprintf(out, "  - %d missing workspace(s)\n", len(missing))
		for _, root := range missing {
			fmt.Fprintf(out, "      %s\n", root)
		}
	}
	if len(logs) > 0 {
		fmt.Fprintf(out, "  - %d log file(s) in %s\n", len(logs), os.TempDir())
	}

	if !skipConfirm {
		if !confirm(input, out, "Continue?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	for _, root := range missing {
		cfg.RemoveWorkspace(root)
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	logsCleared, err := logger.ClearLogs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error clearing logs: %v\n", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Cleaned:")
	if len(missing) > 0 {
		fmt.Fprintf(out, "  - %d workspace(s) forgotten\n", len(missing))
	}
	if logsCleared > 0 {
		fmt.Fprintf(out, "  - %d log file(s) removed\n", logsCleared)
	}
	return nil
}

// confirm prompts the user for y/n confirmation
func confirm(input io.Reader, out io.Writer, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
