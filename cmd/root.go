package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/logger"
)

var (
	debugMode             bool
	quietMode             bool
	repoPath              string
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Browse and edit the history of a versioned workspace",
	Long: `weft opens a workspace, keeps its working copy snapshotted and runs
history edits as single operations that can be undone.

Run without a subcommand to browse the log interactively, or run
"weft serve" to drive a workspace over stdin and stdout.`,
	RunE:          runBrowse,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", true, "Enable debug logging (on by default)")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Reduce logging to info level only")
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repository", "R", ".", "Path inside the workspace to operate on")
}

func initConfig() {
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	switch {
	case quietMode:
		logger.SetDebug(false)
	case env.LogLevel != "" && env.LogLevel != "info":
		logger.SetLevel(logger.ParseLevel(env.LogLevel))
	case debugMode:
		logger.SetDebug(true)
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	defer logger.Close()
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("weft %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("weft %s\n", version)
}
