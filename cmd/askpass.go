package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/askpass"
	"github.com/zhubert/weft/internal/logger"
)

var askpassCmd = &cobra.Command{
	Use:    "askpass <prompt>",
	Short:  "Answer a git credential prompt (internal use)",
	Hidden: true,
	RunE:   runAskpass,
}

func init() {
	rootCmd.AddCommand(askpassCmd)
}

func runAskpass(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logger.AskpassLogPath(os.Getpid())); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	log := logger.ComponentLogger("Askpass")

	socket := os.Getenv(askpass.SocketEnv)
	if socket == "" {
		return fmt.Errorf("%s is not set", askpass.SocketEnv)
	}
	prompt := strings.Join(args, " ")
	answer, err := askpass.Ask(socket, prompt)
	if err != nil {
		log.Warn("no answer", "prompt", prompt, "error", err)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
