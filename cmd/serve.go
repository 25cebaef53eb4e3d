package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/weft/internal/config"
	"github.com/zhubert/weft/internal/rpc"
	"github.com/zhubert/weft/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workspace requests over stdin and stdout",
	Long: `Read one JSON request per line from stdin and write one reply per line
to stdout. Events such as progress and credential requests are written
as lines with an "event" key. Logs go to the log file, never stdout.

Set WEFT_OTEL_ENDPOINT to export traces over OTLP/HTTP.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, env.OtelEndpoint, version)
	if err != nil {
		return fmt.Errorf("error starting tracing: %w", err)
	}
	defer shutdown(context.Background())

	opts, err := workerOptions()
	if err != nil {
		return err
	}
	return rpc.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), opts).Run(ctx)
}
