package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/esg-pipeline/internal/trigger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume ingestion continuations from NATS",
	Long:  "Queue-subscribes to nats.subject and runs one ingestion invocation per message until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		return trigger.Consume(ctx, env.NATS, cfg.NATS.Subject, cfg.NATS.Queue, continuationHandler(env))
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
