package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/ingest"
	"github.com/sells-group/esg-pipeline/internal/model"
)

var (
	ingestBucket string
	ingestKey    string
	ingestOffset int
	ingestEvent  string
	ingestFormat string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one ESG file drop",
	Long: `Fetches a CSV or XLSX file drop, validates and normalizes its rows, and
upserts them into the record store. Without nats.url, continuations run in
this process until the file is done; with it, they are published for workers.`,
	Example: `  esg-pipeline ingest --bucket esg-drops --key 2025/esg_scores.csv
  esg-pipeline ingest --event notification.json --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ref, err := ingestSourceRef()
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		return runIngest(ctx, env, cmd.OutOrStdout(), ref, ingestFormat)
	},
}

// ingestSourceRef resolves the blob from --event or --bucket/--key.
func ingestSourceRef() (model.SourceRef, error) {
	if ingestEvent != "" {
		var (
			data []byte
			err  error
		)
		if ingestEvent == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(ingestEvent)
		}
		if err != nil {
			return model.SourceRef{}, eris.Wrap(err, "read event")
		}
		return ingest.ParseEvent(data)
	}
	if ingestBucket == "" || ingestKey == "" {
		return model.SourceRef{}, eris.New("either --event or both --bucket and --key are required")
	}
	return model.SourceRef{Bucket: ingestBucket, Key: ingestKey, Offset: ingestOffset}, nil
}

// runIngest runs ref and then any in-process continuations, writing one
// report per invocation.
func runIngest(ctx context.Context, env *pipelineEnv, w io.Writer, ref model.SourceRef, format string) error {
	var failed int
	handle := func(ctx context.Context, ref model.SourceRef) error {
		rep := env.Run(ctx, ref)
		if rep.StatusCode != http.StatusOK {
			failed++
		}
		return writeOutput(w, format, rep)
	}

	if err := handle(ctx, ref); err != nil {
		return err
	}
	if env.Queue != nil {
		if err := env.Queue.Drain(ctx, handle); err != nil {
			return err
		}
	}

	if failed > 0 {
		return eris.Errorf("ingest: %d invocation(s) failed", failed)
	}
	zap.L().Info("ingest finished", zap.String("source", ref.String()))
	return nil
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestBucket, "bucket", "", "bucket (directory) holding the file drop")
	f.StringVar(&ingestKey, "key", "", "object key of the file drop")
	f.IntVar(&ingestOffset, "offset", 0, "first record index to write")
	f.StringVar(&ingestEvent, "event", "", "path to a storage notification JSON payload, or - for stdin")
	f.StringVar(&ingestFormat, "format", "json", "report format: json or yaml")
	rootCmd.AddCommand(ingestCmd)
}
