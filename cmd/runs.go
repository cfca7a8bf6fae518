package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/ingest"
	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/retention"
	"github.com/sells-group/esg-pipeline/internal/runlog"
	"github.com/sells-group/esg-pipeline/internal/store"
)

var (
	runsLimit  int
	runsFormat string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingest and retention runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openRetentionStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := openRunLog(cmd.Context(), st)
		if err != nil {
			return err
		}
		if runs == nil {
			return eris.New("run log requires store.driver=postgres")
		}

		entries, err := runs.List(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), runsFormat, entries)
	},
}

// openRunLog returns a migrated run log when st is Postgres-backed, nil otherwise.
func openRunLog(ctx context.Context, st store.Store) (*runlog.Log, error) {
	pg, ok := st.(*store.PostgresStore)
	if !ok {
		return nil, nil
	}
	runs := runlog.New(pg.Pool())
	if err := runs.Migrate(ctx); err != nil {
		return nil, err
	}
	return runs, nil
}

// Run executes one ingestion invocation and records it in the run log.
func (pe *pipelineEnv) Run(ctx context.Context, ref model.SourceRef) ingest.Report {
	id, logged := startRun(ctx, pe.Runs, runlog.KindIngest, ref.String())
	rep := pe.Orchestrator.Run(ctx, ref)
	if !logged {
		return rep
	}

	if rep.StatusCode != http.StatusOK {
		failRun(ctx, pe.Runs, id, rep.ErrorMessage)
		return rep
	}
	meta := map[string]any{
		"run_id":     rep.RunID,
		"windows":    rep.Windows,
		"skipped":    rep.Skipped,
		"duplicates": rep.Duplicates,
		"invalid":    rep.Invalid,
		"expired":    rep.Expired,
		"continued":  rep.Continued,
	}
	if err := pe.Runs.Complete(ctx, id, int64(rep.ProcessedCount), meta); err != nil {
		zap.L().Warn("run log: complete failed", zap.Int64("run", id), zap.Error(err))
	}
	return rep
}

// loggedRetention wraps a prune or purge with run log bookkeeping.
func loggedRetention(runs *runlog.Log, kind string, fn func(context.Context) (retention.Result, error)) func(context.Context) (retention.Result, error) {
	return func(ctx context.Context) (retention.Result, error) {
		id, logged := startRun(ctx, runs, kind, "")
		res, err := fn(ctx)
		if !logged {
			return res, err
		}
		if err != nil {
			failRun(ctx, runs, id, err.Error())
			return res, err
		}
		meta := map[string]any{
			"scanned":     res.Scanned,
			"eligible":    res.Eligible,
			"unparseable": res.Unparseable,
			"dry_run":     res.DryRun,
		}
		if cerr := runs.Complete(ctx, id, int64(res.Deleted), meta); cerr != nil {
			zap.L().Warn("run log: complete failed", zap.Int64("run", id), zap.Error(cerr))
		}
		return res, nil
	}
}

// Run log failures never fail the run itself.
func startRun(ctx context.Context, runs *runlog.Log, kind, source string) (int64, bool) {
	if runs == nil {
		return 0, false
	}
	id, err := runs.Start(ctx, kind, source)
	if err != nil {
		zap.L().Warn("run log: start failed", zap.String("kind", kind), zap.Error(err))
		return 0, false
	}
	return id, true
}

func failRun(ctx context.Context, runs *runlog.Log, id int64, msg string) {
	if err := runs.Fail(ctx, id, msg); err != nil {
		zap.L().Warn("run log: fail failed", zap.Int64("run", id), zap.Error(err))
	}
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "number of runs to list")
	runsCmd.Flags().StringVar(&runsFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(runsCmd)
}
