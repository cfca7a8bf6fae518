package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/esg-pipeline/internal/retention"
	"github.com/sells-group/esg-pipeline/internal/runlog"
	"github.com/sells-group/esg-pipeline/internal/store"
)

var (
	pruneDryRun bool
	pruneFormat string
	purgeYes    bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete records observed before 2020-01-01",
	Long: `Scans every record, then deletes those whose observed_at falls before the
retention cutoff in batches. Records with unparseable dates are kept and
logged. Nothing is deleted if the scan fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openRetentionStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := openRunLog(ctx, st)
		if err != nil {
			return err
		}

		p := newPruner(st, pruneDryRun || cfg.Retention.DryRun)
		return runRetention(ctx, cmd.OutOrStdout(), pruneFormat, loggedRetention(runs, runlog.KindPrune, p.Prune))
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every record in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes && !pruneDryRun {
			return eris.New("purge deletes every record; pass --yes to confirm or --dry-run to count")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openRetentionStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := openRunLog(ctx, st)
		if err != nil {
			return err
		}

		p := newPruner(st, pruneDryRun)
		return runRetention(ctx, cmd.OutOrStdout(), pruneFormat, loggedRetention(runs, runlog.KindPurge, p.Purge))
	},
}

func openRetentionStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("prune"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newPruner(st store.Store, dryRun bool) *retention.Pruner {
	p := retention.New(st)
	p.ChunkSize = cfg.Retention.ChunkSize
	p.PageSize = cfg.Retention.PageSize
	p.DryRun = dryRun
	return p
}

func runRetention(ctx context.Context, w io.Writer, format string, fn func(context.Context) (retention.Result, error)) error {
	res, err := fn(ctx)
	if outErr := writeOutput(w, format, res); outErr != nil && err == nil {
		err = outErr
	}
	return err
}

func init() {
	for _, c := range []*cobra.Command{pruneCmd, purgeCmd} {
		c.Flags().BoolVar(&pruneDryRun, "dry-run", false, "count eligible records without deleting")
		c.Flags().StringVar(&pruneFormat, "format", "json", "result format: json or yaml")
		rootCmd.AddCommand(c)
	}
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "confirm deleting every record")
}
