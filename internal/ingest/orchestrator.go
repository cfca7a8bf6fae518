package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/fetcher"
	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/retention"
	"github.com/sells-group/esg-pipeline/internal/transform"
	"github.com/sells-group/esg-pipeline/internal/trigger"
)

// DefaultWindowSize is the number of built rows handed to the Writer at a time.
const DefaultWindowSize = 500

// Budget bounds the work of one invocation. Zero values mean unlimited.
type Budget struct {
	MaxWindows int           `json:"max_windows" yaml:"max_windows"`
	TimeLimit  time.Duration `json:"time_limit" yaml:"time_limit"`
}

// Orchestrator runs one ingestion invocation for a blob.
type Orchestrator struct {
	Source     fetcher.BlobSource
	Writer     *Writer
	Trigger    trigger.Trigger
	Validator  transform.Validator
	Budget     Budget
	WindowSize int

	// Clock returns the processing time. Defaults to time.Now.
	Clock func() time.Time
}

// Report summarizes one invocation.
type Report struct {
	RunID          string          `json:"run_id" yaml:"run_id"`
	Source         model.SourceRef `json:"source" yaml:"source"`
	StatusCode     int             `json:"status_code" yaml:"status_code"`
	ProcessedCount int             `json:"processed_count" yaml:"processed_count"`
	Rows           int             `json:"rows" yaml:"rows"`
	Invalid        int             `json:"invalid" yaml:"invalid"`
	Expired        int             `json:"expired" yaml:"expired"`
	Skipped        int             `json:"skipped" yaml:"skipped"`
	Duplicates     int             `json:"duplicates" yaml:"duplicates"`
	Substituted    int             `json:"substituted_dates" yaml:"substituted_dates"`
	Windows        int             `json:"windows" yaml:"windows"`
	Continued      bool            `json:"continued" yaml:"continued"`
	NextOffset     int             `json:"next_offset,omitempty" yaml:"next_offset,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Run fetches and decodes the blob, filters and builds its rows, writes the
// rows from ref.Offset on in windows, and hands the remainder to the Trigger
// once the budget is spent. Row problems are counted, never fatal.
func (o *Orchestrator) Run(ctx context.Context, ref model.SourceRef) Report {
	start := o.now()
	rep := Report{RunID: uuid.NewString(), Source: ref}
	log := zap.L().With(
		zap.String("component", "ingest.orchestrator"),
		zap.String("run_id", rep.RunID),
		zap.String("source", ref.String()),
	)

	// A failed invocation reports no processed count; windows already
	// written stay written and are logged.
	fail := func(err error) Report {
		log.Error("ingest failed", zap.Error(err), zap.Int("written_before_failure", rep.ProcessedCount))
		rep.StatusCode = http.StatusInternalServerError
		rep.ErrorMessage = err.Error()
		rep.ProcessedCount = 0
		return rep
	}

	if ref.Offset < 0 {
		return fail(eris.Errorf("ingest: negative offset %d", ref.Offset))
	}

	data, err := o.Source.Get(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return fail(fmt.Errorf("ingest: get %s: %w: %w", ref, ErrSourceRead, err))
	}
	rows, err := fetcher.ParseRows(ref.Key, data)
	if err != nil {
		return fail(fmt.Errorf("ingest: decode %s: %w: %w", ref, ErrSourceRead, err))
	}
	rep.Rows = len(rows)

	results := o.build(rows, &rep)
	log.Info("rows prepared",
		zap.Int("rows", rep.Rows),
		zap.Int("invalid", rep.Invalid),
		zap.Int("expired", rep.Expired),
		zap.Int("pending", max(len(results)-ref.Offset, 0)),
	)

	window := o.windowSize()
	for next := ref.Offset; next < len(results); next += window {
		if rep.Windows > 0 && o.budgetSpent(rep.Windows, start) {
			cont := model.SourceRef{Bucket: ref.Bucket, Key: ref.Key, Offset: next}
			if o.Trigger == nil {
				return fail(eris.Errorf("ingest: budget spent at offset %d with no continuation trigger", next))
			}
			if err := o.Trigger.InvokeAsync(ctx, cont); err != nil {
				return fail(eris.Wrapf(err, "ingest: schedule continuation at offset %d", next))
			}
			rep.Continued = true
			rep.NextOffset = next
			log.Info("budget spent, continuation scheduled",
				zap.Int("next_offset", next),
				zap.Int("windows", rep.Windows),
			)
			break
		}

		stats, err := o.Writer.Write(ctx, results[next:min(next+window, len(results))])
		rep.ProcessedCount += stats.Written
		rep.Skipped += stats.Skipped
		rep.Duplicates += stats.Duplicates
		if err != nil {
			if !errors.Is(err, ErrStoreUnavailable) {
				err = eris.Wrapf(err, "ingest: window at offset %d", next)
			}
			return fail(err)
		}
		rep.Windows++
		log.Debug("window written",
			zap.Int("offset", next),
			zap.Int("written", stats.Written),
			zap.Int("skipped", stats.Skipped),
		)
	}

	rep.StatusCode = http.StatusOK
	log.Info("ingest complete",
		zap.Int("processed", rep.ProcessedCount),
		zap.Int("skipped", rep.Skipped),
		zap.Bool("continued", rep.Continued),
		zap.Duration("elapsed", o.now().Sub(start)),
	)
	return rep
}

// build filters and converts rows. The output depends only on the blob, so a
// continuation can skip forward by offset after rebuilding.
func (o *Orchestrator) build(rows []model.RawRow, rep *Report) []transform.Result {
	builder := transform.NewBuilder(o.Clock)
	results := make([]transform.Result, 0, len(rows))
	for _, row := range rows {
		if !o.Validator.Valid(row) {
			rep.Invalid++
			continue
		}
		res := builder.Build(row)
		if res.OK() && res.Record.ObservedAt < retention.CutoffDate {
			rep.Expired++
			continue
		}
		if res.DateSubstituted {
			rep.Substituted++
		}
		results = append(results, res)
	}
	return results
}

func (o *Orchestrator) budgetSpent(windows int, start time.Time) bool {
	if o.Budget.MaxWindows > 0 && windows >= o.Budget.MaxWindows {
		return true
	}
	return o.Budget.TimeLimit > 0 && o.now().Sub(start) >= o.Budget.TimeLimit
}

func (o *Orchestrator) windowSize() int {
	if o.WindowSize <= 0 {
		return DefaultWindowSize
	}
	return o.WindowSize
}

func (o *Orchestrator) now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}
	return o.Clock()
}
