// Package retention removes ESG records observed before the retention cutoff.
package retention

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/store"
	"github.com/sells-group/esg-pipeline/internal/transform"
)

// CutoffDate is the earliest observed_at kept, in the canonical date form.
const CutoffDate = "2020-01-01"

// Cutoff is CutoffDate as an instant. Records observed strictly before it are pruned.
var Cutoff = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	// DefaultChunkSize is the maximum number of keys per BatchDelete call.
	DefaultChunkSize = 25
	// DefaultPageSize is the scan page size.
	DefaultPageSize = 1000
)

// Pruner scans the whole store, then deletes the eligible keys in chunks.
type Pruner struct {
	Store     store.Store
	Cutoff    time.Time
	ChunkSize int
	PageSize  int
	DryRun    bool
}

// Result summarizes one prune or purge.
type Result struct {
	Scanned     int  `json:"scanned" yaml:"scanned"`
	Eligible    int  `json:"eligible" yaml:"eligible"`
	Deleted     int  `json:"deleted" yaml:"deleted"`
	Unparseable int  `json:"unparseable" yaml:"unparseable"`
	DryRun      bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// New returns a Pruner over st with the default cutoff and sizes.
func New(st store.Store) *Pruner {
	return &Pruner{
		Store:     st,
		Cutoff:    Cutoff,
		ChunkSize: DefaultChunkSize,
		PageSize:  DefaultPageSize,
	}
}

// Prune deletes every record whose observed_at parses to a time before the cutoff.
// Records with unparseable observed_at are logged and kept. A scan failure
// aborts before anything is deleted.
func (p *Pruner) Prune(ctx context.Context) (Result, error) {
	log := zap.L().With(zap.String("component", "retention.prune"), zap.Time("cutoff", p.cutoff()))
	return p.run(ctx, log, func(r model.Record) (bool, error) {
		t, err := transform.ParseTimestamp(r.ObservedAt)
		if err != nil {
			return false, err
		}
		return t.Before(p.cutoff()), nil
	})
}

// Purge deletes every record in the store.
func (p *Pruner) Purge(ctx context.Context) (Result, error) {
	log := zap.L().With(zap.String("component", "retention.purge"))
	return p.run(ctx, log, func(model.Record) (bool, error) { return true, nil })
}

func (p *Pruner) run(ctx context.Context, log *zap.Logger, eligible func(model.Record) (bool, error)) (Result, error) {
	start := time.Now()
	res := Result{DryRun: p.DryRun}

	var (
		keys   []model.Key
		cursor string
		pages  int
	)
	for {
		page, err := p.Store.ScanPage(ctx, cursor, p.pageSize())
		if err != nil {
			return res, eris.Wrapf(err, "retention: scan page %d", pages+1)
		}
		pages++

		for _, r := range page.Records {
			res.Scanned++
			ok, err := eligible(r)
			if err != nil {
				res.Unparseable++
				log.Warn("skipping record with unparseable observed_at",
					zap.String("key", r.Key().String()),
					zap.Error(err),
				)
				continue
			}
			if ok {
				keys = append(keys, r.Key())
			}
		}

		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	res.Eligible = len(keys)

	log.Info("scan complete",
		zap.Int("pages", pages),
		zap.Int("scanned", res.Scanned),
		zap.Int("eligible", res.Eligible),
		zap.Int("unparseable", res.Unparseable),
	)

	if p.DryRun {
		log.Info("dry run, nothing deleted", zap.Duration("elapsed", time.Since(start)))
		return res, nil
	}

	for chunk := range chunkKeys(keys, p.chunkSize()) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := p.Store.BatchDelete(ctx, chunk)
		if err != nil {
			return res, eris.Wrapf(err, "retention: delete chunk after %d deleted", res.Deleted)
		}
		res.Deleted += n
	}

	log.Info("retention complete",
		zap.Int("deleted", res.Deleted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (p *Pruner) cutoff() time.Time {
	if p.Cutoff.IsZero() {
		return Cutoff
	}
	return p.Cutoff
}

func (p *Pruner) chunkSize() int {
	if p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.ChunkSize
}

func (p *Pruner) pageSize() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return p.PageSize
}

func chunkKeys(keys []model.Key, size int) func(yield func([]model.Key) bool) {
	return func(yield func([]model.Key) bool) {
		for len(keys) > 0 {
			n := min(size, len(keys))
			if !yield(keys[:n]) {
				return
			}
			keys = keys[n:]
		}
	}
}
