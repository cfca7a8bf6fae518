package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/store"
	"github.com/sells-group/esg-pipeline/internal/transform"
)

// DefaultChunkSize is the maximum number of records per BatchUpsert call.
const DefaultChunkSize = 500

// Writer upserts built records in chunks, skipping rows that failed to build.
type Writer struct {
	Store     store.Store
	ChunkSize int
}

// WriteStats counts the outcome of one Write.
type WriteStats struct {
	Written    int `json:"written" yaml:"written"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Duplicates int `json:"duplicates" yaml:"duplicates"`
}

// NewWriter returns a Writer over st. A non-positive chunkSize uses DefaultChunkSize.
func NewWriter(st store.Store, chunkSize int) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{Store: st, ChunkSize: chunkSize}
}

// Write skips errored results, logging the offending row, and upserts the
// rest. A failed chunk stops the write; chunks already written stay written.
func (w *Writer) Write(ctx context.Context, results []transform.Result) (WriteStats, error) {
	log := zap.L().With(zap.String("component", "ingest.writer"))
	var stats WriteStats

	records := make([]model.Record, 0, len(results))
	for _, res := range results {
		err := res.Err
		if err == nil {
			err = res.Record.Validate()
		}
		if err != nil {
			stats.Skipped++
			log.Warn("skipping row", zap.Any("row", res.Row), zap.Error(err))
			continue
		}
		records = append(records, res.Record)
	}

	size := w.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	for start := 0; start < len(records); start += size {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		chunk := records[start:min(start+size, len(records))]
		deduped := dedupeByKey(chunk)
		if _, err := w.Store.BatchUpsert(ctx, deduped); err != nil {
			return stats, fmt.Errorf("ingest: upsert chunk at %d: %w: %w", start, ErrStoreUnavailable, err)
		}
		stats.Written += len(deduped)
		stats.Duplicates += len(chunk) - len(deduped)
	}
	return stats, nil
}

// dedupeByKey keeps the last record for each key, in first-seen order.
func dedupeByKey(records []model.Record) []model.Record {
	idx := make(map[model.Key]int, len(records))
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if i, ok := idx[r.Key()]; ok {
			out[i] = r
			continue
		}
		idx[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}
