// Package store persists ESG records keyed by (entity_id, observed_at).
package store

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "esg_records"

// Page is one slice of a full-table scan. An empty Cursor means the scan is complete.
type Page struct {
	Records []model.Record
	Cursor  string
}

// Store defines the persistence interface for ESG records.
type Store interface {
	// BatchUpsert inserts or fully replaces each record by key.
	BatchUpsert(ctx context.Context, records []model.Record) (int, error)

	// ScanPage returns up to limit records ordered by key, starting after cursor.
	ScanPage(ctx context.Context, cursor string, limit int) (Page, error)

	// BatchDelete removes the given keys; missing keys are ignored.
	BatchDelete(ctx context.Context, keys []model.Key) (int, error)

	// History returns every record for an entity, newest observation first.
	History(ctx context.Context, entityID string) ([]model.Record, error)

	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// EncodeCursor renders the last key of a page as an opaque cursor.
func EncodeCursor(k model.Key) string {
	return base64.RawURLEncoding.EncodeToString([]byte(k.EntityID + "\x00" + k.ObservedAt))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (model.Key, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return model.Key{}, eris.Wrap(err, "store: decode cursor")
	}
	id, observed, ok := strings.Cut(string(raw), "\x00")
	if !ok {
		return model.Key{}, eris.Errorf("store: malformed cursor %q", cursor)
	}
	return model.Key{EntityID: id, ObservedAt: observed}, nil
}

// nextCursor returns the cursor for the page after recs, or "" when the
// page came back short and the scan is done.
func nextCursor(recs []model.Record, limit int) string {
	if len(recs) == 0 || len(recs) < limit {
		return ""
	}
	return EncodeCursor(recs[len(recs)-1].Key())
}
