package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// MemoryStore is an in-process Store. It records the size of every batch
// call so callers can observe chunking.
type MemoryStore struct {
	mu      sync.Mutex
	records map[model.Key]model.Record

	// UpsertErr, ScanErr and DeleteErr, when set, are returned by the matching call.
	UpsertErr error
	ScanErr   error
	DeleteErr error

	// ScanErrPage limits ScanErr to the Nth ScanPage call (1-based). Zero fails every call.
	ScanErrPage int
	ScanCalls   int

	UpsertSizes []int
	DeleteSizes []int
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[model.Key]model.Record)}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func (m *MemoryStore) BatchUpsert(_ context.Context, records []model.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertSizes = append(m.UpsertSizes, len(records))
	if m.UpsertErr != nil {
		return 0, m.UpsertErr
	}
	for _, r := range records {
		m.records[r.Key()] = r
	}
	return len(records), nil
}

func (m *MemoryStore) ScanPage(_ context.Context, cursor string, limit int) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanCalls++
	if m.ScanErr != nil && (m.ScanErrPage == 0 || m.ScanErrPage == m.ScanCalls) {
		return Page{}, m.ScanErr
	}
	if limit <= 0 {
		return Page{}, eris.Errorf("memory: scan: invalid limit %d", limit)
	}

	var after *model.Key
	if cursor != "" {
		k, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		after = &k
	}

	sorted := m.sortedLocked()
	var recs []model.Record
	for _, r := range sorted {
		if after != nil && compareKeys(r.Key(), *after) <= 0 {
			continue
		}
		recs = append(recs, r)
		if len(recs) == limit {
			break
		}
	}
	return Page{Records: recs, Cursor: nextCursor(recs, limit)}, nil
}

func (m *MemoryStore) BatchDelete(_ context.Context, keys []model.Key) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteSizes = append(m.DeleteSizes, len(keys))
	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	n := 0
	for _, k := range keys {
		if _, ok := m.records[k]; ok {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) History(_ context.Context, entityID string) ([]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Record
	for _, r := range m.records {
		if r.EntityID == entityID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.Record) int {
		return strings.Compare(b.ObservedAt, a.ObservedAt)
	})
	return out, nil
}

// Get returns a stored record by key.
func (m *MemoryStore) Get(k model.Key) (model.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[k]
	return r, ok
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// All returns every stored record ordered by key.
func (m *MemoryStore) All() []model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

func (m *MemoryStore) sortedLocked() []model.Record {
	out := make([]model.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.Record) int {
		return compareKeys(a.Key(), b.Key())
	})
	return out
}

func compareKeys(a, b model.Key) int {
	if c := strings.Compare(a.EntityID, b.EntityID); c != 0 {
		return c
	}
	return strings.Compare(a.ObservedAt, b.ObservedAt)
}
