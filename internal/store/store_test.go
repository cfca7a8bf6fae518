package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-pipeline/internal/model"
)

func TestCursor_RoundTrip(t *testing.T) {
	k := model.Key{EntityID: "brk.b", ObservedAt: "2021-07-01"}
	got, err := DecodeCursor(EncodeCursor(k))
	require.NoError(t, err)
	assert.Equal(t, k, got)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	_, err := DecodeCursor("!!not-base64!!")
	require.Error(t, err)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("no-separator")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed cursor")
}

func TestNextCursor(t *testing.T) {
	recs := []model.Record{{EntityID: "a", ObservedAt: "2021-01-01"}, {EntityID: "b", ObservedAt: "2021-01-01"}}
	assert.Empty(t, nextCursor(nil, 2))
	assert.Empty(t, nextCursor(recs, 3))
	assert.Equal(t, EncodeCursor(recs[1].Key()), nextCursor(recs, 2))
}

func seedRecords(n int) []model.Record {
	recs := make([]model.Record, n)
	for i := range recs {
		recs[i] = model.Record{
			EntityID:        fmt.Sprintf("t%03d", i),
			ObservedAt:      "2021-06-30",
			LastProcessedAt: "2025-03-14T09:30:00Z",
			TotalScore:      i % 50,
			Rating:          model.RatingC,
		}
	}
	return recs
}

// scanAll drains a store page by page, as the pruner does.
func scanAll(t *testing.T, s Store, limit int) []model.Record {
	t.Helper()
	var (
		all    []model.Record
		cursor string
	)
	for {
		page, err := s.ScanPage(context.Background(), cursor, limit)
		require.NoError(t, err)
		all = append(all, page.Records...)
		if page.Cursor == "" {
			return all
		}
		cursor = page.Cursor
	}
}

func TestMemoryStore_ScanAllPages(t *testing.T) {
	m := NewMemory()
	_, err := m.BatchUpsert(context.Background(), seedRecords(25))
	require.NoError(t, err)

	all := scanAll(t, m, 10)
	require.Len(t, all, 25)
	assert.Equal(t, "t000", all[0].EntityID)
	assert.Equal(t, "t024", all[24].EntityID)
}

func TestMemoryStore_UpsertReplaces(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	r := model.Record{EntityID: "aapl", ObservedAt: "2024-01-11", TotalScore: 12, Rating: model.RatingB}
	_, err := m.BatchUpsert(ctx, []model.Record{r})
	require.NoError(t, err)

	r.TotalScore = 31
	r.Rating = model.RatingD
	_, err = m.BatchUpsert(ctx, []model.Record{r})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Len())
	got, ok := m.Get(r.Key())
	require.True(t, ok)
	assert.Equal(t, 31, got.TotalScore)
	assert.Equal(t, []int{1, 1}, m.UpsertSizes)
}

func TestMemoryStore_DeleteAndHistory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.BatchUpsert(ctx, []model.Record{
		{EntityID: "msft", ObservedAt: "2019-05-01"},
		{EntityID: "msft", ObservedAt: "2023-05-01"},
		{EntityID: "msft", ObservedAt: "2021-05-01"},
		{EntityID: "goog", ObservedAt: "2021-05-01"},
	})
	require.NoError(t, err)

	hist, err := m.History(ctx, "msft")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "2023-05-01", hist[0].ObservedAt)
	assert.Equal(t, "2019-05-01", hist[2].ObservedAt)

	n, err := m.BatchDelete(ctx, []model.Key{
		{EntityID: "msft", ObservedAt: "2019-05-01"},
		{EntityID: "msft", ObservedAt: "1999-01-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, m.Len())
}

func TestMemoryStore_InjectedErrors(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.ScanErr = assert.AnError
	_, err := m.ScanPage(ctx, "", 10)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = NewMemory().ScanPage(ctx, "", 0)
	assert.Error(t, err)
}

func TestMemoryStore_ScanErrOnPage(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.BatchUpsert(ctx, seedRecords(5))
	require.NoError(t, err)
	m.ScanErr = assert.AnError
	m.ScanErrPage = 2

	page, err := m.ScanPage(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)

	_, err = m.ScanPage(ctx, page.Cursor, 2)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = m.ScanPage(ctx, page.Cursor, 2)
	assert.NoError(t, err)
	assert.Equal(t, 3, m.ScanCalls)
}
