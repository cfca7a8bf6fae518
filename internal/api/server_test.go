package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-pipeline/internal/ingest"
	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/store"
)

type fakeIngester struct {
	refs []model.SourceRef
	rep  ingest.Report
}

func (f *fakeIngester) Run(_ context.Context, ref model.SourceRef) ingest.Report {
	f.refs = append(f.refs, ref)
	rep := f.rep
	rep.Source = ref
	return rep
}

func newTestServer(t *testing.T, ing Ingester) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	m := store.NewMemory()
	_, err := m.BatchUpsert(context.Background(), []model.Record{
		{EntityID: "dis", ObservedAt: "2023-06-30", TotalScore: 18, Rating: model.RatingB},
		{EntityID: "dis", ObservedAt: "2024-06-30", TotalScore: 22, Rating: model.RatingC},
		{EntityID: "aapl", ObservedAt: "2024-06-30", TotalScore: 12, Rating: model.RatingB},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(New(m, ing, Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv, m
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHistory_NewestFirst(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/esg/DIS")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body historyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "DIS", body.Ticker)
	require.Len(t, body.HistoricalRatings, 2)
	assert.Equal(t, "2024-06-30", body.HistoricalRatings[0].ObservedAt)
	assert.Equal(t, model.RatingC, body.HistoricalRatings[0].Rating)
}

func TestHistory_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/esg/zzzz")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Message, "zzzz")
}

func TestHistory_StoreError(t *testing.T) {
	m := &failingStore{MemoryStore: store.NewMemory()}
	srv := httptest.NewServer(New(m, nil, Options{}).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/esg/dis")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) History(context.Context, string) ([]model.Record, error) {
	return nil, assert.AnError
}

func (f *failingStore) ScanPage(context.Context, string, int) (store.Page, error) {
	return store.Page{}, assert.AnError
}

func getAll(t *testing.T, url string) (int, allResponse) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var body allResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestAll(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, body := getAll(t, srv.URL+"/api/all")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "All ESG data retrieved successfully", body.Message)
	require.Len(t, body.Data, 3)
	assert.Equal(t, "aapl", body.Data[0].EntityID)
	assert.Empty(t, body.Cursor)
}

func TestAll_SpansStorePages(t *testing.T) {
	m := store.NewMemory()
	recs := make([]model.Record, allPageSize+5)
	for i := range recs {
		recs[i] = model.Record{EntityID: fmt.Sprintf("t%05d", i), ObservedAt: "2024-06-30"}
	}
	_, err := m.BatchUpsert(context.Background(), recs)
	require.NoError(t, err)
	srv := httptest.NewServer(New(m, nil, Options{}).Handler())
	t.Cleanup(srv.Close)

	status, body := getAll(t, srv.URL+"/api/all")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body.Data, allPageSize+5)
	assert.Equal(t, 2, m.ScanCalls)
}

func TestAll_Paged(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, first := getAll(t, srv.URL+"/api/all?limit=2")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, first.Data, 2)
	require.NotEmpty(t, first.Cursor)

	status, second := getAll(t, srv.URL+"/api/all?limit=2&cursor="+first.Cursor)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, second.Data, 1)
	assert.Empty(t, second.Cursor)
	assert.Equal(t, "dis", second.Data[0].EntityID)
	assert.Equal(t, "2024-06-30", second.Data[0].ObservedAt)
}

func TestAll_NotFound(t *testing.T) {
	srv := httptest.NewServer(New(store.NewMemory(), nil, Options{}).Handler())
	t.Cleanup(srv.Close)

	status, body := getAll(t, srv.URL+"/api/all")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No ESG data found", body.Message)
	assert.Empty(t, body.Data)
}

func TestAll_BadParams(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, _ := getAll(t, srv.URL+"/api/all?limit=0")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = getAll(t, srv.URL+"/api/all?cursor=%25%25")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAll_StoreError(t *testing.T) {
	m := &failingStore{MemoryStore: store.NewMemory()}
	srv := httptest.NewServer(New(m, nil, Options{}).Handler())
	t.Cleanup(srv.Close)

	status, body := getAll(t, srv.URL+"/api/all")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Error fetching ESG data", body.Message)
}

func TestInvoke(t *testing.T) {
	ing := &fakeIngester{rep: ingest.Report{StatusCode: http.StatusOK, ProcessedCount: 42}}
	srv, _ := newTestServer(t, ing)

	event := `{"Records":[{"s3":{"bucket":{"name":"drops"},"object":{"key":"esg.csv"}}}]}`
	resp, err := http.Post(srv.URL+"/invoke", "application/json", strings.NewReader(event))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep ingest.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Equal(t, 42, rep.ProcessedCount)
	assert.Equal(t, []model.SourceRef{{Bucket: "drops", Key: "esg.csv"}}, ing.refs)
}

func TestInvoke_FailureStatusPassesThrough(t *testing.T) {
	ing := &fakeIngester{rep: ingest.Report{StatusCode: http.StatusInternalServerError, ErrorMessage: "boom"}}
	srv, _ := newTestServer(t, ing)

	resp, err := http.Post(srv.URL+"/invoke", "application/json", strings.NewReader(`{"bucket":"b","key":"k"}`))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestInvoke_BadEvent(t *testing.T) {
	ing := &fakeIngester{}
	srv, _ := newTestServer(t, ing)

	resp, err := http.Post(srv.URL+"/invoke", "application/json", strings.NewReader(`{"rawPath":"/api/predict"}`))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, ing.refs)
}

func TestInvoke_NotMountedWithoutIngester(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/invoke", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
