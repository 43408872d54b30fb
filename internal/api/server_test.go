package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
	"github.com/JakeFAU/jobkb-crawler/internal/kb"
)

type fixedIDs struct{}

func (fixedIDs) MustNewID() string { return "req-1" }

func testIndex() *kb.Index {
	var eng []crawler.JobRecord
	for i := 0; i < 18; i++ {
		eng = append(eng, crawler.JobRecord{
			JobTitle: fmt.Sprintf("Junior Engineer %d", i), Organization: "RRB", Qualification: "Diploma",
			Location: "Kolkata", Salary: "N/A", Experience: "N/A", Tags: []string{},
			AgeLimit: "N/A", Vacancies: "N/A", Category: "engineering",
		})
	}
	parts := crawler.Partitions{
		{Category: "engineering", Records: eng},
		{Category: "commerce", Records: []crawler.JobRecord{{
			JobTitle: "Accountant", Organization: "SBI", Qualification: "B.Com", Location: "Chennai",
			Salary: "N/A", Experience: "N/A", Tags: []string{}, AgeLimit: "N/A", Vacancies: "N/A",
			Category: "commerce",
		}}},
		{Category: "education", Records: []crawler.JobRecord{}},
	}
	return kb.NewIndex(crawler.KnowledgeBase{
		Metadata:   crawler.Metadata{TotalJobs: parts.Total(), ExtractionTime: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
		Categories: parts,
	}, 15)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ix := testIndex()
	return NewServer(func() (*kb.Index, error) { return ix, nil }, fixedIDs{}, zap.NewNop())
}

func do(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/readyz", nil).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-7")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "upstream-7", rec.Header().Get("X-Request-ID"))
}

func TestStats(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t), http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[statsResponse](t, rec)
	assert.Equal(t, 19, got.TotalJobs)
	assert.Equal(t, []string{"engineering", "commerce", "education"}, got.Categories)
}

func TestCategoryRecords(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/v1/categories/engineering", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[recordsResponse](t, rec)
	assert.Equal(t, "engineering", got.Category)
	assert.Len(t, got.Records, 15)

	rec = do(t, s, http.MethodGet, "/v1/categories/education", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"category":"education","records":[]}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/v1/categories/law", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/v1/search?q=sbi+clerk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[recordsResponse](t, rec)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Accountant", got.Records[0].JobTitle)

	rec = do(t, s, http.MethodGet, "/v1/search?q=engineering+jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[recordsResponse](t, rec).Records, 15)

	rec = do(t, s, http.MethodGet, "/v1/search?q=astronaut", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"query":"astronaut","records":[]}`, rec.Body.String())

	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/search", nil).Code)
}

func TestChat(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/chat", []byte(`{"message":"commerce openings"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]string](t, rec)
	assert.Contains(t, got["response"], "Here are some Commerce jobs:")
	assert.Contains(t, got["response"], "**Accountant** at _SBI_")

	rec = do(t, s, http.MethodPost, "/v1/chat", []byte(`{"message":""}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Please ask about government jobs.", decode[map[string]string](t, rec)["response"])

	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/chat", []byte(`{bad`)).Code)
}

func TestNotLoadedUntilReload(t *testing.T) {
	t.Parallel()

	var ready atomic.Bool
	load := func() (*kb.Index, error) {
		if !ready.Load() {
			return nil, fmt.Errorf("load: %w", kb.ErrEmptyKnowledgeBase)
		}
		return testIndex(), nil
	}
	s := NewServer(load, fixedIDs{}, nil)

	require.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/readyz", nil).Code)
	require.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/stats", nil).Code)
	require.Equal(t, http.StatusUnprocessableEntity, do(t, s, http.MethodPost, "/v1/reload", nil).Code)

	ready.Store(true)
	rec := do(t, s, http.MethodPost, "/v1/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_jobs":19}`, rec.Body.String())
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/stats", nil).Code)
}

func TestReloadFailureKeepsServingPreviousIndex(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	load := func() (*kb.Index, error) {
		if fail.Load() {
			return nil, errors.New("read knowledge base: permission denied")
		}
		return testIndex(), nil
	}
	s := NewServer(load, fixedIDs{}, nil)
	fail.Store(true)

	require.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodPost, "/v1/reload", nil).Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/stats", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	do(t, s, http.MethodGet, "/v1/stats", nil)
	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
