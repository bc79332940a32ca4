package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/backing/memory"
	"github.com/marmos91/dittoswap/pkg/cache"
)

const testPageSize = 512

func newTestCache(t *testing.T) (*cache.Cache, *backing.Dispatcher) {
	t.Helper()

	disp := backing.NewDispatcher(memory.New(memory.Config{PageSize: testPageSize}), backing.DispatcherOptions{})
	c, err := cache.New(disp, &cache.Config{
		PageSize:         testPageSize,
		GracePeriod:      time.Hour,
		PrefetchCapacity: 16,
	})
	require.NoError(t, err)
	require.NoError(t, c.InitRegion(0))
	t.Cleanup(func() {
		_ = c.Close()
		_ = disp.Close()
	})
	return c, disp
}

func newTestRouter(c Cache) http.Handler {
	stats := NewStatsHandler(c)
	grace := NewGraceHandler(c)
	prefetch := NewPrefetchHandler(c)
	regions := NewRegionHandler(c)

	r := chi.NewRouter()
	r.Get("/stats", stats.Get)
	r.Delete("/stats", stats.Reset)
	r.Get("/promoted", stats.Promoted)
	r.Get("/promoted/disk", stats.DiskPromoted)
	r.Get("/grace", grace.Get)
	r.Put("/grace", grace.Put)
	r.Post("/prefetch", prefetch.Prefetch)
	r.Get("/regions", regions.List)
	r.Post("/regions/{region}", regions.Init)
	r.Delete("/regions/{region}", regions.Invalidate)
	r.Put("/regions/{region}/pages/{offset}", regions.StorePage)
	r.Get("/regions/{region}/pages/{offset}", regions.LoadPage)
	r.Delete("/regions/{region}/pages/{offset}", regions.InvalidatePage)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func testPage(tag byte) []byte {
	return bytes.Repeat([]byte{tag}, testPageSize)
}

// ============================================================================
// Health
// ============================================================================

type failingChecker struct{ err error }

func (f failingChecker) HealthCheck(context.Context) error { return f.err }

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil, nil, "", "inst-1")
	rr := httptest.NewRecorder()
	handler.Liveness(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "expected Data to be a map, got %T", resp.Data)
	assert.Equal(t, "dittoswap", data["service"])
	assert.Equal(t, "inst-1", data["instance"])
}

func TestReadiness(t *testing.T) {
	t.Run("not initialized", func(t *testing.T) {
		handler := NewHealthHandler(nil, nil, "", "")
		rr := httptest.NewRecorder()
		handler.Readiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("healthy device", func(t *testing.T) {
		c, disp := newTestCache(t)
		handler := NewHealthHandler(c, disp, "memory", "")
		rr := httptest.NewRecorder()
		handler.Readiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp struct {
			Status string       `json:"status"`
			Data   DeviceHealth `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "memory", resp.Data.Device)
		assert.Equal(t, 1, resp.Data.Regions)
		assert.Equal(t, testPageSize, resp.Data.PageSize)
	})

	t.Run("failing device", func(t *testing.T) {
		c, _ := newTestCache(t)
		handler := NewHealthHandler(c, failingChecker{errors.New("bucket gone")}, "s3", "")
		rr := httptest.NewRecorder()
		handler.Readiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "bucket gone")
	})
}

// ============================================================================
// Stats
// ============================================================================

func TestStats_ResetKeepsGauges(t *testing.T) {
	c, _ := newTestCache(t)
	r := newTestRouter(c)

	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodPut, "/regions/0/pages/1", testPage(1)).Code)

	var stats cache.Stats
	rr := do(t, r, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	assert.EqualValues(t, 1, stats.Stores)
	assert.EqualValues(t, 1, stats.InMemoryPages)

	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/stats", nil).Code)

	rr = do(t, r, http.MethodGet, "/stats", nil)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	assert.EqualValues(t, 0, stats.Stores)
	assert.EqualValues(t, 1, stats.InMemoryPages)
}

func TestStats_UsesCanonicalNames(t *testing.T) {
	c, _ := newTestCache(t)
	rr := do(t, newTestRouter(c), http.MethodGet, "/stats", nil)

	var raw map[string]int64
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&raw))
	for _, f := range (cache.Stats{}).Fields() {
		assert.Contains(t, raw, f.Name)
	}
}

func TestPromoted_ResetOnRead(t *testing.T) {
	c, _ := newTestCache(t)
	r := newTestRouter(c)

	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodPut, "/regions/0/pages/1", testPage(1)).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/regions/0/pages/1", nil).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/regions/0/pages/2", nil).Code)

	read := func(path string) int64 {
		var resp PromotedResponse
		rr := do(t, r, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		return resp.Pages
	}

	assert.EqualValues(t, 2, read("/promoted"))
	assert.EqualValues(t, 0, read("/promoted"))
	assert.EqualValues(t, 1, read("/promoted/disk"))
	assert.EqualValues(t, 0, read("/promoted/disk"))
}

// ============================================================================
// Grace
// ============================================================================

func TestGrace(t *testing.T) {
	c, _ := newTestCache(t)
	r := newTestRouter(c)

	get := func() int64 {
		var resp GraceResponse
		rr := do(t, r, http.MethodGet, "/grace", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		return resp.Seconds
	}

	assert.EqualValues(t, 3600, get())

	rr := do(t, r, http.MethodPut, "/grace", []byte(`{"seconds":30}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"seconds":30}`, rr.Body.String())
	assert.Equal(t, 30*time.Second, c.GracePeriod())

	// Negative values are ignored.
	rr = do(t, r, http.MethodPut, "/grace", []byte(`{"seconds":-5}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 30, get())

	rr = do(t, r, http.MethodPut, "/grace", []byte(`{"seconds":0}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 0, get())

	// Seconds that would overflow a time.Duration are rejected.
	rr = do(t, r, http.MethodPut, "/grace", []byte(`{"seconds":9223372037}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.EqualValues(t, 0, get())

	rr = do(t, r, http.MethodPut, "/grace", []byte(`{"seconds":9223372036}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 9223372036, get())

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/grace", []byte(`{}`)).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/grace", []byte(`nope`)).Code)
}

// ============================================================================
// Prefetch
// ============================================================================

func TestPrefetch(t *testing.T) {
	c, _ := newTestCache(t)
	r := newTestRouter(c)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/prefetch", []byte(`{"pages":0}`)).Code)

	rr := do(t, r, http.MethodPost, "/prefetch", []byte(`{"pages":4}`))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp PrefetchResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 4, resp.Requested)
	assert.GreaterOrEqual(t, resp.Issued, 0)
}

// ============================================================================
// Regions and Pages
// ============================================================================

func TestRegions(t *testing.T) {
	c, _ := newTestCache(t)
	r := newTestRouter(c)

	assert.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/regions/3", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, r, http.MethodPost, "/regions/3", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/regions/32", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/regions/abc", nil).Code)

	var list RegionsResponse
	rr := do(t, r, http.MethodGet, "/regions", nil)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Equal(t, []cache.RegionID{0, 3}, list.Regions)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/regions/3", nil).Code)
	// Tearing down twice is a no-op.
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/regions/3", nil).Code)
	assert.False(t, c.Initialized(3))
}

func TestPages_StoreLoadInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	r := newTestRouter(c)

	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodPut, "/regions/0/pages/7", testPage(7)).Code)

	rr := do(t, r, http.MethodGet, "/regions/0/pages/7", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, testPage(7), rr.Body.Bytes())

	// The load took the page out of the cache.
	assert.EqualValues(t, 0, c.Stats().InMemoryPages)

	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodPut, "/regions/0/pages/8", testPage(8)).Code)
	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/regions/0/pages/8", nil).Code)
	assert.EqualValues(t, 0, c.Stats().InMemoryPages)
	assert.EqualValues(t, 1, c.Stats().InvalidatePages)
}

func TestPages_Errors(t *testing.T) {
	c, _ := newTestCache(t)
	r := newTestRouter(c)

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		want   int
	}{
		{"short page", http.MethodPut, "/regions/0/pages/1", testPage(1)[:100], http.StatusBadRequest},
		{"oversized page", http.MethodPut, "/regions/0/pages/1", append(testPage(1), 0), http.StatusRequestEntityTooLarge},
		{"uninitialized region", http.MethodPut, "/regions/5/pages/1", testPage(1), http.StatusConflict},
		{"bad offset", http.MethodPut, "/regions/0/pages/-1", testPage(1), http.StatusBadRequest},
		{"bad region", http.MethodGet, "/regions/99/pages/1", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, ContentTypeProblemJSON, rr.Header().Get("Content-Type"))

			var p Problem
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
			assert.Equal(t, tt.want, p.Status)
		})
	}
}

func TestCacheProblems(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{cache.ErrInvalidRegion, http.StatusBadRequest, "invalid-region"},
		{cache.ErrMapFailure, http.StatusBadRequest, "short-page"},
		{cache.ErrInvalidGracePeriod, http.StatusBadRequest, "invalid-grace-period"},
		{cache.ErrUnsupportedPage, http.StatusRequestEntityTooLarge, "oversized-page"},
		{cache.ErrRegionNotInitialized, http.StatusConflict, "region-not-initialized"},
		{cache.ErrRegionExists, http.StatusConflict, "region-exists"},
		{cache.ErrAllocationFailure, http.StatusInsufficientStorage, "page-budget-exhausted"},
		{cache.ErrCacheClosed, http.StatusServiceUnavailable, "cache-closed"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			p, ok := lookupCacheProblem(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, p.status)
			assert.Equal(t, tt.wantKind, p.kind)
			assert.NotEmpty(t, p.detail)

			wrapped := fmt.Errorf("store region=0 offset=1: %w", tt.err)
			p, ok = lookupCacheProblem(wrapped)
			require.True(t, ok, "wrapped errors map the same way")
			assert.Equal(t, tt.wantStatus, p.status)
		})
	}

	_, ok := lookupCacheProblem(errors.New("something unexpected"))
	assert.False(t, ok)
}

func TestWriteCacheError_InternalIncludesDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/regions/0", nil)
	writeCacheError(rr, req, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "disk on fire"))

	var p Problem
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, "urn:dittoswap:problem:internal", p.Type)
	assert.Equal(t, "/regions/0", p.Instance)
	assert.Nil(t, p.Region)
}

func TestWriteCacheError_PageProblem(t *testing.T) {
	c, _ := newTestCache(t)
	r := newTestRouter(c)

	rr := do(t, r, http.MethodPut, "/regions/5/pages/42", testPage(1))
	require.Equal(t, http.StatusConflict, rr.Code)

	var p Problem
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, "urn:dittoswap:problem:region-not-initialized", p.Type)
	assert.Equal(t, "/regions/5/pages/42", p.Instance)
	require.NotNil(t, p.Region)
	require.NotNil(t, p.Offset)
	assert.EqualValues(t, 5, *p.Region)
	assert.EqualValues(t, 42, *p.Offset)

	rr = do(t, r, http.MethodPost, "/regions/0", nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	p = Problem{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, "urn:dittoswap:problem:region-exists", p.Type)
	require.NotNil(t, p.Region)
	assert.Nil(t, p.Offset, "region operations carry no offset")
}
