package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittoswap/pkg/cache"
)

// Cache is the part of *cache.Cache the handlers drive.
type Cache interface {
	PageSize() int
	Store(ctx context.Context, region cache.RegionID, offset uint64, page []byte) error
	Load(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error
	InvalidatePage(region cache.RegionID, offset uint64) error
	InitRegion(region cache.RegionID) error
	InvalidateArea(region cache.RegionID) error
	Initialized(region cache.RegionID) bool
	Regions() []cache.RegionID
	GracePeriod() time.Duration
	SetGracePeriod(d time.Duration) error
	Stats() cache.Stats
	ResetStats()
	TakePromoted() int64
	TakeDiskPromoted() int64
	ReadAhead(ctx context.Context, maxPages int) (int, error)
	PrefetchPending() int
}

var _ Cache = (*cache.Cache)(nil)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// regionParam parses the {region} URL parameter.
func regionParam(w http.ResponseWriter, r *http.Request) (cache.RegionID, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, "region"), 10, 32)
	if err != nil || v >= cache.MaxRegions {
		BadRequest(w, "Region must be an integer in [0, 32)")
		return 0, false
	}
	return cache.RegionID(v), true
}

// offsetParam parses the {offset} URL parameter.
func offsetParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, "offset"), 10, 64)
	if err != nil {
		BadRequest(w, "Offset must be an unsigned integer")
		return 0, false
	}
	return v, true
}
