package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/marmos91/dittoswap/pkg/cache"
)

// RegionHandler manages regions and the pages inside them.
type RegionHandler struct {
	cache Cache
}

// NewRegionHandler creates a region handler.
func NewRegionHandler(c Cache) *RegionHandler {
	return &RegionHandler{cache: c}
}

// RegionsResponse lists the initialized regions.
type RegionsResponse struct {
	Regions []cache.RegionID `json:"regions"`
}

// List handles GET /api/v1/regions.
func (h *RegionHandler) List(w http.ResponseWriter, r *http.Request) {
	regions := h.cache.Regions()
	if regions == nil {
		regions = []cache.RegionID{}
	}
	WriteJSONOK(w, RegionsResponse{Regions: regions})
}

// Init handles POST /api/v1/regions/{region}.
func (h *RegionHandler) Init(w http.ResponseWriter, r *http.Request) {
	region, ok := regionParam(w, r)
	if !ok {
		return
	}
	if err := h.cache.InitRegion(region); err != nil {
		writeCacheError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Invalidate handles DELETE /api/v1/regions/{region}.
func (h *RegionHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	region, ok := regionParam(w, r)
	if !ok {
		return
	}
	if err := h.cache.InvalidateArea(region); err != nil {
		writeCacheError(w, r, err)
		return
	}
	WriteNoContent(w)
}

// StorePage handles PUT /api/v1/regions/{region}/pages/{offset}. The body
// is the raw page.
func (h *RegionHandler) StorePage(w http.ResponseWriter, r *http.Request) {
	region, ok := regionParam(w, r)
	if !ok {
		return
	}
	offset, ok := offsetParam(w, r)
	if !ok {
		return
	}

	// One byte over the page size is enough to detect an oversized page.
	page, err := io.ReadAll(io.LimitReader(r.Body, int64(h.cache.PageSize())+1))
	if err != nil {
		BadRequest(w, "Failed to read page body")
		return
	}

	if err := h.cache.Store(r.Context(), region, offset, page); err != nil {
		writeCacheError(w, r, err)
		return
	}
	WriteNoContent(w)
}

// LoadPage handles GET /api/v1/regions/{region}/pages/{offset}. A cached
// page leaves the cache, so this is not a safe method despite the verb.
func (h *RegionHandler) LoadPage(w http.ResponseWriter, r *http.Request) {
	region, ok := regionParam(w, r)
	if !ok {
		return
	}
	offset, ok := offsetParam(w, r)
	if !ok {
		return
	}

	dst := make([]byte, h.cache.PageSize())
	if err := h.cache.Load(r.Context(), region, offset, dst); err != nil {
		writeCacheError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(dst)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dst)
}

// InvalidatePage handles DELETE /api/v1/regions/{region}/pages/{offset}.
func (h *RegionHandler) InvalidatePage(w http.ResponseWriter, r *http.Request) {
	region, ok := regionParam(w, r)
	if !ok {
		return
	}
	offset, ok := offsetParam(w, r)
	if !ok {
		return
	}
	if err := h.cache.InvalidatePage(region, offset); err != nil {
		writeCacheError(w, r, err)
		return
	}
	WriteNoContent(w)
}
