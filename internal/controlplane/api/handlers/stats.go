package handlers

import (
	"net/http"

	"github.com/marmos91/dittoswap/internal/logger"
)

// StatsHandler serves the cache counters.
type StatsHandler struct {
	cache Cache
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(c Cache) *StatsHandler {
	return &StatsHandler{cache: c}
}

// Get handles GET /api/v1/stats. Reading never resets anything.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.cache.Stats())
}

// Reset handles DELETE /api/v1/stats. Event counters are cleared; the
// population gauges and the promoted pair are left alone.
func (h *StatsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.cache.ResetStats()
	logger.Info("Cache statistics reset", logger.ClientIP(r.RemoteAddr))
	WriteNoContent(w)
}

// PromotedResponse is returned by the promoted counters.
type PromotedResponse struct {
	Pages int64 `json:"pages"`
}

// Promoted handles GET /api/v1/promoted. The counter is reset by the read.
func (h *StatsHandler) Promoted(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, PromotedResponse{Pages: h.cache.TakePromoted()})
}

// DiskPromoted handles GET /api/v1/promoted/disk. The counter is reset by
// the read.
func (h *StatsHandler) DiskPromoted(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, PromotedResponse{Pages: h.cache.TakeDiskPromoted()})
}
