package handlers

import (
	"math"
	"net/http"
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
)

// maxGraceSeconds is the largest grace period a time.Duration can hold.
const maxGraceSeconds = math.MaxInt64 / int64(time.Second)

// GraceHandler reads and changes the grace period.
type GraceHandler struct {
	cache Cache
}

// NewGraceHandler creates a grace period handler.
func NewGraceHandler(c Cache) *GraceHandler {
	return &GraceHandler{cache: c}
}

// GraceResponse is the grace period in whole seconds.
type GraceResponse struct {
	Seconds int64 `json:"seconds"`
}

// GraceRequest is the body of PUT /api/v1/grace.
type GraceRequest struct {
	Seconds *int64 `json:"seconds"`
}

// Get handles GET /api/v1/grace.
func (h *GraceHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, GraceResponse{Seconds: int64(h.cache.GracePeriod() / time.Second)})
}

// Put handles PUT /api/v1/grace. A negative value is ignored and the
// current period is returned unchanged.
func (h *GraceHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req GraceRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Seconds == nil {
		BadRequest(w, "seconds is required")
		return
	}

	if *req.Seconds > maxGraceSeconds {
		BadRequest(w, "seconds is too large")
		return
	}

	if *req.Seconds < 0 {
		logger.Debug("Ignoring negative grace period", "seconds", *req.Seconds)
	} else {
		d := time.Duration(*req.Seconds) * time.Second
		if err := h.cache.SetGracePeriod(d); err != nil {
			writeCacheError(w, r, err)
			return
		}
		logger.Info("Grace period changed", logger.Grace(d), logger.ClientIP(r.RemoteAddr))
	}

	h.Get(w, r)
}
