package handlers

import (
	"net/http"
)

// PrefetchHandler triggers read-ahead passes.
type PrefetchHandler struct {
	cache Cache
}

// NewPrefetchHandler creates a prefetch handler.
func NewPrefetchHandler(c Cache) *PrefetchHandler {
	return &PrefetchHandler{cache: c}
}

// PrefetchRequest is the body of POST /api/v1/prefetch.
type PrefetchRequest struct {
	Pages int `json:"pages"`
}

// PrefetchResponse reports how many reads a pass issued.
type PrefetchResponse struct {
	Requested int `json:"requested"`
	Issued    int `json:"issued"`
	Pending   int `json:"pending"`
}

// Prefetch handles POST /api/v1/prefetch.
func (h *PrefetchHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Pages <= 0 {
		BadRequest(w, "pages must be positive")
		return
	}

	issued, err := h.cache.ReadAhead(r.Context(), req.Pages)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}
	WriteJSONOK(w, PrefetchResponse{
		Requested: req.Pages,
		Issued:    issued,
		Pending:   h.cache.PrefetchPending(),
	})
}
