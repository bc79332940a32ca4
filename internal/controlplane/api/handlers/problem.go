// Package handlers provides HTTP handlers for the DittoSwap control API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/marmos91/dittoswap/pkg/cache"
)

// ContentTypeProblemJSON is the Content-Type of error responses.
const ContentTypeProblemJSON = "application/problem+json"

// problemTypePrefix namespaces the problem type URNs of this API.
const problemTypePrefix = "urn:dittoswap:problem:"

// Problem is an RFC 7807 error document. Failures of a page operation
// carry the region and offset they concern as extension members.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Region *uint32 `json:"region,omitempty"`
	Offset *uint64 `json:"offset,omitempty"`
}

// cacheProblem describes how one cache sentinel error is reported.
type cacheProblem struct {
	err    error
	kind   string
	status int
	detail string
}

var cacheProblems = []cacheProblem{
	{cache.ErrInvalidRegion, "invalid-region", http.StatusBadRequest, "Invalid region"},
	{cache.ErrInvalidGracePeriod, "invalid-grace-period", http.StatusBadRequest, "Grace period must not be negative"},
	{cache.ErrMapFailure, "short-page", http.StatusBadRequest, "Page is shorter than the page size"},
	{cache.ErrUnsupportedPage, "oversized-page", http.StatusRequestEntityTooLarge, "Page is larger than the page size"},
	{cache.ErrRegionNotInitialized, "region-not-initialized", http.StatusConflict, "Region not initialized"},
	{cache.ErrRegionExists, "region-exists", http.StatusConflict, "Region already initialized"},
	{cache.ErrAllocationFailure, "page-budget-exhausted", http.StatusInsufficientStorage, "Page budget exhausted"},
	{cache.ErrCacheClosed, "cache-closed", http.StatusServiceUnavailable, "Cache is closed"},
}

func lookupCacheProblem(err error) (cacheProblem, bool) {
	for _, p := range cacheProblems {
		if errors.Is(err, p.err) {
			return p, true
		}
	}
	return cacheProblem{}, false
}

// writeCacheError reports a failed cache operation. Unknown errors become a
// 500 whose detail is the error text.
func writeCacheError(w http.ResponseWriter, r *http.Request, err error) {
	prob := &Problem{
		Type:   problemTypePrefix + "internal",
		Status: http.StatusInternalServerError,
		Detail: err.Error(),
	}
	if p, ok := lookupCacheProblem(err); ok {
		prob.Type = problemTypePrefix + p.kind
		prob.Status = p.status
		prob.Detail = p.detail
	}
	prob.Title = http.StatusText(prob.Status)
	if r != nil {
		prob.Instance = r.URL.Path
	}

	var opErr *cache.OpError
	if errors.As(err, &opErr) {
		region := uint32(opErr.Region)
		prob.Region = &region
		if opErr.Op != "init_region" && opErr.Op != "invalidate_area" {
			offset := opErr.Offset
			prob.Offset = &offset
		}
	}
	encode(w, prob.Status, ContentTypeProblemJSON, prob)
}

// WriteProblem writes a problem document with the given status.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	encode(w, status, ContentTypeProblemJSON, &Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// BadRequest rejects a malformed request.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// Unauthorized is written when no valid bearer token was presented.
func Unauthorized(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// Forbidden is written when the token's role may not call the route.
func Forbidden(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteJSON writes data as a JSON body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	encode(w, status, "application/json", data)
}

func WriteJSONOK(w http.ResponseWriter, data any) { WriteJSON(w, http.StatusOK, data) }

func WriteNoContent(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }
