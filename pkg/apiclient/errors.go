package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is an error response from the API. The server answers with RFC
// 7807 problem documents; other bodies end up in Detail.
type APIError struct {
	StatusCode int    `json:"status"`
	Type       string `json:"type,omitempty"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
	Instance   string `json:"instance,omitempty"`

	// Region and Offset are set when a page or region operation failed.
	Region *uint32 `json:"region,omitempty"`
	Offset *uint64 `json:"offset,omitempty"`
}

// problemTypePrefix namespaces the daemon's problem types.
const problemTypePrefix = "urn:dittoswap:problem:"

// Kind returns the daemon's problem kind, e.g. "region-not-initialized",
// or "" for generic errors.
func (e *APIError) Kind() string {
	if !strings.HasPrefix(e.Type, problemTypePrefix) {
		return ""
	}
	return strings.TrimPrefix(e.Type, problemTypePrefix)
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict returns true if this is a conflict error.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

func parseError(status int, body []byte) *APIError {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Title != "" {
		apiErr.StatusCode = status
		return &apiErr
	}
	return &APIError{
		StatusCode: status,
		Title:      http.StatusText(status),
		Detail:     strings.TrimSpace(string(body)),
	}
}
