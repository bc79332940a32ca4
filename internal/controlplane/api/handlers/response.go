package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
)

// Health statuses reported in Response.Status.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Response is the envelope of the health endpoints.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// writeHealth answers a probe. A non-empty reason marks the daemon
// unhealthy and turns the answer into a 503.
func writeHealth(w http.ResponseWriter, data any, reason string) {
	resp := Response{Status: StatusHealthy, Timestamp: time.Now().UTC(), Data: data}
	status := http.StatusOK
	if reason != "" {
		resp.Status = StatusUnhealthy
		resp.Error = reason
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}

// encode buffers the JSON first so a marshalling failure still becomes a
// clean 500.
func encode(w http.ResponseWriter, status int, contentType string, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode response", logger.Err(err), "status", status)
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
