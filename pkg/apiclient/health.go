package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// HealthResponse is the envelope of the health endpoints.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Readiness is the payload of the readiness probe.
type Readiness struct {
	Device   string `json:"device"`
	Status   string `json:"status"`
	Latency  string `json:"latency,omitempty"`
	Regions  int    `json:"regions"`
	PageSize int    `json:"page_size"`
	Error    string `json:"error,omitempty"`
}

// Health calls the liveness probe.
func (c *Client) Health() (*HealthResponse, error) {
	return fetch[HealthResponse](c, "/health")
}

// Ready calls the readiness probe. An unhealthy device is reported through
// the returned Readiness, not as an error.
func (c *Client) Ready() (*Readiness, error) {
	var ready Readiness
	resp, err := fetch[HealthResponse](c, "/health/ready")
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
			return nil, err
		}
		// 503 carries the same envelope with the failing device's details.
		var body HealthResponse
		if json.Unmarshal([]byte(apiErr.Detail), &body) == nil && len(body.Data) > 0 {
			_ = json.Unmarshal(body.Data, &ready)
		}
		ready.Status = "unhealthy"
		if ready.Error == "" {
			ready.Error = body.Error
		}
		return &ready, nil
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &ready); err != nil {
			return nil, err
		}
	}
	return &ready, nil
}
