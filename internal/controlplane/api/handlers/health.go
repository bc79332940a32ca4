package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheckTimeout bounds the device health check of the readiness probe.
const HealthCheckTimeout = 5 * time.Second

// HealthChecker is implemented by the backing device and its dispatcher.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the backing device reachable?
type HealthHandler struct {
	cache      Cache
	device     HealthChecker
	deviceKind string
	instance   string
	startTime  time.Time
}

// NewHealthHandler creates a new health handler. Either dependency may be
// nil, in which case the readiness probe reports unhealthy.
func NewHealthHandler(c Cache, device HealthChecker, deviceKind, instance string) *HealthHandler {
	return &HealthHandler{
		cache:      c,
		device:     device,
		deviceKind: deviceKind,
		instance:   instance,
		startTime:  time.Now(),
	}
}

// Liveness handles GET /health - simple liveness probe.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeHealth(w, map[string]any{
		"service":    "dittoswap",
		"instance":   h.instance,
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}, "")
}

// DeviceHealth is the readiness payload.
type DeviceHealth struct {
	Device   string `json:"device"`
	Status   string `json:"status"`
	Latency  string `json:"latency,omitempty"`
	Regions  int    `json:"regions"`
	PageSize int    `json:"page_size"`
	Error    string `json:"error,omitempty"`
}

// Readiness handles GET /health/ready. It returns 503 when the backing
// device fails its health check.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil || h.device == nil {
		writeHealth(w, nil, "cache not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := h.device.HealthCheck(ctx)

	health := DeviceHealth{
		Device:   h.deviceKind,
		Status:   StatusHealthy,
		Latency:  time.Since(start).String(),
		Regions:  len(h.cache.Regions()),
		PageSize: h.cache.PageSize(),
	}
	if err != nil {
		health.Status = StatusUnhealthy
		health.Error = err.Error()
		writeHealth(w, health, "backing device unhealthy")
		return
	}
	writeHealth(w, health, "")
}
