package cache

import (
	"time"
)

// CacheMetrics receives observations about the cache's background work.
//
// Counters such as stores and loads are not reported here: they are kept by
// the cache itself and exposed through Stats, so a metrics exporter can
// collect them from a snapshot. This is optional - if not provided, these
// observations are skipped.
//
// Example implementations:
//   - Prometheus histograms
//   - In-memory recorders for testing
type CacheMetrics interface {
	// ObserveDischargePass records one discharge pass
	ObserveDischargePass(scanned, issued int, duration time.Duration)

	// ObserveReadAhead records one ReadAhead call
	ObserveReadAhead(requested, issued int, duration time.Duration)

	// ObserveMissRead records a synchronous device read for a Load miss
	ObserveMissRead(duration time.Duration, err error)
}
