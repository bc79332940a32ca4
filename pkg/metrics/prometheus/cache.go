// Package prometheus implements the metric sinks of pkg/metrics on
// prometheus/client_golang. Importing it (usually with a blank import)
// registers its constructors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoswap/pkg/cache"
	"github.com/marmos91/dittoswap/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
	metrics.RegisterStatsCollectorConstructor(RegisterStatsCollector)
	metrics.RegisterDispatcherMetricsConstructor(NewDispatcherMetrics)
}

// cacheMetrics is the Prometheus implementation of cache.CacheMetrics.
type cacheMetrics struct {
	dischargeDuration prometheus.Histogram
	dischargeScanned  prometheus.Counter
	dischargeIssued   prometheus.Counter
	readAheadDuration prometheus.Histogram
	readAheadPages    *prometheus.CounterVec
	missReadDuration  *prometheus.HistogramVec
}

// NewCacheMetrics creates a new Prometheus-backed CacheMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() cache.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newCacheMetrics(metrics.GetRegistry())
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	return &cacheMetrics{
		dischargeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittoswap_cache_discharge_pass_duration_milliseconds",
				Help: "Duration of discharge passes in milliseconds",
				Buckets: []float64{
					0.1, // 100us - nearly empty quarantine
					1,   // 1ms
					5,   // 5ms
					10,  // 10ms
					50,  // 50ms
					100, // 100ms - long scans
					500, // 500ms
				},
			},
		),
		dischargeScanned: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoswap_cache_discharge_scanned_total",
				Help: "Total number of quarantine entries examined by discharge passes",
			},
		),
		dischargeIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoswap_cache_discharge_issued_total",
				Help: "Total number of write-backs issued by discharge passes",
			},
		),
		readAheadDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittoswap_cache_read_ahead_duration_milliseconds",
				Help:    "Duration of read-ahead calls in milliseconds",
				Buckets: []float64{0.1, 1, 5, 10, 50, 100, 500},
			},
		),
		readAheadPages: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoswap_cache_read_ahead_pages_total",
				Help: "Pages requested from and issued by read-ahead",
			},
			[]string{"kind"}, // "requested", "issued"
		),
		missReadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoswap_cache_miss_read_duration_milliseconds",
				Help: "Duration of synchronous device reads serving load misses",
				Buckets: []float64{
					0.05, // 50us - memory device
					0.5,  // 500us - local SSD
					1,    // 1ms
					5,    // 5ms
					20,   // 20ms - network storage
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"status"}, // "success", "error"
		),
	}
}

func (m *cacheMetrics) ObserveDischargePass(scanned, issued int, duration time.Duration) {
	if m == nil {
		return
	}
	m.dischargeDuration.Observe(duration.Seconds() * 1000)
	m.dischargeScanned.Add(float64(scanned))
	m.dischargeIssued.Add(float64(issued))
}

func (m *cacheMetrics) ObserveReadAhead(requested, issued int, duration time.Duration) {
	if m == nil {
		return
	}
	m.readAheadDuration.Observe(duration.Seconds() * 1000)
	m.readAheadPages.WithLabelValues("requested").Add(float64(requested))
	m.readAheadPages.WithLabelValues("issued").Add(float64(issued))
}

func (m *cacheMetrics) ObserveMissRead(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.missReadDuration.WithLabelValues(status(err)).Observe(duration.Seconds() * 1000)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
