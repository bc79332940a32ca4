package metrics

import (
	"github.com/marmos91/dittoswap/pkg/cache"
)

// NewCacheMetrics creates a Prometheus-backed CacheMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or the
// prometheus package was not linked in. A nil result can be passed straight
// to cache.Config.
//
// Example usage:
//
//	metrics.InitRegistry()
//	cfg := cache.DefaultConfig()
//	cfg.Metrics = metrics.NewCacheMetrics()
func NewCacheMetrics() cache.CacheMetrics {
	if !IsEnabled() || newPrometheusCacheMetrics == nil {
		return nil
	}
	return newPrometheusCacheMetrics()
}

// RegisterStatsSource exports the counters of a cache snapshot function as
// dittoswap_cache_* metrics. It is a no-op while metrics are disabled.
func RegisterStatsSource(source func() cache.Stats) {
	if !IsEnabled() || registerStatsCollector == nil {
		return
	}
	registerStatsCollector(source)
}

// These are implemented in pkg/metrics/prometheus. The indirection keeps
// this package free of an import cycle with its implementation.
var (
	newPrometheusCacheMetrics func() cache.CacheMetrics
	registerStatsCollector    func(func() cache.Stats)
)

// RegisterCacheMetricsConstructor registers the Prometheus cache metrics
// constructor. Called by pkg/metrics/prometheus during initialization.
func RegisterCacheMetricsConstructor(constructor func() cache.CacheMetrics) {
	newPrometheusCacheMetrics = constructor
}

// RegisterStatsCollectorConstructor registers the function that exports a
// Stats source. Called by pkg/metrics/prometheus during initialization.
func RegisterStatsCollectorConstructor(register func(func() cache.Stats)) {
	registerStatsCollector = register
}
