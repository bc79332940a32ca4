package metrics

import (
	"github.com/marmos91/dittoswap/pkg/backing"
)

// NewDispatcherMetrics creates a Prometheus-backed DispatcherMetrics for
// the device of the given kind.
//
// Returns nil if metrics are not enabled.
func NewDispatcherMetrics(device string) backing.DispatcherMetrics {
	if !IsEnabled() || newPrometheusDispatcherMetrics == nil {
		return nil
	}
	return newPrometheusDispatcherMetrics(device)
}

var newPrometheusDispatcherMetrics func(device string) backing.DispatcherMetrics

// RegisterDispatcherMetricsConstructor registers the Prometheus dispatcher
// metrics constructor. Called by pkg/metrics/prometheus during
// initialization.
func RegisterDispatcherMetricsConstructor(constructor func(device string) backing.DispatcherMetrics) {
	newPrometheusDispatcherMetrics = constructor
}
