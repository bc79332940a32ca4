package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/metrics"
)

// dispatcherMetrics is the Prometheus implementation of
// backing.DispatcherMetrics.
type dispatcherMetrics struct {
	device     string
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
}

// NewDispatcherMetrics creates a new Prometheus-backed DispatcherMetrics
// labelled with the device kind.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDispatcherMetrics(device string) backing.DispatcherMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newDispatcherMetrics(metrics.GetRegistry(), device)
}

func newDispatcherMetrics(reg prometheus.Registerer, device string) *dispatcherMetrics {
	labels := prometheus.Labels{"device": device}
	return &dispatcherMetrics{
		device: device,
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "dittoswap_device_operations_total",
				Help:        "Total number of backing device operations by operation and status",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "dittoswap_device_operation_duration_milliseconds",
				Help:        "Duration of backing device operations in milliseconds",
				ConstLabels: labels,
				Buckets: []float64{
					0.05, // 50us - memory device
					0.5,  // 500us - local disk
					1,    // 1ms
					10,   // 10ms - embedded databases under load
					50,   // 50ms - object storage
					100,  // 100ms
					500,  // 500ms
					1000, // 1s
				},
			},
			[]string{"operation"},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name:        "dittoswap_device_queue_depth",
				Help:        "Operations waiting for an I/O worker",
				ConstLabels: labels,
			},
		),
	}
}

func (m *dispatcherMetrics) ObserveIO(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, status(err)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds() * 1000)
}

func (m *dispatcherMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
