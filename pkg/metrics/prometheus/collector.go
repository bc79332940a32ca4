package prometheus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/pkg/cache"
	"github.com/marmos91/dittoswap/pkg/metrics"
)

// statsCollector exports a cache.Stats snapshot on every scrape.
//
// Population counters become gauges. Event counters become counters with a
// _total suffix, except the promoted counters, which drop back to zero when
// taken and are therefore exported as gauges.
type statsCollector struct {
	source func() cache.Stats
	descs  map[string]*prometheus.Desc
}

var _ prometheus.Collector = (*statsCollector)(nil)

// NewStatsCollector returns a collector reading from source.
func NewStatsCollector(source func() cache.Stats) prometheus.Collector {
	c := &statsCollector{source: source, descs: make(map[string]*prometheus.Desc)}
	for _, f := range (cache.Stats{}).Fields() {
		c.descs[f.Name] = prometheus.NewDesc(metricName(f.Name), "Cache counter "+f.Name, nil, nil)
	}
	return c
}

// RegisterStatsCollector registers a collector for source with the global
// registry. A second registration is logged and ignored.
func RegisterStatsCollector(source func() cache.Stats) {
	reg := metrics.GetRegistry()
	if reg == nil {
		return
	}
	if err := reg.Register(NewStatsCollector(source)); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			logger.Warn("Cache stats collector already registered")
			return
		}
		logger.Error("Failed to register cache stats collector", logger.Err(err))
	}
}

func isGauge(name string) bool {
	return cache.Gauge(name) || name == "nr_promoted_page" || name == "nr_disk_promoted_page"
}

func metricName(stat string) string {
	if isGauge(stat) {
		return "dittoswap_cache_" + stat
	}
	return "dittoswap_cache_" + stat + "_total"
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, f := range c.source().Fields() {
		vt := prometheus.CounterValue
		if isGauge(f.Name) {
			vt = prometheus.GaugeValue
		}
		ch <- prometheus.MustNewConstMetric(c.descs[f.Name], vt, float64(f.Value))
	}
}
