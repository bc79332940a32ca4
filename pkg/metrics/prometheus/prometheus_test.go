package prometheus

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/cache"
	"github.com/marmos91/dittoswap/pkg/metrics"
)

func TestCacheMetrics_Observations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newCacheMetrics(reg)

	m.ObserveDischargePass(10, 4, 2*time.Millisecond)
	m.ObserveDischargePass(5, 1, time.Millisecond)
	m.ObserveReadAhead(8, 3, time.Millisecond)
	m.ObserveMissRead(time.Millisecond, nil)
	m.ObserveMissRead(time.Millisecond, errors.New("boom"))

	assert.Equal(t, 15.0, testutil.ToFloat64(m.dischargeScanned))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.dischargeIssued))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.readAheadPages.WithLabelValues("requested")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.readAheadPages.WithLabelValues("issued")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.missReadDuration))
}

func TestCacheMetrics_NilReceiver(t *testing.T) {
	var m *cacheMetrics
	assert.NotPanics(t, func() {
		m.ObserveDischargePass(1, 1, time.Millisecond)
		m.ObserveReadAhead(1, 1, time.Millisecond)
		m.ObserveMissRead(time.Millisecond, nil)
	})
}

func TestDispatcherMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newDispatcherMetrics(reg, "fs")

	m.ObserveIO(backing.OpWrite, time.Millisecond, nil)
	m.ObserveIO(backing.OpWrite, time.Millisecond, errors.New("boom"))
	m.ObserveIO(backing.OpRead, time.Millisecond, nil)
	m.SetQueueDepth(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("write", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("write", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))

	expected := `
# HELP dittoswap_device_queue_depth Operations waiting for an I/O worker
# TYPE dittoswap_device_queue_depth gauge
dittoswap_device_queue_depth{device="fs"} 7
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dittoswap_device_queue_depth"))
}

func TestStatsCollector(t *testing.T) {
	stats := cache.Stats{InMemoryPages: 3, Stores: 10, PromotedPages: 2}
	c := NewStatsCollector(func() cache.Stats { return stats })

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP dittoswap_cache_nr_in_memory_page Cache counter nr_in_memory_page
# TYPE dittoswap_cache_nr_in_memory_page gauge
dittoswap_cache_nr_in_memory_page 3
# HELP dittoswap_cache_nr_promoted_page Cache counter nr_promoted_page
# TYPE dittoswap_cache_nr_promoted_page gauge
dittoswap_cache_nr_promoted_page 2
# HELP dittoswap_cache_nr_store_total Cache counter nr_store
# TYPE dittoswap_cache_nr_store_total counter
dittoswap_cache_nr_store_total 10
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"dittoswap_cache_nr_in_memory_page",
		"dittoswap_cache_nr_promoted_page",
		"dittoswap_cache_nr_store_total",
	))

	assert.Equal(t, len((cache.Stats{}).Fields()), testutil.CollectAndCount(c))
}

func TestConstructorsFollowRegistry(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, metrics.NewCacheMetrics())
	assert.Nil(t, metrics.NewDispatcherMetrics("memory"))

	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)

	assert.NotNil(t, metrics.NewCacheMetrics())
	assert.NotNil(t, metrics.NewDispatcherMetrics("memory"))

	metrics.RegisterStatsSource(func() cache.Stats { return cache.Stats{Loads: 1} })
	metrics.RegisterStatsSource(func() cache.Stats { return cache.Stats{} })

	mfs, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "dittoswap_cache_nr_load_total" {
			found = true
		}
	}
	assert.True(t, found, "stats collector exported through the global registry")
}
