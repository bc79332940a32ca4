package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittoswap/internal/bytesize"
	"github.com/marmos91/dittoswap/internal/telemetry"
	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/backing/factory"
	"github.com/marmos91/dittoswap/pkg/cache"
	"github.com/marmos91/dittoswap/pkg/controlplane/api"
)

const (
	defaultGracePeriod      = cache.DefaultGracePeriod
	defaultPrefetchCapacity = cache.DefaultPrefetchCapacity
	defaultShutdownTimeout  = 30 * time.Second
	defaultMetricsPort      = 9090
)

// ApplyDefaults fills every zero field of cfg and normalizes the case of
// enumerations. cache.grace_period and cache.prefetch_capacity accept zero,
// so the loader defaults those before decoding instead.
func ApplyDefaults(cfg *Config) {
	l := &cfg.Logging
	l.Level = strings.ToUpper(orDefault(l.Level, "INFO"))
	l.Format = orDefault(l.Format, "text")
	l.Output = orDefault(l.Output, "stdout")

	trace := telemetry.DefaultConfig()
	cfg.Telemetry.Endpoint = orDefault(cfg.Telemetry.Endpoint, trace.Endpoint)
	cfg.Telemetry.SampleRate = orDefault(cfg.Telemetry.SampleRate, trace.SampleRate)

	prof := telemetry.DefaultProfilingConfig()
	cfg.Telemetry.Profiling.Endpoint = orDefault(cfg.Telemetry.Profiling.Endpoint, prof.Endpoint)
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		cfg.Telemetry.Profiling.ProfileTypes = prof.ProfileTypes
	}

	cfg.ShutdownTimeout = orDefault(cfg.ShutdownTimeout, defaultShutdownTimeout)
	if cfg.Metrics.Enabled {
		cfg.Metrics.Port = orDefault(cfg.Metrics.Port, defaultMetricsPort)
	}

	api.ApplyDefaults(&cfg.ControlPlane)

	c := &cfg.Cache
	c.PageSize = orDefault(c.PageSize, bytesize.ByteSize(cache.DefaultPageSize))
	c.PrefetchGrace = orDefault(c.PrefetchGrace, cache.DefaultPrefetchGrace)
	c.MinDischargeInterval = orDefault(c.MinDischargeInterval, cache.DefaultMinDischargeInterval)

	b := &cfg.Backing
	b.Type = strings.ToLower(orDefault(b.Type, factory.TypeMemory))
	b.Workers = orDefault(b.Workers, backing.DefaultWorkers)
	b.QueueDepth = orDefault(b.QueueDepth, backing.DefaultQueueDepth)
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// GetDefaultConfig is the configuration used when no file exists, and the
// one "dittoswap config init" writes.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Cache: CacheConfig{
			GracePeriod:      defaultGracePeriod,
			PrefetchCapacity: defaultPrefetchCapacity,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
