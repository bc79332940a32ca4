// Package runtime assembles the running daemon: the backing device, the
// I/O dispatcher in front of it, the page cache and the auxiliary HTTP
// servers, and owns their startup and shutdown order.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/backing/factory"
	"github.com/marmos91/dittoswap/pkg/cache"
	"github.com/marmos91/dittoswap/pkg/config"
	"github.com/marmos91/dittoswap/pkg/controlplane/api"
	"github.com/marmos91/dittoswap/pkg/metrics"
)

// DefaultShutdownTimeout bounds the shutdown of the auxiliary servers.
const DefaultShutdownTimeout = 30 * time.Second

// AuxiliaryServer is an HTTP server (API, metrics) run alongside the cache.
type AuxiliaryServer interface {
	// Start serves until ctx is cancelled or the server fails.
	Start(ctx context.Context) error
	// Stop initiates graceful shutdown.
	Stop(ctx context.Context) error
	// Port returns the configured TCP port.
	Port() int
}

// Runtime owns the cache and everything around it.
type Runtime struct {
	instance   string
	device     backing.Device
	dispatcher *backing.Dispatcher
	cache      *cache.Cache

	mu              sync.Mutex
	apiServer       AuxiliaryServer
	metricsServer   AuxiliaryServer
	shutdownTimeout time.Duration

	serveOnce sync.Once
	closeOnce sync.Once
}

// New builds a runtime around an already opened device. The cache is
// configured from cfg but its discharge worker does not run until Serve.
func New(dev backing.Device, cfg config.CacheConfig, io backing.DispatcherOptions) (*Runtime, error) {
	if dev == nil {
		return nil, errors.New("runtime: device is required")
	}
	if io.Metrics == nil {
		io.Metrics = metrics.NewDispatcherMetrics(dev.Kind())
	}
	disp := backing.NewDispatcher(dev, io)

	c, err := cache.New(disp, &cache.Config{
		PageSize:             cfg.PageSize.Int(),
		GracePeriod:          cfg.GracePeriod,
		PrefetchGrace:        cfg.PrefetchGrace,
		PrefetchCapacity:     cfg.PrefetchCapacity,
		MaxPages:             cfg.MaxPages(),
		MinDischargeInterval: cfg.MinDischargeInterval,
		Metrics:              metrics.NewCacheMetrics(),
	})
	if err != nil {
		_ = disp.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	metrics.RegisterStatsSource(c.Stats)

	return &Runtime{
		instance:        uuid.NewString(),
		device:          dev,
		dispatcher:      disp,
		cache:           c,
		shutdownTimeout: DefaultShutdownTimeout,
	}, nil
}

// Open opens the configured device and builds a runtime on it.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	dev, err := factory.Open(ctx, cfg.Backing.Config, cfg.Cache.PageSize.Int())
	if err != nil {
		return nil, err
	}

	rt, err := New(dev, cfg.Cache, backing.DispatcherOptions{
		Workers:    cfg.Backing.Workers,
		QueueDepth: cfg.Backing.QueueDepth,
		IOTimeout:  cfg.Backing.IOTimeout,
	})
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	rt.SetShutdownTimeout(cfg.ShutdownTimeout)
	return rt, nil
}

// Instance returns the random identifier of this process.
func (r *Runtime) Instance() string { return r.instance }

// Cache returns the page cache.
func (r *Runtime) Cache() *cache.Cache { return r.cache }

// Dispatcher returns the I/O dispatcher in front of the device.
func (r *Runtime) Dispatcher() *backing.Dispatcher { return r.dispatcher }

// DeviceKind returns the backing device type.
func (r *Runtime) DeviceKind() string { return r.device.Kind() }

// APIDependencies returns what the control API needs from the runtime.
func (r *Runtime) APIDependencies() api.Dependencies {
	return api.Dependencies{
		Cache:      r.cache,
		Device:     r.dispatcher,
		DeviceKind: r.device.Kind(),
		Instance:   r.instance,
	}
}

// SetAPIServer registers the control API server started by Serve.
func (r *Runtime) SetAPIServer(s AuxiliaryServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apiServer = s
}

// SetMetricsServer registers the metrics server started by Serve.
func (r *Runtime) SetMetricsServer(s AuxiliaryServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metricsServer = s
}

// SetShutdownTimeout bounds the shutdown of the auxiliary servers. Zero
// selects DefaultShutdownTimeout.
func (r *Runtime) SetShutdownTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultShutdownTimeout
	}
	r.mu.Lock()
	r.shutdownTimeout = d
	r.mu.Unlock()
}

// Serve starts the discharge worker and the auxiliary servers, then blocks
// until ctx is cancelled or a server fails, and shuts everything down.
// Only the first call does anything.
func (r *Runtime) Serve(ctx context.Context) error {
	err := errors.New("runtime: already served")
	r.serveOnce.Do(func() {
		err = r.serve(ctx)
	})
	return err
}

func (r *Runtime) serve(ctx context.Context) error {
	logger.Info("Starting DittoSwap runtime",
		logger.Instance(r.instance),
		logger.Device(r.device.Kind()),
		"page_size", r.cache.PageSize())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.cache.Start(ctx)

	r.mu.Lock()
	servers := map[string]AuxiliaryServer{"api": r.apiServer, "metrics": r.metricsServer}
	r.mu.Unlock()

	errCh := make(chan error, len(servers))
	for name, srv := range servers {
		if srv == nil {
			continue
		}
		go func(name string, srv AuxiliaryServer) {
			if err := srv.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}(name, srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", "reason", ctx.Err())
	case serveErr = <-errCh:
		logger.Error("Server failed, shutting down", logger.Err(serveErr))
	}

	r.shutdown(servers)
	logger.Info("DittoSwap runtime stopped")
	return serveErr
}

// shutdown stops the API first so no new pages arrive, then the cache and
// the device, and the metrics server last.
func (r *Runtime) shutdown(servers map[string]AuxiliaryServer) {
	r.mu.Lock()
	timeout := r.shutdownTimeout
	r.mu.Unlock()

	stop := func(name string) {
		srv := servers[name]
		if srv == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logger.Warn("Server shutdown error", "server", name, logger.Err(err))
		}
	}

	stop("api")
	if err := r.Close(); err != nil {
		logger.Warn("Cache shutdown error", logger.Err(err))
	}
	stop("metrics")
}

// Close stops the cache, drains the dispatcher and closes the device.
// Pages still in memory are dropped: nothing survives the process. Close
// is idempotent.
func (r *Runtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		s := r.cache.Stats()
		logger.Info("Closing cache",
			"in_memory", s.InMemoryPages,
			"in_flight", s.InFlightPages,
			"zombie", s.ZombiePages)

		err = errors.Join(r.cache.Close(), r.dispatcher.Close())
	})
	return err
}
