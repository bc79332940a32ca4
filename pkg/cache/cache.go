package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/pkg/bufpool"
)

// Config holds the tunables of a Cache. Zero values select the defaults.
type Config struct {
	// PageSize is the size of every page. Default: 4096.
	PageSize int

	// GracePeriod is how long a page must stay untouched in memory before
	// the discharge worker writes it back. Zero makes every page eligible on
	// the next pass. Default: 360s.
	GracePeriod time.Duration

	// PrefetchGrace is added to the current time when a read-ahead page is
	// installed, so it is not written back right away. Default: 600s.
	PrefetchGrace time.Duration

	// PrefetchCapacity is the number of recent coordinates remembered for
	// ReadAhead. Default: DefaultPrefetchCapacity.
	PrefetchCapacity int

	// MaxPages caps the number of page buffers newly cached pages may hold.
	// Zero means unbounded.
	MaxPages int

	// MinDischargeInterval is the shortest sleep between discharge passes.
	// Default: 10ms.
	MinDischargeInterval time.Duration

	// Clock supplies the time used for entry ages. Default: wall clock.
	Clock Clock

	// Metrics receives pass level observations. Optional.
	Metrics CacheMetrics
}

// DefaultConfig returns a Config populated with the defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:             DefaultPageSize,
		GracePeriod:          DefaultGracePeriod,
		PrefetchGrace:        DefaultPrefetchGrace,
		PrefetchCapacity:     DefaultPrefetchCapacity,
		MinDischargeInterval: DefaultMinDischargeInterval,
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PrefetchGrace <= 0 {
		cfg.PrefetchGrace = DefaultPrefetchGrace
	}
	if cfg.PrefetchCapacity == 0 {
		cfg.PrefetchCapacity = DefaultPrefetchCapacity
	}
	if cfg.MinDischargeInterval <= 0 {
		cfg.MinDischargeInterval = DefaultMinDischargeInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
}

// Cache is a deferred write-back page cache in front of a Backend.
//
// Store, Load and the invalidation calls are safe for concurrent use. None of
// them waits for device I/O except a Load that misses. A single discharge
// goroutine, started by Start, writes back pages whose grace period expired.
//
// Lock order is entry, then quarantine queue, then region index. The only
// place that needs the reverse order (the discharge worker picking the queue
// head) uses a try-lock.
type Cache struct {
	backend       Backend
	pageSize      int
	prefetchGrace time.Duration
	minInterval   time.Duration
	clock         Clock
	metrics       CacheMetrics

	grace atomic.Int64

	pool    *bufpool.Pool
	regions [MaxRegions]regionSlot
	queue   quarantine
	ring    *prefetchRing
	stats   counters

	closed atomic.Bool
	kick   chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache in front of backend. A nil config selects the defaults.
// The discharge worker is not running until Start is called.
func New(backend Backend, config *Config) (*Cache, error) {
	if backend == nil {
		return nil, errors.New("cache: backend is required")
	}

	var cfg Config
	if config != nil {
		cfg = *config
	} else {
		cfg = DefaultConfig()
	}
	if cfg.GracePeriod < 0 {
		return nil, ErrInvalidGracePeriod
	}
	cfg.applyDefaults()

	c := &Cache{
		backend:       backend,
		pageSize:      cfg.PageSize,
		prefetchGrace: cfg.PrefetchGrace,
		minInterval:   cfg.MinDischargeInterval,
		clock:         cfg.Clock,
		metrics:       cfg.Metrics,
		pool:          bufpool.New(cfg.PageSize, cfg.MaxPages),
		ring:          newPrefetchRing(cfg.PrefetchCapacity),
		kick:          make(chan struct{}, 1),
	}
	c.grace.Store(int64(cfg.GracePeriod))

	return c, nil
}

// PageSize returns the configured page size.
func (c *Cache) PageSize() int {
	return c.pageSize
}

// GracePeriod returns the current grace period.
func (c *Cache) GracePeriod() time.Duration {
	return time.Duration(c.grace.Load())
}

// SetGracePeriod changes the grace period. The discharge worker picks up the
// new value on its next pass, which is started immediately.
func (c *Cache) SetGracePeriod(d time.Duration) error {
	if d < 0 {
		return ErrInvalidGracePeriod
	}
	old := time.Duration(c.grace.Swap(int64(d)))
	if old != d {
		logger.Info("Cache grace period changed", logger.Grace(d), "previous", old.String())
		c.wake()
	}
	return nil
}

// Start launches the discharge worker. It stops when ctx is cancelled or
// Close is called. Calling Start more than once has no effect.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil || c.closed.Load() {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run(ctx)

	logger.Info("Cache discharge worker started",
		logger.Grace(c.GracePeriod()),
		"page_size", c.pageSize)
}

// Close stops the discharge worker and rejects further operations.
// Write-backs already submitted still complete.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

// wake asks the discharge worker to start a pass now.
func (c *Cache) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// setState moves e to s and keeps the population gauges in sync.
// The caller holds e.mu or owns e exclusively.
func (c *Cache) setState(e *entry, s State) {
	c.stats.move(e.state, s)
	e.state = s
}

// consume applies the transition of a page leaving the cache: InMemory
// becomes Invalid, while the states with a write-back outstanding become
// Zombie. The caller holds e.mu.
func (c *Cache) consume(e *entry) {
	switch e.state {
	case StateInMemory:
		c.setState(e, StateInvalid)
	case StateInMemoryFollowedByZombie, StateInFlight:
		c.setState(e, StateZombie)
	}
}

// settle dequeues a consumed entry and, once it is Invalid, frees its buffer
// and removes it from its index. It reports whether e was queued.
// The caller holds e.mu.
func (c *Cache) settle(e *entry) bool {
	queued := c.queue.remove(e)
	if e.state == StateInvalid {
		c.release(e)
		c.remove(e)
	}
	return queued
}

// release drops the entry's data, returning it to the pool unless an
// in-flight write still owns it.
func (c *Cache) release(e *entry) {
	if e.data != nil && !e.shared {
		c.pool.Put(e.data)
	}
	e.data = nil
	e.shared = false
}

func (c *Cache) checkOpen() error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return nil
}
