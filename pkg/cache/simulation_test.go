package cache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Sequential Simulation
// ============================================================================

// TestSequentialSimulation drives random operations from a single goroutine,
// completing asynchronous I/O in random order, and checks the structural
// invariants after every step. Loads must return the most recently stored
// generation of every page the caller still expects to be cached.
func TestSequentialSimulation(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("Seed%d", seed), func(t *testing.T) {
			t.Parallel()
			runSequentialSimulation(t, seed)
		})
	}
}

func runSequentialSimulation(t *testing.T, seed uint64) {
	env := newTestEnv(t, func(cfg *Config) { cfg.MaxPages = 24 })
	c := env.cache
	r := rand.New(rand.NewPCG(seed, seed*7919))
	ctx := context.Background()

	// model holds the generation the caller expects back from a Load.
	model := make(map[uint64]uint64)
	var gen uint64

	pendingReads := func() int {
		_, reads := env.backend.pendingCount()
		return reads
	}

	for step := 0; step < 3000; step++ {
		off := uint64(r.IntN(16))

		switch op := r.IntN(100); {
		case op < 35:
			gen++
			err := c.Store(ctx, 0, off, page(gen))
			switch {
			case err == nil:
				model[off] = gen
			case assert.ErrorIs(t, err, ErrAllocationFailure):
				// The caller writes the page to the device itself.
				env.backend.put(Coordinate{Region: 0, Offset: off}, page(gen))
				model[off] = gen
			}

		case op < 37:
			err := c.Store(ctx, 0, off, make([]byte, testPageSize/2))
			require.ErrorIs(t, err, ErrMapFailure)
			delete(model, off)

		case op < 55:
			dst := make([]byte, testPageSize)
			require.NoError(t, c.Load(ctx, 0, off, dst))
			if want, ok := model[off]; ok {
				require.Equal(t, page(want), dst, "step %d: load of offset %d", step, off)
				delete(model, off)
			}

		case op < 62:
			require.NoError(t, c.InvalidatePage(0, off))
			delete(model, off)

		case op < 72:
			c.dischargePass(ctx)

		case op < 88:
			env.backend.completeRandom(r, 0.1)

		case op < 94:
			env.clock.Advance(time.Duration(r.IntN(15)) * time.Second)

		default:
			_, err := c.ReadAhead(ctx, r.IntN(4)+1)
			require.NoError(t, err)
		}

		checkInvariants(t, c, pendingReads())
		require.Zero(t, env.backend.mutated, "step %d: in-flight buffer modified", step)
	}

	drainCache(t, env)

	for off, want := range model {
		dst := make([]byte, testPageSize)
		require.NoError(t, c.Load(ctx, 0, off, dst))
		assert.Equal(t, page(want), dst, "offset %d after drain", off)
	}
}

// drainCache writes back everything and waits for all I/O, then checks that
// no page or buffer is left behind.
func drainCache(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, env.cache.SetGracePeriod(0))

	for i := 0; i < 1000; i++ {
		// Completed read-ahead pages are stamped PrefetchGrace into the
		// future, so the clock has to pass that again on every round.
		env.clock.Advance(env.cache.prefetchGrace + time.Second)
		env.cache.dischargePass(ctx)
		env.backend.completeAll(nil)

		writes, reads := env.backend.pendingCount()
		if env.cache.queue.Len() == 0 && writes == 0 && reads == 0 {
			break
		}
	}

	s := env.cache.Stats()
	require.Zero(t, s.QuarantineLength)
	require.Zero(t, s.InMemoryPages)
	require.Zero(t, s.InMemoryZombiePages)
	require.Zero(t, s.InFlightPages)
	require.Zero(t, s.ZombiePages)
	require.Zero(t, env.cache.pool.InUse(), "page buffers leaked")
}

// ============================================================================
// Concurrent Harness
// ============================================================================

// TestConcurrentHarness runs callers, the discharge worker and randomly
// ordered completions at the same time. Each caller owns its own pages, as a
// virtual memory client would, and checks that every Load returns its most
// recent Store.
func TestConcurrentHarness(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent harness in short mode")
	}
	t.Parallel()

	const (
		workers        = 6
		pagesPerWorker = 8
		opsPerWorker   = 4000
	)

	env := newTestEnv(t, func(cfg *Config) {
		cfg.GracePeriod = 0
		cfg.MinDischargeInterval = 100 * time.Microsecond
		cfg.Clock = nil
	})
	c := env.cache
	ctx := context.Background()
	require.NoError(t, c.InitRegion(1))

	c.Start(ctx)

	stop := make(chan struct{})
	var completer sync.WaitGroup
	completer.Add(1)
	go func() {
		defer completer.Done()
		r := rand.New(rand.NewPCG(99, 1))
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !env.backend.completeRandom(r, 0.05) {
				time.Sleep(50 * time.Microsecond)
			}
		}
	}()

	models := make([]map[Coordinate]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		models[w] = make(map[Coordinate]uint64)
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(w)+1, 42))
			model := models[w]
			dst := make([]byte, testPageSize)

			for i := 0; i < opsPerWorker; i++ {
				coord := Coordinate{
					Region: RegionID(r.IntN(2)),
					Offset: uint64(w*pagesPerWorker + r.IntN(pagesPerWorker)),
				}
				tag := uint64(w)<<48 | uint64(i)

				switch op := r.IntN(10); {
				case op < 5:
					if err := c.Store(ctx, coord.Region, coord.Offset, page(tag)); err != nil {
						t.Errorf("store %v: %v", coord, err)
						return
					}
					model[coord] = tag
				case op < 9:
					if err := c.Load(ctx, coord.Region, coord.Offset, dst); err != nil {
						t.Errorf("load %v: %v", coord, err)
						return
					}
					if want, ok := model[coord]; ok {
						if !assert.Equal(t, page(want), dst, "worker %d op %d coord %v", w, i, coord) {
							return
						}
						delete(model, coord)
					}
				default:
					if err := c.InvalidatePage(coord.Region, coord.Offset); err != nil {
						t.Errorf("invalidate %v: %v", coord, err)
						return
					}
					delete(model, coord)
				}
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, c.Close())
	close(stop)
	completer.Wait()

	drainCache(t, env)
	assert.Zero(t, env.backend.mutated, "in-flight buffer modified")

	for w, model := range models {
		for coord, want := range model {
			dst := make([]byte, testPageSize)
			require.NoError(t, c.loadAfterClose(ctx, coord, dst))
			assert.Equal(t, page(want), dst, "worker %d coord %v after drain", w, coord)
		}
	}

	s := c.Stats()
	assert.Positive(t, s.AsyncIO)
	assert.Equal(t, s.AsyncIO-s.AsyncIOFail+s.PrefetchIssued, s.AsyncEndIO,
		"every submitted write and read-ahead completed once")
}

// loadAfterClose reads the device copy of a page once the cache is drained.
func (c *Cache) loadAfterClose(ctx context.Context, coord Coordinate, dst []byte) error {
	return c.backend.SyncRead(ctx, coord.Region, coord.Offset, dst)
}
