package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Prefetch Ring Tests
// ============================================================================

func TestPrefetchRing(t *testing.T) {
	t.Parallel()

	t.Run("PopsNewestFirst", func(t *testing.T) {
		r := newPrefetchRing(8)
		for i := uint64(0); i < 3; i++ {
			r.push(Coordinate{Offset: i})
		}
		for want := uint64(3); want > 0; want-- {
			c, ok := r.pop()
			require.True(t, ok)
			assert.Equal(t, want-1, c.Offset)
		}
		_, ok := r.pop()
		assert.False(t, ok)
	})

	t.Run("OverwritesOldest", func(t *testing.T) {
		r := newPrefetchRing(4)
		for i := uint64(0); i < 6; i++ {
			r.push(Coordinate{Offset: i})
		}
		assert.Equal(t, 4, r.len())

		var got []uint64
		for {
			c, ok := r.pop()
			if !ok {
				break
			}
			got = append(got, c.Offset)
		}
		assert.Equal(t, []uint64{5, 4, 3, 2}, got)
	})

	t.Run("GrowsAcrossWrap", func(t *testing.T) {
		r := newPrefetchRing(200)
		for i := uint64(0); i < 64; i++ {
			r.push(Coordinate{Offset: i})
		}
		for i := 0; i < 10; i++ {
			_, _ = r.pop()
		}
		for i := uint64(100); i < 150; i++ {
			r.push(Coordinate{Offset: i})
		}
		assert.Equal(t, 104, r.len())

		c, ok := r.pop()
		require.True(t, ok)
		assert.Equal(t, uint64(149), c.Offset)
	})

	t.Run("ZeroCapacity", func(t *testing.T) {
		r := newPrefetchRing(0)
		r.push(Coordinate{Offset: 1})
		_, ok := r.pop()
		assert.False(t, ok)
	})
}

// ============================================================================
// ReadAhead Tests
// ============================================================================

// evict stores a page, writes it back and completes the write, leaving the
// coordinate on the device and in the prefetch ring only.
func (env *testEnv) evict(t *testing.T, offset uint64, tag uint64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, env.cache.Store(ctx, 0, offset, page(tag)))
	env.clock.Advance(time.Minute)
	env.cache.dischargePass(ctx)
	env.backend.completeAll(nil)
	require.Equal(t, StateInvalid, env.cache.stateOf(0, offset))
}

func TestReadAheadInstallsPages(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.evict(t, 1, 11)
	env.evict(t, 2, 22)

	issued, err := env.cache.ReadAhead(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, issued)
	assert.Equal(t, int64(2), env.cache.Stats().InMemoryPages, "pending reads count as in memory")
	assert.Equal(t, StateInvalid, env.cache.stateOf(0, 1), "not indexed before completion")

	env.backend.completeAll(nil)
	assert.Equal(t, StateInMemory, env.cache.stateOf(0, 1))
	assert.Equal(t, StateInMemory, env.cache.stateOf(0, 2))
	assert.Equal(t, int64(2), env.cache.Stats().PrefetchIssued)
	checkInvariants(t, env.cache, 0)

	// Prefetched pages get the longer grace.
	env.clock.Advance(time.Minute)
	_, written := env.cache.dischargePass(ctx)
	assert.Zero(t, written)

	syncBefore, _, _ := env.backend.counts()
	dst := make([]byte, testPageSize)
	require.NoError(t, env.cache.Load(ctx, 0, 2, dst))
	assert.Equal(t, page(22), dst)
	syncAfter, _, _ := env.backend.counts()
	assert.Equal(t, syncBefore, syncAfter, "served from memory")
}

func TestReadAheadPagesDrain(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.evict(t, 1, 11)
	issued, err := env.cache.ReadAhead(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, 1, issued)

	// The read completes inside the drain and is stamped PrefetchGrace
	// ahead of the clock.
	drainCache(t, env)

	dst := make([]byte, testPageSize)
	require.NoError(t, env.cache.Load(ctx, 0, 1, dst))
	assert.Equal(t, page(11), dst)
}

func TestReadAheadSkips(t *testing.T) {
	t.Parallel()

	t.Run("CachedPage", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		require.NoError(t, env.cache.Store(ctx, 0, 1, page(1)))
		env.backend.put(Coordinate{Region: 0, Offset: 1}, page(0))

		issued, err := env.cache.ReadAhead(ctx, 4)
		require.NoError(t, err)
		assert.Zero(t, issued)
	})

	t.Run("ReclaimedSlot", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		env.evict(t, 1, 1)
		env.backend.NotifySlotFree(0, 1)

		issued, err := env.cache.ReadAhead(ctx, 4)
		require.NoError(t, err)
		assert.Zero(t, issued)
		assert.Zero(t, env.cache.PrefetchPending(), "skipped coordinates are consumed")
	})

	t.Run("BudgetLimitsPops", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		env.evict(t, 1, 1)
		env.evict(t, 2, 2)
		env.evict(t, 3, 3)

		issued, err := env.cache.ReadAhead(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, issued)
		assert.Equal(t, 1, env.cache.PrefetchPending())
	})
}

func TestReadAheadAllocationFailureStopsPass(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(cfg *Config) { cfg.MaxPages = 1 })
	ctx := context.Background()

	env.evict(t, 1, 1)
	env.evict(t, 2, 2)
	require.NoError(t, env.cache.Store(ctx, 0, 9, page(9)))

	issued, err := env.cache.ReadAhead(ctx, 8)
	require.NoError(t, err)
	assert.Zero(t, issued)
	assert.Equal(t, int64(1), env.cache.Stats().AllocFail)
}

func TestReadAheadFailures(t *testing.T) {
	t.Parallel()

	t.Run("SubmissionError", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		env.evict(t, 1, 1)
		env.evict(t, 2, 2)
		env.backend.readSubmitErr = errInjected

		issued, err := env.cache.ReadAhead(ctx, 4)
		require.NoError(t, err)
		assert.Zero(t, issued)
		assert.Zero(t, env.cache.PrefetchPending(), "a refused read does not end the pass")

		s := env.cache.Stats()
		assert.Equal(t, int64(2), s.PrefetchDropped)
		assert.Zero(t, s.InMemoryPages)
		assert.Zero(t, env.cache.pool.InUse())
	})

	t.Run("CompletionError", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		env.evict(t, 1, 1)
		issued, err := env.cache.ReadAhead(ctx, 4)
		require.NoError(t, err)
		require.Equal(t, 1, issued)

		endBefore := env.cache.Stats().AsyncEndIO
		env.backend.completeAll(errInjected)
		assert.Equal(t, StateInvalid, env.cache.stateOf(0, 1))
		assert.Equal(t, endBefore+1, env.cache.Stats().AsyncEndIO)
		assert.Equal(t, int64(1), env.cache.Stats().AsyncEndIOFail)
		assert.Equal(t, int64(1), env.cache.Stats().PrefetchDropped)
		assert.Zero(t, env.cache.Stats().InMemoryPages)
		assert.Zero(t, env.cache.pool.InUse())
	})

	t.Run("InsertConflict", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		env.evict(t, 1, 1)
		issued, err := env.cache.ReadAhead(ctx, 4)
		require.NoError(t, err)
		require.Equal(t, 1, issued)

		// A newer store wins over the read-back.
		require.NoError(t, env.cache.Store(ctx, 0, 1, page(2)))
		env.backend.completeAll(nil)

		s := env.cache.Stats()
		assert.Equal(t, int64(1), s.PrefetchDropped)
		assert.Equal(t, int64(1), s.IndexInsertFail)
		checkInvariants(t, env.cache, 0)

		dst := make([]byte, testPageSize)
		require.NoError(t, env.cache.Load(ctx, 0, 1, dst))
		assert.Equal(t, page(2), dst)
	})
}

func TestReadAheadMetrics(t *testing.T) {
	t.Parallel()
	metrics := &recordingMetrics{}
	env := newTestEnv(t, func(cfg *Config) { cfg.Metrics = metrics })

	_, err := env.cache.ReadAhead(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.readAhead.Load())
}
