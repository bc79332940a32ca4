package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Store / Load Tests
// ============================================================================

func TestStoreThenLoadNeedsNoIO(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.cache.Store(ctx, 0, 7, page(1)))
	assert.Equal(t, StateInMemory, env.cache.stateOf(0, 7))

	dst := make([]byte, testPageSize)
	require.NoError(t, env.cache.Load(ctx, 0, 7, dst))
	assert.Equal(t, page(1), dst)
	assert.Equal(t, StateInvalid, env.cache.stateOf(0, 7))

	syncReads, writes, reads := env.backend.counts()
	assert.Zero(t, syncReads)
	assert.Zero(t, writes)
	assert.Zero(t, reads)

	s := env.cache.Stats()
	assert.Equal(t, int64(1), s.Stores)
	assert.Equal(t, int64(1), s.Loads)
	assert.Equal(t, int64(1), s.PromotedPages)
	assert.Zero(t, s.DiskPromotedPages)
	assert.Zero(t, s.InMemoryPages)
	assert.Zero(t, env.cache.pool.InUse())
	checkInvariants(t, env.cache, 0)
}

func TestStoreOverwriteInMemory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.cache.Store(ctx, 0, 1, page(1)))
	require.NoError(t, env.cache.Store(ctx, 0, 1, page(2)))

	assert.Equal(t, StateInMemory, env.cache.stateOf(0, 1))
	assert.Zero(t, env.cache.Stats().OverwriteStores, "no write-back was outstanding")
	assert.Equal(t, int64(1), env.cache.pool.InUse(), "buffer is reused")

	dst := make([]byte, testPageSize)
	require.NoError(t, env.cache.Load(ctx, 0, 1, dst))
	assert.Equal(t, page(2), dst)
	checkInvariants(t, env.cache, 0)
}

func TestStoreRejectsOversizedPage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	err := env.cache.Store(context.Background(), 0, 1, make([]byte, testPageSize+1))
	require.ErrorIs(t, err, ErrUnsupportedPage)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "store", opErr.Op)
	assert.Equal(t, uint64(1), opErr.Offset)

	assert.Equal(t, int64(1), env.cache.Stats().UnsupportedPages)
	assert.Equal(t, StateInvalid, env.cache.stateOf(0, 1))
	assert.Equal(t, 1, env.cache.PrefetchPending(), "coordinate is recorded anyway")
}

func TestStoreShortPage(t *testing.T) {
	t.Parallel()

	t.Run("NewEntry", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		err := env.cache.Store(context.Background(), 0, 1, make([]byte, testPageSize-1))
		require.ErrorIs(t, err, ErrMapFailure)
		assert.Equal(t, int64(1), env.cache.Stats().MapFail)
		assert.Equal(t, StateInvalid, env.cache.stateOf(0, 1))
		assert.Zero(t, env.cache.pool.InUse())
	})

	t.Run("ExistingEntryIsConsumed", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		require.NoError(t, env.cache.Store(ctx, 0, 1, page(1)))
		err := env.cache.Store(ctx, 0, 1, make([]byte, 10))
		require.ErrorIs(t, err, ErrMapFailure)

		assert.Equal(t, StateInvalid, env.cache.stateOf(0, 1))
		assert.Zero(t, env.cache.pool.InUse())
		checkInvariants(t, env.cache, 0)
	})

	t.Run("InFlightEntryBecomesEmptyZombie", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		require.NoError(t, env.cache.Store(ctx, 0, 1, page(1)))
		env.clock.Advance(time.Minute)
		env.cache.dischargePass(ctx)

		err := env.cache.Store(ctx, 0, 1, make([]byte, 10))
		require.ErrorIs(t, err, ErrMapFailure)
		assert.Equal(t, StateZombie, env.cache.stateOf(0, 1))
		checkInvariants(t, env.cache, 0)

		// With no data left the load falls through to the device.
		env.backend.completeAll(nil)
		dst := make([]byte, testPageSize)
		require.NoError(t, env.cache.Load(ctx, 0, 1, dst))
		assert.Equal(t, page(1), dst)
		assert.Zero(t, env.cache.pool.InUse())
	})
}

func TestStoreAllocationFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(cfg *Config) { cfg.MaxPages = 1 })
	ctx := context.Background()

	require.NoError(t, env.cache.Store(ctx, 0, 1, page(1)))

	err := env.cache.Store(ctx, 0, 2, page(2))
	require.ErrorIs(t, err, ErrAllocationFailure)
	assert.Equal(t, int64(1), env.cache.Stats().AllocFail)
	assert.Equal(t, StateInvalid, env.cache.stateOf(0, 2))

	// Overwriting a cached page needs no new buffer.
	require.NoError(t, env.cache.Store(ctx, 0, 1, page(3)))

	// A superseding store always gets a buffer, even over budget.
	env.clock.Advance(time.Minute)
	env.cache.dischargePass(ctx)
	require.NoError(t, env.cache.Store(ctx, 0, 1, page(4)))
	assert.Equal(t, StateInMemoryFollowedByZombie, env.cache.stateOf(0, 1))
	checkInvariants(t, env.cache, 0)
}

func TestStoreUninitializedRegion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	err := env.cache.Store(context.Background(), 3, 1, page(1))
	require.ErrorIs(t, err, ErrRegionNotInitialized)
	assert.Zero(t, env.cache.Stats().IndexInsertFail, "a missing region is not an index failure")
}

func TestConcurrentFirstStoresDoNotCountInsertFail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	for round := uint64(0); round < 50; round++ {
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, env.cache.Store(ctx, 0, round, page(round)))
			}()
		}
		wg.Wait()
	}

	s := env.cache.Stats()
	assert.Zero(t, s.IndexInsertFail, "losing the race to create an entry is retried")
	assert.Equal(t, int64(50), s.InMemoryPages)
	checkInvariants(t, env.cache, 0)
}

func TestInvalidRegion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.cache.Store(ctx, MaxRegions, 0, page(1)), ErrInvalidRegion)
	assert.ErrorIs(t, env.cache.Load(ctx, MaxRegions, 0, make([]byte, testPageSize)), ErrInvalidRegion)
	assert.ErrorIs(t, env.cache.InvalidatePage(MaxRegions, 0), ErrInvalidRegion)
	assert.ErrorIs(t, env.cache.InitRegion(MaxRegions), ErrInvalidRegion)
	assert.ErrorIs(t, env.cache.InvalidateArea(MaxRegions), ErrInvalidRegion)
}

func TestLoadMissReadsBackend(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	coord := Coordinate{Region: 0, Offset: 9}
	env.backend.put(coord, page(42))

	dst := make([]byte, testPageSize)
	require.NoError(t, env.cache.Load(ctx, 0, 9, dst))
	assert.Equal(t, page(42), dst)

	syncReads, _, _ := env.backend.counts()
	assert.Equal(t, 1, syncReads)
	assert.Equal(t, 1, env.backend.freed[coord], "slot released after the read")

	s := env.cache.Stats()
	assert.Equal(t, int64(1), s.InvalidLoads)
	assert.Equal(t, int64(1), s.DiskPromotedPages)
	assert.Equal(t, int64(1), s.PromotedPages)
}

func TestLoadMissUninitializedRegion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.backend.put(Coordinate{Region: 5, Offset: 1}, page(5))

	dst := make([]byte, testPageSize)
	require.NoError(t, env.cache.Load(context.Background(), 5, 1, dst))
	assert.Equal(t, page(5), dst)
}

func TestLoadMissPropagatesDeviceError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.backend.syncReadErr = errInjected
	err := env.cache.Load(context.Background(), 0, 1, make([]byte, testPageSize))
	require.ErrorIs(t, err, errInjected)
	assert.Empty(t, env.backend.freed)
}

func TestLoadShortBuffer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.cache.Store(ctx, 0, 1, page(1)))
	err := env.cache.Load(ctx, 0, 1, make([]byte, 8))
	require.ErrorIs(t, err, ErrMapFailure)

	assert.Equal(t, StateInvalid, env.cache.stateOf(0, 1), "entry is consumed")
	assert.Equal(t, int64(1), env.cache.Stats().MapFail)
	assert.Zero(t, env.cache.pool.InUse())
}

// ============================================================================
// Invalidate Tests
// ============================================================================

func TestInvalidatePage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.cache.Store(ctx, 0, 1, page(1)))
	require.NoError(t, env.cache.InvalidatePage(0, 1))
	assert.Equal(t, StateInvalid, env.cache.stateOf(0, 1))

	require.NoError(t, env.cache.InvalidatePage(0, 1))
	s := env.cache.Stats()
	assert.Equal(t, int64(2), s.InvalidatePages)
	assert.Equal(t, int64(1), s.InvalidInvalidatePages)
	assert.Zero(t, env.cache.pool.InUse())
	checkInvariants(t, env.cache, 0)
}

func TestInvalidatePageInFlight(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.cache.Store(ctx, 0, 1, page(1)))
	env.clock.Advance(time.Minute)
	env.cache.dischargePass(ctx)

	require.NoError(t, env.cache.InvalidatePage(0, 1))
	assert.Equal(t, StateZombie, env.cache.stateOf(0, 1))
	checkInvariants(t, env.cache, 0)

	env.backend.completeAll(nil)
	assert.Equal(t, StateInvalid, env.cache.stateOf(0, 1))
	assert.Zero(t, env.cache.pool.InUse())
	assert.Zero(t, env.cache.Stats().ZombiePages)
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestClosedCacheRejectsOperations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.cache.Close())
	require.NoError(t, env.cache.Close(), "close is idempotent")

	assert.ErrorIs(t, env.cache.Store(ctx, 0, 1, page(1)), ErrCacheClosed)
	assert.ErrorIs(t, env.cache.Load(ctx, 0, 1, make([]byte, testPageSize)), ErrCacheClosed)
	assert.ErrorIs(t, env.cache.InvalidatePage(0, 1), ErrCacheClosed)
	assert.ErrorIs(t, env.cache.InitRegion(1), ErrCacheClosed)
	_, err := env.cache.ReadAhead(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheClosed)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	assert.Error(t, err)

	_, err = New(newFakeBackend(), &Config{GracePeriod: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidGracePeriod)

	c, err := New(newFakeBackend(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, c.PageSize())
	assert.Equal(t, DefaultGracePeriod, c.GracePeriod())
}

func TestGracePeriod(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	require.NoError(t, env.cache.SetGracePeriod(0))
	assert.Zero(t, env.cache.GracePeriod())

	assert.ErrorIs(t, env.cache.SetGracePeriod(-time.Second), ErrInvalidGracePeriod)
	assert.Zero(t, env.cache.GracePeriod(), "rejected value leaves the period alone")

	require.NoError(t, env.cache.SetGracePeriod(30*time.Second))
	assert.Equal(t, 30*time.Second, env.cache.GracePeriod())
	assert.Equal(t, 15*time.Second, env.cache.dischargeInterval())

	require.NoError(t, env.cache.SetGracePeriod(0))
	assert.Equal(t, DefaultMinDischargeInterval, env.cache.dischargeInterval())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateInvalid, "Invalid"},
		{StateInMemory, "InMemory"},
		{StateInMemoryFollowedByZombie, "InMemoryFollowedByZombie"},
		{StateInFlight, "InFlight"},
		{StateZombie, "Zombie"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
