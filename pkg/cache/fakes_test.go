package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Fake Clock
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ============================================================================
// Fake Backend
// ============================================================================

// pendingIO is an asynchronous operation waiting to be completed by the test.
type pendingIO struct {
	coord    Coordinate
	buf      []byte
	snapshot []byte
	write    bool
	done     func(error)
}

// fakeBackend is an in-memory device whose asynchronous operations complete
// only when the test says so.
type fakeBackend struct {
	mu sync.Mutex

	pages   map[Coordinate][]byte
	pending []*pendingIO
	freed   map[Coordinate]int

	syncReads       int
	writesSubmitted int
	readsSubmitted  int

	// mutated counts write buffers that changed while the write was in flight.
	mutated int

	writeSubmitErr error
	readSubmitErr  error
	syncReadErr    error

	// onWrite runs inside AsyncWrite before the submission is decided.
	onWrite func(Coordinate)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages: make(map[Coordinate][]byte),
		freed: make(map[Coordinate]int),
	}
}

func (b *fakeBackend) SyncRead(_ context.Context, region RegionID, offset uint64, dst []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.syncReads++
	if b.syncReadErr != nil {
		return b.syncReadErr
	}
	clear(dst)
	copy(dst, b.pages[Coordinate{region, offset}])
	return nil
}

func (b *fakeBackend) AsyncWrite(region RegionID, offset uint64, src []byte, done func(error)) error {
	coord := Coordinate{region, offset}

	b.mu.Lock()
	hook := b.onWrite
	b.mu.Unlock()
	if hook != nil {
		hook(coord)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writeSubmitErr != nil {
		return b.writeSubmitErr
	}
	b.writesSubmitted++
	b.pending = append(b.pending, &pendingIO{
		coord:    coord,
		buf:      src,
		snapshot: bytes.Clone(src),
		write:    true,
		done:     done,
	})
	return nil
}

func (b *fakeBackend) AsyncRead(region RegionID, offset uint64, dst []byte, done func(error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readSubmitErr != nil {
		return b.readSubmitErr
	}
	b.readsSubmitted++
	b.pending = append(b.pending, &pendingIO{
		coord: Coordinate{region, offset},
		buf:   dst,
		done:  done,
	})
	return nil
}

func (b *fakeBackend) NotifySlotFree(region RegionID, offset uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	coord := Coordinate{region, offset}
	delete(b.pages, coord)
	b.freed[coord]++
}

func (b *fakeBackend) SlotInUse(region RegionID, offset uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.pages[Coordinate{region, offset}]
	return ok
}

// put seeds the device with a page.
func (b *fakeBackend) put(coord Coordinate, page []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[coord] = bytes.Clone(page)
}

func (b *fakeBackend) get(coord Coordinate) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pages[coord]
	return bytes.Clone(p), ok
}

func (b *fakeBackend) setWriteSubmitErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeSubmitErr = err
}

func (b *fakeBackend) setOnWrite(fn func(Coordinate)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onWrite = fn
}

func (b *fakeBackend) pendingCount() (writes, reads int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pending {
		if p.write {
			writes++
		} else {
			reads++
		}
	}
	return writes, reads
}

func (b *fakeBackend) counts() (syncReads, writes, reads int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncReads, b.writesSubmitted, b.readsSubmitted
}

// take removes the i-th pending operation, or returns nil.
func (b *fakeBackend) take(i int) *pendingIO {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.pending) {
		return nil
	}
	p := b.pending[i]
	b.pending = append(b.pending[:i], b.pending[i+1:]...)
	return p
}

// finish applies p to the device and runs its completion.
func (b *fakeBackend) finish(p *pendingIO, err error) {
	b.mu.Lock()
	if p.write {
		if !bytes.Equal(p.snapshot, p.buf) {
			b.mutated++
		}
		if err == nil {
			b.pages[p.coord] = bytes.Clone(p.buf)
		}
	} else if err == nil {
		clear(p.buf)
		copy(p.buf, b.pages[p.coord])
	}
	b.mu.Unlock()

	p.done(err)
}

// completeAll completes every pending operation with err, including the
// ones submitted by completions, and returns how many ran.
func (b *fakeBackend) completeAll(err error) int {
	n := 0
	for {
		p := b.take(0)
		if p == nil {
			return n
		}
		b.finish(p, err)
		n++
	}
}

// completeRandom completes one random pending operation. It reports false if
// nothing was pending.
func (b *fakeBackend) completeRandom(r *rand.Rand, failRate float64) bool {
	b.mu.Lock()
	n := len(b.pending)
	b.mu.Unlock()
	if n == 0 {
		return false
	}
	p := b.take(r.IntN(n))
	if p == nil {
		return false
	}
	var err error
	if r.Float64() < failRate {
		err = errInjected
	}
	b.finish(p, err)
	return true
}

var errInjected = &injectedError{}

type injectedError struct{}

func (*injectedError) Error() string { return "injected I/O error" }

// ============================================================================
// Helpers
// ============================================================================

const testPageSize = 64

type testEnv struct {
	cache   *Cache
	backend *fakeBackend
	clock   *fakeClock
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	backend := newFakeBackend()
	clock := newFakeClock()
	cfg := Config{
		PageSize:         testPageSize,
		GracePeriod:      10 * time.Second,
		PrefetchCapacity: 64,
		Clock:            clock,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	c, err := New(backend, &cfg)
	require.NoError(t, err)
	require.NoError(t, c.InitRegion(0))
	t.Cleanup(func() { _ = c.Close() })

	return &testEnv{cache: c, backend: backend, clock: clock}
}

// page returns a test page whose bytes encode tag.
func page(tag uint64) []byte {
	p := make([]byte, testPageSize)
	for i := 0; i+8 <= len(p); i += 8 {
		binary.LittleEndian.PutUint64(p[i:], tag)
	}
	return p
}

// stateOf returns the state of the entry indexed at the coordinate.
func (c *Cache) stateOf(region RegionID, offset uint64) State {
	idx := c.regions[region].published()
	if idx == nil {
		return StateInvalid
	}
	e := idx.get(offset)
	if e == nil {
		return StateInvalid
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// checkInvariants verifies the structural invariants of a quiescent cache:
// no Invalid entry is indexed, queue membership matches the state, and the
// gauges and queue length match what is indexed. pendingReads is the number
// of read-ahead entries that are counted but not indexed yet.
func checkInvariants(t *testing.T, c *Cache, pendingReads int) {
	t.Helper()

	perState := map[State]int64{}
	var queued int64
	for i := range c.regions {
		idx := c.regions[i].published()
		if idx == nil {
			continue
		}
		for _, e := range idx.snapshot() {
			e.mu.Lock()
			require.NotEqual(t, StateInvalid, e.state, "invalid entry indexed at %d/%d", e.region, e.offset)
			require.Equal(t, e.state.queued(), e.queued, "queue membership of %s entry", e.state)
			if e.state != StateZombie {
				require.NotNil(t, e.data, "%s entry without data", e.state)
			}
			if e.queued {
				queued++
			}
			perState[e.state]++
			e.mu.Unlock()
		}
	}

	s := c.Stats()
	require.Equal(t, perState[StateInMemory]+int64(pendingReads), s.InMemoryPages, "in-memory gauge")
	require.Equal(t, perState[StateInMemoryFollowedByZombie], s.InMemoryZombiePages, "imfz gauge")
	require.Equal(t, perState[StateInFlight], s.InFlightPages, "in-flight gauge")
	require.Equal(t, perState[StateZombie], s.ZombiePages, "zombie gauge")
	require.Equal(t, queued, s.QuarantineLength, "queue length")
}
