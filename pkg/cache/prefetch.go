package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/internal/telemetry"
)

// ============================================================================
// Prefetch Ring
// ============================================================================

// prefetchRing remembers the most recently stored coordinates. When full, a
// push overwrites the oldest element. Storage grows on demand up to capacity.
type prefetchRing struct {
	mu       sync.Mutex
	buf      []Coordinate
	head     int
	n        int
	capacity int
}

func newPrefetchRing(capacity int) *prefetchRing {
	if capacity < 0 {
		capacity = 0
	}
	return &prefetchRing{capacity: capacity}
}

func (r *prefetchRing) push(c Coordinate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capacity == 0 {
		return
	}
	if r.n == len(r.buf) && len(r.buf) < r.capacity {
		r.grow()
	}
	if r.n == len(r.buf) {
		r.buf[r.head] = c
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[(r.head+r.n)%len(r.buf)] = c
	r.n++
}

// grow makes room for at least one more element, unrolling the ring so that
// the oldest element is at index zero.
func (r *prefetchRing) grow() {
	size := 2 * len(r.buf)
	if size < 64 {
		size = 64
	}
	if size > r.capacity {
		size = r.capacity
	}
	next := make([]Coordinate, size)
	for i := 0; i < r.n; i++ {
		next[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.buf = next
	r.head = 0
}

// pop removes and returns the most recently pushed coordinate.
func (r *prefetchRing) pop() (Coordinate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == 0 {
		return Coordinate{}, false
	}
	r.n--
	return r.buf[(r.head+r.n)%len(r.buf)], true
}

func (r *prefetchRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// ============================================================================
// Read-Ahead
// ============================================================================

// PrefetchPending returns the number of coordinates waiting in the prefetch
// ring.
func (c *Cache) PrefetchPending() int {
	return c.ring.len()
}

// ReadAhead speculatively reads back up to maxPages recently stored pages,
// newest first, and returns the number of reads issued.
//
// Coordinates whose slot the backend no longer holds, that are already
// cached, or whose region is not initialized are skipped but still use up
// budget, as do reads the backend refuses to queue. The pass stops early
// when the page budget is exhausted. Pages read back are installed with a grace
// of PrefetchGrace so the discharge worker leaves them alone for a while.
func (c *Cache) ReadAhead(ctx context.Context, maxPages int) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}

	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheReadAhead, telemetry.Pages(maxPages))
	defer span.End()

	start := time.Now()
	issued := 0

	for i := 0; i < maxPages; i++ {
		if ctx.Err() != nil {
			break
		}
		coord, ok := c.ring.pop()
		if !ok {
			break
		}
		if !c.backend.SlotInUse(coord.Region, coord.Offset) || c.present(coord) {
			continue
		}

		buf, ok := c.pool.TryGet()
		if !ok {
			c.stats.allocFail.Add(1)
			break
		}

		// Counted as InMemory while the read is pending, but not indexed
		// or queued until it completes.
		e := newEntry(coord.Region, coord.Offset)
		e.data = buf
		c.setState(e, StateInMemory)

		err := c.backend.AsyncRead(coord.Region, coord.Offset, buf, func(err error) {
			c.readDone(e, err)
		})
		if err != nil {
			c.dropPrefetch(e)
			logger.DebugCtx(ctx, "Cache read-ahead submission failed",
				logger.Region(uint32(coord.Region)), logger.Offset(coord.Offset),
				logger.Err(fmt.Errorf("%w: %w", ErrIOSubmission, err)))
			continue
		}
		c.stats.prefetchIssued.Add(1)
		issued++
	}

	elapsed := time.Since(start)
	telemetry.SetAttributes(ctx, telemetry.Issued(issued))
	if c.metrics != nil {
		c.metrics.ObserveReadAhead(maxPages, issued, elapsed)
	}
	return issued, nil
}

// present reports whether the coordinate is cached or its region has no
// index.
func (c *Cache) present(coord Coordinate) bool {
	slot, err := c.slot(coord.Region)
	if err != nil {
		return true
	}
	idx, token := slot.enter()
	defer slot.exit(token)

	return idx == nil || idx.get(coord.Offset) != nil
}

// readDone installs a read-ahead page, or drops it if the read failed or the
// coordinate was claimed in the meantime.
func (c *Cache) readDone(e *entry, err error) {
	c.stats.asyncEndIO.Add(1)
	if err != nil {
		c.stats.asyncEndIOFail.Add(1)
		logger.Debug("Cache read-ahead failed",
			logger.Region(uint32(e.region)), logger.Offset(e.offset),
			logger.Err(fmt.Errorf("%w: %w", ErrIOCompletion, err)))
		e.mu.Lock()
		c.dropPrefetch(e)
		e.mu.Unlock()
		return
	}

	slot := &c.regions[e.region]
	idx, token := slot.enter()
	defer slot.exit(token)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !c.backend.SlotInUse(e.region, e.offset) {
		c.dropPrefetch(e)
		return
	}
	e.touched = c.clock.Now().Add(c.prefetchGrace)
	if err := c.insert(idx, e); err != nil {
		c.stats.insertFail.Add(1)
		logger.Debug("Cache read-ahead page not installed",
			logger.Region(uint32(e.region)), logger.Offset(e.offset), logger.Err(err))
		c.dropPrefetch(e)
		return
	}
	c.queue.touch(e)
}

// dropPrefetch discards an entry that never made it into an index.
func (c *Cache) dropPrefetch(e *entry) {
	c.setState(e, StateInvalid)
	c.release(e)
	c.stats.prefetchDropped.Add(1)
}
