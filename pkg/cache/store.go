package cache

import (
	"context"
)

// Store caches page for the given coordinate.
//
// The call never waits for device I/O. The coordinate is always remembered
// for ReadAhead, even when the page cannot be cached. On error the page is
// not cached and the caller remains responsible for it:
//   - ErrUnsupportedPage: page is larger than the page size
//   - ErrMapFailure: page is shorter than the page size
//   - ErrAllocationFailure: the page budget is exhausted
//   - ErrRegionNotInitialized: the region has no index
func (c *Cache) Store(ctx context.Context, region RegionID, offset uint64, page []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	slot, err := c.slot(region)
	if err != nil {
		return opError("store", region, offset, err)
	}

	c.stats.stores.Add(1)
	c.ring.push(Coordinate{Region: region, Offset: offset})

	if len(page) > c.pageSize {
		c.stats.unsupported.Add(1)
		return opError("store", region, offset, ErrUnsupportedPage)
	}

	idx, token := slot.enter()
	defer slot.exit(token)

	for {
		done, err := c.storeOnce(idx, region, offset, page)
		if done {
			return err
		}
	}
}

// storeOnce runs one attempt of Store. It returns done=false when a new entry
// lost the race for its offset and the store must be retried against the
// winner.
func (c *Cache) storeOnce(idx *regionIndex, region RegionID, offset uint64, page []byte) (bool, error) {
	e := c.lookupAndLock(idx, offset)
	fresh := e == nil
	if fresh {
		if idx == nil {
			return true, opError("store", region, offset, ErrRegionNotInitialized)
		}
		e = newEntry(region, offset)
		e.mu.Lock()
	}
	defer e.mu.Unlock()

	// Reconcile the previous generation. The buffer of an entry dropping to
	// Invalid is kept for the new data.
	prev := e.state
	c.consume(e)
	if e.state == StateZombie && prev != StateZombie {
		c.stats.overwriteStores.Add(1)
	}

	if len(page) < c.pageSize {
		c.stats.mapFail.Add(1)
		if !fresh {
			c.release(e)
			c.settle(e)
		}
		return true, opError("store", region, offset, ErrMapFailure)
	}

	if e.data == nil || e.shared {
		if fresh {
			buf, ok := c.pool.TryGet()
			if !ok {
				c.stats.allocFail.Add(1)
				return true, opError("store", region, offset, ErrAllocationFailure)
			}
			e.data = buf
		} else {
			// Superseding a generation that is being written back. The old
			// buffer belongs to the write, so the new one cannot be refused.
			e.data = c.pool.Get()
		}
		e.shared = false
	}
	copy(e.data, page)

	switch e.state {
	case StateInvalid:
		c.setState(e, StateInMemory)
	case StateZombie:
		c.setState(e, StateInMemoryFollowedByZombie)
	default:
		panic(&InvariantError{Where: "store", Region: region, Offset: offset, State: e.state})
	}
	e.touched = c.clock.Now()

	if fresh && c.insert(idx, e) != nil {
		// Another Store created the entry meanwhile. Retry against it.
		c.setState(e, StateInvalid)
		c.release(e)
		return false, nil
	}
	c.queue.touch(e)
	return true, nil
}
