package cache

import (
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
)

// zombieWait is the poll interval while teardown waits for write-backs.
const zombieWait = time.Millisecond

// InitRegion publishes an empty index for region. Until it is called, stores
// to the region are refused and loads go straight to the backend.
func (c *Cache) InitRegion(region RegionID) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	slot, err := c.slot(region)
	if err != nil {
		return opError("init_region", region, 0, err)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	c.stats.inits.Add(1)
	if slot.published() != nil {
		return opError("init_region", region, 0, ErrRegionExists)
	}
	slot.publish(newRegionIndex(region))

	logger.Debug("Cache region initialized", logger.Region(uint32(region)))
	return nil
}

// InvalidateArea tears region down.
//
// The index is unpublished first, so new operations on the region see it as
// uninitialized. Once every operation that could still use the old index has
// returned, all of its entries are drained. Entries with a write-back in
// flight are reclaimed by the write's completion, and InvalidateArea waits
// for that before returning. Tearing down a region that is not initialized is
// a no-op.
func (c *Cache) InvalidateArea(region RegionID) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	slot, err := c.slot(region)
	if err != nil {
		return opError("invalidate_area", region, 0, err)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	c.stats.invalidateAreas.Add(1)

	idx := slot.detach()
	if idx == nil {
		return nil
	}

	start := time.Now()
	drained := c.drain(idx)

	logger.Debug("Cache region torn down",
		logger.Region(uint32(region)),
		logger.Pages(drained),
		logger.DurationMs(float64(time.Since(start).Microseconds())/1000.0))
	return nil
}

// Initialized reports whether region currently has an index.
func (c *Cache) Initialized(region RegionID) bool {
	slot, err := c.slot(region)
	if err != nil {
		return false
	}
	return slot.published() != nil
}

// Regions returns the ids of the initialized regions.
func (c *Cache) Regions() []RegionID {
	var out []RegionID
	for i := range c.regions {
		if c.regions[i].published() != nil {
			out = append(out, RegionID(i))
		}
	}
	return out
}

// drain force-consumes every entry of a detached index and waits until the
// remaining zombies are reclaimed. It returns the number of entries drained.
func (c *Cache) drain(idx *regionIndex) int {
	drained := 0
	for {
		for _, e := range idx.snapshot() {
			e.mu.Lock()
			if e.state != StateInvalid {
				if e.state != StateZombie {
					drained++
				}
				c.consume(e)
				if e.state == StateZombie {
					c.release(e)
				}
				if c.settle(e) {
					c.stats.quarantineDeleteStale.Add(1)
				}
			}
			e.mu.Unlock()
		}

		if idx.len() == 0 {
			return drained
		}
		time.Sleep(zombieWait)
	}
}
