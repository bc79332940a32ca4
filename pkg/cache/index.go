package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dittoswap/internal/logger"
)

// errOffsetTaken is a lost race for an offset, not a corrupt index.
var errOffsetTaken = errors.New("offset already indexed")

// ============================================================================
// Region Index
// ============================================================================

// regionIndex maps page offsets of one region to their entries.
//
// Invalid entries are never present: an entry is removed in the same entry
// critical section that makes it Invalid.
type regionIndex struct {
	region  RegionID
	mu      sync.RWMutex
	entries map[uint64]*entry
}

func newRegionIndex(region RegionID) *regionIndex {
	return &regionIndex{
		region:  region,
		entries: make(map[uint64]*entry),
	}
}

func (x *regionIndex) get(offset uint64) *entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.entries[offset]
}

// insert adds e and binds it to this index. It fails if the offset is taken.
func (x *regionIndex) insert(e *entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.entries[e.offset]; ok {
		return errOffsetTaken
	}
	x.entries[e.offset] = e
	e.idx = x
	return nil
}

// remove deletes e. It fails if e is not the entry stored at its offset.
func (x *regionIndex) remove(e *entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if cur, ok := x.entries[e.offset]; !ok || cur != e {
		return fmt.Errorf("%w: offset %d holds another entry", ErrIndexCorruption, e.offset)
	}
	delete(x.entries, e.offset)
	return nil
}

func (x *regionIndex) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// snapshot returns the entries present at the time of the call.
func (x *regionIndex) snapshot() []*entry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]*entry, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, e)
	}
	return out
}

// ============================================================================
// Region Slots
// ============================================================================

// regionSlot holds the published index of one region.
//
// mu serializes InitRegion and InvalidateArea for the slot. Readers never take
// it; they go through the quiescer.
type regionSlot struct {
	mu sync.Mutex
	quiescer
}

func (c *Cache) slot(region RegionID) (*regionSlot, error) {
	if region >= MaxRegions {
		return nil, ErrInvalidRegion
	}
	return &c.regions[region], nil
}

// lookupAndLock returns the live entry stored at offset with its lock held,
// or nil. It never returns an Invalid entry.
func (c *Cache) lookupAndLock(idx *regionIndex, offset uint64) *entry {
	if idx == nil {
		return nil
	}
	for {
		e := idx.get(offset)
		if e == nil {
			return nil
		}
		e.mu.Lock()
		if e.state != StateInvalid && e.idx == idx {
			return e
		}
		// Lost a race with the entry's removal. Its slot is either empty or
		// holds a successor now.
		e.mu.Unlock()
	}
}

// insert adds e to idx. It fails with errOffsetTaken when another entry
// got there first, or ErrRegionNotInitialized when the region was torn
// down. The caller holds e.mu.
func (c *Cache) insert(idx *regionIndex, e *entry) error {
	if idx == nil {
		return ErrRegionNotInitialized
	}
	return idx.insert(e)
}

// remove deletes e from the index it was inserted into. Deleting an entry
// that is not indexed is a counted no-op. The caller holds e.mu.
func (c *Cache) remove(e *entry) {
	if e.idx == nil {
		c.stats.deleteFail.Add(1)
		return
	}
	if err := e.idx.remove(e); err != nil {
		c.stats.deleteFail.Add(1)
		logger.Debug("Cache index delete refused",
			logger.Region(uint32(e.region)), logger.Err(err))
	}
}
