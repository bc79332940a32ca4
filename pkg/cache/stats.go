package cache

import "sync/atomic"

// ============================================================================
// Cache Statistics
// ============================================================================

// Stats is a point-in-time snapshot of every cache counter.
//
// The first five fields are gauges describing the current population. The
// rest are cumulative event counters, except PromotedPages and
// DiskPromotedPages which are reset whenever they are taken through
// TakePromoted and TakeDiskPromoted.
type Stats struct {
	ZombiePages             int64 `json:"nr_zombie_page" yaml:"nr_zombie_page"`
	InMemoryPages           int64 `json:"nr_in_memory_page" yaml:"nr_in_memory_page"`
	InMemoryZombiePages     int64 `json:"nr_in_memory_zombie_page" yaml:"nr_in_memory_zombie_page"`
	InFlightPages           int64 `json:"nr_in_flight_page" yaml:"nr_in_flight_page"`
	QuarantineLength        int64 `json:"len_quarantine_list" yaml:"len_quarantine_list"`
	AsyncIO                 int64 `json:"nr_async_io" yaml:"nr_async_io"`
	AsyncEndIO              int64 `json:"nr_async_end_io" yaml:"nr_async_end_io"`
	AsyncIOFail             int64 `json:"nr_async_io_fail" yaml:"nr_async_io_fail"`
	AsyncEndIOFail          int64 `json:"nr_async_end_io_fail" yaml:"nr_async_end_io_fail"`
	UnsupportedPages        int64 `json:"nr_thp" yaml:"nr_thp"`
	AllocFail               int64 `json:"nr_malloc_fail" yaml:"nr_malloc_fail"`
	MapFail                 int64 `json:"nr_kmap_fail" yaml:"nr_kmap_fail"`
	IndexInsertFail         int64 `json:"nr_radix_tree_insert_fail" yaml:"nr_radix_tree_insert_fail"`
	IndexDeleteFail         int64 `json:"nr_radix_tree_delete_fail" yaml:"nr_radix_tree_delete_fail"`
	Stores                  int64 `json:"nr_store" yaml:"nr_store"`
	Loads                   int64 `json:"nr_load" yaml:"nr_load"`
	InvalidLoads            int64 `json:"nr_invalid_load" yaml:"nr_invalid_load"`
	OverwriteStores         int64 `json:"nr_overwrite_store" yaml:"nr_overwrite_store"`
	InvalidatePages         int64 `json:"nr_invalidate_page" yaml:"nr_invalidate_page"`
	InvalidInvalidatePages  int64 `json:"nr_invalid_invalidate_page" yaml:"nr_invalid_invalidate_page"`
	InvalidateAreas         int64 `json:"nr_invalidate_area" yaml:"nr_invalidate_area"`
	Inits                   int64 `json:"nr_init" yaml:"nr_init"`
	QuarantineDeleteStale   int64 `json:"nr_quarantine_delete_stale" yaml:"nr_quarantine_delete_stale"`
	QuarantineSkipMemZombie int64 `json:"nr_quarantine_skip_mem_zombie" yaml:"nr_quarantine_skip_mem_zombie"`
	PromotedPages           int64 `json:"nr_promoted_page" yaml:"nr_promoted_page"`
	DiskPromotedPages       int64 `json:"nr_disk_promoted_page" yaml:"nr_disk_promoted_page"`
	PrefetchIssued          int64 `json:"nr_prefetch_issued" yaml:"nr_prefetch_issued"`
	PrefetchDropped         int64 `json:"nr_prefetch_dropped" yaml:"nr_prefetch_dropped"`
	DischargePasses         int64 `json:"nr_discharge_pass" yaml:"nr_discharge_pass"`
}

// Fields returns the snapshot as ordered name/value pairs using the
// canonical counter names.
func (s Stats) Fields() []StatField {
	return []StatField{
		{"nr_zombie_page", s.ZombiePages},
		{"nr_in_memory_page", s.InMemoryPages},
		{"nr_in_memory_zombie_page", s.InMemoryZombiePages},
		{"nr_in_flight_page", s.InFlightPages},
		{"len_quarantine_list", s.QuarantineLength},
		{"nr_async_io", s.AsyncIO},
		{"nr_async_end_io", s.AsyncEndIO},
		{"nr_async_io_fail", s.AsyncIOFail},
		{"nr_async_end_io_fail", s.AsyncEndIOFail},
		{"nr_thp", s.UnsupportedPages},
		{"nr_malloc_fail", s.AllocFail},
		{"nr_kmap_fail", s.MapFail},
		{"nr_radix_tree_insert_fail", s.IndexInsertFail},
		{"nr_radix_tree_delete_fail", s.IndexDeleteFail},
		{"nr_store", s.Stores},
		{"nr_load", s.Loads},
		{"nr_invalid_load", s.InvalidLoads},
		{"nr_overwrite_store", s.OverwriteStores},
		{"nr_invalidate_page", s.InvalidatePages},
		{"nr_invalid_invalidate_page", s.InvalidInvalidatePages},
		{"nr_invalidate_area", s.InvalidateAreas},
		{"nr_init", s.Inits},
		{"nr_quarantine_delete_stale", s.QuarantineDeleteStale},
		{"nr_quarantine_skip_mem_zombie", s.QuarantineSkipMemZombie},
		{"nr_promoted_page", s.PromotedPages},
		{"nr_disk_promoted_page", s.DiskPromotedPages},
		{"nr_prefetch_issued", s.PrefetchIssued},
		{"nr_prefetch_dropped", s.PrefetchDropped},
		{"nr_discharge_pass", s.DischargePasses},
	}
}

// StatField is one named counter value.
type StatField struct {
	Name  string
	Value int64
}

// Gauge reports whether the named counter describes current population
// rather than accumulated events.
func Gauge(name string) bool {
	switch name {
	case "nr_zombie_page", "nr_in_memory_page", "nr_in_memory_zombie_page",
		"nr_in_flight_page", "len_quarantine_list":
		return true
	}
	return false
}

// counters holds the live statistics.
type counters struct {
	zombie         atomic.Int64
	inMemory       atomic.Int64
	inMemoryZombie atomic.Int64
	inFlight       atomic.Int64

	asyncIO        atomic.Int64
	asyncEndIO     atomic.Int64
	asyncIOFail    atomic.Int64
	asyncEndIOFail atomic.Int64

	unsupported atomic.Int64
	allocFail   atomic.Int64
	mapFail     atomic.Int64
	insertFail  atomic.Int64
	deleteFail  atomic.Int64

	stores          atomic.Int64
	loads           atomic.Int64
	invalidLoads    atomic.Int64
	overwriteStores atomic.Int64

	invalidatePages        atomic.Int64
	invalidInvalidatePages atomic.Int64
	invalidateAreas        atomic.Int64
	inits                  atomic.Int64

	quarantineDeleteStale   atomic.Int64
	quarantineSkipMemZombie atomic.Int64

	promoted     atomic.Int64
	diskPromoted atomic.Int64

	prefetchIssued  atomic.Int64
	prefetchDropped atomic.Int64
	dischargePasses atomic.Int64
}

// gauge returns the population counter for a state, nil for StateInvalid.
func (c *counters) gauge(s State) *atomic.Int64 {
	switch s {
	case StateInMemory:
		return &c.inMemory
	case StateInMemoryFollowedByZombie:
		return &c.inMemoryZombie
	case StateInFlight:
		return &c.inFlight
	case StateZombie:
		return &c.zombie
	default:
		return nil
	}
}

// move accounts for an entry changing from one state to another.
func (c *counters) move(from, to State) {
	if from == to {
		return
	}
	if g := c.gauge(from); g != nil {
		g.Add(-1)
	}
	if g := c.gauge(to); g != nil {
		g.Add(1)
	}
}

// reset clears the event counters. Gauges and the reset-on-read pair are
// left alone.
func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.asyncIO, &c.asyncEndIO, &c.asyncIOFail, &c.asyncEndIOFail,
		&c.unsupported, &c.allocFail, &c.mapFail, &c.insertFail, &c.deleteFail,
		&c.stores, &c.loads, &c.invalidLoads, &c.overwriteStores,
		&c.invalidatePages, &c.invalidInvalidatePages, &c.invalidateAreas, &c.inits,
		&c.quarantineDeleteStale, &c.quarantineSkipMemZombie,
		&c.prefetchIssued, &c.prefetchDropped, &c.dischargePasses,
	} {
		v.Store(0)
	}
}

// Stats returns a snapshot of all counters without resetting anything.
func (c *Cache) Stats() Stats {
	s := &c.stats
	return Stats{
		ZombiePages:             s.zombie.Load(),
		InMemoryPages:           s.inMemory.Load(),
		InMemoryZombiePages:     s.inMemoryZombie.Load(),
		InFlightPages:           s.inFlight.Load(),
		QuarantineLength:        c.queue.Len(),
		AsyncIO:                 s.asyncIO.Load(),
		AsyncEndIO:              s.asyncEndIO.Load(),
		AsyncIOFail:             s.asyncIOFail.Load(),
		AsyncEndIOFail:          s.asyncEndIOFail.Load(),
		UnsupportedPages:        s.unsupported.Load(),
		AllocFail:               s.allocFail.Load(),
		MapFail:                 s.mapFail.Load(),
		IndexInsertFail:         s.insertFail.Load(),
		IndexDeleteFail:         s.deleteFail.Load(),
		Stores:                  s.stores.Load(),
		Loads:                   s.loads.Load(),
		InvalidLoads:            s.invalidLoads.Load(),
		OverwriteStores:         s.overwriteStores.Load(),
		InvalidatePages:         s.invalidatePages.Load(),
		InvalidInvalidatePages:  s.invalidInvalidatePages.Load(),
		InvalidateAreas:         s.invalidateAreas.Load(),
		Inits:                   s.inits.Load(),
		QuarantineDeleteStale:   s.quarantineDeleteStale.Load(),
		QuarantineSkipMemZombie: s.quarantineSkipMemZombie.Load(),
		PromotedPages:           s.promoted.Load(),
		DiskPromotedPages:       s.diskPromoted.Load(),
		PrefetchIssued:          s.prefetchIssued.Load(),
		PrefetchDropped:         s.prefetchDropped.Load(),
		DischargePasses:         s.dischargePasses.Load(),
	}
}

// ResetStats clears every cumulative event counter. Population gauges and
// the two promotion counters are not affected.
func (c *Cache) ResetStats() {
	c.stats.reset()
}

// TakePromoted returns the number of pages served since the previous call
// and resets the counter.
func (c *Cache) TakePromoted() int64 {
	return c.stats.promoted.Swap(0)
}

// TakeDiskPromoted returns the number of pages served from the backing
// device since the previous call and resets the counter.
func (c *Cache) TakeDiskPromoted() int64 {
	return c.stats.diskPromoted.Swap(0)
}
