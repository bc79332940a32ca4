package cache

import (
	"sync"
	"time"
)

// entry is one cached page.
//
// Every field except the quarantine links is guarded by mu. The links and
// queued are guarded by the quarantine lock and are only modified while mu is
// also held, so an entry holder can read queued without the queue lock.
//
// data always holds the newest stored generation. It is nil only in
// StateInvalid, or in StateZombie after the newest generation was discarded.
// When shared is set, data is the same buffer an in-flight write-back holds
// and must not be written to.
type entry struct {
	mu sync.Mutex

	region RegionID
	offset uint64
	idx    *regionIndex

	state   State
	data    []byte
	shared  bool
	touched time.Time

	prev, next *entry
	queued     bool
}

func newEntry(region RegionID, offset uint64) *entry {
	return &entry{region: region, offset: offset}
}

// sameBuffer reports whether a and b share their backing array.
func sameBuffer(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
