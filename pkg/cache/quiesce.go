package cache

import (
	"sync/atomic"
	"time"
)

// quiescer publishes a region index to lock-free readers and lets a single
// writer detach it and wait until no reader can still be using it.
//
// Readers register in the counter of the current epoch parity. A writer
// unpublishes the index, flips the epoch and waits for the counter of the
// previous parity to drain. Readers that race with the flip notice it on
// their re-check and register again under the new parity, where they can only
// observe the detached (nil) pointer.
type quiescer struct {
	index  atomic.Pointer[regionIndex]
	epoch  atomic.Uint32
	active [2]atomic.Int64
}

// enter registers a reader and returns the published index, which may be
// nil. The returned token must be passed to exit.
func (q *quiescer) enter() (*regionIndex, uint32) {
	for {
		ep := q.epoch.Load() & 1
		q.active[ep].Add(1)
		if q.epoch.Load()&1 == ep {
			return q.index.Load(), ep
		}
		q.active[ep].Add(-1)
	}
}

func (q *quiescer) exit(token uint32) {
	q.active[token].Add(-1)
}

// publish installs idx. Callers serialize publish and detach.
func (q *quiescer) publish(idx *regionIndex) {
	q.index.Store(idx)
}

// published returns the current index without registering as a reader.
func (q *quiescer) published() *regionIndex {
	return q.index.Load()
}

// detach unpublishes the index and returns it once every reader that could
// have observed it has exited.
func (q *quiescer) detach() *regionIndex {
	old := q.index.Swap(nil)
	prev := (q.epoch.Add(1) - 1) & 1
	for q.active[prev].Load() > 0 {
		time.Sleep(50 * time.Microsecond)
	}
	return old
}
