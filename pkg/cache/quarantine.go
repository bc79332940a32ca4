package cache

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// quarantine is the global queue of entries waiting for write-back.
//
// It is an intrusive doubly linked list threaded through the entries. Entries
// are appended at the tail when touched, and the discharge worker consumes
// from the head. The length is kept in an atomic so it can be read without
// the lock.
type quarantine struct {
	mu     sync.Mutex
	head   *entry
	tail   *entry
	length atomic.Int64
}

// Len returns the number of queued entries.
func (q *quarantine) Len() int64 {
	return q.length.Load()
}

// touch moves e to the tail, enqueueing it if needed. The caller holds e.mu.
func (q *quarantine) touch(e *entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e.queued {
		q.unlink(e)
	}
	q.pushBack(e)
}

// remove dequeues e and reports whether it was queued. The caller holds e.mu.
func (q *quarantine) remove(e *entry) bool {
	if !e.queued {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.unlink(e)
	return true
}

// claimHead dequeues the head entry and returns it locked.
//
// The queue lock is held while the entry lock is tried, which reverses the
// usual order, so only a try-lock is attempted. On contention the queue lock
// is released and the head is tried again. It returns nil when the queue is
// empty or ctx is done.
func (q *quarantine) claimHead(ctx context.Context) *entry {
	for {
		q.mu.Lock()
		e := q.head
		if e == nil {
			q.mu.Unlock()
			return nil
		}
		if e.mu.TryLock() {
			q.unlink(e)
			q.mu.Unlock()
			return e
		}
		q.mu.Unlock()

		if ctx.Err() != nil {
			return nil
		}
		runtime.Gosched()
	}
}

func (q *quarantine) pushBack(e *entry) {
	e.prev = q.tail
	e.next = nil
	if q.tail != nil {
		q.tail.next = e
	} else {
		q.head = e
	}
	q.tail = e
	e.queued = true
	q.length.Add(1)
}

func (q *quarantine) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		q.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		q.tail = e.prev
	}
	e.prev, e.next = nil, nil
	e.queued = false
	q.length.Add(-1)
}
