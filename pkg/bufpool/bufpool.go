// Package bufpool provides a bounded pool of fixed-size page buffers.
//
// Every buffer handed out by a Pool has exactly the pool's page size. The
// pool keeps a count of buffers currently outside of it, which lets callers
// enforce a memory budget: TryGet refuses to hand out a buffer once the limit
// is reached, while Get always succeeds. Buffers returned through Put are
// recycled via sync.Pool, so steady-state operation allocates very little.
//
// # Thread Safety
//
// All operations are safe for concurrent use.
//
// # Usage
//
//	pool := bufpool.New(4096, 1024)
//	buf, ok := pool.TryGet()
//	if !ok {
//	    // over budget
//	}
//	defer pool.Put(buf)
package bufpool

import (
	"sync"
	"sync/atomic"
)

// DefaultPageSize is the buffer size used when none is configured (4KB).
const DefaultPageSize = 4 << 10

// Pool hands out page-sized buffers and tracks how many are in use.
type Pool struct {
	size  int
	limit int64
	inUse atomic.Int64
	pool  sync.Pool
}

// New creates a pool of size-byte buffers.
//
// limit caps the number of buffers TryGet hands out at the same time. A limit
// of zero or less means unbounded. A non-positive size selects
// DefaultPageSize.
func New(size int, limit int) *Pool {
	if size <= 0 {
		size = DefaultPageSize
	}
	p := &Pool{
		size:  size,
		limit: int64(limit),
	}
	p.pool = sync.Pool{
		New: func() any {
			buf := make([]byte, p.size)
			return &buf
		},
	}
	return p
}

// Size returns the length of every buffer handed out by the pool.
func (p *Pool) Size() int {
	return p.size
}

// Limit returns the TryGet budget, or zero if the pool is unbounded.
func (p *Pool) Limit() int64 {
	if p.limit < 0 {
		return 0
	}
	return p.limit
}

// InUse returns the number of buffers currently handed out.
func (p *Pool) InUse() int64 {
	return p.inUse.Load()
}

// TryGet returns a buffer if the pool is under its limit.
func (p *Pool) TryGet() ([]byte, bool) {
	if p.limit > 0 {
		for {
			n := p.inUse.Load()
			if n >= p.limit {
				return nil, false
			}
			if p.inUse.CompareAndSwap(n, n+1) {
				break
			}
		}
	} else {
		p.inUse.Add(1)
	}
	return p.take(), true
}

// Get returns a buffer regardless of the limit.
//
// It is meant for callers that must replace a buffer they are handing off,
// where failing would lose data.
func (p *Pool) Get() []byte {
	p.inUse.Add(1)
	return p.take()
}

// Put returns buf to the pool. buf must not be used afterwards.
// Buffers of a different capacity are dropped without being counted.
func (p *Pool) Put(buf []byte) {
	if buf == nil || cap(buf) != p.size {
		return
	}
	p.inUse.Add(-1)
	full := buf[:p.size]
	p.pool.Put(&full)
}

func (p *Pool) take() []byte {
	bufPtr := p.pool.Get().(*[]byte)
	return (*bufPtr)[:p.size]
}
