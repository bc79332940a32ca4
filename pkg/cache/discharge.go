package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/internal/telemetry"
)

// ============================================================================
// Discharge Worker
// ============================================================================

// run is the discharge loop. It executes a pass, then sleeps for half the
// grace period, bounded below by the minimum interval.
func (c *Cache) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.discharge(ctx)

		timer := time.NewTimer(c.dischargeInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug("Cache discharge worker stopped")
			return
		case <-c.kick:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (c *Cache) dischargeInterval() time.Duration {
	interval := c.GracePeriod() / 2
	if interval < c.minInterval {
		interval = c.minInterval
	}
	return interval
}

// discharge runs one instrumented pass.
func (c *Cache) discharge(ctx context.Context) {
	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheDischarge)
	defer span.End()

	start := time.Now()
	scanned, issued := c.dischargePass(ctx)
	elapsed := time.Since(start)

	c.stats.dischargePasses.Add(1)
	telemetry.SetAttributes(ctx, telemetry.Scanned(scanned), telemetry.Issued(issued))
	if c.metrics != nil {
		c.metrics.ObserveDischargePass(scanned, issued, elapsed)
	}
	if issued > 0 {
		logger.DebugCtx(ctx, "Cache discharge pass",
			logger.Scanned(scanned),
			logger.Issued(issued),
			logger.DurationMs(float64(elapsed.Microseconds())/1000.0))
	}
}

// dischargePass scans at most as many entries as were queued when it
// started. Entries that are not yet due go back to the tail with their
// timestamp unchanged.
func (c *Cache) dischargePass(ctx context.Context) (scanned, issued int) {
	budget := c.queue.Len()
	grace := c.GracePeriod()

	for ; budget > 0; budget-- {
		e := c.queue.claimHead(ctx)
		if e == nil {
			break
		}
		scanned++

		switch e.state {
		case StateInMemoryFollowedByZombie:
			c.stats.quarantineSkipMemZombie.Add(1)
			c.queue.touch(e)
			e.mu.Unlock()

		case StateInMemory:
			if c.clock.Now().Sub(e.touched) < grace {
				c.queue.touch(e)
				e.mu.Unlock()
				continue
			}
			c.setState(e, StateInFlight)
			e.shared = true
			buf := e.data
			e.mu.Unlock()

			c.writeBack(e, buf)
			issued++

		default:
			state := e.state
			e.mu.Unlock()
			panic(&InvariantError{Where: "discharge", Region: e.region, Offset: e.offset, State: state})
		}
	}
	return scanned, issued
}

// writeBack submits buf for e. On a synchronous submission failure the entry
// is reverted from whatever state it reached while unlocked.
func (c *Cache) writeBack(e *entry, buf []byte) {
	c.stats.asyncIO.Add(1)

	err := c.backend.AsyncWrite(e.region, e.offset, buf, func(err error) {
		c.writeDone(e, buf, err)
	})
	if err == nil {
		return
	}

	c.stats.asyncIOFail.Add(1)
	logger.Warn("Cache write-back submission failed",
		logger.Region(uint32(e.region)), logger.Offset(e.offset),
		logger.Err(fmt.Errorf("%w: %w", ErrIOSubmission, err)))

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateInFlight:
		c.setState(e, StateInMemory)
		e.shared = false
		c.queue.touch(e)
	case StateInMemoryFollowedByZombie:
		// The old generation was never written. The newer one is still
		// queued.
		c.pool.Put(buf)
		c.setState(e, StateInMemory)
	case StateZombie:
		c.reclaim(e, buf)
	default:
		panic(&InvariantError{Where: "write-back submit", Region: e.region, Offset: e.offset, State: e.state})
	}
}

// writeDone is the completion of a write-back of buf.
func (c *Cache) writeDone(e *entry, buf []byte, err error) {
	c.stats.asyncEndIO.Add(1)
	if err != nil {
		c.stats.asyncEndIOFail.Add(1)
		logger.Warn("Cache write-back failed",
			logger.Region(uint32(e.region)), logger.Offset(e.offset),
			logger.Err(fmt.Errorf("%w: %w", ErrIOCompletion, err)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateInMemoryFollowedByZombie:
		c.pool.Put(buf)
		c.setState(e, StateInMemory)
		c.queue.touch(e)

	case StateInFlight:
		if err != nil {
			// Keep the page and retry on a later pass.
			c.setState(e, StateInMemory)
			e.shared = false
			c.queue.touch(e)
			return
		}
		e.data, e.shared = nil, false
		c.pool.Put(buf)
		c.setState(e, StateInvalid)
		c.remove(e)

	case StateZombie:
		c.reclaim(e, buf)

	default:
		panic(&InvariantError{Where: "write-back completion", Region: e.region, Offset: e.offset, State: e.state})
	}
}

// reclaim frees a Zombie whose write-back of buf is over. The caller holds
// e.mu.
func (c *Cache) reclaim(e *entry, buf []byte) {
	if !sameBuffer(e.data, buf) {
		c.release(e)
	}
	e.data, e.shared = nil, false
	c.pool.Put(buf)
	c.setState(e, StateInvalid)
	c.remove(e)
}
