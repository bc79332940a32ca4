package cache

import (
	"context"
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/internal/telemetry"
)

// Load copies the page at the given coordinate into dst.
//
// A cached page is served from memory and leaves the cache: the caller owns
// the data from now on. Otherwise the page is read synchronously from the
// backend and the backend is told the slot may be reclaimed. dst must be at
// least one page long.
func (c *Cache) Load(ctx context.Context, region RegionID, offset uint64, dst []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	slot, err := c.slot(region)
	if err != nil {
		return opError("load", region, offset, err)
	}

	c.stats.loads.Add(1)
	c.stats.promoted.Add(1)

	idx, token := slot.enter()
	defer slot.exit(token)

	if e := c.lookupAndLock(idx, offset); e != nil {
		if e.data != nil {
			err := c.loadHit(e, dst)
			e.mu.Unlock()
			return err
		}
		// A Zombie whose newest data was dropped. The device copy is all
		// there is.
		e.mu.Unlock()
	}

	return c.loadMiss(ctx, region, offset, dst)
}

// loadHit serves a cached page. The caller holds e.mu.
func (c *Cache) loadHit(e *entry, dst []byte) error {
	if len(dst) < c.pageSize {
		c.stats.mapFail.Add(1)
		c.consume(e)
		c.settle(e)
		return opError("load", e.region, e.offset, ErrMapFailure)
	}

	copy(dst, e.data)
	c.consume(e)
	c.settle(e)
	return nil
}

func (c *Cache) loadMiss(ctx context.Context, region RegionID, offset uint64, dst []byte) error {
	c.stats.invalidLoads.Add(1)
	c.stats.diskPromoted.Add(1)

	if len(dst) < c.pageSize {
		c.stats.mapFail.Add(1)
		return opError("load", region, offset, ErrMapFailure)
	}

	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheMissRead,
		telemetry.CacheRegion(uint32(region)), telemetry.CacheOffset(offset))
	defer span.End()

	start := time.Now()
	err := c.backend.SyncRead(ctx, region, offset, dst[:c.pageSize])
	if c.metrics != nil {
		c.metrics.ObserveMissRead(time.Since(start), err)
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Cache miss read failed",
			logger.Region(uint32(region)), logger.Offset(offset), logger.Err(err))
		return opError("load", region, offset, err)
	}

	c.backend.NotifySlotFree(region, offset)
	return nil
}

// InvalidatePage drops the cached page at the given coordinate, if any.
// A write-back already in flight still completes.
func (c *Cache) InvalidatePage(region RegionID, offset uint64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	slot, err := c.slot(region)
	if err != nil {
		return opError("invalidate_page", region, offset, err)
	}

	c.stats.invalidatePages.Add(1)

	idx, token := slot.enter()
	defer slot.exit(token)

	e := c.lookupAndLock(idx, offset)
	if e == nil {
		c.stats.invalidInvalidatePages.Add(1)
		return nil
	}
	defer e.mu.Unlock()

	c.consume(e)
	if e.state == StateZombie {
		c.release(e)
	}
	c.settle(e)
	return nil
}
