// Package memory provides an in-process backing device. It is used by tests
// and by the bench command, optionally with an injected per-operation
// latency to imitate a slow disk.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/cache"
)

// Config configures a memory device.
type Config struct {
	// PageSize is the page size. Default: cache.DefaultPageSize.
	PageSize int `mapstructure:"-" yaml:"-"`

	// Latency is slept before every read and write.
	Latency time.Duration `mapstructure:"latency" yaml:"latency"`
}

// Device keeps pages in a map.
type Device struct {
	pageSize int
	latency  time.Duration

	mu     sync.RWMutex
	pages  map[cache.Coordinate][]byte
	closed bool
}

var _ backing.Device = (*Device)(nil)

// New returns an empty memory device.
func New(cfg Config) *Device {
	if cfg.PageSize <= 0 {
		cfg.PageSize = cache.DefaultPageSize
	}
	return &Device{
		pageSize: cfg.PageSize,
		latency:  cfg.Latency,
		pages:    make(map[cache.Coordinate][]byte),
	}
}

func (d *Device) Kind() string  { return "memory" }
func (d *Device) PageSize() int { return d.pageSize }

func (d *Device) wait(ctx context.Context) error {
	if d.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReadPage copies the stored page into dst.
func (d *Device) ReadPage(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error {
	if err := backing.CheckPage(dst, d.pageSize); err != nil {
		return err
	}
	if err := d.wait(ctx); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return backing.ErrDeviceClosed
	}
	page, ok := d.pages[cache.Coordinate{Region: region, Offset: offset}]
	if !ok {
		return backing.ErrSlotNotFound
	}
	copy(dst, page)
	return nil
}

// WritePage stores a copy of src.
func (d *Device) WritePage(ctx context.Context, region cache.RegionID, offset uint64, src []byte) error {
	if err := backing.CheckPage(src, d.pageSize); err != nil {
		return err
	}
	if err := d.wait(ctx); err != nil {
		return err
	}
	page := append([]byte(nil), src[:d.pageSize]...)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backing.ErrDeviceClosed
	}
	d.pages[cache.Coordinate{Region: region, Offset: offset}] = page
	return nil
}

func (d *Device) FreePage(_ context.Context, region cache.RegionID, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backing.ErrDeviceClosed
	}
	delete(d.pages, cache.Coordinate{Region: region, Offset: offset})
	return nil
}

func (d *Device) SlotInUse(region cache.RegionID, offset uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.pages[cache.Coordinate{Region: region, Offset: offset}]
	return ok
}

// Len returns the number of stored pages.
func (d *Device) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pages)
}

func (d *Device) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return backing.ErrDeviceClosed
	}
	return nil
}

// Close drops every page.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.pages = nil
	return nil
}
