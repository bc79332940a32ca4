// Package backing provides the slow tier behind the page cache.
//
// A Device stores pages synchronously, one slot per (region, offset). The
// Dispatcher turns a Device into the cache's asynchronous Backend with a
// bounded submission queue and a pool of I/O workers. Device implementations
// live in subpackages: memory, fs, s3, badger and sql.
package backing

import (
	"context"
	"errors"

	"github.com/marmos91/dittoswap/pkg/cache"
)

var (
	// ErrSlotNotFound is returned by ReadPage for a slot that holds no data.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrDeviceClosed is returned by operations on a closed device or
	// dispatcher.
	ErrDeviceClosed = errors.New("device is closed")

	// ErrQueueFull is returned when an asynchronous submission finds the
	// dispatcher queue full. The cache treats it as a submission failure.
	ErrQueueFull = errors.New("submission queue full")

	// ErrShortPage is returned when a buffer is smaller than the device page
	// size.
	ErrShortPage = errors.New("buffer shorter than page size")
)

// Device is a synchronous page store addressed by region and page offset.
//
// Every implementation starts empty: pages written by an earlier process
// are discarded when the device is opened. Implementations must be safe for
// concurrent use; the dispatcher orders operations on the same slot.
type Device interface {
	// Kind returns the device type name (memory, fs, s3, badger, sql).
	Kind() string

	// PageSize returns the size of every page the device stores.
	PageSize() int

	// ReadPage copies the page at (region, offset) into dst. It returns
	// ErrSlotNotFound if the slot was never written or has been freed.
	ReadPage(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error

	// WritePage stores src at (region, offset), replacing any previous page.
	WritePage(ctx context.Context, region cache.RegionID, offset uint64, src []byte) error

	// FreePage releases the slot. Freeing an empty slot is not an error.
	FreePage(ctx context.Context, region cache.RegionID, offset uint64) error

	// SlotInUse reports whether the slot currently holds a page.
	SlotInUse(region cache.RegionID, offset uint64) bool

	// HealthCheck verifies the device can serve requests.
	HealthCheck(ctx context.Context) error

	// Close releases the device's resources.
	Close() error
}

// CheckPage validates a page buffer against the device page size.
func CheckPage(buf []byte, pageSize int) error {
	if len(buf) < pageSize {
		return ErrShortPage
	}
	return nil
}
