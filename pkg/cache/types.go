// Package cache implements a deferred write-back page cache.
//
// Pages evicted by a virtual-memory style client are stored here and kept in
// memory for a grace period before being written lazily to a slower backing
// device. Loads are served from memory while the page is cached and fall
// through to the device otherwise.
package cache

import (
	"context"
	"time"
)

// Defaults for the cache configuration.
const (
	// DefaultPageSize is the size of every cached page.
	DefaultPageSize = 4096

	// DefaultGracePeriod is the minimum time a page stays in memory before it
	// becomes eligible for write-back.
	DefaultGracePeriod = 360 * time.Second

	// DefaultPrefetchGrace is the dwell time granted to pages brought back by
	// ReadAhead, so they are not discharged again right away.
	DefaultPrefetchGrace = 600 * time.Second

	// DefaultPrefetchCapacity is the number of recently stored coordinates
	// remembered for read-ahead (16GiB worth of 4KiB pages).
	DefaultPrefetchCapacity = 1 << (34 - 12)

	// DefaultMinDischargeInterval bounds how often the discharge worker runs
	// when the grace period is very small or zero.
	DefaultMinDischargeInterval = 10 * time.Millisecond

	// MaxRegions is the number of region slots a cache can serve.
	MaxRegions = 32
)

// RegionID identifies an independently addressable backing extent.
type RegionID uint32

// Coordinate addresses one page: a region and a page offset inside it.
type Coordinate struct {
	Region RegionID `json:"region"`
	Offset uint64   `json:"offset"`
}

// ============================================================================
// Entry States
// ============================================================================

// State is the lifecycle state of a cache entry.
type State int32

const (
	// StateInvalid means the coordinate is not cached.
	StateInvalid State = iota

	// StateInMemory means the page is cached and nothing is pending.
	StateInMemory

	// StateInMemoryFollowedByZombie means the page is cached while a
	// write-back of an older generation is still in flight.
	StateInMemoryFollowedByZombie

	// StateInFlight means the current data is being written back and has not
	// been superseded.
	StateInFlight

	// StateZombie means the data was consumed or superseded while its
	// write-back is still in flight. The entry waits for the completion.
	StateZombie
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateInvalid:
		return "Invalid"
	case StateInMemory:
		return "InMemory"
	case StateInMemoryFollowedByZombie:
		return "InMemoryFollowedByZombie"
	case StateInFlight:
		return "InFlight"
	case StateZombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}

// queued reports whether entries in this state belong in the quarantine queue.
func (s State) queued() bool {
	return s == StateInMemory || s == StateInMemoryFollowedByZombie
}

// ============================================================================
// Collaborators
// ============================================================================

// Backend is the backing-store collaborator of the cache.
//
// Async operations must not invoke done synchronously from inside the call,
// and must never invoke it when they return an error.
type Backend interface {
	// SyncRead reads one page into dst, blocking until the data is available.
	SyncRead(ctx context.Context, region RegionID, offset uint64, dst []byte) error

	// AsyncWrite schedules src to be written. src must not be modified until
	// done runs.
	AsyncWrite(region RegionID, offset uint64, src []byte, done func(error)) error

	// AsyncRead schedules a read into dst. dst must not be touched until done
	// runs.
	AsyncRead(region RegionID, offset uint64, dst []byte, done func(error)) error

	// NotifySlotFree tells the device that the slot's content now lives with
	// the caller and may be reclaimed.
	NotifySlotFree(region RegionID, offset uint64)

	// SlotInUse reports whether the device still holds data for the slot.
	SlotInUse(region RegionID, offset uint64) bool
}

// Clock abstracts time for the discharge logic.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
