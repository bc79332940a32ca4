package cache

import (
	"errors"
	"fmt"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrAllocationFailure is returned when no memory could be reserved for a
	// page. The page stays uncached and the caller keeps the authoritative copy.
	ErrAllocationFailure = errors.New("page allocation failed")

	// ErrUnsupportedPage is returned for pages larger than the configured page
	// size. The caller must store them on the backing device directly.
	ErrUnsupportedPage = errors.New("unsupported page")

	// ErrIndexCorruption is returned when a region index delete finds
	// another entry at the offset.
	ErrIndexCorruption = errors.New("region index corruption")

	// ErrIOSubmission is returned when an asynchronous I/O could not be queued.
	ErrIOSubmission = errors.New("I/O submission failed")

	// ErrIOCompletion marks an asynchronous I/O that completed with an error.
	ErrIOCompletion = errors.New("I/O completion failed")

	// ErrMapFailure is returned when page data could not be copied between the
	// caller's buffer and the cache.
	ErrMapFailure = errors.New("page copy failed")

	// ErrRegionNotInitialized is returned when a region has no index, either
	// because InitRegion was never called or because it was torn down.
	ErrRegionNotInitialized = errors.New("region not initialized")

	// ErrRegionExists is returned by InitRegion for a region that is live.
	ErrRegionExists = errors.New("region already initialized")

	// ErrInvalidRegion is returned for region ids outside [0, MaxRegions).
	ErrInvalidRegion = errors.New("invalid region")

	// ErrInvalidGracePeriod is returned for negative grace periods.
	ErrInvalidGracePeriod = errors.New("grace period must not be negative")

	// ErrCacheClosed is returned when operations are attempted on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")
)

// OpError records a failed cache operation and the coordinate it targeted.
type OpError struct {
	Op     string
	Region RegionID
	Offset uint64
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s region=%d offset=%d: %v", e.Op, e.Region, e.Offset, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op string, region RegionID, offset uint64, err error) error {
	return &OpError{Op: op, Region: region, Offset: offset, Err: err}
}

// InvariantError is the panic value raised when an entry is observed in a
// state that the state machine can never produce at that point.
type InvariantError struct {
	Where  string
	Region RegionID
	Offset uint64
	State  State
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("cache invariant violated in %s: region=%d offset=%d state=%s",
		e.Where, e.Region, e.Offset, e.State)
}
