package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so logs from the
// cache, the backing devices and the control plane can be queried together.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Page Addressing
	// ========================================================================
	KeyRegion = "region" // Backing region id
	KeyOffset = "offset" // Page offset inside the region
	KeyPages  = "pages"  // Number of pages involved

	// ========================================================================
	// Cache State
	// ========================================================================
	KeyGrace   = "grace"   // Grace period before write-back
	KeyScanned = "scanned" // Entries examined by a discharge pass
	KeyIssued  = "issued"  // Asynchronous I/Os issued by a pass

	// ========================================================================
	// Backing Device
	// ========================================================================
	KeyDevice     = "device"      // Device type: memory, fs, s3, badger, sql
	KeyPath       = "path"        // Filesystem path of a device or config file
	KeyBucket     = "bucket"      // Object storage bucket
	KeyWorkers    = "workers"     // Dispatcher worker count
	KeyQueueDepth = "queue_depth" // Dispatcher submission queue depth

	// ========================================================================
	// Control Plane
	// ========================================================================
	KeyOperation = "operation"  // Operation name
	KeyRequestID = "request_id" // HTTP request id
	KeySubject   = "subject"    // Token subject of an API caller
	KeyRole      = "role"       // Token role of an API caller
	KeyClientIP  = "client_ip"  // Client IP address
	KeyMethod    = "method"     // HTTP method
	KeyStatus    = "status"     // HTTP status code
	KeyAddr      = "addr"       // Listen address
	KeyInstance  = "instance"   // Daemon instance id

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// ----------------------------------------------------------------------------
// Page Addressing
// ----------------------------------------------------------------------------

// Region returns a slog.Attr for a region id
func Region(r uint32) slog.Attr {
	return slog.Uint64(KeyRegion, uint64(r))
}

// Offset returns a slog.Attr for a page offset
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Pages returns a slog.Attr for a page count
func Pages(n int) slog.Attr {
	return slog.Int(KeyPages, n)
}

// ----------------------------------------------------------------------------
// Cache State
// ----------------------------------------------------------------------------

// Grace returns a slog.Attr for a grace period
func Grace(d time.Duration) slog.Attr {
	return slog.String(KeyGrace, d.String())
}

func Scanned(n int) slog.Attr {
	return slog.Int(KeyScanned, n)
}

func Issued(n int) slog.Attr {
	return slog.Int(KeyIssued, n)
}

// ----------------------------------------------------------------------------
// Backing Device
// ----------------------------------------------------------------------------

// Device returns a slog.Attr for the device type
func Device(name string) slog.Attr {
	return slog.String(KeyDevice, name)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Bucket returns a slog.Attr for an object storage bucket
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

func Workers(n int) slog.Attr {
	return slog.Int(KeyWorkers, n)
}

func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// ----------------------------------------------------------------------------
// Control Plane
// ----------------------------------------------------------------------------

// Operation returns a slog.Attr for an operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Subject returns a slog.Attr for the token subject of an API caller
func Subject(s string) slog.Attr {
	return slog.String(KeySubject, s)
}

// Role returns a slog.Attr for the token role of an API caller
func Role(r string) slog.Attr {
	return slog.String(KeyRole, r)
}

// ClientIP returns a slog.Attr for the client address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Method returns a slog.Attr for an HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// Addr returns a slog.Attr for a listen address
func Addr(addr string) slog.Attr {
	return slog.String(KeyAddr, addr)
}

// Instance returns a slog.Attr for the daemon instance id
func Instance(id string) slog.Attr {
	return slog.String(KeyInstance, id)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
