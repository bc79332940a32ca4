package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Cache keys use the "cache." prefix, backing device keys
// "device.", and control-plane keys follow OpenTelemetry HTTP conventions.
const (
	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheRegion  = "cache.region"
	AttrCacheOffset  = "cache.offset"
	AttrCachePages   = "cache.pages"
	AttrCacheScanned = "cache.scanned"
	AttrCacheIssued  = "cache.issued"

	// ========================================================================
	// Backing device attributes
	// ========================================================================
	AttrDeviceType = "device.type"
	AttrBucket     = "storage.bucket"
	AttrKey        = "storage.key"

	// ========================================================================
	// Control plane attributes
	// ========================================================================
	AttrClientIP   = "client.address"
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"
)

// Span names. Format: <component>.<operation>
const (
	SpanCacheMissRead  = "cache.miss_read"
	SpanCacheDischarge = "cache.discharge"
	SpanCacheReadAhead = "cache.read_ahead"

	SpanDeviceRead  = "device.read"
	SpanDeviceWrite = "device.write"
	SpanDeviceFree  = "device.free"

	SpanAPIRequest = "api.request"
)

// ----------------------------------------------------------------------------
// Cache attribute helpers
// ----------------------------------------------------------------------------

// CacheRegion returns an attribute for the region id
func CacheRegion(region uint32) attribute.KeyValue {
	return attribute.Int64(AttrCacheRegion, int64(region))
}

// CacheOffset returns an attribute for the page offset
func CacheOffset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrCacheOffset, int64(offset))
}

func Pages(n int) attribute.KeyValue {
	return attribute.Int(AttrCachePages, n)
}

func Scanned(n int) attribute.KeyValue {
	return attribute.Int(AttrCacheScanned, n)
}

func Issued(n int) attribute.KeyValue {
	return attribute.Int(AttrCacheIssued, n)
}

// ----------------------------------------------------------------------------
// Device attribute helpers
// ----------------------------------------------------------------------------

// DeviceType returns an attribute for the backing device kind
func DeviceType(kind string) attribute.KeyValue {
	return attribute.String(AttrDeviceType, kind)
}

// Bucket returns an attribute for an object storage bucket
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// ----------------------------------------------------------------------------
// Control plane attribute helpers
// ----------------------------------------------------------------------------

// ClientIP returns an attribute for the client address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// HTTPRoute returns an attribute for the matched route pattern
func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

// HTTPMethod returns an attribute for the request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPStatus returns an attribute for the response status code
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// ----------------------------------------------------------------------------
// Span starters
// ----------------------------------------------------------------------------

// StartCacheSpan starts a span named name (one of the SpanCache constants).
func StartCacheSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// StartDeviceSpan starts a span for a backing device operation on region
// and offset.
func StartDeviceSpan(ctx context.Context, name, kind string, region uint32, offset uint64) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(
		DeviceType(kind),
		CacheRegion(region),
		CacheOffset(offset),
	))
}

// StartAPISpan starts a server span for a control plane request. route is
// the raw path until the router has matched a pattern.
func StartAPISpan(ctx context.Context, method, route, clientIP string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanAPIRequest,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(HTTPMethod(method), HTTPRoute(route), ClientIP(clientIP)),
	)
}
