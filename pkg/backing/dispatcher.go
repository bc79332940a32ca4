package backing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/internal/telemetry"
	"github.com/marmos91/dittoswap/pkg/cache"
)

// Defaults for DispatcherOptions.
const (
	DefaultWorkers    = 4
	DefaultQueueDepth = 256
)

// Operation names reported to DispatcherMetrics and spans.
const (
	OpRead  = "read"
	OpWrite = "write"
	OpFree  = "free"
)

// DispatcherMetrics observes device I/O issued through a Dispatcher.
type DispatcherMetrics interface {
	// ObserveIO records one device operation, its latency and outcome.
	ObserveIO(op string, d time.Duration, err error)

	// SetQueueDepth records the number of queued operations.
	SetQueueDepth(n int)
}

// DispatcherOptions configures a Dispatcher. Zero values select defaults.
type DispatcherOptions struct {
	// Workers is the number of I/O goroutines.
	Workers int

	// QueueDepth is the capacity of each worker's submission queue.
	QueueDepth int

	// IOTimeout bounds every asynchronous device call. Zero means no limit.
	IOTimeout time.Duration

	// Metrics is optional.
	Metrics DispatcherMetrics
}

type job struct {
	op     string
	region cache.RegionID
	offset uint64
	buf    []byte
	done   func(error)
}

// Dispatcher implements cache.Backend on top of a Device.
//
// Operations are sharded by slot: every operation on one (region, offset)
// goes to the same worker, so a free queued behind a write to the same slot
// can never overtake it. Accepted asynchronous operations always complete,
// even when the dispatcher is closed while they are queued.
type Dispatcher struct {
	dev     Device
	timeout time.Duration
	metrics DispatcherMetrics

	// mu guards sends on shards against Close.
	mu     sync.RWMutex
	shards []chan job
	closed bool
	queued atomic.Int64

	wg sync.WaitGroup
}

var _ cache.Backend = (*Dispatcher)(nil)

// NewDispatcher starts the workers and returns a Dispatcher for dev.
func NewDispatcher(dev Device, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}

	d := &Dispatcher{
		dev:     dev,
		timeout: opts.IOTimeout,
		metrics: opts.Metrics,
		shards:  make([]chan job, opts.Workers),
	}
	for i := range d.shards {
		d.shards[i] = make(chan job, opts.QueueDepth)
		d.wg.Add(1)
		go d.worker(d.shards[i])
	}

	logger.Info("Backing dispatcher started",
		logger.Device(dev.Kind()),
		logger.Workers(opts.Workers),
		logger.QueueDepth(opts.QueueDepth))
	return d
}

// Device returns the underlying device.
func (d *Dispatcher) Device() Device {
	return d.dev
}

// Queued returns the number of operations waiting for a worker.
func (d *Dispatcher) Queued() int {
	return int(d.queued.Load())
}

func (d *Dispatcher) shard(region cache.RegionID, offset uint64) chan job {
	// Fibonacci hashing spreads neighbouring offsets across workers.
	h := (uint64(region)<<40 ^ offset) * 0x9E3779B97F4A7C15
	return d.shards[h%uint64(len(d.shards))]
}

// submit queues j without blocking unless wait is set.
func (d *Dispatcher) submit(j job, wait bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDeviceClosed
	}

	ch := d.shard(j.region, j.offset)
	d.setQueued(d.queued.Add(1))
	if wait {
		ch <- j
		return nil
	}
	select {
	case ch <- j:
		return nil
	default:
		d.setQueued(d.queued.Add(-1))
		return ErrQueueFull
	}
}

func (d *Dispatcher) setQueued(n int64) {
	if d.metrics != nil {
		d.metrics.SetQueueDepth(int(n))
	}
}

func (d *Dispatcher) worker(ch chan job) {
	defer d.wg.Done()
	for j := range ch {
		d.setQueued(d.queued.Add(-1))
		err := d.exec(j)
		if j.done != nil {
			j.done(err)
		}
	}
}

func (d *Dispatcher) exec(j job) error {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	switch j.op {
	case OpWrite:
		return d.observe(ctx, OpWrite, telemetry.SpanDeviceWrite, j.region, j.offset, func(ctx context.Context) error {
			return d.dev.WritePage(ctx, j.region, j.offset, j.buf)
		})
	case OpRead:
		return d.read(ctx, j.region, j.offset, j.buf)
	case OpFree:
		err := d.observe(ctx, OpFree, telemetry.SpanDeviceFree, j.region, j.offset, func(ctx context.Context) error {
			return d.dev.FreePage(ctx, j.region, j.offset)
		})
		if err != nil {
			logger.Warn("Failed to free backing slot",
				logger.Device(d.dev.Kind()), logger.Region(uint32(j.region)), logger.Offset(j.offset), logger.Err(err))
		}
		return err
	default:
		return fmt.Errorf("unknown dispatcher operation %q", j.op)
	}
}

// read fills dst from the device. A slot that was never written reads as
// zeros, the way an untouched swap slot does.
func (d *Dispatcher) read(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error {
	return d.observe(ctx, OpRead, telemetry.SpanDeviceRead, region, offset, func(ctx context.Context) error {
		err := d.dev.ReadPage(ctx, region, offset, dst)
		if errors.Is(err, ErrSlotNotFound) {
			clear(dst)
			return nil
		}
		return err
	})
}

func (d *Dispatcher) observe(ctx context.Context, op, span string, region cache.RegionID, offset uint64, fn func(context.Context) error) error {
	ctx, sp := telemetry.StartDeviceSpan(ctx, span, d.dev.Kind(), uint32(region), offset)
	defer sp.End()

	start := time.Now()
	err := fn(ctx)
	if d.metrics != nil {
		d.metrics.ObserveIO(op, time.Since(start), err)
	}
	telemetry.RecordError(ctx, err)
	return err
}

// ============================================================================
// cache.Backend
// ============================================================================

// SyncRead reads a page on the caller's goroutine.
func (d *Dispatcher) SyncRead(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error {
	if d.isClosed() {
		return ErrDeviceClosed
	}
	return d.read(ctx, region, offset, dst)
}

// AsyncWrite queues a write of src. done runs on a worker goroutine.
func (d *Dispatcher) AsyncWrite(region cache.RegionID, offset uint64, src []byte, done func(error)) error {
	return d.submit(job{op: OpWrite, region: region, offset: offset, buf: src, done: done}, false)
}

// AsyncRead queues a read into dst. done runs on a worker goroutine.
func (d *Dispatcher) AsyncRead(region cache.RegionID, offset uint64, dst []byte, done func(error)) error {
	return d.submit(job{op: OpRead, region: region, offset: offset, buf: dst, done: done}, false)
}

// NotifySlotFree queues a free of the slot behind any queued operation on
// it. It blocks while the slot's queue is full.
func (d *Dispatcher) NotifySlotFree(region cache.RegionID, offset uint64) {
	if err := d.submit(job{op: OpFree, region: region, offset: offset}, true); err != nil {
		logger.Debug("Dropped slot free", logger.Region(uint32(region)), logger.Offset(offset), logger.Err(err))
	}
}

// SlotInUse asks the device.
func (d *Dispatcher) SlotInUse(region cache.RegionID, offset uint64) bool {
	return d.dev.SlotInUse(region, offset)
}

// HealthCheck verifies the device.
func (d *Dispatcher) HealthCheck(ctx context.Context) error {
	if d.isClosed() {
		return ErrDeviceClosed
	}
	return d.dev.HealthCheck(ctx)
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Close stops accepting operations, completes everything queued and closes
// the device. It is idempotent.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
	logger.Info("Backing dispatcher stopped", logger.Device(d.dev.Kind()))
	return d.dev.Close()
}
