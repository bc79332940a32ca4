// Package fs provides a file-backed device: one sparse file per region,
// page n of a region living at byte n*PageSize of its file.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/cache"
)

// Config holds configuration for the file device.
type Config struct {
	// Path is the directory holding the region files.
	Path string `mapstructure:"path" yaml:"path" validate:"required"`

	// PageSize is the page size. Default: cache.DefaultPageSize.
	PageSize int `mapstructure:"-" yaml:"-"`

	// FileMode is the permission mode for region files. Default: 0600.
	FileMode os.FileMode `mapstructure:"file_mode" yaml:"file_mode,omitempty"`
}

// Device stores pages in region files with positioned I/O.
type Device struct {
	dir      string
	pageSize int
	mode     os.FileMode
	slots    *backing.SlotMap

	mu     sync.RWMutex
	files  map[cache.RegionID]*os.File
	closed bool
}

var _ backing.Device = (*Device)(nil)

// New creates the directory if needed and removes region files left by an
// earlier process.
func New(cfg Config) (*Device, error) {
	if cfg.Path == "" {
		return nil, errors.New("fs device: path is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = cache.DefaultPageSize
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o600
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("fs device: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(cfg.Path, "region-*.swap"))
	if err != nil {
		return nil, fmt.Errorf("fs device: %w", err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil {
			return nil, fmt.Errorf("fs device: remove stale region file: %w", err)
		}
	}
	if len(stale) > 0 {
		logger.Info("Removed stale region files", logger.Path(cfg.Path), logger.Pages(len(stale)))
	}

	return &Device{
		dir:      cfg.Path,
		pageSize: cfg.PageSize,
		mode:     cfg.FileMode,
		slots:    backing.NewSlotMap(),
		files:    make(map[cache.RegionID]*os.File),
	}, nil
}

func (d *Device) Kind() string  { return "fs" }
func (d *Device) PageSize() int { return d.pageSize }

func (d *Device) regionPath(region cache.RegionID) string {
	return filepath.Join(d.dir, fmt.Sprintf("region-%03d.swap", region))
}

// file returns the region's file, opening it on first use.
func (d *Device) file(region cache.RegionID, create bool) (*os.File, error) {
	d.mu.RLock()
	f, ok := d.files[region]
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, backing.ErrDeviceClosed
	}
	if ok || !create {
		return f, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, backing.ErrDeviceClosed
	}
	if f, ok := d.files[region]; ok {
		return f, nil
	}
	f, err := os.OpenFile(d.regionPath(region), os.O_RDWR|os.O_CREATE, d.mode)
	if err != nil {
		return nil, err
	}
	d.files[region] = f
	return f, nil
}

func (d *Device) position(offset uint64) int64 {
	return int64(offset) * int64(d.pageSize)
}

// ReadPage reads the page at its file position. Bytes past the end of the
// file read as zeros.
func (d *Device) ReadPage(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error {
	if err := backing.CheckPage(dst, d.pageSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.slots.Test(region, offset) {
		return backing.ErrSlotNotFound
	}

	f, err := d.file(region, false)
	if err != nil {
		return err
	}
	if f == nil {
		return backing.ErrSlotNotFound
	}

	buf := dst[:d.pageSize]
	n, err := preadFull(f, buf, d.position(offset))
	if err != nil {
		return fmt.Errorf("fs device: read region %d offset %d: %w", region, offset, err)
	}
	clear(buf[n:])
	return nil
}

// WritePage writes src at the page's file position.
func (d *Device) WritePage(ctx context.Context, region cache.RegionID, offset uint64, src []byte) error {
	if err := backing.CheckPage(src, d.pageSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := d.file(region, true)
	if err != nil {
		return err
	}
	if err := pwriteFull(f, src[:d.pageSize], d.position(offset)); err != nil {
		return fmt.Errorf("fs device: write region %d offset %d: %w", region, offset, err)
	}
	d.slots.Set(region, offset)
	return nil
}

// FreePage clears the slot and, where the platform supports it, punches a
// hole so the file stops holding the page's blocks.
func (d *Device) FreePage(_ context.Context, region cache.RegionID, offset uint64) error {
	if !d.slots.Clear(region, offset) {
		return nil
	}
	f, err := d.file(region, false)
	if err != nil || f == nil {
		return err
	}
	return punchHole(f, d.position(offset), int64(d.pageSize))
}

func (d *Device) SlotInUse(region cache.RegionID, offset uint64) bool {
	return d.slots.Test(region, offset)
}

// HealthCheck verifies the directory is still reachable.
func (d *Device) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return backing.ErrDeviceClosed
	}

	info, err := os.Stat(d.dir)
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("healthcheck failed: %s is not a directory", d.dir)
	}
	return nil
}

// Close closes and removes every region file.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for region, f := range d.files {
		errs = append(errs, f.Close(), os.Remove(d.regionPath(region)))
	}
	d.files = nil
	return errors.Join(errs...)
}
