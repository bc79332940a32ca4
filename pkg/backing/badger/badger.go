// Package badger provides a BadgerDB backing device. Pages are values keyed
// by a fixed-width binary (region, offset) key, which keeps one region's
// pages adjacent in the LSM tree.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/cache"
)

const keyPrefix = 'p'

// Config holds configuration for the badger device.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `mapstructure:"path" yaml:"path,omitempty" validate:"required_without=InMemory"`

	// InMemory keeps the database in RAM.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory,omitempty"`

	// SyncWrites fsyncs every write.
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes,omitempty"`

	// PageSize is the page size. Default: cache.DefaultPageSize.
	PageSize int `mapstructure:"-" yaml:"-"`
}

// Device stores pages in BadgerDB.
type Device struct {
	db       *badgerdb.DB
	pageSize int
	slots    *backing.SlotMap
}

var _ backing.Device = (*Device)(nil)

// New opens the database and drops pages left by an earlier process.
func New(cfg Config) (*Device, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = cache.DefaultPageSize
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("badger device: path is required")
	}

	opts := badgerdb.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger device: open: %w", err)
	}
	if err := db.DropPrefix([]byte{keyPrefix}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger device: drop stale pages: %w", err)
	}

	logger.Debug("Badger device opened", logger.Path(cfg.Path))
	return &Device{db: db, pageSize: cfg.PageSize, slots: backing.NewSlotMap()}, nil
}

func (d *Device) Kind() string  { return "badger" }
func (d *Device) PageSize() int { return d.pageSize }

func pageKey(region cache.RegionID, offset uint64) []byte {
	key := make([]byte, 13)
	key[0] = keyPrefix
	binary.BigEndian.PutUint32(key[1:5], uint32(region))
	binary.BigEndian.PutUint64(key[5:], offset)
	return key
}

func mapClosed(err error) error {
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return backing.ErrDeviceClosed
	}
	return err
}

// ReadPage copies the stored value into dst.
func (d *Device) ReadPage(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error {
	if err := backing.CheckPage(dst, d.pageSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := d.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(pageKey(region, offset))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			copy(dst, val)
			return nil
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return backing.ErrSlotNotFound
	}
	return mapClosed(err)
}

// WritePage stores a copy of src.
func (d *Device) WritePage(ctx context.Context, region cache.RegionID, offset uint64, src []byte) error {
	if err := backing.CheckPage(src, d.pageSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	val := append([]byte(nil), src[:d.pageSize]...)
	err := d.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(pageKey(region, offset), val)
	})
	if err != nil {
		return mapClosed(err)
	}
	d.slots.Set(region, offset)
	return nil
}

func (d *Device) FreePage(_ context.Context, region cache.RegionID, offset uint64) error {
	if !d.slots.Clear(region, offset) {
		return nil
	}
	return mapClosed(d.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(pageKey(region, offset))
	}))
}

func (d *Device) SlotInUse(region cache.RegionID, offset uint64) bool {
	return d.slots.Test(region, offset)
}

// HealthCheck opens a read transaction.
func (d *Device) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.db.IsClosed() {
		return backing.ErrDeviceClosed
	}
	if err := d.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (d *Device) Close() error {
	if d.db.IsClosed() {
		return nil
	}
	return d.db.Close()
}
