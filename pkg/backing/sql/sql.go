// Package sql provides a relational backing device on GORM, using SQLite
// for single-node setups or PostgreSQL when pages should live in a shared
// database. Each page is one row of the swap_pages table.
package sql

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/cache"
)

// DatabaseType selects the SQL dialect.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode      string `mapstructure:"sslmode" yaml:"sslmode,omitempty"` // disable, require, verify-ca, verify-full
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += " sslmode=" + c.SSLMode
	}
	return dsn
}

// Config holds configuration for the SQL device.
type Config struct {
	Type DatabaseType `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=sqlite postgres"`

	// SQLitePath is the database file. Use ":memory:" for a private
	// in-memory database.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path,omitempty"`

	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`

	// PageSize is the page size. Default: cache.DefaultPageSize.
	PageSize int `mapstructure:"-" yaml:"-"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.PageSize <= 0 {
		c.PageSize = cache.DefaultPageSize
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 16
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "" {
			return errors.New("postgres host, database and user are required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// pageRow is one stored page. Offsets are stored as signed integers since
// PostgreSQL has no unsigned 64-bit column type.
type pageRow struct {
	Region    uint32 `gorm:"primaryKey;autoIncrement:false"`
	Offset    int64  `gorm:"column:page_offset;primaryKey;autoIncrement:false"`
	Data      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (pageRow) TableName() string { return "swap_pages" }

// Device stores pages as rows.
type Device struct {
	db       *gorm.DB
	kind     DatabaseType
	pageSize int
	slots    *backing.SlotMap
}

var _ backing.Device = (*Device)(nil)

// New opens the database, migrates the schema and deletes rows left by an
// earlier process.
func New(cfg Config) (*Device, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sql device configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case DatabaseTypeSQLite:
		dsn := cfg.SQLitePath
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	if cfg.Type == DatabaseTypeSQLite {
		// A single connection keeps ":memory:" databases shared and
		// serializes SQLite writers.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	}

	if err := db.AutoMigrate(&pageRow{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&pageRow{}).Error; err != nil {
		return nil, fmt.Errorf("failed to clear stale pages: %w", err)
	}

	return &Device{db: db, kind: cfg.Type, pageSize: cfg.PageSize, slots: backing.NewSlotMap()}, nil
}

func (d *Device) Kind() string  { return "sql" }
func (d *Device) PageSize() int { return d.pageSize }

// Dialect returns the configured database type.
func (d *Device) Dialect() DatabaseType { return d.kind }

func mapClosed(err error) error {
	if err != nil && strings.Contains(err.Error(), "database is closed") {
		return backing.ErrDeviceClosed
	}
	return err
}

// ReadPage copies the row's data into dst.
func (d *Device) ReadPage(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error {
	if err := backing.CheckPage(dst, d.pageSize); err != nil {
		return err
	}

	var row pageRow
	err := d.db.WithContext(ctx).
		Where("region = ? AND page_offset = ?", uint32(region), int64(offset)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backing.ErrSlotNotFound
	}
	if err != nil {
		return mapClosed(err)
	}
	copy(dst, row.Data)
	return nil
}

// WritePage upserts the row.
func (d *Device) WritePage(ctx context.Context, region cache.RegionID, offset uint64, src []byte) error {
	if err := backing.CheckPage(src, d.pageSize); err != nil {
		return err
	}

	row := pageRow{
		Region: uint32(region),
		Offset: int64(offset),
		Data:   src[:d.pageSize],
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "region"}, {Name: "page_offset"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return mapClosed(err)
	}
	d.slots.Set(region, offset)
	return nil
}

// FreePage deletes the row.
func (d *Device) FreePage(ctx context.Context, region cache.RegionID, offset uint64) error {
	if !d.slots.Clear(region, offset) {
		return nil
	}
	return mapClosed(d.db.WithContext(ctx).
		Where("region = ? AND page_offset = ?", uint32(region), int64(offset)).
		Delete(&pageRow{}).Error)
}

func (d *Device) SlotInUse(region cache.RegionID, offset uint64) bool {
	return d.slots.Test(region, offset)
}

// HealthCheck pings the database.
func (d *Device) HealthCheck(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("healthcheck failed: %w", mapClosed(err))
	}
	return nil
}

// Close closes the connection pool.
func (d *Device) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
