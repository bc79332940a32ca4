// Package factory opens the backing device selected by configuration.
package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/backing/badger"
	"github.com/marmos91/dittoswap/pkg/backing/fs"
	"github.com/marmos91/dittoswap/pkg/backing/memory"
	"github.com/marmos91/dittoswap/pkg/backing/s3"
	"github.com/marmos91/dittoswap/pkg/backing/sql"
)

// Device type names.
const (
	TypeMemory = "memory"
	TypeFS     = "fs"
	TypeS3     = "s3"
	TypeBadger = "badger"
	TypeSQL    = "sql"
)

// Types lists every supported device type.
var Types = []string{TypeMemory, TypeFS, TypeS3, TypeBadger, TypeSQL}

// Config selects a device type and carries per-type settings. Only the
// section matching Type is read, so the sections are skipped by struct
// validation and checked when the device is opened.
type Config struct {
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory fs s3 badger sql"`

	Memory memory.Config `mapstructure:"memory" yaml:"memory,omitempty" validate:"-"`
	FS     fs.Config     `mapstructure:"fs" yaml:"fs,omitempty" validate:"-"`
	S3     s3.Config     `mapstructure:"s3" yaml:"s3,omitempty" validate:"-"`
	Badger badger.Config `mapstructure:"badger" yaml:"badger,omitempty" validate:"-"`
	SQL    sql.Config    `mapstructure:"sql" yaml:"sql,omitempty" validate:"-"`
}

// Open creates the device described by cfg with pages of pageSize bytes.
func Open(ctx context.Context, cfg Config, pageSize int) (backing.Device, error) {
	var (
		dev backing.Device
		err error
	)

	switch strings.ToLower(cfg.Type) {
	case TypeMemory:
		c := cfg.Memory
		c.PageSize = pageSize
		dev = memory.New(c)
	case TypeFS:
		c := cfg.FS
		c.PageSize = pageSize
		dev, err = fs.New(c)
	case TypeS3:
		c := cfg.S3
		c.PageSize = pageSize
		dev, err = s3.NewFromConfig(ctx, c)
	case TypeBadger:
		c := cfg.Badger
		c.PageSize = pageSize
		dev, err = badger.New(c)
	case TypeSQL:
		c := cfg.SQL
		c.PageSize = pageSize
		dev, err = sql.New(c)
	default:
		return nil, fmt.Errorf("unknown backing device type %q (want one of %s)",
			cfg.Type, strings.Join(Types, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s device: %w", cfg.Type, err)
	}

	logger.Info("Backing device opened", logger.Device(dev.Kind()))
	return dev, nil
}
