package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittoswap/internal/bytesize"
	"github.com/marmos91/dittoswap/pkg/backing/factory"
)

// Validate checks the configuration with struct tag rules, then applies
// the checks that span several fields.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s' validation (value: %v)",
					fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	return validateCrossField(cfg)
}

func validateCrossField(cfg *Config) error {
	if ps := cfg.Cache.PageSize.Uint64(); ps&(ps-1) != 0 {
		return fmt.Errorf("cache.page_size must be a power of two, got %d", ps)
	}
	if cfg.Cache.MaxMemory != 0 && cfg.Cache.MaxMemory < cfg.Cache.PageSize {
		return fmt.Errorf("cache.max_memory (%s) is smaller than one page", cfg.Cache.MaxMemory)
	}
	if cfg.Cache.PageSize.Int() < 512 {
		return fmt.Errorf("cache.page_size must be at least 512 bytes, got %s", cfg.Cache.PageSize)
	}
	if cfg.Cache.PageSize > bytesize.MiB {
		return fmt.Errorf("cache.page_size must be at most 1Mi, got %s", cfg.Cache.PageSize)
	}

	switch cfg.Backing.Type {
	case factory.TypeFS:
		if cfg.Backing.FS.Path == "" {
			return errors.New("backing.fs.path is required for the fs device")
		}
	case factory.TypeS3:
		if cfg.Backing.S3.Bucket == "" {
			return errors.New("backing.s3.bucket is required for the s3 device")
		}
	case factory.TypeBadger:
		if cfg.Backing.Badger.Path == "" && !cfg.Backing.Badger.InMemory {
			return errors.New("backing.badger.path is required unless in_memory is set")
		}
	case factory.TypeSQL:
		sqlCfg := cfg.Backing.SQL
		sqlCfg.ApplyDefaults()
		if err := sqlCfg.Validate(); err != nil {
			return fmt.Errorf("backing.sql: %w", err)
		}
	}
	return nil
}
