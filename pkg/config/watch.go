package config

import (
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittoswap/internal/logger"
)

// Watch re-reads the configuration file whenever it changes and passes
// every version that loads and validates to onChange. Invalid edits are
// logged and skipped. An empty configPath watches the default location.
func Watch(configPath string, onChange func(*Config)) error {
	v := newViper(configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("no configuration file to watch")
	}

	var mu sync.Mutex
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		mu.Lock()
		defer mu.Unlock()

		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", logger.Path(e.Name), logger.Err(err))
			return
		}
		logger.Debug("Configuration reloaded", logger.Path(e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// WatchGrace calls apply with the new grace period whenever an edit of the
// configuration file changes cache.grace_period. current is the value in
// effect when watching starts.
func WatchGrace(configPath string, current time.Duration, apply func(time.Duration)) error {
	last := current
	return Watch(configPath, func(cfg *Config) {
		if cfg.Cache.GracePeriod == last {
			return
		}
		logger.Info("Grace period changed in configuration",
			logger.Grace(cfg.Cache.GracePeriod))
		last = cfg.Cache.GracePeriod
		apply(last)
	})
}
