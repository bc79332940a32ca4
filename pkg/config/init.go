package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoSwap Configuration File
#
# Every value can be overridden with an environment variable named after
# its path, e.g. DITTOSWAP_CACHE_GRACE_PERIOD=30s or
# DITTOSWAP_BACKING_TYPE=fs.
#
# Edits to cache.grace_period are applied to a running daemon without a
# restart.

`

// WriteConfig writes cfg to path with the explanatory header. An existing
// file is only replaced when force is set.
func WriteConfig(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
