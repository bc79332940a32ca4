package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/dittoswap/internal/bytesize"
	"github.com/marmos91/dittoswap/pkg/backing/factory"
	"github.com/marmos91/dittoswap/pkg/controlplane/api"
)

// Config is the daemon configuration. Environment variables named
// DITTOSWAP_<SECTION>_<KEY> override the file, which overrides defaults.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	// ControlPlane is the HTTP control API.
	ControlPlane api.APIConfig `mapstructure:"controlplane" yaml:"controlplane"`

	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Backing BackingConfig `mapstructure:"backing" yaml:"backing"`

	// ShutdownTimeout bounds how long the API and metrics servers get to
	// drain once the daemon is asked to stop.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig selects the log level, encoding and destination.
type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR, in any case.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	// Output is stdout, stderr or a file to append to.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig enables OTLP tracing of discharge passes, prefetch
// passes and miss reads.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Endpoint is the collector's gRPC host:port. Default: localhost:4317
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
	// SampleRate is the fraction of traces kept, 0 to 1. Default: 1
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig enables continuous profiling with Pyroscope.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Endpoint is the Pyroscope server URL. Default: http://localhost:4040
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// ProfileTypes lists pyroscope profile names such as cpu, inuse_space
	// or mutex_duration. Empty selects cpu, inuse_space and mutex_duration.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig exposes the cache counters on /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Port defaults to 9090.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// CacheConfig holds the page cache tunables.
type CacheConfig struct {
	// PageSize is the size of every page. Supports "4Ki" style sizes.
	// Default: 4Ki
	PageSize bytesize.ByteSize `mapstructure:"page_size" validate:"gt=0" yaml:"page_size"`

	// GracePeriod is how long a page stays in memory before it may be
	// written back. Zero writes pages back on the next discharge pass.
	// Default: 360s
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"gte=0" yaml:"grace_period"`

	// PrefetchGrace is the dwell time granted to read-ahead pages.
	// Default: 600s
	PrefetchGrace time.Duration `mapstructure:"prefetch_grace" validate:"gte=0" yaml:"prefetch_grace"`

	// PrefetchCapacity is the number of recent coordinates remembered for
	// read-ahead. -1 disables read-ahead.
	// Default: 4194304
	PrefetchCapacity int `mapstructure:"prefetch_capacity" validate:"gte=-1" yaml:"prefetch_capacity"`

	// MaxMemory caps the memory held by newly cached pages. Zero means
	// unbounded.
	MaxMemory bytesize.ByteSize `mapstructure:"max_memory" yaml:"max_memory"`

	// MinDischargeInterval is the shortest sleep between discharge passes.
	// Default: 10ms
	MinDischargeInterval time.Duration `mapstructure:"min_discharge_interval" validate:"gte=0" yaml:"min_discharge_interval"`
}

// MaxPages converts MaxMemory into a page count.
func (c CacheConfig) MaxPages() int {
	return c.MaxMemory.Pages(c.PageSize.Int())
}

// BackingConfig selects the backing device and sizes the I/O dispatcher in
// front of it.
type BackingConfig struct {
	factory.Config `mapstructure:",squash" yaml:",inline"`

	// Workers is the number of I/O goroutines.
	// Default: 4
	Workers int `mapstructure:"workers" validate:"gte=0" yaml:"workers"`

	// QueueDepth is the capacity of each worker's submission queue. A full
	// queue makes a write-back fail and the page stays in memory.
	// Default: 256
	QueueDepth int `mapstructure:"queue_depth" validate:"gte=0" yaml:"queue_depth"`

	// IOTimeout bounds every asynchronous device call. Zero means no limit.
	IOTimeout time.Duration `mapstructure:"io_timeout" validate:"gte=0" yaml:"io_timeout,omitempty"`
}

// Load reads configPath, or the default location when it is empty. A
// missing file is not an error: the defaults are returned.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}
	return decode(v)
}

// decode unmarshals, defaults and validates the configuration held by v.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load for commands that need a real file: it fails with
// instructions when there is none.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no configuration file at %s\n\n"+
			"Create one with:\n"+
			"  dittoswap config init --config %s\n\n"+
			"or point at an existing file with --config", configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newViper binds the DITTOSWAP_ environment and the config file location.
func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DITTOSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Zero is a meaningful value for these, so ApplyDefaults cannot tell
	// "unset" from "0".
	v.SetDefault("cache.grace_period", defaultGracePeriod.String())
	v.SetDefault("cache.prefetch_capacity", defaultPrefetchCapacity)

	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}
	v.SetConfigFile(configPath)
	return v
}

func readConfigFile(v *viper.Viper) (bool, error) {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
}

var decodeHooks = mapstructure.ComposeDecodeHookFunc(
	unitsDecodeHook,
	mapstructure.StringToSliceHookFunc(","),
)

var (
	byteSizeType = reflect.TypeOf(bytesize.ByteSize(0))
	durationType = reflect.TypeOf(time.Duration(0))
)

// unitsDecodeHook lets the file write byte sizes as "4Ki" or "512Mi" and
// durations as "30s". Bare numbers are bytes and seconds respectively, so
// grace_period: 360 means six minutes.
func unitsDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to {
	case byteSizeType:
		if s, ok := data.(string); ok {
			return bytesize.ParseByteSize(s)
		}
		if n, ok := number(data); ok {
			return bytesize.ByteSize(n), nil
		}
	case durationType:
		if s, ok := data.(string); ok {
			if secs, err := strconv.ParseFloat(s, 64); err == nil {
				return time.Duration(secs * float64(time.Second)), nil
			}
			return time.ParseDuration(s)
		}
		if n, ok := number(data); ok {
			return time.Duration(n * float64(time.Second)), nil
		}
	}
	return data, nil
}

// number widens the numeric kinds YAML and env decoding produce.
func number(data any) (float64, bool) {
	switch n := data.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// GetConfigDir is $XDG_CONFIG_HOME/dittoswap, or ~/.config/dittoswap.
func GetConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "dittoswap")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittoswap")
}

// GetDefaultConfigPath is config.yaml inside GetConfigDir.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether GetDefaultConfigPath exists.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
