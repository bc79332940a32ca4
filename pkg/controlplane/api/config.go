package api

import (
	"os"
	"time"

	"github.com/marmos91/dittoswap/internal/logger"
)

// EnvControlPlaneSecret overrides controlplane.jwt.secret. Deployments that
// keep the secret out of the config file set this instead.
const EnvControlPlaneSecret = "DITTOSWAP_CONTROLPLANE_SECRET"

const (
	defaultPort          = 8080
	defaultReadTimeout   = 10 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultIdleTimeout   = time.Minute
	defaultTokenLifetime = 24 * time.Hour
)

// APIConfig configures the control API server. Without a JWT secret every
// route is open, so leave the secret unset only when the port is bound to
// a trusted network.
type APIConfig struct {
	// Enabled is a pointer so an absent key can mean "on".
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Port    int   `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Zero timeouts are replaced by the defaults (10s, 10s, 1m).
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// JWTConfig holds the HS256 key tokens are signed with.
type JWTConfig struct {
	// Secret needs at least 32 characters. Empty disables authentication.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`

	// TokenDuration is the lifetime "dittoswap token" mints with when no
	// --ttl is given.
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`
}

// ApplyDefaults replaces zero values in c.
func ApplyDefaults(c *APIConfig) {
	if c.Enabled == nil {
		on := true
		c.Enabled = &on
	}
	setDefault(&c.Port, defaultPort)
	setDefault(&c.ReadTimeout, defaultReadTimeout)
	setDefault(&c.WriteTimeout, defaultWriteTimeout)
	setDefault(&c.IdleTimeout, defaultIdleTimeout)
	setDefault(&c.JWT.TokenDuration, defaultTokenLifetime)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// IsEnabled reports whether the daemon should serve the API.
func (c *APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// JWTSecret is the signing secret in effect: the environment variable when
// set, the config file otherwise. Empty means authentication is off.
func (c *APIConfig) JWTSecret() string {
	env := os.Getenv(EnvControlPlaneSecret)
	if env == "" {
		return c.JWT.Secret
	}
	if c.JWT.Secret != "" && c.JWT.Secret != env {
		logger.Warn("JWT secret from the environment overrides the config file",
			"env_var", EnvControlPlaneSecret)
	}
	return env
}
