package queryhttp

import (
	"fmt"
	"time"
)

// Config is the configuration of the query HTTP adapter.
type Config struct {
	// Enabled controls whether the adapter is started
	Enabled bool `mapstructure:"enabled"`

	// Port is the query port. 0 picks a free port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// SubscriptionPort is advertised to clients as the subscription
	// endpoint. It is not served by this adapter.
	SubscriptionPort int `mapstructure:"subscription_port" validate:"min=0,max=65535"`

	// MaxConnections caps concurrently served connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// AcceptRate is the sustained number of new connections admitted per
	// second. 0 means unlimited.
	AcceptRate float64 `mapstructure:"accept_rate" validate:"min=0"`

	// AcceptBurst is the number of connections admitted at once above the
	// sustained rate.
	AcceptBurst int `mapstructure:"accept_burst" validate:"min=0"`

	// MaxBodyBytes caps POST bodies (default: 1MiB)
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=0"`

	// Timeouts bound the phases of a connection
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`

	// ShutdownTimeout bounds how long in-flight connections are waited for
	// when the adapter stops (default: 30s)
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// TimeoutsConfig groups the per-connection timeouts.
type TimeoutsConfig struct {
	ReadHeader time.Duration `mapstructure:"read_header" validate:"min=0"`
	Read       time.Duration `mapstructure:"read" validate:"min=0"`
	Write      time.Duration `mapstructure:"write" validate:"min=0"`
	Idle       time.Duration `mapstructure:"idle" validate:"min=0"`
}

// ApplyDefaults fills unset fields. Ports are left alone: 0 is a valid
// request for an ephemeral port.
func (c *Config) ApplyDefaults() {
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = int(c.AcceptRate)
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.Timeouts.ReadHeader == 0 {
		c.Timeouts.ReadHeader = 10 * time.Second
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 30 * time.Second
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 60 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the fields that struct tags cannot express on their own.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.SubscriptionPort < 0 || c.SubscriptionPort > 65535 {
		return fmt.Errorf("invalid subscription port %d: must be 0-65535", c.SubscriptionPort)
	}
	if c.Port != 0 && c.Port == c.SubscriptionPort {
		return fmt.Errorf("query port and subscription port must differ (both %d)", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max connections %d: must be >= 0", c.MaxConnections)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid accept rate %v: must be >= 0", c.AcceptRate)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be >= 0", c.ShutdownTimeout)
	}
	return nil
}

// ServiceConfig converts the connection settings for NewServiceFactory.
func (c *Config) ServiceConfig() ServiceConfig {
	return ServiceConfig{
		ReadHeaderTimeout: c.Timeouts.ReadHeader,
		ReadTimeout:       c.Timeouts.Read,
		WriteTimeout:      c.Timeouts.Write,
		IdleTimeout:       c.Timeouts.Idle,
		MaxBodyBytes:      c.MaxBodyBytes,
	}
}
