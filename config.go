package sentry_transport

import (
	"fmt"
	"net/url"
	"time"
)

// Config represents the plugin configuration.
type Config struct {
	// Enable/disable the plugin
	Enabled bool `mapstructure:"enabled"`

	// Sentry DSN. An empty DSN keeps the plugin running but every send is
	// acknowledged as skipped.
	DSN string `mapstructure:"dsn"`

	// HTTP delivery settings
	Transport TransportConfig `mapstructure:"transport"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// TransportConfig contains HTTP delivery settings.
type TransportConfig struct {
	// Overall timeout for one background delivery
	Timeout time.Duration `mapstructure:"timeout"`
	// Dial and TLS handshake timeout
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// Disable gzip compression of envelopes
	DisableCompression bool `mapstructure:"disable_compression"`
	// Skip TLS certificate verification
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
	// Proxy settings
	Proxy string `mapstructure:"proxy"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level for plugin operations
	Level string `mapstructure:"level"`
}

// InitDefaults initializes default configuration values. Deliveries are
// bounded tightly so an abandoned background send cannot hold resources for
// long: one second to connect, two seconds end to end.
func (cfg *Config) InitDefaults() {
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = 2 * time.Second
	}
	if cfg.Transport.ConnectTimeout == 0 {
		cfg.Transport.ConnectTimeout = 1 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate validates the configuration.
func (cfg *Config) Validate() error {
	if cfg.Transport.Timeout < 0 {
		return fmt.Errorf("transport timeout must not be negative")
	}
	if cfg.Transport.ConnectTimeout < 0 {
		return fmt.Errorf("transport connect timeout must not be negative")
	}

	if cfg.Transport.Proxy != "" {
		if _, err := url.Parse(cfg.Transport.Proxy); err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
	}

	if cfg.DSN != "" {
		if _, err := ParseDSN(cfg.DSN); err != nil {
			return err
		}
	}

	return nil
}
