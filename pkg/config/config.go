// Package config loads and validates the head-unit daemon configuration
// from YAML, with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/carlink-protocol/carlink-go/pkg/discovery"
	"github.com/carlink-protocol/carlink-go/pkg/transport"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults.
const (
	DefaultHeartbeatTimeout = 7 * time.Second
	DefaultProtocolVersion  = 5
	DefaultLogLevel         = "info"
)

// Config is the root daemon configuration.
type Config struct {
	HeadUnit  HeadUnitConfig  `yaml:"head_unit"`
	Transport TransportConfig `yaml:"transport"`
	Sessions  SessionConfig   `yaml:"sessions"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HeadUnitConfig identifies the head unit.
type HeadUnitConfig struct {
	// Name is the display name, also used as the mDNS instance name.
	Name string `yaml:"name"`

	// Make is the vehicle make.
	Make string `yaml:"make"`

	// Model is the vehicle model.
	Model string `yaml:"model"`

	// ProtocolVersion is the highest supported protocol version.
	ProtocolVersion uint8 `yaml:"protocol_version"`
}

// TransportConfig configures the TCP/TLS adapter.
type TransportConfig struct {
	// Address is the listen address, e.g. ":12345".
	Address string `yaml:"address"`

	// MaxMessageSize bounds inbound frames. Zero uses the transport default.
	MaxMessageSize uint32 `yaml:"max_message_size"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures transport security. An empty CertFile disables TLS
// and the adapter accepts plaintext TCP (tests and bench setups only).
type TLSConfig struct {
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// Enabled reports whether TLS is configured.
func (t *TLSConfig) Enabled() bool {
	return t.CertFile != ""
}

// SessionConfig configures the connection core.
type SessionConfig struct {
	// HeartbeatTimeout is the per-connection inactivity timeout.
	// Zero disables heartbeat monitoring.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

// DiscoveryConfig configures mDNS advertising.
type DiscoveryConfig struct {
	// Enabled turns advertising on.
	Enabled bool `yaml:"enabled"`

	// Interface restricts advertising to one network interface.
	Interface string `yaml:"interface"`

	// TTL is the DNS record TTL. Zero uses the discovery default.
	TTL time.Duration `yaml:"ttl"`
}

// LoggingConfig configures the two log surfaces: the operational slog output
// and the optional CBOR protocol event capture.
type LoggingConfig struct {
	// Level is the slog level: debug, info, warn or error.
	Level string `yaml:"level"`

	// EventFile is the path for CBOR protocol event capture.
	// Empty disables capture.
	EventFile string `yaml:"event_file"`
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.HeadUnit.ProtocolVersion == 0 {
		c.HeadUnit.ProtocolVersion = DefaultProtocolVersion
	}
	if c.Transport.Address == "" {
		c.Transport.Address = fmt.Sprintf(":%d", transport.DefaultPort)
	}
	if c.Sessions.HeartbeatTimeout == 0 {
		c.Sessions.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Discovery.TTL == 0 {
		c.Discovery.TTL = discovery.DefaultTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// Validate checks the configuration. Failures wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.HeadUnit.Name == "" {
		return fmt.Errorf("%w: head_unit.name is required", ErrInvalidConfig)
	}
	if c.Sessions.HeartbeatTimeout < 0 {
		return fmt.Errorf("%w: sessions.heartbeat_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Transport.TLS.Enabled() && c.Transport.TLS.KeyFile == "" {
		return fmt.Errorf("%w: transport.tls.key_file is required with cert_file", ErrInvalidConfig)
	}
	if c.Transport.TLS.RequireClientCert && c.Transport.TLS.ClientCAFile == "" {
		return fmt.Errorf("%w: transport.tls.client_ca_file is required with require_client_cert", ErrInvalidConfig)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q is not one of debug, info, warn, error", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
