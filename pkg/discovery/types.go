package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypeHeadUnit is the service type advertised by a head unit.
	ServiceTypeHeadUnit = "_carlink._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default head-unit listen port.
	DefaultPort = 12345
)

// TXT record key constants.
const (
	TXTKeyName            = "DN"   // Head-unit display name
	TXTKeyMake            = "make" // Vehicle make
	TXTKeyModel           = "model"
	TXTKeyProtocolVersion = "PV"  // Protocol version (decimal)
	TXTKeySecure          = "SEC" // "1" when TLS is required
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrMissingRequired  = errors.New("missing required field")
	ErrInvalidTXTRecord = errors.New("invalid TXT record format")
	ErrTXTRecordTooBig  = errors.New("TXT records exceed size limit")
	ErrNotAdvertising   = errors.New("not advertising")
)

// HeadUnitInfo describes the head unit being advertised.
type HeadUnitInfo struct {
	// Name is the head-unit display name (used as the mDNS instance name).
	Name string

	// Make is the vehicle make.
	Make string

	// Model is the vehicle model.
	Model string

	// ProtocolVersion is the highest supported protocol version.
	ProtocolVersion uint8

	// Secure reports whether the head unit requires TLS.
	Secure bool

	// Port is the listen port. Zero uses DefaultPort.
	Port uint16

	// Host is the hostname to advertise. Empty uses the system hostname.
	Host string
}

// Validate checks required fields.
func (i *HeadUnitInfo) Validate() error {
	if i.Name == "" {
		return ErrMissingRequired
	}
	if len(i.Name) > MaxInstanceNameLen {
		return ErrInvalidTXTRecord
	}
	if i.ProtocolVersion == 0 {
		return ErrMissingRequired
	}
	return nil
}

// HeadUnitService represents a head unit found via mDNS.
type HeadUnitService struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the hostname.
	Host string

	// Port is the service port.
	Port uint16

	// Addresses contains resolved IP addresses.
	Addresses []string

	// Name is the head-unit display name (from TXT "DN").
	Name string

	// Make is the vehicle make (from TXT "make").
	Make string

	// Model is the vehicle model (from TXT "model").
	Model string

	// ProtocolVersion is the advertised protocol version (from TXT "PV").
	ProtocolVersion uint8

	// Secure reports whether TLS is required (from TXT "SEC").
	Secure bool
}
