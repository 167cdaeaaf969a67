package log

import (
	"time"
)

// Event is one lifecycle event captured by the connection core.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID correlates events for one physical connection (UUID,
	// assigned by the transport adapter).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Handle is the registry connection handle, if assigned.
	Handle int32 `cbor:"3,keyasint,omitempty"`

	// Category classifies the event.
	Category Category `cbor:"4,keyasint"`

	// RemoteAddr is the peer address, if known.
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Connection *ConnectionEvent `cbor:"10,keyasint,omitempty"`
	Session    *SessionEvent    `cbor:"11,keyasint,omitempty"`
	Heartbeat  *HeartbeatEvent  `cbor:"12,keyasint,omitempty"`
	Security   *SecurityEvent   `cbor:"13,keyasint,omitempty"`
	Error      *ErrorEvent      `cbor:"14,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryConnection indicates connection create/close.
	CategoryConnection Category = 0
	// CategorySession indicates session or service lifecycle.
	CategorySession Category = 1
	// CategoryHeartbeat indicates liveness activity.
	CategoryHeartbeat Category = 2
	// CategorySecurity indicates a security-binding change.
	CategorySecurity Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConnection:
		return "CONNECTION"
	case CategorySession:
		return "SESSION"
	case CategoryHeartbeat:
		return "HEARTBEAT"
	case CategorySecurity:
		return "SECURITY"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ConnectionEvent captures connection lifecycle transitions.
type ConnectionEvent struct {
	// State is the new connection state ("OPEN", "CLOSED").
	State string `cbor:"1,keyasint"`

	// DeviceHandle identifies the backing physical device.
	DeviceHandle int32 `cbor:"2,keyasint,omitempty"`

	// Reason for the transition, if any ("heartbeat timeout",
	// "transport disconnect", "shutdown").
	Reason string `cbor:"3,keyasint,omitempty"`
}

// SessionEvent captures session and service lifecycle within a connection.
type SessionEvent struct {
	// SessionID is the per-connection session identifier.
	SessionID uint8 `cbor:"1,keyasint"`

	// ServiceType is the affected service, if the event is service-scoped.
	ServiceType *uint8 `cbor:"2,keyasint,omitempty"`

	// Action describes what happened ("started", "ended", "cascaded").
	Action string `cbor:"3,keyasint"`
}

// HeartbeatEvent captures liveness activity.
type HeartbeatEvent struct {
	// Kind is "keepalive", "expired" or "stopped".
	Kind string `cbor:"1,keyasint"`

	// SinceActivity is the elapsed time since last activity at expiry.
	// Stored as nanoseconds.
	SinceActivity *time.Duration `cbor:"2,keyasint,omitempty"`
}

// SecurityEvent captures security-binding changes on a service.
type SecurityEvent struct {
	// SessionID is the per-connection session identifier.
	SessionID uint8 `cbor:"1,keyasint"`

	// ServiceType is the protected service.
	ServiceType uint8 `cbor:"2,keyasint"`

	// Action is "bound", "replaced" or "released".
	Action string `cbor:"3,keyasint"`
}

// ErrorEvent captures errors at any layer.
type ErrorEvent struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
