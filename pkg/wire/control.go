package wire

import (
	"fmt"
)

// ControlMessageType identifies a session-control frame.
type ControlMessageType uint8

const (
	// ControlStartSession requests a new session on the connection.
	ControlStartSession ControlMessageType = 1

	// ControlStartSessionAck confirms a session start and carries the
	// allocated session ID.
	ControlStartSessionAck ControlMessageType = 2

	// ControlStartSessionNack rejects a session start.
	ControlStartSessionNack ControlMessageType = 3

	// ControlEndSession requests removal of an existing session.
	ControlEndSession ControlMessageType = 4

	// ControlStartService requests a new service within a session.
	ControlStartService ControlMessageType = 5

	// ControlStartServiceAck confirms a service start.
	ControlStartServiceAck ControlMessageType = 6

	// ControlStartServiceNack rejects a service start.
	ControlStartServiceNack ControlMessageType = 7

	// ControlEndService requests removal of a service from a session.
	ControlEndService ControlMessageType = 8

	// ControlPing is a heartbeat probe.
	ControlPing ControlMessageType = 9

	// ControlPong answers a heartbeat probe.
	ControlPong ControlMessageType = 10

	// ControlClose announces connection closure.
	ControlClose ControlMessageType = 11
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlStartSession:
		return "START_SESSION"
	case ControlStartSessionAck:
		return "START_SESSION_ACK"
	case ControlStartSessionNack:
		return "START_SESSION_NACK"
	case ControlEndSession:
		return "END_SESSION"
	case ControlStartService:
		return "START_SERVICE"
	case ControlStartServiceAck:
		return "START_SERVICE_ACK"
	case ControlStartServiceNack:
		return "START_SERVICE_NACK"
	case ControlEndService:
		return "END_SERVICE"
	case ControlPing:
		return "PING"
	case ControlPong:
		return "PONG"
	case ControlClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known control message type.
func (t ControlMessageType) IsValid() bool {
	return t >= ControlStartSession && t <= ControlClose
}

// ControlMessage is a session-control frame.
//
// CBOR encoding:
//
//	{
//	  1: type,         // uint8
//	  2: sessionId,    // uint8 (absent for connection-scoped frames)
//	  3: serviceType,  // uint8 (service frames only)
//	  4: status,       // uint8 (ack/nack frames only)
//	  5: sequence      // uint32 (ping/pong correlation)
//	}
type ControlMessage struct {
	Type        ControlMessageType `cbor:"1,keyasint"`
	SessionID   uint8              `cbor:"2,keyasint,omitempty"`
	ServiceType ServiceType        `cbor:"3,keyasint,omitempty"`
	Status      Status             `cbor:"4,keyasint,omitempty"`
	Sequence    uint32             `cbor:"5,keyasint,omitempty"`
}

// Validate checks if the control message is well formed.
func (m *ControlMessage) Validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid control message type: %d", m.Type)
	}
	switch m.Type {
	case ControlStartService, ControlStartServiceAck,
		ControlStartServiceNack, ControlEndService:
		if !m.ServiceType.IsValid() {
			return fmt.Errorf("invalid service type: %d", m.ServiceType)
		}
	}
	return nil
}

// EncodeControlMessage encodes a control message to CBOR bytes.
func EncodeControlMessage(m *ControlMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid control message: %w", err)
	}
	return Marshal(m)
}

// DecodeControlMessage decodes CBOR bytes into a control message.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	var m ControlMessage
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid control message: %w", err)
	}
	return &m, nil
}
