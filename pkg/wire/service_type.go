package wire

// ServiceType identifies one logical channel multiplexed over a session.
// Values match the link protocol's service numbering.
type ServiceType uint8

const (
	// ServiceTypeControl is the session-control channel. It is the primary
	// service: it anchors the session, and removing it tears the whole
	// session down.
	ServiceTypeControl ServiceType = 0x00

	// ServiceTypeRPC carries application RPC traffic.
	ServiceTypeRPC ServiceType = 0x07

	// ServiceTypeAudio carries PCM audio streaming.
	ServiceTypeAudio ServiceType = 0x0A

	// ServiceTypeVideo carries video streaming.
	ServiceTypeVideo ServiceType = 0x0B

	// ServiceTypeNavigation carries turn-by-turn navigation data.
	ServiceTypeNavigation ServiceType = 0x0C

	// ServiceTypeBulk carries bulk data transfer (e.g. app icons, logs).
	ServiceTypeBulk ServiceType = 0x0F

	// ServiceTypeInvalid marks an unset or unrecognized service type.
	ServiceTypeInvalid ServiceType = 0xFF
)

// String returns the service type name.
func (t ServiceType) String() string {
	switch t {
	case ServiceTypeControl:
		return "CONTROL"
	case ServiceTypeRPC:
		return "RPC"
	case ServiceTypeAudio:
		return "AUDIO"
	case ServiceTypeVideo:
		return "VIDEO"
	case ServiceTypeNavigation:
		return "NAVIGATION"
	case ServiceTypeBulk:
		return "BULK"
	default:
		return "INVALID"
	}
}

// IsValid returns true for a known service type.
func (t ServiceType) IsValid() bool {
	switch t {
	case ServiceTypeControl, ServiceTypeRPC, ServiceTypeAudio,
		ServiceTypeVideo, ServiceTypeNavigation, ServiceTypeBulk:
		return true
	default:
		return false
	}
}

// IsPrimary returns true if the type anchors a session's existence.
func (t ServiceType) IsPrimary() bool {
	return t == ServiceTypeControl
}
