package wire

// Status represents the result code carried in control acknowledgements.
type Status uint8

const (
	// StatusSuccess indicates the control request was applied.
	StatusSuccess Status = 0

	// StatusNotFound indicates the referenced session or service is absent.
	StatusNotFound Status = 1

	// StatusAlreadyExists indicates a duplicate service-type start.
	StatusAlreadyExists Status = 2

	// StatusResourceExhausted indicates no session identifier is free.
	StatusResourceExhausted Status = 3

	// StatusClosed indicates the connection is closed or closing.
	StatusClosed Status = 4

	// StatusProtected indicates the service requires a completed security
	// handshake before traffic is accepted.
	StatusProtected Status = 5

	// StatusMalformed indicates the control frame could not be decoded.
	StatusMalformed Status = 6
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusAlreadyExists:
		return "ALREADY_EXISTS"
	case StatusResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case StatusClosed:
		return "CLOSED"
	case StatusProtected:
		return "PROTECTED"
	case StatusMalformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
