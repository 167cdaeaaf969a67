package log

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for log events.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for log events.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeUnixMicro,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// MarshalEvent encodes an event to CBOR bytes.
func MarshalEvent(e Event) ([]byte, error) {
	return encMode.Marshal(e)
}

// UnmarshalEvent decodes CBOR bytes into an event.
func UnmarshalEvent(data []byte, e *Event) error {
	return decMode.Unmarshal(data, e)
}
