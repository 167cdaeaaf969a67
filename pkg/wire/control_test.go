package wire

import (
	"testing"
)

func TestControlMessageRoundTrip(t *testing.T) {
	msg := &ControlMessage{
		Type:        ControlStartService,
		SessionID:   3,
		ServiceType: ServiceTypeAudio,
	}

	data, err := EncodeControlMessage(msg)
	if err != nil {
		t.Fatalf("EncodeControlMessage: %v", err)
	}

	decoded, err := DecodeControlMessage(data)
	if err != nil {
		t.Fatalf("DecodeControlMessage: %v", err)
	}

	if decoded.Type != ControlStartService {
		t.Errorf("Type = %v, want %v", decoded.Type, ControlStartService)
	}
	if decoded.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", decoded.SessionID)
	}
	if decoded.ServiceType != ServiceTypeAudio {
		t.Errorf("ServiceType = %v, want %v", decoded.ServiceType, ServiceTypeAudio)
	}
}

func TestControlMessageNackCarriesStatus(t *testing.T) {
	msg := &ControlMessage{
		Type:        ControlStartServiceNack,
		SessionID:   0,
		ServiceType: ServiceTypeVideo,
		Status:      StatusAlreadyExists,
	}

	data, err := EncodeControlMessage(msg)
	if err != nil {
		t.Fatalf("EncodeControlMessage: %v", err)
	}

	decoded, err := DecodeControlMessage(data)
	if err != nil {
		t.Fatalf("DecodeControlMessage: %v", err)
	}
	if decoded.Status != StatusAlreadyExists {
		t.Errorf("Status = %v, want %v", decoded.Status, StatusAlreadyExists)
	}
}

func TestControlMessageValidation(t *testing.T) {
	// Unknown type rejected
	if _, err := EncodeControlMessage(&ControlMessage{Type: 99}); err == nil {
		t.Error("expected error for unknown control type")
	}

	// Service frame with invalid service type rejected
	bad := &ControlMessage{Type: ControlStartService, ServiceType: ServiceType(0x42)}
	if _, err := EncodeControlMessage(bad); err == nil {
		t.Error("expected error for invalid service type")
	}

	// Ping needs no service type
	ping := &ControlMessage{Type: ControlPing, Sequence: 7}
	if _, err := EncodeControlMessage(ping); err != nil {
		t.Errorf("ping should encode: %v", err)
	}
}

func TestDecodeControlMessageGarbage(t *testing.T) {
	if _, err := DecodeControlMessage([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestPeekControlType(t *testing.T) {
	data, err := EncodeControlMessage(&ControlMessage{Type: ControlPong, Sequence: 12})
	if err != nil {
		t.Fatalf("EncodeControlMessage: %v", err)
	}

	typ, err := PeekControlType(data)
	if err != nil {
		t.Fatalf("PeekControlType: %v", err)
	}
	if typ != ControlPong {
		t.Errorf("PeekControlType = %v, want %v", typ, ControlPong)
	}
}

func TestServiceTypePrimary(t *testing.T) {
	if !ServiceTypeControl.IsPrimary() {
		t.Error("control service must be primary")
	}
	for _, st := range []ServiceType{ServiceTypeRPC, ServiceTypeAudio, ServiceTypeVideo, ServiceTypeNavigation, ServiceTypeBulk} {
		if st.IsPrimary() {
			t.Errorf("%v must not be primary", st)
		}
		if !st.IsValid() {
			t.Errorf("%v must be valid", st)
		}
	}
	if ServiceTypeInvalid.IsValid() {
		t.Error("invalid service type must not validate")
	}
}
