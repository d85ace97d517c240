package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeEthernetRoundTrip(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	encoded := EncodeEthernet(payload)
	f, err := Decode(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Op != OpEthernet {
		t.Fatalf("op = %v, want OpEthernet", f.Op)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload = %v, want %v", f.Payload, payload)
	}
}

func TestEncodeDecodeControlRoundTrip(t *testing.T) {
	mac := []byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	encoded := EncodeControl(CtrlAssignMac, mac)
	f, err := Decode(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Op != OpControl || f.Ctrl != CtrlAssignMac {
		t.Fatalf("got op=%v ctrl=%v", f.Op, f.Ctrl)
	}
	if !bytes.Equal(f.Payload, mac) {
		t.Fatalf("payload = %v, want %v", f.Payload, mac)
	}
}

func TestDecodeEmptyIsMalformed(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeShortControlIsMalformed(t *testing.T) {
	if _, err := Decode([]byte{byte(OpControl)}); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeUnknownOpcodeIsMalformed(t *testing.T) {
	for b := 3; b <= 255; b++ {
		if _, err := Decode([]byte{byte(b), 0x00}); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("opcode %d: err = %v, want ErrMalformedFrame", b, err)
		}
	}
}

func TestDecodeUnknownControlTypeIsMalformed(t *testing.T) {
	for b := 3; b <= 255; b++ {
		if _, err := Decode([]byte{byte(OpControl), byte(b)}); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("ctrl %d: err = %v, want ErrMalformedFrame", b, err)
		}
	}
}

func TestDecodeZeroLengthEthernetPayloadIsValid(t *testing.T) {
	// The codec itself does not drop zero-length Ethernet payloads; that
	// policy lives in the session's upstream handler (spec §4.H edge case).
	f, err := Decode(EncodeEthernet(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Payload) != 0 {
		t.Fatalf("payload len = %d, want 0", len(f.Payload))
	}
}
