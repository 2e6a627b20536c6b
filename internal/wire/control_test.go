package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestControlFrame_RoundTrip(t *testing.T) {
	payload, err := MarshalSetConfig(SetConfigPayload{
		Frequency:       intPtr(50),
		SamplesPerBlock: intPtr(10),
		Channels:        []int{0, 1, 2},
		UDPPort:         intPtr(5999),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	frame := ControlFrame{Opcode: OpSetConfig, Payload: payload}
	wire := frame.Encode()

	// Scenario 1: exact header bytes.
	wantHeaderPrefix := []byte{0xC0, 0xDE, 0x00, 0x01, 0x00, 0x01}
	if !bytes.Equal(wire[:6], wantHeaderPrefix) {
		t.Fatalf("header prefix = % X, want % X", wire[:6], wantHeaderPrefix)
	}

	decoded, err := DecodeControlFrame(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Opcode != OpSetConfig {
		t.Fatalf("opcode = %v, want SET_CONFIG", decoded.Opcode)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch:\ngot  %s\nwant %s", decoded.Payload, payload)
	}
}

func TestControlFrame_EmptyPayload(t *testing.T) {
	frame := ControlFrame{Opcode: OpPing}
	wire := frame.Encode()
	if len(wire) != controlHeaderLen {
		t.Fatalf("len = %d, want %d", len(wire), controlHeaderLen)
	}
	decoded, err := DecodeControlFrame(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Payload) != 0 {
		t.Fatalf("payload = %v, want empty", decoded.Payload)
	}
}

func TestDecodeControlHeader_Errors(t *testing.T) {
	if _, _, err := DecodeControlHeader([]byte{0x00}); err != ErrShortHeader {
		t.Fatalf("short header: err = %v, want ErrShortHeader", err)
	}
	bad := ControlFrame{Opcode: OpPing}.Encode()
	bad[0] = 0xAA
	if _, _, err := DecodeControlHeader(bad); err != ErrBadMagic {
		t.Fatalf("bad magic: err = %v, want ErrBadMagic", err)
	}
	badVer := ControlFrame{Opcode: OpPing}.Encode()
	badVer[3] = 0x02
	if _, _, err := DecodeControlHeader(badVer); err != ErrUnsupportedVersion {
		t.Fatalf("bad version: err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestSetConfig_UnknownKeysIgnored(t *testing.T) {
	// spec §9(i): "sample_window" is an alternative key that must be
	// treated as unknown, not as an alias for samples_per_block.
	payload := []byte(`{"frequency":50,"sample_window":20}`)
	p, err := UnmarshalSetConfig(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Frequency == nil || *p.Frequency != 50 {
		t.Fatalf("frequency = %v, want 50", p.Frequency)
	}
	if p.SamplesPerBlock != nil {
		t.Fatalf("samples_per_block = %v, want nil (sample_window must not alias it)", p.SamplesPerBlock)
	}
}

func TestStatusPayload_RoundTrip(t *testing.T) {
	status := StatusPayload{IsStreaming: true, Frequency: 50, SamplesPerBlock: 10, Channels: []int{0, 1}, SequenceID: 42}
	b, err := MarshalStatus(status)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalStatus(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, status) {
		t.Fatalf("got %+v, want %+v", got, status)
	}
}

func intPtr(v int) *int { return &v }
