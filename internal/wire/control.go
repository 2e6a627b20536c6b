package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// ControlMagic and ControlVersion identify the control-plane frame on the
// wire; see spec §4.1 and §6.
const (
	ControlMagic   uint16 = 0xC0DE
	ControlVersion uint16 = 1

	controlHeaderLen = 10 // magic(2) + version(2) + opcode(2) + payload_len(4)
)

// Opcode is the control frame's operation code.
type Opcode uint16

const (
	OpSetConfig Opcode = 1
	OpStart     Opcode = 2
	OpStop      Opcode = 3
	OpGetStatus Opcode = 4
	OpPing      Opcode = 5
	OpAck       Opcode = 6
	OpErr       Opcode = 7
)

func (o Opcode) String() string {
	switch o {
	case OpSetConfig:
		return "SET_CONFIG"
	case OpStart:
		return "START"
	case OpStop:
		return "STOP"
	case OpGetStatus:
		return "GET_STATUS"
	case OpPing:
		return "PING"
	case OpAck:
		return "ACK"
	case OpErr:
		return "ERR"
	default:
		return fmt.Sprintf("OPCODE(%d)", uint16(o))
	}
}

// ControlFrame is the raw wire shape of a control message: a fixed header
// plus a JSON payload. Ephemeral — one round trip per command.
type ControlFrame struct {
	Opcode  Opcode
	Payload []byte
}

// Encode serializes the control frame per spec §4.1/§6:
//
//	u16 magic, u16 version, u16 opcode, u32 payload_len, payload bytes.
func (f ControlFrame) Encode() []byte {
	out := make([]byte, controlHeaderLen+len(f.Payload))
	binary.BigEndian.PutUint16(out[0:2], ControlMagic)
	binary.BigEndian.PutUint16(out[2:4], ControlVersion)
	binary.BigEndian.PutUint16(out[4:6], uint16(f.Opcode))
	binary.BigEndian.PutUint32(out[6:10], uint32(len(f.Payload)))
	copy(out[controlHeaderLen:], f.Payload)
	return out
}

// DecodeControlHeader parses the fixed 10-byte header and returns the
// opcode and the declared payload length. Callers read exactly that many
// more bytes and build a ControlFrame directly once the payload is in hand
// (DecodeControlFrame takes the header and payload together).
func DecodeControlHeader(header []byte) (Opcode, uint32, error) {
	if len(header) < controlHeaderLen {
		return 0, 0, ErrShortHeader
	}
	magic := binary.BigEndian.Uint16(header[0:2])
	version := binary.BigEndian.Uint16(header[2:4])
	if magic != ControlMagic {
		return 0, 0, ErrBadMagic
	}
	if version != ControlVersion {
		return 0, 0, ErrUnsupportedVersion
	}
	opcode := Opcode(binary.BigEndian.Uint16(header[4:6]))
	payloadLen := binary.BigEndian.Uint32(header[6:10])
	return opcode, payloadLen, nil
}

// DecodeControlFrame decodes a full control frame (header + payload)
// already assembled in memory — used by tests and by callers that read the
// stream in one shot. Production code on the stream path decodes the
// header and payload in two reads (see internal/streamio) since the
// payload length is only known after the header.
func DecodeControlFrame(data []byte) (ControlFrame, error) {
	opcode, payloadLen, err := DecodeControlHeader(data)
	if err != nil {
		return ControlFrame{}, err
	}
	if uint32(len(data)-controlHeaderLen) < payloadLen {
		return ControlFrame{}, ErrShortPayload
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[controlHeaderLen:controlHeaderLen+int(payloadLen)])
	return ControlFrame{Opcode: opcode, Payload: payload}, nil
}

// ControlMessage is the tagged-union view of a control frame named in
// spec §9: dynamic-typing-to-sum-type generalization of the opcode+payload
// pair. Exactly one of the accessor-relevant fields is meaningful for a
// given Kind.
type ControlMessage struct {
	Kind      Opcode
	SetConfig SetConfigPayload
	AckBody   []byte
	ErrBody   []byte
	Status    StatusPayload
}

// SetConfigPayload is SET_CONFIG's JSON body. All fields are optional;
// unknown keys are ignored; "sample_window" (spec §9.i alternative key) is
// treated as unknown, not as an alias for SamplesPerBlock.
type SetConfigPayload struct {
	Frequency       *int  `json:"frequency,omitempty"`
	SamplesPerBlock *int  `json:"samples_per_block,omitempty"`
	Channels        []int `json:"channels,omitempty"`
	UDPPort         *int  `json:"udp_port,omitempty"`
}

// StatusPayload is GET_STATUS's ACK JSON body.
type StatusPayload struct {
	IsStreaming     bool  `json:"is_streaming"`
	Frequency       int   `json:"frequency"`
	SamplesPerBlock int   `json:"samples_per_block"`
	Channels        []int `json:"channels"`
	SequenceID      uint32 `json:"sequence_id"`
}

// MarshalSetConfig encodes a SetConfigPayload to JSON.
func MarshalSetConfig(p SetConfigPayload) ([]byte, error) { return json.Marshal(p) }

// UnmarshalSetConfig decodes SET_CONFIG's JSON payload. An empty payload
// decodes to a payload with all fields absent (no fields to apply).
func UnmarshalSetConfig(payload []byte) (SetConfigPayload, error) {
	var p SetConfigPayload
	if len(payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return SetConfigPayload{}, err
	}
	return p, nil
}

// MarshalStatus encodes a StatusPayload to JSON.
func MarshalStatus(p StatusPayload) ([]byte, error) { return json.Marshal(p) }

// UnmarshalStatus decodes a GET_STATUS ACK JSON payload.
func UnmarshalStatus(payload []byte) (StatusPayload, error) {
	var p StatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return StatusPayload{}, err
	}
	return p, nil
}
