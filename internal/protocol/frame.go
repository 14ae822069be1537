// Package protocol implements the LX-D01 wire protocol: 12-byte control
// frames and 20-byte data frames exchanged over the printer's FFE1/FFE2
// characteristics. All functions are pure; the package holds no state.
package protocol

import "encoding/binary"

const (
	// ControlMarker is the first byte of every control frame, host- and
	// device-originated alike.
	ControlMarker = 0x5A

	// DataMarker and DataMarkerPad are the two-byte prefix of every data
	// frame carrying image payload.
	DataMarker    = 0x55
	DataMarkerPad = 0x00

	// ControlFrameLen is the fixed control frame length. Unused words are
	// zero-filled; the length never varies with the opcode.
	ControlFrameLen = 12

	// DataFrameLen is the fixed data frame length: 2-byte marker, 2-byte
	// little-endian block index, 16 bytes of payload.
	DataFrameLen = 20

	// BlockPayloadLen is the payload capacity of a single data frame.
	BlockPayloadLen = 16
)

// AckToken is the w2 value distinguishing a completion acknowledgement from a
// job start. The device overloads opcode 0x04 for both; the token is how the
// two are told apart on the wire.
const AckToken uint16 = 0x0100

// Opcode identifies a control frame's meaning.
type Opcode byte

const (
	// OpStatus is sent by the device right after notifications are enabled
	// and carries battery/paper capability words.
	OpStatus Opcode = 0x02
	// OpStart is sent by the host to begin a job, and again with AckToken in
	// w2 to acknowledge completion. The device echoes it back.
	OpStart Opcode = 0x04
	// OpComplete is sent by the device when all blocks have been printed,
	// repeatedly until the host acknowledges.
	OpComplete Opcode = 0x06
	// OpMidProgress is an informational frame the device emits while
	// printing. It never requires a host response.
	OpMidProgress Opcode = 0x07
)

// String returns the conventional name of the opcode.
func (op Opcode) String() string {
	switch op {
	case OpStatus:
		return "Status"
	case OpStart:
		return "Start"
	case OpComplete:
		return "Complete"
	case OpMidProgress:
		return "MidProgress"
	default:
		return "Unknown"
	}
}

func (op Opcode) known() bool {
	switch op {
	case OpStatus, OpStart, OpComplete, OpMidProgress:
		return true
	}
	return false
}

// ControlFrame is a decoded 12-byte control message. The meaning of W1..W5
// depends on the opcode and direction; unused words are zero.
type ControlFrame struct {
	Op Opcode
	W1 uint16
	W2 uint16
	W3 uint16
	W4 uint16
	W5 uint16
}

// Encode serializes the frame into a fresh 12-byte buffer.
func (f ControlFrame) Encode() []byte {
	buf := make([]byte, ControlFrameLen)
	buf[0] = ControlMarker
	buf[1] = byte(f.Op)
	binary.LittleEndian.PutUint16(buf[2:], f.W1)
	binary.LittleEndian.PutUint16(buf[4:], f.W2)
	binary.LittleEndian.PutUint16(buf[6:], f.W3)
	binary.LittleEndian.PutUint16(buf[8:], f.W4)
	binary.LittleEndian.PutUint16(buf[10:], f.W5)
	return buf
}

// DecodeControl parses a 12-byte control frame. It returns a DecodeError with
// KindBadLength if the input is not exactly 12 bytes, and KindUnknownOpcode
// if the marker or opcode byte is not recognized. Unknown-but-well-formed
// frames are safe to discard; the caller decides whether that is fatal.
func DecodeControl(data []byte) (ControlFrame, error) {
	if len(data) != ControlFrameLen {
		return ControlFrame{}, &DecodeError{Kind: KindBadLength, Length: len(data)}
	}
	if data[0] != ControlMarker {
		return ControlFrame{}, &DecodeError{Kind: KindUnknownOpcode, Opcode: data[0]}
	}
	op := Opcode(data[1])
	if !op.known() {
		return ControlFrame{}, &DecodeError{Kind: KindUnknownOpcode, Opcode: data[1]}
	}
	return ControlFrame{
		Op: op,
		W1: binary.LittleEndian.Uint16(data[2:]),
		W2: binary.LittleEndian.Uint16(data[4:]),
		W3: binary.LittleEndian.Uint16(data[6:]),
		W4: binary.LittleEndian.Uint16(data[8:]),
		W5: binary.LittleEndian.Uint16(data[10:]),
	}, nil
}

// StartFrame builds the job start control frame: w1 carries the block count,
// w2 the job id / copy count.
func StartFrame(blockCount, jobID uint16) ControlFrame {
	return ControlFrame{Op: OpStart, W1: blockCount, W2: jobID}
}

// AckFrame builds the completion acknowledgement. Same opcode as StartFrame;
// the AckToken in w2 is what makes it an ack on the wire.
func AckFrame(blockCount uint16) ControlFrame {
	return ControlFrame{Op: OpStart, W1: blockCount, W2: AckToken}
}

// IsCompletionOf reports whether the frame is the device's completion notice
// for a job of blockCount blocks.
func (f ControlFrame) IsCompletionOf(blockCount uint16) bool {
	return f.Op == OpComplete && f.W1 == blockCount
}

// DataFrame is a decoded 20-byte image data message.
type DataFrame struct {
	Index   uint16
	Payload [BlockPayloadLen]byte
}

// EncodeData serializes one image block into a 20-byte data frame. The
// payload must be exactly 16 bytes; shorter tails are padded by the job
// chunker, not here.
func EncodeData(index uint16, payload []byte) ([]byte, error) {
	if len(payload) != BlockPayloadLen {
		return nil, &EncodingError{Reason: "data frame payload must be 16 bytes", Length: len(payload)}
	}
	buf := make([]byte, DataFrameLen)
	buf[0] = DataMarker
	buf[1] = DataMarkerPad
	binary.LittleEndian.PutUint16(buf[2:], index)
	copy(buf[4:], payload)
	return buf, nil
}

// DecodeData parses a 20-byte data frame. The host only ever sends data
// frames; decoding exists for the reverse direction in tests and captures.
func DecodeData(data []byte) (DataFrame, error) {
	if len(data) != DataFrameLen {
		return DataFrame{}, &DecodeError{Kind: KindBadLength, Length: len(data)}
	}
	if data[0] != DataMarker || data[1] != DataMarkerPad {
		return DataFrame{}, &DecodeError{Kind: KindUnknownOpcode, Opcode: data[0]}
	}
	df := DataFrame{Index: binary.LittleEndian.Uint16(data[2:])}
	copy(df.Payload[:], data[4:])
	return df, nil
}
