package protocol

import (
	"errors"
	"fmt"
)

// Job construction errors.
var (
	// ErrEmptyImage indicates a print request with no image bytes.
	ErrEmptyImage = errors.New("image is empty")

	// ErrImageTooLarge indicates the image would chunk into more than 65535
	// blocks, which cannot be represented in the Start frame's 16-bit block
	// count word.
	ErrImageTooLarge = errors.New("image exceeds 65535 blocks")
)

// DecodeErrorKind classifies inbound frame decode failures.
type DecodeErrorKind int

const (
	// KindBadLength means the buffer is not the fixed frame length.
	KindBadLength DecodeErrorKind = iota
	// KindUnknownOpcode means the marker or opcode byte is not recognized.
	KindUnknownOpcode
)

// DecodeError reports a malformed or unrecognized inbound frame. Unknown
// opcodes are routinely discarded by the state machine; a bad length on a
// frame the machine is actively awaiting fails that job.
type DecodeError struct {
	Kind   DecodeErrorKind
	Length int  // set for KindBadLength
	Opcode byte // set for KindUnknownOpcode
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindBadLength:
		return fmt.Sprintf("decode: bad frame length %d", e.Length)
	case KindUnknownOpcode:
		return fmt.Sprintf("decode: unknown opcode 0x%02X", e.Opcode)
	default:
		return "decode: malformed frame"
	}
}

// EncodingError reports an attempt to encode a frame from invalid inputs.
// This is a programmer error, not a recoverable protocol condition.
type EncodingError struct {
	Reason string
	Length int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode: %s (got %d)", e.Reason, e.Length)
}
