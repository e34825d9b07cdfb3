package protocol

import (
	"errors"
	"fmt"
)

// Framing errors.
var (
	ErrPayloadTooLarge   = errors.New("protocol: payload length exceeds limit")
	ErrUnknownPacketType = errors.New("protocol: unknown packet type")
)

// Decoding errors. ErrStringTooLong and ErrInvalidUTF8 are also used when encoding.
var (
	ErrTruncated       = errors.New("protocol: payload truncated")
	ErrVarintOverflow  = errors.New("protocol: string length varint overflow")
	ErrStringTooLong   = errors.New("protocol: string exceeds maximum length")
	ErrInvalidUTF8     = errors.New("protocol: string is not valid UTF-8")
	ErrInvalidBool     = errors.New("protocol: invalid boolean value")
	ErrTrailingBytes   = errors.New("protocol: unexpected bytes after last field")
	ErrWrongPacketType = errors.New("protocol: wrong packet type for payload")
)

// FramingError reports a malformed frame header. The connection that produced
// it must be dropped.
type FramingError struct {
	Type   PacketType
	Length uint32
	Err    error
}

func (e *FramingError) Error() string {
	if e.Length > 0 {
		return fmt.Sprintf("framing error (type=%s length=%d): %v", e.Type, e.Length, e.Err)
	}
	return fmt.Sprintf("framing error: %v", e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// DecodeError reports an invalid payload field.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a field that was refused before it reached the wire.
type EncodeError struct {
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Field, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is a framing, decoding or encoding error.
func IsProtocolError(err error) bool {
	var fe *FramingError
	var de *DecodeError
	var ee *EncodeError
	return errors.As(err, &fe) || errors.As(err, &de) || errors.As(err, &ee)
}
