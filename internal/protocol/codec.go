package protocol

import "unicode/utf8"

// MaxVarintLen32 is the maximum number of bytes a uint32 occupies in 7-bit group encoding.
const MaxVarintLen32 = 5

// AppendUvarint appends v in 7-bit group encoding: 7 bits of data per byte,
// MSB set on every byte except the last.
func AppendUvarint(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// DecodeUvarint decodes a 7-bit group encoded uint32 from buf.
// Returns (value, bytesRead). If bytesRead < 0, decoding failed:
//   - -1: buffer too short (incomplete varint)
//   - -2: overflow (does not fit in 32 bits)
func DecodeUvarint(buf []byte) (uint32, int) {
	var v uint32
	var shift uint
	for i, b := range buf {
		if i >= MaxVarintLen32 {
			return 0, -2
		}
		if i == MaxVarintLen32-1 && b > 0x0F {
			return 0, -2
		}
		v |= uint32(b&0x7F) << shift
		if b < 0x80 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, -1
}

// Encoder builds packet payloads.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// Bytes returns the encoded payload.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// WriteBool writes a single 0/1 byte.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

// WriteString writes a length-prefixed UTF-8 string. Strings over max bytes
// or with invalid UTF-8 are refused so that nothing undecodable reaches the wire.
func (e *Encoder) WriteString(field, s string, max int) error {
	if len(s) > max {
		return &EncodeError{Field: field, Err: ErrStringTooLong}
	}
	if !utf8.ValidString(s) {
		return &EncodeError{Field: field, Err: ErrInvalidUTF8}
	}
	e.buf = AppendUvarint(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

// Decoder reads packet payload fields.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a decoder over buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// ReadBool reads a 0/1 byte.
func (d *Decoder) ReadBool(field string) (bool, error) {
	if d.pos >= len(d.buf) {
		return false, &DecodeError{Field: field, Err: ErrTruncated}
	}
	b := d.buf[d.pos]
	d.pos++
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, &DecodeError{Field: field, Err: ErrInvalidBool}
	}
}

// ReadString reads a length-prefixed UTF-8 string of at most max bytes.
// The length is checked before anything is copied.
func (d *Decoder) ReadString(field string, max int) (string, error) {
	n, read := DecodeUvarint(d.buf[d.pos:])
	switch {
	case read == -1:
		return "", &DecodeError{Field: field, Err: ErrTruncated}
	case read < 0:
		return "", &DecodeError{Field: field, Err: ErrVarintOverflow}
	}
	if uint64(n) > uint64(max) {
		return "", &DecodeError{Field: field, Err: ErrStringTooLong}
	}
	start := d.pos + read
	if len(d.buf)-start < int(n) {
		return "", &DecodeError{Field: field, Err: ErrTruncated}
	}
	raw := d.buf[start : start+int(n)]
	if !utf8.Valid(raw) {
		return "", &DecodeError{Field: field, Err: ErrInvalidUTF8}
	}
	d.pos = start + int(n)
	return string(raw), nil
}

// Finish returns an error if unread bytes remain.
func (d *Decoder) Finish() error {
	if d.Remaining() != 0 {
		return &DecodeError{Field: "payload", Err: ErrTrailingBytes}
	}
	return nil
}
