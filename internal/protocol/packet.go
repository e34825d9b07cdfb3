package protocol

import (
	"encoding/binary"
	"fmt"
)

// Wire constants.
const (
	// HeaderSize is the fixed frame header: type (1 byte) + payload length (4 bytes).
	HeaderSize = 5

	// MaxPayloadSize is the hard cap on a single frame's payload.
	MaxPayloadSize = 65535

	// MaxNameLength is the maximum subscriber name size in bytes.
	MaxNameLength = 256

	// MaxNewsFieldLength is the maximum size in bytes of a news title, description or content.
	MaxNewsFieldLength = 1024
)

// ByteOrder is the byte order of every multi-byte integer on the wire.
var ByteOrder = binary.LittleEndian

// PacketType identifies the kind of packet carried by a frame.
type PacketType uint8

const (
	PacketSubscribe   PacketType = 0x00 // handshake, direction-dependent payload
	PacketUnsubscribe PacketType = 0x01 // disconnect notice, empty payload
	PacketNews        PacketType = 0x02 // content delivery
)

// String returns the string representation of the packet type.
func (pt PacketType) String() string {
	switch pt {
	case PacketSubscribe:
		return "Subscribe"
	case PacketUnsubscribe:
		return "Unsubscribe"
	case PacketNews:
		return "News"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(pt))
	}
}

// Valid reports whether pt is a known packet type.
func (pt PacketType) Valid() bool {
	return pt <= PacketNews
}

// Packet is one protocol message.
//
// Wire format (5 bytes header + variable payload):
//
//	┌─────────────┬───────────────────────────────┐
//	│ Packet Type │ Payload Length                │
//	│ (1 byte)    │ (4 bytes, little-endian)      │
//	└─────────────┴───────────────────────────────┘
//	│  Payload (Payload Length bytes)             │
//	└─────────────────────────────────────────────┘
type Packet struct {
	Type    PacketType
	Payload []byte
}

// Len returns the payload length written in the header.
func (p Packet) Len() uint32 {
	return uint32(len(p.Payload))
}

// Encode returns the complete frame for p.
func (p Packet) Encode() ([]byte, error) {
	if !p.Type.Valid() {
		return nil, &FramingError{Err: ErrUnknownPacketType}
	}
	if len(p.Payload) > MaxPayloadSize {
		return nil, &FramingError{Err: ErrPayloadTooLarge}
	}
	buf := make([]byte, HeaderSize+len(p.Payload))
	buf[0] = byte(p.Type)
	ByteOrder.PutUint32(buf[1:HeaderSize], p.Len())
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// NewSubscribeRequest builds the client→server Subscribe packet carrying name.
func NewSubscribeRequest(name string) (Packet, error) {
	e := NewEncoder()
	if err := e.WriteString("name", name, MaxNameLength); err != nil {
		return Packet{}, err
	}
	return Packet{Type: PacketSubscribe, Payload: e.Bytes()}, nil
}

// NewSubscribeResponse builds the server→client Subscribe packet.
func NewSubscribeResponse(accepted bool) Packet {
	e := NewEncoder()
	e.WriteBool(accepted)
	return Packet{Type: PacketSubscribe, Payload: e.Bytes()}
}

// NewUnsubscribe builds an Unsubscribe packet.
func NewUnsubscribe() Packet {
	return Packet{Type: PacketUnsubscribe}
}

// NewNewsPacket builds a News packet.
func NewNewsPacket(n News) (Packet, error) {
	e := NewEncoder()
	if err := e.WriteString("title", n.Title, MaxNewsFieldLength); err != nil {
		return Packet{}, err
	}
	if err := e.WriteString("description", n.Description, MaxNewsFieldLength); err != nil {
		return Packet{}, err
	}
	if err := e.WriteString("content", n.Content, MaxNewsFieldLength); err != nil {
		return Packet{}, err
	}
	return Packet{Type: PacketNews, Payload: e.Bytes()}, nil
}

// SubscribeName decodes the name of a client→server Subscribe packet.
func (p Packet) SubscribeName() (string, error) {
	if p.Type != PacketSubscribe {
		return "", &DecodeError{Field: "name", Err: ErrWrongPacketType}
	}
	d := NewDecoder(p.Payload)
	name, err := d.ReadString("name", MaxNameLength)
	if err != nil {
		return "", err
	}
	if err := d.Finish(); err != nil {
		return "", err
	}
	return name, nil
}

// SubscribeAccepted decodes a server→client Subscribe packet.
func (p Packet) SubscribeAccepted() (bool, error) {
	if p.Type != PacketSubscribe {
		return false, &DecodeError{Field: "accepted", Err: ErrWrongPacketType}
	}
	d := NewDecoder(p.Payload)
	ok, err := d.ReadBool("accepted")
	if err != nil {
		return false, err
	}
	if err := d.Finish(); err != nil {
		return false, err
	}
	return ok, nil
}

// News decodes a News packet.
func (p Packet) News() (News, error) {
	if p.Type != PacketNews {
		return News{}, &DecodeError{Field: "news", Err: ErrWrongPacketType}
	}
	d := NewDecoder(p.Payload)
	title, err := d.ReadString("title", MaxNewsFieldLength)
	if err != nil {
		return News{}, err
	}
	description, err := d.ReadString("description", MaxNewsFieldLength)
	if err != nil {
		return News{}, err
	}
	content, err := d.ReadString("content", MaxNewsFieldLength)
	if err != nil {
		return News{}, err
	}
	if err := d.Finish(); err != nil {
		return News{}, err
	}
	return News{Title: title, Description: description, Content: content}, nil
}

// EncodeNews is a shortcut for building and framing a News packet.
func EncodeNews(n News) ([]byte, error) {
	p, err := NewNewsPacket(n)
	if err != nil {
		return nil, err
	}
	return p.Encode()
}
