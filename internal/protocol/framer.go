package protocol

// framerState is the position of the framer inside the current frame.
type framerState uint8

const (
	stateAwaitingHeader framerState = iota
	stateAwaitingBody
)

// Framer turns a byte stream delivered in arbitrary chunks into complete packets.
//
// A chunk boundary never implies a packet boundary: a packet may span many
// chunks and one chunk may carry many packets. Feeding the same stream with
// any chunking yields the same packets.
//
// A Framer is not safe for concurrent use; each connection owns one.
type Framer struct {
	maxPayload uint32

	state     framerState
	header    [HeaderSize]byte
	headerLen int

	packetType PacketType
	body       []byte // allocated once the header is validated
	bodyLen    int

	err error
}

// NewFramer creates a framer that rejects frames whose payload exceeds maxPayload.
// maxPayload is clamped to MaxPayloadSize.
func NewFramer(maxPayload uint32) *Framer {
	if maxPayload == 0 || maxPayload > MaxPayloadSize {
		maxPayload = MaxPayloadSize
	}
	return &Framer{maxPayload: maxPayload}
}

// Feed consumes chunk and returns every packet it completes, in stream order.
// After an error the framer is unusable and keeps returning that error.
func (f *Framer) Feed(chunk []byte) ([]Packet, error) {
	if f.err != nil {
		return nil, f.err
	}

	var packets []Packet
	for len(chunk) > 0 {
		switch f.state {
		case stateAwaitingHeader:
			n := copy(f.header[f.headerLen:], chunk)
			f.headerLen += n
			chunk = chunk[n:]
			if f.headerLen < HeaderSize {
				continue
			}
			if err := f.parseHeader(); err != nil {
				f.err = err
				return packets, err
			}
			if len(f.body) == 0 {
				packets = append(packets, f.emit())
			}

		case stateAwaitingBody:
			n := copy(f.body[f.bodyLen:], chunk)
			f.bodyLen += n
			chunk = chunk[n:]
			if f.bodyLen == len(f.body) {
				packets = append(packets, f.emit())
			}
		}
	}
	return packets, nil
}

// Buffered returns how many bytes of the current incomplete frame are held.
func (f *Framer) Buffered() int {
	return f.headerLen + f.bodyLen
}

// Err returns the error that stopped the framer, if any.
func (f *Framer) Err() error {
	return f.err
}

func (f *Framer) parseHeader() error {
	pt := PacketType(f.header[0])
	length := ByteOrder.Uint32(f.header[1:])

	if !pt.Valid() {
		return &FramingError{Type: pt, Length: length, Err: ErrUnknownPacketType}
	}
	// checked before allocating the body
	if length > f.maxPayload {
		return &FramingError{Type: pt, Length: length, Err: ErrPayloadTooLarge}
	}

	f.packetType = pt
	f.body = make([]byte, length)
	f.bodyLen = 0
	f.state = stateAwaitingBody
	return nil
}

func (f *Framer) emit() Packet {
	p := Packet{Type: f.packetType}
	if len(f.body) > 0 {
		p.Payload = f.body
	}
	f.state = stateAwaitingHeader
	f.headerLen = 0
	f.body = nil
	f.bodyLen = 0
	return p
}
