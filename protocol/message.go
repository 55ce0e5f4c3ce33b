/**
Framing of the image transfer protocol.

Communication is asynchronous and message based, both ends can send and
receive at the same time. All integers are little endian.

	Message      := Header Payload
	Header       := kind:int32 payloadSize:uint64
	StringUTF8   := length:uint64 bytes:uint8[length]
	Blob         := length:uint64 bytes:uint8[length]

The payload of a message is encoded depending on its kind, see the
constructors in messages.go.
**/
package protocol

import (
	"encoding/binary"
	"fmt"
)

type MessageKind int32

const (
	KindInvalid MessageKind = -1

	// No payload. Asks the other side to close the connection.
	KindClose MessageKind = 0
	// version:int32
	KindVersion MessageKind = 1
	// imageId:uint64 name:StringUTF8 viewerName:StringUTF8 flags:uint32 buffer:ImageBuffer
	// An empty buffer means the data has to be requested with KindRequestImageBuffer.
	KindImage MessageKind = 2
	// imageId:uint64
	KindRequestImageBuffer MessageKind = 3
	// imageId:uint64 buffer:ImageBuffer
	KindImageBuffer MessageKind = 4
)

// ProtocolVersion is sent by both sides right after the connection is up.
const ProtocolVersion int32 = 1

// HeaderSize is the encoded size of kind:int32 + payloadSize:uint64
const HeaderSize = 12

func (k MessageKind) String() string {
	switch k {
	case KindInvalid:
		return "Invalid"
	case KindClose:
		return "Close"
	case KindVersion:
		return "Version"
	case KindImage:
		return "Image"
	case KindRequestImageBuffer:
		return "RequestImageBuffer"
	case KindImageBuffer:
		return "ImageBuffer"
	default:
		return fmt.Sprintf("MessageKind(%d)", int32(k))
	}
}

func (k MessageKind) IsKnown() bool {
	return k >= KindClose && k <= KindImageBuffer
}

type Header struct {
	Kind        MessageKind
	PayloadSize uint64
}

func (h Header) Encode() []byte {
	raw := make([]byte, HeaderSize)
	h.EncodeInto(raw)
	return raw
}

func (h Header) EncodeInto(raw []byte) {
	binary.LittleEndian.PutUint32(raw[0:4], uint32(h.Kind))
	binary.LittleEndian.PutUint64(raw[4:12], h.PayloadSize)
}

func DecodeHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{Kind: KindInvalid}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncatedPayload, HeaderSize, len(raw))
	}
	header := Header{
		Kind:        MessageKind(int32(binary.LittleEndian.Uint32(raw[0:4]))),
		PayloadSize: binary.LittleEndian.Uint64(raw[4:12]),
	}
	if !header.Kind.IsKnown() {
		return header, fmt.Errorf("%w: %d", ErrUnknownKind, int32(header.Kind))
	}
	return header, nil
}

// Message is one complete frame. The payload length is always the exact
// size announced in the header.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

func invalidMessage() Message {
	return Message{Kind: KindInvalid}
}

func (m Message) IsValid() bool {
	return m.Kind.IsKnown()
}

func (m Message) Header() Header {
	return Header{Kind: m.Kind, PayloadSize: uint64(len(m.Payload))}
}

// Encode returns header and payload as one frame.
func (m Message) Encode() []byte {
	frame := make([]byte, HeaderSize+len(m.Payload))
	m.Header().EncodeInto(frame)
	copy(frame[HeaderSize:], m.Payload)
	return frame
}

// Decode parses exactly one frame. Bytes behind the frame are rejected.
func Decode(frame []byte) (Message, error) {
	header, err := DecodeHeader(frame)
	if err != nil {
		return invalidMessage(), err
	}
	rest := uint64(len(frame) - HeaderSize)
	if header.PayloadSize > rest {
		return invalidMessage(), fmt.Errorf("%w: payload announces %d bytes, %d available", ErrTruncatedPayload, header.PayloadSize, rest)
	}
	if header.PayloadSize < rest {
		return invalidMessage(), fmt.Errorf("%w: %d bytes behind the frame", ErrMalformedPayload, rest-header.PayloadSize)
	}
	payload := make([]byte, header.PayloadSize)
	copy(payload, frame[HeaderSize:])
	return Message{Kind: header.Kind, Payload: payload}, nil
}
