package protocol

import (
	"fmt"
	"io"
)

type ReceiverSettings struct {
	maxPayloadSize uint64
}

func DefaultReceiverSettings() *ReceiverSettings {
	return &ReceiverSettings{
		maxPayloadSize: 1 << 30, // a gig
	}
}

func (set *ReceiverSettings) SetMaxPayloadSize(maxPayloadSize uint64) *ReceiverSettings {
	set.maxPayloadSize = maxPayloadSize
	return set
}

type OnMessageFunc func(err error, msg Message)

// Receiver assembles one message at a time from a Stream. The header and
// payload reads are chained through callbacks, a partial read never blocks.
// Not safe for concurrent use, all calls happen on the loop goroutine.
type Receiver struct {
	stream    Stream
	settings  *ReceiverSettings
	header    [HeaderSize]byte
	incoming  Message
	onMessage OnMessageFunc
	busy      bool
}

func NewReceiver(stream Stream, settings ...*ReceiverSettings) *Receiver {
	var thesettings *ReceiverSettings
	if len(settings) >= 1 {
		thesettings = settings[0]
	} else {
		thesettings = DefaultReceiverSettings()
	}

	return &Receiver{
		stream:   stream,
		settings: thesettings,
		incoming: invalidMessage(),
	}
}

// ReceiveOne calls onMessage exactly once, with either a complete message or
// the error that stopped the assembly.
func (r *Receiver) ReceiveOne(onMessage OnMessageFunc) error {
	if r.busy {
		return ErrReceiveInProgress
	}
	r.busy = true
	r.onMessage = onMessage
	r.incoming = invalidMessage()
	recvExactly(r.stream, r.header[:], r.onHeader)
	return nil
}

func (r *Receiver) onHeader(err error) {
	if err != nil {
		r.trigger(err)
		return
	}

	header, err := DecodeHeader(r.header[:])
	if err != nil {
		r.trigger(err)
		return
	}
	if header.PayloadSize > r.settings.maxPayloadSize {
		r.trigger(fmt.Errorf("%w: %s announces %d bytes, limit is %d", ErrPayloadTooLarge, header.Kind, header.PayloadSize, r.settings.maxPayloadSize))
		return
	}

	r.incoming = Message{Kind: header.Kind, Payload: make([]byte, header.PayloadSize)}
	if header.PayloadSize == 0 {
		r.trigger(nil)
		return
	}

	recvExactly(r.stream, r.incoming.Payload, r.trigger)
}

func (r *Receiver) trigger(err error) {
	// Reset before the callback, it may start the next receive right away.
	msg := r.incoming
	onMessage := r.onMessage
	r.incoming = invalidMessage()
	r.onMessage = nil
	r.busy = false

	if err != nil {
		msg = invalidMessage()
	}
	onMessage(err, msg)
}

func recvExactly(stream Stream, buf []byte, onDone func(error)) {
	stream.DoRecv(buf, func(n int, err error) {
		switch {
		case n >= len(buf):
			onDone(nil)
		case err != nil:
			onDone(err)
		case n == 0:
			onDone(io.ErrNoProgress)
		default:
			recvExactly(stream, buf[n:], onDone)
		}
	})
}
