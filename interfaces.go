package imagelink

import (
	"github.com/blutspende/go-imagelink/protocol"
)

// Session is one live connection, the client itself on the producer side or
// one accepted peer on the consumer side.
type Session interface {
	ConnectionID() string
	// RemoteAddress is host:port of the peer
	RemoteAddress() string
	Status() Status
	IsConnected() bool
	// Disconnect tears the connection down right away. Safe to call more
	// than once and from any goroutine.
	Disconnect()
}

// Handler receives the events of the network goroutine. The calls are made
// from that goroutine, so a handler must not block.
type Handler interface {
	// Connected is triggered once the version handshake is on the wire.
	Connected(session Session)
	// Disconnected is triggered once per session that was connected.
	Disconnected(session Session)
	// Error reports what went wrong on a connection. Protocol violations
	// and image load failures leave the connection up, everything else
	// is followed by Disconnected. session is nil for accept errors.
	Error(session Session, typeOfError ErrorType, err error)
}

// ImageDataProvider supplies the data of a lazily published image when the
// consumer asks for it. Returning false sends an empty buffer, the consumer
// marks the image as failed.
type ImageDataProvider interface {
	ProvideImageBuffer(imageID uint64) (protocol.ImageBuffer, bool)
}

type ImageDataProviderFunc func(imageID uint64) (protocol.ImageBuffer, bool)

func (f ImageDataProviderFunc) ProvideImageBuffer(imageID uint64) (protocol.ImageBuffer, bool) {
	return f(imageID)
}
