package imagelink

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/blutspende/go-imagelink/connections"
	"github.com/blutspende/go-imagelink/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReceivedImage is one announcement as the consumer sees it. The data is
// behind Handle.
type ReceivedImage struct {
	Handle     *NetworkImageHandle
	Name       string
	ViewerName string
	// FilePath of the producer, empty for images that never were a file
	FilePath   string
	Flags      uint32
	ReceivedAt time.Time
}

func (r ReceivedImage) ReplaceExisting() bool {
	return r.Flags&protocol.FlagReplaceExisting != 0
}

// ServerSession is the consumer end of one accepted connection.
type ServerSession struct {
	server       *ImageServer
	connectionID string
	socket       *connections.TCPSocket
	logger       zerolog.Logger
	state        *connectionState
	teardownOnce sync.Once

	receiver *protocol.Receiver
	sender   *protocol.SenderQueue
	// loop goroutine only
	handles  map[uint64]*NetworkImageHandle

	completedMtx sync.Mutex
	completed    []ReceivedImage
}

func newServerSession(server *ImageServer, socket *connections.TCPSocket) *ServerSession {
	session := &ServerSession{
		server:       server,
		connectionID: uuid.NewString(),
		socket:       socket,
		state:        newConnectionState(),
		handles:      make(map[uint64]*NetworkImageHandle),
		completed:    make([]ReceivedImage, 0),
	}
	session.logger = server.logger.With().
		Str("connection", session.connectionID).
		Str("peer", socket.RemoteAddress()).
		Logger()
	session.receiver = protocol.NewReceiver(socket, server.receiverSettings)
	session.sender = protocol.NewSenderQueue(server.loop, socket, session.onSendError)
	return session
}

func (s *ServerSession) start() {
	s.state.moveTo(StatusConnecting)
	s.logger.Info().Msg("connection accepted")

	s.receiveNext()
	s.enqueue(protocol.VersionMessage(protocol.ProtocolVersion), func() {
		if _, err := s.state.moveTo(StatusConnected); err != nil {
			return
		}
		if s.server.handler != nil {
			s.server.handler.Connected(s)
		}
	})
}

func (s *ServerSession) receiveNext() {
	if err := s.receiver.ReceiveOne(s.onMessage); err != nil {
		s.logger.Error().Err(err).Msg("receive")
	}
}

func (s *ServerSession) onMessage(err error, msg protocol.Message) {
	if err != nil {
		s.onReceiveError(err)
		return
	}
	s.server.metrics.messageReceived(msg)

	switch msg.Kind {
	case protocol.KindClose:
		s.logger.Info().Msg("client closed the connection")
		s.teardown()
		return
	case protocol.KindVersion:
		version, err := protocol.DecodeVersion(msg)
		if err != nil {
			s.onReceiveError(err)
			return
		}
		if version != protocol.ProtocolVersion {
			s.logger.Warn().Int32("version", version).Int32("expected", protocol.ProtocolVersion).Msg("protocol version mismatch")
		}
	case protocol.KindImage:
		announcement, err := protocol.DecodeImageAnnouncement(msg)
		if err != nil {
			s.onReceiveError(err)
			return
		}
		s.handleAnnouncement(announcement)
	case protocol.KindImageBuffer:
		reply, err := protocol.DecodeImageBufferReply(msg)
		if err != nil {
			s.onReceiveError(err)
			return
		}
		s.handleImageBuffer(reply)
	default:
		s.protocolViolation(fmt.Errorf("%w: %s on the server side", ErrUnexpectedMessage, msg.Kind))
	}

	s.receiveNext()
}

func (s *ServerSession) handleAnnouncement(announcement protocol.ImageAnnouncement) {
	key := CacheKey{ConnectionID: s.connectionID, ImageID: announcement.ImageID}

	var handle *NetworkImageHandle
	if announcement.Buffer.IsEmpty() {
		imageID := announcement.ImageID
		handle = newLoadingHandle(key, func() bool {
			return s.enqueue(protocol.RequestImageBufferMessage(imageID))
		})
		if previous, exists := s.handles[imageID]; exists {
			// The reply can only complete one of them, the newer one wins.
			s.logger.Warn().Uint64("imageId", imageID).Msg("image announced again before its data arrived")
			if previous.fail(fmt.Errorf("%w: image %d", ErrImageSuperseded, imageID)) {
				s.server.metrics.imageCompleted(FailedToLoad)
			}
		}
		s.handles[imageID] = handle
	} else if err := s.server.decoder.Validate(announcement.Buffer); err != nil {
		s.logger.Warn().Err(err).Uint64("imageId", announcement.ImageID).Msg("inline image can not be decoded")
		handle = newFailedHandle(key, err)
		s.server.metrics.imageCompleted(FailedToLoad)
		s.reportError(ErrorImageLoad, err)
	} else {
		handle = newReadyHandle(key, announcement.Buffer)
		s.server.metrics.imageCompleted(Ready)
	}

	s.logger.Debug().
		Uint64("imageId", announcement.ImageID).
		Str("name", announcement.Name).
		Str("status", handle.Status().String()).
		Msg("image announced")

	s.completedMtx.Lock()
	s.completed = append(s.completed, ReceivedImage{
		Handle:     handle,
		Name:       announcement.Name,
		ViewerName: announcement.ViewerName,
		FilePath:   announcement.Buffer.FilePath,
		Flags:      announcement.Flags,
		ReceivedAt: time.Now(),
	})
	s.completedMtx.Unlock()
}

func (s *ServerSession) handleImageBuffer(reply protocol.ImageBufferReply) {
	handle, found := s.handles[reply.ImageID]
	if !found {
		s.protocolViolation(fmt.Errorf("%w: image buffer for image %d", ErrUnknownImageID, reply.ImageID))
		return
	}
	delete(s.handles, reply.ImageID)

	var err error
	if reply.Buffer.IsEmpty() {
		err = fmt.Errorf("%w: producer has no data for image %d", ErrImageLoadFailed, reply.ImageID)
	} else {
		err = s.server.decoder.Validate(reply.Buffer)
	}

	if err != nil {
		s.logger.Warn().Err(err).Uint64("imageId", reply.ImageID).Msg("image failed to load")
		handle.fail(err)
		s.server.metrics.imageCompleted(FailedToLoad)
		s.reportError(ErrorImageLoad, err)
		return
	}
	handle.complete(reply.Buffer)
	s.server.metrics.imageCompleted(Ready)
}

func (s *ServerSession) onReceiveError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Info().Msg("client went away")
	case protocol.IsDecodeError(err):
		s.logger.Error().Err(err).Msg("decode")
		s.reportError(ErrorDecode, err)
	default:
		if s.state.Status() != StatusDisconnected {
			s.logger.Error().Err(err).Msg("receive")
			s.reportError(ErrorReceive, err)
		}
	}
	s.teardown()
}

func (s *ServerSession) onSendError(err error) {
	if s.state.Status() != StatusDisconnected {
		s.logger.Error().Err(err).Msg("send")
		s.reportError(ErrorSend, err)
	}
	s.teardown()
}

func (s *ServerSession) protocolViolation(err error) {
	s.logger.Warn().Err(err).Msg("protocol violation, exchange dropped")
	s.server.metrics.protocolViolation()
	s.reportError(ErrorProtocolViolation, err)
}

func (s *ServerSession) reportError(typeOfError ErrorType, err error) {
	if s.server.handler != nil {
		s.server.handler.Error(s, typeOfError, err)
	}
}

func (s *ServerSession) enqueue(msg protocol.Message, onSent ...func()) bool {
	return s.sender.Enqueue(msg, append(onSent, func() { s.server.metrics.messageSent(msg) })...)
}

// close asks the client to go away and tears down once Close is written.
func (s *ServerSession) close() {
	if !s.enqueue(protocol.CloseMessage(), s.teardown) {
		s.teardown()
	}
}

func (s *ServerSession) teardown() {
	s.teardownOnce.Do(func() {
		previous, _ := s.state.moveTo(StatusDisconnected)
		s.sender.Close()
		s.socket.DoClose()
		s.server.removeSession(s)

		if previous == StatusConnected {
			s.logger.Info().Msg("disconnected")
			if s.server.handler != nil {
				s.server.handler.Disconnected(s)
			}
		}
	})
}

// takeCompleted empties the FIFO of finished announcements.
func (s *ServerSession) takeCompleted() []ReceivedImage {
	s.completedMtx.Lock()
	defer s.completedMtx.Unlock()
	if len(s.completed) == 0 {
		return nil
	}
	items := s.completed
	s.completed = make([]ReceivedImage, 0)
	return items
}

func (s *ServerSession) Disconnect() {
	s.teardown()
}

func (s *ServerSession) ConnectionID() string {
	return s.connectionID
}

func (s *ServerSession) RemoteAddress() string {
	return s.socket.RemoteAddress()
}

func (s *ServerSession) RemoteIP() string {
	return s.socket.RemoteIP()
}

func (s *ServerSession) Status() Status {
	return s.state.Status()
}

func (s *ServerSession) IsConnected() bool {
	return s.state.IsConnected()
}
