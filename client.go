package imagelink

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/blutspende/go-imagelink/connections"
	"github.com/blutspende/go-imagelink/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ClientOption func(*ClientSession)

func WithClientTiming(timing TimingConfiguration) ClientOption {
	return func(c *ClientSession) {
		c.timingConfig = timing
	}
}

func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *ClientSession) {
		c.logger = logger
	}
}

func WithClientMetrics(metrics *Metrics) ClientOption {
	return func(c *ClientSession) {
		c.metrics = metrics
	}
}

func WithClientReceiverSettings(settings *protocol.ReceiverSettings) ClientOption {
	return func(c *ClientSession) {
		c.receiverSettings = settings
	}
}

// KeepProvidersAfterServe keeps a provider registered after its data was
// sent, so the consumer may request the same image again. By default a
// provider is served once.
func KeepProvidersAfterServe() ClientOption {
	return func(c *ClientSession) {
		c.keepProviders = true
	}
}

/*
ClientSession is the producer end. One instance connects one time to one
server; it owns a network goroutine with its own event loop.
*/
type ClientSession struct {
	hostname         string
	port             int
	handler          Handler
	timingConfig     TimingConfiguration
	logger           zerolog.Logger
	metrics          *Metrics
	receiverSettings *protocol.ReceiverSettings
	keepProviders    bool

	connectionID string
	state        *connectionState
	started      atomic.Bool
	done         chan struct{}
	teardownOnce sync.Once
	lastImageID  atomic.Uint64

	loop     *connections.EventLoop
	socket   *connections.TCPSocket
	receiver *protocol.Receiver // loop goroutine only

	mtx       sync.Mutex
	sender    *protocol.SenderQueue
	providers map[uint64]ImageDataProvider
}

func CreateNewClient(hostname string, port int, handler Handler, options ...ClientOption) *ClientSession {
	client := &ClientSession{
		hostname:         hostname,
		port:             port,
		handler:          handler,
		timingConfig:     DefaultTimings,
		logger:           log.Logger.With().Str("component", "imagelink-client").Logger(),
		receiverSettings: protocol.DefaultReceiverSettings(),
		connectionID:     uuid.NewString(),
		state:            newConnectionState(),
		done:             make(chan struct{}),
		providers:        make(map[uint64]ImageDataProvider),
	}
	client.loop = connections.NewEventLoop()
	client.socket = connections.NewTCPSocket(client.loop)
	for _, option := range options {
		option(client)
	}
	client.logger = client.logger.With().Str("connection", client.connectionID).Logger()
	return client
}

func (c *ClientSession) address() string {
	return net.JoinHostPort(c.hostname, strconv.Itoa(c.port))
}

// Connect returns once the handshake is sent or the connection failed.
func (c *ClientSession) Connect() error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrSessionUsed
	}
	if _, err := c.state.moveTo(StatusConnecting); err != nil {
		close(c.done)
		return fmt.Errorf("%w: %s", ErrSessionUsed, c.state.Status())
	}

	go c.run()

	if status := c.state.WaitWhileConnecting(); status != StatusConnected {
		return fmt.Errorf("%w: %s is %s", ErrConnectFailed, c.address(), status)
	}
	return nil
}

func (c *ClientSession) run() {
	defer close(c.done)
	c.socket.DoConnect(c.address(), c.timingConfig.Timeout, c.onConnect)
	c.loop.Run()
	c.logger.Debug().Msg("network loop exited")
}

func (c *ClientSession) onConnect(err error) {
	if err != nil {
		c.logger.Error().Err(err).Str("address", c.address()).Msg("connect")
		c.state.moveTo(StatusFailedToConnect)
		c.reportError(ErrorConnect, err)
		c.teardown()
		return
	}

	c.logger.Info().Str("address", c.socket.RemoteAddress()).Msg("connected")
	c.receiver = protocol.NewReceiver(c.socket, c.receiverSettings)
	sender := protocol.NewSenderQueue(c.loop, c.socket, c.onSendError)
	c.mtx.Lock()
	c.sender = sender
	c.mtx.Unlock()

	c.receiveNext()
	c.enqueue(protocol.VersionMessage(protocol.ProtocolVersion), func() {
		if _, err := c.state.moveTo(StatusConnected); err != nil {
			return
		}
		if c.handler != nil {
			c.handler.Connected(c)
		}
	})
}

func (c *ClientSession) receiveNext() {
	if err := c.receiver.ReceiveOne(c.onMessage); err != nil {
		c.logger.Error().Err(err).Msg("receive")
	}
}

func (c *ClientSession) onMessage(err error, msg protocol.Message) {
	if err != nil {
		c.onReceiveError(err)
		return
	}
	c.metrics.messageReceived(msg)

	switch msg.Kind {
	case protocol.KindClose:
		c.logger.Info().Msg("server closed the connection")
		c.teardown()
		return
	case protocol.KindVersion:
		version, err := protocol.DecodeVersion(msg)
		if err != nil {
			c.onReceiveError(err)
			return
		}
		if version != protocol.ProtocolVersion {
			c.logger.Warn().Int32("version", version).Int32("expected", protocol.ProtocolVersion).Msg("protocol version mismatch")
		}
	case protocol.KindRequestImageBuffer:
		imageID, err := protocol.DecodeRequestImageBuffer(msg)
		if err != nil {
			c.onReceiveError(err)
			return
		}
		c.serveImageBuffer(imageID)
	default:
		c.protocolViolation(fmt.Errorf("%w: %s on the client side", ErrUnexpectedMessage, msg.Kind))
	}

	c.receiveNext()
}

func (c *ClientSession) serveImageBuffer(imageID uint64) {
	c.mtx.Lock()
	provider, found := c.providers[imageID]
	if found && !c.keepProviders {
		delete(c.providers, imageID)
	}
	c.mtx.Unlock()

	if !found {
		c.protocolViolation(fmt.Errorf("%w: request for image %d", ErrUnknownImageID, imageID))
		return
	}

	buffer, ok := provider.ProvideImageBuffer(imageID)
	if ok {
		if err := buffer.Validate(); err != nil {
			c.logger.Error().Err(err).Uint64("imageId", imageID).Msg("provider returned an invalid buffer")
			ok = false
		}
	}
	if !ok {
		c.logger.Warn().Uint64("imageId", imageID).Msg("no data for requested image, sending empty buffer")
		c.reportError(ErrorImageLoad, fmt.Errorf("%w: image %d", ErrEmptyImageBuffer, imageID))
		buffer = protocol.EmptyImageBuffer(buffer.FilePath)
	}

	c.enqueue(protocol.ImageBufferReply{ImageID: imageID, Buffer: buffer}.Message())
}

func (c *ClientSession) onReceiveError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		c.logger.Info().Msg("server went away")
	case protocol.IsDecodeError(err):
		c.logger.Error().Err(err).Msg("decode")
		c.reportError(ErrorDecode, err)
	default:
		if c.state.Status() != StatusDisconnected {
			c.logger.Error().Err(err).Msg("receive")
			c.reportError(ErrorReceive, err)
		}
	}
	c.teardown()
}

func (c *ClientSession) onSendError(err error) {
	if c.state.Status() != StatusDisconnected {
		c.logger.Error().Err(err).Msg("send")
		c.reportError(ErrorSend, err)
	}
	c.teardown()
}

func (c *ClientSession) protocolViolation(err error) {
	c.logger.Warn().Err(err).Msg("protocol violation, exchange dropped")
	c.metrics.protocolViolation()
	c.reportError(ErrorProtocolViolation, err)
}

func (c *ClientSession) reportError(typeOfError ErrorType, err error) {
	if c.handler != nil {
		c.handler.Error(c, typeOfError, err)
	}
}

func (c *ClientSession) enqueue(msg protocol.Message, onSent ...func()) bool {
	c.mtx.Lock()
	sender := c.sender
	c.mtx.Unlock()
	if sender == nil {
		return false
	}
	return sender.Enqueue(msg, append(onSent, func() { c.metrics.messageSent(msg) })...)
}

// teardown releases everything. Pending sends are dropped, pending providers
// are forgotten.
func (c *ClientSession) teardown() {
	c.teardownOnce.Do(func() {
		previous, _ := c.state.moveTo(StatusDisconnected)

		c.mtx.Lock()
		sender := c.sender
		c.providers = make(map[uint64]ImageDataProvider)
		c.mtx.Unlock()

		if sender != nil {
			sender.Close()
		}
		c.socket.DoClose()
		c.loop.Close()

		if previous == StatusConnected {
			c.logger.Info().Msg("disconnected")
			if c.handler != nil {
				c.handler.Disconnected(c)
			}
		}
	})
}

// PublishEager announces an image with its data inline.
func (c *ClientSession) PublishEager(imageID uint64, name, viewerName string, buffer protocol.ImageBuffer, replaceExisting bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if buffer.IsEmpty() {
		return fmt.Errorf("%w: eager image %d", ErrEmptyImageBuffer, imageID)
	}
	if err := buffer.Validate(); err != nil {
		return err
	}

	c.mtx.Lock()
	_, pending := c.providers[imageID]
	c.mtx.Unlock()
	if pending {
		return fmt.Errorf("%w: %d", ErrDuplicateImageID, imageID)
	}

	if !c.enqueue(announcement(imageID, name, viewerName, buffer, replaceExisting).Message()) {
		return ErrNotConnected
	}
	return nil
}

// PublishLazy announces an image without data. provider is called when the
// consumer asks for the data.
func (c *ClientSession) PublishLazy(imageID uint64, name, viewerName string, provider ImageDataProvider, replaceExisting bool) error {
	return c.publishLazy(imageID, name, viewerName, "", provider, replaceExisting)
}

func (c *ClientSession) publishLazy(imageID uint64, name, viewerName, filePath string, provider ImageDataProvider, replaceExisting bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if provider == nil {
		return ErrNoProvider
	}

	c.mtx.Lock()
	if _, pending := c.providers[imageID]; pending {
		c.mtx.Unlock()
		return fmt.Errorf("%w: %d", ErrDuplicateImageID, imageID)
	}
	c.providers[imageID] = provider
	c.mtx.Unlock()

	msg := announcement(imageID, name, viewerName, protocol.EmptyImageBuffer(filePath), replaceExisting).Message()
	if !c.enqueue(msg) {
		c.mtx.Lock()
		delete(c.providers, imageID)
		c.mtx.Unlock()
		return ErrNotConnected
	}
	return nil
}

func announcement(imageID uint64, name, viewerName string, buffer protocol.ImageBuffer, replaceExisting bool) protocol.ImageAnnouncement {
	var flags uint32
	if replaceExisting {
		flags |= protocol.FlagReplaceExisting
	}
	return protocol.ImageAnnouncement{
		ImageID:    imageID,
		Name:       name,
		ViewerName: viewerName,
		Flags:      flags,
		Buffer:     buffer,
	}
}

// NextImageID hands out ids counting up from 1.
func (c *ClientSession) NextImageID() uint64 {
	return c.lastImageID.Add(1)
}

// PendingImages is the number of lazy images not served yet.
func (c *ClientSession) PendingImages() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.providers)
}

func (c *ClientSession) Disconnect() {
	c.teardown()
}

// Close sends Close behind everything already enqueued and tears down once
// it is written, so published announcements are not lost.
func (c *ClientSession) Close() {
	if !c.IsConnected() || !c.enqueue(protocol.CloseMessage(), c.teardown) {
		c.teardown()
	}
}

// WaitUntilDisconnected blocks until the network goroutine is gone. Returns
// right away if Connect was never called.
func (c *ClientSession) WaitUntilDisconnected() {
	if !c.started.Load() {
		return
	}
	<-c.done
}

func (c *ClientSession) ConnectionID() string {
	return c.connectionID
}

func (c *ClientSession) RemoteAddress() string {
	if remote := c.socket.RemoteAddress(); remote != "" {
		return remote
	}
	return c.address()
}

func (c *ClientSession) Status() Status {
	return c.state.Status()
}

func (c *ClientSession) IsConnected() bool {
	return c.state.IsConnected()
}
