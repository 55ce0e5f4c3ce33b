package imagelink

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blutspende/go-imagelink/connections"
	"github.com/blutspende/go-imagelink/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const acceptRetryDelay = 50 * time.Millisecond

type ServerOption func(*ImageServer)

func WithServerTiming(timing TimingConfiguration) ServerOption {
	return func(s *ImageServer) {
		s.timingConfig = timing
	}
}

func WithServerLogger(logger zerolog.Logger) ServerOption {
	return func(s *ImageServer) {
		s.logger = logger
	}
}

func WithServerMetrics(metrics *Metrics) ServerOption {
	return func(s *ImageServer) {
		s.metrics = metrics
	}
}

func WithServerReceiverSettings(settings *protocol.ReceiverSettings) ServerOption {
	return func(s *ImageServer) {
		s.receiverSettings = settings
	}
}

// WithMaxConnections closes every connection above the limit right after
// accept. 0 means unlimited.
func WithMaxConnections(maxConnections int) ServerOption {
	return func(s *ImageServer) {
		s.maxConnections = maxConnections
	}
}

func WithProxy(proxy ProxyType) ServerOption {
	return func(s *ImageServer) {
		s.proxy = proxy
	}
}

func WithDecoder(decoder ImageDecoder) ServerOption {
	return func(s *ImageServer) {
		s.decoder = decoder
	}
}

/*
ImageServer is the consumer end. It keeps accepting connections and keeps
one ServerSession per connection; the images they receive are collected
with DrainAll.
*/
type ImageServer struct {
	hostname         string
	port             int
	handler          Handler
	timingConfig     TimingConfiguration
	logger           zerolog.Logger
	metrics          *Metrics
	receiverSettings *protocol.ReceiverSettings
	maxConnections   int
	proxy            ProxyType
	decoder          ImageDecoder

	loop     *connections.EventLoop
	acceptor *connections.TCPAcceptor
	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}

	mtx      sync.Mutex
	sessions []*ServerSession
	// announcements of sessions that went away before they were drained
	orphans  []ReceivedImage
}

func CreateNewServer(hostname string, port int, handler Handler, options ...ServerOption) *ImageServer {
	server := &ImageServer{
		hostname:         hostname,
		port:             port,
		handler:          handler,
		timingConfig:     DefaultTimings,
		logger:           log.Logger.With().Str("component", "imagelink-server").Logger(),
		receiverSettings: protocol.DefaultReceiverSettings(),
		proxy:            NoLoadBalancer,
		decoder:          StandardDecoder{},
		loop:             connections.NewEventLoop(),
		done:             make(chan struct{}),
		sessions:         make([]*ServerSession, 0),
		orphans:          make([]ReceivedImage, 0),
	}
	for _, option := range options {
		option(server)
	}
	return server
}

// Start binds the listener and returns its error right away. Accepting and
// all session traffic happen on the server's own goroutine.
func (srv *ImageServer) Start() error {
	if !srv.started.CompareAndSwap(false, true) {
		return ErrServerRunning
	}

	address := net.JoinHostPort(srv.hostname, strconv.Itoa(srv.port))
	acceptor, err := connections.OpenAccept(srv.loop, address, srv.proxy)
	if err != nil {
		srv.started.Store(false)
		srv.logger.Error().Err(err).Str("address", address).Msg("can not start server")
		return err
	}
	srv.acceptor = acceptor
	srv.logger.Info().Str("address", acceptor.Addr().String()).Msg("listening")

	go srv.run()
	return nil
}

func (srv *ImageServer) run() {
	defer close(srv.done)
	srv.acceptNext()
	srv.loop.Run()
	srv.logger.Debug().Msg("network loop exited")
}

func (srv *ImageServer) acceptNext() {
	srv.acceptor.DoAccept(srv.onAccept)
}

func (srv *ImageServer) onAccept(socket *connections.TCPSocket, err error) {
	if err != nil {
		if srv.acceptor.IsClosed() || errors.Is(err, net.ErrClosed) {
			return
		}
		srv.logger.Error().Err(err).Msg("accept")
		if srv.handler != nil {
			srv.handler.Error(nil, ErrorAccept, err)
		}
		time.AfterFunc(acceptRetryDelay, srv.acceptNext)
		return
	}

	srv.acceptNext()

	if srv.stopping.Load() {
		socket.DoClose()
		return
	}

	if srv.maxConnections > 0 && srv.SessionCount() >= srv.maxConnections {
		srv.logger.Warn().Str("peer", socket.RemoteAddress()).Int("maxConnections", srv.maxConnections).Msg("max connection reached, forcing disconnect")
		socket.DoClose()
		srv.metrics.sessionRejected()
		if srv.handler != nil {
			srv.handler.Error(nil, ErrorMaxConnections, ErrMaxConnectionsReached)
		}
		return
	}

	session := newServerSession(srv, socket)
	srv.mtx.Lock()
	srv.sessions = append(srv.sessions, session)
	srv.mtx.Unlock()
	srv.metrics.sessionOpened()

	session.start()
}

func (srv *ImageServer) removeSession(session *ServerSession) {
	srv.mtx.Lock()
	defer srv.mtx.Unlock()

	for i, x := range srv.sessions {
		if x == session {
			srv.sessions = append(srv.sessions[:i], srv.sessions[i+1:]...)
			srv.orphans = append(srv.orphans, session.takeCompleted()...)
			srv.metrics.sessionClosed()
			return
		}
	}
}

// DrainAll hands every announcement received since the last call to fn.
// Order is kept within a connection, not across connections.
func (srv *ImageServer) DrainAll(fn func(image ReceivedImage, flags uint32)) int {
	srv.mtx.Lock()
	orphans := srv.orphans
	srv.orphans = make([]ReceivedImage, 0)
	sessions := make([]*ServerSession, len(srv.sessions))
	copy(sessions, srv.sessions)
	srv.mtx.Unlock()

	count := 0
	for _, item := range orphans {
		fn(item, item.Flags)
		count++
	}
	for _, session := range sessions {
		for _, item := range session.takeCompleted() {
			fn(item, item.Flags)
			count++
		}
	}
	return count
}

// Stop asks every client to close, waits Deadline for them and cuts the
// rest. The server can not be started again.
func (srv *ImageServer) Stop() {
	if !srv.started.Load() {
		return
	}
	if !srv.stopping.CompareAndSwap(false, true) {
		<-srv.done
		return
	}

	srv.acceptor.Close()
	for _, session := range srv.Sessions() {
		session.close()
	}

	deadline := time.Now().Add(srv.timingConfig.Deadline)
	for srv.SessionCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	for _, session := range srv.Sessions() {
		srv.logger.Warn().Str("connection", session.ConnectionID()).Msg("client did not close in time")
		session.teardown()
	}

	srv.loop.Close()
	<-srv.done
	srv.logger.Info().Msg("stopped")
}

// Addr is the bound listener address, nil before Start.
func (srv *ImageServer) Addr() net.Addr {
	if srv.acceptor == nil {
		return nil
	}
	return srv.acceptor.Addr()
}

func (srv *ImageServer) SessionCount() int {
	srv.mtx.Lock()
	defer srv.mtx.Unlock()
	return len(srv.sessions)
}

func (srv *ImageServer) Sessions() []*ServerSession {
	srv.mtx.Lock()
	defer srv.mtx.Unlock()
	sessions := make([]*ServerSession, len(srv.sessions))
	copy(sessions, srv.sessions)
	return sessions
}

// FindSessionsByIp returns every live session whose peer has that ip.
func (srv *ImageServer) FindSessionsByIp(ip string) []Session {
	sessions := make([]Session, 0)
	for _, session := range srv.Sessions() {
		if session.RemoteIP() == ip {
			sessions = append(sessions, session)
		}
	}
	return sessions
}
