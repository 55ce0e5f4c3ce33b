package connections

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/blutspende/go-imagelink/protocol"
)

const TCPProtocol = "tcp"

var (
	ErrNotConnected = errors.New("socket not connected")
	ErrLoopClosed   = errors.New("event loop closed")
)

// TCPSocket gives a net.Conn the completion style the protocol layer works
// with. Each call does its blocking work on a helper goroutine and posts the
// result to the loop.
type TCPSocket struct {
	loop *EventLoop

	mtx    sync.Mutex
	conn   net.Conn
	remote string
	closed bool
}

func NewTCPSocket(loop *EventLoop) *TCPSocket {
	return &TCPSocket{loop: loop}
}

// WrapConn adopts an established connection, e.g. one that was accepted.
func WrapConn(loop *EventLoop, conn net.Conn) *TCPSocket {
	socket := NewTCPSocket(loop)
	socket.adopt(conn)
	return socket
}

// adopt installs conn unless the socket was closed in the meantime, in which
// case conn is closed right here.
func (s *TCPSocket) adopt(conn net.Conn) bool {
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		conn.Close()
		return false
	}
	s.conn = protocol.Logger(conn)
	s.remote = remote
	s.mtx.Unlock()
	return true
}

// DoConnect dials address. onDone runs on the loop with nil on success.
func (s *TCPSocket) DoConnect(address string, timeout time.Duration, onDone func(err error)) {
	go func() {
		conn, err := net.DialTimeout(TCPProtocol, address, timeout)
		if err == nil && !s.adopt(conn) {
			err = net.ErrClosed
		}
		if !s.loop.Post(func() { onDone(err) }) && err == nil {
			s.DoClose()
		}
	}()
}

func (s *TCPSocket) DoRecv(buf []byte, onDone func(n int, err error)) {
	conn := s.current()
	if conn == nil {
		s.loop.Post(func() { onDone(0, ErrNotConnected) })
		return
	}
	go func() {
		n, err := conn.Read(buf)
		s.loop.Post(func() { onDone(n, err) })
	}()
}

func (s *TCPSocket) DoSend(buf []byte, onDone func(n int, err error)) {
	conn := s.current()
	if conn == nil {
		s.loop.Post(func() { onDone(0, ErrNotConnected) })
		return
	}
	go func() {
		n, err := conn.Write(buf)
		s.loop.Post(func() { onDone(n, err) })
	}()
}

// DoClose closes the connection. Pending reads and writes complete with an
// error. Safe to call more than once and from any goroutine.
func (s *TCPSocket) DoClose() error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mtx.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *TCPSocket) IsClosed() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.closed
}

// RemoteAddress is host:port of the peer, empty before connect.
func (s *TCPSocket) RemoteAddress() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.remote
}

// RemoteIP is the peer address without port.
func (s *TCPSocket) RemoteIP() string {
	remote := s.RemoteAddress()
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

func (s *TCPSocket) current() net.Conn {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return nil
	}
	return s.conn
}
