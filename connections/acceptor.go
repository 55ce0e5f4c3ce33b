package connections

import (
	"net"
	"sync"
	"time"

	"github.com/pires/go-proxyproto"
)

type ProxyType int

const (
	NoLoadBalancer     ProxyType = 1
	HAProxySendProxyV2 ProxyType = 2
)

const proxyHeaderTimeout = 5 * time.Second

// TCPAcceptor accepts connections one DoAccept at a time and hands them to
// the loop as TCPSockets that post to the same loop.
type TCPAcceptor struct {
	loop     *EventLoop
	listener net.Listener

	mtx    sync.Mutex
	closed bool
}

// OpenAccept binds address right away, so a busy port fails here and not
// in a later callback.
func OpenAccept(loop *EventLoop, address string, proxy ProxyType) (*TCPAcceptor, error) {
	listener, err := net.Listen(TCPProtocol, address)
	if err != nil {
		return nil, err
	}

	if proxy == HAProxySendProxyV2 {
		listener = &proxyproto.Listener{
			Listener:          listener,
			ReadHeaderTimeout: proxyHeaderTimeout,
			Policy: func(upstream net.Addr) (proxyproto.Policy, error) {
				return proxyproto.REQUIRE, nil
			},
		}
	}

	return &TCPAcceptor{
		loop:     loop,
		listener: listener,
	}, nil
}

// DoAccept waits for the next connection. Arm it again from the callback to
// keep accepting.
func (a *TCPAcceptor) DoAccept(onAccept func(socket *TCPSocket, err error)) {
	go func() {
		conn, err := a.listener.Accept()
		if err != nil {
			a.loop.Post(func() { onAccept(nil, err) })
			return
		}
		// with a proxy listener this reads the header, keep it off the loop
		socket := WrapConn(a.loop, conn)
		if !a.loop.Post(func() { onAccept(socket, nil) }) {
			socket.DoClose()
		}
	}()
}

func (a *TCPAcceptor) Addr() net.Addr {
	return a.listener.Addr()
}

func (a *TCPAcceptor) IsClosed() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.closed
}

func (a *TCPAcceptor) Close() error {
	a.mtx.Lock()
	if a.closed {
		a.mtx.Unlock()
		return nil
	}
	a.closed = true
	a.mtx.Unlock()
	return a.listener.Close()
}
