package imagelink

import (
	"time"

	"github.com/blutspende/go-imagelink/connections"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 4207
)

type TimingConfiguration struct {
	// Dial timeout of the client
	Timeout time.Duration
	// How long Stop waits for peers to acknowledge Close before the
	// remaining connections are cut
	Deadline time.Duration
	// Poll interval of the image sources
	PollInterval time.Duration
}

var DefaultTimings = TimingConfiguration{
	Timeout:      time.Second * 3,
	Deadline:     time.Second * 1,
	PollInterval: time.Second * 10,
}

type ProxyType = connections.ProxyType

const (
	NoLoadBalancer     = connections.NoLoadBalancer
	HAProxySendProxyV2 = connections.HAProxySendProxyV2
)

type ErrorType int

const (
	ErrorConnect           ErrorType = 1
	ErrorSend              ErrorType = 2
	ErrorReceive           ErrorType = 3
	ErrorDecode            ErrorType = 4
	ErrorProtocolViolation ErrorType = 5
	ErrorAccept            ErrorType = 6 // server only
	ErrorMaxConnections    ErrorType = 7 // server only
	ErrorImageLoad         ErrorType = 8
)

func (e ErrorType) String() string {
	switch e {
	case ErrorConnect:
		return "connect"
	case ErrorSend:
		return "send"
	case ErrorReceive:
		return "receive"
	case ErrorDecode:
		return "decode"
	case ErrorProtocolViolation:
		return "protocol-violation"
	case ErrorAccept:
		return "accept"
	case ErrorMaxConnections:
		return "max-connections"
	case ErrorImageLoad:
		return "image-load"
	default:
		return "unknown"
	}
}
