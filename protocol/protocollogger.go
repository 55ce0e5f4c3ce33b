package protocol

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/blutspende/go-imagelink/protocol/utilities"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const peekLength = 30

type protocolLogger struct {
	enableLog bool
	logger    zerolog.Logger
}

func (pl *protocolLogger) logRead(peer string, n int, err error, datafull []byte) {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// Dont log timouts
			return
		}
		pl.logger.Debug().Str("peer", peer).Err(err).Msg("recv - (error)")
		return
	}

	pl.logger.Debug().Str("peer", peer).Int("bytes", n).Str("peek", peek(datafull[:n])).Msg("recv")
}

func (pl *protocolLogger) logWrite(peer string, n int, err error, datafull []byte) {
	if err != nil {
		pl.logger.Debug().Str("peer", peer).Err(err).Msg("send - (error)")
		return
	}
	pl.logger.Debug().Str("peer", peer).Int("bytes", n).Str("peek", peek(datafull)).Msg("send")
}

func (pl *protocolLogger) logClose(peer string) {
	pl.logger.Debug().Str("peer", peer).Msg("close")
}

// peek renders the start of data. Every byte turns into at least one rune,
// so peekLength bytes are always enough.
func peek(data []byte) string {
	head := data
	if len(head) > peekLength {
		head = head[:peekLength]
	}
	readable := utilities.MakeBytesReadable(head)
	peeked := utilities.Substr(readable, 0, peekLength)
	if len(data) > len(head) || len(readable) > peekLength {
		peeked = peeked + "..."
	}
	return peeked
}

// Logger wraps conn with a wire dump when PROTOLOG_ENABLE is set, otherwise
// conn is returned untouched.
func Logger(conn net.Conn) net.Conn {
	if os.Getenv("PROTOLOG_ENABLE") == "" {
		return conn
	}
	return wrapConnWithLogger(&protocolLogger{
		enableLog: true,
		logger:    log.Logger.With().Str("component", "protolog").Logger(),
	}, conn)
}

type netConnLoggerSpy struct {
	conn           net.Conn
	protocolLogger *protocolLogger
}

func (ls *netConnLoggerSpy) Read(b []byte) (n int, err error) {
	n, err = ls.conn.Read(b)
	if ls.protocolLogger.enableLog {
		ls.protocolLogger.logRead(ls.peer(), n, err, b)
	}
	return n, err
}
func (ls *netConnLoggerSpy) Write(b []byte) (n int, err error) {
	n, err = ls.conn.Write(b)
	if ls.protocolLogger.enableLog {
		ls.protocolLogger.logWrite(ls.peer(), n, err, b)
	}
	return n, err
}
func (ls *netConnLoggerSpy) Close() error {
	if ls.protocolLogger.enableLog {
		ls.protocolLogger.logClose(ls.peer())
	}
	return ls.conn.Close()
}
func (ls *netConnLoggerSpy) peer() string {
	if addr := ls.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
func (ls *netConnLoggerSpy) LocalAddr() net.Addr {
	return ls.conn.LocalAddr()
}
func (ls *netConnLoggerSpy) RemoteAddr() net.Addr {
	return ls.conn.RemoteAddr()
}
func (ls *netConnLoggerSpy) SetDeadline(t time.Time) error {
	return ls.conn.SetDeadline(t)
}
func (ls *netConnLoggerSpy) SetReadDeadline(t time.Time) error {
	return ls.conn.SetReadDeadline(t)
}
func (ls *netConnLoggerSpy) SetWriteDeadline(t time.Time) error {
	return ls.conn.SetWriteDeadline(t)
}

func wrapConnWithLogger(pl *protocolLogger, con net.Conn) net.Conn {
	return &netConnLoggerSpy{
		conn:           con,
		protocolLogger: pl,
	}
}
