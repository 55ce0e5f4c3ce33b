package protocol

import (
	"io"
)

// scriptedStream hands out incoming data in the chunk sizes of the script
// and records everything sent. Callbacks run inline.
type scriptedStream struct {
	incoming   []byte
	recvChunks []int
	recvCalls  int
	splitAt    int // no read crosses this offset
	delivered  int

	sent       []byte
	sendChunks []int
	sendCalls  int
	sendErrAt  int // fail the n-th DoSend (1 based), 0 never
	sendErr    error

	parkRecv func(n int, err error)
}

func (s *scriptedStream) DoRecv(buf []byte, onDone func(n int, err error)) {
	s.recvCalls++
	if s.incoming == nil && s.parkRecv == nil && len(s.recvChunks) == 0 {
		// nothing scripted, keep the read pending
		s.parkRecv = onDone
		return
	}
	if len(s.incoming) == 0 {
		onDone(0, io.EOF)
		return
	}
	n := len(buf)
	if len(s.recvChunks) > 0 {
		if s.recvChunks[0] < n {
			n = s.recvChunks[0]
		}
		s.recvChunks = s.recvChunks[1:]
	}
	if s.delivered < s.splitAt && s.delivered+n > s.splitAt {
		n = s.splitAt - s.delivered
	}
	if n > len(s.incoming) {
		n = len(s.incoming)
	}
	copy(buf, s.incoming[:n])
	s.incoming = s.incoming[n:]
	s.delivered += n
	onDone(n, nil)
}

func (s *scriptedStream) DoSend(buf []byte, onDone func(n int, err error)) {
	s.sendCalls++
	if s.sendErrAt > 0 && s.sendCalls == s.sendErrAt {
		onDone(0, s.sendErr)
		return
	}
	n := len(buf)
	if len(s.sendChunks) > 0 {
		if s.sendChunks[0] < n {
			n = s.sendChunks[0]
		}
		s.sendChunks = s.sendChunks[1:]
	}
	s.sent = append(s.sent, buf[:n]...)
	onDone(n, nil)
}

// queueLoop is a single threaded stand-in for the event loop.
type queueLoop struct {
	queue  []func()
	closed bool
}

func (l *queueLoop) Post(fn func()) bool {
	if l.closed {
		return false
	}
	l.queue = append(l.queue, fn)
	return true
}

func (l *queueLoop) runAll() {
	for len(l.queue) > 0 {
		fn := l.queue[0]
		l.queue = l.queue[1:]
		fn()
	}
}

func repeat(chunk int, times int) []int {
	chunks := make([]int, times)
	for i := range chunks {
		chunks[i] = chunk
	}
	return chunks
}
