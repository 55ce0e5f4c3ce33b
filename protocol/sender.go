package protocol

import (
	"io"
	"sync"
)

type pendingMessage struct {
	msg    Message
	onSent []func()
}

// SenderQueue writes messages in the order they were enqueued. Enqueue may be
// called from any goroutine; the writes themselves only happen on the loop.
type SenderQueue struct {
	loop    Poster
	stream  Stream
	onError func(error)

	mu      sync.Mutex
	queue   []pendingMessage
	sending bool
	aborted bool

	// loop goroutine only
	header  [HeaderSize]byte
	current pendingMessage
}

// NewSenderQueue reports the first write error to onError. After that the
// queue is dead and drops everything.
func NewSenderQueue(loop Poster, stream Stream, onError func(error)) *SenderQueue {
	return &SenderQueue{
		loop:    loop,
		stream:  stream,
		onError: onError,
		queue:   make([]pendingMessage, 0),
	}
}

// Enqueue appends msg and starts sending if the queue was idle. onSent runs
// on the loop once the whole frame is written. Returns false if the queue
// was aborted or closed.
func (q *SenderQueue) Enqueue(msg Message, onSent ...func()) bool {
	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		return false
	}
	q.queue = append(q.queue, pendingMessage{msg: msg, onSent: onSent})
	kick := !q.sending
	if kick {
		q.sending = true
	}
	q.mu.Unlock()

	if kick && !q.loop.Post(q.sendNext) {
		q.Close()
		return false
	}
	return true
}

// Pending is the number of messages not yet started.
func (q *SenderQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Close abandons everything still queued without reporting an error.
func (q *SenderQueue) Close() {
	q.mu.Lock()
	q.aborted = true
	q.queue = nil
	q.mu.Unlock()
}

func (q *SenderQueue) sendNext() {
	q.mu.Lock()
	if q.aborted || len(q.queue) == 0 {
		q.sending = false
		q.mu.Unlock()
		return
	}
	q.current = q.queue[0]
	q.queue[0] = pendingMessage{}
	q.queue = q.queue[1:]
	q.mu.Unlock()

	q.current.msg.Header().EncodeInto(q.header[:])
	sendExactly(q.stream, q.header[:], func(err error) {
		if err != nil {
			q.fail(err)
			return
		}
		if len(q.current.msg.Payload) == 0 {
			q.flushed()
			return
		}
		sendExactly(q.stream, q.current.msg.Payload, func(err error) {
			if err != nil {
				q.fail(err)
				return
			}
			q.flushed()
		})
	})
}

func (q *SenderQueue) flushed() {
	done := q.current
	q.current = pendingMessage{}
	for _, onSent := range done.onSent {
		onSent()
	}
	if !q.loop.Post(q.sendNext) {
		q.Close()
	}
}

func (q *SenderQueue) fail(err error) {
	q.current = pendingMessage{}
	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		return
	}
	q.aborted = true
	q.queue = nil
	q.mu.Unlock()

	if q.onError != nil {
		q.onError(err)
	}
}

func sendExactly(stream Stream, buf []byte, onDone func(error)) {
	stream.DoSend(buf, func(n int, err error) {
		switch {
		case n >= len(buf):
			onDone(nil)
		case err != nil:
			onDone(err)
		case n == 0:
			onDone(io.ErrShortWrite)
		default:
			sendExactly(stream, buf[n:], onDone)
		}
	})
}
