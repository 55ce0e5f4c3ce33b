package connections

import "sync"

// EventLoop runs posted functions one after another on whatever goroutine
// calls RunOnce. Socket completions are posted here, so everything touching
// a connection's state happens on one goroutine.
type EventLoop struct {
	mtx    sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

func NewEventLoop() *EventLoop {
	return &EventLoop{
		queue: make([]func(), 0),
		wake:  make(chan struct{}, 1),
	}
}

// Post never blocks. Returns false once the loop is closed.
func (l *EventLoop) Post(fn func()) bool {
	l.mtx.Lock()
	if l.closed {
		l.mtx.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mtx.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// RunOnce blocks until something was posted and runs everything queued at
// that point. Returns false when the loop is closed.
func (l *EventLoop) RunOnce() bool {
	for {
		l.mtx.Lock()
		if l.closed {
			l.mtx.Unlock()
			return false
		}
		if len(l.queue) > 0 {
			batch := l.queue
			l.queue = make([]func(), 0, len(batch))
			l.mtx.Unlock()

			for _, fn := range batch {
				fn()
			}
			return true
		}
		l.mtx.Unlock()
		<-l.wake
	}
}

// Run loops until Close.
func (l *EventLoop) Run() {
	for l.RunOnce() {
	}
}

// Close stops the loop. Functions still queued are dropped.
func (l *EventLoop) Close() {
	l.mtx.Lock()
	if l.closed {
		l.mtx.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mtx.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) IsClosed() bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.closed
}
