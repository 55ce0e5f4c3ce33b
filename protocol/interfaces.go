package protocol

// Stream is an asynchronous byte stream. Both calls may complete partially,
// the callback receives the number of bytes transferred. Callbacks are
// delivered on the event loop that owns the stream, never inline from a
// foreign goroutine.
type Stream interface {
	DoRecv(buf []byte, onDone func(n int, err error))
	DoSend(buf []byte, onDone func(n int, err error))
}

// Poster hands a function to the event loop. Post must not block and returns
// false once the loop is gone.
type Poster interface {
	Post(fn func()) bool
}
