package imagelink

import (
	"sync"

	"github.com/blutspende/go-imagelink/protocol"
)

type LoadStatus int

const (
	LoadUnknown LoadStatus = iota
	Loading
	Ready
	FailedToLoad
)

func (s LoadStatus) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case FailedToLoad:
		return "failed"
	default:
		return "unknown"
	}
}

// HandleState is a snapshot of a handle. Buffer is only set when Status is
// Ready, Err only when it is FailedToLoad.
type HandleState struct {
	Status LoadStatus
	Buffer protocol.ImageBuffer
	Err    error
}

// CacheKey identifies an image across connections. Image ids are only
// unique per producer.
type CacheKey struct {
	ConnectionID string
	ImageID      uint64
}

// NetworkImageHandle is the consumer side record of one announced image. It
// is written by the network goroutine and read by the consumer.
type NetworkImageHandle struct {
	key CacheKey

	mtx       sync.Mutex
	status    LoadStatus
	buffer    protocol.ImageBuffer
	err       error
	requested bool
	dispatch  func() bool
}

func newReadyHandle(key CacheKey, buffer protocol.ImageBuffer) *NetworkImageHandle {
	return &NetworkImageHandle{key: key, status: Ready, buffer: buffer}
}

func newFailedHandle(key CacheKey, err error) *NetworkImageHandle {
	return &NetworkImageHandle{key: key, status: FailedToLoad, err: err}
}

// newLoadingHandle does not request anything yet. dispatch sends the
// request once somebody calls RequestData.
func newLoadingHandle(key CacheKey, dispatch func() bool) *NetworkImageHandle {
	return &NetworkImageHandle{key: key, status: Loading, dispatch: dispatch}
}

func (h *NetworkImageHandle) Key() CacheKey {
	return h.key
}

func (h *NetworkImageHandle) ImageID() uint64 {
	return h.key.ImageID
}

func (h *NetworkImageHandle) ConnectionID() string {
	return h.key.ConnectionID
}

func (h *NetworkImageHandle) Status() LoadStatus {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.status
}

func (h *NetworkImageHandle) State() HandleState {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	switch h.status {
	case Ready:
		return HandleState{Status: Ready, Buffer: h.buffer}
	case FailedToLoad:
		return HandleState{Status: FailedToLoad, Err: h.err}
	default:
		return HandleState{Status: h.status}
	}
}

// Requested reports whether the data was asked for already.
func (h *NetworkImageHandle) Requested() bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.requested
}

// RequestData asks the producer for the data of a loading handle. Only the
// first call sends a request, it returns false for every other call and
// when the connection is gone.
func (h *NetworkImageHandle) RequestData() bool {
	h.mtx.Lock()
	if h.status != Loading || h.requested || h.dispatch == nil {
		h.mtx.Unlock()
		return false
	}
	h.requested = true
	dispatch := h.dispatch
	h.mtx.Unlock()

	return dispatch()
}

// complete and fail only act on a loading handle, a finished handle never
// changes again.
func (h *NetworkImageHandle) complete(buffer protocol.ImageBuffer) bool {
	return h.finish(Ready, buffer, nil)
}

func (h *NetworkImageHandle) fail(err error) bool {
	return h.finish(FailedToLoad, protocol.ImageBuffer{}, err)
}

func (h *NetworkImageHandle) finish(status LoadStatus, buffer protocol.ImageBuffer, err error) bool {
	h.mtx.Lock()
	if h.status != Loading {
		h.mtx.Unlock()
		return false
	}
	h.status = status
	h.buffer = buffer
	h.err = err
	h.dispatch = nil
	h.mtx.Unlock()
	return true
}
