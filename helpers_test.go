package imagelink

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	var out bytes.Buffer
	require.Nil(t, png.Encode(&out, img))
	return out.Bytes()
}

func rgbaPixels(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	return pixels
}

type handlerEvent struct {
	kind        string
	session     Session
	typeOfError ErrorType
	err         error
}

// recordingHandler keeps every event, the channel sees them as they come.
type recordingHandler struct {
	mtx    sync.Mutex
	events []handlerEvent
	notify chan handlerEvent
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		events: make([]handlerEvent, 0),
		notify: make(chan handlerEvent, 100),
	}
}

func (h *recordingHandler) record(event handlerEvent) {
	h.mtx.Lock()
	h.events = append(h.events, event)
	h.mtx.Unlock()
	select {
	case h.notify <- event:
	default:
	}
}

func (h *recordingHandler) Connected(session Session) {
	h.record(handlerEvent{kind: "connected", session: session})
}

func (h *recordingHandler) Disconnected(session Session) {
	h.record(handlerEvent{kind: "disconnected", session: session})
}

func (h *recordingHandler) Error(session Session, typeOfError ErrorType, err error) {
	h.record(handlerEvent{kind: "error", session: session, typeOfError: typeOfError, err: err})
}

func (h *recordingHandler) errorsOfType(typeOfError ErrorType) []error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	errs := make([]error, 0)
	for _, event := range h.events {
		if event.kind == "error" && event.typeOfError == typeOfError {
			errs = append(errs, event.err)
		}
	}
	return errs
}

func (h *recordingHandler) count(kind string) int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	n := 0
	for _, event := range h.events {
		if event.kind == kind {
			n++
		}
	}
	return n
}

func imageOfSize(width, height int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, width, height))
}
