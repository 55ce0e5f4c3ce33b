package imagelink

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/blutspende/go-imagelink/protocol"
	"github.com/stretchr/testify/assert"
)

var testKey = CacheKey{ConnectionID: "c1", ImageID: 7}

func TestLoadingHandleRequestsOnce(t *testing.T) {
	var dispatched atomic.Int32
	handle := newLoadingHandle(testKey, func() bool {
		dispatched.Add(1)
		return true
	})

	assert.Equal(t, Loading, handle.Status())
	assert.False(t, handle.Requested())
	assert.Equal(t, int32(0), dispatched.Load(), "nothing is requested before somebody asks")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle.RequestData()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dispatched.Load())
	assert.True(t, handle.Requested())
	assert.False(t, handle.RequestData())
}

func TestHandleCompletesOnlyFromLoading(t *testing.T) {
	handle := newLoadingHandle(testKey, func() bool { return true })
	buffer := protocol.RGBA32Buffer(rgbaPixels(2, 2), 2, 2, 0)

	assert.True(t, handle.complete(buffer))
	state := handle.State()
	assert.Equal(t, Ready, state.Status)
	assert.Equal(t, buffer, state.Buffer)
	assert.Nil(t, state.Err)

	assert.False(t, handle.fail(errors.New("late")))
	assert.False(t, handle.complete(protocol.ImageBuffer{}))
	assert.Equal(t, Ready, handle.Status())

	// a finished handle never asks again
	assert.False(t, handle.RequestData())
}

func TestHandleFails(t *testing.T) {
	handle := newLoadingHandle(testKey, func() bool { return true })
	handle.RequestData()

	cause := errors.New("no data")
	assert.True(t, handle.fail(cause))
	state := handle.State()
	assert.Equal(t, FailedToLoad, state.Status)
	assert.Equal(t, cause, state.Err)
	assert.True(t, state.Buffer.IsEmpty())
}

func TestHandleDispatchFailsWhenDisconnected(t *testing.T) {
	handle := newLoadingHandle(testKey, func() bool { return false })

	assert.False(t, handle.RequestData())
	assert.True(t, handle.Requested())
	assert.Equal(t, Loading, handle.Status(), "a handle of a lost connection stays loading")
}

func TestReadyAndFailedHandles(t *testing.T) {
	ready := newReadyHandle(testKey, protocol.RGBA32Buffer(rgbaPixels(1, 1), 1, 1, 0))
	assert.Equal(t, Ready, ready.Status())
	assert.False(t, ready.RequestData())
	assert.Equal(t, uint64(7), ready.ImageID())
	assert.Equal(t, "c1", ready.ConnectionID())
	assert.Equal(t, testKey, ready.Key())

	failed := newFailedHandle(testKey, ErrImageDecode)
	assert.Equal(t, FailedToLoad, failed.Status())
	assert.ErrorIs(t, failed.State().Err, ErrImageDecode)
}

func TestLoadStatusString(t *testing.T) {
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "failed", FailedToLoad.String())
	assert.Equal(t, "unknown", LoadUnknown.String())
}
