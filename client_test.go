package imagelink

import (
	"image"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blutspende/go-imagelink/connections"
	"github.com/blutspende/go-imagelink/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second
const tick = 10 * time.Millisecond

func startTestServer(t *testing.T, handler Handler, options ...ServerOption) (*ImageServer, int) {
	srv := CreateNewServer("127.0.0.1", 0, handler, options...)
	require.Nil(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv, srv.Addr().(*net.TCPAddr).Port
}

func connectClient(t *testing.T, port int, handler Handler, options ...ClientOption) *ClientSession {
	client := CreateNewClient("127.0.0.1", port, handler, options...)
	require.Nil(t, client.Connect())
	t.Cleanup(client.Disconnect)
	return client
}

func drainUntil(t *testing.T, srv *ImageServer, list *ImageList, count int) {
	require.Eventually(t, func() bool {
		srv.DrainAll(list.Add)
		return list.Len() >= count
	}, eventually, tick)
}

func TestClientConnects(t *testing.T) {
	serverHandler := newRecordingHandler()
	srv, port := startTestServer(t, serverHandler)

	clientHandler := newRecordingHandler()
	client := connectClient(t, port, clientHandler)

	assert.Equal(t, StatusConnected, client.Status())
	assert.True(t, client.IsConnected())
	assert.NotEmpty(t, client.ConnectionID())
	require.Eventually(t, func() bool { return clientHandler.count("connected") == 1 }, eventually, tick)

	require.Eventually(t, func() bool { return serverHandler.count("connected") == 1 }, eventually, tick)
	assert.Equal(t, 1, srv.SessionCount())
	assert.Equal(t, StatusConnected, srv.Sessions()[0].Status())

	client.Disconnect()
	client.WaitUntilDisconnected()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, 1, clientHandler.count("disconnected"))

	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, eventually, tick)
	assert.Equal(t, 1, serverHandler.count("disconnected"))

	assert.ErrorIs(t, client.Connect(), ErrSessionUsed)
}

func TestClientConnectRefused(t *testing.T) {
	port, err := connections.FindFreePort("127.0.0.1", 22000, 22999)
	require.Nil(t, err)

	handler := newRecordingHandler()
	client := CreateNewClient("127.0.0.1", port, handler, WithClientTiming(TimingConfiguration{
		Timeout:  500 * time.Millisecond,
		Deadline: time.Second,
	}))

	assert.ErrorIs(t, client.Connect(), ErrConnectFailed)
	client.WaitUntilDisconnected()
	assert.False(t, client.IsConnected())
	assert.Equal(t, 1, len(handler.errorsOfType(ErrorConnect)))
	assert.Equal(t, 0, handler.count("disconnected"), "never connected, never disconnected")
	assert.ErrorIs(t, client.Connect(), ErrSessionUsed)
}

func TestPublishRequiresConnection(t *testing.T) {
	client := CreateNewClient("127.0.0.1", 1, nil)
	provider := FileProvider("/does/not/matter.png")

	assert.ErrorIs(t, client.PublishLazy(1, "a", "v", provider, false), ErrNotConnected)
	assert.ErrorIs(t, client.PublishEager(1, "a", "v", protocol.RGBA32Buffer(rgbaPixels(1, 1), 1, 1, 0), false), ErrNotConnected)

	// never started, returns right away
	client.WaitUntilDisconnected()
}

func TestPublishRejects(t *testing.T) {
	_, port := startTestServer(t, newRecordingHandler())
	client := connectClient(t, port, newRecordingHandler())
	provider := FileProvider("/does/not/matter.png")

	assert.Equal(t, uint64(1), client.NextImageID())
	assert.Equal(t, uint64(2), client.NextImageID())

	require.Nil(t, client.PublishLazy(1, "a", "v", provider, false))
	assert.ErrorIs(t, client.PublishLazy(1, "a", "v", provider, false), ErrDuplicateImageID)
	assert.ErrorIs(t, client.PublishEager(1, "a", "v", protocol.RGBA32Buffer(rgbaPixels(1, 1), 1, 1, 0), false), ErrDuplicateImageID)
	assert.ErrorIs(t, client.PublishEager(2, "b", "v", protocol.EmptyImageBuffer("b.png"), false), ErrEmptyImageBuffer)
	assert.ErrorIs(t, client.PublishEager(2, "b", "v", protocol.RGBA32Buffer(rgbaPixels(1, 1), 1, 2, 0), false), protocol.ErrMalformedPayload)
	assert.ErrorIs(t, client.PublishLazy(3, "c", "v", nil, false), ErrNoProvider)
	assert.Equal(t, 1, client.PendingImages())
}

func TestLazyImageRoundTrip(t *testing.T) {
	srv, port := startTestServer(t, newRecordingHandler())
	client := connectClient(t, port, newRecordingHandler())

	var served atomic.Int32
	content := encodePNG(t, 3, 2)
	provider := ImageDataProviderFunc(func(imageID uint64) (protocol.ImageBuffer, bool) {
		served.Add(1)
		return protocol.EncodedFileBuffer("slide.png", content), true
	})
	require.Nil(t, client.PublishLazy(7, "slide.png", "viewer", provider, false))
	assert.Equal(t, 1, client.PendingImages())

	list := NewImageList(nil, 0)
	drainUntil(t, srv, list, 1)

	entry, err := list.At(0)
	require.Nil(t, err)
	assert.Equal(t, uint64(7), entry.Handle.ImageID())
	assert.Equal(t, "slide.png", entry.Name)
	assert.Equal(t, "viewer", entry.ViewerName)
	assert.Equal(t, Loading, entry.Handle.Status())
	assert.False(t, entry.Handle.Requested())
	assert.Equal(t, int32(0), served.Load(), "data is only sent on request")

	_, err = list.Data(0)
	assert.ErrorIs(t, err, ErrImageLoading)

	require.Eventually(t, func() bool { return entry.Handle.Status() == Ready }, eventually, tick)
	img, err := list.Data(0)
	require.Nil(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, int32(1), served.Load())
	assert.Equal(t, 0, client.PendingImages())
}

func TestKeepProvidersAfterServe(t *testing.T) {
	srv, port := startTestServer(t, newRecordingHandler())
	client := connectClient(t, port, newRecordingHandler(), KeepProvidersAfterServe())

	provider := ImageDataProviderFunc(func(imageID uint64) (protocol.ImageBuffer, bool) {
		return protocol.RGBA32Buffer(rgbaPixels(2, 2), 2, 2, 0), true
	})
	require.Nil(t, client.PublishLazy(1, "kept", "v", provider, false))

	list := NewImageList(nil, 0)
	drainUntil(t, srv, list, 1)
	entry, _ := list.At(0)
	require.True(t, entry.Handle.RequestData())
	require.Eventually(t, func() bool { return entry.Handle.Status() == Ready }, eventually, tick)

	assert.Equal(t, 1, client.PendingImages())
}

func TestProviderWithoutData(t *testing.T) {
	serverHandler := newRecordingHandler()
	srv, port := startTestServer(t, serverHandler)
	clientHandler := newRecordingHandler()
	client := connectClient(t, port, clientHandler)

	provider := ImageDataProviderFunc(func(imageID uint64) (protocol.ImageBuffer, bool) {
		return protocol.EmptyImageBuffer("gone.png"), false
	})
	require.Nil(t, client.PublishLazy(4, "gone.png", "v", provider, false))

	list := NewImageList(nil, 0)
	drainUntil(t, srv, list, 1)
	entry, _ := list.At(0)
	entry.Handle.RequestData()

	require.Eventually(t, func() bool { return entry.Handle.Status() == FailedToLoad }, eventually, tick)
	_, err := list.Data(0)
	assert.ErrorIs(t, err, ErrImageLoadFailed)

	require.Eventually(t, func() bool { return len(serverHandler.errorsOfType(ErrorImageLoad)) == 1 }, eventually, tick)
	assert.ErrorIs(t, serverHandler.errorsOfType(ErrorImageLoad)[0], ErrImageLoadFailed)
	assert.ErrorIs(t, clientHandler.errorsOfType(ErrorImageLoad)[0], ErrEmptyImageBuffer)

	// the connection survives
	assert.True(t, client.IsConnected())
	assert.Equal(t, 1, srv.SessionCount())
}

func TestEagerImageReplacesExisting(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	srv, port := startTestServer(t, newRecordingHandler(), WithServerMetrics(metrics))
	client := connectClient(t, port, newRecordingHandler())

	first := image.NewRGBA(image.Rect(0, 0, 4, 4))
	_, err := client.PublishImage(first, "overview", "v", false)
	require.Nil(t, err)
	require.Nil(t, client.PublishEager(client.NextImageID(), "overview", "v",
		protocol.RGBA32Buffer(rgbaPixels(4, 4), 4, 4, 0), true))

	list := NewImageList(nil, 0)
	drained := 0
	require.Eventually(t, func() bool {
		drained += srv.DrainAll(list.Add)
		return drained == 2
	}, eventually, tick)

	assert.Equal(t, 1, list.Len())
	entry, _ := list.At(0)
	assert.Equal(t, uint64(2), entry.Handle.ImageID())
	assert.Equal(t, Ready, entry.Handle.Status())
	assert.False(t, entry.Handle.Requested())
	assert.True(t, entry.ReplaceExisting())

	img, err := list.Data(0)
	require.Nil(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())

	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.messagesSent.WithLabelValues(protocol.KindRequestImageBuffer.String())))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.messagesReceived.WithLabelValues(protocol.KindImage.String())))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.imagesCompleted.WithLabelValues(Ready.String())))
}

func TestEagerImageArrivesWithoutRequest(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	srv, port := startTestServer(t, nil, WithServerMetrics(metrics))
	client := connectClient(t, port, nil)

	pixels := rgbaPixels(4, 4)
	require.Nil(t, client.PublishEager(1, "eager", "v", protocol.RGBA32Buffer(pixels, 4, 4, 0), true))

	list := NewImageList(nil, 0)
	drainUntil(t, srv, list, 1)
	assert.Equal(t, 0, srv.DrainAll(list.Add))
	assert.Equal(t, 1, list.Len())

	entry, _ := list.At(0)
	state := entry.Handle.State()
	assert.Equal(t, Ready, state.Status)
	assert.Equal(t, pixels, state.Buffer.Data)
	assert.True(t, entry.ReplaceExisting())
	assert.False(t, entry.Handle.Requested())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.messagesSent.WithLabelValues(protocol.KindRequestImageBuffer.String())))
}

// fakeImageServer speaks the protocol by hand for the tests of the client side.
func fakeImageServer(t *testing.T) (net.Listener, chan net.Conn) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	t.Cleanup(func() { listener.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()
	return listener, accepted
}

func readFrame(t *testing.T, conn net.Conn) protocol.Message {
	_ = conn.SetReadDeadline(time.Now().Add(eventually))
	header := make([]byte, protocol.HeaderSize)
	_, err := io.ReadFull(conn, header)
	require.Nil(t, err)
	decoded, err := protocol.DecodeHeader(header)
	require.Nil(t, err)
	payload := make([]byte, decoded.PayloadSize)
	_, err = io.ReadFull(conn, payload)
	require.Nil(t, err)
	return protocol.Message{Kind: decoded.Kind, Payload: payload}
}

func writeFrame(t *testing.T, conn net.Conn, msg protocol.Message) {
	_, err := conn.Write(msg.Encode())
	require.Nil(t, err)
}

func TestClientUnknownRequestKeepsConnection(t *testing.T) {
	listener, accepted := fakeImageServer(t)
	handler := newRecordingHandler()
	client := connectClient(t, listener.Addr().(*net.TCPAddr).Port, handler)

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(eventually):
		t.Fatal("client did not connect")
	}
	defer conn.Close()

	version, err := protocol.DecodeVersion(readFrame(t, conn))
	require.Nil(t, err)
	assert.Equal(t, protocol.ProtocolVersion, version)

	writeFrame(t, conn, protocol.VersionMessage(protocol.ProtocolVersion))
	writeFrame(t, conn, protocol.RequestImageBufferMessage(5))
	require.Eventually(t, func() bool { return len(handler.errorsOfType(ErrorProtocolViolation)) == 1 }, eventually, tick)
	assert.ErrorIs(t, handler.errorsOfType(ErrorProtocolViolation)[0], ErrUnknownImageID)

	// messages meant for the server are dropped the same way
	writeFrame(t, conn, announcement(1, "a", "v", protocol.EmptyImageBuffer(""), false).Message())
	require.Eventually(t, func() bool { return len(handler.errorsOfType(ErrorProtocolViolation)) == 2 }, eventually, tick)
	assert.ErrorIs(t, handler.errorsOfType(ErrorProtocolViolation)[1], ErrUnexpectedMessage)
	assert.True(t, client.IsConnected())

	// a lazy image is still served after that
	require.Nil(t, client.PublishLazy(6, "b", "v", ImageDataProviderFunc(func(uint64) (protocol.ImageBuffer, bool) {
		return protocol.RGBA32Buffer(rgbaPixels(1, 1), 1, 1, 0), true
	}), false))
	announced, err := protocol.DecodeImageAnnouncement(readFrame(t, conn))
	require.Nil(t, err)
	assert.Equal(t, uint64(6), announced.ImageID)
	assert.True(t, announced.Buffer.IsEmpty())

	writeFrame(t, conn, protocol.RequestImageBufferMessage(6))
	reply, err := protocol.DecodeImageBufferReply(readFrame(t, conn))
	require.Nil(t, err)
	assert.Equal(t, uint64(6), reply.ImageID)
	assert.Equal(t, uint32(1), reply.Buffer.Width)

	writeFrame(t, conn, protocol.CloseMessage())
	client.WaitUntilDisconnected()
	assert.Equal(t, 1, handler.count("disconnected"))
}

func TestClientDecodeErrorDisconnects(t *testing.T) {
	listener, accepted := fakeImageServer(t)
	handler := newRecordingHandler()
	client := connectClient(t, listener.Addr().(*net.TCPAddr).Port, handler)

	conn := <-accepted
	defer conn.Close()
	readFrame(t, conn)

	writeFrame(t, conn, protocol.Message{Kind: protocol.KindVersion, Payload: []byte{1}})
	client.WaitUntilDisconnected()

	require.Equal(t, 1, len(handler.errorsOfType(ErrorDecode)))
	assert.ErrorIs(t, handler.errorsOfType(ErrorDecode)[0], protocol.ErrTruncatedPayload)
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestClientCloseFlushesAnnouncements(t *testing.T) {
	srv, port := startTestServer(t, nil)
	handler := newRecordingHandler()
	client := connectClient(t, port, handler)

	for i := 0; i < 20; i++ {
		_, err := client.PublishImage(imageOfSize(16, 16), "burst", "v", false)
		require.Nil(t, err)
	}
	client.Close()
	client.WaitUntilDisconnected()
	assert.Equal(t, 1, handler.count("disconnected"))

	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, eventually, tick)
	assert.Equal(t, 20, srv.DrainAll(func(ReceivedImage, uint32) {}))
}
