package e2etests

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	imagelink "github.com/blutspende/go-imagelink"
	"github.com/blutspende/go-imagelink/connections"
	"github.com/blutspende/go-imagelink/protocol"
	filedriver "github.com/goftp/file-driver"
	"github.com/goftp/server"
	"github.com/pires/go-proxyproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFile(t *testing.T, width, height int) []byte {
	var out bytes.Buffer
	require.Nil(t, png.Encode(&out, image.NewGray(image.Rect(0, 0, width, height))))
	return out.Bytes()
}

func Test_Directory_To_Image_List(t *testing.T) {
	srv, port := startServer(t, &countingHandler{})
	client := connect(t, port)

	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "first.png"), pngFile(t, 6, 4), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher := imagelink.NewDirectoryWatcher(dir, "*.png", client, imagelink.WithWatchViewer("scans"))
	go watcher.Run(ctx)

	list := imagelink.NewImageList(nil, 0)
	collect(t, srv, list, 1)

	require.Nil(t, os.WriteFile(filepath.Join(dir, "second.png"), pngFile(t, 2, 2), 0644))
	collect(t, srv, list, 2)

	assert.Equal(t, 0, list.Find("first.png", "scans"))
	assert.Equal(t, 1, list.Find("second.png", "scans"))

	var img image.Image
	var err error
	require.Eventually(t, func() bool {
		img, err = list.Data(0)
		return err == nil
	}, waitFor, pollEvery)
	assert.Equal(t, image.Rect(0, 0, 6, 4), img.Bounds())

	entry, _ := list.At(0)
	assert.Equal(t, filepath.Join(dir, "first.png"), entry.FilePath)
}

func Test_FTP_To_Image_List(t *testing.T) {
	root := t.TempDir()
	require.Nil(t, os.Mkdir(filepath.Join(root, "out"), 0755))
	require.Nil(t, os.WriteFile(filepath.Join(root, "out", "remote.png"), pngFile(t, 3, 3), 0644))

	ftpPort, err := connections.FindFreePort("127.0.0.1", 23000, 23999)
	require.Nil(t, err)
	ftpserver := server.NewServer(&server.ServerOpts{
		Factory: &filedriver.FileDriverFactory{
			RootPath: root,
			Perm:     server.NewSimplePerm("user", "group"),
		},
		Port:     ftpPort,
		Hostname: "127.0.0.1",
		Auth:     &server.SimpleAuth{Name: "test", Password: "test"},
		Logger:   &server.DiscardLogger{},
	})
	go ftpserver.ListenAndServe()
	defer ftpserver.Shutdown()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(ftpPort)))
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, waitFor, pollEvery)

	srv, port := startServer(t, &countingHandler{})
	client := connect(t, port)

	source := imagelink.CreateNewFTPImageSource("127.0.0.1", ftpPort, "/out", "*.png", client,
		imagelink.DefaultFTPConfig().UserPass("test", "test").
			ProcessStrategy(imagelink.PROCESS_STRATEGY_DELETE).
			PollInterval(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go source.Run(ctx)

	list := imagelink.NewImageList(nil, 0)
	collect(t, srv, list, 1)

	var img image.Image
	require.Eventually(t, func() bool {
		img, err = list.Data(0)
		return err == nil
	}, waitFor, pollEvery)
	assert.Equal(t, image.Rect(0, 0, 3, 3), img.Bounds())

	_, err = os.Stat(filepath.Join(root, "out", "remote.png"))
	assert.True(t, os.IsNotExist(err), "served files are deleted")
}

func Test_Server_Behind_HAProxy(t *testing.T) {
	srv, port := startServer(t, &countingHandler{}, imagelink.WithProxy(imagelink.HAProxySendProxyV2))

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.Nil(t, err)
	defer conn.Close()

	header := proxyproto.HeaderProxyFromAddrs(2,
		&net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 5555},
		conn.RemoteAddr())
	_, err = header.WriteTo(conn)
	require.Nil(t, err)
	_, err = conn.Write(protocol.VersionMessage(protocol.ProtocolVersion).Encode())
	require.Nil(t, err)

	require.Eventually(t, func() bool { return len(srv.FindSessionsByIp("10.1.2.3")) == 1 }, waitFor, pollEvery)
	assert.Equal(t, 0, len(srv.FindSessionsByIp("127.0.0.1")))
}
