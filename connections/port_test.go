package connections

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFreePortSkipsBoundPort(t *testing.T) {
	port, err := FindFreePort("127.0.0.1", 4208, 4400)
	require.Nil(t, err)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.Nil(t, err)
	defer listener.Close()

	next, err := FindFreePort("127.0.0.1", port, port+50)
	require.Nil(t, err)
	assert.NotEqual(t, port, next)
	assert.Greater(t, next, port)
}

func TestFindFreePortExhausted(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	_, err = FindFreePort("127.0.0.1", port, port)
	assert.NotNil(t, err)
}
