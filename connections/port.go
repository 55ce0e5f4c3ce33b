package connections

import (
	"fmt"
	"net"
	"strconv"
)

// FindFreePort returns the first port in [from, to] that can be bound on
// host. The port is released again, so a racing process may still take it.
func FindFreePort(host string, from, to int) (int, error) {
	for port := from; port <= to; port++ {
		listener, err := net.Listen(TCPProtocol, net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		listener.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port on %s between %d and %d", host, from, to)
}
