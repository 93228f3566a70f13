package listener

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
)

// Address selects the transport a service listens on. Exactly one of Port
// and UnixSocket is meaningful; UnixSocket wins when both are set.
type Address struct {
	Port       int
	UnixSocket string
}

func (a Address) Network() string {
	if a.UnixSocket != "" {
		return "unix"
	}
	return "tcp"
}

// String is the address as it is shown to users: host:port for TCP and the
// socket path for Unix sockets.
func (a Address) String() string {
	if a.UnixSocket != "" {
		return a.UnixSocket
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(a.Port))
}

// Listen opens the listener. TCP binds to loopback only. A stale Unix socket
// file is removed before binding and the file is unlinked when the listener
// is closed.
func Listen(addr Address) (net.Listener, error) {
	if addr.UnixSocket == "" {
		if addr.Port < 0 || addr.Port > 65535 {
			return nil, fmt.Errorf("port %d is not in range [0,65535]", addr.Port)
		}
		ln, err := net.Listen("tcp", addr.String())
		if err != nil {
			return nil, fmt.Errorf("listen tcp failed: %w", err)
		}
		return ln, nil
	}

	if err := os.Remove(addr.UnixSocket); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale unix socket failed: %w", err)
	}
	ln, err := net.Listen("unix", addr.UnixSocket)
	if err != nil {
		return nil, fmt.Errorf("listen unix failed: %w", err)
	}
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(true)
	}
	return ln, nil
}
