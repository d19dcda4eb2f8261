// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package runtime

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/drnp/bsp/api"
)

// Listen creates, binds, and (for stream sockets) listens on a socket for
// the given address family/kind/address/port, returning the non-blocking
// fd the acceptor worker will watch.
func Listen(inet api.AddressFamily, sock api.SockKind, addr string, port int) (int, error) {
	domain := unix.AF_INET
	if inet == api.AFInet6 {
		domain = unix.AF_INET6
	} else if inet == api.AFLocal {
		domain = unix.AF_UNIX
	}
	typ := unix.SOCK_STREAM
	if sock == api.SockDgram {
		typ = unix.SOCK_DGRAM
	}

	fd, err := unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("runtime.Listen: socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	var sa unix.Sockaddr
	switch inet {
	case api.AFInet6:
		a := &unix.SockaddrInet6{Port: port}
		if ip := net.ParseIP(addr); ip != nil {
			copy(a.Addr[:], ip.To16())
		}
		sa = a
	case api.AFLocal:
		sa = &unix.SockaddrUnix{Name: addr}
	default:
		a := &unix.SockaddrInet4{Port: port}
		if ip := net.ParseIP(addr); ip != nil {
			copy(a.Addr[:], ip.To4())
		}
		sa = a
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("runtime.Listen: bind: %w", err)
	}
	if sock == api.SockStream {
		if err := unix.Listen(fd, 1024); err != nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("runtime.Listen: listen: %w", err)
		}
	}
	return fd, nil
}
