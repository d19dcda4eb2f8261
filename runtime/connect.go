// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// File: runtime/connect.go
//
// Outbound (Connector) socket establishment: the locally-initiated,
// client-role counterpart of Listen. A non-blocking connect usually
// returns EINPROGRESS; the socket is dispatched to a worker with write
// interest armed, and the first EPOLLOUT readiness carries the verdict in
// SO_ERROR.

package runtime

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/drnp/bsp/api"
)

// Dial creates a non-blocking socket and initiates connect toward
// addr:port. The returned fd is mid-handshake (CONNECTING) unless the
// kernel completed the connect synchronously, which the second return
// value reports.
func Dial(inet api.AddressFamily, sock api.SockKind, addr string, port int) (fd int, connected bool, err error) {
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

	fd, err = unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, false, fmt.Errorf("runtime.Dial: socket: %w", err)
	}

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

	for {
		err = unix.Connect(fd, sa)
		if err == unix.EINTR {
			continue
		}
		break
	}
	switch err {
	case nil:
		return fd, true, nil
	case unix.EINPROGRESS:
		return fd, false, nil
	default:
		_ = unix.Close(fd)
		return -1, false, fmt.Errorf("runtime.Dial: connect: %w", err)
	}
}

// AddConnector registers cnt with the runtime and dispatches its fd to a
// worker. Write interest is armed so a pending connect's completion
// surfaces as EPOLLOUT; when the kernel already completed the connect
// synchronously, OnConnected fires immediately instead.
func (rt *Runtime) AddConnector(cnt *Connector, connected bool, workerID int) error {
	if !connected {
		cnt.Socket.MarkConnecting()
	}
	w, err := rt.Pool.Dispatch(cnt.FD, api.KindConnector, cnt, workerID, !connected)
	if err != nil {
		return err
	}
	cnt.Socket.WantWrite = func(writable bool) { _ = w.Modify(cnt.FD, writable) }
	cnt.Socket.Wake = w.Wake
	rt.refreshFDMetric()
	if connected && cnt.OnConnected != nil {
		cnt.OnConnected(cnt)
	}
	return nil
}

// finishConnect resolves a CONNECTING connector's first EPOLLOUT: a zero
// SO_ERROR means established, anything else is an I/O failure surfaced
// through the usual PRE-CLOSE path.
func (rt *Runtime) finishConnect(cnt *Connector) {
	soerr, err := unix.GetsockoptInt(cnt.FD, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && soerr != 0 {
		err = unix.Errno(soerr)
	}
	cnt.Socket.ClearConnecting()
	if err != nil {
		if rt.Log != nil {
			rt.Log.WithError(err).Warn("connector connect failed")
		}
		cnt.Socket.SetPreClose()
		return
	}
	if cnt.OnConnected != nil {
		cnt.OnConnected(cnt)
	}
}
