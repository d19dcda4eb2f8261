//go:build linux
// +build linux

// File: internal/ioreactor/epoll.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Edge-triggered epoll reactor, one per worker. A single instance
// carries sockets, the worker's own eventfds, and timerfds side by side.

package ioreactor

import (
	"fmt"
	"syscall"
)

// Event mirrors the readiness bits the worker loop needs to see: IN, OUT, HUP, RDHUP, ERR.
type Event struct {
	FD  int
	In  bool
	Out bool
	Hup bool
	RDHup bool
	Err bool
}

// Reactor wraps one epoll instance.
type Reactor struct {
	epfd int
}

// New creates a new epoll instance.
func New() (*Reactor, error) {
	epfd, err := syscall.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("ioreactor: epoll_create1: %w", err)
	}
	return &Reactor{epfd: epfd}, nil
}

// Add registers fd edge-triggered for read (and RDHUP where supported);
// write interest is toggled later via Modify.
func (r *Reactor) Add(fd int, writable bool) error {
	ev := syscall.EpollEvent{Fd: int32(fd)}
	ev.Events = uint32(syscall.EPOLLIN) | uint32(epollET) | uint32(epollRDHUP)
	if writable {
		ev.Events |= uint32(syscall.EPOLLOUT)
	}
	if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("ioreactor: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

// Modify toggles EPOLLOUT interest for fd (socket engine write arming).
func (r *Reactor) Modify(fd int, writable bool) error {
	ev := syscall.EpollEvent{Fd: int32(fd)}
	ev.Events = uint32(syscall.EPOLLIN) | uint32(epollET) | uint32(epollRDHUP)
	if writable {
		ev.Events |= uint32(syscall.EPOLLOUT)
	}
	if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("ioreactor: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// Remove drops fd from the interest set; caller still owns the fd.
func (r *Reactor) Remove(fd int) error {
	if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("ioreactor: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// Wait blocks up to timeoutMs (-1 = forever) and fills out with ready
// events, returning the count used.
func (r *Reactor) Wait(out []Event, timeoutMs int) (int, error) {
	raw := make([]syscall.EpollEvent, len(out))
	n, err := syscall.EpollWait(r.epfd, raw, timeoutMs)
	if err != nil {
		if err == syscall.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("ioreactor: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		e := raw[i]
		out[i] = Event{
			FD:    int(e.Fd),
			In:    e.Events&syscall.EPOLLIN != 0,
			Out:   e.Events&syscall.EPOLLOUT != 0,
			Hup:   e.Events&syscall.EPOLLHUP != 0,
			RDHup: e.Events&epollRDHUP != 0,
			Err:   e.Events&syscall.EPOLLERR != 0,
		}
	}
	return n, nil
}

// Close releases the epoll fd.
func (r *Reactor) Close() error {
	return syscall.Close(r.epfd)
}

// epollRDHUP is not exported by package syscall on all Go versions; its
// numeric value is fixed by the Linux ABI.
const epollRDHUP = 0x2000

// epollET mirrors syscall.EPOLLET as an unsigned constant; syscall.EPOLLET
// is a negative untyped constant (its high bit is set) and cannot be
// converted directly to uint32.
const epollET = 0x80000000
