//go:build linux
// +build linux

// File: internal/fdnotify/eventfd.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// eventfd-backed wake/exit notifiers for the worker pool. Each
// Worker owns two of these: one to break out of epoll_wait on dispatch,
// one to request cooperative shutdown.

package fdnotify

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// EventFD is a non-blocking, close-on-exec eventfd.
type EventFD struct {
	FD int
}

// New creates a new eventfd with initial value 0.
func New() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("fdnotify: eventfd: %w", err)
	}
	return &EventFD{FD: fd}, nil
}

// Poke writes 1 to the eventfd, waking any epoll_wait blocked on it.
func (e *EventFD) Poke() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(e.FD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("fdnotify: eventfd write: %w", err)
	}
	return nil
}

// Drain reads and discards the accumulated counter value.
func (e *EventFD) Drain() error {
	var buf [8]byte
	_, err := unix.Read(e.FD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("fdnotify: eventfd read: %w", err)
	}
	return nil
}

// Close releases the eventfd.
func (e *EventFD) Close() error {
	return unix.Close(e.FD)
}
