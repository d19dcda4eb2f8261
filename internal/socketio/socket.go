//go:build linux
// +build linux

// File: internal/socketio/socket.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// The per-socket state machine: one function (Drive) drives all state
// changes for a single fd, called once per readiness event by the owning
// worker, instead of a goroutine pair per connection.

package socketio

import (
	"sync"

	"github.com/drnp/bsp/api"
	"golang.org/x/sys/unix"
)

// OnDataFunc is invoked with the unread slice of the read buffer and must
// return the number of bytes it consumed.
type OnDataFunc func(s *Socket, data []byte) (consumed int)

// OnCloseFunc fires exactly once per socket, always last.
type OnCloseFunc func(s *Socket)

// OnErrorFunc fires for the server/listener path on ERROR before close.
type OnErrorFunc func(s *Socket)

// OnIOErrorFunc fires whenever a read/write/recvfrom/sendto syscall fails
// with something other than EAGAIN/EWOULDBLOCK/EINTR, ahead of the PRE-CLOSE
// transition that follows.
type OnIOErrorFunc func(s *Socket, err error)

// Socket is one kernel descriptor and its I/O state.
type Socket struct {
	FD       int
	Datagram bool
	PeerAddr unix.Sockaddr

	MaxPacketLen int // enforced by the caller (framing layer); informational here

	read  *ReadBuffer
	send  *SendQueue

	mu    sync.Mutex
	state api.SocketState

	OnData    OnDataFunc
	OnClose   OnCloseFunc
	OnError   OnErrorFunc
	OnIOError OnIOErrorFunc

	// WantWrite is called by Drive whenever write-arming should change,
	// so the caller (worker) can call reactor.Modify.
	WantWrite func(writable bool)
	// Wake is called after Drive enqueues output from a non-owning
	// context; unused by Drive itself, kept for AppendSend's foreign-
	// worker case (worker wires this to eventfd.Poke).
	Wake func()

	closedDone bool
}

// New constructs a Socket bound to fd, with buffers sized per config.
func New(fd int, datagram bool, initialReadCap, maxReadCap int) *Socket {
	return &Socket{
		FD:       fd,
		Datagram: datagram,
		read:     NewReadBuffer(initialReadCap, maxReadCap),
		send:     NewSendQueue(),
	}
}

func (s *Socket) State() api.SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Socket) setState(f api.SocketState) {
	s.mu.Lock()
	s.state.Set(f)
	s.mu.Unlock()
}

// ApplyReadiness maps epoll bits onto socket state flags.
func (s *Socket) ApplyReadiness(in, out, hup, rdhup, errFlag bool) {
	s.mu.Lock()
	if in {
		s.state.Set(api.StateReadReady)
	}
	if out {
		s.state.Set(api.StateWriteReady)
	}
	if hup {
		s.state.Set(api.StateClose)
	}
	if rdhup {
		s.state.Set(api.StatePreClose)
	}
	if errFlag {
		s.state.Set(api.StateError | api.StateClose)
	}
	s.mu.Unlock()
}

// AppendSend enqueues bytes for output. Stream sockets
// get one segment; datagram sockets are split into MTU-sized segments so
// each maps to exactly one outbound packet.
func (s *Socket) AppendSend(data []byte) {
	s.mu.Lock()
	closed := s.state.Has(api.StateClose)
	s.mu.Unlock()
	if closed {
		return // write after CLOSE is silently dropped
	}
	if !s.Datagram {
		owned := make([]byte, len(data))
		copy(owned, data)
		s.send.Enqueue(owned)
	} else {
		for off := 0; off < len(data); off += UDPPacketMax {
			end := off + UDPPacketMax
			if end > len(data) {
				end = len(data)
			}
			owned := make([]byte, end-off)
			copy(owned, data[off:end])
			s.send.Enqueue(owned)
		}
	}
	s.mu.Lock()
	s.state.Set(api.StateWriteReady)
	s.mu.Unlock()
	if s.WantWrite != nil {
		s.WantWrite(true)
	}
	if s.Wake != nil {
		s.Wake()
	}
}

// Drive runs one full pass of the socket state machine: error and close
// handling, the read loop, the send attempt, and the PRE-CLOSE promotion
// once the send queue drains.
func (s *Socket) Drive(scratch []byte) {
	st := s.State()

	if st.Has(api.StateError) {
		if s.OnError != nil {
			s.OnError(s)
		}
		// fall through to close handling below
	}

	if st.Has(api.StateClose) {
		if s.OnClose != nil && !s.closedDone {
			s.closedDone = true
			s.OnClose(s)
		}
		s.send.Drain()
		return
	}

	if st.Has(api.StateReadReady) {
		s.doRead(scratch)
		st = s.State()
		if st.Has(api.StateClose) {
			if s.OnClose != nil && !s.closedDone {
				s.closedDone = true
				s.OnClose(s)
			}
			s.send.Drain()
			return
		}
	}

	if st.Has(api.StateWriteReady) {
		s.trySend()
	}

	st = s.State()
	if st.Has(api.StatePreClose) && s.send.Empty() {
		s.mu.Lock()
		s.state.Set(api.StateClose)
		s.mu.Unlock()
		if s.OnClose != nil && !s.closedDone {
			s.closedDone = true
			s.OnClose(s)
		}
		s.send.Drain()
		return
	}

	if s.WantWrite != nil {
		s.WantWrite(!s.send.Empty())
	}
}

// doRead pulls everything the kernel has buffered, appending into the
// read buffer and feeding on_data until it stops consuming.
func (s *Socket) doRead(scratch []byte) {
	for {
		slice, commit, err := s.read.ScratchSlice(len(scratch))
		if err != nil {
			// buffer would exceed max capacity: treat like a protocol
			// overrun, discard and pre-close.
			s.read.DiscardAll()
			s.setState(api.StatePreClose)
			return
		}

		var n int
		var rerr error
		if s.Datagram {
			n, _, rerr = unix.Recvfrom(s.FD, slice, 0)
		} else {
			n, rerr = unix.Read(s.FD, slice)
		}

		if rerr != nil {
			if rerr == unix.EINTR {
				continue
			}
			if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
				break
			}
			if s.OnIOError != nil {
				s.OnIOError(s, rerr)
			}
			s.setState(api.StatePreClose)
			break
		}

		if n == 0 {
			if !s.Datagram {
				s.setState(api.StatePreClose)
			}
			// a zero-length UDP datagram is a legitimate empty packet
			break
		}

		commit(n)

		if s.OnData != nil {
			for {
				data := s.read.Unread()
				if len(data) == 0 {
					break
				}
				consumed := s.OnData(s, data)
				if consumed <= 0 {
					break
				}
				s.read.Consume(consumed)
			}
		}

		if n < len(slice) {
			// short read: no more data queued right now
			break
		}
	}
	s.mu.Lock()
	s.state.Clear(api.StateReadReady)
	s.mu.Unlock()
}

// trySend flushes as much of the send queue as one writev (or one sendto
// per datagram segment) accepts.
func (s *Socket) trySend() {
	iov := s.send.BuildIOV()
	if len(iov) == 0 {
		s.mu.Lock()
		s.state.Clear(api.StateWriteReady)
		s.mu.Unlock()
		return
	}

	var sent int
	var err error
	if s.Datagram {
		// one sendmsg per packet so each segment is its own datagram
		for _, b := range iov {
			if werr := unix.Sendto(s.FD, b, 0, s.PeerAddr); werr != nil {
				err = werr
				break
			}
			sent += len(b)
		}
	} else {
		var n int
		n, err = unix.Writev(s.FD, iov)
		sent = n
	}

	if err != nil && err != unix.EAGAIN {
		if s.OnIOError != nil {
			s.OnIOError(s, err)
		}
		s.setState(api.StatePreClose)
		return
	}

	drained := s.send.Advance(sent)
	if drained {
		s.mu.Lock()
		s.state.Clear(api.StateWriteReady)
		closingOnDrain := s.state.Has(api.StatePreClose)
		if closingOnDrain {
			s.state.Set(api.StateClose)
		}
		s.mu.Unlock()
	}
}

// MarkConnecting flags an in-flight non-blocking connect; cleared by the
// owning runtime once SO_ERROR has been read on the first EPOLLOUT.
func (s *Socket) MarkConnecting() {
	s.setState(api.StateConnecting)
}

// ClearConnecting drops the CONNECTING flag after the connect resolved.
func (s *Socket) ClearConnecting() {
	s.mu.Lock()
	s.state.Clear(api.StateConnecting)
	s.mu.Unlock()
}

// Close forces the socket into the CLOSE state; Drive will run the
// teardown path on the next call.
func (s *Socket) Close() {
	s.setState(api.StateClose)
}

// SetPreClose requests a graceful close once the send queue drains.
func (s *Socket) SetPreClose() {
	s.setState(api.StatePreClose)
}

// Teardown frees both buffers and closes the kernel fd. Callers are
// responsible for unregistering fd from the fd registry and worker
// reactor first.
func (s *Socket) Teardown() error {
	s.send.Drain()
	return unix.Close(s.FD)
}
