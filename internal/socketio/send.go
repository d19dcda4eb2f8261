// File: internal/socketio/send.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Per-socket send queue: a lock-guarded scatter list of owned segments,
// built on github.com/eapache/queue for the segment FIFO rather than a
// buffered channel, since foreign goroutines must be able to enqueue
// without a capacity bound.

package socketio

import (
	"sync"

	"github.com/eapache/queue"
)

// segment is one owned, possibly partially-sent output chunk.
type segment struct {
	data []byte
	off  int // bytes of this segment already sent
}

func (s *segment) remaining() []byte { return s.data[s.off:] }

// SendQueue is the scatter list behind a socket's write side. The lock
// exists because foreign workers (or the scripting layer) may enqueue
// output from any goroutine; the critical sections are short, so a plain
// sync.Mutex serves.
type SendQueue struct {
	mu  sync.Mutex
	q   *queue.Queue
}

func NewSendQueue() *SendQueue {
	return &SendQueue{q: queue.New()}
}

// Enqueue appends one owned segment.
func (s *SendQueue) Enqueue(data []byte) {
	s.mu.Lock()
	s.q.Add(&segment{data: data})
	s.mu.Unlock()
}

// Len returns the number of pending segments.
func (s *SendQueue) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Length()
}

// Empty reports whether the queue has been fully drained.
func (s *SendQueue) Empty() bool { return s.Len() == 0 }

// Drain discards every pending segment, freeing nothing beyond letting the
// GC collect the byte slices.
func (s *SendQueue) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.q.Length() > 0 {
		s.q.Remove()
	}
}

// IOVMax bounds the number of segments handed to one send pass;
// UDPPacketMax bounds a single datagram segment's size (AppendSend splits
// payloads at this boundary).
const (
	IOVMax       = 1024
	UDPPacketMax = 520
)

// BuildIOV snapshots up to IOVMax segments into a plain [][]byte for the
// send pass, without removing them from the queue. Datagram segments are
// never sliced: each one is already a complete, MTU-bounded packet and is
// transmitted whole by its own sendto; splitting here would put a
// truncated packet on the wire and leak its tail as a second one.
func (s *SendQueue) BuildIOV() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.q.Length()
	if n > IOVMax {
		n = IOVMax
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		seg := s.q.Get(i).(*segment)
		out = append(out, seg.remaining())
	}
	return out
}

// Advance marks sent bytes consumed across the head of the queue: full
// segments are removed, a partial final segment has its offset advanced
// in place as an offset bump, avoiding a tail-copy allocation. Returns
// true if the whole queue is now drained.
func (s *SendQueue) Advance(n int) (drained bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n > 0 && s.q.Length() > 0 {
		seg := s.q.Peek().(*segment)
		rem := seg.remaining()
		if n < len(rem) {
			seg.off += n
			n = 0
			break
		}
		n -= len(rem)
		s.q.Remove()
	}
	return s.q.Length() == 0
}
