// File: internal/socketio/buffer.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Growable read buffer with the (bytes, dataLen, cursor) invariant
// cursor <= dataLen <= capacity; capacity doubles on demand, bounded by a
// configured maximum.

package socketio

import "github.com/drnp/bsp/api"

// ReadBuffer is the per-socket inbound byte accumulator.
type ReadBuffer struct {
	bytes    []byte
	dataLen  int
	cursor   int
	maxCap   int
}

// NewReadBuffer allocates a read buffer starting at initialCap, never
// growing past maxCap.
func NewReadBuffer(initialCap, maxCap int) *ReadBuffer {
	if initialCap <= 0 {
		initialCap = 4096
	}
	if maxCap <= 0 || maxCap < initialCap {
		maxCap = initialCap
	}
	return &ReadBuffer{bytes: make([]byte, initialCap), maxCap: maxCap}
}

// Unread returns the unconsumed slice [cursor:dataLen].
func (b *ReadBuffer) Unread() []byte { return b.bytes[b.cursor:b.dataLen] }

// Len returns the number of unconsumed bytes.
func (b *ReadBuffer) Len() int { return b.dataLen - b.cursor }

// Consume advances cursor by n; when cursor == dataLen both reset to 0.
func (b *ReadBuffer) Consume(n int) {
	b.cursor += n
	if b.cursor > b.dataLen {
		b.cursor = b.dataLen
	}
	if b.cursor == b.dataLen {
		b.cursor = 0
		b.dataLen = 0
	}
}

// DiscardAll drops every unconsumed byte.
func (b *ReadBuffer) DiscardAll() {
	b.cursor = 0
	b.dataLen = 0
}

// reserve ensures at least n more bytes of capacity beyond dataLen,
// doubling capacity (bounded by maxCap) and compacting unread bytes to
// offset 0 first.
func (b *ReadBuffer) reserve(n int) error {
	if b.cursor > 0 {
		copy(b.bytes, b.bytes[b.cursor:b.dataLen])
		b.dataLen -= b.cursor
		b.cursor = 0
	}
	need := b.dataLen + n
	if need <= len(b.bytes) {
		return nil
	}
	newCap := len(b.bytes)
	if newCap == 0 {
		newCap = 4096
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap > b.maxCap {
		if need > b.maxCap {
			return api.ErrPacketTooLarge
		}
		newCap = b.maxCap
	}
	grown := make([]byte, newCap)
	copy(grown, b.bytes[:b.dataLen])
	b.bytes = grown
	return nil
}

// Append copies chunk onto the tail of the buffer, growing as needed.
func (b *ReadBuffer) Append(chunk []byte) error {
	if err := b.reserve(len(chunk)); err != nil {
		return err
	}
	n := copy(b.bytes[b.dataLen:], chunk)
	b.dataLen += n
	return nil
}

// ScratchSlice exposes the tail region for a direct read() syscall into
// the buffer without an intermediate copy, returning the slice to read
// into and a commit function to call with the number of bytes actually
// read.
func (b *ReadBuffer) ScratchSlice(hint int) ([]byte, func(n int), error) {
	if hint <= 0 {
		hint = 4096
	}
	if err := b.reserve(hint); err != nil {
		return nil, nil, err
	}
	start := b.dataLen
	return b.bytes[start:len(b.bytes)], func(n int) { b.dataLen = start + n }, nil
}
