// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package snappycomp implements api.Compressor for comp=3 (Snappy), backed
// by golang/snappy's block codec — no streaming framing needed since each
// packet body is already length-delimited by the framing header.
package snappycomp

import (
	"github.com/golang/snappy"

	"github.com/drnp/bsp/codec/packet"
)

// Compressor implements the packet body codec for comp=3.
type Compressor struct{}

// New returns a Snappy compressor.
func New() *Compressor { return &Compressor{} }

func (c *Compressor) ID() byte { return byte(packet.CompSnappy) }

func (c *Compressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (c *Compressor) Decompress(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}
