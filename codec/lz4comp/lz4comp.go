// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package lz4comp implements api.Compressor for comp=2 (LZ4), backed by
// pierrec/lz4/v4's streaming reader/writer wrapped around a byte buffer.
package lz4comp

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/drnp/bsp/codec/packet"
)

// Compressor implements the packet body codec for comp=2.
type Compressor struct{}

// New returns an LZ4 compressor.
func New() *Compressor { return &Compressor{} }

func (c *Compressor) ID() byte { return byte(packet.CompLZ4) }

func (c *Compressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Compressor) Decompress(src []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	return io.ReadAll(r)
}
