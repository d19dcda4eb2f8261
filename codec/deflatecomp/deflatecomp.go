// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package deflatecomp implements api.Compressor for comp=1 (DEFLATE),
// backed by klauspost/compress/flate, a faster drop-in replacement for
// compress/flate.
package deflatecomp

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/drnp/bsp/codec/packet"
)

// Compressor implements the packet body codec for comp=1.
type Compressor struct {
	level int
}

// New returns a DEFLATE compressor at flate's default compression level.
func New() *Compressor { return &Compressor{level: flate.DefaultCompression} }

func (c *Compressor) ID() byte { return byte(packet.CompDeflate) }

func (c *Compressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, c.level)
	if err != nil {
		return nil, err
	}
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
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	return io.ReadAll(r)
}
