// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package msgpackser implements api.Serializer for ser=2 (MsgPack), backed
// by ugorji/go/codec's MsgpackHandle.
package msgpackser

import (
	"bytes"

	"github.com/ugorji/go/codec"

	"github.com/drnp/bsp/codec/packet"
)

var handle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	return h
}()

// Serializer implements the OBJ/CMD body codec for ser=2.
type Serializer struct{}

// New returns the MsgPack serializer.
func New() *Serializer { return &Serializer{} }

func (s *Serializer) ID() byte { return byte(packet.SerMsgPack) }

func (s *Serializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, handle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Serializer) Unmarshal(data []byte, out any) error {
	dec := codec.NewDecoderBytes(data, handle)
	return dec.Decode(out)
}
