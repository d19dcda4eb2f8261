// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package wsshim

import (
	"encoding/binary"

	"github.com/drnp/bsp/api"
)

// Opcode is the 4-bit WebSocket frame opcode.
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// MaxFramePayload bounds a single unfragmented frame's payload.
const MaxFramePayload = 1 << 20

// Frame is a decoded single WebSocket frame. The shim only accepts
// FIN=1, RSV=0 frames; anything else is
// rejected with api.ErrWSFragmented.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// Decode parses one frame out of raw, returning the frame, the number of
// bytes consumed, and an error. A (nil, 0, nil) result means "need more
// data". Fragmented (FIN=0) or reserved-bit-set frames are rejected
// outright rather than buffered, since this shim implements no
// reassembly.
func Decode(raw []byte) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil
	}
	fin := raw[0]&0x80 != 0
	rsv := raw[0] & 0x70
	opcode := Opcode(raw[0] & 0x0F)
	if !fin || rsv != 0 {
		return nil, 0, api.ErrWSFragmented
	}
	switch opcode {
	case OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong, OpcodeContinuation:
	default:
		return nil, 0, api.ErrWSOpcode
	}

	masked := raw[1]&0x80 != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint64(raw[offset:]))
		offset += 8
	}
	if length > MaxFramePayload {
		return nil, 0, api.ErrPacketTooLarge
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return nil, 0, nil
	}

	src := raw[offset:total]
	payload := make([]byte, length)
	if masked {
		for i := int64(0); i < length; i++ {
			payload[i] = src[i] ^ maskKey[i%4]
		}
	} else {
		copy(payload, src)
	}

	return &Frame{Opcode: opcode, Payload: payload}, total, nil
}

// EncodeBinary wraps payload in a single unmasked BINARY frame, the only
// outbound shape the server side of this shim ever produces.
func EncodeBinary(payload []byte) []byte {
	return encode(OpcodeBinary, payload)
}

// EncodeClose wraps payload (typically empty or a 2-byte close code) in a
// CLOSE control frame.
func EncodeClose(payload []byte) []byte {
	return encode(OpcodeClose, payload)
}

// EncodePong wraps payload in a PONG control frame answering a PING.
func EncodePong(payload []byte) []byte {
	return encode(OpcodePong, payload)
}

func encode(opcode Opcode, payload []byte) []byte {
	plen := len(payload)
	var hdr [10]byte
	hdr[0] = 0x80 | byte(opcode)

	var header []byte
	switch {
	case plen <= 125:
		header = hdr[:2]
		header[1] = byte(plen)
	case plen <= 0xFFFF:
		header = hdr[:4]
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(plen))
	default:
		header = hdr[:10]
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(plen))
	}

	out := make([]byte, 0, len(header)+plen)
	out = append(out, header...)
	out = append(out, payload...)
	return out
}
