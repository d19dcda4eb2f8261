// File: codec/packet/codec.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// The packet framing decoder: an incremental parser that reports how many
// bytes of the read buffer it consumed, leaving partial frames in place
// for the next readiness event.

package packet

import (
	"encoding/binary"

	"github.com/drnp/bsp/api"
)

// State is everything the codec needs from the Client/Connector it is
// decoding for — kept as an interface so codec/packet has no dependency
// on the runtime package (runtime wires codec -> nothing, not the
// reverse).
type State interface {
	Header() Header
	SetHeader(h Header)
	MaxPacketLength() int
	AppendSend(b []byte)
	TouchHeartbeat()
	Dispatch(ev api.EventType, cmdID int32, raw []byte, obj any)
	// ProtocolError is called when a frame is malformed, oversized, or of
	// an unrecognized type.
	ProtocolError(err error)
}

// Codec decodes/encodes RAW/OBJ/CMD/REP/HEARTBEAT frames.
type Codec struct {
	Serializers  api.SerializerRegistry
	Compressors  api.CompressorRegistry
}

// Decode consumes as much of buf as a complete frame allows and returns
// the number of bytes consumed. A return of 0 means "need more data,
// nothing to do until the next readiness event".
func (c *Codec) Decode(s State, buf []byte) int {
	if len(buf) < 1 {
		return 0
	}
	hdr := Decode(buf[0])

	switch hdr.Type {
	case TypeREP:
		s.SetHeader(hdr)
		s.TouchHeartbeat()
		s.AppendSend([]byte{buf[0]})
		return 1
	case TypeHeartbeat:
		s.TouchHeartbeat()
		s.AppendSend([]byte{buf[0]})
		return 1
	case TypeRAW, TypeOBJ, TypeCMD:
		return c.decodeFramed(s, hdr, buf)
	default:
		s.ProtocolError(api.ErrUnknownFrameType)
		return closeAndDiscard(s, buf)
	}
}

func closeAndDiscard(s State, buf []byte) int {
	// The caller owns the read buffer and sees the PRE-CLOSE transition
	// via ProtocolError; the codec itself only reports "consume everything
	// remaining" by returning len(buf), emptying the buffer for both the
	// oversized-packet and unknown-type cases.
	return len(buf)
}

func (c *Codec) decodeFramed(s State, hdr Header, buf []byte) int {
	lenWidth := hdr.LenWidth()
	if len(buf) < 1+lenWidth {
		return 0
	}

	var length uint64
	if hdr.LenIs64 {
		length = binary.BigEndian.Uint64(buf[1:9])
	} else {
		length = uint64(binary.BigEndian.Uint32(buf[1:5]))
	}

	maxLen := uint64(s.MaxPacketLength())
	if maxLen > 0 && length > maxLen {
		// Oversized frame: discard the entire buffer, set PRE-CLOSE.
		s.ProtocolError(api.ErrPacketTooLarge)
		return closeAndDiscard(s, buf)
	}

	total := 1 + lenWidth + int(length)
	if len(buf) < total {
		return 0
	}

	payload := buf[1+lenWidth : total]

	decompressed, err := c.decompress(hdr.Comp, payload)
	if err != nil {
		s.ProtocolError(err)
		return closeAndDiscard(s, buf)
	}

	switch hdr.Type {
	case TypeRAW:
		s.Dispatch(api.DataRaw, 0, decompressed, nil)
	case TypeOBJ:
		obj, derr := c.deserialize(hdr.Ser, decompressed)
		if derr != nil {
			s.ProtocolError(derr)
			return closeAndDiscard(s, buf)
		}
		s.Dispatch(api.DataObj, 0, nil, obj)
	case TypeCMD:
		if len(decompressed) < 4 {
			s.ProtocolError(api.ErrUnknownFrameType)
			return closeAndDiscard(s, buf)
		}
		cmdID := int32(binary.BigEndian.Uint32(decompressed[:4]))
		obj, derr := c.deserialize(hdr.Ser, decompressed[4:])
		if derr != nil {
			s.ProtocolError(derr)
			return closeAndDiscard(s, buf)
		}
		s.Dispatch(api.DataCmd, cmdID, nil, obj)
	}

	return total
}

func (c *Codec) decompress(comp Comp, payload []byte) ([]byte, error) {
	if comp == CompNone {
		return payload, nil
	}
	if c.Compressors == nil {
		return nil, api.ErrSerializerUnset
	}
	cp, ok := c.Compressors.Compressor(byte(comp))
	if !ok {
		return nil, api.ErrSerializerUnset
	}
	return cp.Decompress(payload)
}

func (c *Codec) compress(comp Comp, payload []byte) ([]byte, error) {
	if comp == CompNone {
		return payload, nil
	}
	if c.Compressors == nil {
		return nil, api.ErrSerializerUnset
	}
	cp, ok := c.Compressors.Compressor(byte(comp))
	if !ok {
		return nil, api.ErrSerializerUnset
	}
	return cp.Compress(payload)
}

func (c *Codec) deserialize(ser Ser, data []byte) (any, error) {
	if ser == SerAMF {
		return nil, api.ErrAMFUnsupported
	}
	if ser == SerNative {
		return data, nil
	}
	if c.Serializers == nil {
		return nil, api.ErrSerializerUnset
	}
	sr, ok := c.Serializers.Serializer(byte(ser))
	if !ok {
		return nil, api.ErrSerializerUnset
	}
	var out any
	if err := sr.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Codec) serialize(ser Ser, v any) ([]byte, error) {
	if ser == SerAMF {
		return nil, api.ErrAMFUnsupported
	}
	if ser == SerNative {
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	if c.Serializers == nil {
		return nil, api.ErrSerializerUnset
	}
	sr, ok := c.Serializers.Serializer(byte(ser))
	if !ok {
		return nil, api.ErrSerializerUnset
	}
	return sr.Marshal(v)
}

// EncodeRAW builds a RAW frame: header, length, payload (after compression).
func (c *Codec) EncodeRAW(hdr Header, payload []byte) ([]byte, error) {
	return c.encodeFramed(hdr, TypeRAW, payload)
}

// EncodeOBJ serializes obj with hdr.Ser, compresses with hdr.Comp, and
// frames it as an OBJ packet.
func (c *Codec) EncodeOBJ(hdr Header, obj any) ([]byte, error) {
	ser, err := c.serialize(hdr.Ser, obj)
	if err != nil {
		return nil, err
	}
	return c.encodeFramed(hdr, TypeOBJ, ser)
}

// EncodeCMD serializes param with hdr.Ser, compresses with hdr.Comp, and
// frames it as a CMD packet with the given command id.
func (c *Codec) EncodeCMD(hdr Header, cmdID int32, param any) ([]byte, error) {
	ser, err := c.serialize(hdr.Ser, param)
	if err != nil {
		return nil, err
	}
	body := make([]byte, 4+len(ser))
	binary.BigEndian.PutUint32(body[:4], uint32(cmdID))
	copy(body[4:], ser)
	return c.encodeFramed(hdr, TypeCMD, body)
}

func (c *Codec) encodeFramed(hdr Header, typ Type, body []byte) ([]byte, error) {
	comp, err := c.compress(hdr.Comp, body)
	if err != nil {
		return nil, err
	}
	hdr.Type = typ
	lenWidth := hdr.LenWidth()
	out := make([]byte, 1+lenWidth+len(comp))
	out[0] = hdr.Encode()
	if hdr.LenIs64 {
		binary.BigEndian.PutUint64(out[1:9], uint64(len(comp)))
	} else {
		binary.BigEndian.PutUint32(out[1:5], uint32(len(comp)))
	}
	copy(out[1+lenWidth:], comp)
	return out, nil
}
