// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package api

// Serializer is the leaf-codec contract exercised by the packet framing
// layer. Concrete implementations (JSON, MsgPack) live
// outside this package's scope; the core only calls through this
// interface. There is no AMF implementation.
type Serializer interface {
	// ID is the 2-bit "ser" value this serializer answers to.
	ID() byte
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, out any) error
}

// Compressor is the leaf-codec contract for the 2-bit "comp" field.
type Compressor interface {
	// ID is the 2-bit "comp" value this compressor answers to.
	ID() byte
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// SerializerRegistry resolves a ser id to a Serializer.
type SerializerRegistry interface {
	Serializer(id byte) (Serializer, bool)
	Register(s Serializer)
}

// CompressorRegistry resolves a comp id to a Compressor.
type CompressorRegistry interface {
	Compressor(id byte) (Compressor, bool)
	Register(c Compressor)
}
