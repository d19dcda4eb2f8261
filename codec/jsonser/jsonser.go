// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package jsonser implements api.Serializer for ser=1 (JSON), backed by
// json-iterator/go for its drop-in encoding/json-compatible API with
// lower allocation overhead on the framing hot path.
package jsonser

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/drnp/bsp/codec/packet"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// Serializer implements the OBJ/CMD body codec for ser=1.
type Serializer struct{}

// New returns the JSON serializer.
func New() *Serializer { return &Serializer{} }

func (s *Serializer) ID() byte { return byte(packet.SerJSON) }

func (s *Serializer) Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func (s *Serializer) Unmarshal(data []byte, out any) error {
	return api.Unmarshal(data, out)
}
