// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package packet

import (
	"sync"

	"github.com/drnp/bsp/api"
)

// SerializerRegistry is a concurrency-safe map of ser id -> api.Serializer,
// populated by runtime wiring (jsonser.New(), msgpackser.New(), ...) at
// startup and read from the worker goroutines thereafter.
type SerializerRegistry struct {
	mu sync.RWMutex
	m  map[byte]api.Serializer
}

// NewSerializerRegistry returns an empty registry.
func NewSerializerRegistry() *SerializerRegistry {
	return &SerializerRegistry{m: make(map[byte]api.Serializer)}
}

func (r *SerializerRegistry) Register(s api.Serializer) {
	r.mu.Lock()
	r.m[s.ID()] = s
	r.mu.Unlock()
}

func (r *SerializerRegistry) Serializer(id byte) (api.Serializer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[id]
	return s, ok
}

// CompressorRegistry is the comp-id analogue of SerializerRegistry.
type CompressorRegistry struct {
	mu sync.RWMutex
	m  map[byte]api.Compressor
}

// NewCompressorRegistry returns an empty registry.
func NewCompressorRegistry() *CompressorRegistry {
	return &CompressorRegistry{m: make(map[byte]api.Compressor)}
}

func (r *CompressorRegistry) Register(c api.Compressor) {
	r.mu.Lock()
	r.m[c.ID()] = c
	r.mu.Unlock()
}

func (r *CompressorRegistry) Compressor(id byte) (api.Compressor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[id]
	return c, ok
}
