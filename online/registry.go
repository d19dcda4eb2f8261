// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package online implements the global online-client registry: a
// single keyed map from an application-chosen (or generated) key to a
// Client back-pointer, guarded by one mutex process-wide. Same
// RWMutex-over-a-map discipline as internal/fdregistry.Registry, keyed by
// string since online identities (user id, session token) are not dense
// integers.
package online

import (
	"sync"

	"github.com/google/uuid"

	"github.com/drnp/bsp/api"
)

// Entry is the online registry's payload: a back-pointer to whatever the
// runtime layer considers a "Client" (kept as `any` so this package has no
// dependency on runtime), plus the fd it is currently bound to.
type Entry struct {
	Key    string
	FD     int
	Client any
}

// Registry is the single process-wide online keyed map.
type Registry struct {
	mu      sync.RWMutex
	byKey   map[string]*Entry
	byFD    map[int]*Entry
}

// New returns an empty online registry.
func New() *Registry {
	return &Registry{
		byKey: make(map[string]*Entry),
		byFD:  make(map[int]*Entry),
	}
}

// Put inserts or replaces the entry for fd under key. If key is empty, a
// uuid v4 is generated. Replacing an existing key
// removes its old fd mapping first, preserving the invariant that a Client
// back-pointer always resolves to exactly one live fd mapping.
func (r *Registry) Put(key string, fd int, client any) *Entry {
	if key == "" {
		key = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byKey[key]; ok {
		delete(r.byFD, old.FD)
	}
	e := &Entry{Key: key, FD: fd, Client: client}
	r.byKey[key] = e
	r.byFD[fd] = e
	return e
}

// RemoveByFD removes the entry bound to fd, if any.
func (r *Registry) RemoveByFD(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byFD[fd]
	if !ok {
		return
	}
	delete(r.byFD, fd)
	delete(r.byKey, e.Key)
}

// RemoveByKey removes the entry under key, if any.
func (r *Registry) RemoveByKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return
	}
	delete(r.byKey, key)
	delete(r.byFD, e.FD)
}

// GetByFD resolves fd to its online entry.
func (r *Registry) GetByFD(fd int) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byFD[fd]
	if !ok {
		return nil, api.ErrNotFound
	}
	return e, nil
}

// GetByKey resolves key to its online entry.
func (r *Registry) GetByKey(key string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[key]
	if !ok {
		return nil, api.ErrNotFound
	}
	return e, nil
}

// Count returns the number of online entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
