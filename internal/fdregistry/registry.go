// File: internal/fdregistry/registry.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Process-wide fd -> handle registry: a plain RWMutex-guarded slotted
// array, sized at startup to RLIMIT_NOFILE so a register can never
// overflow on a healthy process.

package fdregistry

import (
	"sync"
	"sync/atomic"

	"github.com/drnp/bsp/api"
)

// Handle is anything the registry can hold behind an fd: *socketio.Socket,
// a *timerwheel.Timer, an online entry back-pointer, etc. Kept as `any`
// because the registry itself is generic over what each subsystem stores.
type Handle any

type slot struct {
	fd       int
	kind     api.Kind
	worker   int
	handle   Handle
	online   any // optional online-entry back-pointer (online.Entry)
}

// Registry maps descriptor numbers to typed handles. A slot is considered
// empty when slot.fd != its index; Register is the only way a slot
// becomes non-empty.
type Registry struct {
	mu     sync.RWMutex
	slots  []slot
	maxFD  int
	count  int64 // atomic: number of currently-registered slots, for metrics
}

// New allocates a registry with capacity fds (RLIMIT_NOFILE at startup).
func New(capacity int) *Registry {
	r := &Registry{slots: make([]slot, capacity), maxFD: -1}
	for i := range r.slots {
		r.slots[i].fd = -1
		r.slots[i].worker = -1
	}
	return r
}

// Register idempotently overwrites the slot for fd and updates max_fd.
func (r *Registry) Register(fd int, kind api.Kind, h Handle) error {
	if fd < 0 || fd >= len(r.slots) {
		return api.ErrRegistryFull
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	wasEmpty := r.slots[fd].fd != fd
	r.slots[fd] = slot{fd: fd, kind: kind, worker: -1, handle: h}
	if fd > r.maxFD {
		r.maxFD = fd
	}
	if wasEmpty {
		atomic.AddInt64(&r.count, 1)
	}
	return nil
}

// Unregister clears the slot; recomputes max_fd only when the removed slot
// was the current maximum, scanning downward for the next live slot.
func (r *Registry) Unregister(fd int) {
	if fd < 0 || fd >= len(r.slots) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[fd].fd != fd {
		return
	}
	r.slots[fd] = slot{fd: -1, worker: -1}
	atomic.AddInt64(&r.count, -1)
	if fd == r.maxFD {
		m := -1
		for i := fd - 1; i >= 0; i-- {
			if r.slots[i].fd == i {
				m = i
				break
			}
		}
		r.maxFD = m
	}
}

// Lookup returns the handle for fd. If expectedKind is api.KindUnknown the
// lookup is treated as "ANY": it succeeds regardless of kind and the
// actual kind is written back into *actualKind when non-nil.
func (r *Registry) Lookup(fd int, expectedKind api.Kind, actualKind *api.Kind) (Handle, error) {
	if fd < 0 || fd >= len(r.slots) {
		return nil, api.ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.slots[fd]
	if s.fd != fd {
		return nil, api.ErrNotFound
	}
	if expectedKind != api.KindUnknown && s.kind != expectedKind {
		return nil, api.ErrKindMismatch
	}
	if actualKind != nil {
		*actualKind = s.kind
	}
	return s.handle, nil
}

// SetWorker records which worker owns fd (used by the worker pool dispatch).
func (r *Registry) SetWorker(fd, wid int) {
	if fd < 0 || fd >= len(r.slots) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[fd].fd == fd {
		r.slots[fd].worker = wid
	}
}

// GetWorker returns the worker id owning fd, or -1 if unregistered/unbound.
func (r *Registry) GetWorker(fd int) int {
	if fd < 0 || fd >= len(r.slots) {
		return -1
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.slots[fd].fd != fd {
		return -1
	}
	return r.slots[fd].worker
}

// SetOnline attaches an online-entry back-pointer hook to fd.
func (r *Registry) SetOnline(fd int, entry any) {
	if fd < 0 || fd >= len(r.slots) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[fd].fd == fd {
		r.slots[fd].online = entry
	}
}

// GetOnline returns the online-entry back-pointer for fd, if any.
func (r *Registry) GetOnline(fd int) any {
	if fd < 0 || fd >= len(r.slots) {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.slots[fd].fd != fd {
		return nil
	}
	return r.slots[fd].online
}

// Count returns the number of currently-registered slots.
func (r *Registry) Count() int { return int(atomic.LoadInt64(&r.count)) }

// MaxFD returns the current maximum registered descriptor, or -1 if empty.
func (r *Registry) MaxFD() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxFD
}

// CountForWorker returns the number of fds with the given worker assignment; used
// by the worker pool's least-loaded selection. wid < 0 counts unassigned.
func (r *Registry) CountForWorker(wid int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].fd == i && r.slots[i].worker == wid {
			n++
		}
	}
	return n
}
