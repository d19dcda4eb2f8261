//go:build linux
// +build linux

// File: worker/pool.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// The N-worker pool and its least-loaded dispatch contract. Worker 0 is
// the main thread and hosts the acceptor; workers 1..N-1 are I/O workers.

package worker

import (
	"fmt"
	"runtime"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/internal/fdregistry"
)

// Pool owns N parallel workers, defaulting to 2x logical CPUs.
type Pool struct {
	reg     *fdregistry.Registry
	workers []*Worker
}

// DefaultWorkerCount returns 2x logical CPUs.
func DefaultWorkerCount() int {
	n := 2 * runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	return n
}

// NewPool constructs n workers sharing the given fd registry; handler is
// invoked for every worker's readiness callbacks.
func NewPool(n int, reg *fdregistry.Registry, h Handler) (*Pool, error) {
	if n <= 0 {
		n = DefaultWorkerCount()
	}
	p := &Pool{reg: reg}
	for i := 0; i < n; i++ {
		w, err := New(i, reg, h)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("worker pool: spawn worker %d: %w", i, err)
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// Start launches every I/O worker's loop (workers 1..N-1) on its own
// goroutine, locked to an OS thread. Worker 0 is left for the caller,
// the acceptor / main loop.
func (p *Pool) Start() {
	for i := 1; i < len(p.workers); i++ {
		go p.workers[i].Run()
	}
}

// Acceptor returns worker 0, which the runtime layer drives directly as
// the accept-loop thread.
func (p *Pool) Acceptor() *Worker { return p.workers[0] }

// IOWorkers returns workers 1..N-1.
func (p *Pool) IOWorkers() []*Worker {
	if len(p.workers) <= 1 {
		return nil
	}
	return p.workers[1:]
}

// Worker returns the worker with the given id, or nil if out of range.
func (p *Pool) Worker(id int) *Worker {
	if id < 0 || id >= len(p.workers) {
		return nil
	}
	return p.workers[id]
}

// LeastLoaded selects the I/O worker with the fewest registered fds,
// breaking ties by lowest id. If there is only one worker total, it is
// returned, so single-worker deployments still function.
func (p *Pool) LeastLoaded() *Worker {
	candidates := p.IOWorkers()
	if len(candidates) == 0 {
		return p.workers[0]
	}
	best := candidates[0]
	for _, w := range candidates[1:] {
		if w.FDCount() < best.FDCount() {
			best = w
		}
	}
	return best
}

// Dispatch binds fd to workerID if >= 0, else to the least-loaded I/O
// worker, registers the kind and handle, and wakes the target worker.
func (p *Pool) Dispatch(fd int, kind api.Kind, handle any, workerID int, writable bool) (*Worker, error) {
	var w *Worker
	if workerID >= 0 && workerID < len(p.workers) {
		w = p.workers[workerID]
	} else {
		w = p.LeastLoaded()
	}
	if err := p.reg.Register(fd, kind, handle); err != nil {
		return nil, err
	}
	if err := w.Bind(fd, kind, writable); err != nil {
		return nil, err
	}
	w.Wake()
	return w, nil
}

// Stop requests every worker to exit after its current batch and waits
// for all of them to return.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
	for _, w := range p.workers {
		<-w.Done()
	}
}

// Close releases every worker's epoll instance and control eventfds.
// Callers should Stop first.
func (p *Pool) Close() {
	for _, w := range p.workers {
		_ = w.Close()
	}
}
