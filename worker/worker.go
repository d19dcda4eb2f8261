//go:build linux
// +build linux

// File: worker/worker.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Worker pool & event loop: a fixed-size set of OS threads, each owning
// one epoll instance and a pair of control eventfds, routing readiness by
// registered fd kind (TIMER/EVENT/EXIT/SERVER/CLIENT/CONNECTOR).

package worker

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/internal/fdnotify"
	"github.com/drnp/bsp/internal/fdregistry"
	"github.com/drnp/bsp/internal/ioreactor"
	"github.com/drnp/bsp/internal/timerwheel"
)

const scratchSize = 256 * 1024 // per-worker scratch read block

// Handler is supplied by the runtime layer to react to readiness on
// CLIENT/CONNECTOR/SERVER fds; the worker itself only knows how to
// route by api.Kind, and ticks TIMER fds on its own.
type Handler interface {
	// OnSocketReady is called for CLIENT/CONNECTOR fds with the raw
	// epoll readiness bits; the handler maps them onto the socket's
	// state flags and drives it.
	OnSocketReady(fd int, ev ioreactor.Event)
	// OnServerReady is called for SERVER (listening) fds; the handler
	// is expected to Accept in a loop until EAGAIN.
	OnServerReady(fd int)
}

// Worker owns one OS thread, one epoll instance, a wake eventfd, an exit
// eventfd, and a scratch read block.
type Worker struct {
	ID int

	reactor  *ioreactor.Reactor
	wake     *fdnotify.EventFD
	exit     *fdnotify.EventFD
	scratch  []byte

	reg     *fdregistry.Registry
	handler Handler

	timers   sync.Map // fd -> *timerwheel.Timer
	fdCount  int64    // atomic: number of fds this worker owns (excluding wake/exit)

	stop chan struct{}
	done chan struct{}
}

// New creates one worker, its epoll instance, and its control eventfds.
// It registers its own wake/exit fds in the registry so the main loop can
// recognize them as api.KindEvent / api.KindExit.
func New(id int, reg *fdregistry.Registry, h Handler) (*Worker, error) {
	r, err := ioreactor.New()
	if err != nil {
		return nil, err
	}
	wake, err := fdnotify.New()
	if err != nil {
		return nil, err
	}
	exit, err := fdnotify.New()
	if err != nil {
		return nil, err
	}
	w := &Worker{
		ID:      id,
		reactor: r,
		wake:    wake,
		exit:    exit,
		scratch: make([]byte, scratchSize),
		reg:     reg,
		handler: h,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := r.Add(wake.FD, false); err != nil {
		return nil, err
	}
	if err := r.Add(exit.FD, false); err != nil {
		return nil, err
	}
	reg.Register(wake.FD, api.KindEvent, w)
	reg.Register(exit.FD, api.KindExit, w)
	reg.SetWorker(wake.FD, id)
	reg.SetWorker(exit.FD, id)
	return w, nil
}

// FDCount returns the number of application fds (sockets, timers) bound
// to this worker, used by least-loaded dispatch.
func (w *Worker) FDCount() int { return int(atomic.LoadInt64(&w.fdCount)) }

// Bind adds fd to this worker's interest set edge-triggered and records
// ownership in the fd registry. Poke is not called here;
// callers that dispatch from a foreign goroutine should call Wake after.
func (w *Worker) Bind(fd int, kind api.Kind, writable bool) error {
	if err := w.reactor.Add(fd, writable); err != nil {
		return err
	}
	w.reg.SetWorker(fd, w.ID)
	atomic.AddInt64(&w.fdCount, 1)
	return nil
}

// Unbind removes fd from this worker's interest set; caller still owns fd.
func (w *Worker) Unbind(fd int) error {
	atomic.AddInt64(&w.fdCount, -1)
	return w.reactor.Remove(fd)
}

// Modify toggles EPOLLOUT interest for fd (socket engine write arming).
func (w *Worker) Modify(fd int, writable bool) error {
	return w.reactor.Modify(fd, writable)
}

// AddTimer registers a timer fd bound to this worker.
func (w *Worker) AddTimer(t *timerwheel.Timer) error {
	if err := w.reactor.Add(t.FD, false); err != nil {
		return err
	}
	w.timers.Store(t.FD, t)
	w.reg.Register(t.FD, api.KindTimer, t)
	w.reg.SetWorker(t.FD, w.ID)
	atomic.AddInt64(&w.fdCount, 1)
	return nil
}

// Wake pokes this worker's wake-eventfd, breaking it out of epoll_wait so
// it can observe state mutated from another goroutine.
func (w *Worker) Wake() { _ = w.wake.Poke() }

// Stop writes to the exit-eventfd; the worker quits after its current
// readiness batch.
func (w *Worker) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	_ = w.exit.Poke()
}

// Done is closed once the worker loop has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Run pins the goroutine to an OS thread and executes the readiness
// loop until Stop is called.
func (w *Worker) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	events := make([]ioreactor.Event, 128)
	for {
		n, err := w.reactor.Wait(events, -1)
		if err != nil {
			continue
		}
		stopRequested := false
		for i := 0; i < n; i++ {
			ev := events[i]
			var kind api.Kind
			_, lerr := w.reg.Lookup(ev.FD, api.KindUnknown, &kind)
			if lerr != nil {
				continue
			}
			switch kind {
			case api.KindEvent:
				_ = w.wake.Drain()
			case api.KindExit:
				_ = w.exit.Drain()
				stopRequested = true
			case api.KindTimer:
				w.handleTimer(ev.FD)
			case api.KindServer:
				w.handler.OnServerReady(ev.FD)
			case api.KindClient, api.KindConnector:
				w.applyAndDrive(ev)
			default:
				// GENERAL/PIPE/etc: ignore, not a socket-engine concern here
			}
		}
		if stopRequested {
			return
		}
	}
}

func (w *Worker) handleTimer(fd int) {
	v, ok := w.timers.Load(fd)
	if !ok {
		return
	}
	t := v.(*timerwheel.Timer)
	if t.OnReadiness() {
		w.timers.Delete(fd)
		_ = w.Unbind(fd)
		w.reg.Unregister(fd)
		_ = t.Close()
	}
}

// applyAndDrive forwards the raw readiness event to the handler, which
// maps the bits onto the socket's state flags via socketio.Socket's
// ApplyReadiness and then calls Drive. Kept as a thin indirection so the
// worker package does not need to import socketio (runtime wires
// worker -> socketio, not the reverse).
func (w *Worker) applyAndDrive(ev ioreactor.Event) {
	w.handler.OnSocketReady(ev.FD, ev)
}

// ScratchBuffer exposes this worker's fixed scratch block for a Handler's
// Drive call.
func (w *Worker) ScratchBuffer() []byte { return w.scratch }

// Close tears down the epoll instance and both control eventfds. Callers
// must have already called Stop and waited on Done.
func (w *Worker) Close() error {
	_ = w.wake.Close()
	_ = w.exit.Close()
	return w.reactor.Close()
}
