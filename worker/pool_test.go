//go:build linux
// +build linux

package worker

import (
	"testing"
	"time"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/internal/fdnotify"
	"github.com/drnp/bsp/internal/fdregistry"
	"github.com/drnp/bsp/internal/ioreactor"
)

type nopHandler struct{}

func (nopHandler) OnSocketReady(int, ioreactor.Event) {}
func (nopHandler) OnServerReady(int)                  {}

func newTestPool(t *testing.T, n int) (*Pool, *fdregistry.Registry) {
	t.Helper()
	reg := fdregistry.New(1024)
	p, err := NewPool(n, reg, nopHandler{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(p.Close)
	return p, reg
}

func newEventFD(t *testing.T) *fdnotify.EventFD {
	t.Helper()
	e, err := fdnotify.New()
	if err != nil {
		t.Fatalf("eventfd: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestLeastLoadedBreaksTiesByLowestID(t *testing.T) {
	p, _ := newTestPool(t, 3)
	if got := p.LeastLoaded().ID; got != 1 {
		t.Fatalf("expected worker 1 on a fresh pool, got %d", got)
	}
}

func TestLeastLoadedPrefersFewestFDs(t *testing.T) {
	p, reg := newTestPool(t, 3)

	e := newEventFD(t)
	if err := reg.Register(e.FD, api.KindGeneral, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := p.Worker(1).Bind(e.FD, api.KindGeneral, false); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if got := p.LeastLoaded().ID; got != 2 {
		t.Fatalf("expected worker 2 after loading worker 1, got %d", got)
	}
}

func TestLeastLoadedFallsBackToAcceptorWhenAlone(t *testing.T) {
	p, _ := newTestPool(t, 1)
	if got := p.LeastLoaded().ID; got != 0 {
		t.Fatalf("expected the single worker 0, got %d", got)
	}
}

func TestDispatchRegistersHandleAndOwner(t *testing.T) {
	p, reg := newTestPool(t, 3)

	e := newEventFD(t)
	w, err := p.Dispatch(e.FD, api.KindGeneral, "handle", -1, false)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	h, lerr := reg.Lookup(e.FD, api.KindGeneral, nil)
	if lerr != nil || h != "handle" {
		t.Fatalf("expected handle registered, got %v err=%v", h, lerr)
	}
	if got := reg.GetWorker(e.FD); got != w.ID {
		t.Fatalf("expected owner %d recorded in the registry, got %d", w.ID, got)
	}
}

func TestDispatchHonorsExplicitWorkerID(t *testing.T) {
	p, reg := newTestPool(t, 3)

	e := newEventFD(t)
	w, err := p.Dispatch(e.FD, api.KindGeneral, nil, 2, false)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if w.ID != 2 || reg.GetWorker(e.FD) != 2 {
		t.Fatalf("expected fd pinned to worker 2, got worker=%d registry=%d", w.ID, reg.GetWorker(e.FD))
	}
}

func TestStopTerminatesAllWorkers(t *testing.T) {
	p, _ := newTestPool(t, 3)

	p.Start()
	go p.Acceptor().Run()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not stop within 2s")
	}
}
