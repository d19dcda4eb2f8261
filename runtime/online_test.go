//go:build linux
// +build linux

package runtime

import (
	"testing"

	"github.com/drnp/bsp/codec/packet"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(1, 2, nil, &packet.Codec{})
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	t.Cleanup(rt.Pool.Close)
	return rt
}

func TestPutOnlineBackPointerConsistency(t *testing.T) {
	rt := newTestRuntime(t)
	srv := packetServer(nil)
	c, _ := testClientPair(t, srv)

	e := rt.PutOnline(c, "user-42")

	byFD, err := rt.Online.GetByFD(c.FD)
	if err != nil || byFD.Key != "user-42" {
		t.Fatalf("get_by_fd: %v %v", byFD, err)
	}
	byKey, err := rt.Online.GetByKey("user-42")
	if err != nil || byKey.FD != c.FD {
		t.Fatalf("get_by_key: %v %v", byKey, err)
	}
	if c.OnlineEntry != e {
		t.Fatalf("client back-pointer does not match the registry entry")
	}
	if rt.Registry.GetOnline(c.FD) == nil {
		// the fd slot may be unregistered in this test (no Dispatch ran),
		// so only assert when a slot exists
		if _, lerr := rt.Registry.Lookup(c.FD, 0, nil); lerr == nil {
			t.Fatalf("expected fd-registry online hook set")
		}
	}
}

func TestRemoveOnlineByFDClearsBothSides(t *testing.T) {
	rt := newTestRuntime(t)
	srv := packetServer(nil)
	c, _ := testClientPair(t, srv)

	rt.PutOnline(c, "user-7")
	rt.RemoveOnlineByFD(c.FD)

	if _, err := rt.Online.GetByFD(c.FD); err == nil {
		t.Fatalf("expected fd lookup to miss after removal")
	}
	if _, err := rt.Online.GetByKey("user-7"); err == nil {
		t.Fatalf("expected key lookup to miss after removal")
	}
	if c.OnlineEntry != nil {
		t.Fatalf("expected client back-pointer cleared")
	}
}

func TestRemoveOnlineByKeyIsSymmetric(t *testing.T) {
	rt := newTestRuntime(t)
	srv := packetServer(nil)
	c, _ := testClientPair(t, srv)

	rt.PutOnline(c, "user-9")
	rt.RemoveOnlineByKey("user-9")

	if _, err := rt.Online.GetByFD(c.FD); err == nil {
		t.Fatalf("expected fd lookup to miss after removal by key")
	}
	if c.OnlineEntry != nil {
		t.Fatalf("expected client back-pointer cleared")
	}
}

func TestPutOnlineRebindMovesKeyToNewClient(t *testing.T) {
	rt := newTestRuntime(t)
	srv := packetServer(nil)
	c1, _ := testClientPair(t, srv)
	c2, _ := testClientPair(t, srv)

	rt.PutOnline(c1, "account")
	rt.PutOnline(c2, "account")

	e, err := rt.Online.GetByKey("account")
	if err != nil || e.FD != c2.FD {
		t.Fatalf("expected key rebound to the new client, got %v err=%v", e, err)
	}
	if c1.OnlineEntry != nil {
		t.Fatalf("expected the displaced client's back-pointer cleared")
	}
	if c2.OnlineEntry == nil || c2.OnlineEntry.Key != "account" {
		t.Fatalf("expected the new client's back-pointer set")
	}
}

func TestPutOnlineGeneratesKeyWhenEmpty(t *testing.T) {
	rt := newTestRuntime(t)
	srv := packetServer(nil)
	c, _ := testClientPair(t, srv)

	e := rt.PutOnline(c, "")
	if e.Key == "" {
		t.Fatalf("expected a generated key")
	}
	if got, err := rt.Online.GetByFD(c.FD); err != nil || got.Key != e.Key {
		t.Fatalf("expected the generated key resolvable by fd")
	}
}
