package online

import (
	"testing"

	"github.com/drnp/bsp/api"
)

func TestPutAndLookup(t *testing.T) {
	r := New()
	e := r.Put("alice", 5, "client-alice")

	byKey, err := r.GetByKey("alice")
	if err != nil || byKey.Client != "client-alice" {
		t.Fatalf("GetByKey: %v, %#v", err, byKey)
	}
	byFD, err := r.GetByFD(5)
	if err != nil || byFD != e {
		t.Fatalf("GetByFD: %v, %#v", err, byFD)
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
}

func TestPutGeneratesKeyWhenEmpty(t *testing.T) {
	r := New()
	e := r.Put("", 7, "anon")
	if e.Key == "" {
		t.Fatalf("expected a generated uuid key")
	}
	if got, err := r.GetByKey(e.Key); err != nil || got.FD != 7 {
		t.Fatalf("expected generated key to resolve: %v, %#v", err, got)
	}
}

func TestRemoveByFD(t *testing.T) {
	r := New()
	r.Put("bob", 9, "client-bob")
	r.RemoveByFD(9)

	if _, err := r.GetByFD(9); err != api.ErrNotFound {
		t.Fatalf("expected ErrNotFound after RemoveByFD, got %v", err)
	}
	if _, err := r.GetByKey("bob"); err != api.ErrNotFound {
		t.Fatalf("expected key mapping removed too, got %v", err)
	}
	if r.Count() != 0 {
		t.Fatalf("expected count 0, got %d", r.Count())
	}
}

func TestRemoveByKey(t *testing.T) {
	r := New()
	r.Put("carol", 11, "client-carol")
	r.RemoveByKey("carol")

	if _, err := r.GetByKey("carol"); err != api.ErrNotFound {
		t.Fatalf("expected ErrNotFound after RemoveByKey, got %v", err)
	}
	if _, err := r.GetByFD(11); err != api.ErrNotFound {
		t.Fatalf("expected fd mapping removed too, got %v", err)
	}
}

func TestPutReplacesExistingKey(t *testing.T) {
	r := New()
	r.Put("dave", 1, "first")
	r.Put("dave", 2, "second")

	if _, err := r.GetByFD(1); err != api.ErrNotFound {
		t.Fatalf("expected the old fd mapping to be gone, got %v", err)
	}
	got, err := r.GetByFD(2)
	if err != nil || got.Client != "second" {
		t.Fatalf("expected new mapping to resolve: %v, %#v", err, got)
	}
	if r.Count() != 1 {
		t.Fatalf("expected a single entry after replacement, got %d", r.Count())
	}
}
