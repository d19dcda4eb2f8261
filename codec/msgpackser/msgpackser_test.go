package msgpackser

import "testing"

func TestRoundTrip(t *testing.T) {
	s := New()
	in := map[string]any{"hello": "world", "n": int64(42)}

	b, err := s.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out map[string]any
	if err := s.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["hello"] != "world" {
		t.Fatalf("round trip mismatch: %#v", out)
	}
}

func TestID(t *testing.T) {
	if New().ID() != 2 {
		t.Fatalf("expected ser id 2, got %d", New().ID())
	}
}
