package script

import "testing"

func TestStaticEventTableEntry(t *testing.T) {
	tbl := StaticEventTable{
		EventConnect: "on_connect",
		EventData:    "handle_data",
	}

	name, ok := tbl.Entry(EventData)
	if !ok || name != "handle_data" {
		t.Fatalf("expected handle_data, got %q ok=%v", name, ok)
	}

	if _, ok := tbl.Entry(EventClose); ok {
		t.Fatalf("expected EventClose to be unbound")
	}
}

func TestSyncEventTableRebinds(t *testing.T) {
	tbl := NewSyncEventTable(map[string]string{EventData: "on_data"})

	name, ok := tbl.Entry(EventData)
	if !ok || name != "on_data" {
		t.Fatalf("expected seeded binding, got %q ok=%v", name, ok)
	}

	tbl.Set(EventData, "handle_packet")
	name, ok = tbl.Entry(EventData)
	if !ok || name != "handle_packet" {
		t.Fatalf("expected rebound entry, got %q ok=%v", name, ok)
	}

	if _, ok := tbl.Entry(EventClose); ok {
		t.Fatalf("expected unseeded event to stay unbound")
	}
}
