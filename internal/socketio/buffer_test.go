package socketio

import (
	"bytes"
	"testing"

	"github.com/drnp/bsp/api"
)

func TestAppendAndConsumeResetsWhenDrained(t *testing.T) {
	b := NewReadBuffer(16, 64)
	if err := b.Append([]byte("hello world")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !bytes.Equal(b.Unread(), []byte("hello world")) {
		t.Fatalf("unexpected unread: %q", b.Unread())
	}

	b.Consume(6)
	if !bytes.Equal(b.Unread(), []byte("world")) {
		t.Fatalf("expected %q after partial consume, got %q", "world", b.Unread())
	}

	// cursor == data_len: both reset to 0.
	b.Consume(5)
	if b.Len() != 0 || b.cursor != 0 || b.dataLen != 0 {
		t.Fatalf("expected full reset, cursor=%d dataLen=%d", b.cursor, b.dataLen)
	}
}

func TestGrowthDoublesUpToMaxCap(t *testing.T) {
	b := NewReadBuffer(8, 32)
	if err := b.Append(make([]byte, 20)); err != nil {
		t.Fatalf("expected growth to 32 to succeed: %v", err)
	}
	if len(b.bytes) != 32 {
		t.Fatalf("expected capacity 32 after doubling, got %d", len(b.bytes))
	}
}

func TestGrowthPastMaxCapFails(t *testing.T) {
	b := NewReadBuffer(8, 32)
	if err := b.Append(make([]byte, 33)); err != api.ErrPacketTooLarge {
		t.Fatalf("expected ErrPacketTooLarge, got %v", err)
	}
}

func TestReserveCompactsConsumedPrefix(t *testing.T) {
	b := NewReadBuffer(16, 16)
	if err := b.Append([]byte("0123456789")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	b.Consume(8)

	// 10 more bytes only fit because the 8 consumed bytes are reclaimed.
	if err := b.Append([]byte("abcdefghij")); err != nil {
		t.Fatalf("expected compaction to make room: %v", err)
	}
	if !bytes.Equal(b.Unread(), []byte("89abcdefghij")) {
		t.Fatalf("unexpected unread after compaction: %q", b.Unread())
	}
}

func TestScratchSliceCommit(t *testing.T) {
	b := NewReadBuffer(16, 64)
	slice, commit, err := b.ScratchSlice(8)
	if err != nil {
		t.Fatalf("ScratchSlice: %v", err)
	}
	n := copy(slice, "data!")
	commit(n)
	if !bytes.Equal(b.Unread(), []byte("data!")) {
		t.Fatalf("expected committed bytes visible, got %q", b.Unread())
	}
}

func TestDiscardAll(t *testing.T) {
	b := NewReadBuffer(16, 64)
	_ = b.Append([]byte("junk"))
	b.DiscardAll()
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after DiscardAll, got %d bytes", b.Len())
	}
}
