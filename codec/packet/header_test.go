package packet

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Type: TypeRAW, LenIs64: false, Ser: SerNative, Comp: CompNone},
		{Type: TypeOBJ, LenIs64: true, Ser: SerJSON, Comp: CompLZ4},
		{Type: TypeCMD, LenIs64: false, Ser: SerMsgPack, Comp: CompSnappy},
		{Type: TypeHeartbeat, LenIs64: false, Ser: SerNative, Comp: CompNone},
	}
	for _, h := range cases {
		got := Decode(h.Encode())
		if got != h {
			t.Fatalf("round trip mismatch: want %+v got %+v", h, got)
		}
	}
}

func TestLenWidth(t *testing.T) {
	if (Header{LenIs64: false}).LenWidth() != 4 {
		t.Fatalf("expected 32-bit length width")
	}
	if (Header{LenIs64: true}).LenWidth() != 8 {
		t.Fatalf("expected 64-bit length width")
	}
}
