package addr

import "testing"

func TestAddrAddOverflow(t *testing.T) {
	a := FromUint64(^uint64(0))
	if _, err := a.Add(1); err == nil {
		t.Fatal("expected overflow")
	}
}

func TestAddrSubUnderflow(t *testing.T) {
	a := FromUint64(0)
	if _, err := a.Sub(1); err == nil {
		t.Fatal("expected underflow")
	}
}

func TestAddrAlign(t *testing.T) {
	a := FromUint64(4097)
	if got := a.AlignUp(4096); got.Uint64() != 8192 {
		t.Fatalf("AlignUp = %d, want 8192", got.Uint64())
	}
	if got := a.AlignDown(4096); got.Uint64() != 4096 {
		t.Fatalf("AlignDown = %d, want 4096", got.Uint64())
	}
}

func TestAddrBytesRoundTrip(t *testing.T) {
	a := FromUint64(0x0102030405060708)
	got := FromBytes(a.Bytes())
	if got != a {
		t.Fatalf("round trip mismatch: got %v, want %v", got, a)
	}
}
