package addr

import "testing"

func TestU128AddOverflow(t *testing.T) {
	max := U128{Hi: ^uint64(0), Lo: ^uint64(0)}
	if _, err := max.Add(U128{Lo: 1}); err == nil {
		t.Fatal("expected overflow error adding 1 to max U128")
	}
}

func TestU128SubUnderflow(t *testing.T) {
	if _, err := (U128{Lo: 1}).Sub(U128{Lo: 2}); err == nil {
		t.Fatal("expected underflow error")
	}
}

func TestU128MulOverflow(t *testing.T) {
	big := U128{Hi: ^uint64(0), Lo: 0}
	if _, err := big.MulU64(2); err == nil {
		t.Fatal("expected overflow error on multiply")
	}
}

func TestU128DivU64(t *testing.T) {
	v := U128{Hi: 0, Lo: 100}
	q, r := v.DivU64(7)
	if q.Lo != 14 || r != 2 {
		t.Fatalf("100/7 = %d r %d, want 14 r 2", q.Lo, r)
	}
}

func TestU128BytesRoundTrip(t *testing.T) {
	v := U128{Hi: 0x0102030405060708, Lo: 0x1112131415161718}
	b := v.Bytes()
	got := U128FromBytes(b[:])
	if got != v {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestU128Cmp(t *testing.T) {
	a := U128{Hi: 0, Lo: 5}
	b := U128{Hi: 0, Lo: 10}
	if a.Cmp(b) >= 0 {
		t.Fatal("expected a < b")
	}
	if b.Cmp(a) <= 0 {
		t.Fatal("expected b > a")
	}
	if a.Cmp(a) != 0 {
		t.Fatal("expected a == a")
	}
}
