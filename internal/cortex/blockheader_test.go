package cortex

import (
	"testing"

	"github.com/hn4/hydra-nexus/internal/addr"
)

func TestBlockHeaderRoundTrip(t *testing.T) {
	h := &BlockHeader{Magic: BlockMagic, WellID: addr.U128{Hi: 1, Lo: 2}, SeqIndex: 7}
	raw := h.ToBytes()
	if len(raw) != BlockHeaderSize {
		t.Fatalf("serialized size = %d, want %d", len(raw), BlockHeaderSize)
	}
	got, err := BlockHeaderFromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", *got, *h)
	}
}

func TestBlockHeaderFromBytesTooSmall(t *testing.T) {
	if _, err := BlockHeaderFromBytes(make([]byte, BlockHeaderSize-1)); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

func TestBlockHeaderMatches(t *testing.T) {
	well := addr.U128{Hi: 9, Lo: 9}
	h := &BlockHeader{Magic: BlockMagic, WellID: well, SeqIndex: 3}
	if !h.Matches(well, 3) {
		t.Fatal("expected match on identical well/seq")
	}
	if h.Matches(well, 4) {
		t.Fatal("expected mismatch on differing seq_index")
	}
	if h.Matches(addr.U128{Hi: 1, Lo: 1}, 3) {
		t.Fatal("expected mismatch on differing well_id")
	}
	bad := &BlockHeader{Magic: 0xBAD, WellID: well, SeqIndex: 3}
	if bad.Matches(well, 3) {
		t.Fatal("expected mismatch on wrong magic")
	}
}
