package chronicle

import (
	"testing"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/hal"
)

func writeChain(t *testing.T, h hal.HAL, start addr.Addr, payloads [][]byte) uint64 {
	t.Helper()
	sectorSize := h.Capabilities().LogicalBlockSize
	var chain uint32
	cur := start
	var total uint64
	for _, p := range payloads {
		seg, next := WriteSegment(chain, p)
		chain = next
		sectors := uint32((uint64(len(seg)) + uint64(sectorSize) - 1) / uint64(sectorSize))
		buf := make([]byte, uint64(sectors)*uint64(sectorSize))
		copy(buf, seg)
		if err := h.SyncIO(hal.OpWrite, cur, buf, sectors); err != nil {
			t.Fatal(err)
		}
		var err error
		cur, err = cur.Add(uint64(sectors))
		if err != nil {
			t.Fatal(err)
		}
		total += uint64(len(seg))
	}
	return total
}

func TestHashChainVerifyAccepts(t *testing.T) {
	h := hal.NewMemHAL(1<<20, 512, 0, 0)
	payloads := [][]byte{
		make([]byte, SegmentSize-4),
		make([]byte, SegmentSize-4),
		make([]byte, 100),
	}
	for i := range payloads[0] {
		payloads[0][i] = byte(i)
	}
	total := writeChain(t, h, addr.Zero, payloads)

	var hc HashChain
	if err := hc.Verify(h, addr.Zero, total); err != nil {
		t.Fatalf("expected a valid hash chain to verify, got %v", err)
	}
}

func TestHashChainVerifyDetectsCorruption(t *testing.T) {
	h := hal.NewMemHAL(1<<20, 512, 0, 0)
	payloads := [][]byte{make([]byte, 200)}
	total := writeChain(t, h, addr.Zero, payloads)

	// Flip a byte inside the payload region.
	buf := make([]byte, 512)
	if err := h.SyncIO(hal.OpRead, addr.Zero, buf, 1); err != nil {
		t.Fatal(err)
	}
	buf[0] ^= 0xFF
	if err := h.SyncIO(hal.OpWrite, addr.Zero, buf, 1); err != nil {
		t.Fatal(err)
	}

	var hc HashChain
	if err := hc.Verify(h, addr.Zero, total); err == nil {
		t.Fatal("expected a corrupted chain to fail verification")
	}
}

func TestArchiverRoundTrip(t *testing.T) {
	var a Archiver
	payload := []byte("hn4 chronicle segment payload, repeated repeated repeated")
	if err := a.Append(payload); err != nil {
		t.Fatal(err)
	}
	segs := a.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected 1 archived segment, got %d", len(segs))
	}
	restored, err := Restore(segs[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != string(payload) {
		t.Fatalf("restored payload mismatch: got %q", restored)
	}
}
