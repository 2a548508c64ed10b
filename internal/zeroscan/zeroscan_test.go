package zeroscan

import (
	"testing"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/alloc"
	"github.com/hn4/hydra-nexus/internal/bitmap"
	"github.com/hn4/hydra-nexus/internal/cortex"
	"github.com/hn4/hydra-nexus/internal/hal"
)

const testBlockSize = 512

func writeBlockHeader(t *testing.T, h hal.HAL, lba addr.Addr, wellID addr.U128, seq uint64) {
	t.Helper()
	hdr := &cortex.BlockHeader{Magic: cortex.BlockMagic, WellID: wellID, SeqIndex: seq}
	buf := make([]byte, testBlockSize)
	copy(buf, hdr.ToBytes())
	if err := h.SyncIO(hal.OpWrite, lba, buf, testBlockSize/512); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileNoOpOnUnpopulatedCache(t *testing.T) {
	h := hal.NewMemHAL(1<<20, 512, 0, 0)
	bm := bitmap.New(2000, hal.NewMemHAL(1, 512, 0, 0).NewSpinLock())
	report, err := Reconcile(h, bm, &cortex.Cache{}, addr.Zero, 2000, testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if report.CachePopulated {
		t.Fatal("expected an unpopulated cache to report CachePopulated=false")
	}
	if report.GhostsRevived != 0 {
		t.Fatal("expected no ghosts revived on an unpopulated cache")
	}
}

func TestReconcileRevivesGhostAllocation(t *testing.T) {
	h := hal.NewMemHAL(4<<20, 512, 0, 0)
	fluxBlocks := uint64(2000)
	bm := bitmap.New(fluxBlocks, h.NewSpinLock())

	anchor := &cortex.Anchor{
		SeedID:        addr.U128{Hi: 1, Lo: 2},
		GravityCenter: 5,
		OrbitVector:   3,
		FractalScale:  0,
		Mass:          testBlockSize, // one block's worth
		DataClass:     cortex.DataClassValid,
	}

	blockIdx := alloc.Trajectory(anchor.GravityCenter, anchor.OrbitVector, 0, uint64(anchor.FractalScale), 0, fluxBlocks)
	lba, err := addr.Zero.Add(blockIdx)
	if err != nil {
		t.Fatal(err)
	}
	writeBlockHeader(t, h, lba, anchor.SeedID, 0)
	// Bitmap bit intentionally left clear: this is the ghost scenario.

	cache := &cortex.Cache{Anchors: []*cortex.Anchor{anchor}, Populated: true}
	report, err := Reconcile(h, bm, cache, addr.Zero, fluxBlocks, testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if report.GhostsRevived != 1 {
		t.Fatalf("expected 1 ghost revived, got %d", report.GhostsRevived)
	}
	if report.TaintDelta != 1 {
		t.Fatalf("expected taint delta 1, got %d", report.TaintDelta)
	}
	used, err := bm.Test(blockIdx)
	if err != nil {
		t.Fatal(err)
	}
	if !used {
		t.Fatal("expected the ghost block's bitmap bit to be revived (set)")
	}
}

func TestReconcileSkipsTombstonedAnchors(t *testing.T) {
	h := hal.NewMemHAL(1<<20, 512, 0, 0)
	fluxBlocks := uint64(2000)
	bm := bitmap.New(fluxBlocks, h.NewSpinLock())

	anchor := &cortex.Anchor{
		SeedID:    addr.U128{Hi: 9, Lo: 9},
		Mass:      testBlockSize,
		DataClass: cortex.DataClassValid | cortex.DataClassTombstone,
	}
	cache := &cortex.Cache{Anchors: []*cortex.Anchor{anchor}, Populated: true}
	report, err := Reconcile(h, bm, cache, addr.Zero, fluxBlocks, testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if report.AnchorsScanned != 0 {
		t.Fatalf("expected tombstoned anchors to be skipped, scanned %d", report.AnchorsScanned)
	}
}

func TestReconcileLeavesGenuineCollisionAlone(t *testing.T) {
	h := hal.NewMemHAL(4<<20, 512, 0, 0)
	fluxBlocks := uint64(2000)
	bm := bitmap.New(fluxBlocks, h.NewSpinLock())

	anchor := &cortex.Anchor{
		SeedID:        addr.U128{Hi: 1, Lo: 2},
		GravityCenter: 5,
		OrbitVector:   3,
		Mass:          testBlockSize,
		DataClass:     cortex.DataClassValid,
	}
	blockIdx := alloc.Trajectory(anchor.GravityCenter, anchor.OrbitVector, 0, 0, 0, fluxBlocks)
	// Someone else's block occupies the k=0 slot; bitmap says used.
	if _, err := bm.CASSet(blockIdx); err != nil {
		t.Fatal(err)
	}

	cache := &cortex.Cache{Anchors: []*cortex.Anchor{anchor}, Populated: true}
	report, err := Reconcile(h, bm, cache, addr.Zero, fluxBlocks, testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if report.GhostsRevived != 0 {
		t.Fatalf("expected no ghost revival when k=0 bitmap bit is already used, got %d", report.GhostsRevived)
	}
}
