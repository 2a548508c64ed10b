package alloc

import (
	"testing"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/bitmap"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/qmask"
)

func TestHorizonMonotonicSequence(t *testing.T) {
	bm := bitmap.New(1000, &hal.SpinLock{})
	qm := qmask.New(1000, qmask.Silver)
	h := NewHorizon(addr.FromUint64(20000), 4000)

	for i := uint64(0); i < 5; i++ {
		lba, _, err := h.Alloc(bm, qm, qmask.IntentDefault)
		if err != nil {
			t.Fatal(err)
		}
		want := addr.FromUint64(20000 + i)
		if lba != want {
			t.Fatalf("alloc %d: got lba %v, want %v", i, lba, want)
		}
	}
}

func TestHorizonBoundedProbeExhaustion(t *testing.T) {
	bm := bitmap.New(1000, &hal.SpinLock{})
	qm := qmask.New(1000, qmask.Silver)
	h := NewHorizon(addr.FromUint64(20000), 4000)

	for off := uint64(0); off < MaxHorizonProbes; off++ {
		if _, err := bm.CASSet(20000 + off); err != nil {
			t.Fatal(err)
		}
	}

	_, _, err := h.Alloc(bm, qm, qmask.IntentDefault)
	if err == nil {
		t.Fatal("expected ENOSPC when the first 4 probe slots are all used")
	}
}

func TestHorizonCapacityOne(t *testing.T) {
	bm := bitmap.New(1000, &hal.SpinLock{})
	qm := qmask.New(1000, qmask.Silver)
	h := NewHorizon(addr.FromUint64(500), 1)

	lba, _, err := h.Alloc(bm, qm, qmask.IntentDefault)
	if err != nil {
		t.Fatal(err)
	}
	if lba != addr.FromUint64(500) {
		t.Fatalf("first alloc = %v, want 500", lba)
	}

	if _, _, err := h.Alloc(bm, qm, qmask.IntentDefault); err == nil {
		t.Fatal("expected ENOSPC on a capacity-1 ring with the only block taken")
	}

	if err := h.Free(bm, lba); err != nil {
		t.Fatal(err)
	}
	if _, _, err := h.Alloc(bm, qm, qmask.IntentDefault); err != nil {
		t.Fatal("expected alloc to succeed again after freeing the sole block")
	}
}

func TestHorizonHeadOverflow(t *testing.T) {
	bm := bitmap.New(1000, &hal.SpinLock{})
	qm := qmask.New(1000, qmask.Silver)
	const cap = 100
	h := NewHorizon(addr.FromUint64(0), cap)
	h.head = ^uint64(0) - 1 // u64::MAX - 1

	max := ^uint64(0)
	wantOffsets := []uint64{(max - 1) % cap, max % cap, 0 % cap}
	for i, want := range wantOffsets {
		lba, _, err := h.Alloc(bm, qm, qmask.IntentDefault)
		if err != nil {
			t.Fatal(err)
		}
		if lba.Uint64() != want {
			t.Fatalf("alloc %d: got offset %d, want %d", i, lba.Uint64(), want)
		}
	}
}

func TestHorizonResizeShrink(t *testing.T) {
	bm := bitmap.New(1000, &hal.SpinLock{})
	qm := qmask.New(1000, qmask.Silver)
	h := NewHorizon(addr.FromUint64(0), 1000)
	h.head = 950

	h.Resize(10)
	lba, _, err := h.Alloc(bm, qm, qmask.IntentDefault)
	if err != nil {
		t.Fatal(err)
	}
	if lba.Uint64() != 950%10 {
		t.Fatalf("after shrink, lba = %d, want %d", lba.Uint64(), 950%10)
	}
}
