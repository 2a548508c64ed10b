package alloc

import (
	"sync/atomic"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/bitmap"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/qmask"
)

// MaxHorizonProbes bounds the linear probe depth of a single alloc_horizon
// call (spec §4.9 step 2).
const MaxHorizonProbes = 4

// Horizon is the C9 circular log allocator: a single monotonically
// advancing write head over [Start, Start+Capacity).
type Horizon struct {
	Start    addr.Addr
	capacity uint64 // blocks; immutable after construction except via Resize
	head     uint64 // atomic; fetch_add counter, not yet reduced modulo capacity
	dirty    uint32 // atomic bool: set once the head has wrapped the ring
}

// NewHorizon builds a Horizon region of the given block capacity starting
// at start.
func NewHorizon(start addr.Addr, capacityBlocks uint64) *Horizon {
	return &Horizon{Start: start, capacity: capacityBlocks}
}

// Capacity returns the current ring capacity in blocks.
func (h *Horizon) Capacity() uint64 { return atomic.LoadUint64(&h.capacity) }

// Resize changes the ring's capacity (e.g. on a device shrink). The next
// allocation after a shrink lands at old_head % new_capacity, never out of
// bounds (spec §4.9 property c) because Alloc always reduces the fetched
// head modulo the capacity in effect at that moment.
func (h *Horizon) Resize(newCapacityBlocks uint64) {
	atomic.StoreUint64(&h.capacity, newCapacityBlocks)
}

// Wrapped reports whether the write head has ever wrapped the ring.
func (h *Horizon) Wrapped() bool { return atomic.LoadUint32(&h.dirty) != 0 }

// Alloc implements alloc_horizon (spec §4.9): a bounded linear probe of
// depth MaxHorizonProbes starting from a fetch-added write head. dirtied
// reports whether this call observed the head wrap the ring, which the
// caller should translate into VOL_DIRTY.
func (h *Horizon) Alloc(bm *bitmap.Armored, qm *qmask.Mask, intent qmask.Intent) (lba addr.Addr, dirtied bool, err error) {
	capacity := h.Capacity()
	if capacity == 0 {
		return addr.Zero, false, herr.New(herr.ENOSPC, "horizon: empty ring")
	}

	for attempt := 0; attempt < MaxHorizonProbes; attempt++ {
		newHead := atomic.AddUint64(&h.head, 1)
		old := newHead - 1 // fetch_add's pre-increment value, exact under uint64 wraparound
		offset := old % capacity
		cand, err := h.Start.Add(offset)
		if err != nil {
			continue
		}
		block := cand.Uint64()

		q, err := qm.Lookup(block)
		if err != nil || !qmask.Permits(q, intent) {
			continue
		}
		used, err := bm.Test(block)
		if err != nil {
			return addr.Zero, false, herr.Wrap(herr.BitmapCorrupt, err)
		}
		if used {
			continue
		}
		set, err := bm.CASSet(block)
		if err != nil {
			return addr.Zero, false, herr.Wrap(herr.BitmapCorrupt, err)
		}
		if !set {
			continue
		}

		wrapped := old >= capacity
		if wrapped {
			atomic.StoreUint32(&h.dirty, 1)
		}
		return cand, wrapped, nil
	}

	return addr.Zero, false, herr.New(herr.ENOSPC, "horizon: exhausted bounded probe depth")
}

// Free releases a Horizon block. Double-free is a no-op: Clear is already
// idempotent, and Horizon keeps no used_blocks count of its own.
// Allocator.Free, which clears blocks through the bitmap directly rather
// than through this method, decrements used_blocks only when the bit was
// actually set (spec §4.9 property d).
func (h *Horizon) Free(bm *bitmap.Armored, lba addr.Addr) error {
	if err := bm.Clear(lba.Uint64()); err != nil {
		return herr.Wrap(herr.BitmapCorrupt, err)
	}
	return nil
}
