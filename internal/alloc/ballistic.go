package alloc

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/bitmap"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/hnlog"
	"github.com/hn4/hydra-nexus/internal/qmask"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

// SaturatedFraction is the used-block ratio at or above which ballistic
// placement is skipped entirely in favor of Horizon (spec §4.8 step 2).
const SaturatedFraction = 0.95

// Allocator owns the Flux (ballistic) and Horizon (log) regions of one
// volume. Its counters are scoped to the handle, not package-level globals
// (spec §9 design note: "the Horizon write head and used_blocks are
// process-local atomics on the volume, not singletons").
type Allocator struct {
	Bitmap *bitmap.Armored
	QMask  *qmask.Mask

	FluxStart  addr.Addr
	FluxBlocks uint64

	Horizon *Horizon

	Profile    superblock.Profile
	ReadOnly   bool
	TimeOffset int64
	VolPanic   bool

	usedBlocks uint64 // atomic; reconciled against Bitmap.CountUsed() at mount
	saturated  uint32 // atomic bool: HN4_VOL_RUNTIME_SATURATED
}

// NewAllocator wires a Flux region and its Horizon spillover together.
func NewAllocator(bm *bitmap.Armored, qm *qmask.Mask, fluxStart addr.Addr, fluxBlocks uint64, horizon *Horizon, profile superblock.Profile) *Allocator {
	return &Allocator{
		Bitmap:     bm,
		QMask:      qm,
		FluxStart:  fluxStart,
		FluxBlocks: fluxBlocks,
		Horizon:    horizon,
		Profile:    profile,
		usedBlocks: bm.CountUsed(),
	}
}

// Saturated reports whether the volume has crossed SaturatedFraction
// occupancy and is skipping ballistic placement.
func (a *Allocator) Saturated() bool { return atomic.LoadUint32(&a.saturated) != 0 }

func (a *Allocator) usedFraction() float64 {
	total := a.Bitmap.NBlocks()
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&a.usedBlocks)) / float64(total)
}

// AllocBlock implements the C8 ballistic algorithm (spec §4.8). It returns
// the physical LBA chosen, the probe index k that succeeded (or
// HorizonProbeK if Horizon satisfied it), and an error on refusal/exhaustion.
func (a *Allocator) AllocBlock(g, v, m, n uint64, intent qmask.Intent) (addr.Addr, int, error) {
	if a.ReadOnly || a.TimeOffset != 0 {
		return addr.Zero, 0, herr.New(herr.AccessDenied, "alloc: volume is read-only or a snapshot view")
	}

	if a.usedFraction() >= SaturatedFraction {
		atomic.StoreUint32(&a.saturated, 1)
		lba, err := a.allocHorizonFallback()
		return lba, HorizonProbeK, err
	}

	for k := uint64(0); k <= BallisticMaxK; k++ {
		blockIdx := Trajectory(g, v, n, m, k, a.FluxBlocks)
		lba, err := a.FluxStart.Add(blockIdx)
		if err != nil {
			continue
		}
		ok, err := a.tryClaim(lba, intent)
		if err != nil {
			return addr.Zero, 0, err
		}
		if !ok {
			continue
		}
		return lba, int(k), nil
	}

	// Exhausted all 13 ballistic candidates.
	switch {
	case a.Profile == superblock.ProfileSystem && !a.VolPanic:
		return addr.Zero, 0, herr.New(herr.ENOSPC, "alloc: SYSTEM profile forbids Horizon spillover")
	case intent == qmask.IntentMetadata:
		return addr.Zero, 0, herr.New(herr.ENOSPC, "alloc: metadata allocations must not fragment into Horizon")
	case m > 0:
		return addr.Zero, 0, herr.New(herr.GravityCollapse, "alloc: fractal-scale request cannot spill to Horizon")
	}

	lba, err := a.allocHorizonFallback()
	return lba, HorizonProbeK, err
}

// tryClaim checks Q-mask policy and bitmap occupancy for lba and, if both
// permit, CAS-sets the bit. ok is false (with nil error) when the candidate
// is simply taken or policy-refused, so the caller tries the next k.
func (a *Allocator) tryClaim(lba addr.Addr, intent qmask.Intent) (ok bool, err error) {
	block := lba.Uint64()
	q, err := a.QMask.Lookup(block)
	if err != nil {
		return false, nil
	}
	if !qmask.Permits(q, intent) {
		return false, nil
	}
	used, err := a.Bitmap.Test(block)
	if err != nil {
		return false, herr.Wrap(herr.BitmapCorrupt, err)
	}
	if used {
		return false, nil
	}
	set, err := a.Bitmap.CASSet(block)
	if err != nil {
		return false, herr.Wrap(herr.BitmapCorrupt, err)
	}
	if !set {
		return false, nil // lost the race
	}
	atomic.AddUint64(&a.usedBlocks, 1)
	return true, nil
}

func (a *Allocator) allocHorizonFallback() (addr.Addr, error) {
	if a.Horizon == nil {
		return addr.Zero, herr.New(herr.ENOSPC, "alloc: no Horizon region configured")
	}
	lba, dirtied, err := a.Horizon.Alloc(a.Bitmap, a.QMask, qmask.IntentDefault)
	if err != nil {
		return addr.Zero, err
	}
	atomic.AddUint64(&a.usedBlocks, 1)
	if dirtied {
		hnlog.Info("horizon write head wrapped", logrus.Fields{"lba": lba.Uint64()})
	}
	return lba, nil
}

// Free releases lba back to the free pool. Double-free is a documented
// no-op (spec §4.9 property d).
func (a *Allocator) Free(lba addr.Addr) error {
	block := lba.Uint64()
	wasUsed, err := a.Bitmap.Test(block)
	if err != nil {
		return herr.Wrap(herr.BitmapCorrupt, err)
	}
	if err := a.Bitmap.Clear(block); err != nil {
		return herr.Wrap(herr.BitmapCorrupt, err)
	}
	if wasUsed {
		for {
			cur := atomic.LoadUint64(&a.usedBlocks)
			if cur == 0 {
				break
			}
			if atomic.CompareAndSwapUint64(&a.usedBlocks, cur, cur-1) {
				break
			}
		}
	}
	return nil
}

// AllocGenesis is hn4_alloc_genesis (spec §4.8 step 5): the caller supplies
// a (g, v) pair it has already ensured is unique; AllocGenesis returns
// whatever V the engine should record in the new anchor — V=0 signals that
// placement fell back to Horizon ("linear mode").
func (a *Allocator) AllocGenesis(g, v, m uint64, intent qmask.Intent) (addr.Addr, uint64, error) {
	lba, k, err := a.AllocBlock(g, v, m, 0, intent)
	if err != nil {
		return addr.Zero, v, err
	}
	if k == HorizonProbeK {
		return lba, 0, nil
	}
	return lba, v, nil
}
