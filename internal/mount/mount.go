package mount

import (
	"github.com/sirupsen/logrus"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/alloc"
	"github.com/hn4/hydra-nexus/internal/bitmap"
	"github.com/hn4/hydra-nexus/internal/chronicle"
	"github.com/hn4/hydra-nexus/internal/cortex"
	"github.com/hn4/hydra-nexus/internal/epoch"
	"github.com/hn4/hydra-nexus/internal/format"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/hnlog"
	"github.com/hn4/hydra-nexus/internal/qmask"
	"github.com/hn4/hydra-nexus/internal/superblock"
	"github.com/hn4/hydra-nexus/internal/zeroscan"
)

// minCapacityBytes is the layout-sanity floor of spec §4.10 step 3.
const minCapacityBytes = 2 << 20

// Mount implements the C10 pipeline (spec §4.10): thermal gate, Cardinal
// Vote election, layout sanity, epoch check, the Chronicle integrity hook,
// the state-flags gate, dirty sync, resource load, Zero-Scan
// reconstruction, and root anchor verify/heal, publishing one live Volume
// or aborting with a fatal mount-time error.
func Mount(h hal.HAL, params Params) (*Volume, error) {
	caps := h.Capabilities()
	forceRO := params.Flags.Has(FlagReadOnly)
	var taint uint32
	volPanic := false
	degraded := false

	// Phase 1: thermal gate.
	temp := h.GetTemperatureC()
	if temp > ThermalCriticalC {
		return nil, herr.New(herr.ThermalCritical, "mount: device temperature %.1f°C exceeds critical threshold", temp)
	}
	if temp > ThermalForceROC {
		forceRO = true
	}

	// Phase 2: Cardinal Vote. The initial East/West/South guesses use the
	// sector size as a block-size stand-in; Elect re-probes each mirror at
	// several candidate block sizes once North establishes the real one
	// (spec §4.5 election).
	sectorSize := caps.LogicalBlockSize
	gNorth, gEast, gWest, gSouth, gSouthEnabled := superblock.MirrorLBAs(caps.TotalCapacityBytes, sectorSize, sectorSize)
	election, err := superblock.Elect(h, gNorth, gEast, gWest, gSouth, gSouthEnabled)
	if err != nil {
		return nil, err
	}
	sb := election.Elected

	north, east, west, south, southEnabled := superblock.MirrorLBAsForDevice(caps.TotalCapacityBytes, sectorSize, sb.BlockSize, caps.HWFlags)

	// Phase 3: layout sanity.
	if err := layoutSanity(sb, caps); err != nil {
		return nil, err
	}

	// Phase 4: epoch check.
	ring := epoch.Ring{
		Start:      sb.LBAEpochStart,
		BlockSize:  sb.BlockSize,
		RingBlocks: sb.LBACortexStart.Uint64() - sb.LBAEpochStart.Uint64(),
	}
	checkResult, diskEpochID, err := epoch.Check(h, ring, sb.EpochRingBlockIdx, sb.CurrentEpochID)
	if err != nil {
		return nil, err
	}
	switch checkResult {
	case epoch.CheckOK:
	case epoch.CheckTimeDilation:
		forceRO = true
		taint += 10
	case epoch.CheckGenerationSkew:
		forceRO = true
	case epoch.CheckEpochLost:
		forceRO = true
		volPanic = true
	case epoch.CheckMediaToxic:
		return nil, herr.New(herr.MediaToxic, "mount: epoch ring id %d is impossibly far ahead of recorded epoch %d", diskEpochID, sb.CurrentEpochID)
	}

	// Phase 5: Chronicle integrity hook.
	verifier := params.Chronicle
	if verifier == nil {
		verifier = chronicle.HashChain{}
	}
	if err := verifier.Verify(h, sb.LBAStreamStart, chronicleRegionBytes(sb, caps)); err != nil {
		forceRO = true
		taint = TaintThresholdRO + 1
		volPanic = true
		hnlog.Degraded("mount: chronicle integrity check failed, forcing read-only", logrus.Fields{"error": err.Error()})
	}

	// Phase 6: state flags gate.
	if sb.StateFlags.Has(superblock.StatePendingWipe) {
		return nil, herr.New(herr.WipePending, "mount: volume is pending wipe")
	}
	if sb.StateFlags.Has(superblock.StateLocked) {
		return nil, herr.New(herr.VolumeLocked, "mount: volume is locked")
	}
	if sb.StateFlags.Has(superblock.StatePanic) || sb.StateFlags.Has(superblock.StateToxic) {
		forceRO = true
	}
	if sb.StateFlags.Has(superblock.StateClean) && sb.StateFlags.Has(superblock.StateDirty) {
		forceRO = true
		taint++
	}
	if sb.IncompatFlags&^superblock.SupportedIncompat != 0 {
		return nil, herr.New(herr.VersionIncompat, "mount: unsupported incompat flags 0x%x", sb.IncompatFlags)
	}
	if !sb.StateFlags.Has(superblock.StateMetadataZeroed) {
		return nil, herr.New(herr.Uninitialized, "mount: metadata regions were never zeroed")
	}
	if sb.ROCompatFlags != 0 {
		forceRO = true
	}
	if taint >= TaintThresholdRO {
		forceRO = true
	}

	// Phase 7: dirty sync (read-write only), then heal stale/missing
	// mirrors against whichever superblock generation is now authoritative.
	activeSB := sb
	if !forceRO {
		targets := []mirrorTarget{
			{mirror: superblock.North, lba: north, enabled: true},
			{mirror: superblock.East, lba: east, enabled: true},
			{mirror: superblock.West, lba: west, enabled: true},
			{mirror: superblock.South, lba: south, enabled: southEnabled},
		}
		updated, err := dirtySync(h, sb, targets, &taint)
		if err != nil {
			return nil, err
		}
		activeSB = updated
	}

	mirrorMap := map[superblock.Mirror]addr.Addr{superblock.North: north, superblock.East: east, superblock.West: west}
	if southEnabled {
		mirrorMap[superblock.South] = south
	}
	healDegraded, _ := superblock.Heal(h, activeSB, mirrorMap, forceRO)
	degraded = degraded || healDegraded

	// Phase 8: load Bitmap, Q-Mask, Topology (AI profile only).
	totalBlocks := activeSB.TotalCapacity / uint64(activeSB.BlockSize)
	bm, qm, topo, loadErr := loadResources(h, activeSB, totalBlocks, forceRO)
	if loadErr != nil {
		if !forceRO {
			return nil, loadErr
		}
		degraded = true
		hnlog.Degraded("mount: resource load failed on a read-only mount, proceeding degraded", logrus.Fields{"error": loadErr.Error()})
	}

	// Phase 9: Zero-Scan reconstruction.
	fluxBlocks := activeSB.LBAHorizonStart.Uint64() - activeSB.LBAFluxStart.Uint64()
	var cache *cortex.Cache
	var report *zeroscan.Report
	if bm != nil {
		cortexBytes := (activeSB.LBABitmapStart.Uint64() - activeSB.LBACortexStart.Uint64()) * uint64(sectorSize)
		cache = cortex.Load(h, activeSB.LBACortexStart, cortexBytes)
		report, err = zeroscan.Reconcile(h, bm, cache, activeSB.LBAFluxStart, fluxBlocks, activeSB.BlockSize)
		if err != nil {
			return nil, err
		}
		taint += report.TaintDelta
		if taint >= TaintThresholdRO {
			forceRO = true
		}
	}

	// Phase 10: root anchor verify/heal.
	var rootAnchor *cortex.Anchor
	if bm != nil {
		rootAnchor, err = cortex.VerifyHealRoot(h, activeSB.LBACortexStart, activeSB.BlockSize, forceRO, h.GetTimeNS())
		if err != nil && herr.KindOf(err) != herr.NotFound {
			return nil, err
		}
	}

	// Phase 11: publish.
	var allocator *alloc.Allocator
	if bm != nil && qm != nil {
		horizonBlocks := activeSB.JournalStart.Uint64() - activeSB.LBAHorizonStart.Uint64()
		horizon := alloc.NewHorizon(activeSB.LBAHorizonStart, horizonBlocks)
		allocator = alloc.NewAllocator(bm, qm, activeSB.LBAFluxStart, fluxBlocks, horizon, activeSB.FormatProfile)
		allocator.ReadOnly = forceRO || params.Flags.Has(FlagVirtual)
		allocator.VolPanic = volPanic
		if params.Flags.Has(FlagVirtual) {
			allocator.TimeOffset = 1
		}
	}

	vol := &Volume{
		H:            h,
		SB:           activeSB,
		ReadOnly:     forceRO,
		TaintCounter: taint,
		VolPanic:     volPanic,
		Degraded:     degraded,
		Bitmap:       bm,
		QMask:        qm,
		Topology:     topo,
		Cortex:       cache,
		RootAnchor:   rootAnchor,
		Alloc:        allocator,
		ZeroScan:     report,
		EpochRing:    ring,
	}
	if params.Flags.Has(FlagVirtual) {
		vol.TimeOffset = 1
	}
	return vol, nil
}

func layoutSanity(sb *superblock.Superblock, caps hal.Capabilities) error {
	if caps.TotalCapacityBytes < minCapacityBytes {
		return herr.New(herr.Geometry, "mount: device capacity %d is below the 2 MiB minimum", caps.TotalCapacityBytes)
	}
	if sb.TotalCapacity > caps.TotalCapacityBytes {
		return herr.New(herr.Geometry, "mount: superblock capacity %d exceeds device capacity %d (shrink forbidden)", sb.TotalCapacity, caps.TotalCapacityBytes)
	}
	sectorSize := uint64(caps.LogicalBlockSize)
	pointers := []addr.Addr{
		sb.LBAEpochStart, sb.LBACortexStart, sb.LBABitmapStart, sb.LBAQMaskStart,
		sb.LBAFluxStart, sb.LBAHorizonStart, sb.LBAStreamStart, sb.JournalStart,
	}
	for _, a := range pointers {
		if a.Uint64()*sectorSize >= caps.TotalCapacityBytes {
			return herr.New(herr.Geometry, "mount: region pointer %d lies outside device capacity", a.Uint64())
		}
	}
	return nil
}

// chronicleRegionBytes derives the Chronicle region's size from the
// superblock's stream-start pointer and the device capacity, since the
// superblock itself carries no explicit "Chronicle end" pointer: the region
// runs from lba_stream_start up to the fixed tail reserve (spec §4.6).
func chronicleRegionBytes(sb *superblock.Superblock, caps hal.Capabilities) uint64 {
	sectorSize := uint64(caps.LogicalBlockSize)
	tailReserve := alignUpU64(format.TailReserveBytes, uint64(sb.BlockSize))
	chronicleStart := sb.LBAStreamStart.Uint64() * sectorSize
	if tailReserve >= caps.TotalCapacityBytes {
		return 0
	}
	chronicleEnd := caps.TotalCapacityBytes - tailReserve
	if chronicleEnd <= chronicleStart {
		return 0
	}
	return chronicleEnd - chronicleStart
}

func loadResources(h hal.HAL, sb *superblock.Superblock, totalBlocks uint64, readOnly bool) (*bitmap.Armored, *qmask.Mask, []hal.TopologyEntry, error) {
	sectorSize := h.Capabilities().LogicalBlockSize

	bitmapBytes := alignUpU64(ceilDivU64(totalBlocks, 8), uint64(sectorSize))
	bitmapBuf := make([]byte, bitmapBytes)
	if err := hal.SyncIOLarge(h, hal.OpRead, sb.LBABitmapStart, bitmapBuf, sectorSize); err != nil {
		return nil, nil, nil, herr.Wrap(herr.HWIO, err)
	}
	bm, err := bitmap.FromDiskImage(bitmapBuf, totalBlocks, h.NewSpinLock())
	if err != nil {
		return nil, nil, nil, herr.Wrap(herr.BitmapCorrupt, err)
	}

	qmaskBytes := alignUpU64(ceilDivU64(totalBlocks, 4), uint64(sectorSize))
	qmaskBuf := make([]byte, qmaskBytes)
	var qm *qmask.Mask
	if err := hal.SyncIOLarge(h, hal.OpRead, sb.LBAQMaskStart, qmaskBuf, sectorSize); err != nil {
		if !readOnly {
			return bm, nil, nil, herr.Wrap(herr.HWIO, err)
		}
		qm = qmask.New(totalBlocks, qmask.Silver)
	} else {
		qm, err = qmask.FromDiskImage(qmaskBuf, totalBlocks)
		if err != nil {
			if !readOnly {
				return bm, nil, nil, herr.Wrap(herr.Geometry, err)
			}
			qm = qmask.New(totalBlocks, qmask.Silver)
		}
	}

	var topo []hal.TopologyEntry
	if sb.FormatProfile == superblock.ProfileAI {
		n := h.GetTopologyCount()
		topo = make([]hal.TopologyEntry, 0, n)
		for i := uint32(0); i < n; i++ {
			e, terr := h.GetTopologyData(i)
			if terr != nil {
				return bm, qm, nil, herr.Wrap(herr.HWIO, terr)
			}
			topo = append(topo, e)
		}
	}

	return bm, qm, topo, nil
}

func ceilDivU64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func alignUpU64(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return ceilDivU64(v, align) * align
}
