package mount

import (
	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

// mirrorTarget is one of the four Cardinal Vote slots, with whether it is
// enabled for this device (South is skipped on small or ZNS-native media).
type mirrorTarget struct {
	mirror  superblock.Mirror
	lba     addr.Addr
	enabled bool
}

// writeSBWithRetry writes a serialized superblock image to lba, retrying up
// to superblock.WriteRetryLimit times before giving up (spec §4.10.1: "HW_IO
// is retried only within the dirty-sync commit, up to WRITE_RETRY_LIMIT").
func writeSBWithRetry(h hal.HAL, lba addr.Addr, buf []byte, sectors uint32) bool {
	for attempt := 0; attempt < superblock.WriteRetryLimit; attempt++ {
		if err := h.SyncIO(hal.OpWrite, lba, buf, sectors); err != nil {
			continue
		}
		if err := h.Barrier(); err != nil {
			continue
		}
		return true
	}
	return false
}

// syncTransition applies mutate to a copy of original, stamps
// LastMountTime, and commits the result to North and every enabled mirror
// under a write barrier each, requiring quorum ((North OK AND >=1 mirror
// OK) OR (>=3 of the 4 targets OK)) — the commit rule both the mount-time
// dirty-sync and the unmount-time clean-sync transitions share (spec
// §4.10.1). A quorum failure triggers a nuclear rollback: the original
// superblock is best-effort rewritten to every target and HW_IO is
// returned.
func syncTransition(h hal.HAL, original *superblock.Superblock, targets []mirrorTarget, mutate func(*superblock.Superblock)) (*superblock.Superblock, error) {
	updated := *original
	mutate(&updated)
	updated.LastMountTime = h.GetTimeNS()

	sectorSize := h.Capabilities().LogicalBlockSize
	sectors := uint32(superblock.Size) / sectorSize
	if uint32(superblock.Size)%sectorSize != 0 {
		sectors++
	}

	buf := make([]byte, int(sectors)*int(sectorSize))
	copy(buf, updated.ToBytes())

	var northOK bool
	var mirrorOK int
	for _, target := range targets {
		if !target.enabled {
			continue
		}
		ok := writeSBWithRetry(h, target.lba, buf, sectors)
		if target.mirror == superblock.North {
			northOK = ok
		} else if ok {
			mirrorOK++
		}
	}

	totalOK := mirrorOK
	if northOK {
		totalOK++
	}
	quorum := (northOK && mirrorOK >= 1) || totalOK >= 3
	if !quorum {
		nuclearRollback(h, original, targets, sectors)
		return nil, herr.New(herr.HWIO, "mount: superblock commit failed to reach quorum")
	}
	return &updated, nil
}

// dirtySync implements §4.10.1: stamp DIRTY + bump copy_generation and
// commit via syncTransition. On success, a volume that was CLEAN before
// this mount halves its taint counter.
func dirtySync(h hal.HAL, original *superblock.Superblock, targets []mirrorTarget, taint *uint32) (*superblock.Superblock, error) {
	updated, err := syncTransition(h, original, targets, func(sb *superblock.Superblock) {
		sb.StateFlags = (sb.StateFlags &^ superblock.StateClean) | superblock.StateDirty
		sb.CopyGeneration = original.CopyGeneration + 1
	})
	if err != nil {
		return nil, err
	}
	if original.StateFlags.Has(superblock.StateClean) {
		*taint /= 2
	}
	return updated, nil
}

// cleanSync implements the unmount-time counterpart to dirtySync (spec §3/
// §5: "destroyed by unmount after marking CLEAN"): stamp CLEAN (clearing
// DIRTY) + bump copy_generation and commit via syncTransition under the
// same quorum rule, so a clean shutdown is exactly as durable as the
// mount-time transition it reverses.
func cleanSync(h hal.HAL, original *superblock.Superblock, targets []mirrorTarget) (*superblock.Superblock, error) {
	return syncTransition(h, original, targets, func(sb *superblock.Superblock) {
		sb.StateFlags = (sb.StateFlags &^ superblock.StateDirty) | superblock.StateClean
		sb.CopyGeneration = original.CopyGeneration + 1
	})
}

// nuclearRollback best-effort rewrites original to every mirror target
// after a failed dirty-sync commit, so a half-written generation never
// survives to the next mount (spec §4.10.1).
func nuclearRollback(h hal.HAL, original *superblock.Superblock, targets []mirrorTarget, sectors uint32) {
	sectorSize := h.Capabilities().LogicalBlockSize
	buf := make([]byte, int(sectors)*int(sectorSize))
	copy(buf, original.ToBytes())
	for _, target := range targets {
		if !target.enabled {
			continue
		}
		_ = h.SyncIO(hal.OpWrite, target.lba, buf, sectors)
	}
	_ = h.Barrier()
}
