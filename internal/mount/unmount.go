package mount

import (
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

// Unmount implements the clean-shutdown transition spec §3/§5 describes as
// destroying the volume "after marking CLEAN": it stamps StateClean
// (clearing StateDirty), bumps copy_generation, and commits the result to
// the mirrors under the same barrier/quorum discipline as the mount-time
// dirty-sync (spec §4.10.1), so a §8 Format->Mount->Unmount->Mount sequence
// observes copy_generation == first_mount_gen + 2.
//
// A volume mounted read-only never dirtied anything to clean up, so
// Unmount is a no-op on it.
func Unmount(h hal.HAL, vol *Volume) error {
	if vol.ReadOnly {
		return nil
	}

	sb := vol.SB
	caps := h.Capabilities()
	north, east, west, south, southEnabled := superblock.MirrorLBAsForDevice(caps.TotalCapacityBytes, caps.LogicalBlockSize, sb.BlockSize, caps.HWFlags)
	targets := []mirrorTarget{
		{mirror: superblock.North, lba: north, enabled: true},
		{mirror: superblock.East, lba: east, enabled: true},
		{mirror: superblock.West, lba: west, enabled: true},
		{mirror: superblock.South, lba: south, enabled: southEnabled},
	}

	updated, err := cleanSync(h, sb, targets)
	if err != nil {
		return err
	}
	vol.SB = updated
	return nil
}
