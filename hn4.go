// Package hn4 is the public facade over the engine's internal packages: a
// Volume type plus Format/Open/Mount entry points, mirroring the position
// of the teacher's ext4.FileSystem/Create/Read in this module (spec.md §1,
// SPEC_FULL.md §2).
package hn4

import (
	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/alloc"
	"github.com/hn4/hydra-nexus/internal/chronicle"
	"github.com/hn4/hydra-nexus/internal/format"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/mount"
	"github.com/hn4/hydra-nexus/internal/qmask"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

// Profile re-exports the format target profiles named in spec §6.
type Profile = superblock.Profile

const (
	ProfileGeneric = superblock.ProfileGeneric
	ProfileAI      = superblock.ProfileAI
	ProfileSystem  = superblock.ProfileSystem
)

// Intent re-exports the allocation-intent values a caller passes to
// Volume.AllocBlock.
type Intent = qmask.Intent

const (
	IntentDefault  = qmask.IntentDefault
	IntentMetadata = qmask.IntentMetadata
)

// MountFlag re-exports the mount_flags bits of spec §6.
type MountFlag = mount.Flag

const (
	MountReadOnly = mount.FlagReadOnly
	MountVirtual  = mount.FlagVirtual
	MountWormhole = mount.FlagWormhole
)

// FormatParams mirrors the teacher's ext4.Params: the external-facing
// configuration for one mkfs run, spelled out in spec §6 ("Format params").
type FormatParams struct {
	Profile               Profile
	VolumeLabel           string
	MountIntentFlags      uint32
	OverrideCapacityBytes uint64
	CloneUUID             bool
	SpecificUUID          addr.U128
}

// MountParams mirrors spec §6's "Mount params".
type MountParams struct {
	Flags     MountFlag
	Chronicle chronicle.Verifier
}

// Volume is the live, mounted handle a caller drives I/O through. It wraps
// mount.Volume the way the teacher's FileSystem wraps its parsed superblock
// and group descriptors, adding the device handle's lifecycle (Close).
type Volume struct {
	h hal.HAL
	v *mount.Volume
}

// Format runs the C6 mkfs sequence against an already-opened device handle
// and returns the region layout it computed, without mounting the result.
func Format(h hal.HAL, p FormatParams) (*format.Geometry, error) {
	res, err := format.Format(h, format.Options{
		Profile:               p.Profile,
		VolumeLabel:           p.VolumeLabel,
		MountIntentFlags:      p.MountIntentFlags,
		OverrideCapacityBytes: p.OverrideCapacityBytes,
		CloneUUID:             p.CloneUUID,
		SpecificUUID:          p.SpecificUUID,
	})
	if err != nil {
		return nil, err
	}
	return res.Geometry, nil
}

// Mount runs the C10 mount pipeline against an already-opened device handle
// and publishes a live Volume.
func Mount(h hal.HAL, p MountParams) (*Volume, error) {
	v, err := mount.Mount(h, mount.Params{Flags: p.Flags, Chronicle: p.Chronicle})
	if err != nil {
		return nil, err
	}
	return &Volume{h: h, v: v}, nil
}

// Create opens the backing file at path, formats it fresh, and mounts the
// result in one call — the common case a CLI's "mkfs and go" path wants,
// analogous to the teacher's Create followed immediately by Read.
func Create(path string, sectorSize uint32, fp FormatParams, mp MountParams) (*Volume, error) {
	h, err := hal.OpenSysHAL(path, sectorSize, 0, true)
	if err != nil {
		return nil, err
	}
	if _, err := Format(h, fp); err != nil {
		h.Close()
		return nil, err
	}
	vol, err := Mount(h, mp)
	if err != nil {
		h.Close()
		return nil, err
	}
	return vol, nil
}

// Open opens an existing volume at path and mounts it.
func Open(path string, sectorSize uint32, mp MountParams) (*Volume, error) {
	h, err := hal.OpenSysHAL(path, sectorSize, 0, true)
	if err != nil {
		return nil, err
	}
	vol, err := Mount(h, mp)
	if err != nil {
		h.Close()
		return nil, err
	}
	return vol, nil
}

// Close releases the underlying device handle, if it supports closing,
// without marking the volume CLEAN first. Prefer Unmount for an orderly
// shutdown; Close is for callers that already know the volume is being
// abandoned (e.g. after a fatal I/O error).
func (vol *Volume) Close() error {
	if c, ok := vol.h.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Unmount marks the volume CLEAN under a barrier-backed, quorum-committed
// mirror write (spec §3/§5: "destroyed by unmount after marking CLEAN"),
// then releases the underlying device handle. If the clean-mark commit
// fails to reach quorum, the device handle is still closed before the
// error is returned.
func (vol *Volume) Unmount() error {
	if err := mount.Unmount(vol.h, vol.v); err != nil {
		vol.Close()
		return err
	}
	return vol.Close()
}

// ReadOnly reports whether the mount pipeline forced this volume read-only
// (thermal, taint, or an explicit MountReadOnly flag).
func (vol *Volume) ReadOnly() bool { return vol.v.ReadOnly }

// Degraded reports whether the volume is running with a healed or missing
// mirror, a failed resource load tolerated only because the mount was
// read-only, or any other non-fatal anomaly surfaced during mount.
func (vol *Volume) Degraded() bool { return vol.v.Degraded }

// Panicked reports whether the mount pipeline set HN4_VOL_RUNTIME_PANIC
// (spec §4.10): the volume mounted, but only so that a recovery tool can
// inspect it, not so it can take normal writes.
func (vol *Volume) Panicked() bool { return vol.v.VolPanic }

// TaintCounter returns the accumulated corruption-taint counter that feeds
// the read-only threshold (spec §4.10 step 6).
func (vol *Volume) TaintCounter() uint32 { return vol.v.TaintCounter }

// UUID returns the volume's 128-bit identifier.
func (vol *Volume) UUID() addr.U128 { return vol.v.SB.VolumeUUID }

// Label returns the volume label stamped at format time.
func (vol *Volume) Label() string { return vol.v.SB.VolumeLabel }

// AllocBlock runs the C8/C9 ballistic-then-Horizon allocation algorithm
// (spec §4.8/§4.9) and returns the LBA chosen.
func (vol *Volume) AllocBlock(g, v, m, n uint64, intent Intent) (addr.Addr, error) {
	if vol.v.Alloc == nil {
		return addr.Zero, herr.New(herr.Uninitialized, "hn4: volume has no allocator published (degraded or read-only mount with a failed resource load)")
	}
	lba, _, err := vol.v.Alloc.AllocBlock(g, v, m, n, intent)
	return lba, err
}

// FreeBlock releases a previously allocated LBA back to the void bitmap.
func (vol *Volume) FreeBlock(lba addr.Addr) error {
	if vol.v.Alloc == nil {
		return herr.New(herr.Uninitialized, "hn4: volume has no allocator published")
	}
	return vol.v.Alloc.Free(lba)
}

// ZeroScanReport is a copy of internal/zeroscan's reconciliation report
// shaped for the public surface, so callers never need to import
// internal/zeroscan directly.
type ZeroScanReport struct {
	AnchorsScanned int
	GhostsRevived  int
	TaintDelta     uint32
}

// ZeroScanReport returns the reconciliation report the mount pipeline
// produced while rebuilding the void bitmap from the Cortex (spec §4.11).
// Nil on a volume that never loaded its Cortex cache (a degraded,
// read-only mount with a failed resource load).
func (vol *Volume) ZeroScanReport() *ZeroScanReport {
	if vol.v.ZeroScan == nil {
		return nil
	}
	return &ZeroScanReport{
		AnchorsScanned: vol.v.ZeroScan.AnchorsScanned,
		GhostsRevived:  vol.v.ZeroScan.GhostsRevived,
		TaintDelta:     vol.v.ZeroScan.TaintDelta,
	}
}
