// Package mount implements the C10 mount pipeline (spec §4.10): Cardinal
// Vote election, epoch/state gating, the dirty-sync atomic state
// transition, resource loading, Zero-Scan reconstruction, and root anchor
// verify/heal, composing every other internal package into one published
// Volume.
package mount

import (
	"github.com/hn4/hydra-nexus/internal/alloc"
	"github.com/hn4/hydra-nexus/internal/bitmap"
	"github.com/hn4/hydra-nexus/internal/chronicle"
	"github.com/hn4/hydra-nexus/internal/cortex"
	"github.com/hn4/hydra-nexus/internal/epoch"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/qmask"
	"github.com/hn4/hydra-nexus/internal/superblock"
	"github.com/hn4/hydra-nexus/internal/zeroscan"
)

// Flag is one of the mount_flags bits named in spec §6 ("Mount params:
// {mount_flags: {READ_ONLY, VIRTUAL, WORMHOLE}}").
type Flag uint32

const (
	FlagReadOnly Flag = 1 << 0
	// FlagVirtual mounts a snapshot view: the volume publishes but its
	// allocator refuses every write, same as a nonzero time_offset (spec
	// §9 design note, extended to alloc_horizon per SPEC_FULL.md §4.4).
	FlagVirtual Flag = 1 << 1
	// FlagWormhole is accepted and stored but carries no distinct mount
	// policy in this implementation; named for wire compatibility.
	FlagWormhole Flag = 1 << 2
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// TaintThresholdRO is the taint counter value at or above which phase 6
// forces the volume read-only (spec §4.10 step 6; the numeric value is an
// open decision, fixed in SPEC_FULL.md §4.5).
const TaintThresholdRO = 32

// ThermalCriticalC and ThermalForceROC are the two thermal gate thresholds
// of spec §4.10 step 1.
const (
	ThermalCriticalC = 85.0
	ThermalForceROC  = 75.0
)

// Params configures one Mount call.
type Params struct {
	Flags Flag
	// Chronicle overrides the integrity-verify hook (spec §4.10 step 5).
	// Defaults to chronicle.HashChain{} when nil.
	Chronicle chronicle.Verifier
}

// Volume is the published in-core state (spec §3 "Volume (in-core)").
type Volume struct {
	H  hal.HAL
	SB *superblock.Superblock

	ReadOnly     bool
	TaintCounter uint32
	VolPanic     bool
	Degraded     bool
	TimeOffset   int64

	Bitmap     *bitmap.Armored
	QMask      *qmask.Mask
	Topology   []hal.TopologyEntry
	Cortex     *cortex.Cache
	RootAnchor *cortex.Anchor
	Alloc      *alloc.Allocator
	ZeroScan   *zeroscan.Report
	EpochRing  epoch.Ring
}
