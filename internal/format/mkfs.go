package format

import (
	"github.com/sirupsen/logrus"
	uuid "github.com/satori/go.uuid"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/cortex"
	"github.com/hn4/hydra-nexus/internal/epoch"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/hnlog"
	"github.com/hn4/hydra-nexus/internal/qmask"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

// Options configures one mkfs run (spec §6 "Format params").
type Options struct {
	Profile          superblock.Profile
	VolumeLabel      string
	MountIntentFlags uint32
	// OverrideCapacityBytes, if nonzero, replaces the HAL-reported capacity
	// for geometry purposes (used to format a smaller logical volume on a
	// larger device).
	OverrideCapacityBytes uint64
	CloneUUID             bool
	SpecificUUID          addr.U128
}

// Result is the outcome of a successful Format.
type Result struct {
	Geometry   *Geometry
	Superblock *superblock.Superblock
}

// Format implements the C6 mkfs sequence (spec §4.6): snapshot caps ->
// compute geometry -> sanitize -> re-read caps and fail on drift -> populate
// SB -> zero metadata -> write Silver Q-Mask -> write genesis anchor and
// epoch -> barrier -> write mirrors with barriers, poisoning on final
// commit failure.
func Format(h hal.HAL, opts Options) (*Result, error) {
	caps := h.Capabilities()
	capacityBytes := caps.TotalCapacityBytes
	if opts.OverrideCapacityBytes != 0 {
		if opts.OverrideCapacityBytes > capacityBytes {
			return nil, herr.New(herr.Geometry, "format: override capacity %d exceeds device capacity %d", opts.OverrideCapacityBytes, capacityBytes)
		}
		capacityBytes = opts.OverrideCapacityBytes
	}
	sectorSize := caps.LogicalBlockSize
	isZNS := caps.HWFlags.Has(hal.HWFlagZNSNative)
	isNVM := caps.HWFlags.Has(hal.HWFlagNVM)

	if err := CheckCompatibility(opts.Profile, capacityBytes, sectorSize, isNVM, isZNS); err != nil {
		return nil, err
	}

	geo, err := ComputeGeometry(opts.Profile, capacityBytes, sectorSize, isZNS, caps.ZoneSizeBytes)
	if err != nil {
		return nil, err
	}

	if err := sanitize(h, caps, isZNS); err != nil {
		return nil, err
	}

	caps2 := h.Capabilities()
	if caps2.TotalCapacityBytes != caps.TotalCapacityBytes || caps2.LogicalBlockSize != sectorSize {
		return nil, herr.New(herr.Geometry, "format: device capabilities drifted during sanitize")
	}

	// Volume UUIDs are generated the way the teacher generates its
	// filesystem and journal UUIDs: uuid.NewV4(), converted to our U128
	// wire type instead of the teacher's string form.
	volUUID := addr.U128FromBytes(uuid.NewV4().Bytes())
	if opts.CloneUUID {
		volUUID = opts.SpecificUUID
	}

	sb := &superblock.Superblock{
		Magic:           superblock.MagicSB,
		Version:         1,
		BlockSize:       geo.BlockSize,
		VolumeUUID:      volUUID,
		LBAEpochStart:   geo.EpochStart,
		LBACortexStart:  geo.CortexStart,
		LBABitmapStart:  geo.BitmapStart,
		LBAQMaskStart:   geo.QMaskStart,
		LBAFluxStart:    geo.FluxStart,
		LBAHorizonStart: geo.HorizonStart,
		LBAStreamStart:  geo.ChronicleStart,
		// JournalStart carries the same boundary as LBAStreamStart: the
		// C9 Horizon contract (spec §4.9) bounds its capacity by
		// "journal_start", and the region table (spec §4.6) says "Horizon
		// ends exactly where Chronicle starts" — one physical boundary,
		// two field names kept for on-disk wire compatibility.
		JournalStart:    geo.ChronicleStart,
		TotalCapacity:   capacityBytes,
		CurrentEpochID:  1,
		CopyGeneration:  1,
		LastMountTime:   h.GetTimeNS(),
		StateFlags:      superblock.StateClean,
		MountIntent:     opts.MountIntentFlags,
		FormatProfile:   opts.Profile,
		DeviceTypeTag:   deviceTypeFor(caps, isZNS),
		EndianTag:       superblock.EndianTag,
		VolumeLabel:     opts.VolumeLabel,
		MagicTail:       superblock.MagicTail,
	}

	if err := zeroRegion(h, geo.EpochStart, geo.EpochBytes, sectorSize); err != nil {
		return nil, err
	}
	if err := zeroRegion(h, geo.CortexStart, geo.CortexBytes, sectorSize); err != nil {
		return nil, err
	}
	if err := zeroRegion(h, geo.BitmapStart, geo.BitmapBytes, sectorSize); err != nil {
		return nil, err
	}
	sb.StateFlags |= superblock.StateMetadataZeroed

	qm := qmask.New(geo.TotalBlocks, qmask.Silver)
	if err := writeRegion(h, geo.QMaskStart, qm.ToDiskImage(), sectorSize); err != nil {
		return nil, err
	}

	root := cortex.NewRootAnchor(h.GetTimeNS())
	rootBuf := make([]byte, geo.BlockSize)
	copy(rootBuf, root.ToBytes())
	if err := h.SyncIO(hal.OpWrite, geo.CortexStart, rootBuf, geo.BlockSize/sectorSize); err != nil {
		return nil, herr.Wrap(herr.HWIO, err)
	}

	ring := epoch.Ring{Start: geo.EpochStart, BlockSize: geo.BlockSize, RingBlocks: geo.EpochBytes / uint64(geo.BlockSize)}
	if err := epoch.Genesis(h, ring); err != nil {
		return nil, err
	}

	if err := h.Barrier(); err != nil {
		return nil, herr.Wrap(herr.HWIO, err)
	}

	north, east, west, south, southEnabled := superblock.MirrorLBAsForDevice(capacityBytes, sectorSize, geo.BlockSize, caps.HWFlags)
	mirrors := []mirrorSlot{
		{superblock.North, north, true},
		{superblock.East, east, true},
		{superblock.West, west, true},
		{superblock.South, south, southEnabled},
	}
	if err := commitMirrors(h, sb, mirrors); err != nil {
		return nil, err
	}

	return &Result{Geometry: geo, Superblock: sb}, nil
}

func deviceTypeFor(caps hal.Capabilities, isZNS bool) superblock.DeviceTypeTag {
	switch {
	case isZNS:
		return superblock.DeviceZNS
	case caps.HWFlags.Has(hal.HWFlagRotational):
		return superblock.DeviceRotational
	case caps.HWFlags.Has(hal.HWFlagNVM):
		return superblock.DeviceNVM
	default:
		return superblock.DeviceGeneric
	}
}

func sanitize(h hal.HAL, caps hal.Capabilities, isZNS bool) error {
	if isZNS {
		zoneSize := caps.ZoneSizeBytes
		if zoneSize == 0 {
			return herr.New(herr.Geometry, "format: ZNS device reports zero zone size")
		}
		nZones := ceilDiv(caps.TotalCapacityBytes, zoneSize)
		for z := uint64(0); z < nZones; z++ {
			lba := bytesToLBA(z*zoneSize, caps.LogicalBlockSize)
			if err := h.SyncIO(hal.OpZoneReset, lba, nil, 0); err != nil {
				return herr.Wrap(herr.HWIO, err)
			}
		}
		return nil
	}
	totalSectors := caps.TotalCapacityBytes / uint64(caps.LogicalBlockSize)
	if err := h.SyncIO(hal.OpDiscard, addr.Zero, nil, uint32(totalSectors)); err != nil {
		return herr.Wrap(herr.HWIO, err)
	}
	return nil
}

func zeroRegion(h hal.HAL, start addr.Addr, nbytes uint64, sectorSize uint32) error {
	if nbytes == 0 {
		return nil
	}
	padded := alignUp(nbytes, uint64(sectorSize))
	buf := make([]byte, padded)
	if err := hal.SyncIOLarge(h, hal.OpWrite, start, buf, sectorSize); err != nil {
		return herr.Wrap(herr.HWIO, err)
	}
	return nil
}

func writeRegion(h hal.HAL, start addr.Addr, data []byte, sectorSize uint32) error {
	padded := alignUp(uint64(len(data)), uint64(sectorSize))
	buf := make([]byte, padded)
	copy(buf, data)
	if err := hal.SyncIOLarge(h, hal.OpWrite, start, buf, sectorSize); err != nil {
		return herr.Wrap(herr.HWIO, err)
	}
	return nil
}

type mirrorSlot struct {
	mirror  superblock.Mirror
	lba     addr.Addr
	enabled bool
}

// commitMirrors writes sb to every enabled mirror in North/East/West/South
// order, barriering after each, retrying the whole sequence up to
// WriteRetryLimit times and poisoning every mirror on final failure (spec
// §4.6).
func commitMirrors(h hal.HAL, sb *superblock.Superblock, mirrors []mirrorSlot) error {
	sectorSize := h.Capabilities().LogicalBlockSize
	serialized := sb.ToBytes()
	sectors := alignUp(uint64(len(serialized)), uint64(sectorSize)) / uint64(sectorSize)
	buf := make([]byte, sectors*uint64(sectorSize))
	copy(buf, serialized)

	var lastErr error
	for attempt := 0; attempt < superblock.WriteRetryLimit; attempt++ {
		lastErr = nil
		for _, m := range mirrors {
			if !m.enabled {
				continue
			}
			if err := h.SyncIO(hal.OpWrite, m.lba, buf, uint32(sectors)); err != nil {
				lastErr = err
				break
			}
			if err := h.Barrier(); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		hnlog.Degraded("format: mirror commit attempt failed, retrying", logrus.Fields{"attempt": attempt, "error": lastErr.Error()})
	}

	poisoned := make([]byte, sectors*uint64(sectorSize))
	superblock.Poison(poisoned)
	for _, m := range mirrors {
		if !m.enabled {
			continue
		}
		_ = h.SyncIO(hal.OpWrite, m.lba, poisoned, uint32(sectors))
	}
	return herr.Wrap(herr.HWIO, lastErr)
}
