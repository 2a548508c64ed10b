package format

import (
	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

// TailReserveBytes is the fixed reserve left unused at the end of the
// device, rounded up to a block (spec §4.6 "[tail reserve]").
const TailReserveBytes = 64 << 10

// Geometry is the fully resolved region layout for one volume (spec §4.6):
// "[SB] [Epoch Ring] [Cortex] [Bitmap] [QMask] [align] [Flux] [Horizon]
// [Chronicle] [tail reserve]".
type Geometry struct {
	Profile    superblock.Profile
	BlockSize  uint32
	SectorSize uint32
	TotalBlocks uint64

	EpochStart  addr.Addr
	EpochBytes  uint64
	CortexStart addr.Addr
	CortexBytes uint64
	BitmapStart addr.Addr
	BitmapBytes uint64
	QMaskStart  addr.Addr
	QMaskBytes  uint64

	FluxStart      addr.Addr
	FluxBytes      uint64
	HorizonStart   addr.Addr
	HorizonBytes   uint64
	ChronicleStart addr.Addr
	ChronicleBytes uint64
	TailStart      addr.Addr
}

func ceilDiv(a, b uint64) uint64 { return (a + b - 1) / b }

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return ceilDiv(v, align) * align
}

func bytesToLBA(off uint64, sectorSize uint32) addr.Addr {
	if sectorSize == 0 {
		return addr.Zero
	}
	return addr.FromUint64(off / uint64(sectorSize))
}

// ComputeGeometry lays out every region for a volume of capacityBytes using
// profile's defaults (spec §4.6). On ZNS media, blockSize is forced to
// zoneSizeBytes. A zone size of 4 GiB or more does not fit the 32-bit block
// size and is refused with a GEOMETRY error.
func ComputeGeometry(profile superblock.Profile, capacityBytes uint64, sectorSize uint32, isZNS bool, zoneSizeBytes uint64) (*Geometry, error) {
	spec, err := Lookup(profile)
	if err != nil {
		return nil, err
	}

	blockSize := spec.DefaultBlockSize
	if isZNS {
		zbs := zoneSizeBytes
		if zbs > 4*giB {
			zbs = 4 * giB
		}
		if zbs == 0 || zbs > uint64(^uint32(0)) {
			return nil, herr.New(herr.Geometry, "format: invalid zone size %d for ZNS block size", zoneSizeBytes)
		}
		blockSize = uint32(zbs)
	}
	if blockSize == 0 || sectorSize == 0 || blockSize%sectorSize != 0 {
		return nil, herr.New(herr.AlignmentFail, "format: block size %d is not a multiple of sector size %d", blockSize, sectorSize)
	}

	totalBlocks := capacityBytes / uint64(blockSize)
	if totalBlocks == 0 {
		return nil, herr.New(herr.Geometry, "format: device too small for one block")
	}

	cursor := alignUp(superblock.Size, uint64(blockSize))

	epochBytes := alignUp(max64(2*uint64(blockSize), 1*miB), uint64(blockSize))
	epochStart := cursor
	cursor += epochBytes

	cortexBytes := alignUp(max64(ceilDiv(capacityBytes*2, 100), 64<<10), uint64(blockSize))
	cortexStart := cursor
	cursor += cortexBytes

	bitmapBytes := alignUp(ceilDiv(totalBlocks, 8), uint64(blockSize))
	bitmapStart := cursor
	cursor += bitmapBytes

	qmaskBytes := alignUp(ceilDiv(totalBlocks, 4), uint64(blockSize))
	qmaskStart := cursor
	cursor += qmaskBytes

	cursor = alignUp(cursor, spec.AlignmentTarget)

	hNum, hDen := HorizonFraction(profile)
	horizonBytes := alignUp(ceilDiv(capacityBytes*hNum, hDen), uint64(blockSize))
	chronicleBytes := alignUp(ChronicleSizeBytes(profile), uint64(blockSize))
	tailBytes := alignUp(TailReserveBytes, uint64(blockSize))

	reserved := horizonBytes + chronicleBytes + tailBytes
	if cursor+reserved >= capacityBytes {
		return nil, herr.New(herr.Geometry, "format: capacity %d too small for profile %v layout", capacityBytes, profile)
	}
	fluxBytes := alignUp(capacityBytes-cursor-reserved, uint64(blockSize))
	// Re-clamp: aligning Flux up could push past the reserved tail; shrink
	// to the last block boundary that still leaves room for it.
	if cursor+fluxBytes+reserved > capacityBytes {
		fluxBytes -= uint64(blockSize)
	}
	if fluxBytes == 0 {
		return nil, herr.New(herr.Geometry, "format: no room left for the Flux region")
	}
	fluxStart := cursor
	horizonStart := fluxStart + fluxBytes
	chronicleStart := horizonStart + horizonBytes
	tailStart := chronicleStart + chronicleBytes

	return &Geometry{
		Profile:        profile,
		BlockSize:      blockSize,
		SectorSize:     sectorSize,
		TotalBlocks:    totalBlocks,
		EpochStart:     bytesToLBA(epochStart, sectorSize),
		EpochBytes:     epochBytes,
		CortexStart:    bytesToLBA(cortexStart, sectorSize),
		CortexBytes:    cortexBytes,
		BitmapStart:    bytesToLBA(bitmapStart, sectorSize),
		BitmapBytes:    bitmapBytes,
		QMaskStart:     bytesToLBA(qmaskStart, sectorSize),
		QMaskBytes:     qmaskBytes,
		FluxStart:      bytesToLBA(fluxStart, sectorSize),
		FluxBytes:      fluxBytes,
		HorizonStart:   bytesToLBA(horizonStart, sectorSize),
		HorizonBytes:   horizonBytes,
		ChronicleStart: bytesToLBA(chronicleStart, sectorSize),
		ChronicleBytes: chronicleBytes,
		TailStart:      bytesToLBA(tailStart, sectorSize),
	}, nil
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// FluxBlocks is the Flux region's size in blocks.
func (g *Geometry) FluxBlocks() uint64 { return g.FluxBytes / uint64(g.BlockSize) }

// HorizonBlocks is the Horizon region's size in blocks.
func (g *Geometry) HorizonBlocks() uint64 { return g.HorizonBytes / uint64(g.BlockSize) }
