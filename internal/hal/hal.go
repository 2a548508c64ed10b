// Package hal defines the hardware abstraction layer contract the core
// engine consumes (spec §4.3, §6) and the in-memory stub property tests run
// against. Real media is handled by a separate, build-tagged backend; the
// core never talks to a device except through this interface.
package hal

import (
	"github.com/hn4/hydra-nexus/internal/addr"
)

// HWFlag is a bitmask of device capability flags.
type HWFlag uint32

const (
	HWFlagNVM         HWFlag = 1 << 0
	HWFlagZNSNative   HWFlag = 1 << 1
	HWFlagRotational  HWFlag = 1 << 2
	HWFlagStrictFlush HWFlag = 1 << 3
)

func (f HWFlag) Has(bit HWFlag) bool { return f&bit != 0 }

// IOOp is the operation code passed to SyncIO.
type IOOp int

const (
	OpRead IOOp = iota
	OpWrite
	OpFlush
	OpDiscard
	OpZoneReset
	OpZoneAppend
)

// Capabilities describes fixed device properties queried once at attach
// time.
type Capabilities struct {
	LogicalBlockSize   uint32
	TotalCapacityBytes uint64
	HWFlags            HWFlag
	ZoneSizeBytes       uint64
}

// TopologyEntry is one row of topology data (used by the AI profile to
// place anchors near NUMA/zone boundaries).
type TopologyEntry struct {
	ID         uint32
	SizeBytes  uint64
	Attributes uint32
}

// MaxSyncIOChunkBytes bounds a single sync_io submission; SyncIOLarge splits
// larger requests into chunks of at most this size and yields between them.
const MaxSyncIOChunkBytes = 2 << 30 // 2 GiB

// HAL is the complete boundary the core consumes. Every method is
// synchronous/blocking; there is no cooperative suspension in the core
// (spec §5) — callers that need concurrency run it on their own goroutines.
type HAL interface {
	Capabilities() Capabilities

	// SyncIO performs one blocking I/O of the given op at lba for the given
	// number of sectors, using buf as the source (write) or destination
	// (read) buffer. For READ/WRITE, len(buf) must be at least
	// Sectors * LogicalBlockSize; only that many leading bytes are transferred.
	SyncIO(op IOOp, lba addr.Addr, buf []byte, sectors uint32) error

	// Barrier is a global persistence fence: all writes submitted before
	// Barrier returns are durable before any write submitted after it by
	// any thread.
	Barrier() error

	// MemAlloc returns zeroed, 64-byte-aligned memory of the given size.
	MemAlloc(size int) ([]byte, error)

	GetTimeNS() uint64
	RandomU64() uint64
	GetTemperatureC() float64

	GetTopologyCount() uint32
	GetTopologyData(idx uint32) (TopologyEntry, error)

	// NewSpinLock returns a HAL-provided spinlock primitive, used to guard
	// the armored bitmap critical section (spec §5).
	NewSpinLock() *SpinLock
}

// SyncIOLarge chunks a large READ/WRITE into submissions of at most
// MaxSyncIOChunkBytes, yielding the scheduler between chunks so the caller
// doesn't monopolize a core on multi-gigabyte transfers.
func SyncIOLarge(h HAL, op IOOp, lba addr.Addr, buf []byte, sectorSize uint32) error {
	if sectorSize == 0 {
		return errInvalidSectorSize
	}
	chunkSectors := uint32(MaxSyncIOChunkBytes / int(sectorSize))
	if chunkSectors == 0 {
		chunkSectors = 1
	}
	chunkBytes := int(chunkSectors) * int(sectorSize)

	offset := 0
	cur := lba
	for offset < len(buf) {
		end := offset + chunkBytes
		if end > len(buf) {
			end = len(buf)
		}
		n := end - offset
		sectors := uint32(n) / sectorSize
		if sectors == 0 {
			sectors = 1
		}
		if err := h.SyncIO(op, cur, buf[offset:end], sectors); err != nil {
			return err
		}
		var err error
		cur, err = cur.Add(uint64(sectors))
		if err != nil {
			return err
		}
		offset = end
		yield()
	}
	return nil
}
