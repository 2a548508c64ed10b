package hal

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hn4/hydra-nexus/internal/addr"
)

// MemHAL is the in-memory "NVM" stub named in spec §9: sync_io(READ/WRITE)
// is a memcpy, ZONE_RESET is a memset, barrier is a no-op fence. Property
// tests run against this exclusively.
type MemHAL struct {
	mu   sync.Mutex
	caps Capabilities
	data []byte

	barrierCount uint64
	rng          *rand.Rand
	timeNS       uint64
	tempC        float64
	topology     []TopologyEntry
}

// NewMemHAL builds a zeroed virtual device of capacityBytes, with the given
// logical sector size and hardware flags.
func NewMemHAL(capacityBytes uint64, sectorSize uint32, flags HWFlag, zoneSize uint64) *MemHAL {
	return &MemHAL{
		caps: Capabilities{
			LogicalBlockSize:   sectorSize,
			TotalCapacityBytes: capacityBytes,
			HWFlags:            flags,
			ZoneSizeBytes:      zoneSize,
		},
		data:   make([]byte, capacityBytes),
		rng:    rand.New(rand.NewSource(1)),
		timeNS: uint64(time.Now().UnixNano()),
		tempC:  35.0,
	}
}

func (m *MemHAL) Capabilities() Capabilities { return m.caps }

// SetTemperatureC lets tests exercise the thermal gate (spec §4.10 step 1).
func (m *MemHAL) SetTemperatureC(c float64) { m.tempC = c }

// SetTopology lets tests populate topology rows for the AI profile path.
func (m *MemHAL) SetTopology(entries []TopologyEntry) { m.topology = entries }

// Advance lets deterministic tests move the injected clock forward.
func (m *MemHAL) Advance(ns uint64) { m.timeNS += ns }

func (m *MemHAL) byteRange(lba addr.Addr, sectors uint32) (int, int, error) {
	start := int(lba.Uint64()) * int(m.caps.LogicalBlockSize)
	length := int(sectors) * int(m.caps.LogicalBlockSize)
	end := start + length
	if start < 0 || length < 0 || end > len(m.data) {
		return 0, 0, fmt.Errorf("hal: io out of range [%d,%d) capacity %d", start, end, len(m.data))
	}
	return start, end, nil
}

func (m *MemHAL) SyncIO(op IOOp, lba addr.Addr, buf []byte, sectors uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start, end, err := m.byteRange(lba, sectors)
	if err != nil {
		return err
	}

	switch op {
	case OpRead:
		if len(buf) < end-start {
			return fmt.Errorf("hal: read buffer too small: %d < %d", len(buf), end-start)
		}
		copy(buf, m.data[start:end])
	case OpWrite:
		if len(buf) < end-start {
			return fmt.Errorf("hal: write buffer too small: %d < %d", len(buf), end-start)
		}
		copy(m.data[start:end], buf[:end-start])
	case OpDiscard:
		for i := start; i < end; i++ {
			m.data[i] = 0
		}
	case OpZoneReset:
		zs := int(m.caps.ZoneSizeBytes)
		if zs == 0 {
			return fmt.Errorf("hal: zone reset on device with no zones")
		}
		zoneStart := (start / zs) * zs
		zoneEnd := zoneStart + zs
		if zoneEnd > len(m.data) {
			zoneEnd = len(m.data)
		}
		for i := zoneStart; i < zoneEnd; i++ {
			m.data[i] = 0
		}
	case OpZoneAppend:
		if len(buf) < end-start {
			return fmt.Errorf("hal: zone append buffer too small")
		}
		copy(m.data[start:end], buf[:end-start])
	case OpFlush:
		// no-op: MemHAL has no write-back cache to flush.
	default:
		return fmt.Errorf("hal: unknown io op %d", op)
	}
	return nil
}

func (m *MemHAL) Barrier() error {
	m.mu.Lock()
	m.barrierCount++
	m.mu.Unlock()
	return nil
}

// BarrierCount reports how many barriers have been issued, for tests that
// assert ordering (spec §5.2: North written before mirrors, each followed
// by a barrier).
func (m *MemHAL) BarrierCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.barrierCount
}

func (m *MemHAL) MemAlloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("hal: negative alloc size %d", size)
	}
	// over-allocate to guarantee a 64-byte-aligned usable region, matching
	// the HAL contract's aligned-allocation guarantee without relying on
	// unsafe pointer arithmetic.
	raw := make([]byte, size+64)
	off := 0
	if addrOf(raw)%64 != 0 {
		off = 64 - int(addrOf(raw)%64)
	}
	return raw[off : off+size], nil
}

func (m *MemHAL) GetTimeNS() uint64 { return m.timeNS }

func (m *MemHAL) RandomU64() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Uint64()
}

func (m *MemHAL) GetTemperatureC() float64 { return m.tempC }

func (m *MemHAL) GetTopologyCount() uint32 { return uint32(len(m.topology)) }

func (m *MemHAL) GetTopologyData(idx uint32) (TopologyEntry, error) {
	if int(idx) >= len(m.topology) {
		return TopologyEntry{}, fmt.Errorf("hal: topology index %d out of range", idx)
	}
	return m.topology[idx], nil
}

func (m *MemHAL) NewSpinLock() *SpinLock { return &SpinLock{} }
