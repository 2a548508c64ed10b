//go:build linux

package hal

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hn4/hydra-nexus/internal/addr"
)

// SysHAL backs the HAL contract with a real block device or regular file,
// using pread/pwrite (os.File ReadAt/WriteAt) and fsync (os.File.Sync) the
// way the teacher's on-disk layer issues raw I/O, instead of going through
// buffered os.File Read/Write.
type SysHAL struct {
	mu   sync.Mutex
	f    *os.File
	caps Capabilities
}

// OpenSysHAL opens path (a block device node or a regular file standing in
// for one) and queries its capabilities. strictFlush sets HWFlagStrictFlush
// in the reported capabilities; Barrier issues fsync on every call whether
// or not it is set.
func OpenSysHAL(path string, sectorSize uint32, zoneSize uint64, strictFlush bool) (*SysHAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("hal: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hal: stat %s: %w", path, err)
	}
	size := uint64(fi.Size())
	if size == 0 {
		// block devices report 0 from Stat(); fall back to seek-to-end.
		end, err := f.Seek(0, os.SEEK_END)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("hal: seek %s: %w", path, err)
		}
		size = uint64(end)
		if _, err := f.Seek(0, os.SEEK_SET); err != nil {
			f.Close()
			return nil, fmt.Errorf("hal: rewind %s: %w", path, err)
		}
	}

	flags := HWFlag(0)
	if strictFlush {
		flags |= HWFlagStrictFlush
	}
	if zoneSize != 0 {
		flags |= HWFlagZNSNative
	}

	return &SysHAL{
		f: f,
		caps: Capabilities{
			LogicalBlockSize:   sectorSize,
			TotalCapacityBytes: size,
			HWFlags:            flags,
			ZoneSizeBytes:      zoneSize,
		},
	}, nil
}

func (s *SysHAL) Close() error { return s.f.Close() }

func (s *SysHAL) Capabilities() Capabilities { return s.caps }

func (s *SysHAL) SyncIO(op IOOp, lba addr.Addr, buf []byte, sectors uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := int64(lba.Uint64()) * int64(s.caps.LogicalBlockSize)
	n := int64(sectors) * int64(s.caps.LogicalBlockSize)

	switch op {
	case OpRead:
		if _, err := s.f.ReadAt(buf[:n], off); err != nil {
			return fmt.Errorf("hal: pread at %d: %w", off, err)
		}
	case OpWrite:
		if _, err := s.f.WriteAt(buf[:n], off); err != nil {
			return fmt.Errorf("hal: pwrite at %d: %w", off, err)
		}
	case OpDiscard:
		if err := unix.Fallocate(int(s.f.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, off, n); err != nil {
			return fmt.Errorf("hal: discard at %d: %w", off, err)
		}
	case OpZoneReset, OpZoneAppend:
		return fmt.Errorf("hal: zone operations require a ZNS-capable device path, not implemented by the generic file backend")
	case OpFlush:
		return s.Barrier()
	default:
		return fmt.Errorf("hal: unknown io op %d", op)
	}
	return nil
}

func (s *SysHAL) Barrier() error {
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("hal: fsync: %w", err)
	}
	return nil
}

func (s *SysHAL) MemAlloc(size int) ([]byte, error) {
	raw := make([]byte, size+64)
	off := 0
	if addrOf(raw)%64 != 0 {
		off = 64 - int(addrOf(raw)%64)
	}
	return raw[off : off+size], nil
}

func (s *SysHAL) GetTimeNS() uint64 { return uint64(time.Now().UnixNano()) }

func (s *SysHAL) RandomU64() uint64 {
	var b [8]byte
	if _, err := readRandom(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func (s *SysHAL) GetTemperatureC() float64 {
	// real thermal telemetry is platform/vendor specific (NVMe SMART log,
	// hwmon, etc); the core only needs a number to compare against the
	// thermal gate thresholds, so this is left as an injectable override
	// point for a production deployment's telemetry collector.
	return 35.0
}

func (s *SysHAL) GetTopologyCount() uint32 { return 0 }

func (s *SysHAL) GetTopologyData(idx uint32) (TopologyEntry, error) {
	return TopologyEntry{}, fmt.Errorf("hal: no topology data available")
}

func (s *SysHAL) NewSpinLock() *SpinLock { return &SpinLock{} }

func readRandom(b []byte) (int, error) {
	f, err := os.Open("/dev/urandom")
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Read(b)
}
