package cortex

import (
	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
)

// MaxCacheLoadBytes bounds how much of the Cortex is pulled into memory at
// mount time (spec §4.11): "Load up to 256 MiB of Cortex into memory (skip
// cache otherwise)."
const MaxCacheLoadBytes = 256 << 20

// Cache is the advisory, read-only-after-mount in-memory copy of (a prefix
// of) the Cortex region. Zero-Scan returning OK without a populated cache
// still yields a usable, degraded volume (spec §4.11).
type Cache struct {
	Anchors   []*Anchor
	Populated bool
}

// Load reads up to min(regionBytes, MaxCacheLoadBytes) bytes of the Cortex
// region starting at start and parses it into whole anchors. A read
// failure is non-fatal: the cache is simply left unpopulated.
func Load(h hal.HAL, start addr.Addr, regionBytes uint64) *Cache {
	loadBytes := regionBytes
	if loadBytes > MaxCacheLoadBytes {
		loadBytes = MaxCacheLoadBytes
	}
	nAnchors := loadBytes / AnchorSize
	if nAnchors == 0 {
		return &Cache{}
	}
	buf := make([]byte, nAnchors*AnchorSize)
	sectorSize := h.Capabilities().LogicalBlockSize
	sectors := uint32(len(buf)) / sectorSize
	if sectors == 0 {
		return &Cache{}
	}
	if err := hal.SyncIOLarge(h, hal.OpRead, start, buf[:uint64(sectors)*uint64(sectorSize)], sectorSize); err != nil {
		return &Cache{}
	}

	anchors := make([]*Anchor, 0, nAnchors)
	for i := uint64(0); i < nAnchors; i++ {
		off := i * AnchorSize
		a, ok, err := FromBytes(buf[off : off+AnchorSize])
		if err != nil || !ok {
			continue
		}
		anchors = append(anchors, a)
	}
	return &Cache{Anchors: anchors, Populated: true}
}

// VerifyHealRoot implements §4.10.2: read the first Cortex block, check the
// root anchor's CRC and identity, and (read-write only) rebuild it from
// genesis if corrupt.
func VerifyHealRoot(h hal.HAL, cortexStart addr.Addr, blockSize uint32, readOnly bool, nowNS uint64) (*Anchor, error) {
	sectorSize := h.Capabilities().LogicalBlockSize
	sectors := blockSize / sectorSize
	if sectors == 0 {
		sectors = 1
	}
	buf := make([]byte, int(sectors)*int(sectorSize))
	if err := h.SyncIO(hal.OpRead, cortexStart, buf, sectors); err != nil {
		return nil, herr.Wrap(herr.HWIO, err)
	}

	a, crcOK, err := FromBytes(buf[:AnchorSize])
	if err != nil {
		return nil, err
	}

	if crcOK {
		if a.SeedID != RootSeedID || !a.DataClass.Has(DataClassValid) || !a.DataClass.Has(DataClassVolStatic) {
			return nil, herr.New(herr.NotFound, "cortex: root anchor is a tombstone")
		}
		return a, nil
	}

	if readOnly {
		return nil, herr.New(herr.NotFound, "cortex: root anchor corrupt, read-only mount cannot rebuild")
	}

	root := NewRootAnchor(nowNS)
	serialized := root.ToBytes()
	copy(buf, serialized)
	if err := h.SyncIO(hal.OpWrite, cortexStart, buf, sectors); err != nil {
		return nil, herr.Wrap(herr.HWIO, err)
	}
	if err := h.Barrier(); err != nil {
		return nil, herr.Wrap(herr.HWIO, err)
	}

	verify := make([]byte, int(sectors)*int(sectorSize))
	if err := h.SyncIO(hal.OpRead, cortexStart, verify, sectors); err != nil {
		return nil, herr.Wrap(herr.HWIO, err)
	}
	if !bytesEqual(verify[:len(serialized)], serialized) {
		return nil, herr.New(herr.HWIO, "cortex: root anchor read-back verification failed")
	}
	return root, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
