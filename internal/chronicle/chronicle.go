// Package chronicle stubs the external collaborator named in spec.md
// §1/§GLOSSARY: "the Chronicle (immutable audit log) — only its
// integrity-verify hook is used" by the core. HN4 treats the Chronicle
// itself (append path, retention, compaction) as out of scope, but gives
// the hook a concrete hash-chain implementation plus an archival writer so
// the mount pipeline has something real to call (spec §4.10 step 5).
package chronicle

import (
	"encoding/binary"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
)

// SegmentSize is the unit the hash chain is computed over.
const SegmentSize = 4096

// Verifier is the Chronicle integrity-verify hook the mount pipeline calls
// at phase 5.
type Verifier interface {
	Verify(h hal.HAL, start addr.Addr, sizeBytes uint64) error
}

// HashChain verifies a region as a sequence of fixed-size segments, each
// trailing 4 bytes holding CRC32C(previous segment's chain value, this
// segment's payload) — the same inverted-seed chaining convention used
// throughout the engine's on-disk checksums.
type HashChain struct{}

func (HashChain) Verify(h hal.HAL, start addr.Addr, sizeBytes uint64) error {
	if sizeBytes == 0 {
		return nil
	}
	sectorSize := h.Capabilities().LogicalBlockSize
	nSegments := (sizeBytes + SegmentSize - 1) / SegmentSize

	var chain uint32
	cur := start
	for i := uint64(0); i < nSegments; i++ {
		segBytes := uint64(SegmentSize)
		if i == nSegments-1 && sizeBytes%SegmentSize != 0 {
			segBytes = sizeBytes % SegmentSize
		}
		if segBytes < 4 {
			return herr.New(herr.DataRot, "chronicle: segment %d too small to carry a chain checksum", i)
		}
		sectors := uint32((segBytes + uint64(sectorSize) - 1) / uint64(sectorSize))
		buf := make([]byte, uint64(sectors)*uint64(sectorSize))
		if err := h.SyncIO(hal.OpRead, cur, buf, sectors); err != nil {
			return herr.Wrap(herr.HWIO, err)
		}

		if allZero(buf[:segBytes]) {
			// Chronicle is append-only; anything past the last written
			// segment is still the mkfs-time zero fill, not corruption.
			return nil
		}

		payload := buf[:segBytes-4]
		want := addr.CRC32C(chain, payload)
		got := binary.LittleEndian.Uint32(buf[segBytes-4 : segBytes])
		if want != got {
			return herr.New(herr.DataRot, "chronicle: hash-chain mismatch at segment %d", i)
		}
		chain = want

		next, err := cur.Add(uint64(sectors))
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// WriteSegment stamps payload with its chain checksum and returns the new
// chain value, for callers (tests, the archival writer) constructing a
// Chronicle region that HashChain.Verify will accept.
func WriteSegment(chain uint32, payload []byte) (segment []byte, nextChain uint32) {
	seg := make([]byte, len(payload)+4)
	copy(seg, payload)
	sum := addr.CRC32C(chain, payload)
	binary.LittleEndian.PutUint32(seg[len(payload):], sum)
	return seg, sum
}
