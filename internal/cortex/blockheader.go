package cortex

import (
	"encoding/binary"
	"fmt"

	"github.com/hn4/hydra-nexus/internal/addr"
)

// BlockMagic tags every data block written by the engine.
var BlockMagic = binary.LittleEndian.Uint32([]byte("HN4B"))

// BlockHeaderSize is the fixed on-disk size of a block header.
const BlockHeaderSize = 4 + 16 + 8

// BlockHeader prefixes every data block: which anchor owns it (well_id)
// and its logical position within that anchor's file (seq_index).
type BlockHeader struct {
	Magic     uint32
	WellID    addr.U128
	SeqIndex  uint64
}

// ToBytes serializes the header.
func (h *BlockHeader) ToBytes() []byte {
	b := make([]byte, BlockHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	well := h.WellID.Bytes()
	copy(b[4:20], well[:])
	binary.LittleEndian.PutUint64(b[20:28], h.SeqIndex)
	return b
}

// BlockHeaderFromBytes decodes a block header.
func BlockHeaderFromBytes(b []byte) (*BlockHeader, error) {
	if len(b) < BlockHeaderSize {
		return nil, fmt.Errorf("cortex: block header buffer too small: %d < %d", len(b), BlockHeaderSize)
	}
	return &BlockHeader{
		Magic:    binary.LittleEndian.Uint32(b[0:4]),
		WellID:   addr.U128FromBytes(b[4:20]),
		SeqIndex: binary.LittleEndian.Uint64(b[20:28]),
	}, nil
}

// Matches reports whether this header claims to belong to (wellID, seq) and
// carries the expected magic, the test Zero-Scan uses to tell a claimed
// block from a valid collision (spec §4.11).
func (h *BlockHeader) Matches(wellID addr.U128, seq uint64) bool {
	return h.Magic == BlockMagic && h.WellID == wellID && h.SeqIndex == seq
}
