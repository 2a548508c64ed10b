// Package qmask implements Cartography (the Quality Mask): the 2-bit per
// block media health map that gates allocation intent (spec §4.7).
package qmask

import "fmt"

// Quality is one of the four 2-bit media tiers.
type Quality uint8

const (
	Toxic  Quality = 0b00
	Bronze Quality = 0b01
	Silver Quality = 0b10 // default tier written by mkfs
	Gold   Quality = 0b11
)

func (q Quality) String() string {
	switch q {
	case Toxic:
		return "Toxic"
	case Bronze:
		return "Bronze"
	case Silver:
		return "Silver"
	case Gold:
		return "Gold"
	default:
		return "Unknown"
	}
}

// Intent is the purpose of a block allocation request; Cartography policy
// and the allocator's spillover decisions both key off it.
type Intent int

const (
	IntentDefault Intent = iota
	IntentMetadata
	// IntentLudic is kept as a distinct wire value for CLI/telemetry
	// labeling (GAMING profile workloads); it carries no allocation policy
	// beyond IntentDefault (spec §9 open question, resolved in
	// SPEC_FULL.md §4.3: no distinct Q-mask rule is codified for it).
	IntentLudic
)

// DiskDefaultByte is the on-format fill value for the Q-Mask disk image:
// 0xAA packs four Silver (0b10) entries per byte.
const DiskDefaultByte byte = 0xAA

// Mask is the loaded, host-order-normalized Q-Mask: one 64-bit word holds
// 32 two-bit block entries.
type Mask struct {
	words   []uint64
	nblocks uint64
}

// New builds a Q-Mask covering nblocks blocks, filled with the given
// default tier.
func New(nblocks uint64, fill Quality) *Mask {
	nwords := (nblocks + 31) / 32
	words := make([]uint64, nwords)
	var wordFill uint64
	for i := 0; i < 32; i++ {
		wordFill |= uint64(fill) << (2 * i)
	}
	for i := range words {
		words[i] = wordFill
	}
	return &Mask{words: words, nblocks: nblocks}
}

// FromDiskImage decodes a packed, LSB-first 2-bit-per-block disk image into
// a host-order Mask.
func FromDiskImage(image []byte, nblocks uint64) (*Mask, error) {
	nwords := (nblocks + 31) / 32
	needBytes := nwords * 8
	if uint64(len(image)) < needBytes {
		return nil, fmt.Errorf("qmask: disk image too small: %d bytes, need %d", len(image), needBytes)
	}
	words := make([]uint64, nwords)
	for i := uint64(0); i < nwords; i++ {
		var v uint64
		for b := 0; b < 8; b++ {
			v |= uint64(image[i*8+uint64(b)]) << (8 * b)
		}
		words[i] = v
	}
	return &Mask{words: words, nblocks: nblocks}, nil
}

// ToDiskImage packs the mask back to its on-disk LSB-first form.
func (m *Mask) ToDiskImage() []byte {
	out := make([]byte, len(m.words)*8)
	for i, w := range m.words {
		for b := 0; b < 8; b++ {
			out[i*8+b] = byte(w >> (8 * b))
		}
	}
	return out
}

// Lookup returns the quality tier of block idx.
// word = qmask[block/32]; q = (word >> ((block%32)*2)) & 3 (spec §4.7).
func (m *Mask) Lookup(block uint64) (Quality, error) {
	wordIdx := block / 32
	if wordIdx >= uint64(len(m.words)) {
		return Toxic, fmt.Errorf("qmask: block %d out of range", block)
	}
	shift := (block % 32) * 2
	return Quality((m.words[wordIdx] >> shift) & 3), nil
}

// Permits implements the Cartography acceptance policy: Toxic is always
// refused; Bronze is refused for metadata allocations but allowed for user
// data; Silver/Gold are always allowed.
func Permits(q Quality, intent Intent) bool {
	switch q {
	case Toxic:
		return false
	case Bronze:
		return intent != IntentMetadata
	case Silver, Gold:
		return true
	default:
		return false
	}
}

// NBlocks is the number of tracked blocks.
func (m *Mask) NBlocks() uint64 { return m.nblocks }
