// Package cortex implements the Anchor and Block Header on-disk structures
// (spec §3, §6) and the Cortex metadata-region cache used by the mount
// pipeline and Zero-Scan reconstruction (C11).
package cortex

import (
	"encoding/binary"
	"fmt"

	"github.com/hn4/hydra-nexus/internal/addr"
)

// DataClass is the bitfield carried in an anchor's data_class word.
type DataClass uint64

const (
	DataClassValid     DataClass = 1 << 0
	DataClassTombstone DataClass = 1 << 1
	DataClassVolStatic DataClass = 1 << 2
)

func (d DataClass) Has(bit DataClass) bool { return d&bit != 0 }

// InlineBufferSize is the fixed size of an anchor's inline data region.
const InlineBufferSize = 64

// AnchorSize is the fixed on-disk size of one Cortex entry.
const AnchorSize = 16 + 16 + 8 + 6 + 2 + 8 + 8 + 4 + 4 + 8 + InlineBufferSize + 4

// Anchor is a content-addressed record describing a file's placement
// parameters (spec §3, §GLOSSARY).
type Anchor struct {
	SeedID        addr.U128
	PublicID      addr.U128
	GravityCenter uint64
	OrbitVector   uint64 // low 48 bits significant
	FractalScale  uint16
	Mass          uint64
	DataClass     DataClass
	Permissions   uint32
	CreateClock   uint32
	ModClock      uint64
	InlineBuffer  [InlineBufferSize]byte
	Checksum      uint32
}

const (
	aOffSeedID        = 0
	aOffPublicID       = 16
	aOffGravityCenter = 32
	aOffOrbitVector   = 40 // 6 bytes
	aOffFractalScale  = 46
	aOffMass          = 48
	aOffDataClass     = 56
	aOffPermissions   = 64
	aOffCreateClock   = 68
	aOffModClock      = 72
	aOffInlineBuffer  = 80
	aOffChecksum      = aOffInlineBuffer + InlineBufferSize
)

// crcCoverageEnd is the byte offset up to which the anchor checksum is
// computed; the inline buffer is excluded from CRC even though it sits
// before the checksum field in the wire layout (spec §3, §4.10.2).
const crcCoverageEnd = aOffInlineBuffer

// ToBytes serializes the anchor, computing Checksum over the fixed header
// fields only (the inline buffer is excluded).
func (a *Anchor) ToBytes() []byte {
	b := make([]byte, AnchorSize)
	seed := a.SeedID.Bytes()
	copy(b[aOffSeedID:aOffSeedID+16], seed[:])
	pub := a.PublicID.Bytes()
	copy(b[aOffPublicID:aOffPublicID+16], pub[:])
	binary.LittleEndian.PutUint64(b[aOffGravityCenter:], a.GravityCenter)
	put48(b[aOffOrbitVector:aOffOrbitVector+6], a.OrbitVector)
	binary.LittleEndian.PutUint16(b[aOffFractalScale:], a.FractalScale)
	binary.LittleEndian.PutUint64(b[aOffMass:], a.Mass)
	binary.LittleEndian.PutUint64(b[aOffDataClass:], uint64(a.DataClass))
	binary.LittleEndian.PutUint32(b[aOffPermissions:], a.Permissions)
	binary.LittleEndian.PutUint32(b[aOffCreateClock:], a.CreateClock)
	binary.LittleEndian.PutUint64(b[aOffModClock:], a.ModClock)
	copy(b[aOffInlineBuffer:aOffInlineBuffer+InlineBufferSize], a.InlineBuffer[:])

	crc := addr.CRC32C(0, b[0:crcCoverageEnd])
	binary.LittleEndian.PutUint32(b[aOffChecksum:], crc)
	return b
}

// FromBytes decodes an anchor and reports whether its checksum validates.
func FromBytes(b []byte) (*Anchor, bool, error) {
	if len(b) < AnchorSize {
		return nil, false, fmt.Errorf("cortex: anchor buffer too small: %d < %d", len(b), AnchorSize)
	}
	a := &Anchor{
		SeedID:        addr.U128FromBytes(b[aOffSeedID : aOffSeedID+16]),
		PublicID:      addr.U128FromBytes(b[aOffPublicID : aOffPublicID+16]),
		GravityCenter: binary.LittleEndian.Uint64(b[aOffGravityCenter:]),
		OrbitVector:   get48(b[aOffOrbitVector : aOffOrbitVector+6]),
		FractalScale:  binary.LittleEndian.Uint16(b[aOffFractalScale:]),
		Mass:          binary.LittleEndian.Uint64(b[aOffMass:]),
		DataClass:     DataClass(binary.LittleEndian.Uint64(b[aOffDataClass:])),
		Permissions:   binary.LittleEndian.Uint32(b[aOffPermissions:]),
		CreateClock:   binary.LittleEndian.Uint32(b[aOffCreateClock:]),
		ModClock:      binary.LittleEndian.Uint64(b[aOffModClock:]),
	}
	copy(a.InlineBuffer[:], b[aOffInlineBuffer:aOffInlineBuffer+InlineBufferSize])
	a.Checksum = binary.LittleEndian.Uint32(b[aOffChecksum:])

	want := addr.CRC32C(0, b[0:crcCoverageEnd])
	return a, want == a.Checksum, nil
}

func put48(b []byte, v uint64) {
	for i := 0; i < 6; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func get48(b []byte) uint64 {
	var v uint64
	for i := 0; i < 6; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// RootSeedID is the all-ones seed_id reserved for the volume's root anchor
// (spec §4.10.2).
var RootSeedID = addr.U128{Hi: ^uint64(0), Lo: ^uint64(0)}

// NewRootAnchor builds a fresh genesis root anchor: seed_id all-ones,
// VOL_STATIC|VALID, full permissions, the given timestamp, and the inline
// label "ROOT".
func NewRootAnchor(nowNS uint64) *Anchor {
	a := &Anchor{
		SeedID:      RootSeedID,
		PublicID:    RootSeedID,
		DataClass:   DataClassValid | DataClassVolStatic,
		Permissions: 0o777,
		CreateClock: uint32(nowNS / 1e9),
		ModClock:    nowNS,
	}
	copy(a.InlineBuffer[:], []byte("ROOT"))
	return a
}
