// Package superblock implements the mirrored, generation-stamped volume
// descriptor (spec §3 "Superblock") and the Cardinal Vote quorum algorithm
// that elects and heals it (spec §4.5).
package superblock

import (
	"encoding/binary"
	"fmt"

	"github.com/hn4/hydra-nexus/internal/addr"
)

// Size is the fixed on-disk superblock size.
const Size = 8192

// MagicSB is the sentinel at offset 0 of every superblock.
var MagicSB = binary.LittleEndian.Uint64([]byte("HN4_SBLK"))

// MagicTail is the sentinel stored at byte offset 220, right after the
// volume label, cross-checked alongside MagicSB by the integrity gate.
var MagicTail = binary.LittleEndian.Uint64([]byte("HN4_TAIL"))

// PoisonWord is the sentinel mkfs/heal stamp into a mirror it has given up
// on (spec §4.5 integrity gate, §4.6 poison-on-failure).
const PoisonWord uint32 = 0xDEADBEEF

// ReplayWindowNS bounds how far apart two mount timestamps may legitimately
// diverge before they are treated as a replay/tamper attempt.
const ReplayWindowNS uint64 = 2_000_000_000 // 2s

// WriteRetryLimit bounds retried writes in the dirty-sync commit path and
// the format poison-on-failure loop.
const WriteRetryLimit = 3

// StateFlag bits (spec §3 state_flags).
type StateFlag uint32

const (
	StateClean           StateFlag = 1 << 0
	StateDirty           StateFlag = 1 << 1
	StateLocked          StateFlag = 1 << 2
	StatePendingWipe      StateFlag = 1 << 3
	StatePanic           StateFlag = 1 << 4
	StateToxic           StateFlag = 1 << 5
	StateDegraded        StateFlag = 1 << 6
	StateMetadataZeroed  StateFlag = 1 << 7
)

func (f StateFlag) Has(bit StateFlag) bool { return f&bit != 0 }

// SupportedIncompat is the mask of incompat_flags bits this build
// understands; any other bit set forces a mount refusal (VERSION_INCOMPAT).
const SupportedIncompat uint32 = 0 // no optional incompat features defined yet

// Profile is the format profile table key (spec §4.6).
type Profile uint32

const (
	ProfileGeneric Profile = iota
	ProfileGaming
	ProfileAI
	ProfileArchive
	ProfilePico
	ProfileSystem
	ProfileUSB
	ProfileHyperCloud
)

func (p Profile) String() string {
	switch p {
	case ProfileGeneric:
		return "GENERIC"
	case ProfileGaming:
		return "GAMING"
	case ProfileAI:
		return "AI"
	case ProfileArchive:
		return "ARCHIVE"
	case ProfilePico:
		return "PICO"
	case ProfileSystem:
		return "SYSTEM"
	case ProfileUSB:
		return "USB"
	case ProfileHyperCloud:
		return "HYPER_CLOUD"
	default:
		return "UNKNOWN"
	}
}

// DeviceTypeTag classifies the underlying HAL device at format time.
type DeviceTypeTag uint32

const (
	DeviceGeneric DeviceTypeTag = iota
	DeviceNVM
	DeviceZNS
	DeviceRotational
)

// EndianTag is the runtime sanity sentinel verified before any I/O (spec
// §4.2): a superblock built on a little-endian host always carries this
// exact value.
const EndianTag uint32 = 0x04030201

// Superblock is the in-core, host-order copy of the 8 KiB on-disk
// descriptor.
type Superblock struct {
	Magic              uint64
	Version            uint32
	BlockSize          uint32
	VolumeUUID         addr.U128
	LBAEpochStart      addr.Addr
	LBACortexStart     addr.Addr
	LBABitmapStart     addr.Addr
	LBAQMaskStart      addr.Addr
	LBAFluxStart       addr.Addr
	LBAHorizonStart    addr.Addr
	LBAStreamStart     addr.Addr
	JournalStart       addr.Addr
	JournalPtr         addr.Addr
	BootMapPtr         addr.Addr
	EpochRingBlockIdx  uint64
	TotalCapacity      uint64
	CurrentEpochID     uint64
	CopyGeneration     uint64
	LastMountTime      uint64
	StateFlags         StateFlag
	CompatFlags        uint32
	IncompatFlags      uint32
	ROCompatFlags      uint32
	MountIntent        uint32
	DirtyBits          uint32
	FormatProfile      Profile
	DeviceTypeTag      DeviceTypeTag
	EndianTag          uint32
	VolumeLabel        string
	MagicTail          uint64
	LastJournalSeq     uint64
}

const (
	offMagic             = 0
	offVersion           = 8
	offBlockSize         = 12
	offVolumeUUID        = 16
	offLBAEpochStart     = 32
	offLBACortexStart    = 40
	offLBABitmapStart    = 48
	offLBAQMaskStart     = 56
	offLBAFluxStart      = 64
	offLBAHorizonStart   = 72
	offLBAStreamStart    = 80
	offJournalStart      = 88
	offJournalPtr        = 96
	offBootMapPtr        = 104
	offEpochRingBlockIdx = 112
	offTotalCapacity     = 120
	offCurrentEpochID    = 128
	offCopyGeneration    = 136
	offLastMountTime     = 144
	offStateFlags        = 152
	offCompatFlags       = 156
	offIncompatFlags     = 160
	offROCompatFlags     = 164
	offMountIntent       = 168
	offDirtyBits         = 172
	offFormatProfile     = 176
	offDeviceTypeTag     = 180
	offEndianTag         = 184
	offVolumeLabel       = 188 // 32 bytes
	offMagicTail         = 220
	offLastJournalSeq    = 228
	offCRC               = Size - 4
)

// ToBytes serializes sb to its little-endian on-disk image, including the
// trailing CRC32C over bytes [0, Size-4).
func (sb *Superblock) ToBytes() []byte {
	b := make([]byte, Size)
	binary.LittleEndian.PutUint64(b[offMagic:], sb.Magic)
	binary.LittleEndian.PutUint32(b[offVersion:], sb.Version)
	binary.LittleEndian.PutUint32(b[offBlockSize:], sb.BlockSize)
	uuidBytes := sb.VolumeUUID.Bytes()
	copy(b[offVolumeUUID:offVolumeUUID+16], uuidBytes[:])
	putAddr(b, offLBAEpochStart, sb.LBAEpochStart)
	putAddr(b, offLBACortexStart, sb.LBACortexStart)
	putAddr(b, offLBABitmapStart, sb.LBABitmapStart)
	putAddr(b, offLBAQMaskStart, sb.LBAQMaskStart)
	putAddr(b, offLBAFluxStart, sb.LBAFluxStart)
	putAddr(b, offLBAHorizonStart, sb.LBAHorizonStart)
	putAddr(b, offLBAStreamStart, sb.LBAStreamStart)
	putAddr(b, offJournalStart, sb.JournalStart)
	putAddr(b, offJournalPtr, sb.JournalPtr)
	putAddr(b, offBootMapPtr, sb.BootMapPtr)
	binary.LittleEndian.PutUint64(b[offEpochRingBlockIdx:], sb.EpochRingBlockIdx)
	binary.LittleEndian.PutUint64(b[offTotalCapacity:], sb.TotalCapacity)
	binary.LittleEndian.PutUint64(b[offCurrentEpochID:], sb.CurrentEpochID)
	binary.LittleEndian.PutUint64(b[offCopyGeneration:], sb.CopyGeneration)
	binary.LittleEndian.PutUint64(b[offLastMountTime:], sb.LastMountTime)
	binary.LittleEndian.PutUint32(b[offStateFlags:], uint32(sb.StateFlags))
	binary.LittleEndian.PutUint32(b[offCompatFlags:], sb.CompatFlags)
	binary.LittleEndian.PutUint32(b[offIncompatFlags:], sb.IncompatFlags)
	binary.LittleEndian.PutUint32(b[offROCompatFlags:], sb.ROCompatFlags)
	binary.LittleEndian.PutUint32(b[offMountIntent:], sb.MountIntent)
	binary.LittleEndian.PutUint32(b[offDirtyBits:], sb.DirtyBits)
	binary.LittleEndian.PutUint32(b[offFormatProfile:], uint32(sb.FormatProfile))
	binary.LittleEndian.PutUint32(b[offDeviceTypeTag:], uint32(sb.DeviceTypeTag))
	binary.LittleEndian.PutUint32(b[offEndianTag:], sb.EndianTag)
	label, _ := stringToFixedASCII(sb.VolumeLabel, 32)
	copy(b[offVolumeLabel:offVolumeLabel+32], label)
	binary.LittleEndian.PutUint64(b[offMagicTail:], sb.MagicTail)
	binary.LittleEndian.PutUint64(b[offLastJournalSeq:], sb.LastJournalSeq)

	crc := addr.CRC32C(0, b[0:offCRC])
	binary.LittleEndian.PutUint32(b[offCRC:], crc)
	return b
}

func putAddr(b []byte, off int, a addr.Addr) {
	v := a.Bytes()
	copy(b[off:off+8], v[:8])
}

// FromBytes parses and CRC-verifies a serialized superblock image. The
// bool result is false when the trailing CRC does not match.
func FromBytes(b []byte) (*Superblock, bool, error) {
	if len(b) != Size {
		return nil, false, fmt.Errorf("superblock: expected %d bytes, got %d", Size, len(b))
	}
	want := addr.CRC32C(0, b[0:offCRC])
	got := binary.LittleEndian.Uint32(b[offCRC:])

	sb := &Superblock{
		Magic:             binary.LittleEndian.Uint64(b[offMagic:]),
		Version:           binary.LittleEndian.Uint32(b[offVersion:]),
		BlockSize:         binary.LittleEndian.Uint32(b[offBlockSize:]),
		VolumeUUID:        addr.U128FromBytes(b[offVolumeUUID : offVolumeUUID+16]),
		LBAEpochStart:     addr.FromBytes(b[offLBAEpochStart:]),
		LBACortexStart:    addr.FromBytes(b[offLBACortexStart:]),
		LBABitmapStart:    addr.FromBytes(b[offLBABitmapStart:]),
		LBAQMaskStart:     addr.FromBytes(b[offLBAQMaskStart:]),
		LBAFluxStart:      addr.FromBytes(b[offLBAFluxStart:]),
		LBAHorizonStart:   addr.FromBytes(b[offLBAHorizonStart:]),
		LBAStreamStart:    addr.FromBytes(b[offLBAStreamStart:]),
		JournalStart:      addr.FromBytes(b[offJournalStart:]),
		JournalPtr:        addr.FromBytes(b[offJournalPtr:]),
		BootMapPtr:        addr.FromBytes(b[offBootMapPtr:]),
		EpochRingBlockIdx: binary.LittleEndian.Uint64(b[offEpochRingBlockIdx:]),
		TotalCapacity:     binary.LittleEndian.Uint64(b[offTotalCapacity:]),
		CurrentEpochID:    binary.LittleEndian.Uint64(b[offCurrentEpochID:]),
		CopyGeneration:    binary.LittleEndian.Uint64(b[offCopyGeneration:]),
		LastMountTime:     binary.LittleEndian.Uint64(b[offLastMountTime:]),
		StateFlags:        StateFlag(binary.LittleEndian.Uint32(b[offStateFlags:])),
		CompatFlags:       binary.LittleEndian.Uint32(b[offCompatFlags:]),
		IncompatFlags:     binary.LittleEndian.Uint32(b[offIncompatFlags:]),
		ROCompatFlags:     binary.LittleEndian.Uint32(b[offROCompatFlags:]),
		MountIntent:       binary.LittleEndian.Uint32(b[offMountIntent:]),
		DirtyBits:         binary.LittleEndian.Uint32(b[offDirtyBits:]),
		FormatProfile:     Profile(binary.LittleEndian.Uint32(b[offFormatProfile:])),
		DeviceTypeTag:     DeviceTypeTag(binary.LittleEndian.Uint32(b[offDeviceTypeTag:])),
		EndianTag:         binary.LittleEndian.Uint32(b[offEndianTag:]),
		VolumeLabel:       fixedASCIIToString(b[offVolumeLabel : offVolumeLabel+32]),
		MagicTail:         binary.LittleEndian.Uint64(b[offMagicTail:]),
		LastJournalSeq:    binary.LittleEndian.Uint64(b[offLastJournalSeq:]),
	}
	return sb, want == got, nil
}

func stringToFixedASCII(s string, n int) ([]byte, error) {
	b := make([]byte, n)
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	for i, c := range r {
		if c > 255 {
			return nil, fmt.Errorf("superblock: non-ASCII character in label %q", s)
		}
		b[i] = byte(c)
	}
	return b, nil
}

func fixedASCIIToString(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

// IsPoisoned reports whether the first 16 bytes of a raw superblock image
// match the poison pattern written when a mirror is known-bad (spec §4.5
// integrity gate: "first 16 bytes are not the poison pattern 0xDEADBEEF
// repeated, else fail WIPE_PENDING").
func IsPoisoned(raw []byte) bool {
	if len(raw) < 16 {
		return false
	}
	for i := 0; i < 16; i += 4 {
		if binary.LittleEndian.Uint32(raw[i:i+4]) != PoisonWord {
			return false
		}
	}
	return true
}

// Poison overwrites a raw superblock-sized buffer's first 16 bytes (four
// copies of the sentinel, the pattern IsPoisoned looks for) and its last u32
// with the poison sentinel, as done to every mirror on a failed final commit
// (spec §4.6).
func Poison(raw []byte) {
	if len(raw) < 4 {
		return
	}
	for i := 0; i < 16 && i+4 <= len(raw); i += 4 {
		binary.LittleEndian.PutUint32(raw[i:i+4], PoisonWord)
	}
	binary.LittleEndian.PutUint32(raw[len(raw)-4:], PoisonWord)
}
