// Package format implements Geometry & format (C6): region layout
// computation from a profile and device capabilities, and the mkfs
// sequence that lays down a fresh volume (spec §4.6).
package format

import (
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

// ProfileSpec is one row of the format profile table (spec §4.6).
type ProfileSpec struct {
	MinCapBytes     uint64 // 0 = no minimum
	MaxCapBytes     uint64 // 0 = no maximum
	DefaultBlockSize uint32
	AlignmentTarget uint64 // bytes; the Flux region's start aligns to this
}

const (
	giB = 1 << 30
	miB = 1 << 20
)

var profileTable = map[superblock.Profile]ProfileSpec{
	superblock.ProfileGeneric:    {DefaultBlockSize: 4096, AlignmentTarget: 1 * miB},
	superblock.ProfileGaming:     {DefaultBlockSize: 4096, AlignmentTarget: 1 * miB},
	superblock.ProfileAI:         {MinCapBytes: 100 * giB, DefaultBlockSize: 65536, AlignmentTarget: 64 * miB},
	superblock.ProfileArchive:    {MinCapBytes: 10 * giB, DefaultBlockSize: 16384, AlignmentTarget: 16 * miB},
	superblock.ProfilePico:       {MaxCapBytes: 2 * giB, DefaultBlockSize: 512, AlignmentTarget: 4096},
	superblock.ProfileSystem:     {DefaultBlockSize: 4096, AlignmentTarget: 1 * miB},
	superblock.ProfileUSB:        {DefaultBlockSize: 4096, AlignmentTarget: 1 * miB},
	superblock.ProfileHyperCloud: {MinCapBytes: 1 * giB, DefaultBlockSize: 4096, AlignmentTarget: 128 * miB},
}

// Lookup returns the profile table row for p.
func Lookup(p superblock.Profile) (ProfileSpec, error) {
	spec, ok := profileTable[p]
	if !ok {
		return ProfileSpec{}, herr.New(herr.InvalidArgument, "format: unknown profile %v", p)
	}
	return spec, nil
}

// CheckCompatibility enforces the profile-specific refusals (spec §4.6):
// PICO is refused on a >2 GiB volume, a >512 B sector, or ZNS media; ARCHIVE
// is refused on NVM media or a <10 GiB volume.
func CheckCompatibility(p superblock.Profile, capacityBytes uint64, sectorSize uint32, isNVM, isZNS bool) error {
	switch p {
	case superblock.ProfilePico:
		if capacityBytes > 2*giB {
			return herr.New(herr.ProfileMismatch, "format: PICO refuses volumes larger than 2 GiB")
		}
		if sectorSize > 512 {
			return herr.New(herr.ProfileMismatch, "format: PICO refuses sector sizes larger than 512 B")
		}
		if isZNS {
			return herr.New(herr.ProfileMismatch, "format: PICO refuses ZNS media")
		}
	case superblock.ProfileArchive:
		if isNVM {
			return herr.New(herr.ProfileMismatch, "format: ARCHIVE refuses NVM media")
		}
		if capacityBytes < 10*giB {
			return herr.New(herr.ProfileMismatch, "format: ARCHIVE refuses volumes smaller than 10 GiB")
		}
	}
	return nil
}

// HorizonFraction is the share of usable capacity reserved for the Horizon
// log, 10% by default and 2% on ARCHIVE (spec §4.6).
func HorizonFraction(p superblock.Profile) (num, den uint64) {
	if p == superblock.ProfileArchive {
		return 2, 100
	}
	return 10, 100
}

// ChronicleSizeBytes is the Chronicle region size, 10 MiB by default and 64
// KiB on PICO (spec §4.6).
func ChronicleSizeBytes(p superblock.Profile) uint64 {
	if p == superblock.ProfilePico {
		return 64 << 10
	}
	return 10 * miB
}
