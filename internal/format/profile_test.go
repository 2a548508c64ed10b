package format

import (
	"testing"

	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

func TestLookupAllProfilesPresent(t *testing.T) {
	profiles := []superblock.Profile{
		superblock.ProfileGeneric, superblock.ProfileGaming, superblock.ProfileAI,
		superblock.ProfileArchive, superblock.ProfilePico, superblock.ProfileSystem,
		superblock.ProfileUSB, superblock.ProfileHyperCloud,
	}
	for _, p := range profiles {
		if _, err := Lookup(p); err != nil {
			t.Fatalf("profile %v: %v", p, err)
		}
	}
}

func TestCheckCompatibilityPicoRefusals(t *testing.T) {
	if err := CheckCompatibility(superblock.ProfilePico, 4<<30, 512, false, false); herr.KindOf(err) != herr.ProfileMismatch {
		t.Fatal("expected PICO to refuse a >2 GiB volume")
	}
	if err := CheckCompatibility(superblock.ProfilePico, 1<<30, 4096, false, false); herr.KindOf(err) != herr.ProfileMismatch {
		t.Fatal("expected PICO to refuse a >512 B sector")
	}
	if err := CheckCompatibility(superblock.ProfilePico, 1<<30, 512, false, true); herr.KindOf(err) != herr.ProfileMismatch {
		t.Fatal("expected PICO to refuse ZNS media")
	}
	if err := CheckCompatibility(superblock.ProfilePico, 1<<30, 512, false, false); err != nil {
		t.Fatalf("expected PICO to accept a compliant volume, got %v", err)
	}
}

func TestCheckCompatibilityArchiveRefusals(t *testing.T) {
	if err := CheckCompatibility(superblock.ProfileArchive, 20<<30, 4096, true, false); herr.KindOf(err) != herr.ProfileMismatch {
		t.Fatal("expected ARCHIVE to refuse NVM media")
	}
	if err := CheckCompatibility(superblock.ProfileArchive, 1<<30, 4096, false, false); herr.KindOf(err) != herr.ProfileMismatch {
		t.Fatal("expected ARCHIVE to refuse volumes smaller than 10 GiB")
	}
	if err := CheckCompatibility(superblock.ProfileArchive, 20<<30, 4096, false, false); err != nil {
		t.Fatalf("expected ARCHIVE to accept a compliant volume, got %v", err)
	}
}

func TestHorizonFractionArchiveIsSmaller(t *testing.T) {
	n, d := HorizonFraction(superblock.ProfileArchive)
	if float64(n)/float64(d) != 0.02 {
		t.Fatalf("ARCHIVE horizon fraction = %d/%d, want 2/100", n, d)
	}
	n, d = HorizonFraction(superblock.ProfileGeneric)
	if float64(n)/float64(d) != 0.10 {
		t.Fatalf("GENERIC horizon fraction = %d/%d, want 10/100", n, d)
	}
}

func TestChronicleSizePico(t *testing.T) {
	if ChronicleSizeBytes(superblock.ProfilePico) != 64<<10 {
		t.Fatal("PICO Chronicle size should be 64 KiB")
	}
	if ChronicleSizeBytes(superblock.ProfileGeneric) != 10*miB {
		t.Fatal("GENERIC Chronicle size should be 10 MiB")
	}
}
