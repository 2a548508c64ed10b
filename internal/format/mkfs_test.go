package format

import (
	"testing"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/cortex"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

func TestFormatWritesReadableMirrors(t *testing.T) {
	h := hal.NewMemHAL(200<<20, 512, 0, 0)
	res, err := Format(h, Options{Profile: superblock.ProfileGeneric, VolumeLabel: "test-vol"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Superblock.VolumeLabel != "test-vol" {
		t.Fatalf("volume label = %q, want test-vol", res.Superblock.VolumeLabel)
	}

	north, east, west, _, _ := superblock.MirrorLBAs(200<<20, 512, res.Geometry.BlockSize)
	sectors := uint32(superblock.Size) / 512
	for _, lba := range []addr.Addr{north, east, west} {
		buf := make([]byte, int(sectors)*512)
		if err := h.SyncIO(hal.OpRead, lba, buf, sectors); err != nil {
			t.Fatal(err)
		}
		sb, crcOK, err := superblock.FromBytes(buf[:superblock.Size])
		if err != nil {
			t.Fatal(err)
		}
		if !crcOK {
			t.Fatal("mirror superblock CRC should validate")
		}
		if sb.VolumeUUID != res.Superblock.VolumeUUID {
			t.Fatal("mirror volume uuid should match the returned superblock")
		}
	}
}

func TestFormatRefusesIncompatibleProfile(t *testing.T) {
	h := hal.NewMemHAL(1<<30, 512, 0, 0) // 1 GiB, too small for ARCHIVE
	_, err := Format(h, Options{Profile: superblock.ProfileArchive})
	if err == nil {
		t.Fatal("expected ARCHIVE format to be refused on a 1 GiB device")
	}
}

func TestFormatGenesisAnchorVerifies(t *testing.T) {
	h := hal.NewMemHAL(200<<20, 512, 0, 0)
	res, err := Format(h, Options{Profile: superblock.ProfileGeneric})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, res.Geometry.BlockSize)
	sectors := res.Geometry.BlockSize / 512
	if err := h.SyncIO(hal.OpRead, res.Geometry.CortexStart, buf, sectors); err != nil {
		t.Fatal(err)
	}
	root, crcOK, err := cortex.FromBytes(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !crcOK || root.SeedID != cortex.RootSeedID {
		t.Fatal("genesis root anchor should pass its CRC and carry the root seed_id")
	}
}
