package hn4

import (
	"testing"

	"github.com/hn4/hydra-nexus/internal/hal"
)

func TestFormatThenMount(t *testing.T) {
	h := hal.NewMemHAL(128<<20, 4096, 0, 0)

	geo, err := Format(h, FormatParams{Profile: ProfileGeneric, VolumeLabel: "facade-test"})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if geo.BlockSize != 4096 {
		t.Fatalf("block size = %d, want 4096", geo.BlockSize)
	}

	vol, err := Mount(h, MountParams{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if vol.ReadOnly() {
		t.Fatal("expected a freshly formatted volume to mount read-write")
	}
	if vol.Panicked() {
		t.Fatal("fresh volume should not panic")
	}
	if vol.Label() != "facade-test" {
		t.Fatalf("label = %q, want %q", vol.Label(), "facade-test")
	}
}

func TestVolumeAllocAndFreeBlock(t *testing.T) {
	h := hal.NewMemHAL(128<<20, 4096, 0, 0)
	if _, err := Format(h, FormatParams{Profile: ProfileGeneric}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	vol, err := Mount(h, MountParams{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	lba, err := vol.AllocBlock(1, 2, 0, 3, IntentDefault)
	if err != nil {
		t.Fatalf("AllocBlock: %v", err)
	}

	if err := vol.FreeBlock(lba); err != nil {
		t.Fatalf("FreeBlock: %v", err)
	}
}

func TestUnmountThenMountAdvancesGenerationByTwo(t *testing.T) {
	h := hal.NewMemHAL(128<<20, 4096, 0, 0)
	if _, err := Format(h, FormatParams{Profile: ProfileGeneric}); err != nil {
		t.Fatalf("Format: %v", err)
	}

	vol1, err := Mount(h, MountParams{})
	if err != nil {
		t.Fatalf("first mount: %v", err)
	}
	firstMountGen := vol1.v.SB.CopyGeneration

	if err := vol1.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}

	vol2, err := Mount(h, MountParams{})
	if err != nil {
		t.Fatalf("second mount: %v", err)
	}
	if want := firstMountGen + 2; vol2.v.SB.CopyGeneration != want {
		t.Fatalf("copy generation after unmount+remount = %d, want %d", vol2.v.SB.CopyGeneration, want)
	}
}

func TestMountReadOnlyFlagDisablesAlloc(t *testing.T) {
	h := hal.NewMemHAL(128<<20, 4096, 0, 0)
	if _, err := Format(h, FormatParams{Profile: ProfileGeneric}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	vol, err := Mount(h, MountParams{Flags: MountReadOnly})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !vol.ReadOnly() {
		t.Fatal("expected MountReadOnly to force the volume read-only")
	}
	if _, err := vol.AllocBlock(1, 1, 0, 1, IntentDefault); err == nil {
		t.Fatal("expected AllocBlock to refuse on a read-only volume")
	}
}
