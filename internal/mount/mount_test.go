package mount

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/format"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/superblock"
)

const testCapacityBytes = 128 << 20
const testSectorSize = 4096

func formatTestVolume(t *testing.T) *hal.MemHAL {
	t.Helper()
	h := hal.NewMemHAL(testCapacityBytes, testSectorSize, 0, 0)
	_, err := format.Format(h, format.Options{Profile: superblock.ProfileGeneric, VolumeLabel: "mount-test"})
	require.NoError(t, err, "formatting the fixture volume must succeed")
	return h
}

// readMirror loads and decodes one mirror's superblock image.
func readMirror(t *testing.T, h hal.HAL, capacityBytes uint64, blockSize uint32, m superblock.Mirror) *superblock.Superblock {
	t.Helper()
	north, east, west, south, southEnabled := superblock.MirrorLBAsForDevice(capacityBytes, testSectorSize, blockSize, h.Capabilities().HWFlags)
	lba := map[superblock.Mirror]struct {
		a addr.Addr
		ok bool
	}{
		superblock.North: {north, true},
		superblock.East:  {east, true},
		superblock.West:  {west, true},
		superblock.South: {south, southEnabled},
	}[m]
	if !lba.ok {
		t.Fatalf("mirror %v not enabled on this device", m)
	}
	sectors := uint32(superblock.Size) / testSectorSize
	if uint32(superblock.Size)%testSectorSize != 0 {
		sectors++
	}
	buf := make([]byte, int(sectors)*testSectorSize)
	if err := h.SyncIO(hal.OpRead, lba.a, buf, sectors); err != nil {
		t.Fatal(err)
	}
	sb, _, err := superblock.FromBytes(buf[:superblock.Size])
	if err != nil {
		t.Fatal(err)
	}
	return sb
}

// writeMirror re-serializes sb and writes it to mirror m.
func writeMirror(t *testing.T, h hal.HAL, capacityBytes uint64, blockSize uint32, m superblock.Mirror, sb *superblock.Superblock) {
	t.Helper()
	north, east, west, south, southEnabled := superblock.MirrorLBAsForDevice(capacityBytes, testSectorSize, blockSize, h.Capabilities().HWFlags)
	lba := map[superblock.Mirror]struct {
		a addr.Addr
		ok bool
	}{
		superblock.North: {north, true},
		superblock.East:  {east, true},
		superblock.West:  {west, true},
		superblock.South: {south, southEnabled},
	}[m]
	if !lba.ok {
		t.Fatalf("mirror %v not enabled on this device", m)
	}
	sectors := uint32(superblock.Size) / testSectorSize
	if uint32(superblock.Size)%testSectorSize != 0 {
		sectors++
	}
	buf := make([]byte, int(sectors)*testSectorSize)
	copy(buf, sb.ToBytes())
	if err := h.SyncIO(hal.OpWrite, lba.a, buf, sectors); err != nil {
		t.Fatal(err)
	}
}

func TestMountRoundTrip(t *testing.T) {
	h := formatTestVolume(t)

	vol, err := Mount(h, Params{})
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if vol.ReadOnly {
		t.Fatal("expected a freshly formatted volume to mount read-write")
	}
	if vol.Bitmap == nil || vol.QMask == nil || vol.Alloc == nil {
		t.Fatal("expected bitmap, q-mask, and allocator to be published")
	}
	if vol.SB.CopyGeneration != 2 {
		t.Fatalf("copy generation = %d, want 2 after dirty-sync bumps it once", vol.SB.CopyGeneration)
	}
	if vol.VolPanic {
		t.Fatal("fresh volume should not panic")
	}
}

func TestMountRefusesThermalCritical(t *testing.T) {
	h := formatTestVolume(t)
	h.SetTemperatureC(90)

	_, err := Mount(h, Params{})
	if herr.KindOf(err) != herr.ThermalCritical {
		t.Fatalf("expected THERMAL_CRITICAL, got %v", err)
	}
}

func TestMountForcesReadOnlyBetweenThermalThresholds(t *testing.T) {
	h := formatTestVolume(t)
	h.SetTemperatureC(80)

	vol, err := Mount(h, Params{})
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if !vol.ReadOnly {
		t.Fatal("expected temperature between ForceRO and Critical to force read-only")
	}
}

func TestMountRefusesLockedVolume(t *testing.T) {
	h := formatTestVolume(t)
	geo := mustGeometry(t, h)
	blockSize := geo.BlockSize

	for _, m := range []superblock.Mirror{superblock.North, superblock.East, superblock.West, superblock.South} {
		sb := readMirror(t, h, testCapacityBytes, blockSize, m)
		sb.StateFlags |= superblock.StateLocked
		writeMirror(t, h, testCapacityBytes, blockSize, m, sb)
	}

	_, mountErr := Mount(h, Params{})
	if herr.KindOf(mountErr) != herr.VolumeLocked {
		t.Fatalf("expected VOLUME_LOCKED, got %v", mountErr)
	}
}

func TestMountDetectsSplitBrainTamper(t *testing.T) {
	h := formatTestVolume(t)
	geo := mustGeometry(t, h)
	blockSize := geo.BlockSize

	east := readMirror(t, h, testCapacityBytes, blockSize, superblock.East)
	east.VolumeUUID.Lo ^= 0xFF
	writeMirror(t, h, testCapacityBytes, blockSize, superblock.East, east)

	_, err := Mount(h, Params{})
	if herr.KindOf(err) != herr.Tampered {
		t.Fatalf("expected TAMPERED on a split-brain UUID mismatch, got %v", err)
	}
}

func TestMountSecondMountAdvancesGeneration(t *testing.T) {
	h := formatTestVolume(t)

	vol1, err := Mount(h, Params{})
	if err != nil {
		t.Fatalf("first mount: %v", err)
	}
	gen1 := vol1.SB.CopyGeneration

	vol2, err := Mount(h, Params{})
	if err != nil {
		t.Fatalf("second mount: %v", err)
	}
	if vol2.SB.CopyGeneration <= gen1 {
		t.Fatalf("expected copy generation to strictly increase across mounts: %d -> %d", gen1, vol2.SB.CopyGeneration)
	}
}

func TestUnmountThenMountAdvancesGenerationByTwo(t *testing.T) {
	h := formatTestVolume(t)

	vol1, err := Mount(h, Params{})
	if err != nil {
		t.Fatalf("first mount: %v", err)
	}
	firstMountGen := vol1.SB.CopyGeneration

	if err := Unmount(h, vol1); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	if !vol1.SB.StateFlags.Has(superblock.StateClean) {
		t.Fatal("expected unmount to stamp StateClean")
	}
	if vol1.SB.StateFlags.Has(superblock.StateDirty) {
		t.Fatal("expected unmount to clear StateDirty")
	}

	vol2, err := Mount(h, Params{})
	if err != nil {
		t.Fatalf("second mount: %v", err)
	}
	if want := firstMountGen + 2; vol2.SB.CopyGeneration != want {
		t.Fatalf("copy generation after unmount+remount = %d, want %d", vol2.SB.CopyGeneration, want)
	}
}

func TestUnmountReadOnlyIsNoOp(t *testing.T) {
	h := formatTestVolume(t)

	vol, err := Mount(h, Params{Flags: FlagReadOnly})
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	genBefore := vol.SB.CopyGeneration

	if err := Unmount(h, vol); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	if vol.SB.CopyGeneration != genBefore {
		t.Fatalf("expected a read-only unmount to leave copy generation untouched: %d -> %d", genBefore, vol.SB.CopyGeneration)
	}
}

func TestMountReadOnlyFlagSuppressesDirtySync(t *testing.T) {
	h := formatTestVolume(t)

	vol, err := Mount(h, Params{Flags: FlagReadOnly})
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if !vol.ReadOnly {
		t.Fatal("expected FlagReadOnly to keep the volume read-only")
	}
	if vol.Alloc != nil && !vol.Alloc.ReadOnly {
		t.Fatal("expected the allocator to inherit read-only state")
	}
	if vol.SB.CopyGeneration != 1 {
		t.Fatalf("copy generation = %d, want 1 (no dirty sync on a read-only mount)", vol.SB.CopyGeneration)
	}
}

func mustGeometry(t *testing.T, h hal.HAL) *format.Geometry {
	t.Helper()
	caps := h.Capabilities()
	geo, err := format.ComputeGeometry(superblock.ProfileGeneric, caps.TotalCapacityBytes, caps.LogicalBlockSize, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	return geo
}
