package superblock

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/hn4/hydra-nexus/internal/addr"
)

func sampleSB() *Superblock {
	return &Superblock{
		Magic:          MagicSB,
		Version:        1,
		BlockSize:      4096,
		VolumeUUID:     addr.U128{Hi: 1, Lo: 2},
		LBAEpochStart:  addr.FromUint64(10),
		LBACortexStart: addr.FromUint64(100),
		LBABitmapStart: addr.FromUint64(200),
		LBAQMaskStart:  addr.FromUint64(300),
		LBAFluxStart:   addr.FromUint64(400),
		LBAHorizonStart: addr.FromUint64(9000),
		LBAStreamStart: addr.FromUint64(9500),
		JournalStart:   addr.FromUint64(9600),
		TotalCapacity:  1 << 30,
		CurrentEpochID: 1,
		CopyGeneration: 1,
		StateFlags:     StateClean | StateMetadataZeroed,
		FormatProfile:  ProfileGeneric,
		EndianTag:      EndianTag,
		VolumeLabel:    "test-vol",
		MagicTail:      MagicTail,
	}
}

func TestSuperblockRoundTrip(t *testing.T) {
	sb := sampleSB()
	raw := sb.ToBytes()
	if len(raw) != Size {
		t.Fatalf("serialized size = %d, want %d", len(raw), Size)
	}
	got, crcOK, err := FromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !crcOK {
		t.Fatal("CRC should validate on freshly serialized superblock")
	}
	if diff := deep.Equal(got, sb); diff != nil {
		t.Fatalf("round trip mismatch: %v", diff)
	}
}

func TestSuperblockCRCDetectsCorruption(t *testing.T) {
	sb := sampleSB()
	raw := sb.ToBytes()
	raw[100] ^= 0xFF
	_, crcOK, err := FromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	if crcOK {
		t.Fatal("expected CRC mismatch after corrupting a payload byte")
	}
}

func TestCleanAndDirtyMutuallyExclusiveDetectable(t *testing.T) {
	sb := sampleSB()
	sb.StateFlags |= StateDirty // now both clean and dirty
	if !sb.StateFlags.Has(StateClean) || !sb.StateFlags.Has(StateDirty) {
		t.Fatal("test setup failed to set both bits")
	}
}

func TestIsPoisoned(t *testing.T) {
	raw := make([]byte, Size)
	Poison(raw)
	if !IsPoisoned(raw) {
		t.Fatal("freshly poisoned buffer should report poisoned")
	}
	raw[0] = 0
	if IsPoisoned(raw) {
		t.Fatal("buffer with altered first word should not report poisoned")
	}
}
