package superblock

import (
	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
	"github.com/hn4/hydra-nexus/internal/hnlog"
	"github.com/sirupsen/logrus"
)

// Mirror names North/East/West/South mirror a superblock copy's role in the
// Cardinal Vote (spec §4.5).
type Mirror int

const (
	North Mirror = iota
	East
	West
	South
)

func (m Mirror) String() string {
	return [...]string{"North", "East", "West", "South"}[m]
}

// MirrorLBAs computes the four candidate mirror LBAs from total device
// capacity in bytes, the logical sector size, and the superblock's block
// size. South is reported as (addr.Zero, false) when disabled (spec §4.5).
func MirrorLBAs(capacityBytes uint64, sectorSize, blockSize uint32) (north, east, west, south addr.Addr, southEnabled bool) {
	north = addr.FromUint64(0)
	east = bytesToLBA(alignUpBytes(ceilFrac(capacityBytes, 33, 100), uint64(blockSize)), sectorSize)
	west = bytesToLBA(alignUpBytes(ceilFrac(capacityBytes, 66, 100), uint64(blockSize)), sectorSize)

	sbAligned := alignUpBytes(Size, uint64(blockSize))
	southEnabled = capacityBytes >= 16*sbAligned
	if southEnabled {
		southOff := alignDownBytes(capacityBytes-sbAligned, uint64(blockSize))
		south = bytesToLBA(southOff, sectorSize)
	}
	return
}

// MirrorLBAsForDevice additionally disables South on ZNS-native media.
func MirrorLBAsForDevice(capacityBytes uint64, sectorSize, blockSize uint32, hwFlags hal.HWFlag) (north, east, west, south addr.Addr, southEnabled bool) {
	north, east, west, south, southEnabled = MirrorLBAs(capacityBytes, sectorSize, blockSize)
	if hwFlags.Has(hal.HWFlagZNSNative) {
		southEnabled = false
	}
	return
}

func ceilFrac(total uint64, num, den uint64) uint64 {
	return (total*num + den - 1) / den
}

func alignUpBytes(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

func alignDownBytes(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return v / align * align
}

func bytesToLBA(off uint64, sectorSize uint32) addr.Addr {
	if sectorSize == 0 {
		return addr.FromUint64(0)
	}
	return addr.FromUint64(off / uint64(sectorSize))
}

// Candidate is one read attempt against a mirror slot.
type Candidate struct {
	Mirror Mirror
	LBA    addr.Addr
	SB     *Superblock
	Valid  bool
	Reason error
}

// candidateBlockSizes is the set of block sizes probed for each mirror
// beyond North, since a mirror written under a different historical
// block_size must still be locatable (spec §4.5 election).
func candidateBlockSizes(electedBlockSize uint32) []uint32 {
	sizes := []uint32{512, 4096, 16384, 65536}
	if electedBlockSize != 0 {
		sizes = append(sizes, electedBlockSize)
	}
	return sizes
}

func readCandidate(h hal.HAL, m Mirror, lba addr.Addr) Candidate {
	sectorSize := h.Capabilities().LogicalBlockSize
	sectors := Size / sectorSize
	if Size%sectorSize != 0 {
		sectors++
	}
	buf := make([]byte, int(sectors)*int(sectorSize))
	if err := h.SyncIO(hal.OpRead, lba, buf, sectors); err != nil {
		return Candidate{Mirror: m, LBA: lba, Reason: herr.Wrap(herr.HWIO, err)}
	}
	raw := buf[:Size]

	if IsPoisoned(raw) {
		return Candidate{Mirror: m, LBA: lba, Reason: herr.New(herr.WipePending, "mirror %s is poisoned", m)}
	}
	sb, crcOK, err := FromBytes(raw)
	if err != nil {
		return Candidate{Mirror: m, LBA: lba, Reason: err}
	}
	if sb.Magic != MagicSB || sb.MagicTail != MagicTail {
		return Candidate{Mirror: m, LBA: lba, Reason: herr.New(herr.BadSuperblock, "mirror %s: magic mismatch", m)}
	}
	if sb.VolumeUUID.IsZero() {
		return Candidate{Mirror: m, LBA: lba, Reason: herr.New(herr.BadSuperblock, "mirror %s: zero volume uuid", m)}
	}
	if !crcOK {
		return Candidate{Mirror: m, LBA: lba, Reason: herr.New(herr.BadSuperblock, "mirror %s: CRC mismatch", m)}
	}
	return Candidate{Mirror: m, LBA: lba, SB: sb, Valid: true}
}

// ElectionResult is the outcome of a Cardinal Vote.
type ElectionResult struct {
	Elected     *Superblock
	Candidates  []Candidate
	Degraded    bool
}

// Elect scans North first, then East/West/(South), picking the newest valid
// mirror and detecting split-brain/tamper (spec §4.5).
func Elect(h hal.HAL, northLBA, eastLBA, westLBA, southLBA addr.Addr, southEnabled bool) (*ElectionResult, error) {
	order := []struct {
		m   Mirror
		lba addr.Addr
		ok  bool
	}{
		{North, northLBA, true},
		{East, eastLBA, true},
		{West, westLBA, true},
		{South, southLBA, southEnabled},
	}

	var candidates []Candidate
	var elected *Candidate
	var maxGen uint64
	var maxTS uint64

	for _, o := range order {
		if !o.ok {
			continue
		}
		var c Candidate
		if elected == nil || o.m == North {
			c = readCandidate(h, o.m, o.lba)
		} else {
			c = probeAtKnownOrVariableBlockSize(h, o.m, o.lba, elected)
		}
		candidates = append(candidates, c)
		if !c.Valid {
			continue
		}

		isNewer := false
		switch {
		case elected == nil:
			isNewer = true
		case c.SB.CopyGeneration > maxGen:
			if c.SB.LastMountTime+ReplayWindowNS < maxTS {
				// replay guard: a higher generation with an implausibly
				// old timestamp is rejected rather than trusted.
				hnlog.Tamper("cardinal vote: rejecting higher-generation mirror with stale timestamp (replay guard)", logrus.Fields{"mirror": c.Mirror.String()})
			} else {
				isNewer = true
			}
		case c.SB.CopyGeneration == maxGen:
			if c.SB.LastMountTime > maxTS && c.SB.LastMountTime-maxTS <= ReplayWindowNS {
				isNewer = true
			}
		}

		if isNewer {
			cc := c
			elected = &cc
			maxGen = c.SB.CopyGeneration
			maxTS = c.SB.LastMountTime
		}
	}

	if elected == nil {
		return nil, herr.New(herr.BadSuperblock, "cardinal vote: no valid superblock mirror found")
	}

	// Split-brain is checked across every pair of valid candidates, not just
	// against the elected mirror: two non-elected mirrors can share a
	// generation and diverge from each other while each individually losing
	// the election to a third, newer mirror.
	for i := 0; i < len(candidates); i++ {
		if !candidates[i].Valid {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if !candidates[j].Valid {
				continue
			}
			if err := checkSplitBrain(candidates[i].SB, candidates[j].SB); err != nil {
				return nil, err
			}
		}
	}

	return &ElectionResult{Elected: elected.SB, Candidates: candidates}, nil
}

func probeAtKnownOrVariableBlockSize(h hal.HAL, m Mirror, lba addr.Addr, elected *Candidate) Candidate {
	var sizes []uint32
	if elected != nil && elected.SB != nil {
		sizes = candidateBlockSizes(elected.SB.BlockSize)
	} else {
		sizes = candidateBlockSizes(0)
	}
	var last Candidate
	for _, bs := range sizes {
		adjustedLBA := realignForBlockSize(lba, h.Capabilities().LogicalBlockSize, bs)
		c := readCandidate(h, m, adjustedLBA)
		if c.Valid {
			return c
		}
		last = c
	}
	return last
}

// realignForBlockSize re-derives a mirror's byte offset under a candidate
// block size and converts it back to an LBA; used when a mirror was
// historically formatted with a different block_size than the elected
// superblock's.
func realignForBlockSize(lba addr.Addr, sectorSize, blockSize uint32) addr.Addr {
	byteOff := lba.Uint64() * uint64(sectorSize)
	aligned := alignDownBytes(byteOff, uint64(blockSize))
	return bytesToLBA(aligned, sectorSize)
}

// checkSplitBrain implements the split-brain/tamper gate: two valid
// candidates sharing copy_generation but disagreeing on identity or basic
// shape are a TAMPERED abort (spec §4.5).
func checkSplitBrain(a, b *Superblock) error {
	if a.CopyGeneration != b.CopyGeneration {
		return nil
	}
	if a.VolumeUUID != b.VolumeUUID {
		return herr.New(herr.Tampered, "split-brain: same generation, different volume uuid")
	}
	if a.BlockSize != b.BlockSize {
		return herr.New(herr.Tampered, "split-brain: same generation, different block size")
	}
	aClean, aDirty := a.StateFlags.Has(StateClean), a.StateFlags.Has(StateDirty)
	bClean, bDirty := b.StateFlags.Has(StateClean), b.StateFlags.Has(StateDirty)
	if aClean != bClean || aDirty != bDirty {
		return herr.New(herr.Tampered, "split-brain: same generation, differing clean/dirty bits")
	}
	var tsDiff uint64
	if a.LastMountTime > b.LastMountTime {
		tsDiff = a.LastMountTime - b.LastMountTime
	} else {
		tsDiff = b.LastMountTime - a.LastMountTime
	}
	if tsDiff > ReplayWindowNS {
		return herr.New(herr.Tampered, "split-brain: same generation, timestamps diverge by %dns", tsDiff)
	}
	return nil
}

// Heal rewrites any mirror that failed to read, whose generation differs
// from the elected copy, or whose timestamp diverges by more than
// 10*ReplayWindowNS. It is a no-op when readOnly. Write failures set
// VOL_DEGRADED on the returned result but do not abort the mount (spec
// §4.5).
func Heal(h hal.HAL, elected *Superblock, mirrors map[Mirror]addr.Addr, readOnly bool) (degraded bool, err error) {
	if readOnly {
		return false, nil
	}
	serialized := elected.ToBytes()
	sectorSize := h.Capabilities().LogicalBlockSize
	sectors := uint32(len(serialized)) / sectorSize
	if uint32(len(serialized))%sectorSize != 0 {
		sectors++
	}
	padded := make([]byte, int(sectors)*int(sectorSize))
	copy(padded, serialized)

	for m, lba := range mirrors {
		cand := readCandidate(h, m, lba)
		needsHeal := !cand.Valid ||
			cand.SB.CopyGeneration != elected.CopyGeneration ||
			absDiffU64(cand.SB.LastMountTime, elected.LastMountTime) > 10*ReplayWindowNS

		if !needsHeal {
			continue
		}
		if werr := h.SyncIO(hal.OpWrite, lba, padded, sectors); werr != nil {
			degraded = true
			hnlog.Degraded("cardinal vote heal: failed to rewrite mirror", logrus.Fields{"mirror": m.String(), "error": werr.Error()})
			continue
		}
		if berr := h.Barrier(); berr != nil {
			degraded = true
			hnlog.Degraded("cardinal vote heal: barrier failed after mirror rewrite", logrus.Fields{"mirror": m.String()})
		}
	}
	return degraded, nil
}

func absDiffU64(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
