// Package epoch implements the Epoch Ring (spec §4.4): a cyclic monotonic
// generation counter used to detect rollback, mirror lag, and replay
// attacks at mount time.
package epoch

import (
	"encoding/binary"
	"fmt"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/hal"
	"github.com/hn4/hydra-nexus/internal/herr"
)

// MaxSkew bounds how far ahead of the superblock's recorded epoch a disk
// slot may legitimately be (mirror lag); beyond it the slot is impossible
// and the media is suspect.
const MaxSkew = 16

// FarFutureThreshold beyond MaxSkew marks a disk id so far ahead it cannot
// be explained by lag at all.
const FarFutureThreshold = 5000

// HeaderSize is the on-disk size of one epoch ring slot.
const HeaderSize = 8 + 8 + 4 + 4

// Header is one epoch ring slot.
type Header struct {
	EpochID        uint64
	Timestamp      uint64
	D0RootChecksum uint32
	EpochCRC       uint32
}

// Bytes serializes h to its little-endian on-disk form, with EpochCRC
// computed over the preceding bytes.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], h.EpochID)
	binary.LittleEndian.PutUint64(b[8:16], h.Timestamp)
	binary.LittleEndian.PutUint32(b[16:20], h.D0RootChecksum)
	crc := addr.CRC32C(0, b[0:20])
	binary.LittleEndian.PutUint32(b[20:24], crc)
	return b
}

// FromBytes decodes and CRC-verifies a serialized Header.
func FromBytes(b []byte) (Header, bool) {
	if len(b) < HeaderSize {
		return Header{}, false
	}
	h := Header{
		EpochID:        binary.LittleEndian.Uint64(b[0:8]),
		Timestamp:      binary.LittleEndian.Uint64(b[8:16]),
		D0RootChecksum: binary.LittleEndian.Uint32(b[16:20]),
		EpochCRC:       binary.LittleEndian.Uint32(b[20:24]),
	}
	want := addr.CRC32C(0, b[0:20])
	return h, want == h.EpochCRC
}

// Ring addresses one epoch ring region on disk: RingBlocks slots starting at
// Start, one Header per slot. Slots are one sector apart (slot i is at sector
// Start+i) and each slot read or write transfers a single sector; slots are
// not spaced one BlockSize-byte block apart.
type Ring struct {
	Start      addr.Addr
	BlockSize  uint32
	RingBlocks uint64
}

func (r Ring) slotLBA(slot uint64) (addr.Addr, error) {
	if r.RingBlocks == 0 {
		return addr.Zero, fmt.Errorf("epoch: ring has zero blocks")
	}
	sectorsPerBlock := uint64(1)
	return r.Start.Add(slot % r.RingBlocks * sectorsPerBlock)
}

func (r Ring) readSlot(h hal.HAL, slot uint64) (Header, bool, error) {
	lba, err := r.slotLBA(slot)
	if err != nil {
		return Header{}, false, err
	}
	buf := make([]byte, r.BlockSize)
	if err := h.SyncIO(hal.OpRead, lba, buf, 1); err != nil {
		return Header{}, false, herr.Wrap(herr.HWIO, err)
	}
	hdr, ok := FromBytes(buf)
	return hdr, ok, nil
}

func (r Ring) writeSlot(h hal.HAL, slot uint64, hdr Header) error {
	lba, err := r.slotLBA(slot)
	if err != nil {
		return err
	}
	buf := make([]byte, r.BlockSize)
	copy(buf, hdr.Bytes())
	if err := h.SyncIO(hal.OpWrite, lba, buf, 1); err != nil {
		return herr.Wrap(herr.HWIO, err)
	}
	return nil
}

// Genesis writes the first epoch record {id=1, timestamp=now} at ring slot
// 0.
func Genesis(h hal.HAL, r Ring) error {
	hdr := Header{EpochID: 1, Timestamp: h.GetTimeNS()}
	return r.writeSlot(h, 0, hdr)
}

// Advance reads the slot at curSlot, verifies its CRC, increments the
// epoch id, and writes the result to the next slot (wrapping to ring
// start). It refuses on a read-only volume.
func Advance(h hal.HAL, r Ring, curSlot uint64, readOnly bool) (newSlot uint64, newID uint64, err error) {
	if readOnly {
		return 0, 0, herr.New(herr.AccessDenied, "epoch: cannot advance a read-only ring")
	}
	hdr, ok, err := r.readSlot(h, curSlot)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, herr.New(herr.EpochLost, "epoch: CRC mismatch reading slot %d", curSlot)
	}
	next := Header{EpochID: hdr.EpochID + 1, Timestamp: h.GetTimeNS(), D0RootChecksum: hdr.D0RootChecksum}
	nextSlot := (curSlot + 1) % r.RingBlocks
	if err := r.writeSlot(h, nextSlot, next); err != nil {
		return 0, 0, err
	}
	return nextSlot, next.EpochID, nil
}

// CheckResult classifies the relationship between the superblock's recorded
// epoch and the ring's on-disk state at mount time (spec §4.4).
type CheckResult int

const (
	CheckOK CheckResult = iota
	CheckEpochLost
	CheckTimeDilation
	CheckMediaToxic
	CheckGenerationSkew
)

// Check reads the ring slot and classifies it against the superblock's
// current_epoch_id M.
func Check(h hal.HAL, r Ring, slot uint64, m uint64) (CheckResult, uint64, error) {
	hdr, ok, err := r.readSlot(h, slot)
	if err != nil {
		return CheckEpochLost, 0, err
	}
	if !ok {
		return CheckEpochLost, 0, nil
	}
	d := hdr.EpochID
	switch {
	case d == m:
		return CheckOK, d, nil
	case d > m && d <= m+MaxSkew:
		return CheckTimeDilation, d, nil
	case d > m+MaxSkew:
		// Beyond the lag window. The spec's MEDIA_TOXIC rule names
		// D > M+5000 explicitly; nothing in §4.4 assigns a separate
		// classification to M+MAX_SKEW < D <= M+5000, and that range is
		// already outside the legitimate mirror-lag window, so it is
		// classified the same way an epoch this far ahead always is.
		return CheckMediaToxic, d, nil
	default: // d < m
		return CheckGenerationSkew, d, nil
	}
}
