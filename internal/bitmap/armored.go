// Package bitmap implements the armored, Hamming-ECC-protected allocation
// bitmap (spec §3 "Armored Word") and the L2 summary index built on top of
// it, plus the void-bitmap on-disk codec.
package bitmap

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/hn4/hydra-nexus/internal/addr"
	"github.com/hn4/hydra-nexus/internal/hal"
)

// Word is one armored 64-bit bitmap word: 64 allocation bits plus an ECC
// byte recomputed on every mutation.
type Word struct {
	Data uint64
	ECC  uint8
}

// NewWord builds an armored word over data with a freshly computed ECC.
func NewWord(data uint64) Word {
	return Word{Data: data, ECC: addr.HammingECC(data)}
}

// Verify recomputes the ECC and, on a single-bit error, transparently
// corrects it; a double-bit error is reported to the caller as
// BITMAP_CORRUPT-worthy.
func (w Word) Verify() (Word, addr.HammingStatus) {
	corrected, status := addr.HammingVerify(w.Data, w.ECC)
	if status == addr.HammingDoubleError {
		return w, status
	}
	return Word{Data: corrected, ECC: addr.HammingECC(corrected)}, status
}

// Armored is the in-memory loaded bitmap: an array of armored words guarded
// by a per-volume spinlock, plus an L2 summary bit per WordsPerL2Span (512)
// blocks, set the first time any block in that span is allocated (see
// L2Touched).
type Armored struct {
	words   []Word
	lock    *hal.SpinLock
	l2      *bitset.BitSet // one bit per WordsPerL2Span-block span, set once any block in the span has been allocated (spec §4.9 step 3)
	nblocks uint64
}

// WordsPerL2Span is the granularity of the L2 summary bitmap (spec §4.9:
// "update the L2 summary bit (lba / 512)").
const WordsPerL2Span = 512

// New allocates an armored bitmap covering nblocks blocks (one bit per
// block), all initially clear (free).
func New(nblocks uint64, lock *hal.SpinLock) *Armored {
	nwords := (nblocks + 63) / 64
	words := make([]Word, nwords)
	for i := range words {
		words[i] = NewWord(0)
	}
	l2len := (nblocks + WordsPerL2Span - 1) / WordsPerL2Span
	if l2len == 0 {
		l2len = 1
	}
	return &Armored{words: words, lock: lock, l2: bitset.New(uint(l2len)), nblocks: nblocks}
}

// FromDiskImage loads a packed, LSB-first, ECC-less on-disk bitmap image
// into a freshly armored in-memory copy (ECC is a memory-only protection;
// it does not exist on disk, spec §6).
func FromDiskImage(image []byte, nblocks uint64, lock *hal.SpinLock) (*Armored, error) {
	nwords := (nblocks + 63) / 64
	needBytes := nwords * 8
	if uint64(len(image)) < needBytes {
		return nil, fmt.Errorf("bitmap: disk image too small: %d bytes, need %d", len(image), needBytes)
	}
	a := New(nblocks, lock)
	for i := uint64(0); i < nwords; i++ {
		data := leUint64(image[i*8 : i*8+8])
		a.words[i] = NewWord(data)
	}
	return a, nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putLEUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// ToDiskImage serializes the bitmap back to its packed, ECC-less on-disk
// form.
func (a *Armored) ToDiskImage() []byte {
	out := make([]byte, len(a.words)*8)
	for i, w := range a.words {
		putLEUint64(out[i*8:i*8+8], w.Data)
	}
	return out
}

// NBlocks is the number of tracked blocks.
func (a *Armored) NBlocks() uint64 { return a.nblocks }

// Test reports whether bit i (block i) is set (used), correcting
// single-bit ECC errors transparently and returning BitmapCorrupt-worthy
// false+error on a double error.
func (a *Armored) Test(i uint64) (bool, error) {
	wordIdx := i / 64
	bitIdx := i % 64
	if wordIdx >= uint64(len(a.words)) {
		return false, fmt.Errorf("bitmap: index %d out of range", i)
	}
	a.lock.Lock()
	w := a.words[wordIdx]
	corrected, status := w.Verify()
	if status == addr.HammingDoubleError {
		a.lock.Unlock()
		return false, fmt.Errorf("bitmap: double-bit ECC error in word %d", wordIdx)
	}
	a.words[wordIdx] = corrected
	a.lock.Unlock()
	return corrected.Data&(1<<bitIdx) != 0, nil
}

// CASSet atomically (under the spinlock) sets bit i if it is currently
// clear, updates the adjacent L2 summary bit in the same critical section,
// and returns whether the set happened. This is the allocation
// linearization point (spec §5.3).
func (a *Armored) CASSet(i uint64) (bool, error) {
	wordIdx := i / 64
	bitIdx := i % 64
	if wordIdx >= uint64(len(a.words)) {
		return false, fmt.Errorf("bitmap: index %d out of range", i)
	}
	a.lock.Lock()
	defer a.lock.Unlock()

	w := a.words[wordIdx]
	corrected, status := w.Verify()
	if status == addr.HammingDoubleError {
		return false, fmt.Errorf("bitmap: double-bit ECC error in word %d", wordIdx)
	}
	if corrected.Data&(1<<bitIdx) != 0 {
		a.words[wordIdx] = corrected
		return false, nil // already set
	}
	newData := corrected.Data | (1 << bitIdx)
	a.words[wordIdx] = NewWord(newData)
	a.markL2(i)
	return true, nil
}

// Clear clears bit i (free). Double-free is a no-op (spec §4.9 property d).
func (a *Armored) Clear(i uint64) error {
	wordIdx := i / 64
	bitIdx := i % 64
	if wordIdx >= uint64(len(a.words)) {
		return fmt.Errorf("bitmap: index %d out of range", i)
	}
	a.lock.Lock()
	defer a.lock.Unlock()

	w := a.words[wordIdx]
	corrected, status := w.Verify()
	if status == addr.HammingDoubleError {
		return fmt.Errorf("bitmap: double-bit ECC error in word %d", wordIdx)
	}
	newData := corrected.Data &^ (1 << bitIdx)
	a.words[wordIdx] = NewWord(newData)
	return nil
}

func (a *Armored) markL2(i uint64) {
	span := uint(i / WordsPerL2Span)
	if span >= a.l2.Len() {
		return
	}
	a.l2.Set(span)
}

// L2Touched reports whether the L2 span containing block i has ever had an
// allocation recorded in it.
func (a *Armored) L2Touched(i uint64) bool {
	span := uint(i / WordsPerL2Span)
	if span >= a.l2.Len() {
		return false
	}
	return a.l2.Test(span)
}

// CountUsed walks the bitmap and returns the number of set bits, used by
// reconciliation passes that need an authoritative count rather than the
// incrementally-maintained used_blocks counter.
func (a *Armored) CountUsed() uint64 {
	var n uint64
	for _, w := range a.words {
		n += uint64(popcount(w.Data))
	}
	return n
}

func popcount(x uint64) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}
