//go:build !hn4_128bit

package addr

import "encoding/binary"

// Addr is a sector-indexed LBA. This build selects the 64-bit
// representation; build with -tags hn4_128bit to select the 128-bit one.
// Both expose the identical method set so callers never branch on width.
type Addr uint64

// Size is the on-disk width, in bytes, of a serialized Addr.
const Size = 8

// Zero is the invalid/unset address.
const Zero Addr = 0

// Add returns a+delta, saturate-failing on overflow rather than wrapping.
func (a Addr) Add(delta uint64) (Addr, error) {
	sum := uint64(a) + delta
	if sum < uint64(a) {
		return 0, ErrOverflow
	}
	return Addr(sum), nil
}

// Sub returns a-delta, erroring on underflow.
func (a Addr) Sub(delta uint64) (Addr, error) {
	if delta > uint64(a) {
		return 0, ErrOverflow
	}
	return Addr(uint64(a) - delta), nil
}

// Mul returns a*n, erroring on overflow.
func (a Addr) Mul(n uint64) (Addr, error) {
	if n != 0 && uint64(a) > ^uint64(0)/n {
		return 0, ErrOverflow
	}
	return Addr(uint64(a) * n), nil
}

// Cmp compares two addresses.
func (a Addr) Cmp(b Addr) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Uint64 returns the address as a plain uint64; always exact in this build.
func (a Addr) Uint64() uint64 { return uint64(a) }

// FromUint64 constructs an Addr from a raw sector index.
func FromUint64(n uint64) Addr { return Addr(n) }

// AlignUp rounds a up to the next multiple of n (n must be a power of two).
func (a Addr) AlignUp(n uint64) Addr {
	mask := n - 1
	return Addr((uint64(a) + mask) &^ mask)
}

// AlignDown rounds a down to the previous multiple of n.
func (a Addr) AlignDown(n uint64) Addr {
	mask := n - 1
	return Addr(uint64(a) &^ mask)
}

// Bytes encodes a as little-endian on-disk bytes.
func (a Addr) Bytes() []byte {
	b := make([]byte, Size)
	binary.LittleEndian.PutUint64(b, uint64(a))
	return b
}

// FromBytes decodes an Addr from its little-endian on-disk form.
func FromBytes(b []byte) Addr {
	return Addr(binary.LittleEndian.Uint64(b))
}
