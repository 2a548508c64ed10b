package addr

import (
	"encoding/binary"
	"errors"
	"math/bits"
)

// ErrOverflow is returned by arithmetic helpers whose result cannot be
// represented without silent truncation.
var ErrOverflow = errors.New("addr: arithmetic overflow")

// U128 is a 128-bit unsigned integer used for volume UUIDs and anchor
// identifiers. Hi holds the most-significant 64 bits.
type U128 struct {
	Hi, Lo uint64
}

// ZeroU128 is the invalid/unset UUID value.
var ZeroU128 = U128{}

// IsZero reports whether u is the invalid zero UUID.
func (u U128) IsZero() bool { return u.Hi == 0 && u.Lo == 0 }

// Cmp returns -1, 0, or 1 as u is less than, equal to, or greater than v.
func (u U128) Cmp(v U128) int {
	if u.Hi != v.Hi {
		if u.Hi < v.Hi {
			return -1
		}
		return 1
	}
	switch {
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	default:
		return 0
	}
}

// Add returns u+v with explicit carry propagation, and an overflow error if
// the sum does not fit in 128 bits.
func (u U128) Add(v U128) (U128, error) {
	lo, carry := bits.Add64(u.Lo, v.Lo, 0)
	hi, carry2 := bits.Add64(u.Hi, v.Hi, carry)
	if carry2 != 0 {
		return U128{}, ErrOverflow
	}
	return U128{Hi: hi, Lo: lo}, nil
}

// Sub returns u-v, erroring on borrow past the top bit (u < v).
func (u U128) Sub(v U128) (U128, error) {
	lo, borrow := bits.Sub64(u.Lo, v.Lo, 0)
	hi, borrow2 := bits.Sub64(u.Hi, v.Hi, borrow)
	if borrow2 != 0 {
		return U128{}, ErrOverflow
	}
	return U128{Hi: hi, Lo: lo}, nil
}

// MulU64 returns u*n, erroring if the product overflows 128 bits.
func (u U128) MulU64(n uint64) (U128, error) {
	hiHi, hiLo := bits.Mul64(u.Hi, n)
	if hiHi != 0 {
		return U128{}, ErrOverflow
	}
	loHi, loLo := bits.Mul64(u.Lo, n)
	hi, carry := bits.Add64(hiLo, loHi, 0)
	if carry != 0 {
		return U128{}, ErrOverflow
	}
	return U128{Hi: hi, Lo: loLo}, nil
}

// DivU64 returns u/n and u%n. n == 0 is a programmer error and panics, as in
// ordinary integer division.
func (u U128) DivU64(n uint64) (q U128, r uint64) {
	if n == 0 {
		panic("addr: division by zero")
	}
	hiQ, hiR := u.Hi/n, u.Hi%n
	loQ, loR := bits.Div64(hiR, u.Lo, n)
	return U128{Hi: hiQ, Lo: loQ}, loR
}

// Bytes encodes u as 16 little-endian bytes (Lo first), matching the
// on-disk anchor/volume UUID layout.
func (u U128) Bytes() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], u.Lo)
	binary.LittleEndian.PutUint64(b[8:16], u.Hi)
	return b
}

// U128FromBytes decodes 16 little-endian bytes into a U128.
func U128FromBytes(b []byte) U128 {
	return U128{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}
