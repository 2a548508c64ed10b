//go:build hn4_128bit

package addr

// Addr is a sector-indexed LBA. This build selects the 128-bit
// representation, for volumes whose capacity exceeds 2^64 sectors. Both
// builds expose the identical method set so callers never branch on width.
type Addr struct {
	v U128
}

// Size is the on-disk width, in bytes, of a serialized Addr.
const Size = 16

// Zero is the invalid/unset address.
var Zero = Addr{}

func (a Addr) Add(delta uint64) (Addr, error) {
	sum, err := a.v.Add(U128{Lo: delta})
	if err != nil {
		return Addr{}, err
	}
	return Addr{v: sum}, nil
}

func (a Addr) Sub(delta uint64) (Addr, error) {
	diff, err := a.v.Sub(U128{Lo: delta})
	if err != nil {
		return Addr{}, err
	}
	return Addr{v: diff}, nil
}

func (a Addr) Mul(n uint64) (Addr, error) {
	prod, err := a.v.MulU64(n)
	if err != nil {
		return Addr{}, err
	}
	return Addr{v: prod}, nil
}

func (a Addr) Cmp(b Addr) int { return a.v.Cmp(b.v) }

// Uint64 returns the address truncated to 64 bits; callers that need the
// full range must use the U128 accessor instead.
func (a Addr) Uint64() uint64 { return a.v.Lo }

func FromUint64(n uint64) Addr { return Addr{v: U128{Lo: n}} }

func (a Addr) AlignUp(n uint64) Addr {
	mask := n - 1
	sum, _ := a.v.Add(U128{Lo: mask})
	lo := sum.Lo &^ mask
	return Addr{v: U128{Hi: sum.Hi, Lo: lo}}
}

func (a Addr) AlignDown(n uint64) Addr {
	mask := n - 1
	return Addr{v: U128{Hi: a.v.Hi, Lo: a.v.Lo &^ mask}}
}

func (a Addr) Bytes() []byte {
	b := a.v.Bytes()
	return b[:]
}

func FromBytes(b []byte) Addr {
	return Addr{v: U128FromBytes(b)}
}
