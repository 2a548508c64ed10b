// Package addr holds the integrity primitives (CRC32C, Hamming ECC, 128-bit
// arithmetic helpers) and the compile-time Addr abstraction used for every
// on-disk LBA pointer in the engine.
package addr

import (
	"encoding/binary"
	"hash/crc32"
)

var crc32cTable = crc32.IEEETable

// CRC32C computes the engine's on-disk checksum of buf: the reflected IEEE
// CRC-32 polynomial with the usual initial and final inversion, so
// CRC32C(0, "123456789") == 0xCBF43926. seed is a previous result (0 for a
// fresh computation). Incremental chaining is exact: CRC32C(CRC32C(0, a), b)
// == CRC32C(0, a‖b).
func CRC32C(seed uint32, buf []byte) uint32 {
	return crc32.Update(seed, crc32cTable, buf)
}

// CRC32CUint32 folds a little-endian uint32 into a running CRC32C, used
// where a field is checksummed independently of its surrounding buffer.
func CRC32CUint32(seed uint32, n uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], n)
	return CRC32C(seed, b[:])
}
