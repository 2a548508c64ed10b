package hal

import "unsafe"

// addrOf returns the starting address of a byte slice's backing array, used
// only to compute the padding needed for a 64-byte-aligned sub-slice in
// MemAlloc.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
