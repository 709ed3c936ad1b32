package shm

import (
	"sync/atomic"
	"unsafe"
)

// Uint32At returns a pointer to the 32-bit word at off inside a mapped region.
// off must be a multiple of 4 and the word must lie inside b.
func Uint32At(b []byte, off int) *uint32 {
	if off%4 != 0 || off < 0 || off+4 > len(b) {
		panic("shm: misaligned or out of range word")
	}
	return (*uint32)(unsafe.Pointer(&b[off]))
}

// AtomicLoadUint32 loads a uint32 from shared memory atomically.
func AtomicLoadUint32(b []byte, off int) uint32 {
	return atomic.LoadUint32(Uint32At(b, off))
}

// AtomicStoreUint32 stores a uint32 to shared memory atomically.
func AtomicStoreUint32(b []byte, off int, val uint32) {
	atomic.StoreUint32(Uint32At(b, off), val)
}
