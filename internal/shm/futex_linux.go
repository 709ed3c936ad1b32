//go:build linux

package shm

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared (non-private) futex operations, keyed by the backing page so that
// waiters in different processes meet on the same word.
const (
	futexWait = 0
	futexWake = 1
)

// FutexWaitTimeout blocks the calling thread while *addr == val, for at most
// d; d <= 0 waits without a bound. Returning nil does not mean the value
// changed: callers re-check in a loop. Running out of time is not an error.
func FutexWaitTimeout(addr *uint32, val uint32, d time.Duration) error {
	var ts *unix.Timespec
	if d > 0 {
		t := unix.NsecToTimespec(d.Nanoseconds())
		ts = &t
	}
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWait, uintptr(val), uintptr(unsafe.Pointer(ts)), 0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR, unix.ETIMEDOUT:
		return nil
	}
	return fmt.Errorf("futex wait: %w", errno)
}

// FutexWake wakes up to n threads blocked on addr and returns how many were woken.
func FutexWake(addr *uint32, n int) (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWake, uintptr(n), 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake: %w", errno)
	}
	return int(r), nil
}
