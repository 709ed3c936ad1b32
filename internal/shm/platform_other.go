//go:build !linux

package shm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MapRegion is not implemented outside Linux.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// NewInitBackOff returns the retry policy attachers use while a creator
// finishes initializing a segment.
func NewInitBackOff(ctx context.Context, timeout time.Duration) backoff.BackOff {
	return backoff.WithContext(&backoff.StopBackOff{}, ctx)
}

func UnmapRegion(region *MappedRegion) error {
	return nil
}

func Unlink(dir, name string) error {
	return ErrUnsupported
}

func Stat(dir, name string) (int64, bool, error) {
	return 0, false, ErrUnsupported
}

func Supported(dir string) bool {
	return false
}

func FutexWaitTimeout(addr *uint32, val uint32, d time.Duration) error {
	return ErrUnsupported
}

func FutexWake(addr *uint32, n int) (int, error) {
	return 0, ErrUnsupported
}
