//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"
)

const defaultInitTimeout = 5 * time.Second

var errNotSized = errors.New("segment not sized yet")

// MapRegion opens the named object for read/write, or creates it exclusively
// if it does not exist, and maps Size bytes of it shared. Exactly one caller
// per name observes Created == true. The descriptor is closed before return.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	name, err := CleanName(opts.Name)
	if err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, ErrInvalidSize
	}
	path := filepath.Join(opts.dir(), name)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err == nil {
			return attach(ctx, fd, name, path, opts)
		}
		if !errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, opts.perm())
		if err == nil {
			return create(fd, name, path, opts)
		}
		if !errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		// lost the create race, attach to the winner's object
	}
}

func create(fd int, name, path string, opts MapOptions) (*MappedRegion, error) {
	fail := func(err error) (*MappedRegion, error) {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return nil, err
	}
	if opts.CheckSpace && !canCreateOnDevShm(uint64(opts.Size), opts.dir()) {
		return fail(fmt.Errorf("%w: path:%s size:%d", ErrNoSpace, path, opts.Size))
	}
	if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
		return fail(fmt.Errorf("ftruncate %s: %w", path, err))
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fail(fmt.Errorf("mmap %s: %w", path, err))
	}
	_ = unix.Close(fd)
	return &MappedRegion{Addr: addr, Name: name, Path: path, Created: true}, nil
}

func attach(ctx context.Context, fd int, name, path string, opts MapOptions) (*MappedRegion, error) {
	defer func() {
		_ = unix.Close(fd)
	}()
	err := backoff.Retry(func() error {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return backoff.Permanent(fmt.Errorf("fstat %s: %w", path, err))
		}
		switch {
		case st.Size == 0:
			return errNotSized
		case st.Size != int64(opts.Size):
			return backoff.Permanent(fmt.Errorf("%w: %s is %d bytes, want %d", ErrSizeMismatch, path, st.Size, opts.Size))
		}
		return nil
	}, NewInitBackOff(ctx, opts.InitTimeout))
	if errors.Is(err, errNotSized) {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, path)
	}
	if err != nil {
		return nil, err
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MappedRegion{Addr: addr, Name: name, Path: path}, nil
}

// NewInitBackOff returns the retry policy attachers use while a creator
// finishes initializing a segment.
func NewInitBackOff(ctx context.Context, timeout time.Duration) backoff.BackOff {
	if timeout <= 0 {
		timeout = defaultInitTimeout
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 20 * time.Millisecond
	b.MaxElapsedTime = timeout
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// UnmapRegion unmaps the shared memory region. It is safe to call twice.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap %s: %w", region.Path, err)
	}
	region.Addr = nil
	return nil
}

// Unlink removes the named object. Existing mappings stay valid.
func Unlink(dir, name string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = DefaultDir
	}
	path := filepath.Join(dir, name)
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}

// Stat returns the size of the named object, and false if it does not exist.
func Stat(dir, name string) (int64, bool, error) {
	name, err := CleanName(name)
	if err != nil {
		return 0, false, err
	}
	if dir == "" {
		dir = DefaultDir
	}
	var st unix.Stat_t
	if err := unix.Stat(filepath.Join(dir, name), &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat %s: %w", name, err)
	}
	return st.Size, true, nil
}

// Supported reports whether dir can hold named segments.
func Supported(dir string) bool {
	if dir == "" {
		dir = DefaultDir
	}
	return unix.Access(dir, unix.W_OK) == nil
}
