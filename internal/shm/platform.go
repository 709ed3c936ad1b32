// Package shm contains platform-specific helpers for named shared memory segments.
package shm

import (
	"errors"
	"strings"
	"time"
)

// DefaultDir is where POSIX shm_open places named objects on Linux.
const DefaultDir = "/dev/shm"

// nameMax mirrors NAME_MAX for a single path component.
const nameMax = 255

var (
	ErrInvalidName  = errors.New("shm: invalid segment name")
	ErrInvalidSize  = errors.New("shm: invalid segment size")
	ErrSizeMismatch = errors.New("shm: segment size mismatch")
	ErrNoSpace      = errors.New("shm: not enough space left on shared memory filesystem")
	ErrNotReady     = errors.New("shm: segment was not initialized by its creator in time")
	ErrUnsupported  = errors.New("shm: named shared memory is not supported on this platform")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr    []byte
	Name    string
	Path    string
	Created bool
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name string
	Dir  string
	Size int
	Perm uint32
	// InitTimeout bounds how long an attacher waits for the creator to size the object.
	InitTimeout time.Duration
	// CheckSpace verifies free space on Dir before creating.
	CheckSpace bool
}

// CleanName validates a segment name and strips the optional leading slash
// used by shm_open style names.
func CleanName(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || len(name) > nameMax || strings.ContainsAny(name, "/\x00") || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	return name, nil
}

func (o MapOptions) dir() string {
	if o.Dir == "" {
		return DefaultDir
	}
	return o.Dir
}

func (o MapOptions) perm() uint32 {
	if o.Perm == 0 {
		return 0o600
	}
	return o.Perm
}
