package shm

import (
	"context"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	internalshm "github.com/srediag/shlock/internal/shm"
)

// Errors reported while opening a segment.
var (
	ErrInvalidName  = internalshm.ErrInvalidName
	ErrInvalidSize  = internalshm.ErrInvalidSize
	ErrSizeMismatch = internalshm.ErrSizeMismatch
	ErrNoSpace      = internalshm.ErrNoSpace
	ErrNotReady     = internalshm.ErrNotReady
	ErrUnsupported  = internalshm.ErrUnsupported
)

// DefaultDir is the directory named segments live in on Linux.
const DefaultDir = internalshm.DefaultDir

// OpenOptions defines options for creating or opening a shared memory segment.
type OpenOptions struct {
	// Name is the identifier for the shared memory region. A leading "/" is ignored.
	Name string
	// Size is the exact segment size in bytes. Every opener of a name must agree on it.
	Size int
	// Dir is the shm filesystem the name resolves in. Defaults to DefaultDir.
	Dir string
	// Perm is used when the object is created. Defaults to 0600.
	Perm os.FileMode
	// InitTimeout bounds how long an attacher waits for a concurrent creator.
	InitTimeout time.Duration
	// CheckSpace rejects creation when Dir lacks Size free bytes.
	CheckSpace bool
	Tracer     trace.Tracer
}

// Segment is one process's mapping of a named shared memory object.
type Segment struct {
	mu     sync.Mutex
	region *internalshm.MappedRegion
	dir    string
	size   int
}

// Open creates or attaches to the named segment.
func Open(ctx context.Context, opts OpenOptions) (*Segment, error) {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	ctx, span := tracer.Start(ctx, "shm.Open", trace.WithAttributes(
		attribute.String("shm.name", opts.Name),
		attribute.Int("shm.size", opts.Size),
	))
	defer span.End()

	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Name:        opts.Name,
		Dir:         opts.Dir,
		Size:        opts.Size,
		Perm:        uint32(opts.Perm.Perm()),
		InitTimeout: opts.InitTimeout,
		CheckSpace:  opts.CheckSpace,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("shm.created", region.Created))
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return &Segment{region: region, dir: dir, size: opts.Size}, nil
}

// Created reports whether this Open call created the object.
func (s *Segment) Created() bool {
	return s.region.Created
}

// Name returns the cleaned segment name.
func (s *Segment) Name() string {
	return s.region.Name
}

// Path returns the file backing the segment.
func (s *Segment) Path() string {
	return s.region.Path
}

// Size returns the mapped size in bytes.
func (s *Segment) Size() int {
	return s.size
}

// Bytes returns the mapped memory, or nil once the segment is closed.
// The slice must not be used after Close.
func (s *Segment) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region.Addr
}

// Close unmaps this process's view. Other processes are unaffected.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return internalshm.UnmapRegion(s.region)
}

// Remove takes the segment's name out of the namespace. The mapping, if
// still open, stays valid.
func (s *Segment) Remove() error {
	return Remove(s.dir, s.region.Name)
}

// Remove takes a named segment out of the namespace. Removing a name that
// does not exist returns an error matching fs.ErrNotExist.
func Remove(dir, name string) error {
	return internalshm.Unlink(dir, name)
}

// Exists reports whether a named segment is present in dir.
func Exists(dir, name string) (bool, error) {
	_, ok, err := internalshm.Stat(dir, name)
	return ok, err
}

// SizeOf returns the size of a named segment.
func SizeOf(dir, name string) (int64, error) {
	size, ok, err := internalshm.Stat(dir, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fs.ErrNotExist
	}
	return size, nil
}

// Supported reports whether named segments can be created in dir.
func Supported(dir string) bool {
	return internalshm.Supported(dir)
}
