/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shlock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/srediag/shlock/internal/shm"
	"github.com/srediag/shlock/pkg/shm"
)

// Every header starts with a 16 byte preamble followed by the words of the
// primitive itself:
//
//	0  magic   "SHLK"
//	4  kind    KindMutex, KindRWLock or KindSemaphore
//	8  state   stateUninit -> stateReady -> stateDestroyed
//	12 size    total header size
//	16 body    primitive words
const (
	offMagic = 0
	offKind  = 4
	offState = 8
	offSize  = 12
	offBody  = 16

	preambleSize = offBody
	headerMagic  = 0x4b4c4853

	offMutexWord = offBody
	mutexSize    = offBody + 4

	offRWWord    = offBody
	offRWWaiters = offBody + 4
	offRWWriters = offBody + 8
	rwlockSize   = offBody + 12

	offSemWord    = offBody
	offSemWaiters = offBody + 4
	semaphoreSize = offBody + 8
)

const (
	stateUninit uint32 = iota
	stateReady
	stateDestroyed
)

const wakeAll = math.MaxInt32

// Kind identifies the primitive stored in a segment.
type Kind uint32

const (
	KindMutex Kind = iota + 1
	KindRWLock
	KindSemaphore
)

func (k Kind) String() string {
	switch k {
	case KindMutex:
		return "mutex"
	case KindRWLock:
		return "rwlock"
	case KindSemaphore:
		return "semaphore"
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

func stateName(s uint32) string {
	switch s {
	case stateUninit:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", s)
}

// headerView is a typed view over the mapped header bytes.
type headerView []byte

func (h headerView) word(off int) *uint32 {
	return internalshm.Uint32At(h, off)
}

func (h headerView) load(off int) uint32 {
	return internalshm.AtomicLoadUint32(h, off)
}

func (h headerView) store(off int, v uint32) {
	internalshm.AtomicStoreUint32(h, off, v)
}

// handle is the part every primitive shares: one process's mapping of a
// named header.
type handle struct {
	seg     *shm.Segment
	config  *Config
	kind    Kind
	name    string
	created bool
	hdr     headerView
	state   *uint32
	key     string
	opened  time.Time
	waitDur metric.Float64Histogram

	// mu guards inflight and the unmap. The mapping stays until Close has
	// been called and the last in-flight operation has left.
	mu       sync.Mutex
	inflight int
	unmapped bool
	closed   atomic.Bool
	// sleepers are the words operations of this handle futex-wait on.
	sleepers []*uint32
}

func cleanName(name string) (string, error) {
	return internalshm.CleanName(name)
}

// openHandle resolves the named segment and, if this call created it, runs
// initBody and publishes the ready state. Attachers wait for that state.
func openHandle(ctx context.Context, name string, kind Kind, size int, config *Config, initBody func(h headerView)) (_ *handle, err error) {
	ctx, span := config.Tracer.Start(ctx, "shlock.Open", trace.WithAttributes(
		attribute.String("shlock.name", name),
		attribute.String("shlock.kind", kind.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			metrics.open.WithLabelValues(kind.String(), "failed").Inc()
		}
		span.End()
	}()

	seg, err := shm.Open(ctx, shm.OpenOptions{
		Name:        name,
		Size:        size,
		Dir:         config.Dir,
		Perm:        config.Perm,
		InitTimeout: config.InitTimeout,
		CheckSpace:  config.CheckSpace,
		Tracer:      config.Tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s %q: %w", kind, name, err)
	}
	hdr := headerView(seg.Bytes())
	if seg.Created() {
		hdr.store(offMagic, headerMagic)
		hdr.store(offKind, uint32(kind))
		hdr.store(offSize, uint32(size))
		initBody(hdr)
		hdr.store(offState, stateReady)
		if _, werr := internalshm.FutexWake(hdr.word(offState), wakeAll); werr != nil {
			internalLogger.warnf("%s %s: wake attachers: %v", kind, name, werr)
		}
		internalLogger.debugf("%s %s: created segment %s", kind, name, seg.Path())
	} else {
		if err := awaitReady(ctx, hdr, kind, size, internalshm.NewInitBackOff(ctx, config.InitTimeout)); err != nil {
			_ = seg.Close()
			return nil, fmt.Errorf("open %s %q: %w", kind, name, err)
		}
		internalLogger.debugf("%s %s: attached to segment %s", kind, name, seg.Path())
	}

	waitDur, merr := config.Meter.Float64Histogram("shlock.wait.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent blocked acquiring a contended primitive."))
	if merr != nil {
		internalLogger.warnf("%s %s: create wait histogram: %v", kind, name, merr)
	}

	h := &handle{
		seg:     seg,
		config:  config,
		kind:    kind,
		name:    seg.Name(),
		created: seg.Created(),
		hdr:     hdr,
		state:   hdr.word(offState),
		opened:  time.Now(),
		waitDur: waitDur,
	}
	span.SetAttributes(attribute.Bool("shlock.created", h.created))
	result := "attached"
	if h.created {
		result = "created"
	}
	metrics.open.WithLabelValues(kind.String(), result).Inc()
	metrics.handles.WithLabelValues(kind.String()).Inc()
	registry.add(h)
	return h, nil
}

// awaitReady waits until the creator published the header, then checks that
// the header belongs to the requested primitive kind. The creator wakes the
// state word on publish; b only bounds each sleep and the whole wait.
func awaitReady(ctx context.Context, hdr headerView, kind Kind, size int, b backoff.BackOff) error {
	state := hdr.word(offState)
	for {
		switch atomic.LoadUint32(state) {
		case stateUninit:
			next := b.NextBackOff()
			if next == backoff.Stop {
				if err := ctx.Err(); err != nil {
					return err
				}
				return ErrNotReady
			}
			if err := internalshm.FutexWaitTimeout(state, stateUninit, next); err != nil {
				return err
			}
			continue
		case stateDestroyed:
			return ErrDestroyed
		}
		if hdr.load(offMagic) != headerMagic || Kind(hdr.load(offKind)) != kind || hdr.load(offSize) != uint32(size) {
			return fmt.Errorf("%w: found %s", ErrKindMismatch, Kind(hdr.load(offKind)))
		}
		return nil
	}
}

// enter pins the mapping for one operation. Every successful enter must be
// paired with leave.
func (h *handle) enter() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return ErrClosed
	}
	h.inflight++
	return nil
}

func (h *handle) leave() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inflight--
	if h.inflight == 0 && h.closed.Load() {
		h.unmapLocked()
	}
}

// abandoned reports whether a sleeper woke up on a handle that was closed
// meanwhile.
func (h *handle) abandoned() bool {
	return h.closed.Load()
}

// closeRecheck bounds each futex sleep, so a Close that lands between the
// abandoned check and the wait is still noticed.
const closeRecheck = 250 * time.Millisecond

// sleep futex-waits on word while it holds val. It returns ErrClosed if the
// handle is closed before or during the wait. Waking up is no promise that
// the word changed.
func (h *handle) sleep(word *uint32, val uint32) error {
	if h.abandoned() {
		return ErrClosed
	}
	internalLogger.tracef("%s %s: sleeping on %#x", h.kind, h.name, val)
	if err := internalshm.FutexWaitTimeout(word, val, closeRecheck); err != nil {
		return err
	}
	if h.abandoned() {
		return ErrClosed
	}
	return nil
}

func (h *handle) unmapLocked() error {
	if h.unmapped {
		return nil
	}
	h.unmapped = true
	if err := h.seg.Close(); err != nil {
		internalLogger.errorf("%s %s: unmap: %v", h.kind, h.name, err)
		return err
	}
	return nil
}

func (h *handle) destroyed() bool {
	return atomic.LoadUint32(h.state) == stateDestroyed
}

// markDestroyed publishes the destroyed state to every process.
func (h *handle) markDestroyed() {
	atomic.StoreUint32(h.state, stateDestroyed)
	if _, err := internalshm.FutexWake(h.state, wakeAll); err != nil {
		internalLogger.warnf("%s %s: wake state waiters: %v", h.kind, h.name, err)
	}
}

// Name returns the name the primitive was opened with, without a leading slash.
func (h *handle) Name() string {
	return h.name
}

// Created reports whether this handle created and initialized the primitive.
func (h *handle) Created() bool {
	return h.created
}

// Close unmaps this process's view of the primitive. The primitive itself
// and its name are left alone. Close is idempotent.
//
// Operations of this handle still blocked in another goroutine are woken and
// return ErrClosed; the mapping is released once the last of them returns.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	registry.remove(h)
	metrics.handles.WithLabelValues(h.kind.String()).Dec()
	if h.inflight == 0 {
		return h.unmapLocked()
	}
	internalLogger.tracef("%s %s: close with %d operation(s) in flight", h.kind, h.name, h.inflight)
	for _, w := range h.sleepers {
		if _, err := internalshm.FutexWake(w, wakeAll); err != nil {
			internalLogger.warnf("%s %s: wake sleepers: %v", h.kind, h.name, err)
		}
	}
	return nil
}

// destroy runs finalize, unmaps the handle and removes the name when the
// config asks for it.
func (h *handle) destroy(finalize func() error) (err error) {
	_, span := h.config.Tracer.Start(context.Background(), "shlock.Destroy", trace.WithAttributes(
		attribute.String("shlock.name", h.name),
		attribute.String("shlock.kind", h.kind.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()
	if err := h.enter(); err != nil {
		return err
	}
	if finalize != nil {
		if err := finalize(); err != nil {
			h.leave()
			return h.fail("destroy", err)
		}
	}
	h.leave()
	if err := h.Close(); err != nil {
		return err
	}
	if h.config.RemoveOnDestroy {
		if err := shm.Remove(h.config.Dir, h.name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			internalLogger.warnf("%s %s: remove: %v", h.kind, h.name, err)
			return err
		}
		internalLogger.infof("%s %s: removed from %s", h.kind, h.name, h.config.Dir)
	}
	return nil
}

// fail records a primitive error and hands it back to the caller.
func (h *handle) fail(op string, err error) error {
	metrics.errors.WithLabelValues(h.kind.String(), op).Inc()
	internalLogger.warnf("%s %s: %s: %v", h.kind, h.name, op, err)
	return err
}

// observeWait records how long a contended acquire blocked.
func (h *handle) observeWait(op string, start time.Time) {
	metrics.contended.WithLabelValues(h.kind.String(), op).Inc()
	if h.waitDur == nil {
		return
	}
	h.waitDur.Record(context.Background(), time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("shlock.kind", h.kind.String()),
		attribute.String("shlock.op", op),
	))
}

func (h *handle) done(op string) {
	metrics.ops.WithLabelValues(h.kind.String(), op).Inc()
}

// Remove takes a primitive's name out of the namespace without opening it.
// Processes that already attached keep working on their mapping; the next
// open of the name creates a fresh primitive.
func Remove(name string, opts ...Option) error {
	config, err := newConfig(opts)
	if err != nil {
		return err
	}
	if err := shm.Remove(config.Dir, name); err != nil {
		return err
	}
	internalLogger.infof("%s: removed from %s", name, config.Dir)
	return nil
}
