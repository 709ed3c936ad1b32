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
	"sync/atomic"
	"time"

	internalshm "github.com/srediag/shlock/internal/shm"
)

// The rwlock word packs the reader count with two flag bits.
const (
	rwReaderMask uint32 = 1<<30 - 1
	rwWriter     uint32 = 1 << 30
	rwDestroyed  uint32 = 1 << 31
)

// RWLock is a reader/writer lock shared by every process that opens the same
// name. A waiting writer keeps new readers out, so writers are not starved by
// a steady stream of readers.
type RWLock struct {
	*handle
	word    *uint32
	waiters *uint32 // threads sleeping, or about to sleep, on word
	writers *uint32 // writers waiting to acquire
}

// NewRWLock opens the named reader/writer lock, creating it unlocked if it
// does not exist.
func NewRWLock(ctx context.Context, name string, opts ...Option) (*RWLock, error) {
	config, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	h, err := openHandle(ctx, name, KindRWLock, rwlockSize, config, func(hdr headerView) {
		hdr.store(offRWWord, 0)
		hdr.store(offRWWaiters, 0)
		hdr.store(offRWWriters, 0)
	})
	if err != nil {
		return nil, err
	}
	l := &RWLock{
		handle:  h,
		word:    h.hdr.word(offRWWord),
		waiters: h.hdr.word(offRWWaiters),
		writers: h.hdr.word(offRWWriters),
	}
	h.sleepers = []*uint32{l.word}
	return l, nil
}

// RLock blocks until the lock is held for reading.
func (l *RWLock) RLock() error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.leave()
	ok, err := l.tryRLock()
	if err != nil {
		return l.fail("rlock", err)
	}
	if ok {
		l.done("rlock")
		return nil
	}
	start := time.Now()
	if err := l.park(l.tryRLock); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		return l.fail("rlock", err)
	}
	l.observeWait("rlock", start)
	l.done("rlock")
	return nil
}

// Lock blocks until the lock is held for writing.
func (l *RWLock) Lock() error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.leave()
	ok, err := l.tryLock()
	if err != nil {
		return l.fail("lock", err)
	}
	if ok {
		l.done("lock")
		return nil
	}
	start := time.Now()
	atomic.AddUint32(l.writers, 1)
	err = l.park(l.tryLock)
	if atomic.AddUint32(l.writers, ^uint32(0)) == 0 && err != nil && atomic.LoadUint32(l.waiters) != 0 {
		// readers held off by this writer must not keep sleeping
		if _, werr := internalshm.FutexWake(l.word, wakeAll); werr != nil {
			internalLogger.warnf("rwlock %s: wake readers: %v", l.name, werr)
		}
	}
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		return l.fail("lock", err)
	}
	l.observeWait("lock", start)
	l.done("lock")
	return nil
}

// TryRLock acquires a read lock only if that does not require blocking.
func (l *RWLock) TryRLock() (bool, error) {
	if err := l.enter(); err != nil {
		return false, err
	}
	defer l.leave()
	ok, err := l.tryRLock()
	if err != nil {
		return false, l.fail("rlock", err)
	}
	if ok {
		l.done("rlock")
	}
	return ok, nil
}

// TryLock acquires the write lock only if that does not require blocking.
func (l *RWLock) TryLock() (bool, error) {
	if err := l.enter(); err != nil {
		return false, err
	}
	defer l.leave()
	ok, err := l.tryLock()
	if err != nil {
		return false, l.fail("lock", err)
	}
	if ok {
		l.done("lock")
	}
	return ok, nil
}

func (l *RWLock) tryRLock() (bool, error) {
	for {
		v := atomic.LoadUint32(l.word)
		switch {
		case v&rwDestroyed != 0:
			return false, ErrDestroyed
		case v&rwWriter != 0 || atomic.LoadUint32(l.writers) != 0:
			return false, nil
		case v&rwReaderMask == rwReaderMask:
			return false, ErrOverflow
		}
		if atomic.CompareAndSwapUint32(l.word, v, v+1) {
			return true, nil
		}
	}
}

func (l *RWLock) tryLock() (bool, error) {
	for {
		v := atomic.LoadUint32(l.word)
		switch {
		case v&rwDestroyed != 0:
			return false, ErrDestroyed
		case v&(rwWriter|rwReaderMask) != 0:
			return false, nil
		}
		if atomic.CompareAndSwapUint32(l.word, v, v|rwWriter) {
			return true, nil
		}
	}
}

// park sleeps on the lock word until try succeeds. The waiter count is raised
// before the word is sampled, so a release that changes the word after the
// sample either makes the futex wait return at once or sees the waiter and
// wakes it.
func (l *RWLock) park(try func() (bool, error)) error {
	atomic.AddUint32(l.waiters, 1)
	defer atomic.AddUint32(l.waiters, ^uint32(0))
	for {
		v := atomic.LoadUint32(l.word)
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// releases wake every sleeper, a closed handle has nothing to pass on
		if err := l.sleep(l.word, v); err != nil {
			return err
		}
	}
}

// Unlock releases the lock in whichever mode it is held. The mode is taken
// from the shared word: a held write lock is released first, otherwise one
// reader is released. Unlocking a free lock returns ErrNotLocked.
func (l *RWLock) Unlock() error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.leave()
	for {
		v := atomic.LoadUint32(l.word)
		var next uint32
		switch {
		case v&rwDestroyed != 0:
			return l.fail("unlock", ErrDestroyed)
		case v&rwWriter != 0:
			next = v &^ rwWriter
		case v&rwReaderMask != 0:
			next = v - 1
		default:
			return l.fail("unlock", ErrNotLocked)
		}
		if !atomic.CompareAndSwapUint32(l.word, v, next) {
			continue
		}
		if next&rwReaderMask == 0 && atomic.LoadUint32(l.waiters) != 0 {
			if _, err := internalshm.FutexWake(l.word, wakeAll); err != nil {
				return l.fail("unlock", err)
			}
		}
		l.done("unlock")
		return nil
	}
}

// Destroy finalizes the lock for every process, then unmaps it and, with
// WithRemoveOnDestroy, removes the name. A held lock is not destroyed:
// ErrBusy is returned and the handle stays open. Threads blocked on the lock
// return ErrDestroyed.
func (l *RWLock) Destroy() error {
	return l.destroy(l.finalize)
}

func (l *RWLock) finalize() error {
	if l.destroyed() {
		return ErrDestroyed
	}
	if !atomic.CompareAndSwapUint32(l.word, 0, rwDestroyed) {
		// another handle may have set the bit and not yet published the state
		if atomic.LoadUint32(l.word)&rwDestroyed != 0 {
			return ErrDestroyed
		}
		return ErrBusy
	}
	l.markDestroyed()
	if _, err := internalshm.FutexWake(l.word, wakeAll); err != nil {
		return err
	}
	return nil
}
