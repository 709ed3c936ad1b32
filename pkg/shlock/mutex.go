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

// Mutex word values.
const (
	mutexUnlocked uint32 = iota
	mutexLocked
	mutexContended // locked, and some thread may be sleeping on the word
)

// Mutex is an exclusive lock shared by every process that opens the same name.
// It is not re-entrant: locking it twice from one thread deadlocks.
type Mutex struct {
	*handle
	word *uint32
}

// NewMutex opens the named mutex, creating it unlocked if it does not exist.
func NewMutex(ctx context.Context, name string, opts ...Option) (*Mutex, error) {
	config, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	h, err := openHandle(ctx, name, KindMutex, mutexSize, config, func(hdr headerView) {
		hdr.store(offMutexWord, mutexUnlocked)
	})
	if err != nil {
		return nil, err
	}
	m := &Mutex{handle: h, word: h.hdr.word(offMutexWord)}
	h.sleepers = []*uint32{m.word}
	return m, nil
}

// Lock blocks until the mutex is held by the caller.
func (m *Mutex) Lock() error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	if atomic.CompareAndSwapUint32(m.word, mutexUnlocked, mutexLocked) {
		m.done("lock")
		return nil
	}
	start := time.Now()
	c := atomic.SwapUint32(m.word, mutexContended)
	for c != mutexUnlocked {
		if err := m.sleep(m.word, mutexContended); err != nil {
			if !errors.Is(err, ErrClosed) {
				return m.fail("lock", err)
			}
			// the wake may have been an Unlock meant for a waiter: pass it on
			if _, werr := internalshm.FutexWake(m.word, 1); werr != nil {
				internalLogger.warnf("mutex %s: pass on wake: %v", m.name, werr)
			}
			return err
		}
		c = atomic.SwapUint32(m.word, mutexContended)
	}
	m.observeWait("lock", start)
	m.done("lock")
	return nil
}

// TryLock acquires the mutex only if it is free and reports whether it did.
func (m *Mutex) TryLock() (bool, error) {
	if err := m.enter(); err != nil {
		return false, err
	}
	defer m.leave()
	if !atomic.CompareAndSwapUint32(m.word, mutexUnlocked, mutexLocked) {
		return false, nil
	}
	m.done("lock")
	return true, nil
}

// Unlock releases the mutex and wakes one waiter if there is any. Ownership
// is not tracked: any handle may unlock a held mutex. Unlocking a free mutex
// returns ErrNotLocked.
func (m *Mutex) Unlock() error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	switch atomic.SwapUint32(m.word, mutexUnlocked) {
	case mutexUnlocked:
		return m.fail("unlock", ErrNotLocked)
	case mutexContended:
		if _, err := internalshm.FutexWake(m.word, 1); err != nil {
			return m.fail("unlock", err)
		}
	}
	m.done("unlock")
	return nil
}

// Destroy releases this handle: the mapping is dropped and, with
// WithRemoveOnDestroy, the name is removed. The lock word itself is left
// as is for processes that are still attached.
func (m *Mutex) Destroy() error {
	return m.destroy(nil)
}
