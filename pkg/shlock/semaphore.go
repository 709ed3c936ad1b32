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
	"math"
	"sync/atomic"
	"time"

	internalshm "github.com/srediag/shlock/internal/shm"
)

// MaxSemaphoreValue is the largest count a Semaphore can hold (SEM_VALUE_MAX).
const MaxSemaphoreValue = math.MaxInt32

// The top bit of the semaphore word marks it destroyed, the rest is the count.
const semDestroyed uint32 = 1 << 31

// Semaphore is a counting semaphore shared by every process that opens the
// same name.
type Semaphore struct {
	*handle
	word    *uint32
	waiters *uint32
}

// NewSemaphore opens the named semaphore. If this call creates it, the count
// starts at initial; if the semaphore already exists, initial is ignored and
// the shared count is kept.
func NewSemaphore(ctx context.Context, name string, initial uint32, opts ...Option) (*Semaphore, error) {
	if initial > MaxSemaphoreValue {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, initial)
	}
	config, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	h, err := openHandle(ctx, name, KindSemaphore, semaphoreSize, config, func(hdr headerView) {
		hdr.store(offSemWord, initial)
		hdr.store(offSemWaiters, 0)
	})
	if err != nil {
		return nil, err
	}
	s := &Semaphore{
		handle:  h,
		word:    h.hdr.word(offSemWord),
		waiters: h.hdr.word(offSemWaiters),
	}
	h.sleepers = []*uint32{s.word}
	return s, nil
}

// Wait blocks until the count is positive, then decrements it.
func (s *Semaphore) Wait() error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()
	ok, err := s.tryWait()
	if err != nil {
		return s.fail("wait", err)
	}
	if ok {
		s.done("wait")
		return nil
	}
	start := time.Now()
	atomic.AddUint32(s.waiters, 1)
	defer atomic.AddUint32(s.waiters, ^uint32(0))
	for {
		ok, err := s.tryWait()
		if err != nil {
			return s.fail("wait", err)
		}
		if ok {
			break
		}
		// Sleep only while the word is still exactly zero: a Signal or a
		// Destroy changes it.
		if err := s.sleep(s.word, 0); err != nil {
			if !errors.Is(err, ErrClosed) {
				return s.fail("wait", err)
			}
			// the wake may have been a Signal meant for a waiter: pass it on
			if _, werr := internalshm.FutexWake(s.word, 1); werr != nil {
				internalLogger.warnf("semaphore %s: pass on wake: %v", s.name, werr)
			}
			return err
		}
	}
	s.observeWait("wait", start)
	s.done("wait")
	return nil
}

// TryWait decrements the count if it is positive and reports whether it did.
func (s *Semaphore) TryWait() (bool, error) {
	if err := s.enter(); err != nil {
		return false, err
	}
	defer s.leave()
	ok, err := s.tryWait()
	if err != nil {
		return false, s.fail("wait", err)
	}
	if ok {
		s.done("wait")
	}
	return ok, nil
}

func (s *Semaphore) tryWait() (bool, error) {
	for {
		v := atomic.LoadUint32(s.word)
		if v&semDestroyed != 0 {
			return false, ErrDestroyed
		}
		if v == 0 {
			return false, nil
		}
		if atomic.CompareAndSwapUint32(s.word, v, v-1) {
			return true, nil
		}
	}
}

// Signal increments the count and wakes at most one waiter.
func (s *Semaphore) Signal() error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()
	for {
		v := atomic.LoadUint32(s.word)
		switch {
		case v&semDestroyed != 0:
			return s.fail("signal", ErrDestroyed)
		case v == MaxSemaphoreValue:
			return s.fail("signal", ErrOverflow)
		}
		if atomic.CompareAndSwapUint32(s.word, v, v+1) {
			break
		}
	}
	if atomic.LoadUint32(s.waiters) != 0 {
		if _, err := internalshm.FutexWake(s.word, 1); err != nil {
			return s.fail("signal", err)
		}
	}
	s.done("signal")
	return nil
}

// Value returns the current count.
func (s *Semaphore) Value() (uint32, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.leave()
	v := atomic.LoadUint32(s.word)
	if v&semDestroyed != 0 {
		return 0, ErrDestroyed
	}
	return v, nil
}

// Destroy finalizes the semaphore for every process, then unmaps it and, with
// WithRemoveOnDestroy, removes the name. If threads are blocked in Wait,
// ErrBusy is returned and the handle stays open.
func (s *Semaphore) Destroy() error {
	return s.destroy(s.finalize)
}

func (s *Semaphore) finalize() error {
	if atomic.LoadUint32(s.waiters) != 0 {
		return ErrBusy
	}
	for {
		v := atomic.LoadUint32(s.word)
		if v&semDestroyed != 0 {
			return ErrDestroyed
		}
		if atomic.CompareAndSwapUint32(s.word, v, v|semDestroyed) {
			break
		}
	}
	s.markDestroyed()
	if _, err := internalshm.FutexWake(s.word, wakeAll); err != nil {
		return err
	}
	return nil
}
