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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSemaphore(t *testing.T, name string, initial uint32, opts ...Option) *Semaphore {
	t.Helper()
	s, err := NewSemaphore(context.Background(), name, initial, opts...)
	require.NoError(t, err)
	closeOnCleanup(t, s)
	return s
}

func semValue(t *testing.T, s *Semaphore) uint32 {
	t.Helper()
	v, err := s.Value()
	require.NoError(t, err)
	return v
}

func TestSemaphoreHandOff(t *testing.T) {
	name := testName(t)
	a := newTestSemaphore(t, name, 1)
	b := newTestSemaphore(t, name, 1)
	require.True(t, a.Created())
	require.False(t, b.Created())

	require.NoError(t, a.Wait())
	assert.Equal(t, uint32(0), semValue(t, a))

	woken := make(chan struct{})
	go func() {
		defer close(woken)
		assert.NoError(t, b.Wait())
	}()
	assert.False(t, waitDone(woken, blockedFor), "wait on a zero count returned")

	require.NoError(t, a.Signal())
	require.True(t, waitDone(woken, wakeWithin), "signal did not wake the waiter")
	assert.Equal(t, uint32(0), semValue(t, b))
}

func TestSemaphoreBlocksPastInitialCount(t *testing.T) {
	name := testName(t)
	const initial = 3
	s := newTestSemaphore(t, name, initial)
	for i := 0; i < initial; i++ {
		require.NoError(t, s.Wait())
	}
	ok, err := s.TryWait()
	require.NoError(t, err)
	assert.False(t, ok)

	other := newTestSemaphore(t, name, initial)
	woken := make(chan struct{})
	go func() {
		defer close(woken)
		assert.NoError(t, other.Wait())
	}()
	assert.False(t, waitDone(woken, blockedFor))
	require.NoError(t, s.Signal())
	require.True(t, waitDone(woken, wakeWithin))
	assert.Equal(t, uint32(0), semValue(t, s))
}

func TestSemaphoreSignalWakesOneWaiter(t *testing.T) {
	name := testName(t)
	s := newTestSemaphore(t, name, 0)

	const waiters = 3
	var (
		wg     sync.WaitGroup
		passed atomic.Int32
	)
	for i := 0; i < waiters; i++ {
		w := newTestSemaphore(t, name, 0)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if assert.NoError(t, w.Wait()) {
				passed.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadUint32(s.waiters) == waiters }, wakeWithin, blockedFor/10)

	require.NoError(t, s.Signal())
	require.Eventually(t, func() bool { return passed.Load() == 1 }, wakeWithin, blockedFor/10)
	assert.Never(t, func() bool { return passed.Load() > 1 }, blockedFor, blockedFor/10)

	for i := 1; i < waiters; i++ {
		require.NoError(t, s.Signal())
	}
	wg.Wait()
	assert.Equal(t, int32(waiters), passed.Load())
	assert.Equal(t, uint32(0), semValue(t, s))
}

func TestSemaphoreCloseWhileWaitBlocked(t *testing.T) {
	name := testName(t)
	s := newTestSemaphore(t, name, 0)
	w := newTestSemaphore(t, name, 0)

	result := make(chan error, 1)
	go func() { result <- w.Wait() }()
	require.Eventually(t, func() bool { return atomic.LoadUint32(s.waiters) == 1 }, wakeWithin, blockedFor/10)

	require.NoError(t, w.Close())
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(wakeWithin):
		t.Fatal("Wait on a closed handle stayed blocked")
	}
	assert.Equal(t, uint32(0), atomic.LoadUint32(s.waiters))
	assert.Equal(t, uint32(0), semValue(t, s))

	require.NoError(t, s.Signal())
	assert.Equal(t, uint32(1), semValue(t, s), "closed waiter consumed a signal")
	ok, err := s.TryWait()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSemaphoreInitialIgnoredOnAttach(t *testing.T) {
	name := testName(t)
	newTestSemaphore(t, name, 2)
	attached := newTestSemaphore(t, name, 9)
	assert.False(t, attached.Created())
	assert.Equal(t, uint32(2), semValue(t, attached))
}

func TestSemaphoreInvalidCount(t *testing.T) {
	_, err := NewSemaphore(context.Background(), testName(t), MaxSemaphoreValue+1)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestSemaphoreOverflow(t *testing.T) {
	s := newTestSemaphore(t, testName(t), MaxSemaphoreValue)
	assert.ErrorIs(t, s.Signal(), ErrOverflow)
	assert.Equal(t, uint32(MaxSemaphoreValue), semValue(t, s))
	require.NoError(t, s.Wait())
	require.NoError(t, s.Signal())
}

func TestSemaphoreTryWait(t *testing.T) {
	s := newTestSemaphore(t, testName(t), 1)
	ok, err := s.TryWait()
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.TryWait()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSemaphoreDestroyWithWaitersIsBusy(t *testing.T) {
	name := testName(t)
	s := newTestSemaphore(t, name, 0)
	w := newTestSemaphore(t, name, 0)

	woken := make(chan struct{})
	go func() {
		defer close(woken)
		assert.NoError(t, w.Wait())
	}()
	require.Eventually(t, func() bool { return atomic.LoadUint32(s.waiters) == 1 }, wakeWithin, blockedFor/10)
	assert.ErrorIs(t, s.Destroy(), ErrBusy)

	require.NoError(t, s.Signal())
	require.True(t, waitDone(woken, wakeWithin))
	require.NoError(t, s.Destroy())

	assert.ErrorIs(t, w.Signal(), ErrDestroyed)
	_, err := w.Value()
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = w.TryWait()
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.ErrorIs(t, s.Signal(), ErrClosed)
}

func TestSemaphoreDestroyRemoveRecreatesFresh(t *testing.T) {
	name := testName(t)
	s := newTestSemaphore(t, name, 0, WithRemoveOnDestroy(true))
	require.NoError(t, s.Signal())
	require.NoError(t, s.Destroy())

	fresh := newTestSemaphore(t, name, 4)
	assert.True(t, fresh.Created())
	assert.Equal(t, uint32(4), semValue(t, fresh))
}
