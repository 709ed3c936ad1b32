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

// Package shlock provides named synchronization primitives that work across
// operating system processes: an exclusive Mutex, a reader/writer RWLock and a
// counting Semaphore.
//
// Each primitive lives in its own POSIX shared memory segment, identified by
// a name every cooperating process agrees on out of band. The first process
// to open a name creates the segment and initializes the primitive; later
// processes attach and wait until the creator has published it.
//
//	mu, err := shlock.NewMutex(ctx, "orders.lock")
//	if err != nil {
//	  return err
//	}
//	defer mu.Close()
//
//	if err := mu.Lock(); err != nil {
//	  return err
//	}
//	// critical section shared with every process using "orders.lock"
//	_ = mu.Unlock()
//
// Acquire operations block the calling thread in the kernel (futex) and have
// no timeout. Close drops this process's mapping; Destroy additionally
// finalizes the primitive (RWLock, Semaphore) and, with WithRemoveOnDestroy,
// removes the name so that the next open creates a fresh primitive.
//
// The library does not decide who owns a name. Callers that remove names must
// make sure no other process still expects to open them.
package shlock
