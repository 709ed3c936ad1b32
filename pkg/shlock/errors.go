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
	"errors"

	"github.com/srediag/shlock/pkg/shm"
)

// Segment errors.
var (
	ErrInvalidName  = shm.ErrInvalidName
	ErrSizeMismatch = shm.ErrSizeMismatch
	ErrNoSpace      = shm.ErrNoSpace
	ErrUnsupported  = shm.ErrUnsupported
	ErrNotReady     = shm.ErrNotReady
	ErrKindMismatch = errors.New("shlock: segment holds a different primitive kind")
)

// Primitive errors.
var (
	ErrClosed       = errors.New("shlock: handle is closed")
	ErrDestroyed    = errors.New("shlock: primitive has been destroyed")
	ErrNotLocked    = errors.New("shlock: unlock of unlocked primitive")
	ErrBusy         = errors.New("shlock: primitive is in use")
	ErrOverflow     = errors.New("shlock: counter overflow")
	ErrInvalidCount = errors.New("shlock: semaphore count out of range")
)
