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
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srediag/shlock/pkg/shm"
)

var testSeq atomic.Uint64

// testName returns a fresh segment name that is removed when t finishes.
func testName(t *testing.T) string {
	t.Helper()
	if runtime.GOOS != "linux" || !shm.Supported(shm.DefaultDir) {
		t.Skip("named shared memory not available")
	}
	name := fmt.Sprintf("shlock-test-%d-%d", os.Getpid(), testSeq.Add(1))
	t.Cleanup(func() { _ = shm.Remove(shm.DefaultDir, name) })
	return name
}

// closeOnCleanup closes a handle when t finishes.
func closeOnCleanup(t *testing.T, c interface{ Close() error }) {
	t.Cleanup(func() { _ = c.Close() })
}

// waitDone reports whether ch is closed within d.
func waitDone(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

const (
	blockedFor = 50 * time.Millisecond
	wakeWithin = 2 * time.Second
)
