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
	"fmt"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/shlock/pkg/shm"
)

// CheckHandles verifies every handle open in this process: its name must
// still resolve to a segment of the right size and the primitive must not
// have been destroyed by another process.
func CheckHandles() error {
	var errs []error
	for _, h := range registry.snapshot() {
		if err := h.check(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *handle) check() error {
	if err := h.enter(); err != nil {
		return nil
	}
	defer h.leave()
	if h.destroyed() {
		return fmt.Errorf("%s %s: %w", h.kind, h.name, ErrDestroyed)
	}
	size, err := shm.SizeOf(h.config.Dir, h.name)
	if err != nil {
		return fmt.Errorf("%s %s: %w", h.kind, h.name, err)
	}
	if size != int64(h.seg.Size()) {
		return fmt.Errorf("%s %s: %w: %d bytes", h.kind, h.name, ErrSizeMismatch, size)
	}
	return nil
}

// RegisterHealthChecks adds shlock checks to a healthcheck handler: liveness
// requires the shared memory directory to be usable, readiness requires every
// open handle to pass CheckHandles.
func RegisterHealthChecks(handler healthcheck.Handler, opts ...Option) error {
	config, err := newConfig(opts)
	if err != nil {
		return err
	}
	handler.AddLivenessCheck("shlock-dir", func() error {
		if !shm.Supported(config.Dir) {
			return fmt.Errorf("%s: %w", config.Dir, ErrUnsupported)
		}
		return nil
	})
	handler.AddReadinessCheck("shlock-handles", CheckHandles)
	return nil
}
