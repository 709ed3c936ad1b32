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
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// HandleInfo describes a handle currently open in this process.
type HandleInfo struct {
	Name     string
	Kind     Kind
	Created  bool
	OpenedAt time.Time
}

type handleRegistry struct {
	seq     atomic.Uint64
	handles cmap.ConcurrentMap[string, *handle]
}

var registry = &handleRegistry{handles: cmap.New[*handle]()}

func (r *handleRegistry) add(h *handle) {
	h.key = h.kind.String() + "/" + h.name + "#" + strconv.FormatUint(r.seq.Add(1), 10)
	r.handles.Set(h.key, h)
}

func (r *handleRegistry) remove(h *handle) {
	r.handles.Remove(h.key)
}

func (r *handleRegistry) snapshot() []*handle {
	items := r.handles.Items()
	out := make([]*handle, 0, len(items))
	for _, h := range items {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Handles lists the primitives this process has open, ordered by kind and name.
func Handles() []HandleInfo {
	hs := registry.snapshot()
	out := make([]HandleInfo, 0, len(hs))
	for _, h := range hs {
		out = append(out, HandleInfo{
			Name:     h.name,
			Kind:     h.kind,
			Created:  h.created,
			OpenedAt: h.opened,
		})
	}
	return out
}
