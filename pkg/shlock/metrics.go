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

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	ops       *prometheus.CounterVec
	contended *prometheus.CounterVec
	errors    *prometheus.CounterVec
	open      *prometheus.CounterVec
	handles   *prometheus.GaugeVec
}

var metrics = newCollectors()

func newCollectors() *collectors {
	return &collectors{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shlock",
			Name:      "ops_total",
			Help:      "Completed primitive operations.",
		}, []string{"kind", "op"}),
		contended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shlock",
			Name:      "contended_total",
			Help:      "Acquire operations that had to block.",
		}, []string{"kind", "op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shlock",
			Name:      "errors_total",
			Help:      "Primitive operations that failed.",
		}, []string{"kind", "op"}),
		open: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shlock",
			Name:      "open_total",
			Help:      "Open calls by result: created, attached or failed.",
		}, []string{"kind", "result"}),
		handles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shlock",
			Name:      "handles_open",
			Help:      "Handles currently mapped by this process.",
		}, []string{"kind"}),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{c.ops, c.contended, c.errors, c.open, c.handles}
}

// RegisterMetrics registers the package's Prometheus collectors with reg.
// Registering twice with the same registry is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range metrics.all() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
