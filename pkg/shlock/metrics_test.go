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
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetGauge().GetValue()
}

func TestMetricsCountOperations(t *testing.T) {
	name := testName(t)
	created := counterValue(t, metrics.open, "semaphore", "created")
	attached := counterValue(t, metrics.open, "semaphore", "attached")
	waits := counterValue(t, metrics.ops, "semaphore", "wait")
	failures := counterValue(t, metrics.errors, "semaphore", "signal")
	handles := gaugeValue(t, metrics.handles, "semaphore")

	s := newTestSemaphore(t, name, MaxSemaphoreValue)
	other := newTestSemaphore(t, name, 0)
	assert.Equal(t, created+1, counterValue(t, metrics.open, "semaphore", "created"))
	assert.Equal(t, attached+1, counterValue(t, metrics.open, "semaphore", "attached"))
	assert.Equal(t, handles+2, gaugeValue(t, metrics.handles, "semaphore"))

	require.NoError(t, s.Wait())
	require.NoError(t, other.Wait())
	assert.Equal(t, waits+2, counterValue(t, metrics.ops, "semaphore", "wait"))

	require.NoError(t, s.Signal())
	require.NoError(t, s.Signal())
	assert.ErrorIs(t, s.Signal(), ErrOverflow)
	assert.Equal(t, failures+1, counterValue(t, metrics.errors, "semaphore", "signal"))

	require.NoError(t, other.Close())
	require.NoError(t, other.Close())
	assert.Equal(t, handles+1, gaugeValue(t, metrics.handles, "semaphore"))
}

func TestMetricsContended(t *testing.T) {
	name := testName(t)
	before := counterValue(t, metrics.contended, "mutex", "lock")
	a := newTestMutex(t, name)
	b := newTestMutex(t, name)

	require.NoError(t, a.Lock())
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		assert.NoError(t, b.Lock())
	}()
	require.Eventually(t, func() bool { return atomic.LoadUint32(a.word) == mutexContended }, wakeWithin, blockedFor/10)
	require.NoError(t, a.Unlock())
	require.True(t, waitDone(acquired, wakeWithin))
	require.NoError(t, b.Unlock())
	assert.Equal(t, before+1, counterValue(t, metrics.contended, "mutex", "lock"))
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))

	m := newTestMutex(t, testName(t))
	require.NoError(t, m.Lock())
	require.NoError(t, m.Unlock())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shlock_ops_total"])
	assert.True(t, names["shlock_open_total"])
	assert.True(t, names["shlock_handles_open"])
}
