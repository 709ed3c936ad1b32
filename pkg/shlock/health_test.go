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
	"net/http"
	"testing"

	"github.com/heptiolabs/healthcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecks(t *testing.T) {
	name := testName(t)
	m := newTestMutex(t, name)

	health := healthcheck.NewHandler()
	require.NoError(t, RegisterHealthChecks(health))

	assert.Equal(t, http.StatusOK, serveHealth(t, health, "/live").status)
	assert.Equal(t, http.StatusOK, serveHealth(t, health, "/ready").status)

	// another process removing the name leaves this handle dangling
	require.NoError(t, Remove(name))
	rw := serveHealth(t, health, "/ready?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, rw.status)
	assert.Contains(t, string(rw.body), "shlock-handles")

	require.NoError(t, m.Close())
	assert.Equal(t, http.StatusOK, serveHealth(t, health, "/ready").status)
}

func TestCheckHandlesDestroyed(t *testing.T) {
	name := testName(t)
	l := newTestRWLock(t, name)
	other := newTestRWLock(t, name)
	require.NoError(t, CheckHandles())

	require.NoError(t, l.Destroy())
	err := CheckHandles()
	assert.ErrorIs(t, err, ErrDestroyed)
	require.NoError(t, other.Close())
	assert.NoError(t, CheckHandles())
}

func TestRegisterHealthChecksWrongConfig(t *testing.T) {
	assert.Error(t, RegisterHealthChecks(healthcheck.NewHandler(), WithDir("")))
}

func serveHealth(t *testing.T, h http.Handler, path string) *testResponseWriter {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	rw := &testResponseWriter{}
	h.ServeHTTP(rw, req)
	return rw
}

type testResponseWriter struct {
	headers http.Header
	status  int
	body    []byte
}

func (w *testResponseWriter) Header() http.Header {
	if w.headers == nil {
		w.headers = make(http.Header)
	}
	return w.headers
}

func (w *testResponseWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return len(b), nil
}

func (w *testResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
}
