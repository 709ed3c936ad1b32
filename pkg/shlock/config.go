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
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shlock/pkg/shm"
)

const (
	defaultPerm        = 0o600
	defaultInitTimeout = 5 * time.Second

	instrumentationName = "github.com/srediag/shlock/pkg/shlock"
)

// Config controls where primitives live and how handles behave.
type Config struct {
	// Dir is the shared memory filesystem names resolve in.
	// The process env `SHLOCK_DIR` overrides the default /dev/shm.
	Dir string
	// Perm is applied when a segment is created.
	Perm os.FileMode
	// InitTimeout bounds how long an attaching process waits for the
	// creator to publish the primitive.
	InitTimeout time.Duration
	// RemoveOnDestroy makes Destroy also remove the name from the namespace.
	RemoveOnDestroy bool
	// CheckSpace rejects creation when Dir is full.
	CheckSpace bool

	// Tracer and Meter default to the global OpenTelemetry providers.
	Tracer trace.Tracer
	Meter  metric.Meter
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() *Config {
	dir := shm.DefaultDir
	if d := os.Getenv("SHLOCK_DIR"); d != "" {
		dir = d
	}
	return &Config{
		Dir:         dir,
		Perm:        defaultPerm,
		InitTimeout: defaultInitTimeout,
		CheckSpace:  true,
		Tracer:      otel.Tracer(instrumentationName),
		Meter:       otel.Meter(instrumentationName),
	}
}

// VerifyConfig checks that a Config can be used to open primitives.
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("config is nil")
	}
	if !filepath.IsAbs(config.Dir) {
		return fmt.Errorf("dir must be an absolute path, got %q", config.Dir)
	}
	if config.Perm.Perm()&0o600 != 0o600 {
		return fmt.Errorf("perm must grant owner read/write, got %v", config.Perm)
	}
	if config.InitTimeout <= 0 {
		return fmt.Errorf("init timeout must be positive, got %v", config.InitTimeout)
	}
	if config.Tracer == nil || config.Meter == nil {
		return errors.New("tracer and meter must not be nil")
	}
	return nil
}

// Option customizes a Config.
type Option func(*Config)

// WithDir sets the shared memory directory.
func WithDir(dir string) Option {
	return func(c *Config) { c.Dir = dir }
}

// WithPerm sets the permission bits used on creation.
func WithPerm(perm os.FileMode) Option {
	return func(c *Config) { c.Perm = perm }
}

// WithInitTimeout sets how long attachers wait for initialization.
func WithInitTimeout(d time.Duration) Option {
	return func(c *Config) { c.InitTimeout = d }
}

// WithRemoveOnDestroy makes Destroy remove the name after unmapping.
func WithRemoveOnDestroy(remove bool) Option {
	return func(c *Config) { c.RemoveOnDestroy = remove }
}

// WithSpaceCheck toggles the free space check before creation.
func WithSpaceCheck(check bool) Option {
	return func(c *Config) { c.CheckSpace = check }
}

// WithTracer sets the tracer used for open and destroy spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Config) { c.Tracer = t }
}

// WithMeter sets the meter used to record contended wait durations.
func WithMeter(m metric.Meter) Option {
	return func(c *Config) { c.Meter = m }
}

func newConfig(opts []Option) (*Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}
