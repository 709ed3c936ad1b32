// Package bench drives a shared primitive from many workers and checks how
// many of them held it at the same time.
package bench

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

// Locker is the acquire/release pair a benchmark exercises.
type Locker interface {
	Lock() error
	Unlock() error
}

// LockerFunc adapts a pair of functions, e.g. a semaphore's Wait and Signal
// or an rwlock's RLock and Unlock, to Locker.
type LockerFunc struct {
	Acquire func() error
	Release func() error
}

func (f LockerFunc) Lock() error   { return f.Acquire() }
func (f LockerFunc) Unlock() error { return f.Release() }

// Config describes a run.
type Config struct {
	Workers    int
	Iterations int
	// Hold is how long each worker keeps the primitive.
	Hold time.Duration
	// Rate caps acquire attempts per second across all workers; 0 means no cap.
	Rate float64
}

// Result summarizes a run.
type Result struct {
	Ops     int
	Errors  int
	Elapsed time.Duration
	// MaxHolders is the largest number of workers seen inside at once.
	MaxHolders int
	// Overlaps counts hold intervals that started before an earlier one ended.
	Overlaps int
	P50      time.Duration
	P99      time.Duration
	MaxWait  time.Duration
}

var errInvalidConfig = errors.New("bench: workers and iterations must be positive, rate must not be negative")

// Run has cfg.Workers workers acquire and release l cfg.Iterations times each.
func Run(ctx context.Context, l Locker, cfg Config) (Result, error) {
	if cfg.Workers <= 0 || cfg.Iterations <= 0 || cfg.Rate < 0 {
		return Result{}, errInvalidConfig
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Workers)
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return Result{}, err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		inside   atomic.Int32
		maxIn    atomic.Int32
		failures atomic.Int64
		samples  = newSampleQueue(int64(cfg.Workers * cfg.Iterations))
	)
	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		worker := w
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			for i := 0; i < cfg.Iterations; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				t0 := time.Now()
				if err := l.Lock(); err != nil {
					failures.Add(1)
					continue
				}
				acquired := time.Now()
				n := inside.Add(1)
				for {
					m := maxIn.Load()
					if n <= m || maxIn.CompareAndSwap(m, n) {
						break
					}
				}
				if cfg.Hold > 0 {
					time.Sleep(cfg.Hold)
				}
				inside.Add(-1)
				released := time.Now()
				if err := l.Unlock(); err != nil {
					failures.Add(1)
				}
				if err := samples.put(Sample{Worker: worker, Wait: acquired.Sub(t0), Start: acquired, End: released}); err != nil {
					failures.Add(1)
				}
			}
		})
		if err != nil {
			wg.Done()
			return Result{}, err
		}
	}
	wg.Wait()

	all, err := samples.drain()
	if err != nil {
		return Result{}, err
	}
	res := summarize(all)
	res.Elapsed = time.Since(start)
	res.Errors = int(failures.Load())
	res.MaxHolders = int(maxIn.Load())
	return res, ctx.Err()
}

func summarize(samples []Sample) Result {
	res := Result{Ops: len(samples)}
	if len(samples) == 0 {
		return res
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Start.Before(samples[j].Start) })
	end := samples[0].End
	for _, s := range samples[1:] {
		if s.Start.Before(end) {
			res.Overlaps++
		}
		if s.End.After(end) {
			end = s.End
		}
	}
	waits := make([]time.Duration, len(samples))
	for i, s := range samples {
		waits[i] = s.Wait
	}
	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })
	res.P50 = percentile(waits, 0.50)
	res.P99 = percentile(waits, 0.99)
	res.MaxWait = waits[len(waits)-1]
	return res
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
