package bench

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithMutexHasNoOverlaps(t *testing.T) {
	var mu sync.Mutex
	l := LockerFunc{
		Acquire: func() error { mu.Lock(); return nil },
		Release: func() error { mu.Unlock(); return nil },
	}
	res, err := Run(context.Background(), l, Config{Workers: 8, Iterations: 50})
	require.NoError(t, err)
	assert.Equal(t, 400, res.Ops)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, 1, res.MaxHolders)
	assert.Equal(t, 0, res.Overlaps)
	assert.LessOrEqual(t, res.P50, res.P99)
	assert.LessOrEqual(t, res.P99, res.MaxWait)
}

func TestRunDetectsConcurrentHolders(t *testing.T) {
	nop := LockerFunc{
		Acquire: func() error { return nil },
		Release: func() error { return nil },
	}
	res, err := Run(context.Background(), nop, Config{Workers: 4, Iterations: 5, Hold: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Greater(t, res.MaxHolders, 1)
	assert.Greater(t, res.Overlaps, 0)
}

func TestRunCountsErrors(t *testing.T) {
	failing := LockerFunc{
		Acquire: func() error { return errors.New("boom") },
		Release: func() error { return nil },
	}
	res, err := Run(context.Background(), failing, Config{Workers: 2, Iterations: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ops)
	assert.Equal(t, 6, res.Errors)
}

func TestRunRejectsEmptyConfig(t *testing.T) {
	_, err := Run(context.Background(), LockerFunc{}, Config{})
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestSampleQueueDrain(t *testing.T) {
	q := newSampleQueue(4)
	empty, err := q.drain()
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.put(Sample{Worker: i}))
	}
	got, err := q.drain()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].Worker)
	assert.Equal(t, 2, got[2].Worker)
}

func TestRunRateLimited(t *testing.T) {
	nop := LockerFunc{
		Acquire: func() error { return nil },
		Release: func() error { return nil },
	}
	res, err := Run(context.Background(), nop, Config{Workers: 2, Iterations: 5, Rate: 100})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Ops)
	// the first two acquires come from the burst, the other eight are paced
	assert.GreaterOrEqual(t, res.Elapsed, 70*time.Millisecond)

	_, err = Run(context.Background(), nop, Config{Workers: 1, Iterations: 1, Rate: -1})
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	nop := LockerFunc{
		Acquire: func() error { return nil },
		Release: func() error { return nil },
	}
	res, err := Run(ctx, nop, Config{Workers: 2, Iterations: 10})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Ops)
}
