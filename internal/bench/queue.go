package bench

import (
	"fmt"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
)

// Sample is one completed acquire/release cycle.
type Sample struct {
	Worker int
	// Wait is how long the acquire took.
	Wait time.Duration
	// Start and End bound the time the worker held the primitive.
	Start time.Time
	End   time.Time
}

// sampleQueue collects samples from concurrent workers.
type sampleQueue struct {
	q *queuepkg.Queue
}

func newSampleQueue(hint int64) *sampleQueue {
	return &sampleQueue{q: queuepkg.New(hint)}
}

func (q *sampleQueue) put(s Sample) error {
	return q.q.Put(s)
}

// drain removes every queued sample. It must not race with put.
func (q *sampleQueue) drain() ([]Sample, error) {
	n := q.q.Len()
	if n == 0 {
		return nil, nil
	}
	items, err := q.q.Get(n)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(items))
	for _, it := range items {
		s, ok := it.(Sample)
		if !ok {
			return nil, fmt.Errorf("invalid queue element type %T", it)
		}
		out = append(out, s)
	}
	return out, nil
}
