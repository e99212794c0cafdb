// Package queue implements the bounded FIFO of assembled lessons that sits
// between the lesson builder and the presentation driver.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

// Bounds are the queue's watermarks and hard ceiling.
// Invariant: 1 <= Low <= High <= Ceiling.
type Bounds struct {
	Low     int
	High    int
	Ceiling int
}

// DefaultBounds returns the default watermarks.
func DefaultBounds() Bounds { return Bounds{Low: 3, High: 8, Ceiling: 10} }

// Validate checks the ordering invariant.
func (b Bounds) Validate() error {
	if b.Low < 1 || b.Low > b.High || b.High > b.Ceiling {
		return fmt.Errorf("invalid queue bounds: require 1 <= low (%d) <= high (%d) <= ceiling (%d)",
			b.Low, b.High, b.Ceiling)
	}
	return nil
}

// Snapshot is a point-in-time view of queue counters.
type Snapshot struct {
	Depth    int
	Pushed   uint64
	Popped   uint64
	EmptyFor time.Duration
	Bounds   Bounds
}

// LessonQueue is a linearizable bounded FIFO. Depth never goes negative and
// never exceeds the ceiling; Push blocks at the ceiling instead of dropping.
type LessonQueue struct {
	mu         sync.Mutex
	items      []*types.Lesson
	bounds     Bounds
	changed    chan struct{}
	emptySince time.Time
	pushed     uint64
	popped     uint64
	now        func() time.Time
}

// New creates an empty queue.
func New(b Bounds) (*LessonQueue, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &LessonQueue{
		items:      make([]*types.Lesson, 0, b.Ceiling),
		bounds:     b,
		changed:    make(chan struct{}),
		emptySince: time.Now(),
		now:        time.Now,
	}, nil
}

// Bounds returns the configured bounds.
func (q *LessonQueue) Bounds() Bounds { return q.bounds }

// notifyLocked wakes every waiter. Caller holds q.mu.
func (q *LessonQueue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Changed returns a channel closed on the next push or pop.
func (q *LessonQueue) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

// pushLocked appends a lesson. Caller holds q.mu and has checked capacity.
func (q *LessonQueue) pushLocked(l *types.Lesson) {
	q.items = append(q.items, l)
	q.pushed++
	q.notifyLocked()
	logging.QueueDebug("push %s (topic=%q) depth=%d", l.ID, l.Topic, len(q.items))
}

// Push appends a lesson, blocking while the queue is at its ceiling.
// It returns ctx.Err() if the context ends first; the lesson is then not queued.
func (q *LessonQueue) Push(ctx context.Context, l *types.Lesson) error {
	if l == nil {
		return errors.New("push nil lesson")
	}
	for {
		q.mu.Lock()
		if len(q.items) < q.bounds.Ceiling {
			q.pushLocked(l)
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		logging.QueueDebug("push blocked at ceiling %d", q.bounds.Ceiling)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// TryPush appends without blocking, returning types.ErrQueueCapacityExceeded
// at the ceiling.
func (q *LessonQueue) TryPush(l *types.Lesson) error {
	if l == nil {
		return errors.New("push nil lesson")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.bounds.Ceiling {
		return types.ErrQueueCapacityExceeded
	}
	q.pushLocked(l)
	return nil
}

// Pop removes the oldest lesson, returning types.ErrQueueEmpty immediately
// when there is none.
func (q *LessonQueue) Pop() (*types.Lesson, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, types.ErrQueueEmpty
	}
	l := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.popped++
	if len(q.items) == 0 {
		q.emptySince = q.now()
	}
	q.notifyLocked()
	logging.QueueDebug("pop %s depth=%d", l.ID, len(q.items))
	return l, nil
}

// Depth returns the current number of queued lessons.
func (q *LessonQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsBelowLowWatermark reports depth < Low.
func (q *LessonQueue) IsBelowLowWatermark() bool { return q.Depth() < q.bounds.Low }

// IsAtHighWatermark reports depth >= High.
func (q *LessonQueue) IsAtHighWatermark() bool { return q.Depth() >= q.bounds.High }

// WaitForDepthBelow blocks until depth < n or ctx ends.
func (q *LessonQueue) WaitForDepthBelow(ctx context.Context, n int) error {
	for {
		q.mu.Lock()
		if len(q.items) < n {
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// EmptyFor returns how long the queue has been continuously empty, or 0
// when it holds lessons.
func (q *LessonQueue) EmptyFor() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		return 0
	}
	return q.now().Sub(q.emptySince)
}

// Snapshot returns the queue counters.
func (q *LessonQueue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Snapshot{Depth: len(q.items), Pushed: q.pushed, Popped: q.popped, Bounds: q.bounds}
	if len(q.items) == 0 {
		s.EmptyFor = q.now().Sub(q.emptySince)
	}
	return s
}
