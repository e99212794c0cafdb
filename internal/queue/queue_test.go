package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chessmaster/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func lesson(id string) *types.Lesson {
	return &types.Lesson{ID: id, Topic: "chess opening principles", Slides: []types.Slide{{ID: id + "-0"}}}
}

func newQueue(t *testing.T, b Bounds) *LessonQueue {
	t.Helper()
	q, err := New(b)
	require.NoError(t, err)
	return q
}

func TestBoundsValidate(t *testing.T) {
	assert.NoError(t, DefaultBounds().Validate())
	assert.NoError(t, Bounds{1, 1, 1}.Validate())
	assert.Error(t, Bounds{0, 1, 1}.Validate())
	assert.Error(t, Bounds{4, 3, 10}.Validate())
	assert.Error(t, Bounds{1, 11, 10}.Validate())

	_, err := New(Bounds{5, 2, 1})
	assert.Error(t, err)
}

func TestFIFOAndEmpty(t *testing.T) {
	q := newQueue(t, DefaultBounds())

	_, err := q.Pop()
	assert.ErrorIs(t, err, types.ErrQueueEmpty)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, lesson(fmt.Sprint(i))))
	}
	assert.Equal(t, 3, q.Depth())

	for i := 0; i < 3; i++ {
		l, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), l.ID)
	}
	_, err = q.Pop()
	assert.ErrorIs(t, err, types.ErrQueueEmpty)
	assert.Equal(t, 0, q.Depth())
}

func TestWatermarks(t *testing.T) {
	q := newQueue(t, Bounds{Low: 2, High: 4, Ceiling: 5})
	ctx := context.Background()

	assert.True(t, q.IsBelowLowWatermark())
	assert.False(t, q.IsAtHighWatermark())

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Push(ctx, lesson(fmt.Sprint(i))))
	}
	assert.False(t, q.IsBelowLowWatermark())
	assert.True(t, q.IsAtHighWatermark())

	_, _ = q.Pop()
	_, _ = q.Pop()
	_, _ = q.Pop()
	assert.True(t, q.IsBelowLowWatermark())
}

func TestTryPushAtCeiling(t *testing.T) {
	q := newQueue(t, Bounds{Low: 1, High: 2, Ceiling: 2})
	require.NoError(t, q.TryPush(lesson("a")))
	require.NoError(t, q.TryPush(lesson("b")))
	assert.ErrorIs(t, q.TryPush(lesson("c")), types.ErrQueueCapacityExceeded)
	assert.Equal(t, 2, q.Depth())
	assert.Error(t, q.TryPush(nil))
}

func TestPushBlocksAtCeilingUntilPop(t *testing.T) {
	q := newQueue(t, Bounds{Low: 1, High: 1, Ceiling: 1})
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, lesson("first")))

	done := make(chan error, 1)
	go func() { done <- q.Push(ctx, lesson("second")) }()

	select {
	case <-done:
		t.Fatal("push should block at the ceiling")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, q.Depth())

	l, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, "first", l.ID)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after pop")
	}

	l, err = q.Pop()
	require.NoError(t, err)
	assert.Equal(t, "second", l.ID, "blocked lesson must not be dropped")
}

func TestPushCancelled(t *testing.T) {
	q := newQueue(t, Bounds{Low: 1, High: 1, Ceiling: 1})
	require.NoError(t, q.Push(context.Background(), lesson("first")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Push(ctx, lesson("second"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Depth())
}

func TestConcurrentDepthAccounting(t *testing.T) {
	b := Bounds{Low: 2, High: 6, Ceiling: 8}
	q := newQueue(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const producers, perProducer = 4, 50
	total := producers * perProducer

	var maxDepth atomic.Int64
	var popped atomic.Int64
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if !assert.NoError(t, q.Push(ctx, lesson(fmt.Sprintf("%d-%d", p, i)))) {
					return
				}
				d := int64(q.Depth())
				for {
					cur := maxDepth.Load()
					if d <= cur || maxDepth.CompareAndSwap(cur, d) {
						break
					}
				}
			}
		}(p)
	}

	seen := make(map[string]bool)
	var seenMu sync.Mutex
	for c := 0; c < 3; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for popped.Load() < int64(total) {
				l, err := q.Pop()
				if err != nil {
					select {
					case <-q.Changed():
					case <-time.After(5 * time.Millisecond):
					case <-ctx.Done():
						return
					}
					continue
				}
				seenMu.Lock()
				assert.False(t, seen[l.ID], "lesson %s delivered twice", l.ID)
				seen[l.ID] = true
				seenMu.Unlock()
				popped.Add(1)
				assert.GreaterOrEqual(t, q.Depth(), 0)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(total), popped.Load())
	assert.Len(t, seen, total)
	assert.Equal(t, 0, q.Depth())
	assert.LessOrEqual(t, maxDepth.Load(), int64(b.Ceiling))

	s := q.Snapshot()
	assert.Equal(t, uint64(total), s.Pushed)
	assert.Equal(t, uint64(total), s.Popped)
}

func TestWaitForDepthBelow(t *testing.T) {
	q := newQueue(t, Bounds{Low: 1, High: 2, Ceiling: 3})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, lesson(fmt.Sprint(i))))
	}

	done := make(chan error, 1)
	go func() { done <- q.WaitForDepthBelow(ctx, 2) }()

	_, _ = q.Pop()
	select {
	case <-done:
		t.Fatal("depth 2 is not below 2")
	case <-time.After(30 * time.Millisecond):
	}

	_, _ = q.Pop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.NoError(t, q.WaitForDepthBelow(cctx, 5), "already satisfied returns nil even when cancelled")
	assert.ErrorIs(t, q.WaitForDepthBelow(cctx, 0), context.Canceled)
}

func TestEmptyFor(t *testing.T) {
	q := newQueue(t, DefaultBounds())
	clock := time.Unix(1000, 0)
	q.now = func() time.Time { return clock }
	q.emptySince = clock

	clock = clock.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, q.EmptyFor())

	require.NoError(t, q.Push(context.Background(), lesson("a")))
	assert.Equal(t, time.Duration(0), q.EmptyFor())

	clock = clock.Add(time.Second)
	_, err := q.Pop()
	require.NoError(t, err)
	clock = clock.Add(2 * time.Second)
	assert.Equal(t, 2*time.Second, q.EmptyFor())
	assert.Equal(t, 2*time.Second, q.Snapshot().EmptyFor)
}
