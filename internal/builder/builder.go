// Package builder runs the lesson production loop. It keeps the lesson
// queue between its watermarks, preferring cached material and falling back
// to the network, with per-topic cool-down and exponential backoff.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chessmaster/internal/config"
	"chessmaster/internal/fetcher"
	"chessmaster/internal/logging"
	"chessmaster/internal/queue"
	"chessmaster/internal/store"
	"chessmaster/internal/types"
)

// State is the builder's current activity.
type State int32

const (
	Idle State = iota
	Selecting
	Producing
	Pushing
	Suspended
	CoolingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Producing:
		return "producing"
	case Pushing:
		return "pushing"
	case Suspended:
		return "suspended"
	case CoolingDown:
		return "cooling_down"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ContentSource finds and fetches content. *fetcher.Fetcher implements it.
type ContentSource interface {
	Search(ctx context.Context, query string) ([]string, error)
	Fetch(ctx context.Context, topic, url string) (*types.ContentItem, error)
}

// Cache is the subset of *store.ContentCache the builder uses.
type Cache interface {
	Has(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, item *types.ContentItem) (store.PutResult, error)
	MarkURLSeen(ctx context.Context, url string) error
	SeenURL(ctx context.Context, url string) (bool, error)
	Unconsumed(ctx context.Context, topic string, limit int) ([]*types.ContentItem, error)
	MarkConsumed(ctx context.Context, lessonID string, itemIDs []string) error
	Random(ctx context.Context, limit int) ([]*types.ContentItem, error)
}

// Assembler turns items into lessons. *lesson.Assembler implements it.
type Assembler interface {
	Assemble(topic string, items []*types.ContentItem) (*types.Lesson, error)
	AssembleReview(items []*types.ContentItem) (*types.Lesson, error)
}

// Observer receives production events for statistics and metrics.
type Observer interface {
	OnSearch(topic, query string)
	OnItem(item *types.ContentItem, result store.PutResult)
	OnFetchError(topic string, err error)
	OnCacheHit(topic string, items int)
	OnLesson(l *types.Lesson)
	OnState(s State)
}

type nopObserver struct{}

func (nopObserver) OnSearch(string, string)                    {}
func (nopObserver) OnItem(*types.ContentItem, store.PutResult) {}
func (nopObserver) OnFetchError(string, error)                 {}
func (nopObserver) OnCacheHit(string, int)                     {}
func (nopObserver) OnLesson(*types.Lesson)                     {}
func (nopObserver) OnState(State)                              {}

// Options tunes the production loop.
type Options struct {
	Topics            []string
	Cooldown          time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	IdlePoll          time.Duration
	CachePause        time.Duration
	ItemsPerLesson    int
	MaxCandidates     int
	ReviewWhenStarved bool
	ReviewItems       int
}

// OptionsFrom builds Options from the application config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Topics:            cfg.Topics(),
		Cooldown:          cfg.GetCooldown(),
		BackoffInitial:    cfg.GetBackoffInitial(),
		BackoffMax:        cfg.GetBackoffMax(),
		IdlePoll:          cfg.GetIdlePoll(),
		CachePause:        cfg.GetCachePause(),
		ItemsPerLesson:    cfg.Builder.ItemsPerLesson,
		MaxCandidates:     cfg.Builder.MaxCandidates,
		ReviewWhenStarved: cfg.Builder.ReviewWhenStarved,
		ReviewItems:       cfg.Builder.ReviewItems,
	}
}

// Status is a snapshot of builder progress.
type Status struct {
	State               State
	Topic               string
	ConsecutiveFailures int
	Lessons             int
	Reviews             int
	LastLesson          time.Time
	LastError           string
}

// Builder is the producer half of the pipeline.
type Builder struct {
	opts      Options
	queue     *queue.LessonQueue
	source    ContentSource
	cache     Cache
	assembler Assembler
	obs       Observer
	cursor    *TopicCursor
	now       func() time.Time

	state atomic.Int32

	mu     sync.Mutex
	status Status
}

// New creates a builder. obs may be nil.
func New(q *queue.LessonQueue, source ContentSource, cache Cache, asm Assembler, opts Options, obs Observer) (*Builder, error) {
	if q == nil || source == nil || cache == nil || asm == nil {
		return nil, errors.New("builder: queue, source, cache and assembler are required")
	}
	if len(opts.Topics) == 0 {
		return nil, errors.New("builder: no topics")
	}
	if opts.ItemsPerLesson <= 0 {
		opts.ItemsPerLesson = 2
	}
	if opts.MaxCandidates < opts.ItemsPerLesson {
		opts.MaxCandidates = opts.ItemsPerLesson
	}
	if opts.IdlePoll <= 0 {
		opts.IdlePoll = time.Second
	}
	if opts.ReviewItems <= 0 {
		opts.ReviewItems = 2
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Builder{
		opts:      opts,
		queue:     q,
		source:    source,
		cache:     cache,
		assembler: asm,
		obs:       obs,
		cursor:    NewTopicCursor(opts.Topics, opts.Cooldown, opts.BackoffInitial, opts.BackoffMax),
		now:       time.Now,
	}, nil
}

// State returns the current state.
func (b *Builder) State() State { return State(b.state.Load()) }

func (b *Builder) setState(s State) {
	if State(b.state.Swap(int32(s))) == s {
		return
	}
	b.mu.Lock()
	b.status.State = s
	b.mu.Unlock()
	b.obs.OnState(s)
	logging.BuilderDebug("state -> %s", s)
}

// Status returns a snapshot of builder progress.
func (b *Builder) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.status
	s.State = b.State()
	return s
}

// Run produces lessons until ctx is cancelled. Fetch and cache failures are
// absorbed; Run returns nil on cancellation.
func (b *Builder) Run(ctx context.Context) error {
	logging.Builder("builder started: %d topics, items/lesson=%d", b.cursor.Len(), b.opts.ItemsPerLesson)
	defer func() {
		b.setState(Stopped)
		logging.Builder("builder stopped")
	}()

	for ctx.Err() == nil {
		// Hysteresis: once at High, wait until depth drops below Low.
		if b.queue.IsAtHighWatermark() {
			b.setState(Suspended)
			if err := b.queue.WaitForDepthBelow(ctx, b.queue.Bounds().Low); err != nil {
				return nil
			}
			continue
		}

		b.setState(Selecting)
		topic, ok := b.cursor.Next(b.now())
		if !ok {
			b.setState(CoolingDown)
			if b.queue.Depth() == 0 {
				b.pushReview(ctx)
			}
			wait := b.cursor.EarliestReady().Sub(b.now())
			if wait > b.opts.IdlePoll {
				wait = b.opts.IdlePoll
			}
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		b.step(ctx, topic)
	}
	return nil
}

// step produces and pushes one lesson for topic, handling failures.
func (b *Builder) step(ctx context.Context, topic string) {
	b.setState(Producing)
	b.mu.Lock()
	b.status.Topic = topic
	b.mu.Unlock()

	l, err := b.Produce(ctx, topic)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.handleFailure(ctx, topic, err)
		return
	}

	b.setState(Pushing)
	if err := b.queue.Push(ctx, l); err != nil {
		return
	}
	if err := b.cache.MarkConsumed(ctx, l.ID, l.Sources); err != nil {
		logging.BuilderError("mark consumed for lesson %s: %v", l.ID, err)
	}
	b.cursor.Success(topic, b.now())
	b.obs.OnLesson(l)

	b.mu.Lock()
	b.status.Lessons++
	b.status.ConsecutiveFailures = 0
	b.status.LastLesson = b.now()
	b.status.LastError = ""
	b.mu.Unlock()
	logging.Builder("queued lesson %s %q (%d slides), depth=%d", l.ID, l.Title, l.Len(), b.queue.Depth())
}

func (b *Builder) handleFailure(ctx context.Context, topic string, err error) {
	b.mu.Lock()
	b.status.ConsecutiveFailures++
	b.status.LastError = err.Error()
	b.mu.Unlock()

	if types.IsCacheIOError(err) {
		logging.BuilderError("cache failure on %q, pausing %v: %v", topic, b.opts.CachePause, err)
		b.setState(CoolingDown)
		sleep(ctx, b.opts.CachePause)
		return
	}

	backoff := b.cursor.Failure(topic, b.now())
	// Per-URL fetch failures were reported as they happened.
	var ff *fetchFailures
	if !errors.As(err, &ff) {
		b.obs.OnFetchError(topic, err)
	}
	logging.BuilderWarn("topic %q failed (%d in a row), retry in %v: %v",
		topic, b.cursor.Failures(topic), backoff, err)

	if b.opts.ReviewWhenStarved && b.queue.Depth() == 0 {
		b.pushReview(ctx)
	}
}

// Produce assembles one lesson for topic from unconsumed cached items, or
// from freshly fetched ones when the cache has none. The lesson is not
// queued.
func (b *Builder) Produce(ctx context.Context, topic string) (*types.Lesson, error) {
	items, err := b.cache.Unconsumed(ctx, topic, b.opts.ItemsPerLesson)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		b.obs.OnCacheHit(topic, len(items))
		logging.BuilderDebug("cache hit for %q: %d items", topic, len(items))
	} else {
		items, err = b.Collect(ctx, topic)
		if err != nil {
			return nil, err
		}
	}

	l, err := b.assembler.Assemble(topic, items)
	if err != nil {
		if errors.Is(err, types.ErrEmptyLesson) {
			// Unusable items must not be offered again.
			ids := make([]string, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.ItemID())
			}
			if cerr := b.cache.MarkConsumed(ctx, "discarded", ids); cerr != nil {
				return nil, cerr
			}
		}
		return nil, fmt.Errorf("assemble %q: %w", topic, err)
	}
	return l, nil
}

// Collect searches for topic and fetches new candidates into the cache
// until ItemsPerLesson items are stored. URLs already cached or already
// seen are skipped without a request.
func (b *Builder) Collect(ctx context.Context, topic string) ([]*types.ContentItem, error) {
	query := fetcher.QueryVariation(topic, b.cursor.NextVariation(topic))
	b.obs.OnSearch(topic, query)

	urls, err := b.source.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	var items []*types.ContentItem
	var failed *fetchFailures
	tried := 0
	for _, u := range urls {
		if len(items) >= b.opts.ItemsPerLesson || tried >= b.opts.MaxCandidates {
			break
		}
		id, err := types.ContentID(u)
		if err != nil {
			continue
		}
		if has, err := b.cache.Has(ctx, id); err != nil {
			return nil, err
		} else if has {
			continue
		}
		if seen, err := b.cache.SeenURL(ctx, u); err != nil {
			return nil, err
		} else if seen {
			continue
		}

		tried++
		item, err := b.source.Fetch(ctx, topic, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if failed == nil {
				failed = &fetchFailures{}
			}
			failed.last = err
			failed.n++
			b.obs.OnFetchError(topic, err)
			logging.BuilderDebug("fetch %s: %v", u, err)
			if !fetcher.IsRetryable(err) {
				if merr := b.cache.MarkURLSeen(ctx, u); merr != nil {
					return nil, merr
				}
			}
			continue
		}

		res, err := b.cache.Put(ctx, item)
		if err != nil {
			return nil, err
		}
		b.obs.OnItem(item, res)
		items = append(items, item)
	}

	if len(items) == 0 {
		if failed == nil {
			return nil, types.NewFetchError("search", query, types.ReasonNoResults, errors.New("no new candidates"))
		}
		return nil, failed
	}
	return items, nil
}

// fetchFailures is returned by Collect when every fetched candidate failed.
// It unwraps to the last failure.
type fetchFailures struct {
	last error
	n    int
}

func (e *fetchFailures) Error() string {
	if e.n == 1 {
		return e.last.Error()
	}
	return fmt.Sprintf("%d fetches failed, last: %v", e.n, e.last)
}

func (e *fetchFailures) Unwrap() error { return e.last }

// pushReview queues a review lesson from random cached items without
// blocking. It is a no-op when the cache is empty.
func (b *Builder) pushReview(ctx context.Context) {
	if !b.opts.ReviewWhenStarved {
		return
	}
	items, err := b.cache.Random(ctx, b.opts.ReviewItems)
	if err != nil {
		logging.BuilderError("review: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}
	l, err := b.assembler.AssembleReview(items)
	if err != nil {
		logging.BuilderDebug("review assemble: %v", err)
		return
	}
	if err := b.queue.TryPush(l); err != nil {
		return
	}
	b.obs.OnLesson(l)

	b.mu.Lock()
	b.status.Reviews++
	b.mu.Unlock()
	logging.Builder("queued review lesson %s %q", l.ID, l.Title)
}

// sleep waits for d or until ctx ends, reporting whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
