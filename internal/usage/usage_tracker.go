// Package usage keeps per-session pipeline statistics and persists them to
// stats.json so totals survive across runs.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chessmaster/internal/logging"
)

type contextKey struct{}

const (
	statsVersion     = "1.0"
	autoSaveDebounce = 5 * time.Second
)

// Tracker records pipeline events for the current session.
type Tracker struct {
	mu            sync.Mutex
	data          StatsData
	session       SessionSummary
	filePath      string
	dirty         bool
	closed        bool
	autoSaveTimer *time.Timer
	debounce      time.Duration
	now           func() time.Time
}

// NewTracker loads the statistics at path and starts a new session.
func NewTracker(path, sessionID string) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create stats dir: %w", err)
	}
	t := &Tracker{
		filePath: path,
		data:     StatsData{Version: statsVersion},
		debounce: autoSaveDebounce,
		now:      time.Now,
	}
	if err := t.Load(); err != nil {
		// A corrupt file is replaced on the next save.
		logging.Get(logging.CategorySession).Warn("ignoring unreadable %s: %v", path, err)
		t.data = StatsData{Version: statsVersion}
	}
	t.session = SessionSummary{ID: sessionID, StartedAt: t.now()}
	return t, nil
}

// Load reads the statistics from disk. A missing file is not an error.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var sd StatsData
	if err := json.Unmarshal(data, &sd); err != nil {
		return err
	}
	t.data = sd
	return nil
}

// Save writes the aggregate including the running session.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	out := t.data
	out.Version = statsVersion
	out.Sessions++
	agg := out.Aggregate.clone()
	agg.add(t.session.Counters)
	out.Aggregate = agg
	last := t.session
	last.Counters = last.Counters.clone()
	out.LastSession = &last

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	tmp := t.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	t.dirty = false
	return os.Rename(tmp, t.filePath)
}

// update applies fn under the lock and schedules a debounced save.
func (t *Tracker) update(fn func(c *Counters)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.session.Counters)

	if t.dirty || t.closed || t.debounce <= 0 {
		return
	}
	t.dirty = true
	t.autoSaveTimer = time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed || !t.dirty {
			return
		}
		if err := t.saveLocked(); err != nil {
			logging.Get(logging.CategorySession).Error("autosave stats: %v", err)
		}
	})
}

func (t *Tracker) RecordSearch(topic string) {
	t.update(func(c *Counters) { c.TopicsSearched++ })
}

// RecordItem counts a fetched item. Duplicates were already cached.
func (t *Tracker) RecordItem(duplicate bool) {
	t.update(func(c *Counters) {
		c.ItemsFetched++
		if duplicate {
			c.DuplicateItems++
		}
	})
}

func (t *Tracker) RecordFetchFailure(reason string) {
	t.update(func(c *Counters) {
		c.FetchFailures++
		c.FailuresByReason = incr(c.FailuresByReason, reason, 1)
	})
}

func (t *Tracker) RecordCacheHit() {
	t.update(func(c *Counters) { c.CacheHits++ })
}

func (t *Tracker) RecordLessonBuilt(topic string, review bool) {
	t.update(func(c *Counters) {
		c.LessonsBuilt++
		if review {
			c.ReviewLessons++
		}
		c.LessonsByTopic = incr(c.LessonsByTopic, topic, 1)
	})
}

func (t *Tracker) RecordSlideShown() {
	t.update(func(c *Counters) { c.SlidesShown++ })
}

func (t *Tracker) RecordLessonShown() {
	t.update(func(c *Counters) { c.LessonsShown++ })
}

// Session returns a copy of the running session.
func (t *Tracker) Session() SessionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session
	s.Counters = s.Counters.clone()
	return s
}

// Stats returns the persisted totals, excluding the running session.
func (t *Tracker) Stats() StatsData {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.data
	d.Aggregate = d.Aggregate.clone()
	return d
}

// Close ends the session and saves it. Later events are counted but not
// persisted.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.autoSaveTimer != nil {
		t.autoSaveTimer.Stop()
	}
	t.session.EndedAt = t.now()
	if err := t.saveLocked(); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	logging.Session("session %s saved: %s", t.session.ID, Summary(t.session.Counters))
	return nil
}

// Summary renders counters as the one-line shutdown report.
func Summary(c Counters) string {
	parts := []string{
		fmt.Sprintf("lessons built: %d", c.LessonsBuilt),
		fmt.Sprintf("lessons shown: %d", c.LessonsShown),
		fmt.Sprintf("slides shown: %d", c.SlidesShown),
		fmt.Sprintf("topics searched: %d", c.TopicsSearched),
		fmt.Sprintf("items fetched: %d", c.ItemsFetched),
		fmt.Sprintf("cache hits: %d", c.CacheHits),
		fmt.Sprintf("fetch failures: %d", c.FetchFailures),
	}
	if c.ReviewLessons > 0 {
		parts = append(parts, fmt.Sprintf("reviews: %d", c.ReviewLessons))
	}
	return strings.Join(parts, ", ")
}

// NewContext returns a context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from ctx, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}
