package store

import (
	"context"
	"time"

	"chessmaster/internal/types"
)

// HistoryEntry records one presented lesson. History is reporting-only;
// nothing in the pipeline reads it back.
type HistoryEntry struct {
	SessionID   string    `json:"session_id"`
	LessonID    string    `json:"lesson_id"`
	Topic       string    `json:"topic"`
	Title       string    `json:"title"`
	SlidesTotal int       `json:"slides_total"`
	SlidesShown int       `json:"slides_shown"`
	Review      bool      `json:"review"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// History is the presentation log, sharing the content cache's database.
type History struct {
	cache *ContentCache
}

// History returns the presentation log backed by this cache.
func (c *ContentCache) History() *History { return &History{cache: c} }

// Record appends an entry.
func (h *History) Record(ctx context.Context, e HistoryEntry) error {
	c := h.cache
	c.mu.Lock()
	defer c.mu.Unlock()

	review := 0
	if e.Review {
		review = 1
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO lesson_history
		 (session_id, lesson_id, topic, title, slides_total, slides_shown, review, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.LessonID, e.Topic, e.Title, e.SlidesTotal, e.SlidesShown, review,
		e.StartedAt.UnixNano(), e.FinishedAt.UnixNano(),
	); err != nil {
		return &types.CacheIOError{Op: "history_record", Err: err}
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	c := h.cache
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT session_id, lesson_id, topic, title, slides_total, slides_shown, review, started_at, finished_at
		 FROM lesson_history ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &types.CacheIOError{Op: "history_recent", Err: err}
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e                 HistoryEntry
			review            int
			started, finished int64
		)
		if err := rows.Scan(&e.SessionID, &e.LessonID, &e.Topic, &e.Title,
			&e.SlidesTotal, &e.SlidesShown, &review, &started, &finished); err != nil {
			return nil, &types.CacheIOError{Op: "history_recent", Err: err}
		}
		e.Review = review != 0
		e.StartedAt = time.Unix(0, started)
		e.FinishedAt = time.Unix(0, finished)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.CacheIOError{Op: "history_recent", Err: err}
	}
	return out, nil
}
