package usage

import "time"

// StatsData is the root structure stored in stats.json.
type StatsData struct {
	Version     string          `json:"version"`
	Sessions    int             `json:"sessions"`
	Aggregate   Counters        `json:"aggregate"`
	LastSession *SessionSummary `json:"last_session,omitempty"`
}

// SessionSummary holds the counters of one run.
type SessionSummary struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Counters  Counters  `json:"counters"`
}

// Counters are the pipeline totals, overall or per session.
type Counters struct {
	LessonsBuilt   int64 `json:"lessons_built"`
	ReviewLessons  int64 `json:"review_lessons"`
	LessonsShown   int64 `json:"lessons_shown"`
	SlidesShown    int64 `json:"slides_shown"`
	TopicsSearched int64 `json:"topics_searched"`
	ItemsFetched   int64 `json:"items_fetched"`
	DuplicateItems int64 `json:"duplicate_items"`
	CacheHits      int64 `json:"cache_hits"`
	FetchFailures  int64 `json:"fetch_failures"`

	FailuresByReason map[string]int64 `json:"failures_by_reason,omitempty"`
	LessonsByTopic   map[string]int64 `json:"lessons_by_topic,omitempty"`
}

func (c *Counters) add(o Counters) {
	c.LessonsBuilt += o.LessonsBuilt
	c.ReviewLessons += o.ReviewLessons
	c.LessonsShown += o.LessonsShown
	c.SlidesShown += o.SlidesShown
	c.TopicsSearched += o.TopicsSearched
	c.ItemsFetched += o.ItemsFetched
	c.DuplicateItems += o.DuplicateItems
	c.CacheHits += o.CacheHits
	c.FetchFailures += o.FetchFailures
	for k, v := range o.FailuresByReason {
		c.FailuresByReason = incr(c.FailuresByReason, k, v)
	}
	for k, v := range o.LessonsByTopic {
		c.LessonsByTopic = incr(c.LessonsByTopic, k, v)
	}
}

func (c Counters) clone() Counters {
	c.FailuresByReason = copyMap(c.FailuresByReason)
	c.LessonsByTopic = copyMap(c.LessonsByTopic)
	return c
}

func incr(m map[string]int64, key string, n int64) map[string]int64 {
	if m == nil {
		m = make(map[string]int64)
	}
	m[key] += n
	return m
}

func copyMap(src map[string]int64) map[string]int64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
