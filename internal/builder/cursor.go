package builder

import (
	"math"
	"time"
)

type topicState struct {
	readyAt   time.Time
	failures  int
	variation int
}

// TopicCursor walks a fixed topic list round-robin, skipping topics that
// are cooling down after a lesson or backing off after failures. It is
// owned by a single builder goroutine and is not safe for concurrent use.
type TopicCursor struct {
	topics []string
	states map[string]*topicState
	next   int

	cooldown       time.Duration
	backoffInitial time.Duration
	backoffMax     time.Duration
}

// NewTopicCursor creates a cursor over topics. Duplicate topics are
// dropped; order is kept.
func NewTopicCursor(topics []string, cooldown, backoffInitial, backoffMax time.Duration) *TopicCursor {
	c := &TopicCursor{
		states:         make(map[string]*topicState, len(topics)),
		cooldown:       cooldown,
		backoffInitial: backoffInitial,
		backoffMax:     backoffMax,
	}
	for _, t := range topics {
		if _, dup := c.states[t]; dup || t == "" {
			continue
		}
		c.topics = append(c.topics, t)
		c.states[t] = &topicState{}
	}
	return c
}

// Len returns the number of topics.
func (c *TopicCursor) Len() int { return len(c.topics) }

// Next returns the next ready topic after the last one returned.
func (c *TopicCursor) Next(now time.Time) (string, bool) {
	n := len(c.topics)
	for i := 0; i < n; i++ {
		idx := (c.next + i) % n
		t := c.topics[idx]
		if !now.Before(c.states[t].readyAt) {
			c.next = (idx + 1) % n
			return t, true
		}
	}
	return "", false
}

// EarliestReady returns when the next topic becomes ready.
func (c *TopicCursor) EarliestReady() time.Time {
	var earliest time.Time
	for i, t := range c.topics {
		r := c.states[t].readyAt
		if i == 0 || r.Before(earliest) {
			earliest = r
		}
	}
	return earliest
}

// Success resets the topic's failure count and starts its cool-down.
func (c *TopicCursor) Success(topic string, now time.Time) {
	s, ok := c.states[topic]
	if !ok {
		return
	}
	s.failures = 0
	s.readyAt = now.Add(c.cooldown)
}

// Failure records a failed attempt and returns the backoff applied.
func (c *TopicCursor) Failure(topic string, now time.Time) time.Duration {
	s, ok := c.states[topic]
	if !ok {
		return 0
	}
	s.failures++
	d := Backoff(c.backoffInitial, c.backoffMax, s.failures)
	s.readyAt = now.Add(d)
	return d
}

// Failures returns the topic's consecutive failure count.
func (c *TopicCursor) Failures(topic string) int {
	if s, ok := c.states[topic]; ok {
		return s.failures
	}
	return 0
}

// ReadyAt returns when topic may be attempted again.
func (c *TopicCursor) ReadyAt(topic string) time.Time {
	if s, ok := c.states[topic]; ok {
		return s.readyAt
	}
	return time.Time{}
}

// NextVariation returns a per-topic counter used to rotate search phrasings.
func (c *TopicCursor) NextVariation(topic string) int {
	s, ok := c.states[topic]
	if !ok {
		return 0
	}
	v := s.variation
	s.variation++
	return v
}

// Backoff computes initial * 2^(failures-1), capped at max.
func Backoff(initial, max time.Duration, failures int) time.Duration {
	if failures <= 0 || initial <= 0 {
		return 0
	}
	d := float64(initial) * math.Pow(2, float64(failures-1))
	if max > 0 && d > float64(max) {
		return max
	}
	return time.Duration(d)
}
