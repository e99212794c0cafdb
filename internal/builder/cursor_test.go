package builder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	initial, max := 5*time.Second, 5*time.Minute
	assert.Equal(t, time.Duration(0), Backoff(initial, max, 0))
	assert.Equal(t, 5*time.Second, Backoff(initial, max, 1))
	assert.Equal(t, 10*time.Second, Backoff(initial, max, 2))
	assert.Equal(t, 20*time.Second, Backoff(initial, max, 3))
	assert.Equal(t, 160*time.Second, Backoff(initial, max, 6))
	assert.Equal(t, max, Backoff(initial, max, 7))
	assert.Equal(t, max, Backoff(initial, max, 60))
}

func TestCursorRoundRobin(t *testing.T) {
	c := NewTopicCursor([]string{"a", "b", "c"}, 0, time.Second, time.Minute)
	now := time.Unix(1000, 0)

	var got []string
	for i := 0; i < 6; i++ {
		topic, ok := c.Next(now)
		assert.True(t, ok)
		got = append(got, topic)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestCursorCooldownAndBackoff(t *testing.T) {
	c := NewTopicCursor([]string{"Sicilian Defense", "Italian Game"}, 2*time.Minute, 5*time.Second, time.Minute)
	now := time.Unix(1000, 0)

	// Three consecutive failures push the topic out by 5s, 10s, 20s.
	for i, want := range []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second} {
		topic, ok := c.Next(now)
		assert.True(t, ok)
		assert.Equal(t, "Sicilian Defense", topic, "attempt %d", i)
		assert.Equal(t, want, c.Failure(topic, now))
		now = now.Add(want)

		// The other topic stays available throughout.
		other, ok := c.Next(now)
		assert.True(t, ok)
		assert.Equal(t, "Italian Game", other)
	}
	assert.Equal(t, 3, c.Failures("Sicilian Defense"))
	c.Success("Italian Game", now)

	// Italian Game is cooling down; Sicilian is ready exactly at its backoff.
	_, ok := c.Next(now.Add(-time.Nanosecond))
	assert.False(t, ok)
	topic, ok := c.Next(now)
	assert.True(t, ok)
	assert.Equal(t, "Sicilian Defense", topic)

	c.Success(topic, now)
	assert.Zero(t, c.Failures(topic))
	assert.Equal(t, now.Add(2*time.Minute), c.ReadyAt(topic))
}

func TestCursorNothingReady(t *testing.T) {
	c := NewTopicCursor([]string{"a", "b"}, time.Minute, time.Second, time.Minute)
	now := time.Unix(1000, 0)
	c.Success("a", now)
	c.Failure("b", now)

	_, ok := c.Next(now)
	assert.False(t, ok)
	assert.Equal(t, now.Add(time.Second), c.EarliestReady())

	assert.Equal(t, 0, c.NextVariation("a"))
	assert.Equal(t, 1, c.NextVariation("a"))
	assert.Equal(t, 0, c.NextVariation("unknown"))
}
