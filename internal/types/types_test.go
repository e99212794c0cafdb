package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://Chess.com/Article/Opening/", "https://chess.com/Article/Opening"},
		{"https://lichess.org:443/study?b=2&a=1#intro", "https://lichess.org/study?a=1&b=2"},
		{"https://example.com/a/./b/../c?utm_source=x&fbclid=y", "https://example.com/a/c"},
		{"https://example.com", "https://example.com/"},
		{"http://127.0.0.1:8080/page", "https://127.0.0.1:8080/page"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := NormalizeURL("")
	assert.Error(t, err)
	_, err = NormalizeURL("/relative/path")
	assert.Error(t, err)
}

func TestContentIDStableAcrossEquivalentURLs(t *testing.T) {
	a, err := ContentID("http://www.chess.com/lessons?utm_campaign=z")
	require.NoError(t, err)
	b, err := ContentID("https://WWW.chess.com/lessons/#top")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, idLength)

	c, err := ContentID("https://www.chess.com/puzzles")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestItemID(t *testing.T) {
	item := &ContentItem{URL: "https://lichess.org/learn"}
	want, _ := ContentID(item.URL)
	assert.Equal(t, want, item.ItemID())

	textOnly := &ContentItem{Text: "  Control the center.  "}
	assert.Equal(t, TextID("Control the center."), textOnly.ItemID())

	explicit := &ContentItem{ID: "fixed", URL: "https://lichess.org/learn"}
	assert.Equal(t, "fixed", explicit.ItemID())
}

func TestSlideHint(t *testing.T) {
	assert.Equal(t, 1.0, Slide{}.Hint())
	assert.Equal(t, MinDurationHint, Slide{DurationHint: 0.1}.Hint())
	assert.Equal(t, MaxDurationHint, Slide{DurationHint: 9}.Hint())
	assert.Equal(t, 1.3, Slide{DurationHint: 1.3}.Hint())
}

func TestErrorTaxonomy(t *testing.T) {
	root := errors.New("connection reset")
	fe := NewFetchError("fetch", "https://chess.com", ReasonNetwork, root)
	wrapped := fmt.Errorf("topic sicilian: %w", fe)

	var got *FetchError
	require.ErrorAs(t, wrapped, &got)
	assert.Equal(t, ReasonNetwork, got.Reason)
	assert.False(t, IsCacheIOError(wrapped))
	assert.ErrorIs(t, wrapped, root)
	assert.Contains(t, fe.Error(), "network")

	ce := &CacheIOError{Op: "put", Err: root}
	assert.True(t, IsCacheIOError(fmt.Errorf("wrap: %w", ce)))
	assert.ErrorIs(t, ce, root)
}
