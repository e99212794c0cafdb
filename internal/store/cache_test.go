package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chessmaster/internal/types"
)

func newTestCache(t *testing.T) *ContentCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func item(url, topic string) *types.ContentItem {
	return &types.ContentItem{
		URL:       url,
		Title:     "Title for " + url,
		Topic:     topic,
		Text:      "The knight moves in an L shape and can jump over other pieces.",
		Excerpts:  []string{"The knight moves in an L shape."},
		ImageURLs: []string{url + "/board.png"},
		Kind:      types.SourcePage,
		FetchedAt: time.Unix(1700000000, 0),
	}
}

func TestOpenMemory(t *testing.T) {
	c, err := Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, CurrentSchemaVersion, SchemaVersion(c.db))
}

func TestPutGetHas(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	in := item("https://lichess.org/learn", "chess basics for beginners")
	id := in.ItemID()

	ok, err := c.Has(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	res, err := c.Put(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, Stored, res)

	ok, err = c.Has(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Excerpts, got.Excerpts)
	assert.Equal(t, in.ImageURLs, got.ImageURLs)
	assert.Equal(t, []types.LocalImage{}, got.LocalImages)
	assert.True(t, in.FetchedAt.Equal(got.FetchedAt))

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPutKeepsImageSources(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	in := item("https://www.chessgames.com/endgames", "chess endgame techniques")
	in.LocalImages = []types.LocalImage{
		{Path: "/data/images/endgames/0a1b2c3d4e.png", SourceURL: "https://www.chessgames.com/img/lucena-diagram.png"},
	}
	_, err := c.Put(ctx, in)
	require.NoError(t, err)

	got, err := c.Get(ctx, in.ItemID())
	require.NoError(t, err)
	assert.Equal(t, in.LocalImages, got.LocalImages)
	assert.True(t, got.HasImages())
	assert.Equal(t, []string{"/data/images/endgames/0a1b2c3d4e.png"}, got.ImagePaths())
}

func TestPutIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	first := item("https://chess.com/lessons/pins", "basic chess tactics")
	res, err := c.Put(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, Stored, res)

	// Same identity via an equivalent URL, different payload.
	second := item("http://CHESS.com/lessons/pins/?utm_source=feed", "basic chess tactics")
	second.Title = "Changed"
	res, err = c.Put(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, DuplicateIgnored, res)

	got, err := c.Get(ctx, first.ItemID())
	require.NoError(t, err)
	assert.Equal(t, first.Title, got.Title, "duplicate put must not overwrite")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items)
}

func TestPutSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	c, err := Open(path)
	require.NoError(t, err)
	in := item("https://chessbase.com/post/endgames", "chess endgame techniques")
	_, err = c.Put(ctx, in)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	ok, err := reopened.Has(ctx, in.ItemID())
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := reopened.Put(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, DuplicateIgnored, res)
	assert.Equal(t, CurrentSchemaVersion, SchemaVersion(reopened.db))
}

func TestConcurrentPutsOfSameIdentity(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var wg sync.WaitGroup
	results := make(chan PutResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Put(ctx, item("https://lichess.org/practice", "chess tactics puzzles"))
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	stored := 0
	for r := range results {
		if r == Stored {
			stored++
		}
	}
	assert.Equal(t, 1, stored)
}

func TestClosedCacheReturnsCacheIOError(t *testing.T) {
	ctx := context.Background()
	c, err := Open(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Has(ctx, "x")
	assert.True(t, types.IsCacheIOError(err))

	_, err = c.Put(ctx, item("https://chess.com/a", "t"))
	var ce *types.CacheIOError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "put", ce.Op)
}

func TestSeenURLs(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	seen, err := c.SeenURL(ctx, "https://chess.com/empty")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, c.MarkURLSeen(ctx, "https://chess.com/empty"))
	require.NoError(t, c.MarkURLSeen(ctx, "https://chess.com/empty"))
	seen, err = c.SeenURL(ctx, "https://chess.com/empty")
	require.NoError(t, err)
	assert.True(t, seen)

	// Put marks the item's URL seen too.
	in := item("https://chess.com/full", "t")
	_, err = c.Put(ctx, in)
	require.NoError(t, err)
	seen, err = c.SeenURL(ctx, in.URL)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestUnconsumedAndMarkConsumed(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	topic := "ruy lopez opening"

	for i := 0; i < 3; i++ {
		in := item(fmt.Sprintf("https://chess.com/ruy/%d", i), topic)
		in.FetchedAt = time.Unix(int64(1700000000+i), 0)
		_, err := c.Put(ctx, in)
		require.NoError(t, err)
	}
	_, err := c.Put(ctx, item("https://chess.com/other", "other topic"))
	require.NoError(t, err)

	items, err := c.Unconsumed(ctx, topic, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "https://chess.com/ruy/0", items[0].URL, "oldest first")

	require.NoError(t, c.MarkConsumed(ctx, "lesson-1", []string{items[0].ID, items[1].ID}))
	left, err := c.Unconsumed(ctx, topic, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, items[2].ID, left[0].ID)

	limited, err := c.Unconsumed(ctx, "other topic", 0)
	require.NoError(t, err)
	assert.Empty(t, limited)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Items)
	assert.Equal(t, 3, stats.ByTopic[topic])
	assert.Equal(t, 2, stats.Consumed)
}

func TestRandom(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	items, err := c.Random(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, items)

	for i := 0; i < 5; i++ {
		_, err := c.Put(ctx, item(fmt.Sprintf("https://lichess.org/study/%d", i), "t"))
		require.NoError(t, err)
	}
	items, err = c.Random(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestTextOnlyItemIdentity(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	in := &types.ContentItem{Topic: "t", Text: "Rooks belong on open files.", Kind: types.SourceText}
	res, err := c.Put(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, Stored, res)

	res, err = c.Put(ctx, &types.ContentItem{Topic: "t", Text: "Rooks belong on open files."})
	require.NoError(t, err)
	assert.Equal(t, DuplicateIgnored, res)
}
