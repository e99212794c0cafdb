package system

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chessmaster/internal/config"
	"chessmaster/internal/presentation"
	"chessmaster/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener goroutine until Close.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

type stubSource struct {
	seq atomic.Int64
}

func (s *stubSource) Search(ctx context.Context, query string) ([]string, error) {
	var out []string
	for i := 0; i < 3; i++ {
		out = append(out, fmt.Sprintf("https://example.com/%d", s.seq.Add(1)))
	}
	return out, nil
}

func (s *stubSource) Fetch(ctx context.Context, topic, url string) (*types.ContentItem, error) {
	id, err := types.ContentID(url)
	if err != nil {
		return nil, err
	}
	return &types.ContentItem{
		ID:       id,
		URL:      url,
		Topic:    topic,
		Title:    "Notes on " + topic,
		Excerpts: []string{"Control the centre early and develop knights before bishops."},
		Kind:     types.SourcePage,
	}, nil
}

type countingDisplay struct {
	mu     sync.Mutex
	slides int
}

func (d *countingDisplay) ShowSlide(presentation.SlideView) {
	d.mu.Lock()
	d.slides++
	d.mu.Unlock()
}
func (d *countingDisplay) ShowWaiting(presentation.WaitingView) {}
func (d *countingDisplay) ShowStatus(presentation.StatusView)   {}
func (d *countingDisplay) Close() error                         { return nil }

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Presentation.Speed = config.MaxSpeed
	cfg.Presentation.PollInterval = "10ms"
	cfg.Builder.IdlePoll = "10ms"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ""
	return cfg
}

func TestBootRunAndClose(t *testing.T) {
	cfg := testConfig(t)
	p, err := Boot(context.Background(), cfg, BootOptions{Source: &stubSource{}, SkipLogging: true})
	require.NoError(t, err)
	assert.Nil(t, p.Fetcher, "injected source replaces the fetcher")
	assert.NotEmpty(t, p.SessionID)

	display := &countingDisplay{}
	driver := p.AttachDisplay(display)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	require.Eventually(t, func() bool { return driver.LessonsShown() >= 1 }, 15*time.Second, 10*time.Millisecond)
	driver.Send(presentation.Exit)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after exit")
	}

	session := p.Usage.Session()
	assert.GreaterOrEqual(t, session.Counters.LessonsBuilt, int64(1))
	assert.GreaterOrEqual(t, session.Counters.SlidesShown, int64(1))

	entries, err := p.Cache.History().Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.Equal(t, p.SessionID, entries[0].SessionID)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = os.Stat(cfg.StatsPath())
	assert.NoError(t, err, "stats persisted on close")
}

func TestRunWithoutDisplay(t *testing.T) {
	p, err := Boot(context.Background(), testConfig(t), BootOptions{Source: &stubSource{}, SkipLogging: true})
	require.NoError(t, err)
	defer p.Close()
	assert.Error(t, p.Run(context.Background()))
}

func TestBootRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.LowWatermark = 9
	_, err := Boot(context.Background(), cfg, BootOptions{SkipLogging: true})
	assert.ErrorContains(t, err, "invalid config")
}

func TestBootUnwritableDataDir(t *testing.T) {
	cfg := testConfig(t)
	blocker := cfg.DataDir + "/file"
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.DataDir = blocker + "/data"
	_, err := Boot(context.Background(), cfg, BootOptions{SkipLogging: true})
	assert.ErrorContains(t, err, "data directory not writable")
}
