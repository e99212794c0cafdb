package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultSpeed, cfg.Presentation.Speed)
	assert.Equal(t, 3, cfg.Queue.LowWatermark)
	assert.Equal(t, 8, cfg.Queue.HighWatermark)
	assert.Equal(t, 10, cfg.Queue.Ceiling)
	assert.Equal(t, TopicSetLessons, cfg.Builder.TopicSet)
	assert.Contains(t, cfg.Topics(), "sicilian defense chess")
	assert.NotEmpty(t, cfg.TopicSets[TopicSetHistory])
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Queue, cfg.Queue)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
presentation:
  speed: 150
  poll_interval: 250ms
queue:
  low_watermark: 2
  high_watermark: 4
  ceiling: 6
builder:
  topic_set: history
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.Presentation.Speed)
	assert.Equal(t, 250*time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, QueueConfig{LowWatermark: 2, HighWatermark: 4, Ceiling: 6}, cfg.Queue)
	assert.Equal(t, cfg.TopicSets[TopicSetHistory], cfg.Topics())
	// Untouched sections keep their defaults.
	assert.Equal(t, 50000, cfg.Fetcher.MaxContentLength)
	require.NoError(t, cfg.Validate())
}

func TestLoadClampsSpeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presentation:\n  speed: 900\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, MaxSpeed, cfg.Presentation.Speed)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Presentation.Speed = 42

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Presentation.Speed)
}

func TestClampSpeed(t *testing.T) {
	assert.Equal(t, 1, ClampSpeed(-5))
	assert.Equal(t, 1, ClampSpeed(0))
	assert.Equal(t, 77, ClampSpeed(77))
	assert.Equal(t, 200, ClampSpeed(201))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"low above high", func(c *Config) { c.Queue.LowWatermark = 9 }, true},
		{"high above ceiling", func(c *Config) { c.Queue.HighWatermark = 11 }, true},
		{"zero low", func(c *Config) { c.Queue.LowWatermark = 0 }, true},
		{"equal bounds", func(c *Config) { c.Queue = QueueConfig{1, 1, 1} }, false},
		{"speed out of range", func(c *Config) { c.Presentation.Speed = 0 }, true},
		{"unknown topic set", func(c *Config) { c.Builder.TopicSet = "puzzles" }, true},
		{"bad duration", func(c *Config) { c.Builder.Cooldown = "soon" }, true},
		{"no items", func(c *Config) { c.Builder.ItemsPerLesson = 0 }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 500*time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, 2*time.Minute, cfg.GetCooldown())
	assert.Equal(t, 5*time.Minute, cfg.GetBackoffMax())
	assert.Equal(t, 15*time.Second, cfg.GetFetchTimeout())
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/cm"
	assert.Equal(t, "/tmp/cm/chessmaster.db", cfg.DBPath())
	assert.Equal(t, "/tmp/cm/images", cfg.ImagesDir())
	assert.Equal(t, "/tmp/cm/stats.json", cfg.StatsPath())

	cfg.Storage.DatabasePath = "/var/lib/cm.db"
	assert.Equal(t, "/var/lib/cm.db", cfg.DBPath())
}

func TestLoggingSettings(t *testing.T) {
	lc := LoggingConfig{DebugMode: true, Format: "json", Categories: map[string]bool{"queue": false}}
	s := lc.Settings()
	assert.True(t, s.JSONFormat)
	assert.False(t, lc.IsCategoryEnabled("queue"))
	assert.True(t, lc.IsCategoryEnabled("builder"))
}
