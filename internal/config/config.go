package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Speed bounds accepted by the presentation pacing.
const (
	MinSpeed     = 1
	MaxSpeed     = 200
	DefaultSpeed = 100
)

// Config holds all chessmaster configuration.
type Config struct {
	// Root for the database, media, logs and session files.
	DataDir string `yaml:"data_dir" env:"CHESSMASTER_DATA_DIR"`

	Presentation PresentationConfig `yaml:"presentation"`
	Queue        QueueConfig        `yaml:"queue"`
	Builder      BuilderConfig      `yaml:"builder"`
	Fetcher      FetcherConfig      `yaml:"fetcher"`
	Browser      BrowserConfig      `yaml:"browser"`
	Storage      StorageConfig      `yaml:"storage"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`

	// Named topic lists; Builder.TopicSet picks one.
	TopicSets map[string][]string `yaml:"topic_sets"`
}

// PresentationConfig configures the consumer side.
type PresentationConfig struct {
	Speed               int    `yaml:"speed" env:"CHESSMASTER_SPEED"`
	PollInterval        string `yaml:"poll_interval"`
	StarvationThreshold string `yaml:"starvation_threshold"`
	ShutdownGrace       string `yaml:"shutdown_grace"`
	Headless            bool   `yaml:"headless" env:"CHESSMASTER_HEADLESS"`
	Theme               string `yaml:"theme" env:"CHESSMASTER_THEME"` // auto, dark, light
	WordWrap            int    `yaml:"word_wrap"`
}

// QueueConfig holds the lesson queue bounds.
type QueueConfig struct {
	LowWatermark  int `yaml:"low_watermark"`
	HighWatermark int `yaml:"high_watermark"`
	Ceiling       int `yaml:"ceiling"`
}

// BuilderConfig configures the producer loop.
type BuilderConfig struct {
	TopicSet       string `yaml:"topic_set" env:"CHESSMASTER_TOPICS"`
	Cooldown       string `yaml:"cooldown"`
	BackoffInitial string `yaml:"backoff_initial"`
	BackoffMax     string `yaml:"backoff_max"`
	IdlePoll       string `yaml:"idle_poll"`
	CachePause     string `yaml:"cache_pause"`
	ItemsPerLesson int    `yaml:"items_per_lesson"`
	MaxCandidates  int    `yaml:"max_candidates"`
	// Assemble review lessons from cached material when fetching fails
	// and the queue has run dry.
	ReviewWhenStarved bool `yaml:"review_when_starved"`
	ReviewItems       int  `yaml:"review_items"`
}

// StorageConfig configures persisted state.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path" env:"CHESSMASTER_DB"`
	HistoryEnabled bool   `yaml:"history_enabled"`
	StatsFile      string `yaml:"stats_file"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" env:"CHESSMASTER_METRICS_ADDR"`
}

// DefaultDataDir returns ~/.chessmaster, or .chessmaster when no home
// directory can be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".chessmaster"
	}
	return filepath.Join(home, ".chessmaster")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),

		Presentation: PresentationConfig{
			Speed:               DefaultSpeed,
			PollInterval:        "500ms",
			StarvationThreshold: "10s",
			ShutdownGrace:       "5s",
			Theme:               "auto",
			WordWrap:            80,
		},

		Queue: QueueConfig{
			LowWatermark:  3,
			HighWatermark: 8,
			Ceiling:       10,
		},

		Builder: BuilderConfig{
			TopicSet:          TopicSetLessons,
			Cooldown:          "2m",
			BackoffInitial:    "5s",
			BackoffMax:        "5m",
			IdlePoll:          "1s",
			CachePause:        "10s",
			ItemsPerLesson:    2,
			MaxCandidates:     5,
			ReviewWhenStarved: true,
			ReviewItems:       2,
		},

		Fetcher: DefaultFetcherConfig(),
		Browser: DefaultBrowserConfig(),

		Storage: StorageConfig{
			HistoryEnabled: true,
			StatsFile:      "stats.json",
		},

		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},

		TopicSets: DefaultTopicSets(),
	}
}

// Load loads configuration from a YAML file layered over the defaults,
// then applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.Presentation.Speed = ClampSpeed(cfg.Presentation.Speed)
	if len(cfg.TopicSets) == 0 {
		cfg.TopicSets = DefaultTopicSets()
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies CHESSMASTER_* environment variables.
func (c *Config) applyEnvOverrides() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ClampSpeed bounds a speed value to [MinSpeed, MaxSpeed].
func ClampSpeed(speed int) int {
	if speed < MinSpeed {
		return MinSpeed
	}
	if speed > MaxSpeed {
		return MaxSpeed
	}
	return speed
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetPollInterval returns how often the presentation polls an empty queue.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Presentation.PollInterval, 500*time.Millisecond)
}

// GetStarvationThreshold returns how long the queue may stay empty before
// the display reports it.
func (c *Config) GetStarvationThreshold() time.Duration {
	return parseDuration(c.Presentation.StarvationThreshold, 10*time.Second)
}

// GetShutdownGrace returns the bound on orderly shutdown.
func (c *Config) GetShutdownGrace() time.Duration {
	return parseDuration(c.Presentation.ShutdownGrace, 5*time.Second)
}

// GetCooldown returns the per-topic cool-down after a successful lesson.
func (c *Config) GetCooldown() time.Duration {
	return parseDuration(c.Builder.Cooldown, 2*time.Minute)
}

// GetBackoffInitial returns the first backoff step after a topic failure.
func (c *Config) GetBackoffInitial() time.Duration {
	return parseDuration(c.Builder.BackoffInitial, 5*time.Second)
}

// GetBackoffMax returns the backoff cap.
func (c *Config) GetBackoffMax() time.Duration {
	return parseDuration(c.Builder.BackoffMax, 5*time.Minute)
}

// GetIdlePoll returns the builder's wake-up interval while suspended.
func (c *Config) GetIdlePoll() time.Duration {
	return parseDuration(c.Builder.IdlePoll, time.Second)
}

// GetCachePause returns how long production pauses after a storage error.
func (c *Config) GetCachePause() time.Duration {
	return parseDuration(c.Builder.CachePause, 10*time.Second)
}

// DBPath returns the content database location.
func (c *Config) DBPath() string {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath
	}
	return filepath.Join(c.DataDir, "chessmaster.db")
}

// ImagesDir returns where downloaded images are stored.
func (c *Config) ImagesDir() string { return filepath.Join(c.DataDir, "images") }

// PDFsDir returns where downloaded PDFs are stored.
func (c *Config) PDFsDir() string { return filepath.Join(c.DataDir, "pdfs") }

// StatsPath returns the session statistics file.
func (c *Config) StatsPath() string {
	if filepath.IsAbs(c.Storage.StatsFile) {
		return c.Storage.StatsFile
	}
	name := c.Storage.StatsFile
	if name == "" {
		name = "stats.json"
	}
	return filepath.Join(c.DataDir, name)
}

// Topics returns the active topic list.
func (c *Config) Topics() []string {
	if topics := c.TopicSets[c.Builder.TopicSet]; len(topics) > 0 {
		return topics
	}
	return c.TopicSets[TopicSetLessons]
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Presentation.Speed < MinSpeed || c.Presentation.Speed > MaxSpeed {
		return fmt.Errorf("speed %d out of range [%d, %d]", c.Presentation.Speed, MinSpeed, MaxSpeed)
	}

	q := c.Queue
	if q.LowWatermark < 1 || q.LowWatermark > q.HighWatermark || q.HighWatermark > q.Ceiling {
		return fmt.Errorf("invalid queue bounds: require 1 <= low (%d) <= high (%d) <= ceiling (%d)",
			q.LowWatermark, q.HighWatermark, q.Ceiling)
	}

	if c.Builder.ItemsPerLesson < 1 {
		return fmt.Errorf("items_per_lesson must be at least 1")
	}
	if c.Builder.MaxCandidates < 1 {
		return fmt.Errorf("max_candidates must be at least 1")
	}
	if _, ok := c.TopicSets[c.Builder.TopicSet]; !ok {
		return fmt.Errorf("unknown topic set %q (valid: %v)", c.Builder.TopicSet, c.TopicSetNames())
	}
	if len(c.Topics()) == 0 {
		return fmt.Errorf("topic set %q is empty", c.Builder.TopicSet)
	}

	for name, raw := range map[string]string{
		"presentation.poll_interval":        c.Presentation.PollInterval,
		"presentation.starvation_threshold": c.Presentation.StarvationThreshold,
		"builder.cooldown":                  c.Builder.Cooldown,
		"builder.backoff_initial":           c.Builder.BackoffInitial,
		"builder.backoff_max":               c.Builder.BackoffMax,
		"fetcher.fetch_timeout":             c.Fetcher.FetchTimeout,
		"fetcher.search_timeout":            c.Fetcher.SearchTimeout,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", name, raw)
		}
	}

	if c.Fetcher.MinContentLength > c.Fetcher.MaxContentLength {
		return fmt.Errorf("fetcher.min_content_length exceeds max_content_length")
	}
	return nil
}
