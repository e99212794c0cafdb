package config

import "time"

// FetcherConfig configures search and page retrieval.
type FetcherConfig struct {
	UserAgent     string `yaml:"user_agent" env:"CHESSMASTER_USER_AGENT"`
	SearchURL     string `yaml:"search_url"`
	SearchTimeout string `yaml:"search_timeout"`
	FetchTimeout  string `yaml:"fetch_timeout"`
	ImageTimeout  string `yaml:"image_timeout"`
	PDFTimeout    string `yaml:"pdf_timeout"`

	MaxBodyBytes     int64 `yaml:"max_body_bytes"`
	MaxImageBytes    int64 `yaml:"max_image_bytes"`
	MaxContentLength int   `yaml:"max_content_length"`
	MinContentLength int   `yaml:"min_content_length"`
	MaxExcerpts      int   `yaml:"max_excerpts"`
	MaxImages        int   `yaml:"max_images"`
	ImageWorkers     int   `yaml:"image_workers"`

	RespectRobots  bool `yaml:"respect_robots"`
	DownloadImages bool `yaml:"download_images" env:"CHESSMASTER_DOWNLOAD_IMAGES"`

	// Sites queried directly when the search provider returns nothing.
	FallbackSearchURLs []string `yaml:"fallback_search_urls"`
	// Results from these domains are tried first.
	PreferredDomains []string `yaml:"preferred_domains" env:"CHESSMASTER_PREFERRED_DOMAINS"`
}

// BrowserConfig configures the headless rendering fallback.
type BrowserConfig struct {
	Enabled           bool   `yaml:"enabled" env:"CHESSMASTER_BROWSER"`
	Headless          bool   `yaml:"headless"`
	NavigationTimeout string `yaml:"navigation_timeout"`
	ViewportWidth     int    `yaml:"viewport_width"`
	ViewportHeight    int    `yaml:"viewport_height"`
	// Empty means let the launcher download or locate a browser.
	BinaryPath string `yaml:"binary_path" env:"CHESSMASTER_BROWSER_BIN"`
}

// DefaultFetcherConfig returns the default fetcher settings.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		SearchURL:        "https://html.duckduckgo.com/html/",
		SearchTimeout:    "30s",
		FetchTimeout:     "15s",
		ImageTimeout:     "10s",
		PDFTimeout:       "2m",
		MaxBodyBytes:     5 << 20,
		MaxImageBytes:    2 << 20,
		MaxContentLength: 50000,
		MinContentLength: 100,
		MaxExcerpts:      10,
		MaxImages:        10,
		ImageWorkers:     4,
		RespectRobots:    true,
		DownloadImages:   true,
		FallbackSearchURLs: []string{
			"https://www.chess.com/article/search?q=%s",
			"https://lichess.org/search?q=%s",
		},
		PreferredDomains: []string{
			"chess.com",
			"lichess.org",
			"chesstempo.com",
			"chessbase.com",
			"chessgames.com",
			"thechesswebsite.com",
			"ichess.net",
			"chess24.com",
			"chessable.com",
		},
	}
}

// DefaultBrowserConfig returns the default browser settings.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Enabled:           false,
		Headless:          true,
		NavigationTimeout: "30s",
		ViewportWidth:     1280,
		ViewportHeight:    900,
	}
}

// GetSearchTimeout returns the search request deadline.
func (c *Config) GetSearchTimeout() time.Duration {
	return parseDuration(c.Fetcher.SearchTimeout, 30*time.Second)
}

// GetFetchTimeout returns the page request deadline.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDuration(c.Fetcher.FetchTimeout, 15*time.Second)
}

// GetImageTimeout returns the image download deadline.
func (c *Config) GetImageTimeout() time.Duration {
	return parseDuration(c.Fetcher.ImageTimeout, 10*time.Second)
}

// GetPDFTimeout returns the pdftotext deadline.
func (c *Config) GetPDFTimeout() time.Duration {
	return parseDuration(c.Fetcher.PDFTimeout, 2*time.Minute)
}

// GetNavigationTimeout returns the headless navigation deadline.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}
