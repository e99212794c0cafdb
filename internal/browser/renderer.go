// Package browser renders JavaScript-heavy pages in a headless Chrome so
// their text can be extracted like any static page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"chessmaster/internal/config"
	"chessmaster/internal/logging"
)

// Config holds renderer settings.
type Config struct {
	Headless          bool
	BinaryPath        string
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// ConfigFrom extracts renderer settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Headless:          cfg.Browser.Headless,
		BinaryPath:        cfg.Browser.BinaryPath,
		UserAgent:         cfg.Fetcher.UserAgent,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.GetNavigationTimeout(),
	}
}

func (c Config) viewport() (int, int) {
	w, h := c.ViewportWidth, c.ViewportHeight
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 900
	}
	return w, h
}

func (c Config) timeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// ErrClosed is returned after Shutdown.
var ErrClosed = errors.New("renderer shut down")

// Renderer owns one browser process, launched lazily on the first render.
// Each render uses its own incognito context.
type Renderer struct {
	cfg Config

	mu       sync.Mutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	closed   bool
	rendered int
}

// New creates a renderer. No browser is started until it is needed.
func New(cfg Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// Start launches and connects to the browser. It is a no-op when a live
// browser is already connected.
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(ctx)
}

func (r *Renderer) startLocked(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	// The browser outlives ctx; only pages carry request deadlines.
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection, relaunching")
		_ = r.stopLocked()
	}

	l := launcher.New().
		Headless(r.cfg.Headless).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("mute-audio"))
	if r.cfg.BinaryPath != "" {
		l = l.Bin(r.cfg.BinaryPath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect to browser: %w", err)
	}

	r.launch = l
	r.browser = b
	logging.Browser("browser started (headless=%v)", r.cfg.Headless)
	return nil
}

// RenderHTML navigates to url, waits for the load event and returns the
// resulting document HTML.
func (r *Renderer) RenderHTML(ctx context.Context, url string) (string, error) {
	timer := logging.StartTimer(logging.CategoryBrowser, "RenderHTML")
	defer timer.Stop()

	r.mu.Lock()
	if err := r.startLocked(ctx); err != nil {
		r.mu.Unlock()
		return "", err
	}
	b := r.browser
	r.rendered++
	r.mu.Unlock()

	incognito, err := b.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	w, h := r.cfg.viewport()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1,
	}); err != nil {
		logging.BrowserDebug("set viewport: %v", err)
	}
	if r.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}); err != nil {
			logging.BrowserDebug("set user agent: %v", err)
		}
	}

	p := page.Context(ctx).Timeout(r.cfg.timeout())
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}
	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read html %s: %w", url, err)
	}
	logging.BrowserDebug("rendered %s (%d bytes)", url, len(html))
	return html, nil
}

// IsConnected reports whether a browser is running.
func (r *Renderer) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.browser != nil
}

// Rendered returns the number of render requests served.
func (r *Renderer) Rendered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rendered
}

// Shutdown closes the browser and kills its process. Further renders
// return ErrClosed.
func (r *Renderer) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.stopLocked()
}

func (r *Renderer) stopLocked() error {
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launch != nil {
		r.launch.Kill()
		r.launch.Cleanup()
		r.launch = nil
	}
	return err
}
