// Package fetcher retrieves chess learning material from the web. It
// discovers candidate pages through a search provider and turns HTML pages,
// PDFs and plain-text documents into content items, downloading their
// images alongside.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chessmaster/internal/config"
	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

// Renderer renders a JavaScript-heavy page to its final HTML.
type Renderer interface {
	RenderHTML(ctx context.Context, url string) (string, error)
}

// Fetcher searches for and fetches content. It is safe for concurrent use.
type Fetcher struct {
	cfg       config.FetcherConfig
	client    *http.Client
	robots    *RobotsChecker
	renderer  Renderer
	imagesDir string
	pdfsDir   string

	searchTimeout time.Duration
	fetchTimeout  time.Duration
	imageTimeout  time.Duration
	pdfTimeout    time.Duration

	pdfToText func(ctx context.Context, path string) (string, error)
	now       func() time.Time
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRenderer enables the headless rendering fallback.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) { f.renderer = r }
}

// New creates a Fetcher from the application config.
func New(cfg *config.Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:           cfg.Fetcher,
		client:        &http.Client{},
		imagesDir:     cfg.ImagesDir(),
		pdfsDir:       cfg.PDFsDir(),
		searchTimeout: cfg.GetSearchTimeout(),
		fetchTimeout:  cfg.GetFetchTimeout(),
		imageTimeout:  cfg.GetImageTimeout(),
		pdfTimeout:    cfg.GetPDFTimeout(),
		now:           time.Now,
	}
	f.pdfToText = f.runPDFToText
	for _, opt := range opts {
		opt(f)
	}
	if f.cfg.RespectRobots {
		f.robots = NewRobotsChecker(f.client, f.cfg.UserAgent, 0)
	}
	return f
}

// Fetch downloads url and extracts a content item for topic. Every failure
// is a *types.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, topic, url string) (*types.ContentItem, error) {
	timer := logging.StartTimer(logging.CategoryFetcher, "Fetch")
	defer timer.StopWithThreshold(5 * time.Second)

	id, err := types.ContentID(url)
	if err != nil {
		return nil, types.NewFetchError("fetch", url, types.ReasonParse, err)
	}

	if f.robots != nil {
		allowed, err := f.robots.IsAllowed(ctx, url)
		if err != nil {
			return nil, types.NewFetchError("fetch", url, types.ReasonParse, err)
		}
		if !allowed {
			logging.FetcherDebug("robots.txt disallows %s", url)
			return nil, types.NewFetchError("fetch", url, types.ReasonRobots, nil)
		}
		if err := f.robots.Wait(ctx, url); err != nil {
			return nil, types.NewFetchError("fetch", url, types.ReasonNetwork, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	body, mediaType, err := f.get(reqCtx, "fetch", url, f.cfg.MaxBodyBytes, "text/html,application/xhtml+xml,application/pdf,text/plain;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}

	var item *types.ContentItem
	switch {
	case mediaType == "application/pdf" || strings.HasSuffix(strings.ToLower(url), ".pdf"):
		item, err = f.fromPDF(ctx, topic, url, id, body)
	case mediaType == "text/plain":
		item, err = f.fromText(topic, url, body)
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		item, err = f.fromHTML(ctx, topic, url, body)
	default:
		err = types.NewFetchError("fetch", url, types.ReasonUnsupported, fmt.Errorf("content type %q", mediaType))
	}
	if err != nil {
		return nil, err
	}

	item.ID = id
	item.URL = url
	item.Topic = topic
	item.FetchedAt = f.now()
	logging.Fetcher("fetched %s kind=%s excerpts=%d images=%d", url, item.Kind, len(item.Excerpts), len(item.LocalImages))
	return item, nil
}

// get issues a GET and returns at most limit bytes of body with the
// response media type.
func (f *Fetcher) get(ctx context.Context, stage, url string, limit int64, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, "", types.NewFetchError(stage, url, types.ReasonParse, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", types.NewFetchError(stage, url, types.ReasonNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", types.NewFetchError(stage, url, types.ReasonHTTPStatus, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	if limit <= 0 {
		limit = 5 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", types.NewFetchError(stage, url, types.ReasonNetwork, err)
	}
	return body, mediaTypeOf(resp.Header.Get("Content-Type"), body), nil
}

// mediaTypeOf parses the Content-Type header, sniffing the body when the
// header is absent or unparseable.
func mediaTypeOf(header string, body []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			return strings.ToLower(mt)
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	return mt
}

// fromText splits a plain-text document into paragraph excerpts.
func (f *Fetcher) fromText(topic, url string, body []byte) (*types.ContentItem, error) {
	text := limitText(string(body), f.cfg.MaxContentLength)
	if len(text) < f.cfg.MinContentLength {
		return nil, types.NewFetchError("fetch", url, types.ReasonTooSmall, nil)
	}
	var excerpts []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if len(p) > 50 {
			excerpts = append(excerpts, p)
		}
		if len(excerpts) >= f.maxExcerpts() {
			break
		}
	}
	return &types.ContentItem{
		Title:    "Chess Text: " + topic,
		Text:     text,
		Excerpts: excerpts,
		Kind:     types.SourceText,
	}, nil
}

func (f *Fetcher) maxExcerpts() int {
	if f.cfg.MaxExcerpts <= 0 {
		return 10
	}
	return f.cfg.MaxExcerpts
}

// topicDir converts a topic into a short directory name.
func topicDir(topic string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(topic))
	if len(name) > 30 {
		name = name[:30]
	}
	if name == "" {
		name = "misc"
	}
	return name
}

// writeFile stores data at path, creating parent directories.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// IsRetryable reports whether fetching the same URL again could succeed.
// Network failures are retryable; every other fetch failure is permanent.
// Cancellation is never retryable. Errors from outside the fetcher are
// treated as transient.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *types.FetchError
	if errors.As(err, &fe) {
		return fe.Reason == types.ReasonNetwork
	}
	return true
}
