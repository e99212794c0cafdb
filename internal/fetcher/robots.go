package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"chessmaster/internal/logging"
)

const (
	defaultRobotsTTL   = 24 * time.Hour
	robotsFetchTimeout = 10 * time.Second
	maxRobotsBodyBytes = 512 * 1024
	maxCrawlDelay      = 10 * time.Second
)

// RobotsChecker caches robots.txt rules per scheme and host and spaces
// requests to a host by its crawl-delay. A missing, unreachable or
// unparseable robots.txt allows everything.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	maxDelay  time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]robotsEntry
	// Earliest time the next request to each origin may start.
	nextFetch map[string]time.Time
}

type robotsEntry struct {
	data      *robotstxt.RobotsData // nil means allow all
	fetchedAt time.Time
}

// NewRobotsChecker creates a checker. A zero ttl means 24 hours.
func NewRobotsChecker(client *http.Client, userAgent string, ttl time.Duration) *RobotsChecker {
	if ttl <= 0 {
		ttl = defaultRobotsTTL
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		maxDelay:  maxCrawlDelay,
		now:       time.Now,
		cache:     make(map[string]robotsEntry),
		nextFetch: make(map[string]time.Time),
	}
}

// IsAllowed reports whether rawURL may be fetched.
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, key, err := originOf(rawURL)
	if err != nil {
		return false, err
	}

	entry, ok := r.cached(key)
	if !ok {
		entry = r.fetch(ctx, key)
		r.mu.Lock()
		r.cache[key] = entry
		r.mu.Unlock()
	}
	if entry.data == nil {
		return true, nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return entry.data.TestAgent(path, r.userAgent), nil
}

// CrawlDelay returns the crawl-delay declared for the host of rawURL, or 0
// when robots.txt has not been loaded for it.
func (r *RobotsChecker) CrawlDelay(rawURL string) time.Duration {
	_, key, err := originOf(rawURL)
	if err != nil {
		return 0
	}
	entry, ok := r.cached(key)
	if !ok || entry.data == nil {
		return 0
	}
	if g := entry.data.FindGroup(r.userAgent); g != nil {
		return g.CrawlDelay
	}
	return 0
}

// Wait blocks until a request to the host of rawURL respects its
// crawl-delay, then reserves the next slot. Delays above maxCrawlDelay
// are capped.
func (r *RobotsChecker) Wait(ctx context.Context, rawURL string) error {
	_, key, err := originOf(rawURL)
	if err != nil {
		return err
	}
	delay := r.CrawlDelay(rawURL)
	if delay > r.maxDelay {
		delay = r.maxDelay
	}

	r.mu.Lock()
	now := r.now()
	start := now
	if next := r.nextFetch[key]; next.After(now) {
		start = next
	}
	r.nextFetch[key] = start.Add(delay)
	r.mu.Unlock()

	wait := start.Sub(now)
	if wait <= 0 {
		return nil
	}
	logging.FetcherDebug("crawl-delay: waiting %v for %s", wait, key)
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// originOf returns the parsed URL and its scheme://host cache key.
func originOf(rawURL string) (*url.URL, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("robots: parse url: %w", err)
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("robots: empty host in url %q", rawURL)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return u, scheme + "://" + strings.ToLower(u.Host), nil
}

func (r *RobotsChecker) cached(key string) (robotsEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[key]
	if !ok || r.now().Sub(e.fetchedAt) > r.ttl {
		return robotsEntry{}, false
	}
	return e, true
}

func (r *RobotsChecker) fetch(ctx context.Context, origin string) robotsEntry {
	entry := robotsEntry{fetchedAt: r.now()}

	ctx, cancel := context.WithTimeout(ctx, robotsFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", http.NoBody)
	if err != nil {
		return entry
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		logging.FetcherDebug("robots.txt for %s unavailable: %v", origin, err)
		return entry
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return entry
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return entry
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return entry
	}
	entry.data = data
	return entry
}
