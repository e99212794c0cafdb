package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

// SearchResult is one hit from the search provider.
type SearchResult struct {
	URL     string
	Title   string
	Snippet string
}

const maxSearchResults = 20

var queryVariations = []string{
	"%s",
	"%s tutorial",
	"%s guide",
	"%s lesson",
	"%s examples",
	"learn %s",
	"%s explained",
}

// QueryVariation returns the n-th search phrasing for topic, cycling
// through the known variations.
func QueryVariation(topic string, n int) string {
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf(queryVariations[n%len(queryVariations)], topic)
}

// Search returns candidate URLs for query, preferred domains first. When
// the search provider yields nothing, the configured site-search pages are
// scraped for links instead. An empty result is a FetchError with reason
// no_results.
func (f *Fetcher) Search(ctx context.Context, query string) ([]string, error) {
	results, err := f.searchDuckDuckGo(ctx, query)
	if err != nil {
		logging.FetcherWarn("search %q failed: %v", query, err)
	}
	if len(results) == 0 {
		results = f.searchFallbackSites(ctx, query)
	}
	if len(results) == 0 {
		if err == nil {
			err = types.NewFetchError("search", query, types.ReasonNoResults, nil)
		}
		return nil, err
	}

	urls := f.rankResults(results)
	logging.FetcherDebug("search %q: %d candidate urls", query, len(urls))
	return urls, nil
}

func (f *Fetcher) searchDuckDuckGo(ctx context.Context, query string) ([]SearchResult, error) {
	base := f.cfg.SearchURL
	if base == "" {
		base = "https://html.duckduckgo.com/html/"
	}
	searchURL := base + "?q=" + url.QueryEscape(query)

	ctx, cancel := context.WithTimeout(ctx, f.searchTimeout)
	defer cancel()

	body, _, err := f.get(ctx, "search", searchURL, 1<<20, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	results, err := parseDuckDuckGoResults(body, maxSearchResults)
	if err != nil {
		return nil, types.NewFetchError("search", searchURL, types.ReasonParse, err)
	}
	return results, nil
}

// searchFallbackSites scrapes article links from chess sites' own search
// pages. Failures are logged and skipped.
func (f *Fetcher) searchFallbackSites(ctx context.Context, query string) []SearchResult {
	var out []SearchResult
	for _, pattern := range f.cfg.FallbackSearchURLs {
		pageURL := fmt.Sprintf(pattern, url.QueryEscape(query))
		reqCtx, cancel := context.WithTimeout(ctx, f.searchTimeout)
		body, _, err := f.get(reqCtx, "search", pageURL, 1<<20, "text/html")
		cancel()
		if err != nil {
			logging.FetcherDebug("fallback search %s: %v", pageURL, err)
			continue
		}
		links, err := parseSiteLinks(body, pageURL, query)
		if err != nil {
			continue
		}
		out = append(out, links...)
		if len(out) >= maxSearchResults {
			break
		}
	}
	return out
}

// rankResults dedupes result URLs and moves preferred domains to the front,
// otherwise keeping the provider's order.
func (f *Fetcher) rankResults(results []SearchResult) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, r := range results {
		u := strings.TrimSpace(r.URL)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	sort.SliceStable(urls, func(i, j int) bool {
		return f.isPreferred(urls[i]) && !f.isPreferred(urls[j])
	})
	return urls
}

func (f *Fetcher) isPreferred(rawURL string) bool {
	host := types.Host(rawURL)
	for _, d := range f.cfg.PreferredDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// parseDuckDuckGoResults extracts search results from DuckDuckGo HTML.
func parseDuckDuckGoResults(body []byte, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search html: %w", err)
	}

	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			class := attr(n, "class")
			if strings.Contains(class, "result") && strings.Contains(class, "results_links") {
				if r := extractResult(n); r.URL != "" && r.Title != "" {
					results = append(results, r)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

const ddgRedirectPrefix = "//duckduckgo.com/l/?uddg="

// extractResult reads the link, title and snippet of one result div.
func extractResult(n *html.Node) SearchResult {
	var r SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := attr(n, "class")
			switch {
			case strings.Contains(class, "result__a"):
				r.URL = attr(n, "href")
				r.Title = textContent(n)
			case strings.Contains(class, "result__snippet"):
				r.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	r.URL = unwrapRedirect(r.URL)
	return r
}

// unwrapRedirect resolves DuckDuckGo's click-through redirect links.
func unwrapRedirect(link string) string {
	link = strings.TrimPrefix(link, "https:")
	if !strings.HasPrefix(link, ddgRedirectPrefix) {
		return strings.TrimSpace(link)
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(link, ddgRedirectPrefix))
	if err != nil {
		return ""
	}
	if idx := strings.Index(decoded, "&"); idx > 0 {
		decoded = decoded[:idx]
	}
	return decoded
}

// parseSiteLinks collects same-site article links whose text or path
// mentions one of the query words.
func parseSiteLinks(body []byte, pageURL, query string) ([]SearchResult, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	words := strings.Fields(strings.ToLower(query))

	var out []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if ref, err := url.Parse(href); err == nil && href != "" && !strings.HasPrefix(href, "#") {
				abs := base.ResolveReference(ref)
				title := textContent(n)
				hay := strings.ToLower(title + " " + abs.Path)
				if abs.Host == base.Host && abs.Path != base.Path && matchesAny(hay, words) {
					abs.Fragment = ""
					out = append(out, SearchResult{URL: abs.String(), Title: title})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func matchesAny(hay string, words []string) bool {
	for _, w := range words {
		if len(w) > 3 && strings.Contains(hay, w) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
