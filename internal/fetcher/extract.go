package fetcher

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

// nonContentSelectors lists elements stripped before reading text.
const nonContentSelectors = "script, style, nav, header, footer, aside, form, iframe, noscript"

// mainContentSelectors are tried in order to locate the article body.
var mainContentSelectors = []string{
	"main",
	"article",
	"div.content, div.article, div.post, div.entry, div[class*='content'], div[class*='article']",
	"body",
}

var chessKeywords = []string{
	"chess", "piece", "pawn", "knight", "bishop", "rook", "queen", "king",
	"move", "checkmate", "opening", "endgame", "tactic", "strategy",
	"position", "attack", "defense", "castle", "gambit", "sacrifice",
}

var (
	blankLines = regexp.MustCompile(`\n\s*\n\s*\n+`)
	spaceRuns  = regexp.MustCompile(`[ \t\r\f\v]+`)
	imageExt   = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp)(\?|$)`)
)

const (
	minExcerptLen = 50
	maxExcerptLen = 1000
	// The first few excerpts are kept without a keyword match.
	unfilteredExcerpts = 3
	maxPageTitle       = 200
)

// Page is the text extracted from an HTML document.
type Page struct {
	Title    string
	Text     string
	Excerpts []string
	Images   []string
}

// ExtractPage parses HTML and extracts its title, main text, chess-related
// excerpts and absolute image URLs.
func ExtractPage(pageURL string, body []byte, maxChars, maxExcerpts, maxImages int) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	doc.Find(nonContentSelectors).Remove()

	p := &Page{Title: pageTitle(doc)}

	main := doc.Selection
	for _, sel := range mainContentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			main = s
			break
		}
	}
	p.Text = limitText(squeeze(main.Text()), maxChars)
	p.Excerpts = excerpts(main, maxExcerpts)
	p.Images = imageURLs(doc, pageURL, maxImages)
	return p, nil
}

func pageTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
			title = strings.TrimSpace(og)
		}
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	title = strings.Join(strings.Fields(title), " ")
	if r := []rune(title); len(r) > maxPageTitle {
		title = string(r[:maxPageTitle])
	}
	return title
}

// excerpts picks paragraphs, list items and subheadings of a useful length
// that mention chess.
func excerpts(main *goquery.Selection, limit int) []string {
	var out []string
	main.Find("p, li, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if n := len(text); n < minExcerptLen || n > maxExcerptLen {
			return true
		}
		if len(out) < unfilteredExcerpts || hasChessKeyword(text) {
			out = append(out, text)
		}
		return len(out) < limit
	})
	return out
}

func hasChessKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range chessKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func imageURLs(doc *goquery.Document, pageURL string, limit int) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if src == "" {
			src, _ = s.Attr("data-src")
		}
		if src == "" || strings.HasPrefix(src, "data:") || !imageExt.MatchString(src) {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
		return len(out) < limit
	})
	return out
}

// squeeze trims every line and collapses runs of blank lines.
func squeeze(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func limitText(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars > 0 {
		if r := []rune(text); len(r) > maxChars {
			return string(r[:maxChars])
		}
	}
	return text
}

// fromHTML builds an item from an HTML page, rendering it in a headless
// browser when the static text is too short and a renderer is configured.
func (f *Fetcher) fromHTML(ctx context.Context, topic, pageURL string, body []byte) (*types.ContentItem, error) {
	page, err := ExtractPage(pageURL, body, f.cfg.MaxContentLength, f.maxExcerpts(), f.cfg.MaxImages)
	if err != nil {
		return nil, types.NewFetchError("fetch", pageURL, types.ReasonParse, err)
	}

	if len(page.Text) < f.cfg.MinContentLength && f.renderer != nil {
		logging.FetcherDebug("static text for %s is %d chars, rendering", pageURL, len(page.Text))
		if rendered, rerr := f.renderer.RenderHTML(ctx, pageURL); rerr != nil {
			logging.FetcherWarn("render %s: %v", pageURL, rerr)
		} else if rp, perr := ExtractPage(pageURL, []byte(rendered), f.cfg.MaxContentLength, f.maxExcerpts(), f.cfg.MaxImages); perr == nil {
			page = rp
		}
	}

	if len(page.Text) < f.cfg.MinContentLength {
		return nil, types.NewFetchError("fetch", pageURL, types.ReasonTooSmall, nil)
	}

	item := &types.ContentItem{
		Title:     page.Title,
		Text:      page.Text,
		Excerpts:  page.Excerpts,
		ImageURLs: page.Images,
		Kind:      types.SourcePage,
	}
	if f.cfg.DownloadImages && len(page.Images) > 0 {
		item.LocalImages = f.downloadImages(ctx, topic, page.Images)
	}
	return item, nil
}
