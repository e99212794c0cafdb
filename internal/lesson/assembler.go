// Package lesson turns fetched content items into ordered slide lessons.
package lesson

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

// Options controls slide layout.
type Options struct {
	// Content slides per item.
	MaxContentSlides int
	// Image showcase slides per lesson.
	MaxImageSlides int
	// Longer excerpts are split at sentence boundaries.
	MaxSlideChars int
	// Append a closing slide listing sources.
	Summary bool
}

// DefaultOptions returns the standard layout.
func DefaultOptions() Options {
	return Options{
		MaxContentSlides: 8,
		MaxImageSlides:   3,
		MaxSlideChars:    800,
		Summary:          true,
	}
}

const (
	titleHint   = 0.6
	imageHint   = 0.8
	summaryHint = 0.6
	maxTitleLen = 150
)

// Assembler builds lessons. It is safe for concurrent use.
type Assembler struct {
	opts  Options
	newID func() string
	now   func() time.Time
}

// NewAssembler creates an assembler. Zero content-slide and character
// limits fall back to DefaultOptions.
func NewAssembler(opts Options) *Assembler {
	def := DefaultOptions()
	if opts.MaxContentSlides <= 0 {
		opts.MaxContentSlides = def.MaxContentSlides
	}
	if opts.MaxImageSlides < 0 {
		opts.MaxImageSlides = 0
	}
	if opts.MaxSlideChars <= 0 {
		opts.MaxSlideChars = def.MaxSlideChars
	}
	return &Assembler{
		opts:  opts,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Assemble builds a lesson on topic from one or more items.
// It returns types.ErrEmptyLesson when no content slide can be produced.
func (a *Assembler) Assemble(topic string, items []*types.ContentItem) (*types.Lesson, error) {
	return a.build(topic, items, false)
}

// AssembleReview builds a lesson from previously presented material.
func (a *Assembler) AssembleReview(items []*types.ContentItem) (*types.Lesson, error) {
	topic := "review"
	if len(items) > 0 && items[0] != nil && items[0].Topic != "" {
		topic = items[0].Topic
	}
	return a.build(topic, items, true)
}

func (a *Assembler) build(topic string, items []*types.ContentItem, review bool) (*types.Lesson, error) {
	var usable []*types.ContentItem
	for _, it := range items {
		if it != nil {
			usable = append(usable, it)
		}
	}
	if len(usable) == 0 {
		return nil, types.ErrEmptyLesson
	}

	l := &types.Lesson{
		ID:        a.newID(),
		Topic:     topic,
		Title:     a.lessonTitle(topic, review),
		CreatedAt: a.now(),
		Review:    review,
	}

	var content []types.Slide
	var allImages []string
	for _, it := range usable {
		l.Sources = append(l.Sources, it.ItemID())
		content = append(content, a.contentSlides(topic, it)...)
		if it.HasImages() {
			allImages = append(allImages, it.ImagePaths()...)
		}
	}
	if len(content) == 0 {
		return nil, types.ErrEmptyLesson
	}

	first := usable[0]
	titleSlide := types.Slide{
		Kind:         types.SlideTitle,
		Title:        truncate(firstNonEmpty(first.Title, l.Title), maxTitleLen),
		Body:         "Topic: " + titleCase(topic),
		SourceURL:    first.URL,
		Topic:        topic,
		DurationHint: titleHint,
	}
	if len(allImages) > 0 {
		titleSlide.Images = []string{allImages[0]}
	}

	slides := []types.Slide{titleSlide}
	slides = append(slides, content...)
	slides = append(slides, a.imageSlides(topic, usable)...)
	if a.opts.Summary {
		slides = append(slides, a.summarySlide(topic, usable))
	}

	for i := range slides {
		slides[i].ID = fmt.Sprintf("%s-%02d", l.ID, i)
	}
	l.Slides = slides

	logging.AssemblerDebug("assembled lesson %s topic=%q items=%d slides=%d review=%v",
		l.ID, topic, len(usable), len(slides), review)
	return l, nil
}

func (a *Assembler) lessonTitle(topic string, review bool) string {
	t := titleCase(topic)
	if review {
		return "Review: " + t
	}
	return t
}

// contentSlides produces up to MaxContentSlides slides for one item.
func (a *Assembler) contentSlides(topic string, it *types.ContentItem) []types.Slide {
	excerpts := it.Excerpts
	if len(excerpts) == 0 && strings.TrimSpace(it.Text) != "" {
		excerpts = ChunkSentences(it.Text, a.opts.MaxSlideChars, 3)
	}

	title := truncate(firstNonEmpty(it.Title, titleCase(topic)), maxTitleLen)
	var out []types.Slide
	for _, ex := range excerpts {
		for _, part := range SplitSentences(ex, a.opts.MaxSlideChars) {
			if len(out) >= a.opts.MaxContentSlides {
				return out
			}
			s := types.Slide{
				Kind:         types.SlideContent,
				Title:        title,
				Body:         part,
				SourceURL:    it.URL,
				Topic:        topic,
				DurationHint: ContentHint(part, a.opts.MaxSlideChars),
			}
			if it.HasImages() {
				s.Images = []string{it.LocalImages[len(out)%len(it.LocalImages)].Path}
			}
			out = append(out, s)
		}
	}
	return out
}

func (a *Assembler) imageSlides(topic string, items []*types.ContentItem) []types.Slide {
	var out []types.Slide
	for _, it := range items {
		if !it.HasImages() {
			continue
		}
		for _, img := range it.LocalImages {
			if len(out) >= a.opts.MaxImageSlides {
				return out
			}
			kind, suffix := types.SlideImage, "Visual"
			if looksLikeDiagram(img.SourceURL) {
				kind, suffix = types.SlideDiagram, "Diagram"
			}
			out = append(out, types.Slide{
				Kind:         kind,
				Title:        titleCase(topic) + " - " + suffix,
				Images:       []string{img.Path},
				SourceURL:    it.URL,
				Topic:        topic,
				DurationHint: imageHint,
			})
		}
	}
	return out
}

func (a *Assembler) summarySlide(topic string, items []*types.ContentItem) types.Slide {
	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, it := range items {
		name := firstNonEmpty(it.Title, it.URL, "cached note")
		if host := types.Host(it.URL); host != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", truncate(name, 80), host)
		} else {
			fmt.Fprintf(&b, "- %s\n", truncate(name, 80))
		}
	}
	return types.Slide{
		Kind:         types.SlideSummary,
		Title:        "Recap: " + titleCase(topic),
		Body:         strings.TrimRight(b.String(), "\n"),
		Topic:        topic,
		DurationHint: summaryHint,
	}
}

// ContentHint scales a text slide's display weight by its length.
func ContentHint(text string, maxChars int) float64 {
	if maxChars <= 0 {
		maxChars = 800
	}
	h := 0.7 + float64(len([]rune(text)))/float64(maxChars)
	if h < types.MinDurationHint {
		return types.MinDurationHint
	}
	if h > types.MaxDurationHint {
		return types.MaxDurationHint
	}
	return h
}

// titleCase builds a fresh Caser per call; Casers are stateful.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// looksLikeDiagram checks the last path segment of the image's source URL.
func looksLikeDiagram(sourceURL string) bool {
	name := sourceURL
	if u, err := url.Parse(sourceURL); err == nil {
		name = u.Path
	}
	name = strings.ToLower(path.Base(name))
	for _, kw := range []string{"diagram", "board", "position", "fen"} {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimRightFunc(string(r[:n-1]), unicode.IsSpace) + "…"
}
