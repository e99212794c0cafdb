package types

import "time"

// SlideKind identifies the layout a slide is rendered with.
type SlideKind string

const (
	SlideTitle   SlideKind = "title"
	SlideContent SlideKind = "content"
	SlideImage   SlideKind = "image"
	SlideDiagram SlideKind = "diagram"
	SlideSummary SlideKind = "summary"
)

// Duration hint bounds. A hint scales the global per-slide delay.
const (
	MinDurationHint = 0.5
	MaxDurationHint = 2.0
)

// Slide is one displayable unit. A slide belongs to exactly one lesson.
type Slide struct {
	ID        string    `json:"id"`
	Kind      SlideKind `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Images    []string  `json:"images,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	Topic     string    `json:"topic"`
	// DurationHint is a relative weight applied to the speed-derived delay;
	// 1.0 is neutral.
	DurationHint float64 `json:"duration_hint"`
}

// Hint returns the duration hint clamped to its bounds, treating zero as neutral.
func (s Slide) Hint() float64 {
	switch {
	case s.DurationHint == 0:
		return 1.0
	case s.DurationHint < MinDurationHint:
		return MinDurationHint
	case s.DurationHint > MaxDurationHint:
		return MaxDurationHint
	default:
		return s.DurationHint
	}
}

// Lesson is an ordered, non-empty sequence of slides on one topic.
// A lesson is never mutated after it has been queued.
type Lesson struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	// Content item IDs the lesson was assembled from.
	Sources []string `json:"sources"`
	Slides  []Slide  `json:"slides"`
	// Review lessons are assembled from previously cached material.
	Review bool `json:"review,omitempty"`
}

// Len returns the number of slides.
func (l *Lesson) Len() int { return len(l.Slides) }
