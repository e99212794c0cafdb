package presentation

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

// SlideView is everything a display needs to render one slide.
type SlideView struct {
	Slide       types.Slide
	LessonID    string
	LessonTitle string
	Review      bool
	Index       int // zero-based within the lesson
	Total       int
	Speed       int
	Delay       time.Duration
	Paused      bool
	Progress    Progress
}

// WaitingView is shown while no lesson is available.
type WaitingView struct {
	EmptyFor time.Duration
	// Starved is set once EmptyFor passes the starvation threshold.
	Starved  bool
	Builder  string
	Progress Progress
}

// StatusView reports pacing changes between slides.
type StatusView struct {
	State    DriverState
	Speed    int
	Delay    time.Duration
	Paused   bool
	Progress Progress
}

// Progress is the footer line.
type Progress struct {
	SlidesShown  int
	LessonsShown int
	QueueDepth   int
	Topics       int
}

func (p Progress) String() string {
	return fmt.Sprintf("Slides: %d | Queue: %d | Topics: %d", p.SlidesShown, p.QueueDepth, p.Topics)
}

// Display renders driver output. Implementations must not block for long;
// the driver calls them from its own goroutine.
type Display interface {
	ShowSlide(v SlideView)
	ShowWaiting(v WaitingView)
	ShowStatus(v StatusView)
	Close() error
}

// LogDisplay writes one line per event, for headless runs.
type LogDisplay struct {
	mu          sync.Mutex
	w           io.Writer
	lastWaiting time.Duration
	waiting     bool
}

// NewLogDisplay writes to w.
func NewLogDisplay(w io.Writer) *LogDisplay {
	return &LogDisplay{w: w}
}

func (d *LogDisplay) ShowSlide(v SlideView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiting = false

	header := v.LessonTitle
	if v.Review {
		header += " (review)"
	}
	fmt.Fprintf(d.w, "[%s] %s  %d/%d  %s\n", time.Now().Format("15:04:05"), header, v.Index+1, v.Total, v.Slide.Title)
	if body := strings.TrimSpace(v.Slide.Body); body != "" {
		for _, line := range strings.Split(body, "\n") {
			fmt.Fprintf(d.w, "    %s\n", line)
		}
	}
	for _, img := range v.Slide.Images {
		fmt.Fprintf(d.w, "    [image] %s\n", img)
	}
	fmt.Fprintf(d.w, "    -- %s | Speed: %d (%.1fs)\n", v.Progress, v.Speed, v.Delay.Seconds())
	logging.DisplayDebug("slide %s shown", v.Slide.ID)
}

func (d *LogDisplay) ShowWaiting(v WaitingView) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// One line when waiting starts, then one per starved second bucket.
	if d.waiting && (!v.Starved || v.EmptyFor.Truncate(10*time.Second) == d.lastWaiting) {
		return
	}
	d.waiting = true
	d.lastWaiting = v.EmptyFor.Truncate(10 * time.Second)
	if v.Starved {
		fmt.Fprintf(d.w, "Preparing lessons... no new lessons for %ds (builder: %s)\n", int(v.EmptyFor.Seconds()), v.Builder)
		return
	}
	fmt.Fprintln(d.w, "Preparing lessons...")
}

func (d *LogDisplay) ShowStatus(v StatusView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state := v.State.String()
	fmt.Fprintf(d.w, "[%s] speed %d (%.1fs/slide)\n", state, v.Speed, v.Delay.Seconds())
}

func (d *LogDisplay) Close() error { return nil }
