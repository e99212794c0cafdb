// Package presentation plays queued lessons slide by slide. The Driver is
// the consumer half of the pipeline: it pops lessons, holds each slide for
// a speed-derived delay and reacts to pause, speed, skip and exit input.
package presentation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chessmaster/internal/logging"
	"chessmaster/internal/queue"
	"chessmaster/internal/store"
	"chessmaster/internal/types"
)

// DriverState is the consumer state.
type DriverState int32

const (
	Waiting DriverState = iota
	Playing
	Paused
	ShuttingDown
)

func (s DriverState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case ShuttingDown:
		return "shutting_down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// HistoryRecorder stores fully played lessons. *store.History implements it.
type HistoryRecorder interface {
	Record(ctx context.Context, e store.HistoryEntry) error
}

// Observer receives playback events.
type Observer interface {
	OnSlide(s types.Slide, delay time.Duration)
	OnLessonPlayed(l *types.Lesson)
	OnDriverState(s DriverState)
}

type nopObserver struct{}

func (nopObserver) OnSlide(types.Slide, time.Duration) {}
func (nopObserver) OnLessonPlayed(*types.Lesson)       {}
func (nopObserver) OnDriverState(DriverState)          {}

// Options configures a Driver.
type Options struct {
	PollInterval        time.Duration
	StarvationThreshold time.Duration
	SessionID           string
	Topics              int
	// History and Observer are optional.
	History  HistoryRecorder
	Observer Observer
	// BuilderStatus describes the producer in the waiting view.
	BuilderStatus func() string
}

type outcome int

const (
	elapsed outcome = iota
	skipped
	exited
)

// Driver is the presentation state machine.
type Driver struct {
	q       *queue.LessonQueue
	pacing  *PacingState
	display Display
	opts    Options

	actions  chan Action
	done     chan struct{}
	doneOnce sync.Once

	state        atomic.Int32
	slidesShown  atomic.Int64
	lessonsShown atomic.Int64

	delay func(speed int) time.Duration
	now   func() time.Time
}

// NewDriver creates a driver. It starts in Waiting.
func NewDriver(q *queue.LessonQueue, pacing *PacingState, display Display, opts Options) *Driver {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.StarvationThreshold <= 0 {
		opts.StarvationThreshold = 10 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Driver{
		q:       q,
		pacing:  pacing,
		display: display,
		opts:    opts,
		actions: make(chan Action, 16),
		done:    make(chan struct{}),
		delay:   Delay,
		now:     time.Now,
	}
}

// State returns the current state.
func (d *Driver) State() DriverState { return DriverState(d.state.Load()) }

func (d *Driver) setState(s DriverState) {
	if DriverState(d.state.Swap(int32(s))) != s {
		d.opts.Observer.OnDriverState(s)
		logging.DriverDebug("state -> %s", s)
	}
}

// Done is closed once an exit has been requested.
func (d *Driver) Done() <-chan struct{} { return d.done }

// SlidesShown returns the number of slides displayed so far.
func (d *Driver) SlidesShown() int { return int(d.slidesShown.Load()) }

// LessonsShown returns the number of lessons played to the end.
func (d *Driver) LessonsShown() int { return int(d.lessonsShown.Load()) }

// Send delivers user input. It never blocks; input arriving faster than the
// driver can apply it is dropped.
func (d *Driver) Send(a Action) {
	if a == Exit {
		d.requestExit()
	}
	select {
	case d.actions <- a:
	default:
		logging.DriverDebug("input %s dropped", a)
	}
}

func (d *Driver) requestExit() {
	d.doneOnce.Do(func() { close(d.done) })
}

// Run plays lessons until exit is requested or ctx is cancelled. It
// returns nil in both cases.
func (d *Driver) Run(ctx context.Context) error {
	logging.Driver("driver started, speed=%d", d.pacing.Speed())
	defer func() {
		d.setState(ShuttingDown)
		logging.Driver("driver stopped after %d slides, %d lessons", d.SlidesShown(), d.LessonsShown())
	}()

	poll := time.NewTicker(d.opts.PollInterval)
	defer poll.Stop()

	for {
		if ctx.Err() != nil || d.exitRequested() {
			return nil
		}

		l, err := d.q.Pop()
		if err != nil {
			d.setState(Waiting)
			d.display.ShowWaiting(d.waitingView())
			select {
			case <-ctx.Done():
				return nil
			case <-d.done:
				return nil
			case a := <-d.actions:
				d.apply(a)
			case <-poll.C:
			}
			continue
		}

		if d.play(ctx, l) == exited {
			return nil
		}
	}
}

func (d *Driver) exitRequested() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// play shows every slide of l in order. Skip moves to the next slide; only
// exit or cancellation abandons the lesson.
func (d *Driver) play(ctx context.Context, l *types.Lesson) outcome {
	started := d.now()
	logging.Driver("playing lesson %s %q (%d slides)", l.ID, l.Title, l.Len())

	for i, s := range l.Slides {
		speed := d.pacing.Speed()
		hold := time.Duration(float64(d.delay(speed)) * s.Hint())

		d.slidesShown.Add(1)
		if !d.pacing.Paused() {
			d.setState(Playing)
		}
		d.display.ShowSlide(SlideView{
			Slide:       s,
			LessonID:    l.ID,
			LessonTitle: l.Title,
			Review:      l.Review,
			Index:       i,
			Total:       len(l.Slides),
			Speed:       speed,
			Delay:       hold,
			Paused:      d.pacing.Paused(),
			Progress:    d.progress(),
		})
		d.opts.Observer.OnSlide(s, hold)

		if d.hold(ctx, hold) == exited {
			return exited
		}
	}

	d.lessonsShown.Add(1)
	d.opts.Observer.OnLessonPlayed(l)
	d.recordHistory(ctx, l, started)
	return elapsed
}

// hold waits out one slide. Pausing freezes the remaining time; speed
// changes apply from the next slide.
func (d *Driver) hold(ctx context.Context, total time.Duration) outcome {
	remaining := total
	for {
		if d.pacing.Paused() {
			d.setState(Paused)
			select {
			case <-ctx.Done():
				return exited
			case <-d.done:
				return exited
			case a := <-d.actions:
				if o := d.apply(a); o != elapsed {
					return o
				}
			}
			continue
		}

		d.setState(Playing)
		if remaining <= 0 {
			return elapsed
		}
		start := d.now()
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return exited
		case <-d.done:
			timer.Stop()
			return exited
		case <-timer.C:
			return elapsed
		case a := <-d.actions:
			timer.Stop()
			remaining -= d.now().Sub(start)
			if o := d.apply(a); o != elapsed {
				return o
			}
		}
	}
}

// apply executes one input action. It returns skipped or exited when the
// current slide must end, elapsed otherwise.
func (d *Driver) apply(a Action) outcome {
	switch a {
	case TogglePause:
		paused := d.pacing.TogglePause()
		logging.DriverDebug("paused=%v", paused)
	case SpeedUp10:
		d.pacing.AdjustSpeed(10)
	case SpeedDown10:
		d.pacing.AdjustSpeed(-10)
	case SpeedUp25:
		d.pacing.AdjustSpeed(25)
	case SpeedDown25:
		d.pacing.AdjustSpeed(-25)
	case Skip:
		if d.State() == Waiting {
			return elapsed
		}
		return skipped
	case Exit:
		d.requestExit()
		return exited
	}

	speed := d.pacing.Speed()
	d.display.ShowStatus(StatusView{
		State:    d.State(),
		Speed:    speed,
		Delay:    d.delay(speed),
		Paused:   d.pacing.Paused(),
		Progress: d.progress(),
	})
	return elapsed
}

func (d *Driver) progress() Progress {
	return Progress{
		SlidesShown:  d.SlidesShown(),
		LessonsShown: d.LessonsShown(),
		QueueDepth:   d.q.Depth(),
		Topics:       d.opts.Topics,
	}
}

func (d *Driver) waitingView() WaitingView {
	empty := d.q.EmptyFor()
	v := WaitingView{
		EmptyFor: empty,
		Starved:  empty >= d.opts.StarvationThreshold,
		Progress: d.progress(),
	}
	if d.opts.BuilderStatus != nil {
		v.Builder = d.opts.BuilderStatus()
	}
	return v
}

func (d *Driver) recordHistory(ctx context.Context, l *types.Lesson, started time.Time) {
	if d.opts.History == nil {
		return
	}
	err := d.opts.History.Record(ctx, store.HistoryEntry{
		SessionID:   d.opts.SessionID,
		LessonID:    l.ID,
		Topic:       l.Topic,
		Title:       l.Title,
		SlidesTotal: len(l.Slides),
		SlidesShown: len(l.Slides),
		Review:      l.Review,
		StartedAt:   started,
		FinishedAt:  d.now(),
	})
	if err != nil {
		logging.Get(logging.CategoryDriver).Error("record history for %s: %v", l.ID, err)
	}
}
