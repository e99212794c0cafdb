package presentation

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chessmaster/internal/queue"
	"chessmaster/internal/store"
	"chessmaster/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type shownSlide struct {
	view SlideView
	at   time.Time
}

type recordingDisplay struct {
	mu       sync.Mutex
	slides   []shownSlide
	waiting  []WaitingView
	statuses []StatusView
	closed   bool
}

func (r *recordingDisplay) ShowSlide(v SlideView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slides = append(r.slides, shownSlide{view: v, at: time.Now()})
}

func (r *recordingDisplay) ShowWaiting(v WaitingView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting = append(r.waiting, v)
}

func (r *recordingDisplay) ShowStatus(v StatusView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, v)
}

func (r *recordingDisplay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingDisplay) shown() []shownSlide {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shownSlide(nil), r.slides...)
}

func (r *recordingDisplay) lastWaiting() (WaitingView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.waiting) == 0 {
		return WaitingView{}, false
	}
	return r.waiting[len(r.waiting)-1], true
}

type memHistory struct {
	mu      sync.Mutex
	entries []store.HistoryEntry
}

func (h *memHistory) Record(ctx context.Context, e store.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *memHistory) all() []store.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]store.HistoryEntry(nil), h.entries...)
}

func testLesson(id string, n int) *types.Lesson {
	l := &types.Lesson{ID: id, Topic: "chess opening principles", Title: "Chess Opening Principles"}
	for i := 0; i < n; i++ {
		l.Slides = append(l.Slides, types.Slide{
			ID:    fmt.Sprintf("%s-%02d", id, i),
			Kind:  types.SlideContent,
			Title: "Principles",
			Body:  fmt.Sprintf("Point %d", i),
		})
	}
	return l
}

type harness struct {
	q       *queue.LessonQueue
	pacing  *PacingState
	display *recordingDisplay
	history *memHistory
	driver  *Driver
	cancel  context.CancelFunc
	done    chan error
}

func newHarness(t *testing.T, delay func(int) time.Duration, opts Options) *harness {
	t.Helper()
	q, err := queue.New(queue.DefaultBounds())
	require.NoError(t, err)

	h := &harness{
		q:       q,
		pacing:  NewPacingState(100),
		display: &recordingDisplay{},
		history: &memHistory{},
		done:    make(chan error, 1),
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	opts.History = h.history
	opts.SessionID = "session-1"
	h.driver = NewDriver(q, h.pacing, h.display, opts)
	h.driver.delay = delay
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.driver.Run(ctx) }()
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop")
	}
}

func constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

func TestWaitingUntilLessonThenPlaysAllSlides(t *testing.T) {
	h := newHarness(t, constant(10*time.Millisecond), Options{Topics: 36})
	h.start()
	defer h.stop(t)

	require.Eventually(t, func() bool {
		_, ok := h.display.lastWaiting()
		return ok && h.driver.State() == Waiting
	}, time.Second, time.Millisecond)
	assert.Empty(t, h.display.shown(), "nothing is shown before the first lesson")

	require.NoError(t, h.q.Push(context.Background(), testLesson("L1", 5)))

	require.Eventually(t, func() bool { return h.driver.LessonsShown() == 1 }, 2*time.Second, time.Millisecond)
	shown := h.display.shown()
	require.Len(t, shown, 5)
	for i, s := range shown {
		assert.Equal(t, fmt.Sprintf("L1-%02d", i), s.view.Slide.ID)
		assert.Equal(t, i, s.view.Index)
		assert.Equal(t, 5, s.view.Total)
		assert.Equal(t, 36, s.view.Progress.Topics)
		assert.Equal(t, i+1, s.view.Progress.SlidesShown)
	}

	require.Eventually(t, func() bool { return h.driver.State() == Waiting }, time.Second, time.Millisecond)

	entries := h.history.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "L1", entries[0].LessonID)
	assert.Equal(t, "session-1", entries[0].SessionID)
	assert.Equal(t, 5, entries[0].SlidesShown)
	assert.False(t, entries[0].FinishedAt.Before(entries[0].StartedAt))
}

func TestLessonsPlayInQueueOrder(t *testing.T) {
	h := newHarness(t, constant(time.Millisecond), Options{})
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, h.q.Push(context.Background(), testLesson(id, 2)))
	}
	h.start()
	defer h.stop(t)

	require.Eventually(t, func() bool { return h.driver.LessonsShown() == 3 }, 2*time.Second, time.Millisecond)
	var ids []string
	for _, s := range h.display.shown() {
		ids = append(ids, s.view.LessonID)
	}
	assert.Equal(t, []string{"A", "A", "B", "B", "C", "C"}, ids, "no lesson replayed or reordered")
}

func TestSpeedChangeAffectsOnlyNextSlide(t *testing.T) {
	// Delay grows with speed here so the effect is easy to measure.
	h := newHarness(t, func(speed int) time.Duration { return time.Duration(speed) * time.Millisecond }, Options{})
	require.NoError(t, h.q.Push(context.Background(), testLesson("L", 2)))
	h.start()
	defer h.stop(t)

	require.Eventually(t, func() bool { return len(h.display.shown()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	h.driver.Send(SpeedUp25)

	require.Eventually(t, func() bool { return len(h.display.shown()) == 2 }, 2*time.Second, time.Millisecond)
	shown := h.display.shown()
	assert.Equal(t, 100*time.Millisecond, shown[0].view.Delay)
	assert.Equal(t, 100, shown[0].view.Speed)
	assert.Equal(t, 125*time.Millisecond, shown[1].view.Delay)
	assert.Equal(t, 125, shown[1].view.Speed)

	gap := shown[1].at.Sub(shown[0].at)
	assert.GreaterOrEqual(t, gap, 95*time.Millisecond, "current hold is not restarted or shortened")
	assert.Less(t, gap, 120*time.Millisecond, "current hold is not stretched to the new speed")
}

func TestSlideDurationHint(t *testing.T) {
	h := newHarness(t, constant(100*time.Millisecond), Options{})
	l := testLesson("H", 2)
	l.Slides[0].DurationHint = 0.5
	l.Slides[1].DurationHint = 5
	require.NoError(t, h.q.Push(context.Background(), l))
	h.start()
	defer h.stop(t)

	require.Eventually(t, func() bool { return len(h.display.shown()) == 2 }, time.Second, time.Millisecond)
	shown := h.display.shown()
	assert.Equal(t, 50*time.Millisecond, shown[0].view.Delay)
	assert.Equal(t, 200*time.Millisecond, shown[1].view.Delay, "hint clamped to 2.0")
}

func TestPauseFreezesRemainingTime(t *testing.T) {
	h := newHarness(t, constant(60*time.Millisecond), Options{})
	require.NoError(t, h.q.Push(context.Background(), testLesson("P", 2)))
	h.start()
	defer h.stop(t)

	require.Eventually(t, func() bool { return len(h.display.shown()) == 1 }, time.Second, time.Millisecond)
	h.driver.Send(TogglePause)
	require.Eventually(t, func() bool { return h.driver.State() == Paused }, time.Second, time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, h.display.shown(), 1, "paused slide is not advanced")

	resumed := time.Now()
	h.driver.Send(TogglePause)
	require.Eventually(t, func() bool { return len(h.display.shown()) == 2 }, time.Second, time.Millisecond)
	shown := h.display.shown()
	assert.Less(t, shown[1].at.Sub(resumed), 100*time.Millisecond, "only the remaining time is held after resume")
	assert.GreaterOrEqual(t, shown[1].at.Sub(shown[0].at), 150*time.Millisecond)
}

func TestSkipAdvancesWithinLesson(t *testing.T) {
	h := newHarness(t, constant(time.Hour), Options{})
	require.NoError(t, h.q.Push(context.Background(), testLesson("S", 2)))
	require.NoError(t, h.q.Push(context.Background(), testLesson("T", 1)))
	h.start()
	defer h.stop(t)

	require.Eventually(t, func() bool { return len(h.display.shown()) == 1 }, time.Second, time.Millisecond)
	h.driver.Send(Skip)
	require.Eventually(t, func() bool { return len(h.display.shown()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, "S-01", h.display.shown()[1].view.Slide.ID, "skip goes to the next slide of the same lesson")

	h.driver.Send(Skip)
	require.Eventually(t, func() bool { return len(h.display.shown()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, "T-00", h.display.shown()[2].view.Slide.ID)
	assert.Equal(t, 1, h.driver.LessonsShown())
}

func TestExitStopsRun(t *testing.T) {
	h := newHarness(t, constant(time.Hour), Options{})
	require.NoError(t, h.q.Push(context.Background(), testLesson("E", 3)))
	h.start()

	require.Eventually(t, func() bool { return len(h.display.shown()) == 1 }, time.Second, time.Millisecond)
	h.driver.Send(Exit)

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not exit")
	}
	h.cancel()

	select {
	case <-h.driver.Done():
	default:
		t.Fatal("Done not closed")
	}
	assert.Equal(t, ShuttingDown, h.driver.State())
	assert.Empty(t, h.history.all(), "abandoned lessons are not recorded")
}

func TestCancelWhileWaiting(t *testing.T) {
	h := newHarness(t, constant(time.Millisecond), Options{PollInterval: time.Hour})
	h.start()
	require.Eventually(t, func() bool { return h.driver.State() == Waiting }, time.Second, time.Millisecond)
	h.stop(t)
	assert.Equal(t, ShuttingDown, h.driver.State())
}

func TestStarvationReported(t *testing.T) {
	h := newHarness(t, constant(time.Millisecond), Options{
		StarvationThreshold: 20 * time.Millisecond,
		BuilderStatus:       func() string { return "cooling_down" },
	})
	h.start()
	defer h.stop(t)

	require.Eventually(t, func() bool {
		v, ok := h.display.lastWaiting()
		return ok && v.Starved
	}, time.Second, time.Millisecond)
	v, _ := h.display.lastWaiting()
	assert.Equal(t, "cooling_down", v.Builder)
	assert.GreaterOrEqual(t, v.EmptyFor, 20*time.Millisecond)
}

func TestSpeedAdjustWhileWaiting(t *testing.T) {
	h := newHarness(t, constant(time.Millisecond), Options{})
	h.start()
	defer h.stop(t)

	h.driver.Send(SpeedDown25)
	h.driver.Send(SpeedDown10)
	h.driver.Send(Skip)
	require.Eventually(t, func() bool { return h.pacing.Speed() == 65 }, time.Second, time.Millisecond)
	assert.Equal(t, Waiting, h.driver.State())
}

func TestInputHandler(t *testing.T) {
	h := newHarness(t, constant(time.Millisecond), Options{})
	in := NewInputHandler(h.driver)

	assert.True(t, in.HandleKey("right"))
	assert.False(t, in.HandleKey("x"))

	for key, want := range map[string]Action{
		" ": TogglePause, "left": SpeedDown10, "right": SpeedUp10,
		"up": SpeedUp25, "down": SpeedDown25, "n": Skip, "tab": Skip,
		"q": Exit, "esc": Exit, "ctrl+c": Exit,
	} {
		got, ok := ActionForKey(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestLogDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDisplay(&buf)
	d.ShowWaiting(WaitingView{})
	d.ShowWaiting(WaitingView{})
	d.ShowSlide(SlideView{
		Slide:       types.Slide{Title: "Fork", Body: "Knights fork.", Images: []string{"/img/a.png"}},
		LessonTitle: "Tactics",
		Index:       0,
		Total:       4,
		Speed:       100,
		Delay:       5 * time.Second,
		Progress:    Progress{SlidesShown: 1, QueueDepth: 3, Topics: 36},
	})

	out := buf.String()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Preparing lessons")), "repeated waiting is collapsed")
	assert.Contains(t, out, "Tactics  1/4  Fork")
	assert.Contains(t, out, "[image] /img/a.png")
	assert.Contains(t, out, "Slides: 1 | Queue: 3 | Topics: 36")
	assert.NoError(t, d.Close())
}
