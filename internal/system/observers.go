package system

import (
	"errors"
	"strconv"
	"time"

	"chessmaster/internal/builder"
	"chessmaster/internal/metrics"
	"chessmaster/internal/presentation"
	"chessmaster/internal/store"
	"chessmaster/internal/types"
	"chessmaster/internal/usage"
)

// pipelineObserver feeds builder and driver events into session statistics
// and Prometheus. Either sink may be nil.
type pipelineObserver struct {
	usage   *usage.Tracker
	metrics *metrics.Metrics
}

var (
	_ builder.Observer      = (*pipelineObserver)(nil)
	_ presentation.Observer = (*pipelineObserver)(nil)
)

func (o *pipelineObserver) OnSearch(topic, query string) {
	if o.usage != nil {
		o.usage.RecordSearch(topic)
	}
	if o.metrics != nil {
		o.metrics.Searches.WithLabelValues(topic).Inc()
	}
}

func (o *pipelineObserver) OnItem(item *types.ContentItem, result store.PutResult) {
	if o.usage != nil {
		o.usage.RecordItem(result == store.DuplicateIgnored)
	}
	if o.metrics != nil {
		o.metrics.ItemsFetched.WithLabelValues(string(item.Kind), result.String()).Inc()
	}
}

func (o *pipelineObserver) OnFetchError(topic string, err error) {
	reason := failureReason(err)
	if o.usage != nil {
		o.usage.RecordFetchFailure(reason)
	}
	if o.metrics != nil {
		o.metrics.FetchFailures.WithLabelValues(reason).Inc()
	}
}

func (o *pipelineObserver) OnCacheHit(topic string, items int) {
	if o.usage != nil {
		o.usage.RecordCacheHit()
	}
	if o.metrics != nil {
		o.metrics.CacheHits.Inc()
	}
}

func (o *pipelineObserver) OnLesson(l *types.Lesson) {
	if o.usage != nil {
		o.usage.RecordLessonBuilt(l.Topic, l.Review)
	}
	if o.metrics != nil {
		o.metrics.LessonsBuilt.WithLabelValues(strconv.FormatBool(l.Review)).Inc()
	}
}

func (o *pipelineObserver) OnState(s builder.State) {
	if o.metrics != nil {
		o.metrics.BuilderState.Set(float64(s))
	}
}

func (o *pipelineObserver) OnSlide(s types.Slide, delay time.Duration) {
	if o.usage != nil {
		o.usage.RecordSlideShown()
	}
	if o.metrics != nil {
		o.metrics.SlidesShown.Inc()
		o.metrics.SlideDelay.Observe(delay.Seconds())
	}
}

func (o *pipelineObserver) OnLessonPlayed(l *types.Lesson) {
	if o.usage != nil {
		o.usage.RecordLessonShown()
	}
	if o.metrics != nil {
		o.metrics.LessonsPlayed.Inc()
	}
}

func (o *pipelineObserver) OnDriverState(s presentation.DriverState) {
	if o.metrics != nil {
		o.metrics.DriverState.Set(float64(s))
	}
}

func failureReason(err error) string {
	var fe *types.FetchError
	if errors.As(err, &fe) {
		return string(fe.Reason)
	}
	return "other"
}
