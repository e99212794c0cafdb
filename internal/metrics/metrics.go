// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chessmaster/internal/logging"
)

const (
	// Namespace prefixes every metric name.
	Namespace = "chessmaster"
)

// Metrics holds the pipeline metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Producer
	Searches      *prometheus.CounterVec
	ItemsFetched  *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	CacheHits     prometheus.Counter
	LessonsBuilt  *prometheus.CounterVec
	BuilderState  prometheus.Gauge

	// Consumer
	SlidesShown   prometheus.Counter
	LessonsPlayed prometheus.Counter
	SlideDelay    prometheus.Histogram
	DriverState   prometheus.Gauge
}

// New creates the metrics on a fresh registry. Go runtime and process
// collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}
	m.initProducerMetrics(factory)
	m.initConsumerMetrics(factory)
	return m
}

func (m *Metrics) initProducerMetrics(factory promauto.Factory) {
	m.Searches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "builder",
		Name:      "searches_total",
		Help:      "Searches issued, by topic",
	}, []string{"topic"})

	m.ItemsFetched = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "builder",
		Name:      "items_fetched_total",
		Help:      "Content items fetched, by kind and cache result",
	}, []string{"kind", "result"})

	m.FetchFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "builder",
		Name:      "fetch_failures_total",
		Help:      "Failed searches and fetches, by reason",
	}, []string{"reason"})

	m.CacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "builder",
		Name:      "cache_hits_total",
		Help:      "Lessons assembled from cached content without fetching",
	})

	m.LessonsBuilt = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "builder",
		Name:      "lessons_built_total",
		Help:      "Lessons pushed to the queue",
	}, []string{"review"})

	m.BuilderState = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "builder",
		Name:      "state",
		Help:      "Current builder state as its ordinal",
	})
}

func (m *Metrics) initConsumerMetrics(factory promauto.Factory) {
	m.SlidesShown = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "driver",
		Name:      "slides_shown_total",
		Help:      "Slides displayed",
	})

	m.LessonsPlayed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "driver",
		Name:      "lessons_played_total",
		Help:      "Lessons played to the last slide",
	})

	m.SlideDelay = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "driver",
		Name:      "slide_delay_seconds",
		Help:      "Hold time applied to each slide",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
	})

	m.DriverState = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "driver",
		Name:      "state",
		Help:      "Current driver state as its ordinal",
	})
}

// RegisterQueueDepth exports depth as a gauge sampled at scrape time.
func (m *Metrics) RegisterQueueDepth(depth func() int) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Lessons waiting to be presented",
	}, func() float64 { return float64(depth()) })
	if err := m.registry.Register(g); err != nil {
		return fmt.Errorf("register queue depth: %w", err)
	}
	return nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return m.serve(ctx, lis)
}

func (m *Metrics) serve(ctx context.Context, lis net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	logging.Metrics("serving metrics on %s", lis.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
