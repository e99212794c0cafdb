// Package system wires the pipeline together. It is the one place that
// knows how every component is constructed, so the CLI and tests boot the
// same graph.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chessmaster/internal/browser"
	"chessmaster/internal/builder"
	"chessmaster/internal/config"
	"chessmaster/internal/fetcher"
	"chessmaster/internal/lesson"
	"chessmaster/internal/logging"
	"chessmaster/internal/metrics"
	"chessmaster/internal/presentation"
	"chessmaster/internal/queue"
	"chessmaster/internal/store"
	"chessmaster/internal/usage"
)

// Pipeline is a fully wired producer/consumer instance.
type Pipeline struct {
	Config    *config.Config
	SessionID string

	Cache     *store.ContentCache
	Fetcher   *fetcher.Fetcher
	Renderer  *browser.Renderer // nil unless the browser fallback is enabled
	Assembler *lesson.Assembler
	Queue     *queue.LessonQueue
	Builder   *builder.Builder
	Pacing    *presentation.PacingState
	Driver    *presentation.Driver
	Usage     *usage.Tracker
	Metrics   *metrics.Metrics

	observer  *pipelineObserver
	closeOnce sync.Once
}

// BootOptions overrides parts of the graph, mainly for tests.
type BootOptions struct {
	// Source replaces the network fetcher.
	Source builder.ContentSource
	// SkipLogging leaves the logging package uninitialized.
	SkipLogging bool
}

// Boot validates cfg, prepares the data directory and constructs every
// component except the driver, which needs a display (see AttachDisplay).
// Any error here is a startup failure.
func Boot(ctx context.Context, cfg *config.Config, opts BootOptions) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.ImagesDir(), cfg.PDFsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("data directory not writable: %w", err)
		}
	}

	if !opts.SkipLogging {
		if err := logging.Initialize(cfg.DataDir, cfg.Logging.Settings()); err != nil {
			return nil, fmt.Errorf("init logging: %w", err)
		}
	}
	timer := logging.StartTimer(logging.CategoryBoot, "system.Boot")
	defer timer.Stop()

	p := &Pipeline{Config: cfg, SessionID: uuid.NewString()}
	ok := false
	defer func() {
		if !ok {
			_ = p.Close()
		}
	}()

	cache, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open content cache: %w", err)
	}
	p.Cache = cache

	tracker, err := usage.NewTracker(cfg.StatsPath(), p.SessionID)
	if err != nil {
		// Statistics are optional.
		logging.Get(logging.CategoryBoot).Warn("session stats disabled: %v", err)
	}
	p.Usage = tracker

	if cfg.Metrics.Enabled {
		p.Metrics = metrics.New()
	}
	p.observer = &pipelineObserver{usage: p.Usage, metrics: p.Metrics}

	source := opts.Source
	if source == nil {
		var fopts []fetcher.Option
		if cfg.Browser.Enabled {
			p.Renderer = browser.New(browser.ConfigFrom(cfg))
			fopts = append(fopts, fetcher.WithRenderer(p.Renderer))
		}
		p.Fetcher = fetcher.New(cfg, fopts...)
		source = p.Fetcher
	}

	p.Assembler = lesson.NewAssembler(lesson.DefaultOptions())

	q, err := queue.New(queue.Bounds{
		Low:     cfg.Queue.LowWatermark,
		High:    cfg.Queue.HighWatermark,
		Ceiling: cfg.Queue.Ceiling,
	})
	if err != nil {
		return nil, fmt.Errorf("create lesson queue: %w", err)
	}
	p.Queue = q
	if p.Metrics != nil {
		if err := p.Metrics.RegisterQueueDepth(q.Depth); err != nil {
			return nil, err
		}
	}

	b, err := builder.New(q, source, cache, p.Assembler, builder.OptionsFrom(cfg), p.observer)
	if err != nil {
		return nil, fmt.Errorf("create lesson builder: %w", err)
	}
	p.Builder = b
	p.Pacing = presentation.NewPacingState(cfg.Presentation.Speed)

	logging.Boot("pipeline ready: session=%s topics=%d speed=%d data=%s",
		p.SessionID, len(cfg.Topics()), p.Pacing.Speed(), cfg.DataDir)
	ok = true
	return p, nil
}

// AttachDisplay creates the driver rendering to display.
func (p *Pipeline) AttachDisplay(display presentation.Display) *presentation.Driver {
	opts := presentation.Options{
		PollInterval:        p.Config.GetPollInterval(),
		StarvationThreshold: p.Config.GetStarvationThreshold(),
		SessionID:           p.SessionID,
		Topics:              len(p.Config.Topics()),
		Observer:            p.observer,
		BuilderStatus:       func() string { return p.Builder.State().String() },
	}
	if p.Config.Storage.HistoryEnabled {
		opts.History = p.Cache.History()
	}
	p.Driver = presentation.NewDriver(p.Queue, p.Pacing, display, opts)
	return p.Driver
}

// Run runs the builder, the driver and the optional metrics server until
// ctx is cancelled or the user exits. A user exit cancels the builder too.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.Driver == nil {
		return errors.New("no display attached")
	}
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error { return p.Builder.Run(ctx) })
	g.Go(func() error {
		defer cancel()
		return p.Driver.Run(ctx)
	})
	if p.Metrics != nil && p.Config.Metrics.Addr != "" {
		g.Go(func() error { return p.Metrics.Serve(ctx, p.Config.Metrics.Addr) })
	}
	if p.Renderer != nil {
		g.Go(func() error {
			<-ctx.Done()
			return p.Renderer.Shutdown()
		})
	}
	return g.Wait()
}

// Close releases resources in reverse construction order. It is safe to
// call more than once.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	p.closeOnce.Do(func() {
		if p.Renderer != nil {
			if err := p.Renderer.Shutdown(); err != nil {
				errs = append(errs, err)
			}
		}
		if p.Usage != nil {
			if err := p.Usage.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if p.Cache != nil {
			if err := p.Cache.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
