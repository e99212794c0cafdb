package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"chessmaster/cmd/chessmaster/ui"
	"chessmaster/internal/presentation"
	"chessmaster/internal/system"
	"chessmaster/internal/usage"
)

var errNoTerminal = errors.New("no interactive terminal; use --headless")

func runSlideshow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Presentation.Headless && !term.IsTerminal(int(os.Stdout.Fd())) {
		return errNoTerminal
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := system.Boot(ctx, cfg, system.BootOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()
	ctx = usage.NewContext(ctx, p.Usage)

	logger.Info("session started",
		zap.String("session", p.SessionID),
		zap.Int("topics", len(cfg.Topics())),
		zap.Int("speed", p.Pacing.Speed()))

	if cfg.Presentation.Headless {
		err = runHeadless(ctx, p)
	} else {
		err = runInteractive(ctx, p, ui.Options{
			Theme:    cfg.Presentation.Theme,
			WordWrap: cfg.Presentation.WordWrap,
		})
	}
	if err != nil {
		return err
	}
	printSummary(ctx)
	return nil
}

func runHeadless(ctx context.Context, p *system.Pipeline) error {
	display := presentation.NewLogDisplay(os.Stdout)
	defer display.Close()
	p.AttachDisplay(display)
	return waitWithGrace(ctx, p.Config.GetShutdownGrace(), p.Run)
}

func runInteractive(ctx context.Context, p *system.Pipeline, opts ui.Options) error {
	input := &lazyInput{}
	program := tea.NewProgram(ui.NewModel(input, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	display := ui.NewDisplay(program)
	driver := p.AttachDisplay(display)
	input.handler = presentation.NewInputHandler(driver)

	return waitWithGrace(ctx, p.Config.GetShutdownGrace(), func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer program.Quit()
			return p.Run(ctx)
		})
		g.Go(func() error {
			_, err := program.Run()
			// Ending the program for any reason ends the session.
			driver.Send(presentation.Exit)
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
		return g.Wait()
	})
}

// lazyInput lets the model be built before the driver exists.
type lazyInput struct {
	handler *presentation.InputHandler
}

func (l *lazyInput) HandleKey(key string) bool {
	if l.handler == nil {
		return false
	}
	return l.handler.HandleKey(key)
}

// waitWithGrace runs fn and, once ctx is cancelled, gives it grace to
// return before giving up on it.
func waitWithGrace(ctx context.Context, grace time.Duration, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		logger.Warn("shutdown grace period exceeded", zap.Duration("grace", grace))
		return nil
	}
}

func printSummary(ctx context.Context) {
	tracker := usage.FromContext(ctx)
	if tracker == nil {
		return
	}
	s := tracker.Session()
	fmt.Printf("Session %s: %s\n", s.ID, usage.Summary(s.Counters))
}
