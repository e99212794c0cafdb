package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"chessmaster/internal/presentation"
)

// KeyHandler receives key presses. *presentation.InputHandler implements it.
type KeyHandler interface {
	HandleKey(key string) bool
}

// Options configures the model.
type Options struct {
	Theme    string // auto, dark, light
	WordWrap int
}

// Model is the bubbletea model for the slideshow.
type Model struct {
	styles   Styles
	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model
	renderer *glamour.TermRenderer
	input    KeyHandler
	wordWrap int

	width  int
	height int

	slide   *presentation.SlideView
	waiting *presentation.WaitingView
	status  *presentation.StatusView

	quitting bool
}

// NewModel creates a model that forwards keys to input.
func NewModel(input KeyHandler, opts Options) Model {
	styles := NewStyles(ThemeFor(opts.Theme))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	bar := progress.New(progress.WithSolidFill(string(styles.Theme.Accent)), progress.WithoutPercentage())
	bar.Width = 40

	if opts.WordWrap <= 0 {
		opts.WordWrap = 80
	}
	m := Model{
		styles:   styles,
		keys:     newKeyMap(),
		help:     help.New(),
		spinner:  sp,
		progress: bar,
		input:    input,
		wordWrap: opts.WordWrap,
		width:    opts.WordWrap,
	}
	m.renderer = newRenderer(styles.Theme, opts.WordWrap)
	return m
}

func newRenderer(theme Theme, wrap int) *glamour.TermRenderer {
	style := "light"
	if theme.IsDark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		k := msg.String()
		if a, ok := presentation.ActionForKey(k); ok {
			m.input.HandleKey(k)
			if a == presentation.Exit {
				m.quitting = true
				return m, tea.Quit
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.progress.Width = max(10, min(60, msg.Width-30))
		wrap := min(m.wordWrap, max(20, msg.Width-8))
		m.renderer = newRenderer(m.styles.Theme, wrap)
		return m, nil

	case slideMsg:
		v := presentation.SlideView(msg)
		m.slide = &v
		m.waiting = nil
		m.status = nil
		return m, nil

	case waitingMsg:
		v := presentation.WaitingView(msg)
		m.waiting = &v
		return m, nil

	case statusMsg:
		v := presentation.StatusView(msg)
		m.status = &v
		return m, nil

	case closeMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	switch {
	case m.waiting != nil:
		sb.WriteString(m.waitingView(*m.waiting))
	case m.slide != nil:
		sb.WriteString(m.slideView(*m.slide))
	default:
		sb.WriteString(m.styles.Content.Render(m.spinner.View() + " Starting..."))
	}
	sb.WriteString("\n")
	sb.WriteString(m.footer())
	return sb.String()
}

func (m Model) slideView(v presentation.SlideView) string {
	header := m.styles.Header.Render(v.LessonTitle)
	if v.Review {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, " ", m.styles.Review.Render("review"))
	}

	var body strings.Builder
	if v.Slide.Title != "" {
		body.WriteString(m.styles.Title.Render(v.Slide.Title))
		body.WriteString("\n")
	}
	if text := strings.TrimSpace(v.Slide.Body); text != "" {
		body.WriteString(m.renderBody(text))
	}
	for _, img := range v.Slide.Images {
		body.WriteString("\n")
		body.WriteString(m.styles.Image.Render("[diagram] " + filepath.Base(img)))
	}
	if v.Slide.SourceURL != "" {
		body.WriteString("\n\n")
		body.WriteString(m.styles.Muted.Render("Source: " + v.Slide.SourceURL))
	}

	position := fmt.Sprintf("Slide %d/%d", v.Index+1, v.Total)
	done := 0.0
	if v.Total > 0 {
		done = float64(v.Index+1) / float64(v.Total)
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, m.progress.ViewAs(done), "  ", m.styles.Muted.Render(position))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.styles.Content.Render(body.String()),
		m.styles.Footer.Render(bar),
	)
}

func (m Model) renderBody(text string) string {
	if m.renderer == nil {
		return m.styles.Body.Render(text)
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return m.styles.Body.Render(text)
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) waitingView(v presentation.WaitingView) string {
	lines := []string{m.spinner.View() + " Preparing lessons..."}
	if v.Starved {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf(
			"No new lessons for %s (builder: %s)", v.EmptyFor.Round(time.Second), v.Builder)))
	}
	return m.styles.Content.Render(strings.Join(lines, "\n"))
}

func (m Model) footer() string {
	var (
		progress presentation.Progress
		speed    int
		delay    time.Duration
		paused   bool
	)
	switch {
	case m.status != nil:
		progress, speed, delay, paused = m.status.Progress, m.status.Speed, m.status.Delay, m.status.Paused
	case m.slide != nil:
		progress, speed, delay, paused = m.slide.Progress, m.slide.Speed, m.slide.Delay, m.slide.Paused
	case m.waiting != nil:
		progress = m.waiting.Progress
	}

	parts := []string{progress.String()}
	if speed > 0 {
		parts = append(parts, fmt.Sprintf("Speed: %d (%.1fs)", speed, delay.Seconds()))
	}
	line := strings.Join(parts, " | ")
	if paused {
		line = lipgloss.JoinHorizontal(lipgloss.Top, m.styles.Paused.Render("PAUSED"), " ", line)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.RenderDivider(max(1, m.width)),
		m.styles.Footer.Render(line),
		m.styles.Footer.Render(m.help.View(m.keys)),
	)
}
