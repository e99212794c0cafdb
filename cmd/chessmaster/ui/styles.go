// Package ui is the full-screen terminal display for chessmaster.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Board palette.
var (
	LightBackground = lipgloss.Color("#f0d9b5") // light square
	LightForeground = lipgloss.Color("#2b2118")
	LightPrimary    = lipgloss.Color("#5c3d1e") // walnut
	LightAccent     = lipgloss.Color("#769656") // tournament green
	LightMuted      = lipgloss.Color("#8a7a66")
	LightBorder     = lipgloss.Color("#b58863") // dark square

	DarkBackground = lipgloss.Color("#1e1b18")
	DarkForeground = lipgloss.Color("#eeeed2")
	DarkPrimary    = lipgloss.Color("#b58863")
	DarkAccent     = lipgloss.Color("#769656")
	DarkMuted      = lipgloss.Color("#7d7468")
	DarkBorder     = lipgloss.Color("#4b4237")

	Warning = lipgloss.Color("#FFC107")
	Info    = lipgloss.Color("#2196F3")
)

// Theme holds the current color scheme.
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
	}
}

func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// ThemeFor resolves a configured preference: "dark", "light" or "auto".
// Auto inspects COLORFGBG and falls back to dark.
func ThemeFor(pref string) Theme {
	switch strings.ToLower(pref) {
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	}
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) == 2 {
		if bg, err := strconv.Atoi(parts[1]); err == nil && bg >= 7 && bg != 8 {
			return LightTheme()
		}
	}
	return DarkTheme()
}

// Styles holds the styled components.
type Styles struct {
	Theme Theme

	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style

	Title lipgloss.Style
	Body  lipgloss.Style
	Muted lipgloss.Style
	Image lipgloss.Style

	Badge   lipgloss.Style
	Review  lipgloss.Style
	Paused  lipgloss.Style
	Warning lipgloss.Style

	Spinner lipgloss.Style
	Divider lipgloss.Style
}

// NewStyles creates styles for theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(theme.Background).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Content: lipgloss.NewStyle().
			Padding(1, 2),

		Title: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true).
			MarginBottom(1),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Image: lipgloss.NewStyle().
			Foreground(Info).
			Italic(true),

		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(theme.Background).
			Padding(0, 1).
			Bold(true),

		Review: lipgloss.NewStyle().
			Background(Info).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1),

		Paused: lipgloss.NewStyle().
			Background(Warning).
			Foreground(lipgloss.Color("#000000")).
			Padding(0, 1).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
	}
}

// RenderDivider returns a horizontal rule of width cells.
func (s Styles) RenderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
