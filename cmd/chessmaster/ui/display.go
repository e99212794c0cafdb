package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"chessmaster/internal/presentation"
)

type (
	slideMsg   presentation.SlideView
	waitingMsg presentation.WaitingView
	statusMsg  presentation.StatusView
	closeMsg   struct{}
)

// Display forwards driver output into a running bubbletea program.
type Display struct {
	send func(tea.Msg)
}

var _ presentation.Display = (*Display)(nil)

// NewDisplay creates a display feeding p.
func NewDisplay(p *tea.Program) *Display {
	return &Display{send: p.Send}
}

func (d *Display) ShowSlide(v presentation.SlideView)     { d.send(slideMsg(v)) }
func (d *Display) ShowWaiting(v presentation.WaitingView) { d.send(waitingMsg(v)) }
func (d *Display) ShowStatus(v presentation.StatusView)   { d.send(statusMsg(v)) }

// Close asks the program to quit.
func (d *Display) Close() error {
	d.send(closeMsg{})
	return nil
}
