package presentation

import (
	"math"
	"sync/atomic"
	"time"

	"chessmaster/internal/config"
)

// PacingState holds the user-adjustable speed and pause flag. Both are
// atomics, so the display and driver goroutines share it without locks.
type PacingState struct {
	speed  atomic.Int32
	paused atomic.Bool
}

// NewPacingState starts at speed, clamped to the valid range.
func NewPacingState(speed int) *PacingState {
	p := &PacingState{}
	p.SetSpeed(speed)
	return p
}

// Speed returns the current speed.
func (p *PacingState) Speed() int { return int(p.speed.Load()) }

// SetSpeed stores speed clamped to [MinSpeed, MaxSpeed] and returns it.
func (p *PacingState) SetSpeed(speed int) int {
	s := config.ClampSpeed(speed)
	p.speed.Store(int32(s))
	return s
}

// AdjustSpeed adds delta to the speed and returns the clamped result.
func (p *PacingState) AdjustSpeed(delta int) int {
	for {
		cur := p.speed.Load()
		next := int32(config.ClampSpeed(int(cur) + delta))
		if p.speed.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}

// Paused reports whether playback is paused.
func (p *PacingState) Paused() bool { return p.paused.Load() }

// SetPaused sets the pause flag.
func (p *PacingState) SetPaused(v bool) { p.paused.Store(v) }

// TogglePause flips the pause flag and returns the new value.
func (p *PacingState) TogglePause() bool {
	for {
		cur := p.paused.Load()
		if p.paused.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

// Delay maps a speed in [1, 200] to the base time a slide is held: 30s at
// speed 1, falling linearly to 5s at 100, then decaying exponentially to
// 0.2s at 200.
func Delay(speed int) time.Duration {
	s := float64(config.ClampSpeed(speed))
	var secs float64
	if s <= 100 {
		secs = 30 - (s-1)*25/99
	} else {
		secs = 5 * math.Pow(0.04, (s-100)/100)
	}
	return time.Duration(math.Round(secs*1000)) * time.Millisecond
}
