package presentation

import "fmt"

// Action is a user command.
type Action int

const (
	TogglePause Action = iota
	SpeedUp10
	SpeedDown10
	SpeedUp25
	SpeedDown25
	Skip
	Exit
)

func (a Action) String() string {
	switch a {
	case TogglePause:
		return "toggle_pause"
	case SpeedUp10:
		return "speed_up_10"
	case SpeedDown10:
		return "speed_down_10"
	case SpeedUp25:
		return "speed_up_25"
	case SpeedDown25:
		return "speed_down_25"
	case Skip:
		return "skip"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Binding names the keys for one action, using bubbletea key names.
type Binding struct {
	Action Action
	Keys   []string
	Help   string
	Desc   string
}

// DefaultBindings is the key map shared by every display.
var DefaultBindings = []Binding{
	{TogglePause, []string{" ", "space", "p"}, "space", "pause/resume"},
	{SpeedDown10, []string{"left", "h"}, "←/→", "speed ∓10"},
	{SpeedUp10, []string{"right", "l"}, "", ""},
	{SpeedUp25, []string{"up", "k"}, "↑/↓", "speed ±25"},
	{SpeedDown25, []string{"down", "j"}, "", ""},
	{Skip, []string{"n", "tab"}, "n", "next slide"},
	{Exit, []string{"q", "esc", "ctrl+c"}, "q", "quit"},
}

var keyActions = func() map[string]Action {
	m := make(map[string]Action)
	for _, b := range DefaultBindings {
		for _, k := range b.Keys {
			m[k] = b.Action
		}
	}
	return m
}()

// ActionForKey maps a key name to its action.
func ActionForKey(key string) (Action, bool) {
	a, ok := keyActions[key]
	return a, ok
}

// InputHandler forwards key presses to a driver.
type InputHandler struct {
	driver *Driver
}

// NewInputHandler creates a handler for d.
func NewInputHandler(d *Driver) *InputHandler {
	return &InputHandler{driver: d}
}

// HandleKey sends the action bound to key, reporting whether one was bound.
func (h *InputHandler) HandleKey(key string) bool {
	a, ok := ActionForKey(key)
	if !ok {
		return false
	}
	h.driver.Send(a)
	return true
}
