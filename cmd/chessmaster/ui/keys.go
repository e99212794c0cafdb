package ui

import (
	"github.com/charmbracelet/bubbles/key"

	"chessmaster/internal/presentation"
)

// keyMap adapts the shared bindings to bubbles/help.
type keyMap struct {
	bindings []key.Binding
}

func newKeyMap() keyMap {
	var km keyMap
	for _, b := range presentation.DefaultBindings {
		if b.Help == "" {
			continue
		}
		km.bindings = append(km.bindings, key.NewBinding(
			key.WithKeys(b.Keys...),
			key.WithHelp(b.Help, b.Desc),
		))
	}
	return km
}

func (k keyMap) ShortHelp() []key.Binding { return k.bindings }

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.bindings} }
