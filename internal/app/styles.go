package app

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/gmtui/gmtui/internal/faye"
)

// UI chrome colors.
var (
	colorBorder  = lipgloss.Color("#4b5563")
	colorDimmed  = lipgloss.Color("#6b7280")
	colorBright  = lipgloss.Color("#f9fafb")
	colorHealthy = lipgloss.Color("#22c55e")
	colorWarning = lipgloss.Color("#d97706")
	colorDanger  = lipgloss.Color("#dc2626")
	colorAccent  = lipgloss.Color("#00aff0")
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleDimmed = lipgloss.NewStyle().Foreground(colorDimmed)
	styleBright = lipgloss.NewStyle().Foreground(colorBright)
)

// stateColor maps a session state to its status bar color.
func stateColor(s faye.State) lipgloss.Color {
	switch s {
	case faye.StatePolling:
		return colorHealthy
	case faye.StateHandshaking, faye.StateSubscribing, faye.StateRenewing:
		return colorWarning
	case faye.StateClosed:
		return colorDanger
	default:
		return colorDimmed
	}
}
