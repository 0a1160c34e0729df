package ui

import "github.com/charmbracelet/lipgloss"

// Palette shared by all rich output.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "63", Dark: "86"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "130", Dark: "214"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "124", Dark: "196"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "245", Dark: "240"}
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	warnStyle    = lipgloss.NewStyle().Foreground(ColorWarn)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorFail)
	successStyle = lipgloss.NewStyle().Foreground(ColorPass)
	mutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
)
