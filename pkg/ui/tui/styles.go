package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette loosely follows the Instagram gradient on a dark background.
var (
	colorPurple = lipgloss.Color("#833AB4")
	colorPink   = lipgloss.Color("#E1306C")
	colorOrange = lipgloss.Color("#F77737")
	colorYellow = lipgloss.Color("#FCAF45")
	colorGreen  = lipgloss.Color("#4CD964")
	colorRed    = lipgloss.Color("#FF3B30")
	colorText   = lipgloss.Color("#C7C7CC")
	colorMuted  = lipgloss.Color("#6C6C70")
	colorBg     = lipgloss.Color("#121212")
	colorPanel  = lipgloss.Color("#1C1C1E")

	baseStyle = lipgloss.NewStyle().
			Background(colorBg).
			Foreground(colorText)

	brandStyle = lipgloss.NewStyle().
			Foreground(colorPink).
			Bold(true).
			Padding(1, 0)

	handleStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	elapsedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Background(colorPanel).
			Padding(0, 2)

	panelTitleStyle = lipgloss.NewStyle().
			Background(colorPink).
			Foreground(colorBg).
			Bold(true).
			Padding(0, 1)

	phaseDoneStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	phaseActiveStyle = lipgloss.NewStyle().
				Foreground(colorOrange).
				Bold(true)

	phasePendingStyle = lipgloss.NewStyle().
				Foreground(colorText)

	checkStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	postNumberStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	postTypeStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	textStyle = lipgloss.NewStyle().
			Foreground(colorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(1, 0, 0, 2)
)

var levelColors = map[string]lipgloss.Color{
	"ERROR":   colorRed,
	"WARN":    colorOrange,
	"SUCCESS": colorGreen,
	"INFO":    colorPink,
}

// percentStyle colors the percentage by how far the analysis has come.
func percentStyle(progress int) lipgloss.Style {
	switch {
	case progress >= 100:
		return checkStyle
	case progress >= 70:
		return lipgloss.NewStyle().Foreground(colorYellow)
	case progress >= 20:
		return lipgloss.NewStyle().Foreground(colorOrange)
	default:
		return lipgloss.NewStyle().Foreground(colorPink)
	}
}
