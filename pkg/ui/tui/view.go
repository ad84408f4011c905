package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	width := m.width - 4
	sections := []string{
		m.renderHeader(),
		m.renderPhasePanel(width),
		m.renderPreviewPanel(width),
		m.renderLogsPanel(width),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to quit"))
	}

	return baseStyle.Width(m.width).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m Model) renderHeader() string {
	title := brandStyle.Render("IGPROFILER")
	target := handleStyle.Render("@" + m.username)
	elapsed := elapsedStyle.Render(formatDuration(time.Since(m.started)))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", target, "  ", elapsed)
}

// renderPhasePanel lists the phases with the overall progress bar.
func (m Model) renderPhasePanel(width int) string {
	title := panelTitleStyle.Render(" ANALYSIS ")

	var lines []string
	for _, p := range phases {
		label := phaseLabel(p)
		switch m.phaseState(p) {
		case phaseDone:
			lines = append(lines, checkStyle.Render("✓ ")+phaseDoneStyle.Render(label))
		case phaseActive:
			lines = append(lines, m.spinner.View()+" "+phaseActiveStyle.Render(label))
		case phaseFailed:
			lines = append(lines, errorStyle.Render("✗ "+label))
		default:
			lines = append(lines, phasePendingStyle.Render("· "+label))
		}
	}

	pct := float64(m.current.Progress) / 100
	lines = append(lines, "", m.bar.ViewAs(pct)+" "+percentStyle(m.current.Progress).Render(fmt.Sprintf("%3d%%", m.current.Progress)))

	msg := m.current.Message
	if m.current.Error != "" {
		msg = errorStyle.Render(m.current.Error)
	}
	if msg != "" {
		lines = append(lines, textStyle.Render(msg))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

// renderPreviewPanel shows the scraped posts once they are known.
func (m Model) renderPreviewPanel(width int) string {
	title := panelTitleStyle.Render(" POSTS ")
	if len(m.current.Preview) == 0 {
		content := mutedStyle.Render("Waiting for posts...")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	maxCaption := max(width-20, 10)
	var lines []string
	for i, p := range m.current.Preview {
		caption := strings.ReplaceAll(p.Caption, "\n", " ")
		if r := []rune(caption); len(r) > maxCaption {
			caption = string(r[:maxCaption-3]) + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			postNumberStyle.Render(fmt.Sprintf("%2d.", i+1)),
			postTypeStyle.Render(fmt.Sprintf("%-8s", p.Type)),
			textStyle.Render(caption),
		))
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

// renderLogsPanel renders the logs panel
func (m Model) renderLogsPanel(width int) string {
	title := panelTitleStyle.Render(" LOG ")

	start := len(m.logMessages) - 8
	if start < 0 {
		start = 0
	}

	var logs []string
	for i := start; i < len(m.logMessages); i++ {
		log := m.logMessages[i]
		timestamp := mutedStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))

		text := log.Message
		if maxLen := width - 25; maxLen > 3 && len(text) > maxLen {
			text = text[:maxLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, textStyle.Render(text)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = mutedStyle.Render("No logs yet...")
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m Model) renderHelp() string {
	help := `
  Keys:
    q/ctrl+c - Stop the analysis and quit
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Phases:
    ` + checkStyle.Render("✓") + `        - Done
    ` + errorStyle.Render("✗") + `        - Failed
    ·        - Pending
`

	return panelStyle.Width(m.width - 4).Render(help)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
