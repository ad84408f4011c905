package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"igprofiler/pkg/session"
)

// phases are the steps shown in the phase panel, in order.
var phases = []session.Status{
	session.StatusQueued,
	session.StatusScraping,
	session.StatusProcessingMedia,
	session.StatusAnalyzing,
	session.StatusCompleted,
}

var phaseLabels = map[session.Status]string{
	session.StatusQueued:          "Queued",
	session.StatusScraping:        "Scraping profile",
	session.StatusProcessingMedia: "Building collages",
	session.StatusAnalyzing:       "AI analysis",
	session.StatusCompleted:       "Report ready",
}

// Model is the dashboard state for one analysis session.
type Model struct {
	spinner spinner.Model
	bar     progress.Model
	updates <-chan session.Session

	sessionID string
	username  string
	current   session.Session
	// reached records when each phase was first seen.
	reached map[session.Status]time.Time
	started time.Time
	done    bool
	aborted bool

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model fed by updates, typically a tracker subscription.
func NewModel(sessionID, username string, updates <-chan session.Session) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)

	bar := progress.New(progress.WithGradient(string(colorPurple), string(colorOrange)))
	bar.Width = 40
	bar.ShowPercentage = false

	return Model{
		spinner:        s,
		bar:            bar,
		updates:        updates,
		sessionID:      sessionID,
		username:       username,
		current:        session.Session{ID: sessionID, Status: session.StatusQueued},
		reached:        map[session.Status]time.Time{},
		started:        time.Now(),
		maxLogMessages: 50,
	}
}

// Init starts the spinner and the first wait on the subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSession(m.updates), tickCmd())
}

// Session returns the last snapshot received.
func (m *Model) Session() session.Session {
	return m.current
}

// Aborted reports whether the user quit before the session finished.
func (m *Model) Aborted() bool {
	return m.aborted
}

// Apply records a snapshot. It returns true once the session is terminal.
func (m *Model) Apply(s session.Session) bool {
	prev := m.current
	m.current = s
	// Snapshots are latest-wins, so earlier phases may never be delivered.
	for i, p := range phases {
		if p != s.Status {
			continue
		}
		for _, earlier := range phases[:i] {
			if _, ok := m.reached[earlier]; !ok {
				m.reached[earlier] = time.Now()
			}
		}
	}
	if _, seen := m.reached[s.Status]; !seen {
		m.reached[s.Status] = time.Now()
		if s.Status == session.StatusError {
			m.AddLogMessage("ERROR", s.Error)
		} else {
			m.AddLogMessage("INFO", phaseLabel(s.Status))
		}
	}
	if s.Message != "" && s.Message != prev.Message && s.Status != session.StatusError {
		m.AddLogMessage("INFO", s.Message)
	}
	if s.Status == session.StatusCompleted {
		m.AddLogMessage("SUCCESS", fmt.Sprintf("Analysis of @%s complete", m.username))
	}
	m.done = s.Status.Terminal()
	return m.done
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color, ok := levelColors[level]
	if !ok {
		color = colorText
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// phaseState is how a phase renders relative to the current status.
type phaseState int

const (
	phasePending phaseState = iota
	phaseActive
	phaseDone
	phaseFailed
)

func (m *Model) phaseState(p session.Status) phaseState {
	_, seen := m.reached[p]
	switch {
	case m.current.Status == session.StatusError && p == m.furthest():
		return phaseFailed
	case p == m.current.Status && p != session.StatusCompleted:
		return phaseActive
	case seen:
		return phaseDone
	default:
		return phasePending
	}
}

// furthest is the latest phase seen, the one an error interrupted.
func (m *Model) furthest() session.Status {
	var last session.Status
	for _, p := range phases {
		if _, ok := m.reached[p]; ok {
			last = p
		}
	}
	return last
}

func phaseLabel(s session.Status) string {
	if l, ok := phaseLabels[s]; ok {
		return l
	}
	return string(s)
}
