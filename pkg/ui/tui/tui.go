// Package tui is a full-screen dashboard that follows one analysis session.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"igprofiler/pkg/session"
)

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard fed by updates.
func NewTUI(ctx context.Context, sessionID, username string, updates <-chan session.Session) *TUI {
	model := NewModel(sessionID, username, updates)
	program := tea.NewProgram(&model, tea.WithAltScreen(), tea.WithContext(ctx))

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Run blocks until the session ends or the user quits, and returns the last
// snapshot seen.
func (t *TUI) Run() (session.Session, error) {
	_, err := t.program.Run()
	return t.model.Session(), err
}

// Aborted reports whether the user quit before the session finished.
func (t *TUI) Aborted() bool {
	return t.model.Aborted()
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// LogInfo logs an info message
func (t *TUI) LogInfo(message string) {
	t.program.Send(SendLog("INFO", message))
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(message string) {
	t.program.Send(SendLog("WARN", message))
}
