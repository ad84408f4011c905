package ui

import (
	"fmt"
	"strings"
	"time"

	"igprofiler/pkg/session"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// Bar renders percent as a fixed-width bar.
func Bar(percent int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * barWidth / 100
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
}

// StatusLine is the one-line form of a session snapshot.
func StatusLine(s session.Session) string {
	label := fmt.Sprintf("[%s]", strings.ToUpper(string(s.Status)))
	switch s.Status {
	case session.StatusCompleted:
		label = Green(label)
	case session.StatusError:
		label = Red(label)
	default:
		label = Magenta(label)
	}

	line := fmt.Sprintf("%s [%s] %3d%%", label, Bar(s.Progress), s.Progress)
	msg := s.Message
	if s.Status == session.StatusError && s.Error != "" {
		msg = s.Error
	}
	if msg != "" {
		line += " " + Dim(msg)
	}
	return line
}

// StatusPrinter prints a line whenever the watched session changes. It is the
// plain alternative to the dashboard for pipes and --quiet runs.
type StatusPrinter struct {
	last    session.Session
	printed bool
	start   time.Time
}

// NewStatusPrinter creates a printer.
func NewStatusPrinter() *StatusPrinter {
	return &StatusPrinter{start: time.Now()}
}

// Print writes s unless it repeats the previous snapshot.
func (p *StatusPrinter) Print(s session.Session) {
	if p.printed && s.Status == p.last.Status && s.Progress == p.last.Progress && s.Message == p.last.Message {
		return
	}
	p.last = s
	p.printed = true
	fmt.Fprintln(out, StatusLine(s))
}

// Follow prints every snapshot from updates until the channel closes and
// returns the last one.
func (p *StatusPrinter) Follow(updates <-chan session.Session) session.Session {
	for s := range updates {
		p.Print(s)
	}
	return p.last
}

// Elapsed is the time since the printer was created.
func (p *StatusPrinter) Elapsed() time.Duration {
	return time.Since(p.start).Round(time.Second)
}
